package store

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscyber/models"
	"axiscyber/testutil"
)

func testimonialSpec() Spec {
	return Spec{
		SearchColumns: []string{"client_name", "company", "quote"},
		SortColumns:   []string{"client_name", "rating"},
		FilterColumns: []string{"approved", "featured"},
		ToggleColumns: []string{"approved", "featured"},
	}
}

func contactSpec() Spec {
	return Spec{
		StatusColumn:  "status",
		Statuses:      models.ContactStatuses,
		SearchColumns: []string{"name", "email", "message"},
	}
}

func TestToggle_TwiceRestoresOriginal(t *testing.T) {
	db := testutil.NewDB(t, &models.Testimonial{})
	repo := New[models.Testimonial](db, testimonialSpec())
	ctx := context.Background()

	item := &models.Testimonial{ClientName: "Helen", Quote: "Great", Featured: false}
	require.NoError(t, repo.Create(ctx, item))

	v, err := repo.Toggle(ctx, item.ID, "featured")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = repo.Toggle(ctx, item.ID, "featured")
	require.NoError(t, err)
	assert.False(t, v)

	reloaded, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Featured)
}

func TestToggle_Rejections(t *testing.T) {
	db := testutil.NewDB(t, &models.Testimonial{})
	repo := New[models.Testimonial](db, testimonialSpec())
	ctx := context.Background()

	_, err := repo.Toggle(ctx, 1, "quote")
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = repo.Toggle(ctx, 999, "featured")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FilterByStatus(t *testing.T) {
	db := testutil.NewDB(t, &models.ContactSubmission{})
	repo := New[models.ContactSubmission](db, contactSpec())
	ctx := context.Background()

	for i, status := range []string{"", models.ContactRead, "", models.ContactReplied, models.ContactRead} {
		require.NoError(t, repo.Create(ctx, &models.ContactSubmission{
			Name:    "Lead",
			Email:   "lead@example.com",
			Message: "hello",
			Status:  status,
			Company: string(rune('A' + i)),
		}))
	}

	items, total, err := repo.List(ctx, ListOptions{Status: models.ContactRead})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, it := range items {
		assert.Equal(t, models.ContactRead, it.Status)
	}

	items, _, err = repo.List(ctx, ListOptions{Status: models.ContactNew})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, _, err = repo.List(ctx, ListOptions{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestList_SearchDateRangeSortAndPaging(t *testing.T) {
	db := testutil.NewDB(t, &models.Testimonial{})
	repo := New[models.Testimonial](db, testimonialSpec())
	ctx := context.Background()

	now := time.Now()
	rows := []models.Testimonial{
		{ClientName: "Alice", Company: "Ledgerline", Quote: "Solid pentest", Rating: 5, CreatedAt: now.AddDate(0, 0, -10)},
		{ClientName: "Bob", Company: "Cargoflux", Quote: "Great cloud work", Rating: 4, CreatedAt: now.AddDate(0, 0, -3)},
		{ClientName: "Carol", Company: "Northwind", Quote: "PENTEST was thorough", Rating: 3, CreatedAt: now.AddDate(0, 0, -1)},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	items, total, err := repo.List(ctx, ListOptions{Search: "pentest"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Carol", items[0].ClientName)

	from := now.AddDate(0, 0, -5)
	items, _, err = repo.List(ctx, ListOptions{From: &from})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, _, err = repo.List(ctx, ListOptions{Sort: "rating", Desc: false})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, []int{items[0].Rating, items[1].Rating, items[2].Rating})

	items, total, err = repo.List(ctx, ListOptions{Sort: "client_name", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Bob", items[0].ClientName)

	_, _, err = repo.List(ctx, ListOptions{Sort: "quote; DROP TABLE testimonials"})
	assert.ErrorIs(t, err, ErrInvalidField)

	items, _, err = repo.List(ctx, ListOptions{Filters: map[string]any{"approved": false}})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestDelete_RemovedFromSubsequentList(t *testing.T) {
	db := testutil.NewDB(t, &models.Testimonial{})
	repo := New[models.Testimonial](db, testimonialSpec())
	ctx := context.Background()

	keep := &models.Testimonial{ClientName: "Keep", Quote: "q"}
	drop := &models.Testimonial{ClientName: "Drop", Quote: "q"}
	require.NoError(t, repo.Create(ctx, keep))
	require.NoError(t, repo.Create(ctx, drop))

	require.NoError(t, repo.Delete(ctx, drop.ID))

	items, total, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, keep.ID, items[0].ID)

	assert.ErrorIs(t, repo.Delete(ctx, drop.ID), ErrNotFound)
	_, err = repo.Get(ctx, drop.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	db := testutil.NewDB(t, &models.ContactSubmission{})
	repo := New[models.ContactSubmission](db, contactSpec())
	ctx := context.Background()

	item := &models.ContactSubmission{Name: "A", Email: "a@example.com", Message: "m"}
	require.NoError(t, repo.Create(ctx, item))
	assert.Equal(t, models.ContactNew, item.Status)

	require.NoError(t, repo.SetStatus(ctx, item.ID, models.ContactReplied))
	reloaded, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContactReplied, reloaded.Status)

	assert.ErrorIs(t, repo.SetStatus(ctx, item.ID, "lost"), ErrInvalidField)
	assert.ErrorIs(t, repo.SetStatus(ctx, 999, models.ContactRead), ErrNotFound)
}

func TestUpsert_OverwritesWithZeroValues(t *testing.T) {
	db := testutil.NewDB(t, &models.Testimonial{})
	repo := New[models.Testimonial](db, testimonialSpec())
	ctx := context.Background()

	match := map[string]any{"client_name": "Helen", "company": "Acme"}
	original := &models.Testimonial{ClientName: "Helen", Company: "Acme", ClientRole: "CISO", Quote: "Great", Rating: 5}
	require.NoError(t, repo.UpsertWhere(ctx, original, match))
	createdAt := original.CreatedAt

	require.NoError(t, db.Model(&models.Testimonial{}).Where("id = ?", original.ID).
		Updates(map[string]any{"featured": true, "client_role": "CTO", "quote": "Edited"}).Error)

	again := &models.Testimonial{ClientName: "Helen", Company: "Acme", Quote: "Great", Rating: 5}
	require.NoError(t, repo.UpsertWhere(ctx, again, match))
	assert.Equal(t, original.ID, again.ID)

	stored, err := repo.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.False(t, stored.Featured)
	assert.Empty(t, stored.ClientRole)
	assert.Equal(t, "Great", stored.Quote)
	assert.WithinDuration(t, createdAt, stored.CreatedAt, time.Second)

	count, err := repo.Count(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsert_BySlug(t *testing.T) {
	db := testutil.NewDB(t, &models.BlogCategory{})
	repo := New[models.BlogCategory](db, Spec{})
	ctx := context.Background()

	first := &models.BlogCategory{Name: "Security", Slug: "security"}
	require.NoError(t, repo.Upsert(ctx, first, "slug", "security"))
	require.NotZero(t, first.ID)

	second := &models.BlogCategory{Name: "Cybersecurity", Slug: "security", Description: "updated"}
	require.NoError(t, repo.Upsert(ctx, second, "slug", "security"))
	assert.Equal(t, first.ID, second.ID)

	count, err := repo.Count(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := repo.GetBy(ctx, "slug", "security")
	require.NoError(t, err)
	assert.Equal(t, "Cybersecurity", stored.Name)
	assert.Equal(t, "updated", stored.Description)
}

func TestCreate_DuplicateSlugIsConflict(t *testing.T) {
	db := testutil.NewDB(t, &models.BlogTag{})
	repo := New[models.BlogTag](db, Spec{})
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.BlogTag{Name: "AWS", Slug: "aws"}))
	assert.ErrorIs(t, repo.Create(ctx, &models.BlogTag{Name: "aws", Slug: "aws"}), ErrConflict)
}

func TestParseListOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	parse := func(query string) (ListOptions, error) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/?"+query, nil)
		return ParseListOptions(c)
	}

	opts, err := parse("status=new&q=+acme+&from=2024-01-01&to=2024-01-31&sort=name&order=asc&limit=10&offset=20")
	require.NoError(t, err)
	assert.Equal(t, "new", opts.Status)
	assert.Equal(t, "acme", opts.Search)
	assert.Equal(t, "name", opts.Sort)
	assert.False(t, opts.Desc)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
	assert.Equal(t, 1, opts.To.Day())
	assert.Equal(t, time.February, opts.To.Month())

	opts, err = parse("")
	require.NoError(t, err)
	assert.True(t, opts.Desc)
	assert.Equal(t, 50, opts.Limit)

	for _, bad := range []string{"from=yesterday", "limit=-1", "offset=x", "from=2024-02-01&to=2024-01-01"} {
		_, err := parse(bad)
		assert.ErrorIs(t, err, ErrInvalidField, bad)
	}
}
