package admin

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscyber/models"
)

func TestServices_CRUD(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	w := c.do(http.MethodPost, "/admin/api/services", map[string]any{
		"title":             "Cloud Security",
		"short_description": "Harden your cloud.",
		"active":            true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var svc models.Service
	decode(t, w, &svc)
	assert.Equal(t, "cloud-security", svc.Slug)
	assert.True(t, svc.Active)
	assert.EqualValues(t, 1, env.cache.purges.Load())

	w = c.do(http.MethodPost, "/admin/api/services", map[string]any{"title": "Cloud Security"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodPost, "/admin/api/services", map[string]any{"short_description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	got := decode(t, w, nil)
	assert.Equal(t, "is required", got.Fields["title"])

	w = c.do(http.MethodPost, "/admin/api/services", map[string]any{"title": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w, nil).Fields, "title")

	c.do(http.MethodPost, "/admin/api/services", map[string]any{"title": "Penetration Testing"})

	w = c.do(http.MethodGet, "/admin/api/services?q=cloud", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Service
	got = decode(t, w, &list)
	require.Len(t, list, 1)
	require.NotNil(t, got.Total)
	assert.EqualValues(t, 1, *got.Total)

	path := "/admin/api/services/" + itoa(svc.ID)
	w = c.do(http.MethodPut, path, map[string]any{"short_description": "Updated.", "id": 999})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Service
	decode(t, w, &updated)
	assert.Equal(t, svc.ID, updated.ID)
	assert.Equal(t, "Cloud Security", updated.Title)
	assert.Equal(t, "Updated.", updated.ShortDescription)

	w = c.do(http.MethodPost, path+"/toggle/featured", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &updated)
	assert.True(t, updated.Featured)

	w = c.do(http.MethodPost, path+"/toggle/title", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, "/admin/api/services/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContacts_Status(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	contact := models.ContactSubmission{Name: "Dana", Email: "dana@example.com", Message: "Call me", Status: models.ContactNew}
	require.NoError(t, env.db.Create(&contact).Error)
	path := "/admin/api/contacts/" + itoa(contact.ID)

	w := c.do(http.MethodPost, "/admin/api/contacts", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodPost, path+"/status", map[string]any{"status": models.ContactRead})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.ContactSubmission
	decode(t, w, &got)
	assert.Equal(t, models.ContactRead, got.Status)

	w = c.do(http.MethodPost, path+"/status", map[string]any{"status": "spam"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Only the status is editable on lead inboxes.
	w = c.do(http.MethodPut, path, map[string]any{"status": models.ContactReplied, "message": "rewritten"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, models.ContactReplied, got.Status)
	assert.Equal(t, "Call me", got.Message)

	w = c.do(http.MethodGet, "/admin/api/contacts?status=replied", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, *decode(t, w, nil).Total)

	w = c.do(http.MethodGet, "/admin/api/contacts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlogPosts_TagsAndPublish(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	w := c.do(http.MethodPost, "/admin/api/blog/posts", map[string]any{
		"title":   "Zero Trust Basics",
		"content": strings.Repeat("word ", 450),
		"tags":    "Cloud, Zero Trust, cloud",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var post models.BlogPost
	decode(t, w, &post)
	assert.Equal(t, "zero-trust-basics", post.Slug)
	assert.Equal(t, models.StatusDraft, post.Status)
	assert.Nil(t, post.PublishedAt)
	assert.Equal(t, 3, post.ReadingMinutes)
	assert.Len(t, post.Tags, 2)

	path := "/admin/api/blog/posts/" + itoa(post.ID)
	w = c.do(http.MethodPut, path, map[string]any{"tags": []string{"Cloud"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &post)
	require.Len(t, post.Tags, 1)
	assert.Equal(t, "cloud", post.Tags[0].Slug)

	var tagCount int64
	env.db.Model(&models.BlogTag{}).Count(&tagCount)
	assert.EqualValues(t, 2, tagCount)

	w = c.do(http.MethodPost, path+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &post)
	assert.Equal(t, models.StatusPublished, post.Status)
	require.NotNil(t, post.PublishedAt)
	assert.WithinDuration(t, time.Now(), *post.PublishedAt, time.Minute)

	w = c.do(http.MethodPost, path+"/unpublish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &post)
	assert.Equal(t, models.StatusDraft, post.Status)
}

func TestBlogPosts_FuturePublishDateIsPulledIn(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	future := time.Now().Add(72 * time.Hour)
	post := models.BlogPost{Title: "Later", Slug: "later", Status: models.StatusScheduled, PublishedAt: &future}
	require.NoError(t, env.db.Create(&post).Error)

	w := c.do(http.MethodPost, "/admin/api/blog/posts/"+itoa(post.ID)+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &post)
	require.NotNil(t, post.PublishedAt)
	assert.True(t, post.PublishedAt.Before(future))
}

func TestCampaigns(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	require.NoError(t, env.db.Create(&[]models.NewsletterSubscription{
		{Email: "a@example.com", Name: "Ana", Status: models.SubscriptionActive},
		{Email: "b@example.com", Name: "Ben", Status: models.SubscriptionActive},
		{Email: "gone@example.com", Status: models.SubscriptionUnsubscribed},
	}).Error)

	w := c.do(http.MethodPost, "/admin/api/email/campaigns", map[string]any{"name": "October"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/admin/api/email/campaigns", map[string]any{
		"name":    "October",
		"subject": "News for {{.Name}}",
		"body":    "Hello {{.Name}}, here is the news.",
		"status":  models.CampaignSent,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var campaign models.EmailCampaign
	decode(t, w, &campaign)
	assert.Equal(t, models.CampaignDraft, campaign.Status)
	path := "/admin/api/email/campaigns/" + itoa(campaign.ID)

	w = c.do(http.MethodPost, path+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct{ Subject, Body string }
	decode(t, w, &preview)
	assert.Contains(t, preview.Subject, "News for")
	assert.Contains(t, preview.Body, "here is the news")

	w = c.do(http.MethodPost, path+"/schedule", map[string]any{"scheduled_at": time.Now().Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, path+"/schedule", map[string]any{"scheduled_at": time.Now().Add(time.Hour)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &campaign)
	assert.Equal(t, models.CampaignScheduled, campaign.Status)
	assert.NotNil(t, campaign.ScheduledAt)

	w = c.do(http.MethodPost, path+"/status", map[string]any{"status": models.CampaignSent})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, path+"/status", map[string]any{"status": models.CampaignDraft})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &campaign)
	assert.Equal(t, models.CampaignDraft, campaign.Status)
	assert.Nil(t, campaign.ScheduledAt)

	w = c.do(http.MethodPost, path+"/send", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &campaign)
	assert.Equal(t, models.CampaignSent, campaign.Status)
	assert.Equal(t, 2, campaign.RecipientCount)
	assert.Equal(t, 2, campaign.SentCount)
	require.Len(t, env.outbox.sent, 2)
	assert.Equal(t, "News for Ana", env.outbox.sent[0].Subject)

	w = c.do(http.MethodPost, path+"/send", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodPut, path, map[string]any{"name": "Renamed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, path+"/schedule", map[string]any{"scheduled_at": time.Now().Add(time.Hour)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodPost, "/admin/api/email/campaigns/999/send", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmailTemplates_RejectInvalidTemplate(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	w := c.do(http.MethodPost, "/admin/api/email/templates", map[string]any{
		"name":    "Broken",
		"subject": "Hi",
		"body":    "Hello {{.Name",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w, nil).Fields, "body")
}

func TestMedia_UploadAndDelete(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.signIn(t)

	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(0, 0, color.White)
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "Logo Mark.png")
	require.NoError(t, err)
	fw.Write(pngData.Bytes())
	mw.WriteField("folder", "brand")
	mw.WriteField("alt_text", "Axis logo")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var file models.MediaFile
	decode(t, w, &file)
	assert.Equal(t, "image/png", file.MimeType)
	assert.Equal(t, "brand", file.Folder)
	assert.Equal(t, "Axis logo", file.AltText)

	rel := strings.TrimPrefix(file.StoredPath, "/uploads/")
	stored := filepath.Join(env.module.media.Dir(), filepath.FromSlash(rel))
	_, err = os.Stat(stored)
	require.NoError(t, err)

	w = c.do(http.MethodDelete, "/admin/api/media/"+itoa(file.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
