package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/email"
	"axiscyber/models"
	"axiscyber/ratelimit"
	"axiscyber/testutil"
	"axiscyber/views"
)

type outbox struct {
	mu   sync.Mutex
	sent []email.Message
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

type env struct {
	router    *gin.Engine
	db        *gorm.DB
	analytics *analytics.AnalyticsModule
	notifier  *email.Notifier
	outbox    *outbox
	module    *LeadsModule
}

func setup(t *testing.T, limiter *ratelimit.Limiter) *env {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t,
		&models.ContactSubmission{}, &models.ConsultationRequest{}, &models.NewsletterSubscription{},
		&models.JobPosting{}, &models.JobApplication{}, &models.EmailTemplate{},
	)
	a := analytics.NewAnalyticsModule(db, analytics.Options{})
	box := &outbox{}
	notifier := email.NewNotifier(db, box, "sales@axiscyber.tech", "Axis Cyber")

	var limit gin.HandlerFunc
	if limiter != nil {
		limit = limiter.Middleware()
	}

	r := gin.New()
	require.NoError(t, views.Install(r, views.Site{Name: "Axis Cyber", Domain: "http://localhost"}))
	m := NewLeadsModule(db, a, notifier, limit)
	m.RegisterRoutes(r)

	return &env{router: r, db: db, analytics: a, notifier: notifier, outbox: box, module: m}
}

// wait drains the background writers so the database is quiescent.
func (e *env) wait() {
	e.notifier.Wait()
	e.analytics.Wait()
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func (e *env) post(t *testing.T, path string, body any) (*httptest.ResponseRecorder, envelope) {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func count[T any](t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(new(T)).Count(&n).Error)
	return n
}

func TestContact_Success(t *testing.T) {
	e := setup(t, nil)

	w, resp := e.post(t, "/api/contact", map[string]any{
		"name":    "Ada <b>Lovelace</b>",
		"email":   "ada@example.com",
		"company": "Analytical Engines",
		"message": "We need a <script>alert(1)</script>pentest & a review",
	})
	e.wait()

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)

	var stored models.ContactSubmission
	require.NoError(t, e.db.First(&stored).Error)
	assert.Equal(t, models.ContactNew, stored.Status)
	assert.Equal(t, "Ada Lovelace", stored.Name)
	assert.Equal(t, "We need a pentest & a review", stored.Message)
	assert.False(t, stored.CreatedAt.IsZero())

	var forms []analytics.FormEvent
	require.NoError(t, e.db.Find(&forms).Error)
	require.Len(t, forms, 1)
	assert.True(t, forms[0].Success)
	assert.Equal(t, FormContact, forms[0].Form)

	require.Len(t, e.outbox.sent, 1)
	assert.Equal(t, "sales@axiscyber.tech", e.outbox.sent[0].To)
}

func TestContact_ValidationInsertsNothing(t *testing.T) {
	e := setup(t, nil)

	tests := []struct {
		name   string
		body   map[string]any
		fields []string
	}{
		{"empty", map[string]any{}, []string{"name", "email", "message"}},
		{"bad email", map[string]any{"name": "A", "email": "not-an-email", "message": "hi"}, []string{"email"}},
		{"markup only", map[string]any{"name": "<i></i>", "email": "a@b.co", "message": "<b></b>"}, []string{"name", "message"}},
		{"too long", map[string]any{"name": strings.Repeat("x", 121), "email": "a@b.co", "message": "hi"}, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := e.post(t, "/api/contact", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, "validation failed", resp.Error)
			assert.Len(t, resp.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, resp.Fields, f)
			}
		})
	}
	e.wait()

	assert.Zero(t, count[models.ContactSubmission](t, e.db))

	var failed int64
	e.db.Model(&analytics.FormEvent{}).Where("success = ?", false).Count(&failed)
	assert.Equal(t, int64(len(tests)), failed)
}

func TestContact_InvalidBody(t *testing.T) {
	e := setup(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	e.wait()

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, count[models.ContactSubmission](t, e.db))
}

func TestContact_FormEncoded(t *testing.T) {
	e := setup(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("name=Bob&email=bob%40example.com&message=Hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	e.wait()

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(1), count[models.ContactSubmission](t, e.db))
}

func TestConsultation(t *testing.T) {
	e := setup(t, nil)

	w, resp := e.post(t, "/api/consultation", map[string]any{
		"name": "Grace", "email": "grace@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Fields, "services")

	w, resp = e.post(t, "/api/consultation", map[string]any{
		"name": "Grace", "email": "grace@example.com", "services": []string{"Cloud Security"},
		"preferred_date": "05/01/2024",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Fields, "preferred_date")

	w, _ = e.post(t, "/api/consultation", map[string]any{
		"name": "Grace", "email": "grace@example.com",
		"services":       []string{"Cloud Security", "Penetration Testing"},
		"preferred_date": "2024-05-01",
		"budget":         "$20k",
	})
	e.wait()
	assert.Equal(t, http.StatusCreated, w.Code)

	var stored models.ConsultationRequest
	require.NoError(t, e.db.First(&stored).Error)
	assert.Equal(t, models.ConsultationPending, stored.Status)
	assert.Equal(t, []string{"Cloud Security", "Penetration Testing"}, models.StringList(stored.Services))
	require.NotNil(t, stored.PreferredDate)
	assert.Equal(t, "2024-05-01", stored.PreferredDate.Format("2006-01-02"))
}

func TestNewsletter_Idempotent(t *testing.T) {
	e := setup(t, nil)

	w, _ := e.post(t, "/api/newsletter", map[string]any{"email": "Reader@Example.com"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp := e.post(t, "/api/newsletter", map[string]any{"email": "reader@example.com "})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	e.wait()

	assert.Equal(t, int64(1), count[models.NewsletterSubscription](t, e.db))

	var sub models.NewsletterSubscription
	require.NoError(t, e.db.First(&sub).Error)
	assert.Equal(t, "reader@example.com", sub.Email)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Len(t, sub.UnsubscribeToken, 32)
}

func TestNewsletter_UnsubscribeAndReactivate(t *testing.T) {
	e := setup(t, nil)

	e.post(t, "/api/newsletter", map[string]any{"email": "reader@example.com"})
	e.wait()
	var sub models.NewsletterSubscription
	require.NoError(t, e.db.First(&sub).Error)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/newsletter/unsubscribe/"+sub.UnsubscribeToken, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reader@example.com")

	require.NoError(t, e.db.First(&sub, sub.ID).Error)
	assert.Equal(t, models.SubscriptionUnsubscribed, sub.Status)
	assert.NotNil(t, sub.UnsubscribedAt)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/newsletter/unsubscribe/0123456789abcdef0123", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	resp, _ := e.post(t, "/api/newsletter", map[string]any{"email": "reader@example.com"})
	e.wait()
	assert.Equal(t, http.StatusOK, resp.Code)

	var reloaded models.NewsletterSubscription
	require.NoError(t, e.db.First(&reloaded, sub.ID).Error)
	assert.Equal(t, models.SubscriptionActive, reloaded.Status)
	assert.Nil(t, reloaded.UnsubscribedAt)
	assert.Equal(t, int64(1), count[models.NewsletterSubscription](t, e.db))
}

func TestApplication(t *testing.T) {
	e := setup(t, nil)

	closed := time.Now().Add(-24 * time.Hour)
	jobs := []models.JobPosting{
		{Title: "Penetration Tester", Slug: "penetration-tester", Active: true},
		{Title: "Closed Role", Slug: "closed-role", Active: true, ClosesAt: &closed},
		{Title: "Hidden Role", Slug: "hidden-role", Active: false},
	}
	require.NoError(t, e.db.Create(&jobs).Error)

	valid := map[string]any{
		"name": "Linus", "email": "linus@example.com", "resume_url": "https://example.com/cv.pdf",
	}

	for _, slug := range []string{"closed-role", "hidden-role", "nope"} {
		w, _ := e.post(t, "/api/careers/"+slug+"/apply", valid)
		assert.Equal(t, http.StatusNotFound, w.Code, slug)
	}

	w, resp := e.post(t, "/api/careers/penetration-tester/apply", map[string]any{
		"name": "Linus", "email": "linus@example.com", "resume_url": "javascript:alert(1)",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Fields, "resume_url")

	w, _ = e.post(t, "/api/careers/penetration-tester/apply", valid)
	e.wait()
	assert.Equal(t, http.StatusCreated, w.Code)

	var apps []models.JobApplication
	require.NoError(t, e.db.Find(&apps).Error)
	require.Len(t, apps, 1)
	assert.Equal(t, jobs[0].ID, apps[0].JobID)
	assert.Equal(t, models.ApplicationPending, apps[0].Status)
}

func TestRateLimit(t *testing.T) {
	e := setup(t, ratelimit.PerMinute(2))

	body := map[string]any{"email": "a@example.com"}
	for i := 0; i < 2; i++ {
		w, _ := e.post(t, "/api/newsletter", body)
		assert.Less(t, w.Code, 300)
	}
	w, resp := e.post(t, "/api/newsletter", body)
	e.wait()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.False(t, resp.Success)
}
