// Package leads handles the public lead-capture forms: contact, consultation,
// newsletter and job applications.
package leads

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/common"
	"axiscyber/email"
	"axiscyber/models"
	"axiscyber/store"
)

const (
	FormContact      = "contact"
	FormConsultation = "consultation"
	FormNewsletter   = "newsletter"
	FormApplication  = "application"
)

type LeadsModule struct {
	db            *gorm.DB
	contacts      *store.Repository[models.ContactSubmission]
	consultations *store.Repository[models.ConsultationRequest]
	subscribers   *store.Repository[models.NewsletterSubscription]
	jobs          *store.Repository[models.JobPosting]
	applications  *store.Repository[models.JobApplication]
	analytics     *analytics.AnalyticsModule
	notifier      *email.Notifier
	limit         gin.HandlerFunc
	now           func() time.Time
}

// NewLeadsModule wires the form handlers. limit guards every submission
// endpoint; analytics and notifier may be nil.
func NewLeadsModule(db *gorm.DB, a *analytics.AnalyticsModule, notifier *email.Notifier, limit gin.HandlerFunc) *LeadsModule {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	return &LeadsModule{
		db:            db,
		contacts:      store.New[models.ContactSubmission](db, store.Spec{}),
		consultations: store.New[models.ConsultationRequest](db, store.Spec{}),
		subscribers:   store.New[models.NewsletterSubscription](db, store.Spec{}),
		jobs:          store.New[models.JobPosting](db, store.Spec{}),
		applications:  store.New[models.JobApplication](db, store.Spec{}),
		analytics:     a,
		notifier:      notifier,
		limit:         limit,
		now:           time.Now,
	}
}

func (m *LeadsModule) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api", m.limit)
	{
		api.POST("/contact", m.submitContact)
		api.POST("/consultation", m.submitConsultation)
		api.POST("/newsletter", m.subscribe)
		api.POST("/careers/:slug/apply", m.submitApplication)
	}
	router.GET("/newsletter/unsubscribe/:token", m.unsubscribe)
}

// bind decodes the body into in, cleans it and validates it. It answers the
// request and records the failed attempt when the input is rejected.
func (m *LeadsModule) bind(c *gin.Context, form string, in interface{ clean() }) bool {
	if err := c.ShouldBind(in); err != nil {
		m.analytics.RecordForm(c, form, false, "")
		common.Fail(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	in.clean()
	if fields := common.ValidateStruct(in); len(fields) > 0 {
		m.analytics.RecordForm(c, form, false, common.FirstField(fields))
		common.Invalid(c, fields)
		return false
	}
	return true
}

func (m *LeadsModule) storeFailed(c *gin.Context, form string, err error) {
	zap.S().Errorw("storing lead", "form", form, "error", err)
	m.analytics.RecordForm(c, form, false, "")
	common.Fail(c, http.StatusInternalServerError, "could not save your request, please try again")
}

func (m *LeadsModule) submitContact(c *gin.Context) {
	var in ContactInput
	if !m.bind(c, FormContact, &in) {
		return
	}

	submission := models.ContactSubmission{
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Company: in.Company,
		Subject: in.Subject,
		Message: in.Message,
		Source:  in.Source,
	}
	if err := m.contacts.Create(c.Request.Context(), &submission); err != nil {
		m.storeFailed(c, FormContact, err)
		return
	}

	m.analytics.RecordForm(c, FormContact, true, "")
	m.notifier.NotifyLead(email.Lead{
		Kind:        FormContact,
		Name:        submission.Name,
		Email:       submission.Email,
		AckTemplate: "contact-acknowledgement",
		Fields: map[string]string{
			"company": submission.Company,
			"phone":   submission.Phone,
			"subject": submission.Subject,
			"message": submission.Message,
		},
	})

	common.Created(c, submission)
}

func (m *LeadsModule) submitConsultation(c *gin.Context) {
	var in ConsultationInput
	if !m.bind(c, FormConsultation, &in) {
		return
	}

	request := models.ConsultationRequest{
		Name:          in.Name,
		Email:         in.Email,
		Phone:         in.Phone,
		Company:       in.Company,
		Services:      models.JSONList(in.Services),
		Budget:        in.Budget,
		Timeline:      in.Timeline,
		Message:       in.Message,
		PreferredDate: in.preferredDate(),
	}
	if err := m.consultations.Create(c.Request.Context(), &request); err != nil {
		m.storeFailed(c, FormConsultation, err)
		return
	}

	m.analytics.RecordForm(c, FormConsultation, true, "")
	m.notifier.NotifyLead(email.Lead{
		Kind:        FormConsultation,
		Name:        request.Name,
		Email:       request.Email,
		AckTemplate: "consultation-confirmation",
		Fields: map[string]string{
			"company":        request.Company,
			"services":       strings.Join(in.Services, ", "),
			"budget":         request.Budget,
			"timeline":       request.Timeline,
			"preferred_date": in.PreferredDate,
			"message":        request.Message,
		},
	})

	common.Created(c, request)
}

// subscribe is idempotent: an active subscriber gets a success without a
// new row and an unsubscribed one is reactivated.
func (m *LeadsModule) subscribe(c *gin.Context) {
	var in NewsletterInput
	if !m.bind(c, FormNewsletter, &in) {
		return
	}

	db := m.db.WithContext(c.Request.Context())

	existing, err := m.subscribers.GetBy(c.Request.Context(), "email", in.Email)
	switch {
	case err == nil:
		sub := *existing
		if sub.Status != models.SubscriptionActive {
			now := m.now()
			err = db.Model(&sub).Updates(map[string]any{
				"status":          models.SubscriptionActive,
				"subscribed_at":   now,
				"unsubscribed_at": nil,
			}).Error
			if err != nil {
				m.storeFailed(c, FormNewsletter, err)
				return
			}
			sub.Status = models.SubscriptionActive
			sub.SubscribedAt = now
			sub.UnsubscribedAt = nil
		}
		m.analytics.RecordForm(c, FormNewsletter, true, "")
		common.OK(c, sub)
		return

	case !errors.Is(err, store.ErrNotFound):
		m.storeFailed(c, FormNewsletter, err)
		return
	}

	sub := models.NewsletterSubscription{
		Email:            in.Email,
		Name:             in.Name,
		Source:           in.Source,
		UnsubscribeToken: newToken(),
		SubscribedAt:     m.now(),
	}
	if err := m.subscribers.Create(c.Request.Context(), &sub); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent request subscribed the same address.
			m.analytics.RecordForm(c, FormNewsletter, true, "")
			common.OK(c, gin.H{"email": in.Email, "status": models.SubscriptionActive})
			return
		}
		m.storeFailed(c, FormNewsletter, err)
		return
	}

	m.analytics.RecordForm(c, FormNewsletter, true, "")
	common.Created(c, sub)
}

func (m *LeadsModule) unsubscribe(c *gin.Context) {
	token := c.Param("token")
	if len(token) < 16 || len(token) > 64 {
		common.RenderError(c, http.StatusNotFound, "This unsubscribe link is not valid.")
		return
	}

	db := m.db.WithContext(c.Request.Context())

	sub, err := m.subscribers.GetBy(c.Request.Context(), "unsubscribe_token", token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.S().Errorw("looking up unsubscribe token", "error", err)
		}
		common.RenderError(c, http.StatusNotFound, "This unsubscribe link is not valid.")
		return
	}

	if sub.Status != models.SubscriptionUnsubscribed {
		err := db.Model(sub).Updates(map[string]any{
			"status":          models.SubscriptionUnsubscribed,
			"unsubscribed_at": m.now(),
		}).Error
		if err != nil {
			zap.S().Errorw("unsubscribing", "subscription", sub.ID, "error", err)
			common.RenderError(c, http.StatusInternalServerError, "Something went wrong, please try again.")
			return
		}
	}

	c.HTML(http.StatusOK, "newsletter_unsubscribed.html", gin.H{
		"title": "Unsubscribed",
		"email": sub.Email,
	})
}

func (m *LeadsModule) submitApplication(c *gin.Context) {
	job, err := m.jobs.GetBy(c.Request.Context(), "slug", c.Param("slug"))
	if err != nil || !job.AcceptsApplications(m.now()) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			zap.S().Errorw("loading job posting", "slug", c.Param("slug"), "error", err)
		}
		m.analytics.RecordForm(c, FormApplication, false, "job")
		common.Fail(c, http.StatusNotFound, "this position is not accepting applications")
		return
	}

	var in ApplicationInput
	if !m.bind(c, FormApplication, &in) {
		return
	}

	application := models.JobApplication{
		JobID:        job.ID,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		ResumeURL:    in.ResumeURL,
		CoverLetter:  in.CoverLetter,
		LinkedInURL:  in.LinkedInURL,
		PortfolioURL: in.PortfolioURL,
	}
	if err := m.applications.Create(c.Request.Context(), &application); err != nil {
		m.storeFailed(c, FormApplication, err)
		return
	}

	m.analytics.RecordForm(c, FormApplication, true, "")
	m.notifier.NotifyLead(email.Lead{
		Kind:        FormApplication,
		Name:        application.Name,
		Email:       application.Email,
		AckTemplate: "application-received",
		Fields: map[string]string{
			"position":  job.Title,
			"resume":    application.ResumeURL,
			"linkedin":  application.LinkedInURL,
			"portfolio": application.PortfolioURL,
		},
	})

	common.Created(c, application)
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
