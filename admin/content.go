package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"axiscyber/common"
	"axiscyber/email"
	"axiscyber/models"
	"axiscyber/store"
)

func (a *AdminModule) registerResources(api *gin.RouterGroup) {
	(&resource[models.Service]{
		repo: store.New[models.Service](a.db, store.Spec{
			SearchColumns: []string{"title", "short_description", "description"},
			SortColumns:   []string{"title", "created_at"},
			DefaultSort:   "sort_order",
			FilterColumns: []string{"active", "featured"},
			ToggleColumns: []string{"active", "featured"},
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, s *models.Service) map[string]string {
			s.Title = strings.TrimSpace(s.Title)
			fields := common.ValidateStruct(struct {
				Title            string `json:"title" validate:"required,max=200"`
				ShortDescription string `json:"short_description" validate:"max=500"`
				Icon             string `json:"icon" validate:"max=64"`
			}{s.Title, s.ShortDescription, s.Icon})
			return slugFor(fields, &s.Slug, s.Title)
		},
	}).register(api.Group("/services"))

	(&resource[models.TeamMember]{
		repo: store.New[models.TeamMember](a.db, store.Spec{
			SearchColumns: []string{"name", "role", "bio"},
			SortColumns:   []string{"name", "created_at"},
			DefaultSort:   "sort_order",
			FilterColumns: []string{"active"},
			ToggleColumns: []string{"active"},
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, m *models.TeamMember) map[string]string {
			m.Name = strings.TrimSpace(m.Name)
			m.Email = strings.ToLower(strings.TrimSpace(m.Email))
			fields := common.ValidateStruct(struct {
				Name        string `json:"name" validate:"required,max=120"`
				Role        string `json:"role" validate:"max=120"`
				Email       string `json:"email" validate:"omitempty,email"`
				LinkedInURL string `json:"linkedin_url" validate:"omitempty,http_url,max=512"`
				PhotoURL    string `json:"photo_url" validate:"max=512"`
			}{m.Name, m.Role, m.Email, m.LinkedInURL, m.PhotoURL})
			return slugFor(fields, &m.Slug, m.Name)
		},
	}).register(api.Group("/team"))

	(&resource[models.Testimonial]{
		repo: store.New[models.Testimonial](a.db, store.Spec{
			SearchColumns: []string{"client_name", "company", "quote"},
			SortColumns:   []string{"client_name", "rating"},
			FilterColumns: []string{"approved", "featured", "rating"},
			ToggleColumns: []string{"approved", "featured"},
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, t *models.Testimonial) map[string]string {
			if t.Rating == 0 {
				t.Rating = 5
			}
			return common.ValidateStruct(struct {
				ClientName string `json:"client_name" validate:"required,max=120"`
				Quote      string `json:"quote" validate:"required,max=2000"`
				Rating     int    `json:"rating" validate:"gte=1,lte=5"`
			}{strings.TrimSpace(t.ClientName), strings.TrimSpace(t.Quote), t.Rating})
		},
	}).register(api.Group("/testimonials"))

	caseStudies := store.New[models.CaseStudy](a.db, store.Spec{
		StatusColumn:  "status",
		Statuses:      models.PublishStatuses,
		SearchColumns: []string{"title", "client", "industry", "summary"},
		SortColumns:   []string{"title", "published_at"},
		FilterColumns: []string{"service_id", "industry", "featured"},
		ToggleColumns: []string{"featured"},
		Preloads:      []string{"Service"},
	})
	(&resource[models.CaseStudy]{
		repo:      caseStudies,
		creatable: true,
		purge:     a.purge,
		setStatus: publishStatus(a, caseStudies),
		prepare: func(_ context.Context, cs *models.CaseStudy) map[string]string {
			cs.Title = strings.TrimSpace(cs.Title)
			fields := validatePublishable(cs.Title, &cs.Status)
			fields = slugFor(fields, &cs.Slug, cs.Title)
			a.stampPublished(cs.Status, &cs.PublishedAt)
			return fields
		},
	}).register(api.Group("/case-studies"))

	posts := store.New[models.BlogPost](a.db, store.Spec{
		StatusColumn:  "status",
		Statuses:      models.PublishStatuses,
		SearchColumns: []string{"title", "excerpt", "content"},
		SortColumns:   []string{"title", "published_at"},
		FilterColumns: []string{"category_id", "author_id", "featured"},
		ToggleColumns: []string{"featured"},
		Preloads:      []string{"Author", "Category", "Tags"},
	})
	postResource := &resource[models.BlogPost]{
		repo:      posts,
		creatable: true,
		purge:     a.purge,
		setStatus: publishStatus(a, posts),
		strip:     []string{"tags"},
		related:   retag,
		prepare: func(_ context.Context, p *models.BlogPost) map[string]string {
			p.Title = strings.TrimSpace(p.Title)
			fields := validatePublishable(p.Title, &p.Status)
			fields = slugFor(fields, &p.Slug, p.Title)
			p.ReadingMinutes = common.ReadingMinutes(p.Content)
			a.stampPublished(p.Status, &p.PublishedAt)
			return fields
		},
	}
	postGroup := api.Group("/blog/posts")
	postResource.register(postGroup)
	a.registerBlogRoutes(postGroup, postResource)

	(&resource[models.BlogCategory]{
		repo: store.New[models.BlogCategory](a.db, store.Spec{
			SearchColumns: []string{"name", "description"},
			SortColumns:   []string{"created_at"},
			DefaultSort:   "name",
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, cat *models.BlogCategory) map[string]string {
			cat.Name = strings.TrimSpace(cat.Name)
			return slugFor(validateName(cat.Name), &cat.Slug, cat.Name)
		},
	}).register(api.Group("/blog/categories"))

	(&resource[models.BlogTag]{
		repo: store.New[models.BlogTag](a.db, store.Spec{
			SearchColumns: []string{"name"},
			SortColumns:   []string{"created_at"},
			DefaultSort:   "name",
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, tag *models.BlogTag) map[string]string {
			tag.Name = strings.TrimSpace(tag.Name)
			return slugFor(validateName(tag.Name), &tag.Slug, tag.Name)
		},
	}).register(api.Group("/blog/tags"))

	(&resource[models.JobPosting]{
		repo: store.New[models.JobPosting](a.db, store.Spec{
			SearchColumns: []string{"title", "department", "location", "description"},
			SortColumns:   []string{"title", "department", "closes_at"},
			FilterColumns: []string{"department", "active", "employment_type"},
			ToggleColumns: []string{"active"},
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, j *models.JobPosting) map[string]string {
			j.Title = strings.TrimSpace(j.Title)
			fields := common.ValidateStruct(struct {
				Title          string `json:"title" validate:"required,max=200"`
				Department     string `json:"department" validate:"max=120"`
				EmploymentType string `json:"employment_type" validate:"max=64"`
			}{j.Title, j.Department, j.EmploymentType})
			return slugFor(fields, &j.Slug, j.Title)
		},
	}).register(api.Group("/jobs"))

	(&resource[models.JobApplication]{
		repo: store.New[models.JobApplication](a.db, store.Spec{
			StatusColumn:  "status",
			Statuses:      models.ApplicationStatuses,
			SearchColumns: []string{"name", "email", "cover_letter"},
			SortColumns:   []string{"name"},
			FilterColumns: []string{"job_id"},
			Preloads:      []string{"Job"},
		}),
		editable: []string{"status", "notes"},
		purge:    a.purge,
		prepare: func(_ context.Context, app *models.JobApplication) map[string]string {
			return validateStatus(app.Status, models.ApplicationStatuses)
		},
	}).register(api.Group("/applications"))

	(&resource[models.ContactSubmission]{
		repo: store.New[models.ContactSubmission](a.db, store.Spec{
			StatusColumn:  "status",
			Statuses:      models.ContactStatuses,
			SearchColumns: []string{"name", "email", "company", "subject", "message"},
			SortColumns:   []string{"name", "email"},
			FilterColumns: []string{"source"},
		}),
		editable: []string{"status"},
		purge:    a.purge,
		prepare: func(_ context.Context, s *models.ContactSubmission) map[string]string {
			return validateStatus(s.Status, models.ContactStatuses)
		},
	}).register(api.Group("/contacts"))

	(&resource[models.ConsultationRequest]{
		repo: store.New[models.ConsultationRequest](a.db, store.Spec{
			StatusColumn:  "status",
			Statuses:      models.ConsultationStatuses,
			SearchColumns: []string{"name", "email", "company", "message"},
			SortColumns:   []string{"name", "preferred_date"},
		}),
		editable: []string{"status", "preferred_date"},
		purge:    a.purge,
		prepare: func(_ context.Context, r *models.ConsultationRequest) map[string]string {
			return validateStatus(r.Status, models.ConsultationStatuses)
		},
	}).register(api.Group("/consultations"))

	subscribers := store.New[models.NewsletterSubscription](a.db, store.Spec{
		StatusColumn:  "status",
		Statuses:      models.SubscriptionStatuses,
		SearchColumns: []string{"email", "name"},
		SortColumns:   []string{"email", "subscribed_at"},
		FilterColumns: []string{"source"},
	})
	(&resource[models.NewsletterSubscription]{
		repo:      subscribers,
		editable:  []string{"name", "status"},
		purge:     a.purge,
		setStatus: a.subscriptionStatus(subscribers),
		prepare: func(_ context.Context, s *models.NewsletterSubscription) map[string]string {
			fields := validateStatus(s.Status, models.SubscriptionStatuses)
			switch {
			case s.Status == models.SubscriptionUnsubscribed && s.UnsubscribedAt == nil:
				now := a.now()
				s.UnsubscribedAt = &now
			case s.Status == models.SubscriptionActive:
				s.UnsubscribedAt = nil
			}
			return fields
		},
	}).register(api.Group("/subscribers"))

	(&resource[models.EmailTemplate]{
		repo: store.New[models.EmailTemplate](a.db, store.Spec{
			SearchColumns: []string{"name", "subject"},
			SortColumns:   []string{"name"},
			FilterColumns: []string{"category", "active"},
			ToggleColumns: []string{"active"},
		}),
		creatable: true,
		purge:     a.purge,
		prepare: func(_ context.Context, t *models.EmailTemplate) map[string]string {
			t.Name = strings.TrimSpace(t.Name)
			fields := common.ValidateStruct(struct {
				Name     string `json:"name" validate:"required,max=120"`
				Subject  string `json:"subject" validate:"required,max=255"`
				Body     string `json:"body" validate:"required"`
				Category string `json:"category" validate:"max=64"`
			}{t.Name, t.Subject, t.Body, t.Category})
			if fields == nil {
				fields = checkTemplate(t.Subject, t.Body)
			}
			return slugFor(fields, &t.Slug, t.Name)
		},
	}).register(api.Group("/email/templates"))

	campaigns := store.New[models.EmailCampaign](a.db, store.Spec{
		StatusColumn:  "status",
		Statuses:      models.CampaignStatuses,
		SearchColumns: []string{"name", "subject"},
		SortColumns:   []string{"name", "scheduled_at", "sent_at"},
		FilterColumns: []string{"template_id"},
		Preloads:      []string{"Template"},
	})
	campaignResource := &resource[models.EmailCampaign]{
		repo:      campaigns,
		creatable: true,
		purge:     func(context.Context) {},
		strip:     []string{"status", "scheduled_at", "sent_at", "recipient_count", "sent_count", "failed_count", "template"},
		setStatus: a.campaignStatus(campaigns),
		prepare:   a.prepareCampaign,
	}
	campaignGroup := api.Group("/email/campaigns")
	campaignResource.register(campaignGroup)
	a.registerCampaignRoutes(campaignGroup, campaignResource)
}

// slugFor fills an empty slug from source and checks the result.
func slugFor(fields map[string]string, slug *string, source string) map[string]string {
	*slug = strings.TrimSpace(*slug)
	if *slug == "" {
		*slug = common.Slugify(source)
	}
	switch {
	case *slug == "":
		fields = withField(fields, "slug", "is required")
	case !common.IsValidSlug(*slug):
		fields = withField(fields, "slug", "must contain only lowercase letters, digits and hyphens")
	case len(*slug) > 191:
		fields = withField(fields, "slug", "must be at most 191 characters")
	}
	return fields
}

func withField(fields map[string]string, name, message string) map[string]string {
	if fields == nil {
		fields = map[string]string{}
	}
	if _, ok := fields[name]; !ok {
		fields[name] = message
	}
	return fields
}

func validateName(name string) map[string]string {
	return common.ValidateStruct(struct {
		Name string `json:"name" validate:"required,max=120"`
	}{name})
}

func validateStatus(status string, allowed []string) map[string]string {
	for _, s := range allowed {
		if status == s {
			return nil
		}
	}
	return map[string]string{"status": "must be one of: " + strings.Join(allowed, ", ")}
}

// validatePublishable checks a post or case study title and defaults its status.
func validatePublishable(title string, status *string) map[string]string {
	if *status == "" {
		*status = models.StatusDraft
	}
	fields := common.ValidateStruct(struct {
		Title string `json:"title" validate:"required,max=200"`
	}{title})
	if bad := validateStatus(*status, models.PublishStatuses); bad != nil {
		fields = withField(fields, "status", bad["status"])
	}
	return fields
}

// stampPublished sets published_at the first time a row goes live.
func (a *AdminModule) stampPublished(status string, publishedAt **time.Time) {
	if status == models.StatusPublished && *publishedAt == nil {
		now := a.now()
		*publishedAt = &now
	}
}

// publishStatus moves a post or case study to status. Publishing makes the
// row visible immediately, so a missing or future published_at becomes now.
func publishStatus[T any](a *AdminModule, repo *store.Repository[T]) func(context.Context, uint, string) error {
	return func(ctx context.Context, id uint, status string) error {
		return repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.With(tx).SetStatus(ctx, id, status); err != nil {
				return err
			}
			if status != models.StatusPublished {
				return nil
			}
			now := a.now()
			return tx.Model(new(T)).
				Where("id = ? AND (published_at IS NULL OR published_at > ?)", id, now).
				Update("published_at", now).Error
		})
	}
}

func (a *AdminModule) subscriptionStatus(repo *store.Repository[models.NewsletterSubscription]) func(context.Context, uint, string) error {
	return func(ctx context.Context, id uint, status string) error {
		return repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.With(tx).SetStatus(ctx, id, status); err != nil {
				return err
			}
			var unsubscribedAt any
			if status == models.SubscriptionUnsubscribed {
				unsubscribedAt = a.now()
			}
			return tx.Model(&models.NewsletterSubscription{}).Where("id = ?", id).
				Update("unsubscribed_at", unsubscribedAt).Error
		})
	}
}

// retag replaces a post's tags with the names in body["tags"], creating
// tags that do not exist yet. A missing key leaves the tags untouched.
func retag(tx *gorm.DB, post *models.BlogPost, body map[string]json.RawMessage) error {
	raw, ok := body["tags"]
	if !ok {
		return nil
	}
	names, err := parseTagList(raw)
	if err != nil {
		return &common.FieldErrors{Fields: map[string]string{"tags": "must be a comma-separated string or a list of names"}}
	}

	tags := make([]models.BlogTag, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		slug := common.Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		var tag models.BlogTag
		err := tx.Where(models.BlogTag{Slug: slug}).Attrs(models.BlogTag{Name: name}).FirstOrCreate(&tag).Error
		if err != nil {
			return err
		}
		tags = append(tags, tag)
	}
	return tx.Model(post).Association("Tags").Replace(tags)
}

func parseTagList(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, err
		}
		list = strings.Split(joined, ",")
	}

	names := make([]string, 0, len(list))
	for _, n := range list {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

func checkTemplate(subject, body string) map[string]string {
	_, _, err := email.Render(subject, body, email.TemplateData{})
	if err != nil {
		return map[string]string{"body": "is not a valid template: " + err.Error()}
	}
	return nil
}

func (a *AdminModule) prepareCampaign(ctx context.Context, campaign *models.EmailCampaign) map[string]string {
	if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignScheduled && campaign.Status != "" {
		return map[string]string{"status": "campaign can no longer be edited"}
	}

	campaign.Name = strings.TrimSpace(campaign.Name)
	fields := common.ValidateStruct(struct {
		Name    string `json:"name" validate:"required,max=120"`
		Subject string `json:"subject" validate:"max=255"`
	}{campaign.Name, campaign.Subject})

	campaign.Template = nil
	if campaign.TemplateID != nil {
		var tmpl models.EmailTemplate
		if err := a.db.WithContext(ctx).First(&tmpl, *campaign.TemplateID).Error; err != nil {
			return withField(fields, "template_id", "does not exist")
		}
		campaign.Template = &tmpl
	} else {
		if strings.TrimSpace(campaign.Body) == "" {
			fields = withField(fields, "body", "is required when no template is selected")
		}
		if strings.TrimSpace(campaign.Subject) == "" {
			fields = withField(fields, "subject", "is required when no template is selected")
		}
	}
	if fields != nil {
		return fields
	}

	subject, body := campaign.Content()
	return checkTemplate(subject, body)
}

// campaignStatus only lets admins put a scheduled campaign back to draft.
// Scheduling and sending go through their own endpoints.
func (a *AdminModule) campaignStatus(repo *store.Repository[models.EmailCampaign]) func(context.Context, uint, string) error {
	return func(ctx context.Context, id uint, status string) error {
		if status != models.CampaignDraft {
			return &common.FieldErrors{Fields: map[string]string{"status": "can only be set back to draft"}}
		}
		result := repo.DB(ctx).Model(&models.EmailCampaign{}).
			Where("id = ? AND status IN ?", id, []string{models.CampaignDraft, models.CampaignScheduled}).
			Updates(map[string]any{"status": models.CampaignDraft, "scheduled_at": nil})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := repo.Get(ctx, id); err != nil {
				return err
			}
			return fmt.Errorf("%w: campaign has already been sent", email.ErrCampaignNotSendable)
		}
		return nil
	}
}
