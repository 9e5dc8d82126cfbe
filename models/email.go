package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignSent      = "sent"
	CampaignFailed    = "failed"
)

var CampaignStatuses = []string{CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignFailed}

// EmailTemplate bodies are text/template sources rendered with recipient data.
type EmailTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Subject   string    `gorm:"not null" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Category  string    `gorm:"index;size:64" json:"category"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EmailCampaign struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"not null" json:"name"`
	TemplateID     *uint          `gorm:"index" json:"template_id"`
	Template       *EmailTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Subject        string         `json:"subject"`
	Body           string         `gorm:"type:text" json:"body"`
	Status         string         `gorm:"not null;index;size:32" json:"status"`
	ScheduledAt    *time.Time     `gorm:"index" json:"scheduled_at"`
	SentAt         *time.Time     `json:"sent_at"`
	RecipientCount int            `json:"recipient_count"`
	SentCount      int            `json:"sent_count"`
	FailedCount    int            `json:"failed_count"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (c *EmailCampaign) BeforeCreate(tx *gorm.DB) error {
	if c.Status == "" {
		c.Status = CampaignDraft
	}
	return nil
}

// Content returns the subject and body sources to render. With a template,
// the template body is the layout and the campaign body fills {{.Content}}.
func (c *EmailCampaign) Content() (subject, body string) {
	subject, body = c.Subject, c.Body
	if c.Template != nil {
		if subject == "" {
			subject = c.Template.Subject
		}
		body = c.Template.Body
	}
	return subject, body
}
