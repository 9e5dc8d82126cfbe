package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ContactNew      = "new"
	ContactRead     = "read"
	ContactReplied  = "replied"
	ContactArchived = "archived"

	ConsultationPending   = "pending"
	ConsultationScheduled = "scheduled"
	ConsultationCompleted = "completed"
	ConsultationCancelled = "cancelled"

	ApplicationPending   = "pending"
	ApplicationReviewing = "reviewing"
	ApplicationInterview = "interview"
	ApplicationRejected  = "rejected"
	ApplicationHired     = "hired"

	SubscriptionActive       = "active"
	SubscriptionUnsubscribed = "unsubscribed"
)

var (
	ContactStatuses      = []string{ContactNew, ContactRead, ContactReplied, ContactArchived}
	ConsultationStatuses = []string{ConsultationPending, ConsultationScheduled, ConsultationCompleted, ConsultationCancelled}
	ApplicationStatuses  = []string{ApplicationPending, ApplicationReviewing, ApplicationInterview, ApplicationRejected, ApplicationHired}
	SubscriptionStatuses = []string{SubscriptionActive, SubscriptionUnsubscribed}
)

type ContactSubmission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"not null;index;size:191" json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	Subject   string    `json:"subject"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Status    string    `gorm:"not null;index;size:32" json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ContactSubmission) BeforeCreate(tx *gorm.DB) error {
	if s.Status == "" {
		s.Status = ContactNew
	}
	return nil
}

type ConsultationRequest struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	Email         string         `gorm:"not null;index;size:191" json:"email"`
	Phone         string         `json:"phone"`
	Company       string         `json:"company"`
	Services      datatypes.JSON `json:"services"`
	Budget        string         `json:"budget"`
	Timeline      string         `json:"timeline"`
	Message       string         `gorm:"type:text" json:"message"`
	PreferredDate *time.Time     `json:"preferred_date"`
	Status        string         `gorm:"not null;index;size:32" json:"status"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (r *ConsultationRequest) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = ConsultationPending
	}
	return nil
}

type NewsletterSubscription struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"uniqueIndex;size:191;not null" json:"email"`
	Name             string     `json:"name"`
	Status           string     `gorm:"not null;index;size:32" json:"status"`
	Source           string     `json:"source"`
	UnsubscribeToken string     `gorm:"index;size:64" json:"-"`
	SubscribedAt     time.Time  `json:"subscribed_at"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (n *NewsletterSubscription) BeforeCreate(tx *gorm.DB) error {
	if n.Status == "" {
		n.Status = SubscriptionActive
	}
	if n.SubscribedAt.IsZero() {
		n.SubscribedAt = time.Now()
	}
	return nil
}

type JobPosting struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Title          string         `gorm:"not null" json:"title"`
	Slug           string         `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Department     string         `gorm:"index;size:120" json:"department"`
	Location       string         `json:"location"`
	EmploymentType string         `json:"employment_type"`
	Description    string         `gorm:"type:text" json:"description"` // markdown
	Requirements   datatypes.JSON `json:"requirements"`
	SalaryRange    string         `json:"salary_range"`
	Active         bool           `gorm:"index" json:"active"`
	ClosesAt       *time.Time     `json:"closes_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AcceptsApplications reports whether candidates can still apply at now.
func (j *JobPosting) AcceptsApplications(now time.Time) bool {
	return j.Active && (j.ClosesAt == nil || j.ClosesAt.After(now))
}

type JobApplication struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	JobID        uint        `gorm:"not null;index" json:"job_id"`
	Job          *JobPosting `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"job,omitempty"`
	Name         string      `gorm:"not null" json:"name"`
	Email        string      `gorm:"not null;index;size:191" json:"email"`
	Phone        string      `json:"phone"`
	ResumeURL    string      `gorm:"not null" json:"resume_url"`
	CoverLetter  string      `gorm:"type:text" json:"cover_letter"`
	LinkedInURL  string      `json:"linkedin_url"`
	PortfolioURL string      `json:"portfolio_url"`
	Status       string      `gorm:"not null;index;size:32" json:"status"`
	Notes        string      `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (a *JobApplication) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = ApplicationPending
	}
	return nil
}
