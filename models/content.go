package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// PublishStatuses are the lifecycle states shared by posts and case studies.
var PublishStatuses = []string{StatusDraft, StatusScheduled, StatusPublished, StatusArchived}

type BlogCategory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type BlogTag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BlogPost struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Title          string        `gorm:"not null" json:"title"`
	Slug           string        `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Excerpt        string        `gorm:"type:text" json:"excerpt"`
	Content        string        `gorm:"type:text" json:"content"` // markdown
	CoverImage     string        `json:"cover_image"`
	AuthorID       *uint         `gorm:"index" json:"author_id"`
	Author         *TeamMember   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	CategoryID     *uint         `gorm:"index" json:"category_id"`
	Category       *BlogCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tags           []BlogTag     `gorm:"many2many:blog_post_tags;" json:"tags,omitempty"`
	Status         string        `gorm:"not null;index;size:32" json:"status"`
	Featured       bool          `gorm:"default:false;index" json:"featured"`
	ReadingMinutes int           `json:"reading_minutes"`
	PublishedAt    *time.Time    `gorm:"index" json:"published_at"`
	CreatedAt      time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p *BlogPost) BeforeCreate(tx *gorm.DB) error {
	if p.Status == "" {
		p.Status = StatusDraft
	}
	return nil
}

// IsPublic reports whether the post may be shown on the public site at now.
func (p *BlogPost) IsPublic(now time.Time) bool {
	return p.Status == StatusPublished && (p.PublishedAt == nil || !p.PublishedAt.After(now))
}

type Service struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Title            string         `gorm:"not null" json:"title"`
	Slug             string         `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	ShortDescription string         `gorm:"type:text" json:"short_description"`
	Description      string         `gorm:"type:text" json:"description"` // markdown
	Icon             string         `json:"icon"`
	Features         datatypes.JSON `json:"features"`
	SortOrder        int            `gorm:"default:0" json:"sort_order"`
	Active           bool           `gorm:"index" json:"active"`
	Featured         bool           `gorm:"default:false" json:"featured"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type TeamMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Role        string    `json:"role"`
	Bio         string    `gorm:"type:text" json:"bio"`
	PhotoURL    string    `json:"photo_url"`
	Email       string    `json:"email"`
	LinkedInURL string    `json:"linkedin_url"`
	SortOrder   int       `gorm:"default:0" json:"sort_order"`
	Active      bool      `gorm:"index" json:"active"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Testimonial struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClientName string    `gorm:"not null" json:"client_name"`
	ClientRole string    `json:"client_role"`
	Company    string    `json:"company"`
	Quote      string    `gorm:"type:text;not null" json:"quote"`
	Rating     int       `gorm:"default:5" json:"rating"`
	AvatarURL  string    `json:"avatar_url"`
	Approved   bool      `gorm:"default:false;index" json:"approved"`
	Featured   bool      `gorm:"default:false" json:"featured"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CaseStudy struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Title        string         `gorm:"not null" json:"title"`
	Slug         string         `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Client       string         `json:"client"`
	Industry     string         `gorm:"index;size:120" json:"industry"`
	Summary      string         `gorm:"type:text" json:"summary"`
	Challenge    string         `gorm:"type:text" json:"challenge"` // markdown
	Solution     string         `gorm:"type:text" json:"solution"`  // markdown
	Results      string         `gorm:"type:text" json:"results"`   // markdown
	Technologies datatypes.JSON `json:"technologies"`
	CoverImage   string         `json:"cover_image"`
	ServiceID    *uint          `gorm:"index" json:"service_id"`
	Service      *Service       `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	Status       string         `gorm:"not null;index;size:32" json:"status"`
	Featured     bool           `gorm:"default:false" json:"featured"`
	PublishedAt  *time.Time     `gorm:"index" json:"published_at"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (cs *CaseStudy) BeforeCreate(tx *gorm.DB) error {
	if cs.Status == "" {
		cs.Status = StatusDraft
	}
	return nil
}

type MediaFile struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"uniqueIndex;size:64;not null" json:"uuid"`
	FileName      string    `gorm:"not null" json:"file_name"`
	StoredPath    string    `gorm:"not null" json:"stored_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	MimeType      string    `gorm:"index;size:100" json:"mime_type"`
	Size          int64     `json:"size"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	AltText       string    `json:"alt_text"`
	Folder        string    `gorm:"index;size:120" json:"folder"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
