package analytics

import "time"

// PageView is one throttled visit of a public page.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	VisitorID string    `gorm:"not null;index;size:64" json:"-"`
	Path      string    `gorm:"not null;index;size:512" json:"path"`
	PageType  string    `gorm:"not null;index;size:32" json:"page_type"`
	EntityID  *uint     `gorm:"index" json:"entity_id"`
	Referrer  string    `gorm:"size:255" json:"referrer"`
	Country   string    `gorm:"size:8" json:"country"`
	Language  string    `gorm:"size:16" json:"language"`
	Browser   string    `gorm:"size:64" json:"browser"`
	OS        string    `gorm:"size:64" json:"os"`
	Device    string    `gorm:"size:16" json:"device"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// SearchEvent is one site search; Clicked flips when a result is followed.
type SearchEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	VisitorID    string     `gorm:"not null;index;size:64" json:"-"`
	Query        string     `gorm:"not null;index;size:255" json:"query"`
	ResultsCount int        `json:"results_count"`
	Clicked      bool       `gorm:"index" json:"clicked"`
	ClickedURL   string     `gorm:"size:512" json:"clicked_url"`
	ClickedAt    *time.Time `json:"clicked_at"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

// FormEvent records a lead form submission attempt.
type FormEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	VisitorID  string    `gorm:"index;size:64" json:"-"`
	Form       string    `gorm:"not null;index;size:32" json:"form"`
	Success    bool      `json:"success"`
	ErrorField string    `gorm:"size:64" json:"error_field"`
	Path       string    `gorm:"size:512" json:"path"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// EngagementEvent is a client-reported interaction such as scroll depth.
type EngagementEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	VisitorID string    `gorm:"index;size:64" json:"-"`
	Path      string    `gorm:"not null;index;size:512" json:"path"`
	Event     string    `gorm:"not null;index;size:32" json:"event"`
	Label     string    `gorm:"size:120" json:"label"`
	Value     int       `json:"value"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Tables lists every analytics table.
func Tables() []any {
	return []any{&PageView{}, &SearchEvent{}, &FormEvent{}, &EngagementEvent{}}
}
