// Package analytics records page views, searches, form submissions and
// engagement events, and aggregates them for the admin dashboards.
//
// A nil *AnalyticsModule is valid: every tracking call becomes a no-op and
// every report comes back empty.
package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	visitorCookie   = "axis_visitor_id"
	visitThrottle   = 30 * time.Minute
	visitorLifetime = 60 * 60 * 24 * 365 * 2
)

type Options struct {
	GeoIP         *GeoIP
	SecureCookies bool
	// Host is the site's own hostname; referrers from it are not recorded.
	Host string
}

type AnalyticsModule struct {
	db   *gorm.DB
	opts Options
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewAnalyticsModule migrates the analytics tables into db. It returns nil,
// disabling analytics, when db is nil or the migration fails.
func NewAnalyticsModule(db *gorm.DB, opts Options) *AnalyticsModule {
	if db == nil {
		zap.S().Warn("analytics DB is nil, analytics will be disabled")
		return nil
	}

	if err := db.AutoMigrate(Tables()...); err != nil {
		zap.S().Errorw("migrating analytics tables", "error", err)
		return nil
	}

	zap.S().Info("analytics module initialized")
	return &AnalyticsModule{db: db, opts: opts, now: time.Now}
}

// write runs fn in the background so tracking never slows a response.
func (a *AnalyticsModule) write(what string, fn func(db *gorm.DB) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(a.db.WithContext(ctx)); err != nil {
			zap.S().Errorw("saving analytics event", "event", what, "error", err)
		}
	}()
}

// Wait blocks until pending writes are stored.
func (a *AnalyticsModule) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}

// TrackPageView records a visit to the current page unless the same visitor
// saw the same path in the last 30 minutes. Bots are ignored.
func (a *AnalyticsModule) TrackPageView(c *gin.Context, pageType string, entityID *uint) {
	if a == nil || a.db == nil {
		return
	}

	client := parseUserAgent(c.Request.UserAgent())
	if client.Bot {
		return
	}

	visitorID := a.visitorID(c)
	path := c.Request.URL.Path

	var recent int64
	a.db.WithContext(c.Request.Context()).Model(&PageView{}).
		Where("visitor_id = ? AND path = ? AND created_at > ?", visitorID, path, a.now().Add(-visitThrottle)).
		Limit(1).
		Count(&recent)
	if recent > 0 {
		return
	}

	view := PageView{
		VisitorID: visitorID,
		Path:      path,
		PageType:  pageType,
		EntityID:  entityID,
		Referrer:  referrerHost(c.Request.Referer(), a.opts.Host),
		Country:   a.opts.GeoIP.Country(c.ClientIP()),
		Language:  primaryLanguage(c.GetHeader("Accept-Language")),
		Browser:   client.Browser,
		OS:        client.OS,
		Device:    client.Device,
		CreatedAt: a.now(),
	}

	a.write("page_view", func(db *gorm.DB) error {
		return db.Create(&view).Error
	})
}

// TrackCachedPage records a view of a page served from the page cache.
func (a *AnalyticsModule) TrackCachedPage(c *gin.Context) {
	a.TrackPageView(c, ClassifyPath(c.Request.URL.Path), nil)
}

// RecordSearch stores a site search with its normalized query.
func (a *AnalyticsModule) RecordSearch(c *gin.Context, query string, results int) {
	if a == nil || a.db == nil {
		return
	}
	q := NormalizeQuery(query)
	if q == "" {
		return
	}

	event := SearchEvent{
		VisitorID:    a.visitorID(c),
		Query:        truncate(q, 255),
		ResultsCount: results,
		CreatedAt:    a.now(),
	}
	a.write("search", func(db *gorm.DB) error {
		return db.Create(&event).Error
	})
}

// RecordSearchClick marks the visitor's latest unclicked search for query as
// clicked through to target.
func (a *AnalyticsModule) RecordSearchClick(c *gin.Context, query, target string) {
	if a == nil || a.db == nil {
		return
	}
	q := NormalizeQuery(query)
	if q == "" {
		return
	}

	visitorID := a.visitorID(c)
	clickedAt := a.now()
	a.write("search_click", func(db *gorm.DB) error {
		var event SearchEvent
		err := db.Where("visitor_id = ? AND query = ? AND clicked = ?", visitorID, truncate(q, 255), false).
			Order("created_at DESC").Order("id DESC").
			First(&event).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		return db.Model(&event).Updates(map[string]any{
			"clicked":     true,
			"clicked_url": truncate(target, 512),
			"clicked_at":  clickedAt,
		}).Error
	})
}

// RecordForm stores the outcome of a lead form submission. errorField names
// the first field that failed validation, if any.
func (a *AnalyticsModule) RecordForm(c *gin.Context, form string, success bool, errorField string) {
	if a == nil || a.db == nil {
		return
	}
	event := FormEvent{
		VisitorID:  a.existingVisitorID(c),
		Form:       form,
		Success:    success,
		ErrorField: errorField,
		Path:       truncate(refererPath(c), 512),
		CreatedAt:  a.now(),
	}
	a.write("form", func(db *gorm.DB) error {
		return db.Create(&event).Error
	})
}

// RecordEngagement stores a validated engagement event.
func (a *AnalyticsModule) RecordEngagement(c *gin.Context, in EngagementInput) {
	if a == nil || a.db == nil {
		return
	}
	event := EngagementEvent{
		VisitorID: a.existingVisitorID(c),
		Path:      in.Path,
		Event:     in.Event,
		Label:     in.Label,
		Value:     in.Value,
		CreatedAt: a.now(),
	}
	a.write("engagement", func(db *gorm.DB) error {
		return db.Create(&event).Error
	})
}

// PurgeBefore deletes raw events older than cutoff.
func (a *AnalyticsModule) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if a == nil || a.db == nil {
		return 0, nil
	}
	var removed int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range Tables() {
			result := tx.Where("created_at < ?", cutoff).Delete(table)
			if result.Error != nil {
				return result.Error
			}
			removed += result.RowsAffected
		}
		return nil
	})
	return removed, err
}

// visitorID returns the visitor cookie, issuing a new one when missing.
func (a *AnalyticsModule) visitorID(c *gin.Context) string {
	if id := a.existingVisitorID(c); id != "" {
		return id
	}

	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookie, id, visitorLifetime, "/", "", a.opts.SecureCookies, true)
	c.Request.AddCookie(&http.Cookie{Name: visitorCookie, Value: id})
	return id
}

func (a *AnalyticsModule) existingVisitorID(c *gin.Context) string {
	id, err := c.Cookie(visitorCookie)
	if err != nil || len(id) > 64 {
		return ""
	}
	return id
}

func refererPath(c *gin.Context) string {
	if u, err := url.Parse(c.Request.Referer()); err == nil && u.Path != "" {
		return u.Path
	}
	return c.Request.URL.Path
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
