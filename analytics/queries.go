package analytics

import (
	"context"
	"time"
)

// Report is the dashboard overview for a window of days.
type Report struct {
	Days      int        `json:"days"`
	Summary   Summary    `json:"summary"`
	Daily     []DayCount `json:"daily"`
	PageTypes []Count    `json:"page_types"`
	Devices   []Count    `json:"devices"`
	Browsers  []Count    `json:"browsers"`
	Countries []Count    `json:"countries"`
	Languages []Count    `json:"languages"`
	Referrers []Count    `json:"referrers"`
}

func (a *AnalyticsModule) since(days int) time.Time {
	now := a.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start.AddDate(0, 0, -(days - 1))
}

func fetch[T any](ctx context.Context, a *AnalyticsModule, days int) ([]T, error) {
	rows := []T{}
	err := a.db.WithContext(ctx).
		Where("created_at >= ?", a.since(days)).
		Order("created_at").
		Find(&rows).Error
	return rows, err
}

// Summary aggregates every event type over the last days days.
func (a *AnalyticsModule) Summary(ctx context.Context, days int) (Report, error) {
	report := Report{Days: days, Daily: []DayCount{}, PageTypes: []Count{}}
	if a == nil || a.db == nil {
		return report, nil
	}

	views, err := fetch[PageView](ctx, a, days)
	if err != nil {
		return report, err
	}
	searches, err := fetch[SearchEvent](ctx, a, days)
	if err != nil {
		return report, err
	}
	forms, err := fetch[FormEvent](ctx, a, days)
	if err != nil {
		return report, err
	}
	engagement, err := fetch[EngagementEvent](ctx, a, days)
	if err != nil {
		return report, err
	}

	times := make([]time.Time, len(views))
	for i, v := range views {
		times[i] = v.CreatedAt
	}

	report.Summary = Summarize(views, searches, forms, engagement)
	report.Daily = DailyCounts(times, days, a.now())
	report.PageTypes = CountPageViewsByType(views)
	report.Devices = CountPageViewsBy(views, "device")
	report.Browsers = CountPageViewsBy(views, "browser")
	report.Countries = CountPageViewsBy(views, "country")
	report.Languages = CountPageViewsBy(views, "language")
	report.Referrers = CountPageViewsBy(views, "referrer")
	return report, nil
}

func (a *AnalyticsModule) Searches(ctx context.Context, days, limit int) ([]SearchStat, error) {
	if a == nil || a.db == nil {
		return []SearchStat{}, nil
	}
	rows, err := fetch[SearchEvent](ctx, a, days)
	if err != nil {
		return nil, err
	}
	return GroupSearches(rows, limit), nil
}

func (a *AnalyticsModule) Pages(ctx context.Context, days, limit int) ([]PathStat, error) {
	if a == nil || a.db == nil {
		return []PathStat{}, nil
	}
	rows, err := fetch[PageView](ctx, a, days)
	if err != nil {
		return nil, err
	}
	return TopPaths(rows, limit), nil
}

func (a *AnalyticsModule) Forms(ctx context.Context, days int) ([]FormStat, error) {
	if a == nil || a.db == nil {
		return []FormStat{}, nil
	}
	rows, err := fetch[FormEvent](ctx, a, days)
	if err != nil {
		return nil, err
	}
	return GroupForms(rows), nil
}

func (a *AnalyticsModule) Engagement(ctx context.Context, days, limit int) ([]EngagementStat, error) {
	if a == nil || a.db == nil {
		return []EngagementStat{}, nil
	}
	rows, err := fetch[EngagementEvent](ctx, a, days)
	if err != nil {
		return nil, err
	}
	return GroupEngagement(rows, limit), nil
}
