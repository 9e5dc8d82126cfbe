package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
)

// NormalizeQuery lowercases a search query and collapses its whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

type SearchStat struct {
	Query            string  `json:"query"`
	Searches         int     `json:"searches"`
	Clicks           int     `json:"clicks"`
	ClickThroughRate float64 `json:"click_through_rate"`
	AvgResults       float64 `json:"avg_results"`
}

// GroupSearches groups events by normalized query, most searched first
// (ties by query), keeping at most topN groups. topN <= 0 keeps all.
func GroupSearches(rows []SearchEvent, topN int) []SearchStat {
	type acc struct {
		searches, clicks, results int
	}
	groups := map[string]*acc{}
	for _, r := range rows {
		q := NormalizeQuery(r.Query)
		g, ok := groups[q]
		if !ok {
			g = &acc{}
			groups[q] = g
		}
		g.searches++
		g.results += r.ResultsCount
		if r.Clicked {
			g.clicks++
		}
	}

	stats := make([]SearchStat, 0, len(groups))
	for q, g := range groups {
		stats = append(stats, SearchStat{
			Query:            q,
			Searches:         g.searches,
			Clicks:           g.clicks,
			ClickThroughRate: ratio(g.clicks, g.searches),
			AvgResults:       ratio(g.results, g.searches),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Searches != stats[j].Searches {
			return stats[i].Searches > stats[j].Searches
		}
		return stats[i].Query < stats[j].Query
	})
	return top(stats, topN)
}

// Count is one bar of a chart.
type Count struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// WithPercentages fills each Percentage with its share of the total,
// rounded to one decimal.
func WithPercentages(counts []Count) []Count {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	out := make([]Count, len(counts))
	for i, c := range counts {
		out[i] = c
		if total > 0 {
			out[i].Percentage = math.Round(float64(c.Count)*1000/float64(total)) / 10
		}
	}
	return out
}

// countBy tallies labels, most frequent first (ties by label).
func countBy[T any](rows []T, label func(T) string) []Count {
	tally := map[string]int64{}
	for _, r := range rows {
		tally[label(r)]++
	}
	counts := make([]Count, 0, len(tally))
	for l, n := range tally {
		counts = append(counts, Count{Label: l, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	return WithPercentages(counts)
}

func CountPageViewsByType(rows []PageView) []Count {
	return countBy(rows, func(v PageView) string { return v.PageType })
}

// CountPageViewsBy tallies views by a dimension: browser, os, device,
// country, language or referrer. Empty values are labelled "Unknown".
func CountPageViewsBy(rows []PageView, dimension string) []Count {
	pick := func(v PageView) string {
		var s string
		switch dimension {
		case "browser":
			s = v.Browser
		case "os":
			s = v.OS
		case "device":
			s = v.Device
		case "country":
			s = v.Country
		case "language":
			s = v.Language
		case "referrer":
			s = v.Referrer
		}
		if s == "" {
			return "Unknown"
		}
		return s
	}
	return countBy(rows, pick)
}

type PathStat struct {
	Path           string `json:"path"`
	PageType       string `json:"page_type"`
	Views          int    `json:"views"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// TopPaths ranks paths by views (ties by path), keeping topN.
func TopPaths(rows []PageView, topN int) []PathStat {
	type acc struct {
		pageType string
		views    int
		visitors map[string]struct{}
	}
	groups := map[string]*acc{}
	for _, r := range rows {
		g, ok := groups[r.Path]
		if !ok {
			g = &acc{pageType: r.PageType, visitors: map[string]struct{}{}}
			groups[r.Path] = g
		}
		g.views++
		g.visitors[r.VisitorID] = struct{}{}
	}

	stats := make([]PathStat, 0, len(groups))
	for p, g := range groups {
		stats = append(stats, PathStat{Path: p, PageType: g.pageType, Views: g.views, UniqueVisitors: len(g.visitors)})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Views != stats[j].Views {
			return stats[i].Views > stats[j].Views
		}
		return stats[i].Path < stats[j].Path
	})
	return top(stats, topN)
}

type FormStat struct {
	Form        string  `json:"form"`
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	// TopErrorField is the field that most often failed validation.
	TopErrorField string `json:"top_error_field,omitempty"`
}

// GroupForms summarises submissions per form, busiest first (ties by form).
func GroupForms(rows []FormEvent) []FormStat {
	type acc struct {
		total, ok int
		errors    map[string]int
	}
	groups := map[string]*acc{}
	for _, r := range rows {
		g, found := groups[r.Form]
		if !found {
			g = &acc{errors: map[string]int{}}
			groups[r.Form] = g
		}
		g.total++
		if r.Success {
			g.ok++
		} else if r.ErrorField != "" {
			g.errors[r.ErrorField]++
		}
	}

	stats := make([]FormStat, 0, len(groups))
	for f, g := range groups {
		topField, topCount := "", 0
		for field, n := range g.errors {
			if n > topCount || (n == topCount && field < topField) {
				topField, topCount = field, n
			}
		}
		stats = append(stats, FormStat{
			Form:          f,
			Total:         g.total,
			Succeeded:     g.ok,
			Failed:        g.total - g.ok,
			SuccessRate:   ratio(g.ok, g.total),
			TopErrorField: topField,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].Form < stats[j].Form
	})
	return stats
}

type EngagementStat struct {
	Event    string  `json:"event"`
	Path     string  `json:"path"`
	Count    int     `json:"count"`
	AvgValue float64 `json:"avg_value"`
}

// GroupEngagement groups events by (event, path), most frequent first.
func GroupEngagement(rows []EngagementEvent, topN int) []EngagementStat {
	type key struct{ event, path string }
	type acc struct{ count, sum int }
	groups := map[key]*acc{}
	for _, r := range rows {
		k := key{r.Event, r.Path}
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
		}
		g.count++
		g.sum += r.Value
	}

	stats := make([]EngagementStat, 0, len(groups))
	for k, g := range groups {
		stats = append(stats, EngagementStat{Event: k.event, Path: k.path, Count: g.count, AvgValue: ratio(g.sum, g.count)})
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Event != b.Event {
			return a.Event < b.Event
		}
		return a.Path < b.Path
	})
	return top(stats, topN)
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DailyCounts buckets times into the days-long window ending on end's day,
// oldest first, with zero for days without events.
func DailyCounts(times []time.Time, days int, end time.Time) []DayCount {
	if days <= 0 {
		return []DayCount{}
	}
	loc := end.Location()
	out := make([]DayCount, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := end.AddDate(0, 0, -(days - 1 - i)).Format("2006-01-02")
		out[i] = DayCount{Date: d}
		index[d] = i
	}
	for _, t := range times {
		if i, ok := index[t.In(loc).Format("2006-01-02")]; ok {
			out[i].Count++
		}
	}
	return out
}

type Summary struct {
	PageViews        int     `json:"page_views"`
	UniqueVisitors   int     `json:"unique_visitors"`
	Searches         int     `json:"searches"`
	SearchClicks     int     `json:"search_clicks"`
	SearchCTR        float64 `json:"search_ctr"`
	FormSubmissions  int     `json:"form_submissions"`
	FormSuccesses    int     `json:"form_successes"`
	FormSuccessRate  float64 `json:"form_success_rate"`
	EngagementEvents int     `json:"engagement_events"`
}

func Summarize(views []PageView, searches []SearchEvent, forms []FormEvent, engagement []EngagementEvent) Summary {
	s := Summary{
		PageViews:        len(views),
		Searches:         len(searches),
		FormSubmissions:  len(forms),
		EngagementEvents: len(engagement),
	}

	visitors := map[string]struct{}{}
	for _, v := range views {
		visitors[v.VisitorID] = struct{}{}
	}
	s.UniqueVisitors = len(visitors)

	for _, e := range searches {
		if e.Clicked {
			s.SearchClicks++
		}
	}
	s.SearchCTR = ratio(s.SearchClicks, s.Searches)

	for _, f := range forms {
		if f.Success {
			s.FormSuccesses++
		}
	}
	s.FormSuccessRate = ratio(s.FormSuccesses, s.FormSubmissions)
	return s
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func top[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
