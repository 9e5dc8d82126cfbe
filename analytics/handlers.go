package analytics

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"axiscyber/common"
)

var engagementEvents = []string{"scroll_depth", "time_on_page", "cta_click", "outbound_click", "video_play", "download"}

type EngagementInput struct {
	Path  string `json:"path"`
	Event string `json:"event"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Validate returns per-field messages; an empty map means valid.
func (in *EngagementInput) Validate() map[string]string {
	in.Path = strings.TrimSpace(in.Path)
	in.Event = strings.TrimSpace(in.Event)
	in.Label = strings.TrimSpace(in.Label)

	fields := map[string]string{}
	switch {
	case in.Path == "":
		fields["path"] = "is required"
	case !strings.HasPrefix(in.Path, "/") || strings.HasPrefix(in.Path, "//"):
		fields["path"] = "must be a site path"
	case len(in.Path) > 512:
		fields["path"] = "is too long"
	}
	if !slices.Contains(engagementEvents, in.Event) {
		fields["event"] = "is not a known event"
	}
	if len(in.Label) > 120 {
		fields["label"] = "is too long"
	}
	if in.Value < 0 || in.Value > 86400 {
		fields["value"] = "is out of range"
	}
	return fields
}

// doNotTrack reports whether the browser opted out of tracking.
func doNotTrack(c *gin.Context) bool {
	return c.GetHeader("DNT") == "1" || c.GetHeader("Sec-GPC") == "1"
}

// RegisterRoutes mounts the public collect endpoint behind limit.
func (a *AnalyticsModule) RegisterRoutes(router gin.IRouter, limit gin.HandlerFunc) {
	router.POST("/api/analytics/engagement", limit, a.collectEngagement)
}

func (a *AnalyticsModule) collectEngagement(c *gin.Context) {
	var in EngagementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if fields := in.Validate(); len(fields) > 0 {
		common.Invalid(c, fields)
		return
	}
	if !doNotTrack(c) {
		a.RecordEngagement(c, in)
	}
	c.Status(http.StatusNoContent)
}

// RegisterAdminRoutes mounts the reporting API on an authenticated group.
func (a *AnalyticsModule) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.GET("/summary", a.handleSummary)
	group.GET("/searches", a.handleSearches)
	group.GET("/pages", a.handlePages)
	group.GET("/forms", a.handleForms)
	group.GET("/engagement", a.handleEngagement)
}

func (a *AnalyticsModule) handleSummary(c *gin.Context) {
	report, err := a.Summary(c.Request.Context(), DaysParam(c))
	if err != nil {
		reportError(c, err)
		return
	}
	common.OK(c, report)
}

func (a *AnalyticsModule) handleSearches(c *gin.Context) {
	stats, err := a.Searches(c.Request.Context(), DaysParam(c), limitParam(c))
	if err != nil {
		reportError(c, err)
		return
	}
	common.OK(c, stats)
}

func (a *AnalyticsModule) handlePages(c *gin.Context) {
	stats, err := a.Pages(c.Request.Context(), DaysParam(c), limitParam(c))
	if err != nil {
		reportError(c, err)
		return
	}
	common.OK(c, stats)
}

func (a *AnalyticsModule) handleForms(c *gin.Context) {
	stats, err := a.Forms(c.Request.Context(), DaysParam(c))
	if err != nil {
		reportError(c, err)
		return
	}
	common.OK(c, stats)
}

func (a *AnalyticsModule) handleEngagement(c *gin.Context) {
	stats, err := a.Engagement(c.Request.Context(), DaysParam(c), limitParam(c))
	if err != nil {
		reportError(c, err)
		return
	}
	common.OK(c, stats)
}

func reportError(c *gin.Context, err error) {
	zap.S().Errorw("building analytics report", "path", c.Request.URL.Path, "error", err)
	common.Fail(c, http.StatusInternalServerError, "could not build report")
}

// DaysParam reads ?days=, defaulting to 30 and clamped to [1, 365].
func DaysParam(c *gin.Context) int {
	return clampedQuery(c, "days", 30, 1, 365)
}

func limitParam(c *gin.Context) int {
	return clampedQuery(c, "limit", 20, 1, 100)
}

func clampedQuery(c *gin.Context, name string, def, lo, hi int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return max(lo, min(hi, n))
}
