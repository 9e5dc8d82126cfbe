package site

import (
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/blog"
	"axiscyber/common"
	"axiscyber/models"
)

const (
	maxQueryLength  = 100
	resultsPerKind  = 10
	snippetLength   = 160
	homeListLength  = 3
	homeServiceList = 6
)

type SiteModule struct {
	db        *gorm.DB
	analytics *analytics.AnalyticsModule
	siteName  string
	domain    string
	now       func() time.Time
}

func NewSiteModule(db *gorm.DB, a *analytics.AnalyticsModule, siteName, domain string) *SiteModule {
	return &SiteModule{db: db, analytics: a, siteName: siteName, domain: domain, now: time.Now}
}

func (s *SiteModule) RegisterRoutes(router gin.IRouter) {
	router.GET("/", s.index)
	router.GET("/about", s.about)
	router.GET("/services", s.services)
	router.GET("/services/:slug", s.service)
	router.GET("/case-studies", s.caseStudies)
	router.GET("/case-studies/:slug", s.caseStudy)
	router.GET("/careers", s.careers)
	router.GET("/careers/:slug", s.job)
	router.GET("/contact", s.contact)
	router.GET("/search", s.search)
	router.GET("/search/click", s.searchClick)
	router.GET("/sitemap.xml", s.sitemap)
	router.GET("/robots.txt", s.robots)
}

// PublishedCaseStudies scopes a query to case studies visible at now.
func PublishedCaseStudies(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("case_studies.status = ?", models.StatusPublished).
			Where("(case_studies.published_at IS NULL OR case_studies.published_at <= ?)", now)
	}
}

// OpenJobs scopes a query to postings that still accept applications at now.
func OpenJobs(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("job_postings.active = ?", true).
			Where("(job_postings.closes_at IS NULL OR job_postings.closes_at > ?)", now)
	}
}

func (s *SiteModule) activeServices(c *gin.Context) *gorm.DB {
	return s.db.WithContext(c.Request.Context()).Model(&models.Service{}).
		Where("active = ?", true).
		Order("sort_order").Order("id")
}

func (s *SiteModule) index(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.now()

	var services []models.Service
	if err := s.activeServices(c).Limit(homeServiceList).Find(&services).Error; err != nil {
		s.serverError(c, err)
		return
	}

	var caseStudies []models.CaseStudy
	s.db.WithContext(ctx).Scopes(PublishedCaseStudies(now)).
		Order("featured DESC").Order("published_at DESC").
		Limit(homeListLength).Find(&caseStudies)

	var testimonials []models.Testimonial
	s.db.WithContext(ctx).Where("approved = ?", true).
		Order("featured DESC").Order("created_at DESC").
		Limit(homeListLength).Find(&testimonials)

	var posts []models.BlogPost
	s.db.WithContext(ctx).Model(&models.BlogPost{}).Scopes(blog.Published(now)).
		Preload("Category").
		Order("blog_posts.published_at DESC").
		Limit(homeListLength).Find(&posts)

	s.analytics.TrackPageView(c, analytics.PageHome, nil)
	c.HTML(http.StatusOK, "home.html", gin.H{
		"title":        s.siteName,
		"description":  "Penetration testing, cloud security and compliance programs from practitioners.",
		"canonical":    "/",
		"services":     services,
		"caseStudies":  caseStudies,
		"testimonials": testimonials,
		"posts":        posts,
	})
}

func (s *SiteModule) about(c *gin.Context) {
	ctx := c.Request.Context()

	var team []models.TeamMember
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("sort_order").Order("id").Find(&team).Error; err != nil {
		s.serverError(c, err)
		return
	}

	var testimonials []models.Testimonial
	s.db.WithContext(ctx).Where("approved = ?", true).Order("featured DESC").Order("created_at DESC").Find(&testimonials)

	s.analytics.TrackPageView(c, analytics.PageAbout, nil)
	c.HTML(http.StatusOK, "about.html", gin.H{
		"title":        "About",
		"description":  "The people behind " + s.siteName + ".",
		"canonical":    "/about",
		"team":         team,
		"testimonials": testimonials,
	})
}

func (s *SiteModule) services(c *gin.Context) {
	var services []models.Service
	if err := s.activeServices(c).Find(&services).Error; err != nil {
		s.serverError(c, err)
		return
	}

	s.analytics.TrackPageView(c, analytics.PageServices, nil)
	c.HTML(http.StatusOK, "services.html", gin.H{
		"title":       "Services",
		"description": "Offensive testing, cloud security, compliance and managed detection.",
		"canonical":   "/services",
		"services":    services,
	})
}

func (s *SiteModule) service(c *gin.Context) {
	var service models.Service
	if err := s.activeServices(c).Where("slug = ?", c.Param("slug")).First(&service).Error; err != nil {
		s.notFound(c, err)
		return
	}

	var caseStudies []models.CaseStudy
	s.db.WithContext(c.Request.Context()).Scopes(PublishedCaseStudies(s.now())).
		Where("service_id = ?", service.ID).
		Order("published_at DESC").
		Limit(homeListLength).Find(&caseStudies)

	s.analytics.TrackPageView(c, analytics.PageService, &service.ID)
	c.HTML(http.StatusOK, "service.html", gin.H{
		"title":       service.Title,
		"description": service.ShortDescription,
		"canonical":   "/services/" + service.Slug,
		"service":     service,
		"body":        common.RenderMarkdown(service.Description),
		"caseStudies": caseStudies,
	})
}

func (s *SiteModule) caseStudies(c *gin.Context) {
	var caseStudies []models.CaseStudy
	err := s.db.WithContext(c.Request.Context()).Scopes(PublishedCaseStudies(s.now())).
		Order("featured DESC").Order("published_at DESC").Order("id DESC").
		Find(&caseStudies).Error
	if err != nil {
		s.serverError(c, err)
		return
	}

	s.analytics.TrackPageView(c, analytics.PageCaseStudies, nil)
	c.HTML(http.StatusOK, "case_studies.html", gin.H{
		"title":       "Case studies",
		"description": "How we helped clients find and fix what mattered.",
		"canonical":   "/case-studies",
		"caseStudies": caseStudies,
	})
}

func (s *SiteModule) caseStudy(c *gin.Context) {
	var cs models.CaseStudy
	err := s.db.WithContext(c.Request.Context()).Scopes(PublishedCaseStudies(s.now())).
		Preload("Service").
		Where("case_studies.slug = ?", c.Param("slug")).
		First(&cs).Error
	if err != nil {
		s.notFound(c, err)
		return
	}
	if cs.Service != nil && !cs.Service.Active {
		cs.Service = nil
	}

	s.analytics.TrackPageView(c, analytics.PageCaseStudy, &cs.ID)
	c.HTML(http.StatusOK, "case_study.html", gin.H{
		"title":       cs.Title,
		"description": cs.Summary,
		"canonical":   "/case-studies/" + cs.Slug,
		"caseStudy":   cs,
		"challenge":   common.RenderMarkdown(cs.Challenge),
		"solution":    common.RenderMarkdown(cs.Solution),
		"results":     common.RenderMarkdown(cs.Results),
	})
}

func (s *SiteModule) careers(c *gin.Context) {
	var jobs []models.JobPosting
	err := s.db.WithContext(c.Request.Context()).Scopes(OpenJobs(s.now())).
		Order("department").Order("title").
		Find(&jobs).Error
	if err != nil {
		s.serverError(c, err)
		return
	}

	s.analytics.TrackPageView(c, analytics.PageCareers, nil)
	c.HTML(http.StatusOK, "careers.html", gin.H{
		"title":       "Careers",
		"description": "Open positions at " + s.siteName + ".",
		"canonical":   "/careers",
		"jobs":        jobs,
	})
}

func (s *SiteModule) job(c *gin.Context) {
	var job models.JobPosting
	err := s.db.WithContext(c.Request.Context()).
		Where("slug = ? AND active = ?", c.Param("slug"), true).
		First(&job).Error
	if err != nil {
		s.notFound(c, err)
		return
	}

	s.analytics.TrackPageView(c, analytics.PageJob, &job.ID)
	c.HTML(http.StatusOK, "job.html", gin.H{
		"title":       job.Title,
		"description": job.Department + " · " + job.Location,
		"canonical":   "/careers/" + job.Slug,
		"job":         job,
		"body":        common.RenderMarkdown(job.Description),
		"open":        job.AcceptsApplications(s.now()),
	})
}

func (s *SiteModule) contact(c *gin.Context) {
	var services []models.Service
	if err := s.activeServices(c).Find(&services).Error; err != nil {
		s.serverError(c, err)
		return
	}

	s.analytics.TrackPageView(c, analytics.PageContact, nil)
	c.HTML(http.StatusOK, "contact.html", gin.H{
		"title":           "Contact",
		"description":     "Talk to a security engineer.",
		"canonical":       "/contact",
		"services":        services,
		"selectedService": c.Query("service"),
	})
}

type SearchResult struct {
	Kind    string
	Title   string
	URL     string
	Snippet string
}

// Search matches q against every public content type and returns the hits
// grouped by kind: services, case studies, posts, then open positions.
func (s *SiteModule) Search(c *gin.Context, q string) ([]SearchResult, error) {
	ctx := c.Request.Context()
	now := s.now()
	pattern := "%" + strings.ToLower(q) + "%"

	like := func(db *gorm.DB, columns ...string) *gorm.DB {
		clauses := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, col := range columns {
			clauses[i] = "LOWER(" + col + ") LIKE ?"
			args[i] = pattern
		}
		return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	var results []SearchResult

	var services []models.Service
	err := like(s.activeServices(c), "title", "short_description", "description").
		Limit(resultsPerKind).Find(&services).Error
	if err != nil {
		return nil, err
	}
	for _, sv := range services {
		results = append(results, SearchResult{"Service", sv.Title, "/services/" + sv.Slug, snippet(sv.ShortDescription)})
	}

	var caseStudies []models.CaseStudy
	err = like(s.db.WithContext(ctx).Scopes(PublishedCaseStudies(now)), "title", "client", "industry", "summary").
		Order("published_at DESC").Limit(resultsPerKind).Find(&caseStudies).Error
	if err != nil {
		return nil, err
	}
	for _, cs := range caseStudies {
		results = append(results, SearchResult{"Case study", cs.Title, "/case-studies/" + cs.Slug, snippet(cs.Summary)})
	}

	var posts []models.BlogPost
	err = like(s.db.WithContext(ctx).Model(&models.BlogPost{}).Scopes(blog.Published(now)),
		"blog_posts.title", "blog_posts.excerpt", "blog_posts.content").
		Order("blog_posts.published_at DESC").Limit(resultsPerKind).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		text := p.Excerpt
		if text == "" {
			text = p.Content
		}
		results = append(results, SearchResult{"Insight", p.Title, "/blog/" + p.Slug, snippet(text)})
	}

	var jobs []models.JobPosting
	err = like(s.db.WithContext(ctx).Scopes(OpenJobs(now)), "title", "department", "description").
		Order("title").Limit(resultsPerKind).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		results = append(results, SearchResult{"Career", j.Title, "/careers/" + j.Slug, snippet(j.Department + " · " + j.Location)})
	}

	return results, nil
}

func (s *SiteModule) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if utf8.RuneCountInString(q) > maxQueryLength {
		q = string([]rune(q)[:maxQueryLength])
	}

	data := gin.H{
		"title":     "Search",
		"canonical": "/search",
		"query":     q,
		"total":     0,
	}

	if q != "" {
		results, err := s.Search(c, q)
		if err != nil {
			s.serverError(c, err)
			return
		}
		data["results"] = results
		data["total"] = len(results)
		s.analytics.RecordSearch(c, q, len(results))
	}

	s.analytics.TrackPageView(c, analytics.PageSearch, nil)
	c.HTML(http.StatusOK, "search.html", data)
}

// searchClick records which result a visitor followed and redirects there.
// Only same-site paths are accepted as targets.
func (s *SiteModule) searchClick(c *gin.Context) {
	target := c.Query("to")
	if !isLocalPath(target) {
		c.Redirect(http.StatusFound, "/search")
		return
	}
	s.analytics.RecordSearchClick(c, c.Query("q"), target)
	c.Redirect(http.StatusFound, target)
}

// isLocalPath accepts absolute paths on this site only. Control characters
// and backslashes are refused.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsRune(p, '\\') {
		return false
	}
	if strings.IndexFunc(p, unicode.IsControl) >= 0 {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//")
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(common.StripTags(text)), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:snippetLength])) + "…"
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

func (s *SiteModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.now()
	lastmod := func(t time.Time) string { return t.UTC().Format("2006-01-02") }

	urls := []sitemapURL{
		{Loc: s.domain + "/", ChangeFreq: "weekly", Priority: "1.0"},
		{Loc: s.domain + "/about", ChangeFreq: "monthly", Priority: "0.6"},
		{Loc: s.domain + "/services", ChangeFreq: "monthly", Priority: "0.9"},
		{Loc: s.domain + "/case-studies", ChangeFreq: "monthly", Priority: "0.7"},
		{Loc: s.domain + "/blog", ChangeFreq: "daily", Priority: "0.8"},
		{Loc: s.domain + "/careers", ChangeFreq: "weekly", Priority: "0.6"},
		{Loc: s.domain + "/contact", ChangeFreq: "yearly", Priority: "0.5"},
	}

	var services []models.Service
	s.activeServices(c).Find(&services)
	for _, sv := range services {
		urls = append(urls, sitemapURL{Loc: s.domain + "/services/" + sv.Slug, LastMod: lastmod(sv.UpdatedAt), ChangeFreq: "monthly", Priority: "0.8"})
	}

	var caseStudies []models.CaseStudy
	s.db.WithContext(ctx).Scopes(PublishedCaseStudies(now)).Order("published_at DESC").Find(&caseStudies)
	for _, cs := range caseStudies {
		urls = append(urls, sitemapURL{Loc: s.domain + "/case-studies/" + cs.Slug, LastMod: lastmod(cs.UpdatedAt), ChangeFreq: "monthly", Priority: "0.6"})
	}

	var posts []models.BlogPost
	s.db.WithContext(ctx).Model(&models.BlogPost{}).Scopes(blog.Published(now)).Order("blog_posts.published_at DESC").Find(&posts)
	for _, p := range posts {
		urls = append(urls, sitemapURL{Loc: s.domain + "/blog/" + p.Slug, LastMod: lastmod(p.UpdatedAt), ChangeFreq: "monthly", Priority: "0.6"})
	}

	var categories []models.BlogCategory
	s.db.WithContext(ctx).Order("name").Find(&categories)
	for _, cat := range categories {
		urls = append(urls, sitemapURL{Loc: s.domain + "/blog/category/" + cat.Slug, ChangeFreq: "weekly", Priority: "0.4"})
	}

	var jobs []models.JobPosting
	s.db.WithContext(ctx).Scopes(OpenJobs(now)).Order("title").Find(&jobs)
	for _, j := range jobs {
		urls = append(urls, sitemapURL{Loc: s.domain + "/careers/" + j.Slug, LastMod: lastmod(j.UpdatedAt), ChangeFreq: "weekly", Priority: "0.5"})
	}

	out, err := xml.MarshalIndent(sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}, "", "  ")
	if err != nil {
		zap.S().Errorw("encoding sitemap", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), out...))
}

func (s *SiteModule) robots(c *gin.Context) {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, p := range []string{"/admin", "/backoffice", "/api", "/search"} {
		b.WriteString("Disallow: " + p + "\n")
	}
	b.WriteString("\nSitemap: " + s.domain + "/sitemap.xml\n")
	c.String(http.StatusOK, b.String())
}

func (s *SiteModule) notFound(c *gin.Context, err error) {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.serverError(c, err)
		return
	}
	common.RenderError(c, http.StatusNotFound, "The page you are looking for does not exist.")
}

func (s *SiteModule) serverError(c *gin.Context, err error) {
	zap.S().Errorw("loading page", "path", c.Request.URL.Path, "error", err)
	common.RenderError(c, http.StatusInternalServerError, "We could not load this page right now.")
}
