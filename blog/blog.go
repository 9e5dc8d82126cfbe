package blog

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/common"
	"axiscyber/models"
)

const (
	pageSize  = 10
	feedItems = 20
)

type BlogModule struct {
	db        *gorm.DB
	analytics *analytics.AnalyticsModule
	siteName  string
	domain    string
	now       func() time.Time
}

func NewBlogModule(db *gorm.DB, a *analytics.AnalyticsModule, siteName, domain string) *BlogModule {
	return &BlogModule{db: db, analytics: a, siteName: siteName, domain: domain, now: time.Now}
}

func (b *BlogModule) RegisterRoutes(router gin.IRouter) {
	blogGroup := router.Group("/blog")
	{
		blogGroup.GET("", b.index)
		blogGroup.GET("/feed.xml", b.feed)
		blogGroup.GET("/category/:slug", b.category)
		blogGroup.GET("/tag/:slug", b.tag)
		blogGroup.GET("/:slug", b.post)
	}
}

// Published scopes a query to posts visible on the public site.
func Published(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("blog_posts.status = ?", models.StatusPublished).
			Where("(blog_posts.published_at IS NULL OR blog_posts.published_at <= ?)", now)
	}
}

func (b *BlogModule) published() *gorm.DB {
	return b.db.Model(&models.BlogPost{}).Scopes(Published(b.now()))
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// list loads one page of published posts matching q, newest first.
func (b *BlogModule) list(q *gorm.DB, page int) ([]models.BlogPost, bool, error) {
	posts := []models.BlogPost{}
	err := q.Preload("Category").
		Order("blog_posts.published_at DESC").Order("blog_posts.id DESC").
		Limit(pageSize + 1).Offset((page - 1) * pageSize).
		Find(&posts).Error
	if err != nil {
		return nil, false, err
	}
	more := len(posts) > pageSize
	if more {
		posts = posts[:pageSize]
	}
	return posts, more, nil
}

func (b *BlogModule) renderList(c *gin.Context, q *gorm.DB, data gin.H) {
	page := pageParam(c)
	posts, more, err := b.list(q.WithContext(c.Request.Context()), page)
	if err != nil {
		zap.S().Errorw("loading blog posts", "path", c.Request.URL.Path, "error", err)
		common.RenderError(c, http.StatusInternalServerError, "We could not load the blog right now.")
		return
	}
	if page > 1 && len(posts) == 0 {
		common.RenderError(c, http.StatusNotFound, "This page does not exist.")
		return
	}

	data["posts"] = posts
	if page > 1 {
		data["prevPage"] = page - 1
	}
	if more {
		data["nextPage"] = page + 1
	}

	pageType := analytics.ClassifyPath(c.Request.URL.Path)
	b.analytics.TrackPageView(c, pageType, nil)
	c.HTML(http.StatusOK, "blog.html", data)
}

func (b *BlogModule) index(c *gin.Context) {
	var categories []models.BlogCategory
	b.db.WithContext(c.Request.Context()).Order("name").Find(&categories)

	b.renderList(c, b.published(), gin.H{
		"title":       "Insights",
		"heading":     "Insights",
		"description": "Security research, engineering notes and company news.",
		"canonical":   "/blog",
		"categories":  categories,
	})
}

func (b *BlogModule) category(c *gin.Context) {
	var category models.BlogCategory
	if err := b.db.WithContext(c.Request.Context()).Where("slug = ?", c.Param("slug")).First(&category).Error; err != nil {
		b.notFound(c, err)
		return
	}

	b.renderList(c, b.published().Where("blog_posts.category_id = ?", category.ID), gin.H{
		"title":       category.Name,
		"heading":     category.Name,
		"description": category.Description,
		"canonical":   "/blog/category/" + category.Slug,
	})
}

func (b *BlogModule) tag(c *gin.Context) {
	var tag models.BlogTag
	if err := b.db.WithContext(c.Request.Context()).Where("slug = ?", c.Param("slug")).First(&tag).Error; err != nil {
		b.notFound(c, err)
		return
	}

	q := b.published().
		Joins("JOIN blog_post_tags ON blog_post_tags.blog_post_id = blog_posts.id").
		Where("blog_post_tags.blog_tag_id = ?", tag.ID)

	b.renderList(c, q, gin.H{
		"title":     "#" + tag.Name,
		"heading":   "Posts tagged " + tag.Name,
		"canonical": "/blog/tag/" + tag.Slug,
	})
}

func (b *BlogModule) post(c *gin.Context) {
	ctx := c.Request.Context()

	var post models.BlogPost
	err := b.published().WithContext(ctx).
		Preload("Author").Preload("Category").Preload("Tags").
		Where("blog_posts.slug = ?", c.Param("slug")).
		First(&post).Error
	if err != nil {
		b.notFound(c, err)
		return
	}

	var related []models.BlogPost
	if post.CategoryID != nil {
		b.published().WithContext(ctx).
			Where("blog_posts.category_id = ? AND blog_posts.id <> ?", *post.CategoryID, post.ID).
			Order("blog_posts.published_at DESC").
			Limit(3).
			Find(&related)
	}

	b.analytics.TrackPageView(c, analytics.PageBlogPost, &post.ID)
	c.HTML(http.StatusOK, "blog_post.html", gin.H{
		"title":       post.Title,
		"description": post.Excerpt,
		"canonical":   "/blog/" + post.Slug,
		"post":        post,
		"body":        common.RenderMarkdown(post.Content),
		"related":     related,
	})
}

func (b *BlogModule) notFound(c *gin.Context, err error) {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		zap.S().Errorw("loading blog page", "path", c.Request.URL.Path, "error", err)
		common.RenderError(c, http.StatusInternalServerError, "We could not load this page right now.")
		return
	}
	common.RenderError(c, http.StatusNotFound, "The page you are looking for does not exist.")
}

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Category    string `xml:"category,omitempty"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

func (b *BlogModule) feed(c *gin.Context) {
	var posts []models.BlogPost
	err := b.published().WithContext(c.Request.Context()).
		Preload("Category").
		Order("blog_posts.published_at DESC").Order("blog_posts.id DESC").
		Limit(feedItems).
		Find(&posts).Error
	if err != nil {
		zap.S().Errorw("loading feed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		postURL := b.domain + "/blog/" + p.Slug
		published := p.CreatedAt
		if p.PublishedAt != nil {
			published = *p.PublishedAt
		}
		item := rssItem{
			Title:       p.Title,
			Link:        postURL,
			Description: p.Excerpt,
			PubDate:     published.Format(time.RFC1123Z),
			GUID:        postURL,
		}
		if p.Category != nil {
			item.Category = p.Category.Name
		}
		items = append(items, item)
	}

	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       b.siteName + " Insights",
			Link:        b.domain + "/blog",
			Description: "Security research, engineering notes and company news.",
			Language:    "en",
			Items:       items,
		},
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		zap.S().Errorw("encoding feed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", append([]byte(xml.Header), out...))
}
