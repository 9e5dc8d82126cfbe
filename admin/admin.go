package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/cache"
	"axiscyber/common"
	"axiscyber/email"
	"axiscyber/media"
	"axiscyber/models"
	"axiscyber/ratelimit"
	"axiscyber/store"
)

const (
	// SessionCookie names the admin session cookie.
	SessionCookie = "axis-session"

	MinPasswordLength = 10

	sessionUserKey = "admin_user_id"
	contextUserKey = "admin_user"
)

var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

type Options struct {
	Analytics    *analytics.AnalyticsModule
	Dispatcher   *email.Dispatcher
	Media        *media.Library
	Cache        cache.Store
	LoginLimiter *ratelimit.Limiter
}

type AdminModule struct {
	db           *gorm.DB
	analytics    *analytics.AnalyticsModule
	dispatcher   *email.Dispatcher
	media        *media.Library
	cache        cache.Store
	loginLimiter *ratelimit.Limiter
	now          func() time.Time
}

func NewAdminModule(db *gorm.DB, opts Options) *AdminModule {
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = ratelimit.PerMinute(5)
	}
	return &AdminModule{
		db:           db,
		analytics:    opts.Analytics,
		dispatcher:   opts.Dispatcher,
		media:        opts.Media,
		cache:        opts.Cache,
		loginLimiter: opts.LoginLimiter,
		now:          time.Now,
	}
}

func (a *AdminModule) RegisterRoutes(router gin.IRouter) {
	router.GET("/admin/login", a.loginPage)
	router.POST("/admin/login", a.loginPost)
	router.GET("/admin/logout", a.logout)
	router.GET("/admin", a.RequireAuth, a.dashboard)

	api := router.Group("/admin/api", a.RequireAuth)
	a.registerResources(api)
	a.registerMediaRoutes(api.Group("/media"))
	a.analytics.RegisterAdminRoutes(api.Group("/analytics"))
}

// RequireAuth loads the signed-in admin into the context. HTML routes are
// redirected to the login page, API routes get a 401 envelope.
func (a *AdminModule) RequireAuth(c *gin.Context) {
	session := sessions.Default(c)
	id, _ := session.Get(sessionUserKey).(uint)

	var user models.AdminUser
	if id != 0 {
		if err := a.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
			id = 0
		}
	}
	if id == 0 || !user.Active {
		session.Delete(sessionUserKey)
		session.Save()
		if isAPIRequest(c) {
			common.Fail(c, http.StatusUnauthorized, "authentication required")
			return
		}
		c.Redirect(http.StatusFound, "/admin/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}

	c.Set(contextUserKey, &user)
	c.Next()
}

// CurrentUser returns the admin loaded by RequireAuth.
func CurrentUser(c *gin.Context) *models.AdminUser {
	user, _ := c.MustGet(contextUserKey).(*models.AdminUser)
	return user
}

func isAPIRequest(c *gin.Context) bool {
	path := c.Request.URL.Path
	return strings.Contains(path, "/api/") || strings.HasSuffix(path, "/api")
}

func (a *AdminModule) loginPage(c *gin.Context) {
	session := sessions.Default(c)
	if id, _ := session.Get(sessionUserKey).(uint); id != 0 {
		c.Redirect(http.StatusFound, "/admin")
		return
	}
	c.HTML(http.StatusOK, "admin_login.html", gin.H{"next": safeNext(c.Query("next"))})
}

func (a *AdminModule) loginPost(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	next := safeNext(c.PostForm("next"))
	fail := func(status int, message string) {
		c.HTML(status, "admin_login.html", gin.H{"error": message, "email": email, "next": next})
	}

	if !a.loginLimiter.Allow(c.ClientIP()) {
		fail(http.StatusTooManyRequests, "Too many sign-in attempts. Try again in a minute.")
		return
	}

	var user models.AdminUser
	if err := a.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.S().Errorw("loading admin user", "error", err)
		}
		fail(http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	if !CheckPassword(c.PostForm("password"), user.PasswordHash) {
		fail(http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	if !user.Active {
		fail(http.StatusForbidden, "This account has been disabled.")
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		zap.S().Errorw("saving session", "error", err)
		fail(http.StatusInternalServerError, "Could not sign you in. Please try again.")
		return
	}

	now := a.now()
	a.db.WithContext(c.Request.Context()).Model(&user).Update("last_login_at", &now)
	zap.S().Infow("admin signed in", "user_id", user.ID)

	c.Redirect(http.StatusFound, next)
}

func (a *AdminModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	session.Save()
	c.Redirect(http.StatusFound, "/admin/login")
}

// safeNext keeps post-login redirects inside the admin.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/admin") && !strings.HasPrefix(next, "/admin/login") {
		return next
	}
	return "/admin"
}

type DashboardCounts struct {
	NewContacts          int64 `json:"new_contacts"`
	PendingConsultations int64 `json:"pending_consultations"`
	PendingApplications  int64 `json:"pending_applications"`
	ActiveSubscribers    int64 `json:"active_subscribers"`
	PublishedPosts       int64 `json:"published_posts"`
}

func (a *AdminModule) Counts(ctx context.Context) (DashboardCounts, error) {
	var counts DashboardCounts
	db := a.db.WithContext(ctx)
	queries := []struct {
		model any
		where string
		value string
		dest  *int64
	}{
		{&models.ContactSubmission{}, "status = ?", models.ContactNew, &counts.NewContacts},
		{&models.ConsultationRequest{}, "status = ?", models.ConsultationPending, &counts.PendingConsultations},
		{&models.JobApplication{}, "status = ?", models.ApplicationPending, &counts.PendingApplications},
		{&models.NewsletterSubscription{}, "status = ?", models.SubscriptionActive, &counts.ActiveSubscribers},
		{&models.BlogPost{}, "status = ?", models.StatusPublished, &counts.PublishedPosts},
	}
	for _, q := range queries {
		if err := db.Model(q.model).Where(q.where, q.value).Count(q.dest).Error; err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (a *AdminModule) dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := a.Counts(ctx)
	if err != nil {
		zap.S().Errorw("loading dashboard counts", "error", err)
	}

	data := gin.H{
		"user":   CurrentUser(c),
		"counts": counts,
	}
	if a.analytics != nil {
		if report, err := a.analytics.Summary(ctx, 30); err == nil {
			data["report"] = report
		} else {
			zap.S().Errorw("loading dashboard analytics", "error", err)
		}
		if searches, err := a.analytics.Searches(ctx, 30, 10); err == nil {
			data["searches"] = searches
		}
	}
	c.HTML(http.StatusOK, "admin_dashboard.html", data)
}

// purge drops the public page cache after content changes.
func (a *AdminModule) purge(ctx context.Context) {
	if err := a.cache.Purge(ctx); err != nil {
		zap.S().Warnw("purging page cache", "error", err)
	}
}

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateUser adds an active admin account.
func CreateUser(ctx context.Context, db *gorm.DB, email, name, password, role string) (*models.AdminUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role == "" {
		role = models.RoleEditor
	}
	fields := common.ValidateStruct(struct {
		Email string `json:"email" validate:"required,email,max=191"`
		Name  string `json:"name" validate:"max=120"`
		Role  string `json:"role" validate:"oneof=admin editor"`
	}{email, name, role})
	if fields != nil {
		return nil, &common.FieldErrors{Fields: fields}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.AdminUser{Email: email, Name: strings.TrimSpace(name), PasswordHash: hash, Role: role, Active: true}
	if err := store.New[models.AdminUser](db, store.Spec{}).Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: an account for %s already exists", store.ErrConflict, email)
		}
		return nil, err
	}
	return user, nil
}
