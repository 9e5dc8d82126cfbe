package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf/gorilla"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"axiscyber/admin"
	"axiscyber/analytics"
	"axiscyber/backoffice"
	"axiscyber/blog"
	"axiscyber/cache"
	"axiscyber/common"
	"axiscyber/config"
	"axiscyber/database"
	"axiscyber/email"
	"axiscyber/leads"
	"axiscyber/media"
	"axiscyber/ratelimit"
	"axiscyber/scheduler"
	"axiscyber/site"
	"axiscyber/views"
)

const shutdownTimeout = 15 * time.Second

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := common.ConnectDb(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer common.CloseDb(db)

	if err := database.RunMigrations(db); err != nil {
		return err
	}

	analyticsDB, err := common.ConnectAnalyticsDb(cfg.DBDriver, cfg.AnalyticsDatabaseURL, db)
	if err != nil {
		return err
	}
	if analyticsDB != db {
		defer common.CloseDb(analyticsDB)
	}

	geo, err := analytics.OpenGeoIP(cfg.GeoIPDBPath)
	if err != nil {
		zap.S().Warnw("GeoIP disabled", "error", err)
	}
	defer geo.Close()

	tracker := analytics.NewAnalyticsModule(analyticsDB, analytics.Options{
		GeoIP:         geo,
		SecureCookies: cfg.CookieSecure,
		Host:          hostOf(cfg.Domain),
	})
	defer tracker.Wait()

	pageCache, fileCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	if closer, ok := pageCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	library, err := media.NewLibrary(db, cfg.UploadsDir)
	if err != nil {
		return err
	}

	sender := email.NewSender(cfg)
	notifier := email.NewNotifier(db, sender, cfg.NotifyEmail, cfg.SiteName)
	defer notifier.Wait()
	dispatcher := email.NewDispatcher(db, sender, cfg.SiteName, cfg.Domain)

	router, err := newRouter(db, tracker, pageCache, library, notifier, dispatcher)
	if err != nil {
		return err
	}

	jobs := scheduler.New(db, scheduler.Options{
		Dispatcher: dispatcher,
		Analytics:  tracker,
		Cache:      pageCache,
		FileCache:  fileCache,
		Retention:  time.Duration(cfg.AnalyticsRetentionDays) * 24 * time.Hour,
	})
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           protect(router, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.S().Infow("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.S().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(db *gorm.DB, tracker *analytics.AnalyticsModule, pageCache cache.Store, library *media.Library, notifier *email.Notifier, dispatcher *email.Dispatcher) (*gin.Engine, error) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(common.RequestLogger(logger), common.Recovery(logger))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(admin.SessionCookie, store))

	if err := views.Install(router, views.Site{Name: cfg.SiteName, Domain: cfg.Domain}); err != nil {
		return nil, err
	}

	router.Use(common.CanonicalHostMiddleware())
	router.Use(cache.Middleware(pageCache, cache.MiddlewareOptions{
		SessionCookie: admin.SessionCookie,
		OnHit:         tracker.TrackCachedPage,
	}))

	router.Static("/uploads", library.Dir())

	formLimit := ratelimit.PerMinute(cfg.FormRatePerMinute).Middleware()

	site.NewSiteModule(db, tracker, cfg.SiteName, cfg.Domain).RegisterRoutes(router)
	blog.NewBlogModule(db, tracker, cfg.SiteName, cfg.Domain).RegisterRoutes(router)
	leads.NewLeadsModule(db, tracker, notifier, formLimit).RegisterRoutes(router)
	tracker.RegisterRoutes(router, ratelimit.PerMinute(120).Middleware())

	adminModule := admin.NewAdminModule(db, admin.Options{
		Analytics:  tracker,
		Dispatcher: dispatcher,
		Media:      library,
		Cache:      pageCache,
	})
	adminModule.RegisterRoutes(router)
	backoffice.NewBackofficeModule(db, adminModule.RequireAuth, cfg.IsBackofficeEmail, pageCache).RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		common.RenderError(c, http.StatusNotFound, "Page not found")
	})
	return router, nil
}

// openCache picks Redis when REDIS_URL is set and the file cache otherwise.
// The file store is also returned so the scheduler can expire its entries.
func openCache(cfg *config.Config) (cache.Store, *cache.FileStore, error) {
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(cfg.RedisURL, "axiscyber:page:", cfg.CacheTTL)
		if err == nil {
			zap.S().Info("page cache backed by redis")
			return rs, nil, nil
		}
		zap.S().Warnw("redis unavailable, falling back to the file cache", "error", err)
	}
	fs, err := cache.NewFileStore(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs, nil
}

// protect wraps the router with CORS for the JSON endpoints and
// Fetch-metadata CSRF checks on unsafe methods.
func protect(router http.Handler, cfg *config.Config) http.Handler {
	trusted := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if host := hostOf(origin); host != "" {
			trusted = append(trusted, host)
		}
	}

	csrfOpts := []csrf.Option{
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zap.S().Warnw("CSRF check failed",
				"reason", csrf.FailureReason(r),
				"method", r.Method,
				"path", r.URL.Path,
				"origin", r.Header.Get("Origin"),
			)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"success":false,"error":"cross-site request rejected"}`))
		})),
	}
	if len(trusted) > 0 {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins(trusted))
	}
	handler := csrf.Protect([]byte(cfg.SessionSecret)[:32], csrfOpts...)(router)

	if len(cfg.AllowedOrigins) == 0 {
		return handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})(handler)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
