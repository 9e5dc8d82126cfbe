// Package backoffice is the account and maintenance area reserved for the
// operators listed in BACKOFFICE_EMAILS.
package backoffice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/admin"
	"axiscyber/cache"
	"axiscyber/common"
	"axiscyber/models"
	"axiscyber/store"
)

type BackofficeModule struct {
	db        *gorm.DB
	users     *store.Repository[models.AdminUser]
	auth      gin.HandlerFunc
	isAllowed func(email string) bool
	cache     cache.Store
}

// NewBackofficeModule gates every route behind auth, which must load the
// signed-in admin, and then behind isAllowed on that admin's email.
func NewBackofficeModule(db *gorm.DB, auth gin.HandlerFunc, isAllowed func(string) bool, pageCache cache.Store) *BackofficeModule {
	if pageCache == nil {
		pageCache = cache.Nop{}
	}
	return &BackofficeModule{
		db: db,
		users: store.New[models.AdminUser](db, store.Spec{
			SearchColumns: []string{"email", "name"},
			SortColumns:   []string{"email", "name", "last_login_at"},
			FilterColumns: []string{"role", "active"},
			ToggleColumns: []string{"active"},
		}),
		auth:      auth,
		isAllowed: isAllowed,
		cache:     pageCache,
	}
}

func (b *BackofficeModule) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/backoffice/api", b.auth, b.requireBackoffice)
	{
		group.GET("/users", b.listUsers)
		group.POST("/users", b.createUser)
		group.POST("/users/:id/toggle-active", b.toggleActive)
		group.POST("/users/:id/password", b.setPassword)
		group.POST("/cache/purge", b.purgeCache)
	}
}

func (b *BackofficeModule) requireBackoffice(c *gin.Context) {
	user := admin.CurrentUser(c)
	if user == nil || !b.isAllowed(user.Email) {
		zap.S().Warnw("backoffice access denied", "email", userEmail(user))
		common.Fail(c, http.StatusForbidden, "backoffice access denied")
		return
	}
	c.Next()
}

func userEmail(user *models.AdminUser) string {
	if user == nil {
		return ""
	}
	return user.Email
}

func (b *BackofficeModule) listUsers(c *gin.Context) {
	opts, err := store.ParseListOptions(c)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	users, total, err := b.users.List(c.Request.Context(), opts)
	if err != nil {
		b.fail(c, err)
		return
	}
	common.List(c, users, total)
}

func (b *BackofficeModule) createUser(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := admin.CreateUser(c.Request.Context(), b.db, body.Email, body.Name, body.Password, body.Role)
	if err != nil {
		b.fail(c, err)
		return
	}
	zap.S().Infow("admin account created", "user_id", user.ID, "by", admin.CurrentUser(c).ID)
	common.Created(c, user)
}

func (b *BackofficeModule) toggleActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if id == admin.CurrentUser(c).ID {
		common.Fail(c, http.StatusBadRequest, "you cannot deactivate your own account")
		return
	}

	ctx := c.Request.Context()
	if _, err := b.users.Toggle(ctx, id, "active"); err != nil {
		b.fail(c, err)
		return
	}
	user, err := b.users.Get(ctx, id)
	if err != nil {
		b.fail(c, err)
		return
	}
	common.OK(c, user)
}

func (b *BackofficeModule) setPassword(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	user, err := b.users.Get(ctx, id)
	if err != nil {
		b.fail(c, err)
		return
	}
	hash, err := admin.HashPassword(body.Password)
	if err != nil {
		b.fail(c, err)
		return
	}
	if err := b.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		b.fail(c, err)
		return
	}
	zap.S().Infow("admin password reset", "user_id", id, "by", admin.CurrentUser(c).ID)
	common.OK(c, gin.H{"id": id})
}

func (b *BackofficeModule) purgeCache(c *gin.Context) {
	if err := b.cache.Purge(c.Request.Context()); err != nil {
		b.fail(c, err)
		return
	}
	zap.S().Infow("page cache purged", "by", admin.CurrentUser(c).ID)
	common.OK(c, gin.H{"purged": true})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func (b *BackofficeModule) fail(c *gin.Context, err error) {
	var fieldErrs *common.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		common.Invalid(c, fieldErrs.Fields)
	case errors.Is(err, admin.ErrWeakPassword):
		common.Invalid(c, map[string]string{"password": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		common.Fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		common.Fail(c, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, store.ErrInvalidField):
		common.Fail(c, http.StatusBadRequest, err.Error())
	default:
		zap.S().Errorw("backoffice request failed", "path", c.Request.URL.Path, "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
	}
}
