package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/common"
	"axiscyber/email"
	"axiscyber/media"
	"axiscyber/store"
)

// readOnlyKeys are never copied from a request body onto a row.
var readOnlyKeys = []string{"id", "created_at", "updated_at"}

// resource serves the JSON CRUD endpoints of one table.
type resource[T any] struct {
	repo *store.Repository[T]

	// prepare normalizes a decoded row and returns field errors, if any.
	prepare func(ctx context.Context, item *T) map[string]string
	// related updates associations inside the save transaction. body is the
	// full request body, including stripped keys.
	related func(tx *gorm.DB, item *T, body map[string]json.RawMessage) error
	// strip lists body keys handled outside of plain decoding.
	strip []string
	// editable, when set, limits updates to these keys.
	editable []string

	setStatus func(ctx context.Context, id uint, status string) error
	remove    func(ctx context.Context, id uint) error
	creatable bool
	purge     func(ctx context.Context)
}

func (r *resource[T]) register(group *gin.RouterGroup) {
	group.GET("", r.list)
	group.GET("/:id", r.get)
	if r.creatable {
		group.POST("", r.create)
	}
	group.PUT("/:id", r.update)
	group.DELETE("/:id", r.delete)
	group.POST("/:id/toggle/:field", r.toggle)
	group.POST("/:id/status", r.status)
}

func (r *resource[T]) list(c *gin.Context) {
	opts, err := store.ParseListOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, total, err := r.repo.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	common.List(c, items, total)
}

func (r *resource[T]) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := r.repo.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	common.OK(c, item)
}

func (r *resource[T]) create(c *gin.Context) {
	item := new(T)
	body, ok := r.decode(c, item, false)
	if !ok {
		return
	}
	r.save(c, item, body, true)
}

// update merges the request body onto the stored row.
func (r *resource[T]) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := r.repo.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	body, ok := r.decode(c, item, true)
	if !ok {
		return
	}
	r.save(c, item, body, false)
}

func (r *resource[T]) decode(c *gin.Context, item *T, updating bool) (map[string]json.RawMessage, bool) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	fields := make(map[string]json.RawMessage, len(body))
	for k, v := range body {
		if slices.Contains(readOnlyKeys, k) || slices.Contains(r.strip, k) {
			continue
		}
		if updating && len(r.editable) > 0 && !slices.Contains(r.editable, k) {
			continue
		}
		fields[k] = v
	}

	raw, err := json.Marshal(fields)
	if err == nil {
		err = json.Unmarshal(raw, item)
	}
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			common.Invalid(c, map[string]string{typeErr.Field: "has the wrong type"})
			return nil, false
		}
		common.Fail(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return body, true
}

func (r *resource[T]) save(c *gin.Context, item *T, body map[string]json.RawMessage, creating bool) {
	ctx := c.Request.Context()
	if r.prepare != nil {
		if fields := r.prepare(ctx, item); len(fields) > 0 {
			common.Invalid(c, fields)
			return
		}
	}

	err := r.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		repo := r.repo.With(tx)
		var err error
		if creating {
			err = repo.Create(ctx, item)
		} else {
			err = repo.Save(ctx, item)
		}
		if err != nil {
			return err
		}
		if r.related != nil {
			return r.related(tx, item, body)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	r.purge(ctx)

	saved, err := r.repo.Reload(ctx, item)
	if err != nil {
		respondError(c, err)
		return
	}
	if creating {
		common.Created(c, saved)
		return
	}
	common.OK(c, saved)
}

func (r *resource[T]) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	remove := r.repo.Delete
	if r.remove != nil {
		remove = r.remove
	}
	if err := remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	r.purge(c.Request.Context())
	common.OK(c, gin.H{"id": id})
}

// toggle flips a boolean column and answers with the refetched row.
func (r *resource[T]) toggle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := r.repo.Toggle(ctx, id, c.Param("field")); err != nil {
		respondError(c, err)
		return
	}
	r.purge(ctx)
	r.get(c)
}

func (r *resource[T]) status(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		common.Invalid(c, map[string]string{"status": "is required"})
		return
	}

	r.applyStatus(c, id, body.Status)
}

// transition serves a fixed status change such as publish.
func (r *resource[T]) transition(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		r.applyStatus(c, id, status)
	}
}

func (r *resource[T]) applyStatus(c *gin.Context, id uint, status string) {
	setStatus := r.repo.SetStatus
	if r.setStatus != nil {
		setStatus = r.setStatus
	}
	ctx := c.Request.Context()
	if err := setStatus(ctx, id, status); err != nil {
		respondError(c, err)
		return
	}
	r.purge(ctx)
	r.get(c)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// respondError maps domain errors onto the JSON envelope.
func respondError(c *gin.Context, err error) {
	var fieldErrs *common.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		common.Invalid(c, fieldErrs.Fields)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalidField):
		common.Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		common.Fail(c, http.StatusConflict, "a record with the same slug already exists")
	case errors.Is(err, email.ErrCampaignNotSendable):
		common.Fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, media.ErrTooLarge):
		common.Fail(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrEmptyFile):
		common.Fail(c, http.StatusBadRequest, err.Error())
	default:
		zap.S().Errorw("admin request failed", "path", c.Request.URL.Path, "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
	}
}
