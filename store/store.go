// Package store is the table-level CRUD layer the admin API and the public
// pages share. Every column a caller may name (sort, filter, toggle) is
// checked against the resource's Spec before it reaches SQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidField = errors.New("invalid field")
	ErrConflict     = errors.New("record already exists")
)

// Spec describes which columns of a table callers may act on.
type Spec struct {
	StatusColumn  string
	Statuses      []string
	SearchColumns []string
	SortColumns   []string
	DefaultSort   string
	DefaultDesc   bool
	FilterColumns []string
	ToggleColumns []string
	Preloads      []string
}

type ListOptions struct {
	Status  string
	Search  string
	From    *time.Time
	To      *time.Time
	Filters map[string]any
	Sort    string
	Desc    bool
	Limit   int
	Offset  int
}

const MaxLimit = 200

type Repository[T any] struct {
	db   *gorm.DB
	spec Spec
}

func New[T any](db *gorm.DB, spec Spec) *Repository[T] {
	if spec.DefaultSort == "" {
		spec.DefaultSort = "created_at"
		spec.DefaultDesc = true
	}
	return &Repository[T]{db: db, spec: spec}
}

func (r *Repository[T]) Spec() Spec {
	return r.spec
}

// DB exposes the handle for queries the generic methods do not cover.
func (r *Repository[T]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *Repository[T]) withPreloads(q *gorm.DB) *gorm.DB {
	for _, p := range r.spec.Preloads {
		q = q.Preload(p)
	}
	return q
}

// List returns the page of rows matching opts and the total number of matches.
func (r *Repository[T]) List(ctx context.Context, opts ListOptions) ([]T, int64, error) {
	q := r.db.WithContext(ctx).Model(new(T))

	if opts.Status != "" {
		if r.spec.StatusColumn == "" {
			return nil, 0, fmt.Errorf("%w: status filter not supported", ErrInvalidField)
		}
		if !slices.Contains(r.spec.Statuses, opts.Status) {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidField, opts.Status)
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: r.spec.StatusColumn}, Value: opts.Status})
	}

	if s := strings.TrimSpace(opts.Search); s != "" && len(r.spec.SearchColumns) > 0 {
		pattern := "%" + strings.ToLower(s) + "%"
		exprs := make([]clause.Expression, 0, len(r.spec.SearchColumns))
		for _, col := range r.spec.SearchColumns {
			exprs = append(exprs, clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{clause.Column{Name: col}, pattern}})
		}
		q = q.Where(clause.Or(exprs...))
	}

	if opts.From != nil {
		q = q.Where("created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("created_at < ?", *opts.To)
	}

	for col, val := range opts.Filters {
		if !slices.Contains(r.spec.FilterColumns, col) {
			return nil, 0, fmt.Errorf("%w: cannot filter on %q", ErrInvalidField, col)
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: col}, Value: val})
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortCol, desc := r.spec.DefaultSort, r.spec.DefaultDesc
	if opts.Sort != "" {
		if opts.Sort != r.spec.DefaultSort && !slices.Contains(r.spec.SortColumns, opts.Sort) {
			return nil, 0, fmt.Errorf("%w: cannot sort on %q", ErrInvalidField, opts.Sort)
		}
		sortCol, desc = opts.Sort, opts.Desc
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: sortCol}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})

	if opts.Limit > 0 {
		q = q.Limit(min(opts.Limit, MaxLimit))
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	items := []T{}
	if err := r.withPreloads(q).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *Repository[T]) Get(ctx context.Context, id uint) (*T, error) {
	item := new(T)
	if err := r.withPreloads(r.db.WithContext(ctx)).First(item, id).Error; err != nil {
		return nil, translate(err)
	}
	return item, nil
}

// Reload fetches item's row again, with preloads, by its ID field.
func (r *Repository[T]) Reload(ctx context.Context, item *T) (*T, error) {
	id := reflect.Indirect(reflect.ValueOf(item)).FieldByName("ID")
	if !id.IsValid() || !id.CanUint() || id.Uint() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, uint(id.Uint()))
}

// GetBy loads the first row whose column equals value.
func (r *Repository[T]) GetBy(ctx context.Context, column string, value any) (*T, error) {
	item := new(T)
	err := r.withPreloads(r.db.WithContext(ctx)).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		First(item).Error
	if err != nil {
		return nil, translate(err)
	}
	return item, nil
}

// With returns a repository bound to tx, for use inside a transaction.
func (r *Repository[T]) With(tx *gorm.DB) *Repository[T] {
	return &Repository[T]{db: tx, spec: r.spec}
}

// Create inserts item. Associations are left alone; callers manage them explicitly.
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error)
}

func (r *Repository[T]) Save(ctx context.Context, item *T) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(item).Error)
}

func (r *Repository[T]) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(new(T), id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle flips a boolean column and returns its new value.
func (r *Repository[T]) Toggle(ctx context.Context, id uint, column string) (bool, error) {
	if !slices.Contains(r.spec.ToggleColumns, column) {
		return false, fmt.Errorf("%w: cannot toggle %q", ErrInvalidField, column)
	}

	var value bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []bool
		if err := tx.Model(new(T)).Where("id = ?", id).Pluck(column, &current).Error; err != nil {
			return err
		}
		if len(current) == 0 {
			return ErrNotFound
		}
		value = !current[0]
		return tx.Model(new(T)).Where("id = ?", id).Update(column, value).Error
	})
	return value, err
}

// SetStatus moves a row to one of the resource's known statuses.
func (r *Repository[T]) SetStatus(ctx context.Context, id uint, status string) error {
	if r.spec.StatusColumn == "" {
		return fmt.Errorf("%w: resource has no status", ErrInvalidField)
	}
	if !slices.Contains(r.spec.Statuses, status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidField, status)
	}

	result := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Update(r.spec.StatusColumn, status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts item, or overwrites every column of the row whose column
// equals value with item's fields, zero values included. item is reloaded
// from the database either way.
func (r *Repository[T]) Upsert(ctx context.Context, item *T, column string, value any) error {
	return r.UpsertWhere(ctx, item, map[string]any{column: value})
}

// UpsertWhere is Upsert keyed by several columns. The primary key and
// created_at of an existing row are kept; associations are not touched.
func (r *Repository[T]) UpsertWhere(ctx context.Context, item *T, match map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing T
		err := tx.Where(match).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return translate(tx.Create(item).Error)
		}
		if err != nil {
			return err
		}

		err = tx.Model(&existing).
			Select("*").
			Omit(clause.Associations, "id", "created_at").
			Updates(item).Error
		if err != nil {
			return translate(err)
		}

		var fresh T
		if err := tx.Where(match).Take(&fresh).Error; err != nil {
			return err
		}
		*item = fresh
		return nil
	})
}

// Count returns how many rows match opts, ignoring paging and sort.
func (r *Repository[T]) Count(ctx context.Context, opts ListOptions) (int64, error) {
	opts.Sort, opts.Desc = "", false
	opts.Limit, opts.Offset = 1, 0
	_, total, err := r.List(ctx, opts)
	return total, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// isUniqueViolation catches drivers that do not translate errors.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
