package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// ParseListOptions reads status, q, from, to, sort, order, limit and offset
// from the query string. "to" is inclusive of the whole day.
func ParseListOptions(c *gin.Context) (ListOptions, error) {
	opts := ListOptions{
		Status: strings.TrimSpace(c.Query("status")),
		Search: strings.TrimSpace(c.Query("q")),
		Sort:   strings.TrimSpace(c.Query("sort")),
		Desc:   !strings.EqualFold(c.Query("order"), "asc"),
	}

	if v := c.Query("from"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return opts, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidField)
		}
		opts.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return opts, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidField)
		}
		t = t.AddDate(0, 0, 1)
		opts.To = &t
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return opts, fmt.Errorf("%w: from must not be after to", ErrInvalidField)
	}

	var err error
	if opts.Limit, err = intParam(c, "limit", 50); err != nil {
		return opts, err
	}
	if opts.Offset, err = intParam(c, "offset", 0); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidField, name)
	}
	return n, nil
}
