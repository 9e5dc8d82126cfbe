package common

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// StripTags removes all markup from user-submitted text and returns it as plain text.
func StripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// SanitizeHTML keeps the safe subset of HTML produced by rendered markdown.
func SanitizeHTML(s string) string {
	return ugcPolicy.Sanitize(s)
}
