package common

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	slugInvalid   = regexp.MustCompile(`[^a-z0-9-]+`)
	slugHyphens   = regexp.MustCompile(`-{2,}`)
	slugValidForm = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Slugify transliterates s to ASCII and reduces it to lowercase words joined by hyphens.
func Slugify(s string) string {
	slug := strings.ToLower(unidecode.Unidecode(s))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func IsValidSlug(s string) bool {
	return slugValidForm.MatchString(s)
}
