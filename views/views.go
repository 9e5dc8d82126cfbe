// Package views holds the HTML templates of the public site and the admin.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"axiscyber/models"
)

//go:embed templates/*.html
var files embed.FS

type Site struct {
	Name   string
	Domain string
}

func FuncMap(site Site) template.FuncMap {
	return template.FuncMap{
		"now": func() time.Time {
			return time.Now()
		},
		"domain": func() string {
			return site.Domain
		},
		"siteName": func() string {
			return site.Name
		},
		"date": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format("January 2, 2006")
			case *time.Time:
				if v == nil {
					return ""
				}
				return v.Format("January 2, 2006")
			}
			return ""
		},
		"join": strings.Join,
		"percent": func(rate float64) string {
			return fmt.Sprintf("%.0f%%", rate*100)
		},
		"list": func(raw datatypes.JSON) []string {
			return models.StringList(raw)
		},
	}
}

// Parse builds the template set; each file is addressable by its base name.
func Parse(site Site) (*template.Template, error) {
	return template.New("").Funcs(FuncMap(site)).ParseFS(files, "templates/*.html")
}

// Install makes the templates available to c.HTML.
func Install(router *gin.Engine, site Site) error {
	tmpl, err := Parse(site)
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)
	return nil
}
