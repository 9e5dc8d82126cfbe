package common

import (
	"bytes"
	"html/template"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // raw HTML is sanitized afterwards
	),
)

// RenderMarkdown converts markdown to sanitized HTML safe to embed in a page.
func RenderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(SanitizeHTML(buf.String()))
}

// ReadingMinutes estimates reading time at 200 words per minute, at least one.
func ReadingMinutes(content string) int {
	words := len(strings.Fields(content))
	return max(1, int(math.Ceil(float64(words)/200)))
}
