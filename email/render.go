package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateData is what email templates can reference.
type TemplateData struct {
	Name           string
	Email          string
	SiteName       string
	Domain         string
	Content        string
	UnsubscribeURL string
	Fields         map[string]string
}

// Render executes subject and body as text/templates against data.
func Render(subject, body string, data TemplateData) (string, string, error) {
	s, err := execute("subject", subject, data)
	if err != nil {
		return "", "", err
	}
	b, err := execute("body", body, data)
	if err != nil {
		return "", "", err
	}
	return s, b, nil
}

func execute(name, src string, data TemplateData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}
