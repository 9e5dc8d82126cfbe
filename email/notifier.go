package email

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/models"
)

// Lead describes a form submission worth telling someone about.
type Lead struct {
	Kind  string // contact, consultation, application
	Name  string
	Email string
	// AckTemplate is the slug of the template acknowledging the submitter.
	AckTemplate string
	Fields      map[string]string
}

// Notifier mails lead notifications in the background.
type Notifier struct {
	db       *gorm.DB
	sender   Sender
	notifyTo string
	siteName string
	wg       sync.WaitGroup
}

func NewNotifier(db *gorm.DB, sender Sender, notifyTo, siteName string) *Notifier {
	return &Notifier{db: db, sender: sender, notifyTo: notifyTo, siteName: siteName}
}

// NotifyLead returns immediately; failures are logged.
func (n *Notifier) NotifyLead(lead Lead) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n.deliver(ctx, lead)
	}()
}

// Wait blocks until every pending notification finished.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (n *Notifier) deliver(ctx context.Context, lead Lead) {
	if n.notifyTo != "" {
		msg := Message{
			To:      n.notifyTo,
			Subject: fmt.Sprintf("[%s] New %s from %s", n.siteName, lead.Kind, lead.Name),
			Body:    summary(lead),
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			zap.S().Errorw("sending lead notification", "kind", lead.Kind, "error", err)
		}
	}

	if lead.AckTemplate == "" || lead.Email == "" {
		return
	}

	var tmpl models.EmailTemplate
	err := n.db.WithContext(ctx).Where("slug = ? AND active = ?", lead.AckTemplate, true).First(&tmpl).Error
	if err != nil {
		return
	}

	subject, body, err := Render(tmpl.Subject, tmpl.Body, TemplateData{
		Name:     lead.Name,
		Email:    lead.Email,
		SiteName: n.siteName,
		Fields:   lead.Fields,
	})
	if err != nil {
		zap.S().Errorw("rendering acknowledgement", "template", tmpl.Slug, "error", err)
		return
	}
	if err := n.sender.Send(ctx, Message{To: lead.Email, Subject: subject, Body: body}); err != nil {
		zap.S().Errorw("sending acknowledgement", "template", tmpl.Slug, "error", err)
	}
}

func summary(lead Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\n", lead.Name, lead.Email)

	keys := make([]string, 0, len(lead.Fields))
	for k := range lead.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := lead.Fields[k]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}
