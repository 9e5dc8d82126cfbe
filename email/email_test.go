package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscyber/models"
	"axiscyber/store"
	"axiscyber/testutil"
)

type recorder struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (r *recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

func TestRender(t *testing.T) {
	subject, body, err := Render("{{.SiteName}} news", "Hi {{if .Name}}{{.Name}}{{else}}there{{end}}!", TemplateData{SiteName: "Axis"})
	require.NoError(t, err)
	assert.Equal(t, "Axis news", subject)
	assert.Equal(t, "Hi there!", body)

	_, _, err = Render("ok", "{{.Broken", TemplateData{})
	assert.Error(t, err)
}

func TestHeaderSafe(t *testing.T) {
	assert.Equal(t, "Hello  Bcc: x", headerSafe("Hello\r\nBcc: x"))
	assert.NotContains(t, headerSafe("a\r\nb"), "\n")
}

func TestNotifier_NotifyLead(t *testing.T) {
	db := testutil.NewDB(t, &models.EmailTemplate{})
	require.NoError(t, db.Create(&models.EmailTemplate{
		Name: "Contact Ack", Slug: "contact-acknowledgement", Subject: "Thanks {{.Name}}",
		Body: "Hi {{.Name}}, thanks for contacting {{.SiteName}}.", Active: true,
	}).Error)

	rec := &recorder{}
	n := NewNotifier(db, rec, "sales@axiscyber.tech", "Axis Cyber")
	n.NotifyLead(Lead{
		Kind: "contact", Name: "Ada", Email: "ada@example.com",
		AckTemplate: "contact-acknowledgement",
		Fields:      map[string]string{"message": "Need a pentest", "company": ""},
	})
	n.Wait()

	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "sales@axiscyber.tech", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "New contact from Ada")
	assert.Contains(t, msgs[0].Body, "message: Need a pentest")
	assert.NotContains(t, msgs[0].Body, "company:")

	assert.Equal(t, "ada@example.com", msgs[1].To)
	assert.Equal(t, "Thanks Ada", msgs[1].Subject)
	assert.Equal(t, "Hi Ada, thanks for contacting Axis Cyber.", msgs[1].Body)
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	n.NotifyLead(Lead{Kind: "contact"})
	n.Wait()
}

func setupCampaign(t *testing.T) (*Dispatcher, *recorder, *models.EmailCampaign) {
	db := testutil.NewDB(t, &models.EmailTemplate{}, &models.EmailCampaign{}, &models.NewsletterSubscription{})

	tmpl := models.EmailTemplate{
		Name: "Newsletter", Slug: "newsletter", Subject: "{{.SiteName}} update",
		Body: "Hi {{.Name}}\n{{.Content}}", Active: true,
	}
	require.NoError(t, db.Create(&tmpl).Error)

	subs := []models.NewsletterSubscription{
		{Email: "a@example.com", Name: "A", UnsubscribeToken: "tok-a"},
		{Email: "b@example.com", Name: "B", UnsubscribeToken: "tok-b"},
		{Email: "gone@example.com", UnsubscribeToken: "tok-c", Status: models.SubscriptionUnsubscribed},
	}
	require.NoError(t, db.Create(&subs).Error)

	campaign := models.EmailCampaign{Name: "October", TemplateID: &tmpl.ID, Body: "Patch your VPN."}
	require.NoError(t, db.Create(&campaign).Error)

	rec := &recorder{fail: map[string]bool{}}
	return NewDispatcher(db, rec, "Axis", "https://axiscyber.tech"), rec, &campaign
}

func TestDispatcher_SendCampaign(t *testing.T) {
	d, rec, campaign := setupCampaign(t)

	got, err := d.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignSent, got.Status)
	assert.Equal(t, 2, got.RecipientCount)
	assert.Equal(t, 2, got.SentCount)
	assert.Equal(t, 0, got.FailedCount)
	assert.NotNil(t, got.SentAt)

	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a@example.com", msgs[0].To)
	assert.Equal(t, "Axis update", msgs[0].Subject)
	assert.True(t, strings.HasPrefix(msgs[0].Body, "Hi A\nPatch your VPN."))
	assert.Contains(t, msgs[0].Body, "https://axiscyber.tech/newsletter/unsubscribe/tok-a")

	var stored models.EmailCampaign
	require.NoError(t, d.db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignSent, stored.Status)
	assert.Equal(t, 2, stored.SentCount)

	_, err = d.SendCampaign(context.Background(), campaign.ID)
	assert.ErrorIs(t, err, ErrCampaignNotSendable)
}

func TestDispatcher_AllFailed(t *testing.T) {
	d, rec, campaign := setupCampaign(t)
	rec.fail["a@example.com"] = true
	rec.fail["b@example.com"] = true

	got, err := d.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFailed, got.Status)
	assert.Equal(t, 2, got.FailedCount)
}

func TestDispatcher_PartialFailure(t *testing.T) {
	d, rec, campaign := setupCampaign(t)
	rec.fail["b@example.com"] = true

	got, err := d.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignSent, got.Status)
	assert.Equal(t, 1, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)
}

// cancellingSender delivers one message and then cancels the send context.
type cancellingSender struct {
	recorder
	cancel context.CancelFunc
}

func (c *cancellingSender) Send(ctx context.Context, msg Message) error {
	if err := c.recorder.Send(ctx, msg); err != nil {
		return err
	}
	c.cancel()
	return nil
}

func TestDispatcher_CancelledMidSend(t *testing.T) {
	d, _, campaign := setupCampaign(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{cancel: cancel}
	d.sender = sender

	got, err := d.SendCampaign(ctx, campaign.ID)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, got)
	assert.Len(t, sender.messages(), 1)

	var stored models.EmailCampaign
	require.NoError(t, d.db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignSent, stored.Status)
	assert.Equal(t, 2, stored.RecipientCount)
	assert.Equal(t, 1, stored.SentCount)
	assert.NotNil(t, stored.SentAt)
}

func TestDispatcher_CancelledBeforeAnyDelivery(t *testing.T) {
	d, rec, campaign := setupCampaign(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.SendCampaign(ctx, campaign.ID)
	require.Error(t, err)
	assert.Empty(t, rec.messages())

	var stored models.EmailCampaign
	require.NoError(t, d.db.First(&stored, campaign.ID).Error)
	assert.NotEqual(t, models.CampaignSending, stored.Status)
}

func TestDispatcher_NotFound(t *testing.T) {
	d, _, _ := setupCampaign(t)
	_, err := d.SendCampaign(context.Background(), 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatcher_SendDue(t *testing.T) {
	d, rec, campaign := setupCampaign(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	future := now.Add(time.Hour)
	later := models.EmailCampaign{Name: "Later", Body: "later", Subject: "Later", Status: models.CampaignScheduled, ScheduledAt: &future}
	require.NoError(t, d.db.Create(&later).Error)

	past := now.Add(-time.Minute)
	require.NoError(t, d.db.Model(campaign).Updates(map[string]any{"status": models.CampaignScheduled, "scheduled_at": past}).Error)

	n, err := d.SendDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.messages(), 2)

	var stored models.EmailCampaign
	require.NoError(t, d.db.First(&stored, later.ID).Error)
	assert.Equal(t, models.CampaignScheduled, stored.Status)
}

func TestDispatcher_Preview(t *testing.T) {
	d, _, campaign := setupCampaign(t)
	require.NoError(t, d.db.Preload("Template").First(campaign, campaign.ID).Error)

	subject, body, err := d.Preview(campaign)
	require.NoError(t, err)
	assert.Equal(t, "Axis update", subject)
	assert.Equal(t, "Hi Preview Recipient\nPatch your VPN.", body)
}
