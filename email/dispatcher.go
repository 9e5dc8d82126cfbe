package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/models"
	"axiscyber/store"
)

var ErrCampaignNotSendable = errors.New("campaign is not in a sendable state")

// Dispatcher sends newsletter campaigns to active subscribers.
type Dispatcher struct {
	db       *gorm.DB
	sender   Sender
	siteName string
	domain   string
	now      func() time.Time
}

func NewDispatcher(db *gorm.DB, sender Sender, siteName, domain string) *Dispatcher {
	return &Dispatcher{db: db, sender: sender, siteName: siteName, domain: domain, now: time.Now}
}

// Preview renders a campaign for a sample recipient.
func (d *Dispatcher) Preview(campaign *models.EmailCampaign) (string, string, error) {
	subject, body := campaign.Content()
	return Render(subject, body, TemplateData{
		Name:           "Preview Recipient",
		Email:          "preview@example.com",
		SiteName:       d.siteName,
		Domain:         d.domain,
		Content:        campaign.Body,
		UnsubscribeURL: d.domain + "/newsletter/unsubscribe/preview",
	})
}

// SendCampaign delivers campaign id to every active subscriber and records the outcome.
func (d *Dispatcher) SendCampaign(ctx context.Context, id uint) (*models.EmailCampaign, error) {
	var campaign models.EmailCampaign
	claimed := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Template").First(&campaign, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignScheduled {
			return fmt.Errorf("%w: %s", ErrCampaignNotSendable, campaign.Status)
		}
		result := tx.Model(&models.EmailCampaign{}).
			Where("id = ? AND status = ?", id, campaign.Status).
			Update("status", models.CampaignSending)
		if result.Error != nil {
			return result.Error
		}
		claimed = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrCampaignNotSendable
	}

	var subscribers []models.NewsletterSubscription
	if err := d.db.WithContext(ctx).
		Where("status = ?", models.SubscriptionActive).
		Order("id").
		Find(&subscribers).Error; err != nil {
		d.db.WithContext(context.WithoutCancel(ctx)).Model(&campaign).Update("status", models.CampaignFailed)
		return nil, err
	}

	subjectSrc, bodySrc := campaign.Content()
	sent, failed := 0, 0
	var interrupted error
	for _, sub := range subscribers {
		if interrupted = ctx.Err(); interrupted != nil {
			zap.S().Warnw("campaign delivery interrupted", "campaign", campaign.ID, "sent", sent, "remaining", len(subscribers)-sent-failed)
			break
		}
		unsubscribeURL := d.domain + "/newsletter/unsubscribe/" + sub.UnsubscribeToken
		subject, body, err := Render(subjectSrc, bodySrc, TemplateData{
			Name:           sub.Name,
			Email:          sub.Email,
			SiteName:       d.siteName,
			Domain:         d.domain,
			Content:        campaign.Body,
			UnsubscribeURL: unsubscribeURL,
		})
		if err == nil {
			if !strings.Contains(body, unsubscribeURL) {
				body += "\n\n--\nUnsubscribe: " + unsubscribeURL + "\n"
			}
			err = d.sender.Send(ctx, Message{To: sub.Email, Subject: subject, Body: body})
		}
		if err != nil {
			failed++
			zap.S().Warnw("campaign delivery failed", "campaign", campaign.ID, "to", sub.Email, "error", err)
			continue
		}
		sent++
	}

	// A claimed campaign always leaves the sending state, even when ctx is done.
	status := models.CampaignSent
	if sent == 0 && (failed > 0 || interrupted != nil) {
		status = models.CampaignFailed
	}
	sentAt := d.now()
	updates := map[string]any{
		"status":          status,
		"sent_at":         sentAt,
		"recipient_count": len(subscribers),
		"sent_count":      sent,
		"failed_count":    failed,
	}
	if err := d.db.WithContext(context.WithoutCancel(ctx)).Model(&campaign).Updates(updates).Error; err != nil {
		return nil, err
	}

	zap.S().Infow("campaign sent", "campaign", campaign.ID, "recipients", len(subscribers), "sent", sent, "failed", failed)

	campaign.Status = status
	campaign.SentAt = &sentAt
	campaign.RecipientCount = len(subscribers)
	campaign.SentCount = sent
	campaign.FailedCount = failed
	if interrupted != nil {
		return &campaign, fmt.Errorf("campaign %d interrupted: %w", campaign.ID, interrupted)
	}
	return &campaign, nil
}

// SendDue sends every scheduled campaign whose time has come.
func (d *Dispatcher) SendDue(ctx context.Context) (int, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.EmailCampaign{}).
		Where("status = ? AND scheduled_at <= ?", models.CampaignScheduled, d.now()).
		Order("scheduled_at").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if _, err := d.SendCampaign(ctx, id); err != nil {
			if errors.Is(err, ErrCampaignNotSendable) {
				continue
			}
			zap.S().Errorw("sending scheduled campaign", "campaign", id, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
