package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"axiscyber/common"
	"axiscyber/email"
	"axiscyber/models"
)

func (a *AdminModule) registerCampaignRoutes(group *gin.RouterGroup, campaigns *resource[models.EmailCampaign]) {
	group.POST("/:id/preview", a.previewCampaign(campaigns))
	group.POST("/:id/schedule", a.scheduleCampaign(campaigns))
	group.POST("/:id/send", a.sendCampaign)
}

func (a *AdminModule) previewCampaign(campaigns *resource[models.EmailCampaign]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		campaign, err := campaigns.repo.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if a.dispatcher == nil {
			common.Fail(c, http.StatusServiceUnavailable, "email is not configured")
			return
		}

		subject, body, err := a.dispatcher.Preview(campaign)
		if err != nil {
			common.Invalid(c, map[string]string{"body": "is not a valid template: " + err.Error()})
			return
		}
		common.OK(c, gin.H{"subject": subject, "body": body})
	}
}

// scheduleCampaign queues a draft or scheduled campaign for the scheduler.
func (a *AdminModule) scheduleCampaign(campaigns *resource[models.EmailCampaign]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var body struct {
			ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			common.Invalid(c, map[string]string{"scheduled_at": "must be an RFC 3339 timestamp"})
			return
		}
		if !body.ScheduledAt.After(a.now()) {
			common.Invalid(c, map[string]string{"scheduled_at": "must be in the future"})
			return
		}

		ctx := c.Request.Context()
		result := a.db.WithContext(ctx).Model(&models.EmailCampaign{}).
			Where("id = ? AND status IN ?", id, []string{models.CampaignDraft, models.CampaignScheduled}).
			Updates(map[string]any{"status": models.CampaignScheduled, "scheduled_at": body.ScheduledAt})
		if result.Error != nil {
			respondError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			if _, err := campaigns.repo.Get(ctx, id); err != nil {
				respondError(c, err)
				return
			}
			respondError(c, fmt.Errorf("%w: already sent", email.ErrCampaignNotSendable))
			return
		}
		campaigns.get(c)
	}
}

func (a *AdminModule) sendCampaign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if a.dispatcher == nil {
		common.Fail(c, http.StatusServiceUnavailable, "email is not configured")
		return
	}

	campaign, err := a.dispatcher.SendCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	zap.S().Infow("campaign sent", "campaign_id", id, "sent", campaign.SentCount, "failed", campaign.FailedCount)
	common.OK(c, campaign)
}
