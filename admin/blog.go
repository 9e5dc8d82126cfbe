package admin

import (
	"github.com/gin-gonic/gin"

	"axiscyber/models"
)

func (a *AdminModule) registerBlogRoutes(group *gin.RouterGroup, posts *resource[models.BlogPost]) {
	group.POST("/:id/publish", posts.transition(models.StatusPublished))
	group.POST("/:id/unpublish", posts.transition(models.StatusDraft))
}
