package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"axiscyber/common"
	"axiscyber/media"
	"axiscyber/models"
	"axiscyber/store"
)

func (a *AdminModule) registerMediaRoutes(group *gin.RouterGroup) {
	files := &resource[models.MediaFile]{
		repo: store.New[models.MediaFile](a.db, store.Spec{
			SearchColumns: []string{"file_name", "alt_text"},
			SortColumns:   []string{"file_name", "size"},
			FilterColumns: []string{"folder", "mime_type"},
		}),
		editable: []string{"alt_text", "folder"},
		purge:    a.purge,
		prepare: func(_ context.Context, f *models.MediaFile) map[string]string {
			f.AltText = strings.TrimSpace(f.AltText)
			f.Folder = strings.TrimSpace(f.Folder)
			return common.ValidateStruct(struct {
				AltText string `json:"alt_text" validate:"max=255"`
				Folder  string `json:"folder" validate:"max=120"`
			}{f.AltText, f.Folder})
		},
	}
	if a.media != nil {
		files.remove = a.media.Delete
	}
	files.register(group)
	group.POST("", a.uploadMedia)
}

func (a *AdminModule) uploadMedia(c *gin.Context) {
	if a.media == nil {
		common.Fail(c, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		common.Invalid(c, map[string]string{"file": "is required"})
		return
	}

	file, err := a.media.Upload(c.Request.Context(), fh, c.PostForm("folder"))
	if err != nil {
		respondError(c, err)
		return
	}
	if alt := strings.TrimSpace(c.PostForm("alt_text")); alt != "" {
		a.db.WithContext(c.Request.Context()).Model(file).Update("alt_text", alt)
		file.AltText = alt
	}
	common.Created(c, file)
}
