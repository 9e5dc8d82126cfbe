package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON shape every API endpoint answers with.
type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Total   *int64            `json:"total,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// List answers with a page of rows and the unpaginated total.
func List(c *gin.Context, data any, total int64) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Total: &total})
}

func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: message})
}

// Invalid answers 400 with per-field messages.
func Invalid(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{
		Success: false,
		Error:   "validation failed",
		Fields:  fields,
	})
}

// RenderError renders the public error page.
func RenderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{
		"title":   http.StatusText(status),
		"status":  status,
		"message": message,
	})
	c.Abort()
}
