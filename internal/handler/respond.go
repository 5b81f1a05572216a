package handler

import (
	"errors"
	"net/http"

	"Chorus/internal/apperr"

	"github.com/gin-gonic/gin"
)

// writeError 统一把业务错误映射到 HTTP 状态码
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, apperr.ErrConfig):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
