package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"urban-issue-service/internal/auth"
	"urban-issue-service/internal/classifier"
	"urban-issue-service/internal/db"
	"urban-issue-service/internal/hotspot"
	"urban-issue-service/internal/models"
)

var (
	errTooLarge  = errors.New("upload too large")
	errForbidden = errors.New("access denied")
)

// statusFor maps a handler error onto an HTTP status.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, classifier.ErrImagePreprocessing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, hotspot.ErrClustering) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, hotspot.ErrClustering):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	c.Error(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
