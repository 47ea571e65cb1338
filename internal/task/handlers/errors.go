package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/attempt"
	"github.com/codecommand/codecommand/internal/common/logger"
)

// respondError maps service errors to HTTP status codes: attempt
// validation errors to 400 (409 when they mark a running-execution
// conflict), not-found to 404, other validation to 400, everything else
// to a logged 500.
func respondError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	var verr *attempt.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Conflict {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": verr.Error()})
		return
	}
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": fallback})
		return
	}
	if isValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

func isValidationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "validation") ||
		strings.Contains(msg, "required") ||
		strings.Contains(msg, "invalid")
}
