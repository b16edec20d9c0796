package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/middleware"
	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

// conflicts are business-rule rejections reported as 409
var conflicts = []error{
	model.ErrNotApplicableToRental,
	model.ErrNoFurtherStage,
	model.ErrDisbursementBeforeClose,
	model.ErrAltaNotUploaded,
	model.ErrMutationInFlight,
	service.ErrConfirmNotReady,
}

// errorCode is the prefix before ":" in a sentinel message, e.g. "NoFurtherStage"
func errorCode(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ":"); i > 0 && !strings.Contains(msg[:i], " ") {
		return msg[:i]
	}
	return ""
}

// respondError maps err onto a status code and JSON body
func respondError(c *gin.Context, err error) {
	var fields service.FieldErrors
	if errors.As(err, &fields) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Please correct the highlighted fields", "fields": fields})
		return
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Message, "code": ve.Code, "field": ve.Field})
		return
	}

	switch {
	case errors.Is(err, model.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	case errors.Is(err, model.ErrAdminOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			body := gin.H{"error": err.Error()}
			if code := errorCode(target); code != "" {
				body["code"] = code
			}
			c.JSON(http.StatusConflict, body)
			return
		}
	}

	var me *service.MutationError
	if errors.As(err, &me) {
		logger.Warn(c.Request.Context(), "mutation failed", "op", me.Op, "target", me.Target, "error", me.Reason)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "The change could not be saved and has been undone. Please try again.",
			"reverted": me.Reverted,
		})
		return
	}
	if service.IsNetworkError(err) {
		logger.Warn(c.Request.Context(), "collaborator request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream service unavailable. Please try again."})
		return
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Internal server error",
		"request_id": middleware.GetRequestID(c),
	})
}

// actorOf is the caller as the mutation policy sees it
func actorOf(c *gin.Context) service.Actor {
	return service.Actor{Agent: middleware.GetAgent(c), Admin: middleware.IsAdmin(c)}
}
