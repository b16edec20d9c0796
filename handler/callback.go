package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

// CallbackVerifier checks the checksum on a backend event
type CallbackVerifier interface {
	VerifyCallback(checksum, content, uid string) bool
}

// CallbackHandler receives change notices from the backend and refreshes the
// snapshot so dashboards pick up uploads made elsewhere
type CallbackHandler struct {
	verifier CallbackVerifier
	store    *service.SnapshotStore
	source   service.SnapshotSource
}

func NewCallbackHandler(verifier CallbackVerifier, store *service.SnapshotStore, source service.SnapshotSource) *CallbackHandler {
	return &CallbackHandler{verifier: verifier, store: store, source: source}
}

// HandleCallback verifies and applies one backend event
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	var req service.BackendEventPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !h.verifier.VerifyCallback(req.Checksum, req.Content, c.Query("uid")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid checksum"})
		return
	}

	var event service.BackendEvent
	if err := json.Unmarshal([]byte(req.Content), &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	ctx := c.Request.Context()
	logger.Info(ctx, "backend event received",
		"type", event.Type,
		"contract_id", event.ContractID,
		"key", event.Key,
	)

	refreshed := h.store.Refresh(ctx, h.source) == nil

	c.JSON(http.StatusOK, gin.H{"message": "Callback received", "refreshed": refreshed})
}

// Refresh re-fetches the snapshot on demand
func (h *CallbackHandler) Refresh(c *gin.Context) {
	if err := h.store.Refresh(c.Request.Context(), h.source); err != nil {
		snap := h.store.Snapshot()
		c.JSON(http.StatusBadGateway, gin.H{"error": snap.Error, "retry": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fetchedAt": h.store.FetchedAt(), "transactions": h.store.Count()})
}
