package handler

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

// sessionTTL is how long an abandoned confirmation session is kept
const sessionTTL = 15 * time.Minute

// cleanupSession is one open bulk cleanup confirmation dialog
type cleanupSession struct {
	id      string
	years   float64
	gate    *service.ConfirmGate
	created time.Time
}

// RetentionHandler serves retention tiers and the typed-confirmation flow
// that guards bulk cleanup
type RetentionHandler struct {
	store   *service.SnapshotStore
	mutator *service.Mutator
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*cleanupSession
}

func NewRetentionHandler(store *service.SnapshotStore, mutator *service.Mutator) *RetentionHandler {
	return &RetentionHandler{
		store:    store,
		mutator:  mutator,
		now:      time.Now,
		sessions: make(map[string]*cleanupSession),
	}
}

// Tiers returns the cleanup options offered for the current data
func (h *RetentionHandler) Tiers(c *gin.Context) {
	files := h.store.Snapshot().Files()
	now := h.now()

	body := gin.H{
		"tiers": service.Tiers(files, now),
		"files": len(files),
	}
	if oldest, ok := service.OldestFile(files); ok {
		body["oldest"] = oldest
		body["oldestYears"] = math.Round(service.AgeYears(oldest, now)*100) / 100
	}
	c.JSON(http.StatusOK, body)
}

// parseYears reads a tier threshold and checks it is on offer
func (h *RetentionHandler) parseYears(raw string) (float64, bool) {
	years, err := strconv.ParseFloat(raw, 64)
	if err != nil || years <= 0 {
		return 0, false
	}
	return years, service.ValidTier(h.store.Snapshot().Files(), years, h.now())
}

// Preview lists the files a tier would remove, oldest first
func (h *RetentionHandler) Preview(c *gin.Context) {
	years, ok := h.parseYears(c.Query("years"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown retention tier"})
		return
	}
	eligible := service.Eligible(h.store.Snapshot().Files(), years, h.now())
	c.JSON(http.StatusOK, gin.H{
		"years":  years,
		"cutoff": service.Cutoff(years, h.now()),
		"count":  len(eligible),
		"files":  eligible,
	})
}

type openSessionRequest struct {
	Years float64 `json:"years" binding:"required"`
}

// OpenSession starts a confirmation dialog for one tier
func (h *RetentionHandler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	now := h.now()
	files := h.store.Snapshot().Files()
	if !service.ValidTier(files, req.Years, now) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown retention tier"})
		return
	}

	s := &cleanupSession{
		id:      uuid.NewString(),
		years:   req.Years,
		gate:    service.NewConfirmGate(),
		created: now,
	}

	h.mu.Lock()
	for id, old := range h.sessions {
		if now.Sub(old.created) > sessionTTL && !old.gate.InFlight() {
			delete(h.sessions, id)
		}
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{
		"id":       s.id,
		"years":    s.years,
		"eligible": len(service.Eligible(files, s.years, now)),
		"word":     service.ConfirmWord,
		"status":   h.status(s, now),
	})
}

func (h *RetentionHandler) session(c *gin.Context) (*cleanupSession, bool) {
	h.mu.Lock()
	s, ok := h.sessions[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Confirmation session not found"})
	}
	return s, ok
}

func (h *RetentionHandler) status(s *cleanupSession, now time.Time) gin.H {
	return gin.H{
		"remainingSeconds": int(math.Ceil(s.gate.Remaining(now).Seconds())),
		"enabled":          s.gate.Enabled(now),
		"inFlight":         s.gate.InFlight(),
	}
}

// Status reports the countdown of a session
func (h *RetentionHandler) Status(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.status(s, h.now()))
}

type confirmTextRequest struct {
	Text string `json:"text"`
}

// SetText records what the admin has typed so far
func (h *RetentionHandler) SetText(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req confirmTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	now := h.now()
	s.gate.SetText(req.Text, now)
	c.JSON(http.StatusOK, h.status(s, now))
}

// Confirm runs the bulk cleanup once the gate allows it
func (h *RetentionHandler) Confirm(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	n, err := h.mutator.BulkDelete(c.Request.Context(), s.years, s.gate, actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()

	logger.Info(c.Request.Context(), "bulk cleanup confirmed", "years", s.years, "files", n)
	c.JSON(http.StatusOK, gin.H{"deleted": n, "years": s.years})
}

// Cancel closes a session without deleting anything
func (h *RetentionHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.gate.InFlight() {
		respondError(c, model.ErrMutationInFlight)
		return
	}
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Cancelled"})
}
