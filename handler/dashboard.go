package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/service"
)

// DashboardHandler serves the admin activity summary
type DashboardHandler struct {
	store           *service.SnapshotStore
	leaderboardSize int
	now             func() time.Time
}

func NewDashboardHandler(store *service.SnapshotStore, leaderboardSize int) *DashboardHandler {
	return &DashboardHandler{store: store, leaderboardSize: leaderboardSize, now: time.Now}
}

// attentionItem is a purchase still waiting on the next step
type attentionItem struct {
	ID     string      `json:"id"`
	Agent  string      `json:"agent"`
	Label  string      `json:"label"`
	Stage  model.Stage `json:"stage"`
	Reason string      `json:"reason"`
}

// Summary returns the current activity window, per-stage counts and the
// purchases that need attention
func (h *DashboardHandler) Summary(c *gin.Context) {
	snap := h.store.Snapshot()
	groups := snap.Groups()

	stages := make(map[model.Stage]int, len(model.StageOrder))
	for _, s := range model.StageOrder {
		stages[s] = 0
	}
	rentals := 0
	attention := []attentionItem{}
	for _, g := range groups {
		if g.Stage == nil {
			rentals++
			continue
		}
		stages[*g.Stage]++
		if reason := service.AttentionReason(*g.Stage); reason != "" {
			attention = append(attention, attentionItem{
				ID: g.ID, Agent: g.Agent, Label: g.Label, Stage: *g.Stage, Reason: reason,
			})
		}
	}
	sort.SliceStable(attention, func(i, j int) bool {
		return attention[i].Stage.Index() < attention[j].Stage.Index()
	})

	agents := make([]string, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		agents = append(agents, a.Agent)
	}

	body := gin.H{
		"window":       service.CurrentWindow(service.Flatten(groups), h.now(), h.leaderboardSize),
		"agents":       agents,
		"transactions": len(groups),
		"files":        len(snap.Files()),
		"stages":       stages,
		"rentals":      rentals,
		"attention":    attention,
		"fetchedAt":    snap.FetchedAt,
	}
	if snap.Error != "" {
		body["error"] = snap.Error
		body["retry"] = true
	}
	c.JSON(http.StatusOK, body)
}

// Recent returns every (agent, file) pair newest first, as the "all
// contracts" drill-down lists them
func (h *DashboardHandler) Recent(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"files": service.SortNewestFirst(service.Flatten(snap.Groups())),
	})
}
