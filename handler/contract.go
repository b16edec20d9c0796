package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/middleware"
	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/service"
)

// ContractHandler serves transaction groups and their mutations
type ContractHandler struct {
	store       *service.SnapshotStore
	mutator     *service.Mutator
	recentCount int
	now         func() time.Time
}

func NewContractHandler(store *service.SnapshotStore, mutator *service.Mutator, recentCount int) *ContractHandler {
	return &ContractHandler{
		store:       store,
		mutator:     mutator,
		recentCount: recentCount,
		now:         time.Now,
	}
}

// visibleAgents narrows the snapshot to what the caller may see
func visibleAgents(c *gin.Context, agents []model.AgentGroups) []model.AgentGroups {
	if middleware.IsAdmin(c) {
		return agents
	}
	agent := middleware.GetAgent(c)
	for _, a := range agents {
		if a.Agent == agent {
			return []model.AgentGroups{a}
		}
	}
	return []model.AgentGroups{}
}

// List returns the caller's transaction groups, filtered by the agent, q,
// start and end query parameters. Admins may also pass mode and focus to
// describe a summary drill-down; the reconciled view comes back with the
// results.
func (h *ContractHandler) List(c *gin.Context) {
	filter, err := service.ParseFilter(c.Query("agent"), c.Query("q"), c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := h.store.Snapshot()
	agents := visibleAgents(c, snap.Agents)
	results := filter.Apply(agents)
	hasResults := service.HasResults(results)

	view := service.NewDashboardView()
	if mode := service.DashboardMode(c.Query("mode")); mode != "" && mode != service.ModeNormal {
		view.DrillDown(mode, c.Query("focus"))
	}
	view.SetFilter(filter, hasResults)

	body := gin.H{
		"agents":             results,
		"hasResults":         hasResults,
		"view":               view,
		"showsSummary":       view.ShowsSummary(),
		"showsFilterResults": view.ShowsFilterResults(hasResults),
		"fetchedAt":          snap.FetchedAt,
	}
	if snap.Error != "" {
		body["error"] = snap.Error
		body["retry"] = true
	}
	if middleware.IsAdmin(c) && len(snap.Warnings) > 0 {
		body["warnings"] = snap.Warnings
	}
	c.JSON(http.StatusOK, body)
}

// groupDetail is a group plus what the stage panel needs to render it
type groupDetail struct {
	*model.TransactionGroup
	StageLabel string                                `json:"stageLabel,omitempty"`
	Progress   int                                   `json:"progress"`
	Attention  string                                `json:"attention,omitempty"`
	NextStage  model.Stage                           `json:"nextStage,omitempty"`
	EMDHolders []model.EMDHolder                     `json:"emdHolders,omitempty"`
	EMDLinks   map[model.EMDHolder][]service.EMDLink `json:"emdLinks,omitempty"`
	Busy       bool                                  `json:"busy"`
}

func (h *ContractHandler) detail(g *model.TransactionGroup) groupDetail {
	d := groupDetail{TransactionGroup: g, Busy: h.mutator.Busy(service.StageTarget(g.ID))}
	if g.Stage == nil {
		return d
	}
	d.StageLabel = service.StageLabel(*g.Stage)
	d.Progress = service.StageProgress(*g.Stage)
	d.Attention = service.AttentionReason(*g.Stage)
	if next, err := service.NextStage(*g.Stage); err == nil {
		d.NextStage = next
		if next == model.StageEMDCollected {
			var state model.State
			if g.Address != nil {
				state = g.Address.State
			}
			d.EMDHolders = service.EMDHolders(state)
			d.EMDLinks = make(map[model.EMDHolder][]service.EMDLink)
			for _, holder := range d.EMDHolders {
				if links := service.EMDLinks(holder); len(links) > 0 {
					d.EMDLinks[holder] = links
				}
			}
		}
	}
	return d
}

// Get returns one group with its stage panel details
func (h *ContractHandler) Get(c *gin.Context) {
	g, ok := h.store.Group(c.Param("id"))
	if !ok || !(middleware.IsAdmin(c) || g.Agent == middleware.GetAgent(c)) {
		respondError(c, model.ErrGroupNotFound)
		return
	}
	c.JSON(http.StatusOK, h.detail(g))
}

// AdvanceStageRequest names the stage being entered and its payload
type AdvanceStageRequest struct {
	Stage     model.Stage     `json:"stage" binding:"required"`
	StageData json.RawMessage `json:"stageData"`
}

// AdvanceStage moves a purchase to its next stage
func (h *ContractHandler) AdvanceStage(c *gin.Context) {
	var req AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	g, err := h.mutator.AdvanceStage(c.Request.Context(), c.Param("id"), req.Stage, req.StageData, actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.detail(g))
}

// DeleteFile removes one file. The key is the rest of the path.
func (h *ContractHandler) DeleteFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File key required"})
		return
	}

	if err := h.mutator.DeleteFile(c.Request.Context(), key, actorOf(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted", "key": key})
}

// MyFiles returns the caller's own files for the agent dashboard view
// selected by ?view= (recent, month, quarter, year, older, all)
func (h *ContractHandler) MyFiles(c *gin.Context) {
	view := service.AgentView(c.DefaultQuery("view", string(service.ViewRecent)))
	agent := middleware.GetAgent(c)

	snap := h.store.Snapshot()
	var files []model.FileRecord
	for _, a := range snap.Agents {
		if a.Agent != agent {
			continue
		}
		for _, g := range a.Groups {
			files = append(files, g.Files...)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"agent": agent,
		"view":  view,
		"files": service.FilterByView(files, view, h.now(), h.recentCount),
	})
}
