package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/middleware"
	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

// Presigner grants direct upload URLs and records rental commissions
type Presigner interface {
	Presign(ctx context.Context, req model.PresignRequest) (*model.PresignResponse, error)
	SaveRentalCommission(ctx context.Context, req service.RentalCommissionRequest) error
}

// UploadHandler turns the upload form into presigned uploads
type UploadHandler struct {
	presigner Presigner
	now       func() time.Time
}

func NewUploadHandler(presigner Presigner) *UploadHandler {
	return &UploadHandler{presigner: presigner, now: time.Now}
}

// uploadGrant is one file the client should PUT, in order
type uploadGrant struct {
	Role     string `json:"role"`
	Filename string `json:"filename"`
	*model.PresignResponse
}

// Plan validates the upload form and returns one presigned URL per file.
// Presigning stops at the first failure so no half-granted set is returned.
func (h *UploadHandler) Plan(c *gin.Context) {
	var req service.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	agent := middleware.GetAgent(c)
	plan, err := service.PlanUpload(req, agent, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	grants := make([]uploadGrant, 0, len(plan.Presigns))
	for _, p := range plan.Presigns {
		resp, err := h.presigner.Presign(c.Request.Context(), p)
		if err != nil {
			respondError(c, err)
			return
		}
		grants = append(grants, uploadGrant{Role: p.FileRole, Filename: p.Filename, PresignResponse: resp})
	}

	logger.Info(c.Request.Context(), "upload planned",
		"transaction_type", req.TransactionType,
		"files", len(grants),
	)
	c.JSON(http.StatusOK, gin.H{
		"uploads":          grants,
		"rentalCommission": plan.Commission,
	})
}

// commissionRequest is sent once the lease upload finished
type commissionRequest struct {
	Address              *model.Address                `json:"address"`
	TenantBrokerInvolved bool                          `json:"tenantBrokerInvolved"`
	RentalCommission     service.RentalCommissionInput `json:"rentalCommission"`
}

// SaveCommission splits and records a rental commission
func (h *UploadHandler) SaveCommission(c *gin.Context) {
	var req commissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Address == nil {
		respondError(c, &model.ValidationError{Code: model.CodeMissingAddress, Field: "address", Message: "Please search and select a property address (VA/MD/DC)"})
		return
	}

	split, err := service.SplitRentalCommission(req.RentalCommission, req.TenantBrokerInvolved, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	out := service.RentalCommissionRequest{
		Address:              req.Address,
		TenantBrokerInvolved: req.TenantBrokerInvolved,
		RentalCommission:     split,
		AgentName:            service.DisplayNameOf(middleware.GetIdentity(c)),
	}
	if err := h.presigner.SaveRentalCommission(c.Request.Context(), out); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rentalCommission": split})
}
