package service

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

// MaxUploadBytes is the largest document an agent may upload
const MaxUploadBytes int64 = 30 << 20

// AllowedContentTypes are PDF, DOC and DOCX
var AllowedContentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Presign file roles understood by the backend
const (
	UploadRolePurchase = "PURCHASE"
	UploadRoleLease    = "LEASE"
	UploadRoleW9       = "W9"
)

// UploadFile describes a local file the client is about to PUT
type UploadFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// UploadRequest is everything the upload form collects
type UploadRequest struct {
	TransactionType      model.TransactionType  `json:"transactionType"`
	Address              *model.Address         `json:"address"`
	File                 *UploadFile            `json:"file"`
	TenantBrokerInvolved *bool                  `json:"tenantBrokerInvolved"`
	W9                   *UploadFile            `json:"w9,omitempty"`
	Commission           *RentalCommissionInput `json:"rentalCommission,omitempty"`
}

// UploadPlan lists the presign requests to make, in order, plus the rental
// commission split to save once they succeed
type UploadPlan struct {
	Presigns   []model.PresignRequest `json:"presigns"`
	Commission *RentalCommission      `json:"rentalCommission,omitempty"`
}

func uploadErr(code, field, msg string) error {
	return &model.ValidationError{Code: code, Field: field, Message: msg}
}

// PlanUpload validates req and builds the presign requests for agent
func PlanUpload(req UploadRequest, agent string, now time.Time) (*UploadPlan, error) {
	if !req.TransactionType.Valid() {
		return nil, uploadErr(model.CodeMissingTransactionType, "transactionType", "Please select Purchase or Rental")
	}
	if req.Address == nil {
		return nil, uploadErr(model.CodeMissingAddress, "address", "Please search and select a property address (VA/MD/DC)")
	}
	if !req.Address.State.IsLicensed() {
		return nil, uploadErr(model.CodeUnlicensedState, "address", "Only VA, MD, DC addresses are allowed.")
	}
	rental := req.TransactionType == model.TypeRental
	if req.File == nil {
		msg := "Please choose a file"
		if rental {
			msg = "Please upload the rental lease"
		}
		return nil, uploadErr(model.CodeMissingFile, "file", msg)
	}
	if err := checkUploadFile("file", *req.File); err != nil {
		return nil, err
	}

	plan := &UploadPlan{}
	if !rental {
		plan.Presigns = append(plan.Presigns, presignFor(req, agent, *req.File, GenerateFilename(*req.Address, req.File.Name, model.TypePurchase), UploadRolePurchase))
		return plan, nil
	}

	if req.TenantBrokerInvolved == nil {
		return nil, uploadErr(model.CodeMissingTenantBroker, "tenantBrokerInvolved", "Please confirm if a tenant broker is involved")
	}
	broker := *req.TenantBrokerInvolved
	if broker {
		if req.W9 == nil {
			return nil, uploadErr(model.CodeMissingW9, "w9", "Please upload tenant broker W-9")
		}
		if err := checkUploadFile("w9", *req.W9); err != nil {
			return nil, err
		}
	}

	plan.Presigns = append(plan.Presigns, presignFor(req, agent, *req.File, RentalLeaseName(*req.Address), UploadRoleLease))
	if broker {
		plan.Presigns = append(plan.Presigns, presignFor(req, agent, *req.W9, RentalW9Name(*req.Address), UploadRoleW9))
	}
	if req.Commission != nil {
		split, err := SplitRentalCommission(*req.Commission, broker, now)
		if err != nil {
			return nil, err
		}
		plan.Commission = split
	}
	return plan, nil
}

func checkUploadFile(field string, f UploadFile) error {
	label := "File"
	if field == "w9" {
		label = "W-9"
	}
	if f.Size > MaxUploadBytes {
		return uploadErr(model.CodeFileTooLarge, field, label+" must be less than 30 MB")
	}
	for _, ct := range AllowedContentTypes {
		if f.ContentType == ct {
			return nil
		}
	}
	return uploadErr(model.CodeUnsupportedFileType, field, label+" must be a PDF, DOC, or DOCX")
}

func presignFor(req UploadRequest, agent string, f UploadFile, name, role string) model.PresignRequest {
	addr := *req.Address
	return model.PresignRequest{
		Filename:             name,
		ContentType:          f.ContentType,
		FileSize:             f.Size,
		Address:              &addr,
		TransactionType:      req.TransactionType,
		FileRole:             role,
		AgentName:            agent,
		TenantBrokerInvolved: req.TenantBrokerInvolved,
	}
}

// addressStem is "<number> <street> <city> <state>" sanitized for filenames
func addressStem(a model.Address, parenState bool) string {
	state := string(a.State)
	if parenState && state != "" {
		state = "(" + state + ")"
	}
	parts := []string{
		nonDigits.ReplaceAllString(a.StreetNumber, ""),
		SanitizeAddressPart(a.StreetName),
		SanitizeAddressPart(a.City),
		state,
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// GenerateFilename names an uploaded document after its property, e.g.
// "123 Main St Ashburn VA Contract.pdf". The extension comes from original.
func GenerateFilename(a model.Address, original string, txType model.TransactionType) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(original), "."))
	if ext == "" {
		ext = "pdf"
	}
	suffix := "Contract"
	if txType == model.TypeRental {
		suffix = "Rental"
	}
	return fmt.Sprintf("%s %s.%s", addressStem(a, false), suffix, ext)
}

// RentalLeaseName is the stored name of a rental lease
func RentalLeaseName(a model.Address) string {
	return GenerateFilename(a, "lease.pdf", model.TypeRental)
}

// RentalW9Name is the stored name of a tenant broker W-9
func RentalW9Name(a model.Address) string {
	return addressStem(a, true) + " Rental_w9.pdf"
}
