package service

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ikonrealty/closingdesk/model"
)

const (
	maxOtherHolderLen = 60
	maxOtherTextLen   = 100
)

// Actor is the caller attempting a stage change
type Actor struct {
	Agent string
	Admin bool
}

var stageLabels = map[model.Stage]string{
	model.StageUploaded:      "Uploaded",
	model.StageEMDCollected:  "EMD Collected",
	model.StageContingencies: "Contingencies",
	model.StageClosed:        "Closed",
	model.StageCommission:    "Commission",
}

var attentionReasons = map[model.Stage]string{
	model.StageUploaded:      "EMD not collected",
	model.StageEMDCollected:  "Contingencies pending",
	model.StageContingencies: "Closing approaching",
}

// EMDLink is a payment portal for depositing earnest money with a holder
type EMDLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

var emdLinks = map[model.EMDHolder][]EMDLink{
	model.HolderIkonRealty: {
		{Label: "Ikon Realty Earnnest", URL: "https://payments.earnnest.com/ikonrealtyashburn/send/304"},
	},
	model.HolderLoudounTitleVA: {
		{Label: "Loudoun Title VA Escrow", URL: "https://payments.earnnest.com/loudountitle/send/409"},
	},
	model.HolderLoudounTitleMD: {
		{Label: "Loudoun Title MD Escrow", URL: "https://payments.earnnest.com/loudountitle/send/102999"},
	},
}

// stateOffices maps each state to its title/escrow office. DC has none.
var stateOffices = map[model.State]model.EMDHolder{
	model.StateVA: model.HolderLoudounTitleVA,
	model.StateMD: model.HolderLoudounTitleMD,
}

// NextStage returns the single successor of s
func NextStage(s model.Stage) (model.Stage, error) {
	i := s.Index()
	if i < 0 {
		return "", &model.ValidationError{Code: model.CodeUnknownStage, Field: "stage", Message: fmt.Sprintf("unknown stage %q", s)}
	}
	if i == len(model.StageOrder)-1 {
		return "", model.ErrNoFurtherStage
	}
	return model.StageOrder[i+1], nil
}

// StageLabel returns the display label for s
func StageLabel(s model.Stage) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// AttentionReason explains why a transaction at s still needs work, or ""
func AttentionReason(s model.Stage) string {
	return attentionReasons[s]
}

// StageProgress returns how far through the workflow s is, 0-100
func StageProgress(s model.Stage) int {
	i := s.Index()
	if i < 0 {
		i = 0
	}
	return int(math.Round(float64(i) / float64(len(model.StageOrder)-1) * 100))
}

// EMDHolders lists the holders offered for a property in state
func EMDHolders(state model.State) []model.EMDHolder {
	holders := []model.EMDHolder{model.HolderIkonRealty}
	if office, ok := stateOffices[state]; ok {
		holders = append(holders, office)
	}
	return append(holders, model.HolderOther)
}

// EMDLinks returns the payment portals for holder
func EMDLinks(holder model.EMDHolder) []EMDLink {
	return emdLinks[holder]
}

// Advance validates a transition of g using data and returns the stage it
// moves to. g is not modified.
func Advance(g *model.TransactionGroup, data model.StageData, actor Actor, now time.Time) (model.Stage, error) {
	if g.Type == model.TypeRental || g.Stage == nil {
		return "", model.ErrNotApplicableToRental
	}
	if data == nil {
		return "", &model.ValidationError{Code: model.CodeStageMismatch, Field: "stage", Message: "stage data is required"}
	}
	current := *g.Stage

	if d, ok := data.(model.DisbursementData); ok {
		if err := checkDisbursement(g, d, actor); err != nil {
			return "", err
		}
	}

	next, err := NextStage(current)
	if err != nil {
		return "", err
	}
	if data.Target() != next {
		return "", &model.ValidationError{
			Code:    model.CodeStageMismatch,
			Field:   "stage",
			Message: fmt.Sprintf("cannot move from %s to %s; next stage is %s", current, data.Target(), next),
		}
	}

	if err := ValidateStageData(g, data, now); err != nil {
		return "", err
	}
	return next, nil
}

// AmendDisbursement validates a resubmitted commission packet for a
// transaction already at COMMISSION or CLOSED. The stage does not change.
func AmendDisbursement(g *model.TransactionGroup, d model.DisbursementData, actor Actor) error {
	if g.Type == model.TypeRental || g.Stage == nil {
		return model.ErrNotApplicableToRental
	}
	if err := checkDisbursement(g, d, actor); err != nil {
		return err
	}
	return validateDisbursement(d)
}

func checkDisbursement(g *model.TransactionGroup, d model.DisbursementData, actor Actor) error {
	if !actor.Admin {
		return model.ErrAdminOnly
	}
	if s := *g.Stage; s != model.StageClosed && s != model.StageCommission {
		return model.ErrDisbursementBeforeClose
	}
	if !g.HasRole(model.RoleALTA) {
		return model.ErrAltaNotUploaded
	}
	return nil
}

// ValidateStageData checks the payload fields for its target stage
func ValidateStageData(g *model.TransactionGroup, data model.StageData, now time.Time) error {
	switch d := data.(type) {
	case model.EMDData:
		var state model.State
		if g.Address != nil {
			state = g.Address.State
		}
		return validateEMD(d, state)
	case model.ContingencyData:
		return validateContingencies(d)
	case model.ClosingData:
		return validateClosing(d, now)
	case model.DisbursementData:
		return validateDisbursement(d)
	}
	return &model.ValidationError{Code: model.CodeUnknownStage, Field: "stage", Message: fmt.Sprintf("unsupported stage data %T", data)}
}

func validateEMD(d model.EMDData, state model.State) error {
	switch d.Holder {
	case "":
		return &model.ValidationError{Code: model.CodeMissingHolder, Field: "holder", Message: "select who holds the EMD"}
	case model.HolderOther:
		name := strings.TrimSpace(d.OtherHolder)
		if name == "" {
			return &model.ValidationError{Code: model.CodeMissingOtherHolderName, Field: "otherHolder", Message: "enter the name of the EMD holder"}
		}
		if utf8.RuneCountInString(name) > maxOtherHolderLen {
			return &model.ValidationError{Code: model.CodeOtherHolderTooLong, Field: "otherHolder", Message: fmt.Sprintf("holder name must be at most %d characters", maxOtherHolderLen)}
		}
		return nil
	}
	for _, h := range EMDHolders(state) {
		if h == d.Holder {
			return nil
		}
	}
	return &model.ValidationError{Code: model.CodeHolderNotAvailable, Field: "holder", Message: fmt.Sprintf("%s is not available for this property", d.Holder)}
}

func validateContingencies(d model.ContingencyData) error {
	if len(d.Types) == 0 {
		return &model.ValidationError{Code: model.CodeMissingContingencies, Field: "types", Message: "select at least one contingency"}
	}
	other := false
	for _, t := range d.Types {
		switch t {
		case model.ContingencyHomeInspection, model.ContingencyFinance, model.ContingencyAppraisal:
		case model.ContingencyOther:
			other = true
		default:
			return &model.ValidationError{Code: model.CodeUnknownContingency, Field: "types", Message: fmt.Sprintf("unknown contingency %q", t)}
		}
	}
	if other {
		text := strings.TrimSpace(d.OtherText)
		if text == "" {
			return &model.ValidationError{Code: model.CodeMissingOtherText, Field: "otherText", Message: "describe the other contingency"}
		}
		if utf8.RuneCountInString(text) > maxOtherTextLen {
			return &model.ValidationError{Code: model.CodeOtherTextTooLong, Field: "otherText", Message: fmt.Sprintf("description must be at most %d characters", maxOtherTextLen)}
		}
	}
	return nil
}

func validateClosing(d model.ClosingData, now time.Time) error {
	if d.ClosingDate.IsZero() {
		return &model.ValidationError{Code: model.CodeMissingClosingDate, Field: "closingDate", Message: "closing date is required"}
	}
	y, m, day := d.ClosingDate.Date()
	closing := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	ty, tm, td := now.Date()
	if closing.After(time.Date(ty, tm, td, 0, 0, 0, 0, now.Location())) {
		return &model.ValidationError{Code: model.CodeClosingDateInFuture, Field: "closingDate", Message: "closing date cannot be in the future"}
	}
	if strings.TrimSpace(d.TitleCompany) == "" {
		return &model.ValidationError{Code: model.CodeMissingTitleCompany, Field: "titleCompany", Message: "title company is required"}
	}
	if err := requireAmount("commissionAmount", d.CommissionAmount); err != nil {
		return err
	}
	if d.AdminFee != nil && *d.AdminFee < 0 {
		return negativeAmount("adminFee")
	}
	return nil
}

func validateDisbursement(d model.DisbursementData) error {
	if err := requireAmount("totalCommissionReceived", d.TotalCommissionReceived); err != nil {
		return err
	}
	if err := requireAmount("adminFeeCollected", d.AdminFeeCollected); err != nil {
		return err
	}
	if strings.TrimSpace(d.TitleCompanyName) == "" {
		return &model.ValidationError{Code: model.CodeMissingTitleCompany, Field: "titleCompanyName", Message: "title company is required"}
	}
	return nil
}

func requireAmount(field string, v *float64) error {
	if v == nil {
		return &model.ValidationError{Code: model.CodeMissingAmount, Field: field, Message: "amount is required"}
	}
	if *v < 0 || math.IsNaN(*v) {
		return negativeAmount(field)
	}
	return nil
}

func negativeAmount(field string) error {
	return &model.ValidationError{Code: model.CodeNegativeAmount, Field: field, Message: "amount cannot be negative"}
}

// SupportingFiles returns the distinct files a closing payload adds to g:
// the signed ALTA and the commission instructions note, when supplied.
func SupportingFiles(g *model.TransactionGroup, d model.ClosingData, now time.Time) []model.FileRecord {
	folder := g.Agent + "/" + g.ID
	var files []model.FileRecord
	if d.AltaDocument != nil && strings.TrimSpace(d.AltaDocument.Key) != "" {
		name := d.AltaDocument.Filename
		if name == "" {
			name = path.Base(d.AltaDocument.Key)
		}
		files = append(files, model.FileRecord{
			Key:             d.AltaDocument.Key,
			Filename:        name,
			DisplayName:     DisplayName(name),
			Size:            d.AltaDocument.Size,
			LastModified:    now,
			TransactionType: model.TypePurchase,
			Role:            model.RoleALTA,
		})
	}
	if note := strings.TrimSpace(d.CommissionInstructions); note != "" {
		files = append(files, model.FileRecord{
			Key:             folder + "/commission_instructions.txt",
			Filename:        "commission_instructions.txt",
			DisplayName:     "commission_instructions.txt",
			Size:            int64(len(note)),
			LastModified:    now,
			TransactionType: model.TypePurchase,
			Role:            model.RoleCommissionDoc,
		})
	}
	return files
}
