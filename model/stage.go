package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage is a step in the purchase closing workflow
type Stage string

const (
	StageUploaded      Stage = "UPLOADED"
	StageEMDCollected  Stage = "EMD_COLLECTED"
	StageContingencies Stage = "CONTINGENCIES"
	StageClosed        Stage = "CLOSED"
	StageCommission    Stage = "COMMISSION"
)

// StageOrder is the only legal path through the workflow
var StageOrder = []Stage{
	StageUploaded,
	StageEMDCollected,
	StageContingencies,
	StageClosed,
	StageCommission,
}

// Index returns the position of s in StageOrder, or -1
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Ptr returns a pointer to a copy of s
func (s Stage) Ptr() *Stage {
	return &s
}

// EMDHolder is who holds the earnest money deposit
type EMDHolder string

const (
	HolderIkonRealty     EMDHolder = "IKON_REALTY"
	HolderLoudounTitleVA EMDHolder = "LOUDOUN_TITLE_VA"
	HolderLoudounTitleMD EMDHolder = "LOUDOUN_TITLE_MD"
	HolderOther          EMDHolder = "OTHER"
)

// ContingencyType is a condition that must clear before closing
type ContingencyType string

const (
	ContingencyHomeInspection ContingencyType = "HOME_INSPECTION"
	ContingencyFinance        ContingencyType = "FINANCE"
	ContingencyAppraisal      ContingencyType = "APPRAISAL"
	ContingencyOther          ContingencyType = "OTHER"
)

// StageData is the payload required to enter a stage. The concrete type
// determines which stage it advances to.
type StageData interface {
	Target() Stage
}

// EMDData moves UPLOADED -> EMD_COLLECTED
type EMDData struct {
	Holder      EMDHolder `json:"holder"`
	OtherHolder string    `json:"otherHolder,omitempty"`
}

func (EMDData) Target() Stage { return StageEMDCollected }

// ContingencyData moves EMD_COLLECTED -> CONTINGENCIES
type ContingencyData struct {
	Types     []ContingencyType `json:"types"`
	OtherText string            `json:"otherText,omitempty"`
}

func (ContingencyData) Target() Stage { return StageContingencies }

// DocumentRef points at an uploaded supporting document
type DocumentRef struct {
	Key      string `json:"key"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ClosingData moves CONTINGENCIES -> CLOSED
type ClosingData struct {
	ClosingDate            time.Time    `json:"closingDate"`
	TitleCompany           string       `json:"titleCompany"`
	CommissionAmount       *float64     `json:"commissionAmount"`
	AdminFee               *float64     `json:"adminFee,omitempty"`
	AltaDocument           *DocumentRef `json:"altaDocument,omitempty"`
	CommissionInstructions string       `json:"commissionInstructions,omitempty"`
}

func (ClosingData) Target() Stage { return StageClosed }

// DisbursementData moves CLOSED -> COMMISSION. Admin only.
type DisbursementData struct {
	TotalCommissionReceived *float64 `json:"totalCommissionReceived"`
	AdminFeeCollected       *float64 `json:"adminFeeCollected"`
	TitleCompanyName        string   `json:"titleCompanyName"`
	Notes                   string   `json:"notes,omitempty"`
}

func (DisbursementData) Target() Stage { return StageCommission }

// Amount accepts either a JSON number or a numeric string, since form inputs
// often post numbers as text.
type Amount struct {
	Value float64
	Set   bool
}

// Ptr returns nil when the amount was absent
func (a Amount) Ptr() *float64 {
	if !a.Set {
		return nil
	}
	v := a.Value
	return &v
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.Value, a.Set = v, true
	return nil
}

type closingWire struct {
	ClosingDate            string       `json:"closingDate"`
	TitleCompany           string       `json:"titleCompany"`
	CommissionAmount       Amount       `json:"commissionAmount"`
	AdminFee               Amount       `json:"adminFee"`
	AltaDocument           *DocumentRef `json:"altaDocument"`
	CommissionInstructions string       `json:"commissionInstructions"`
}

type disbursementWire struct {
	TotalCommissionReceived Amount `json:"totalCommissionReceived"`
	AdminFeeCollected       Amount `json:"adminFeeCollected"`
	TitleCompanyName        string `json:"titleCompanyName"`
	Notes                   string `json:"notes"`
	SpecialNotes            string `json:"specialNotes"`
}

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// DecodeStageData parses the wire payload for the transition into target.
// Missing fields decode to zero values and are rejected by the stage policy.
func DecodeStageData(target Stage, raw json.RawMessage) (StageData, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	switch target {
	case StageEMDCollected:
		var d EMDData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode EMD data: %w", err)
		}
		return d, nil
	case StageContingencies:
		var d ContingencyData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode contingency data: %w", err)
		}
		return d, nil
	case StageClosed:
		var w closingWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode closing data: %w", err)
		}
		d := ClosingData{
			TitleCompany:           w.TitleCompany,
			CommissionAmount:       w.CommissionAmount.Ptr(),
			AdminFee:               w.AdminFee.Ptr(),
			AltaDocument:           w.AltaDocument,
			CommissionInstructions: w.CommissionInstructions,
		}
		if s := strings.TrimSpace(w.ClosingDate); s != "" {
			t, err := time.Parse(DateLayout, s)
			if err != nil {
				if t, err = time.Parse(time.RFC3339, s); err != nil {
					return nil, &ValidationError{Code: CodeInvalidClosingDate, Field: "closingDate", Message: "closing date must be YYYY-MM-DD"}
				}
			}
			d.ClosingDate = t
		}
		return d, nil
	case StageCommission:
		var w disbursementWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode disbursement data: %w", err)
		}
		d := DisbursementData{
			TotalCommissionReceived: w.TotalCommissionReceived.Ptr(),
			AdminFeeCollected:       w.AdminFeeCollected.Ptr(),
			TitleCompanyName:        w.TitleCompanyName,
			Notes:                   w.Notes,
		}
		if d.Notes == "" {
			d.Notes = w.SpecialNotes
		}
		return d, nil
	}
	return nil, &ValidationError{Code: CodeUnknownStage, Field: "stage", Message: fmt.Sprintf("unknown target stage %q", target)}
}
