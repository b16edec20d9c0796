package service

import (
	"math"
	"strings"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

// DefaultTenantBrokerPercent is the tenant broker's share when one is involved
const DefaultTenantBrokerPercent = 25

// paymentWindowDays is how far back a rental commission payment may be dated
const paymentWindowDays = 30

// PaymentMethods accepted for rental commissions
var PaymentMethods = []string{"Cashier Check", "Zelle", "Venmo", "Wire"}

// RentalCommissionInput is the disbursement form for a rental
type RentalCommissionInput struct {
	TotalReceived       model.Amount `json:"totalReceived"`
	PaymentMethod       string       `json:"paymentMethod"`
	PaymentDate         string       `json:"paymentDate"`
	TenantAgentPercent  model.Amount `json:"tenantAgentPercent"`
	SpecialInstructions string       `json:"specialInstructions"`
}

// RentalCommission is the computed split saved alongside the lease
type RentalCommission struct {
	TotalReceived       float64 `json:"totalReceived"`
	PaymentMethod       string  `json:"paymentMethod"`
	PaymentDate         string  `json:"paymentDate"`
	HasTenantBroker     bool    `json:"hasTenantBroker"`
	TenantAgentPercent  float64 `json:"tenantAgentPercent"`
	TenantAgentAmount   float64 `json:"tenantAgentAmount"`
	OfficeAmount        float64 `json:"officeAmount"`
	SpecialInstructions *string `json:"specialInstructions"`
}

// RentalCommissionRequest is posted to the backend after the lease upload
type RentalCommissionRequest struct {
	Address              *model.Address    `json:"address"`
	TenantBrokerInvolved bool              `json:"tenantBrokerInvolved"`
	RentalCommission     *RentalCommission `json:"rentalCommission"`
	AgentName            string            `json:"agentName"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// SplitRentalCommission validates in and splits the total between the tenant
// broker and the office. Without a tenant broker the office keeps everything.
func SplitRentalCommission(in RentalCommissionInput, hasTenantBroker bool, now time.Time) (*RentalCommission, error) {
	total := in.TotalReceived.Value
	if total < 0 || math.IsNaN(total) {
		return nil, negativeAmount("totalReceived")
	}

	method := in.PaymentMethod
	if method == "" {
		method = "Zelle"
	}
	valid := false
	for _, m := range PaymentMethods {
		if m == method {
			valid = true
			break
		}
	}
	if !valid {
		return nil, &model.ValidationError{Code: model.CodeInvalidPaymentMethod, Field: "paymentMethod", Message: "unknown payment method " + method}
	}

	today := startOfDay(now)
	date := today
	if s := strings.TrimSpace(in.PaymentDate); s != "" {
		d, err := time.ParseInLocation(model.DateLayout, s, now.Location())
		if err != nil {
			return nil, &model.ValidationError{Code: model.CodeInvalidPaymentDate, Field: "paymentDate", Message: "payment date must be YYYY-MM-DD"}
		}
		date = d
	}
	if date.After(today) || date.Before(today.AddDate(0, 0, -paymentWindowDays)) {
		return nil, &model.ValidationError{Code: model.CodeInvalidPaymentDate, Field: "paymentDate", Message: "Must be within the last 30 days. Future dates not allowed."}
	}

	percent := 0.0
	if hasTenantBroker {
		percent = DefaultTenantBrokerPercent
		if in.TenantAgentPercent.Set && in.TenantAgentPercent.Value != 0 {
			percent = in.TenantAgentPercent.Value
		}
		if percent < 0 || percent > 100 {
			return nil, &model.ValidationError{Code: model.CodeInvalidPercent, Field: "tenantAgentPercent", Message: "percent must be between 0 and 100"}
		}
	}

	tenant := 0.0
	if hasTenantBroker {
		tenant = roundCents(total * percent / 100)
	}
	out := &RentalCommission{
		TotalReceived:      total,
		PaymentMethod:      method,
		PaymentDate:        date.Format(model.DateLayout),
		HasTenantBroker:    hasTenantBroker,
		TenantAgentPercent: percent,
		TenantAgentAmount:  tenant,
		OfficeAmount:       roundCents(total - tenant),
	}
	if notes := strings.TrimSpace(in.SpecialInstructions); notes != "" {
		out.SpecialInstructions = &notes
	}
	return out, nil
}
