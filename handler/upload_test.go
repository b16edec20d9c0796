package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/service"
)

type fakePresigner struct {
	failAt   int
	requests []model.PresignRequest
	saved    []service.RentalCommissionRequest
	saveErr  error
}

func (f *fakePresigner) Presign(ctx context.Context, req model.PresignRequest) (*model.PresignResponse, error) {
	f.requests = append(f.requests, req)
	if f.failAt > 0 && len(f.requests) == f.failAt {
		return nil, &service.NetworkError{Op: "presign", StatusCode: http.StatusServiceUnavailable}
	}
	return &model.PresignResponse{URL: "https://uploads.test/" + req.Filename, Key: req.AgentName + "/" + req.Filename}, nil
}

func (f *fakePresigner) SaveRentalCommission(ctx context.Context, req service.RentalCommissionRequest) error {
	f.saved = append(f.saved, req)
	return f.saveErr
}

func uploadRouter(h *UploadHandler) *gin.Engine {
	h.now = func() time.Time { return testNow }
	router := gin.New()
	router.POST("/uploads", as("Jane-Doe", "agent"), h.Plan)
	router.POST("/uploads/commission", as("Jane-Doe", "agent"), h.SaveCommission)
	return router
}

const purchaseUpload = `{
	"transactionType": "PURCHASE",
	"address": {"streetNumber": "123", "streetName": "Main St", "state": "VA"},
	"file": {"name": "offer.pdf", "contentType": "application/pdf", "size": 1024}
}`

const rentalUpload = `{
	"transactionType": "RENTAL",
	"address": {"streetNumber": "12", "streetName": "Oak St", "state": "MD"},
	"file": {"name": "lease.pdf", "contentType": "application/pdf", "size": 1024},
	"tenantBrokerInvolved": true,
	"w9": {"name": "w9.pdf", "contentType": "application/pdf", "size": 512},
	"rentalCommission": {"totalReceived": "2000", "paymentMethod": "Wire", "paymentDate": "2026-09-10"}
}`

func TestUploadHandlerPlan(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		failAt         int
		expectedStatus int
		expectedGrants int
		expectedCode   string
	}{
		{"purchase", purchaseUpload, 0, http.StatusOK, 1, ""},
		{"rental with w9", rentalUpload, 0, http.StatusOK, 2, ""},
		{"missing type", `{"address":{"streetNumber":"1","streetName":"A St","state":"VA"}}`, 0, http.StatusUnprocessableEntity, 0, model.CodeMissingTransactionType},
		{"unlicensed", `{"transactionType":"PURCHASE","address":{"streetNumber":"1","streetName":"A St","state":"NY"}}`, 0, http.StatusUnprocessableEntity, 0, model.CodeUnlicensedState},
		{"presign failure", rentalUpload, 2, http.StatusBadGateway, 0, ""},
		{"invalid json", `{`, 0, http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			presigner := &fakePresigner{failAt: tt.failAt}
			router := uploadRouter(NewUploadHandler(presigner))

			w, response := doJSON(router, "POST", "/uploads", tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedCode != "" && response["code"] != tt.expectedCode {
				t.Errorf("Expected code %s, got %v", tt.expectedCode, response["code"])
			}
			if tt.expectedStatus != http.StatusOK {
				if _, ok := response["uploads"]; ok {
					t.Error("Expected no grants on failure")
				}
				return
			}
			uploads := response["uploads"].([]interface{})
			if len(uploads) != tt.expectedGrants {
				t.Errorf("Expected %d grants, got %d", tt.expectedGrants, len(uploads))
			}
			if presigner.requests[0].AgentName != "Jane-Doe" {
				t.Errorf("Expected agent on the presign, got %q", presigner.requests[0].AgentName)
			}
		})
	}
}

func TestUploadHandlerPlanRentalSplit(t *testing.T) {
	presigner := &fakePresigner{}
	router := uploadRouter(NewUploadHandler(presigner))

	_, response := doJSON(router, "POST", "/uploads", rentalUpload)
	commission, ok := response["rentalCommission"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected rental commission, got %v", response["rentalCommission"])
	}
	if commission["tenantAgentAmount"] != float64(500) || commission["officeAmount"] != float64(1500) {
		t.Errorf("Expected 500/1500 split, got %v", commission)
	}
	if presigner.requests[1].FileRole != service.UploadRoleW9 {
		t.Errorf("Expected W-9 presigned after the lease, got %v", presigner.requests[1].FileRole)
	}
}

func TestUploadHandlerSaveCommission(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		saveErr        error
		expectedStatus int
	}{
		{
			name:           "success",
			body:           `{"address":{"streetNumber":"12","streetName":"Oak St","state":"MD"},"tenantBrokerInvolved":false,"rentalCommission":{"totalReceived":1800}}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing address",
			body:           `{"tenantBrokerInvolved":false,"rentalCommission":{"totalReceived":1800}}`,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "bad method",
			body:           `{"address":{"streetNumber":"12","streetName":"Oak St","state":"MD"},"rentalCommission":{"totalReceived":1800,"paymentMethod":"Cash"}}`,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "backend failure",
			body:           `{"address":{"streetNumber":"12","streetName":"Oak St","state":"MD"},"rentalCommission":{"totalReceived":1800}}`,
			saveErr:        &service.NetworkError{Op: "save commission", Err: errors.New("timeout")},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			presigner := &fakePresigner{saveErr: tt.saveErr}
			router := uploadRouter(NewUploadHandler(presigner))

			w, response := doJSON(router, "POST", "/uploads/commission", tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			if len(presigner.saved) != 1 {
				t.Fatalf("Expected one saved commission, got %d", len(presigner.saved))
			}
			saved := presigner.saved[0]
			if saved.AgentName != "Jane Doe" {
				t.Errorf("Expected display name, got %q", saved.AgentName)
			}
			if saved.RentalCommission.OfficeAmount != 1800 || saved.RentalCommission.PaymentMethod != "Zelle" {
				t.Errorf("Unexpected split %+v", saved.RentalCommission)
			}
			if response["rentalCommission"] == nil {
				t.Error("Expected split in the response")
			}
		})
	}
}
