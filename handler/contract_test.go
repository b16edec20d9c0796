package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/service"
)

type fakeBackend struct {
	err      error
	advances int
	deleted  []string
	bulk     []float64
}

func (f *fakeBackend) AdvanceStage(ctx context.Context, req model.StageAdvanceRequest, idempotencyKey string) error {
	f.advances++
	return f.err
}

func (f *fakeBackend) DeleteFile(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.err
}

func (f *fakeBackend) BulkDelete(ctx context.Context, years float64) error {
	f.bulk = append(f.bulk, years)
	return f.err
}

var (
	testNow = time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	mainSt  = &model.Address{StreetNumber: "123", StreetName: "Main St", State: model.StateVA}
	oakSt   = &model.Address{StreetNumber: "12", StreetName: "Oak St", State: model.StateMD}
)

func rawTx(agent, id string, addr *model.Address, stage model.Stage, modified time.Time, names ...string) model.RawTransaction {
	tx := model.RawTransaction{
		ContractID:      id,
		Agent:           agent,
		TransactionType: model.TypePurchase,
		Address:         addr,
		Stage:           stage,
		UpdatedAt:       &modified,
	}
	for _, n := range names {
		tx.Files = append(tx.Files, model.RawFile{Key: agent + "/" + id + "/" + n, Filename: n})
	}
	return tx
}

func setupTestStore(items ...model.RawTransaction) *service.SnapshotStore {
	store := service.NewSnapshotStore()
	store.Replace(service.GroupTransactions(items), testNow)
	return store
}

func defaultItems() []model.RawTransaction {
	return []model.RawTransaction{
		rawTx("Jane-Doe", "c1", mainSt, model.StageUploaded, testNow.AddDate(0, 0, -2), "Contract.pdf", "ALTA.pdf"),
		rawTx("Jane-Doe", "c2", oakSt, model.StageClosed, testNow.AddDate(0, -3, 0), "Contract.pdf"),
		rawTx("John-Smith", "c3", mainSt, model.StageEMDCollected, testNow.AddDate(0, 0, -1), "Contract.pdf"),
	}
}

// as stands in for AuthMiddleware
func as(agent, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("agent", agent)
		c.Set("role", role)
		c.Set("identity", model.Identity{GivenName: "Jane", FamilyName: "Doe", Email: "jane@ikon.test"})
		c.Next()
	}
}

func newTestContractHandler(backend *fakeBackend, items ...model.RawTransaction) (*ContractHandler, *service.SnapshotStore) {
	store := setupTestStore(items...)
	h := NewContractHandler(store, service.NewMutator(store, nil, backend), 3)
	h.now = func() time.Time { return testNow }
	return h, store
}

func TestContractHandlerList(t *testing.T) {
	handler, _ := newTestContractHandler(&fakeBackend{}, defaultItems()...)

	tests := []struct {
		name           string
		role           string
		query          string
		expectedStatus int
		expectedGroups int
		expectedMode   string
	}{
		{"agent sees own groups", "agent", "", http.StatusOK, 2, "normal"},
		{"admin sees all", "admin", "", http.StatusOK, 3, "normal"},
		{"admin filters by agent", "admin", "?agent=John-Smith", http.StatusOK, 1, "agents"},
		{"agent cannot widen", "agent", "?agent=John-Smith", http.StatusOK, 0, "normal"},
		{"text filter", "admin", "?q=oak", http.StatusOK, 1, "agents"},
		{"drill-down without filter", "admin", "?mode=window&focus=Jane-Doe", http.StatusOK, 3, "window"},
		{"bad date", "admin", "?start=yesterday", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/groups", as("Jane-Doe", tt.role), handler.List)

			req := httptest.NewRequest("GET", "/groups"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response struct {
				Agents     []model.AgentGroups   `json:"agents"`
				HasResults bool                  `json:"hasResults"`
				View       service.DashboardView `json:"view"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			n := 0
			for _, a := range response.Agents {
				n += len(a.Groups)
			}
			if n != tt.expectedGroups {
				t.Errorf("Expected %d groups, got %d", tt.expectedGroups, n)
			}
			if string(response.View.Mode) != tt.expectedMode {
				t.Errorf("Expected mode %s, got %s", tt.expectedMode, response.View.Mode)
			}
		})
	}
}

func TestContractHandlerListReportsLoadError(t *testing.T) {
	handler, store := newTestContractHandler(&fakeBackend{}, defaultItems()...)
	store.Refresh(context.Background(), failingSource{})

	router := gin.New()
	router.GET("/groups", as("Jane-Doe", "agent"), handler.List)

	req := httptest.NewRequest("GET", "/groups", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["retry"] != true || response["error"] == nil {
		t.Errorf("Expected error with retry, got %v", response)
	}
}

type failingSource struct{}

func (failingSource) FetchTransactions(ctx context.Context) ([]model.RawTransaction, error) {
	return nil, errors.New("connection refused")
}

func TestContractHandlerGet(t *testing.T) {
	handler, _ := newTestContractHandler(&fakeBackend{}, defaultItems()...)

	tests := []struct {
		name           string
		id             string
		agent          string
		role           string
		expectedStatus int
	}{
		{"own group", "c1", "Jane-Doe", "agent", http.StatusOK},
		{"other agent's group", "c3", "Jane-Doe", "agent", http.StatusNotFound},
		{"admin", "c3", "office", "admin", http.StatusOK},
		{"missing", "nope", "Jane-Doe", "agent", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/groups/:id", as(tt.agent, tt.role), handler.Get)

			req := httptest.NewRequest("GET", "/groups/"+tt.id, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestContractHandlerGetStagePanel(t *testing.T) {
	handler, _ := newTestContractHandler(&fakeBackend{}, defaultItems()...)

	router := gin.New()
	router.GET("/groups/:id", as("Jane-Doe", "agent"), handler.Get)

	req := httptest.NewRequest("GET", "/groups/c1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response struct {
		ID         string                                `json:"id"`
		StageLabel string                                `json:"stageLabel"`
		NextStage  model.Stage                           `json:"nextStage"`
		EMDHolders []model.EMDHolder                     `json:"emdHolders"`
		EMDLinks   map[model.EMDHolder][]service.EMDLink `json:"emdLinks"`
		Attention  string                                `json:"attention"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.ID != "c1" || response.StageLabel != "Uploaded" {
		t.Errorf("Unexpected group %+v", response)
	}
	if response.NextStage != model.StageEMDCollected {
		t.Errorf("Expected next stage EMD_COLLECTED, got %s", response.NextStage)
	}
	if len(response.EMDHolders) != 3 || response.EMDHolders[1] != model.HolderLoudounTitleVA {
		t.Errorf("Expected VA holders, got %v", response.EMDHolders)
	}
	if _, ok := response.EMDLinks[model.HolderOther]; ok {
		t.Error("Expected no links for OTHER")
	}
	if response.Attention != "EMD not collected" {
		t.Errorf("Expected attention reason, got %q", response.Attention)
	}
}

func TestContractHandlerAdvanceStage(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		role           string
		body           string
		backendErr     error
		expectedStatus int
		expectedCode   string
	}{
		{"advance", "c1", "agent", `{"stage":"EMD_COLLECTED","stageData":{"holder":"IKON_REALTY"}}`, nil, http.StatusOK, ""},
		{"missing other holder", "c1", "agent", `{"stage":"EMD_COLLECTED","stageData":{"holder":"OTHER"}}`, nil, http.StatusUnprocessableEntity, model.CodeMissingOtherHolderName},
		{"stage mismatch", "c1", "agent", `{"stage":"CONTINGENCIES","stageData":{"types":["FINANCE"]}}`, nil, http.StatusUnprocessableEntity, model.CodeStageMismatch},
		{"agent disbursement", "c2", "agent", `{"stage":"COMMISSION","stageData":{"totalCommissionReceived":1,"adminFeeCollected":0,"titleCompanyName":"X"}}`, nil, http.StatusForbidden, ""},
		{"alta missing", "c2", "admin", `{"stage":"COMMISSION","stageData":{"totalCommissionReceived":1,"adminFeeCollected":0,"titleCompanyName":"X"}}`, nil, http.StatusConflict, "AltaNotUploaded"},
		{"not visible", "c3", "agent", `{"stage":"CONTINGENCIES","stageData":{"types":["FINANCE"]}}`, nil, http.StatusNotFound, ""},
		{"backend failure", "c1", "agent", `{"stage":"EMD_COLLECTED","stageData":{"holder":"IKON_REALTY"}}`, errors.New("timeout"), http.StatusBadGateway, ""},
		{"missing stage", "c1", "agent", `{"stageData":{}}`, nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store := newTestContractHandler(&fakeBackend{err: tt.backendErr}, defaultItems()...)

			router := gin.New()
			router.POST("/groups/:id/stage", as("Jane-Doe", tt.role), handler.AdvanceStage)

			req := httptest.NewRequest("POST", "/groups/"+tt.id+"/stage", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			var response map[string]interface{}
			json.Unmarshal(w.Body.Bytes(), &response)
			if tt.expectedCode != "" && response["code"] != tt.expectedCode {
				t.Errorf("Expected code %s, got %v", tt.expectedCode, response["code"])
			}
			if tt.expectedStatus == http.StatusOK && response["stage"] != "EMD_COLLECTED" {
				t.Errorf("Expected stage EMD_COLLECTED, got %v", response["stage"])
			}
			if tt.expectedStatus == http.StatusBadGateway {
				if _, ok := response["reverted"]; !ok {
					t.Error("Expected reverted groups in the response")
				}
				if g, _ := store.Group("c1"); *g.Stage != model.StageUploaded {
					t.Errorf("Expected stage restored, got %s", *g.Stage)
				}
			}
		})
	}
}

func TestContractHandlerDeleteFile(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		agent          string
		expectedStatus int
	}{
		{"own file", "/files/Jane-Doe/c1/ALTA.pdf", "Jane-Doe", http.StatusOK},
		{"other agent's file", "/files/John-Smith/c3/Contract.pdf", "Jane-Doe", http.StatusNotFound},
		{"unknown key", "/files/Jane-Doe/c1/missing.pdf", "Jane-Doe", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			handler, store := newTestContractHandler(backend, defaultItems()...)

			router := gin.New()
			router.DELETE("/files/*key", as(tt.agent, "agent"), handler.DeleteFile)

			req := httptest.NewRequest("DELETE", tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK {
				if len(backend.deleted) != 1 || backend.deleted[0] != "Jane-Doe/c1/ALTA.pdf" {
					t.Errorf("Expected backend delete of the key, got %v", backend.deleted)
				}
				if g, _ := store.Group("c1"); g.HasFile("Jane-Doe/c1/ALTA.pdf") {
					t.Error("Expected file removed from the snapshot")
				}
			}
		})
	}
}

func TestContractHandlerMyFiles(t *testing.T) {
	handler, _ := newTestContractHandler(&fakeBackend{}, defaultItems()...)

	tests := []struct {
		query    string
		expected int
	}{
		{"", 3},
		{"?view=month", 2},
		{"?view=all", 3},
		{"?view=older", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			router := gin.New()
			router.GET("/me/files", as("Jane-Doe", "agent"), handler.MyFiles)

			req := httptest.NewRequest("GET", "/me/files"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			var response struct {
				Agent string             `json:"agent"`
				Files []model.FileRecord `json:"files"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if len(response.Files) != tt.expected {
				t.Errorf("Expected %d files, got %d", tt.expected, len(response.Files))
			}
		})
	}
}

func TestNewContractHandler(t *testing.T) {
	store := service.NewSnapshotStore()
	handler := NewContractHandler(store, service.NewMutator(store, nil, &fakeBackend{}), 3)
	if handler == nil {
		t.Fatal("Expected non-nil handler")
	}
	if handler.store != store {
		t.Error("Expected store to be set")
	}
}
