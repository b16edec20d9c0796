package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func addressRouter() *gin.Engine {
	router := gin.New()
	router.POST("/address/select", SelectAddress)
	router.POST("/address/candidates", Candidates)
	return router
}

func TestSelectAddress(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedLabel  string
	}{
		{
			name:           "licensed",
			body:           `{"candidate":{"streetNumber":"123","streetName":"Main St","city":"Ashburn","state":"VA","zip":"20147"}}`,
			expectedStatus: http.StatusOK,
			expectedLabel:  "123 Main St Ashburn VA",
		},
		{
			name:           "unlicensed",
			body:           `{"candidate":{"streetNumber":"1","streetName":"Broadway","state":"NY"}}`,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "no street number",
			body:           `{"candidate":{"streetName":"Main St","state":"VA"}}`,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "invalid json",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doJSON(addressRouter(), "POST", "/address/select", tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedLabel != "" && response["label"] != tt.expectedLabel {
				t.Errorf("Expected label %q, got %v", tt.expectedLabel, response["label"])
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	candidates := `[
		{"streetNumber":"123","streetName":"Main St","state":"VA"},
		{"streetNumber":"5","streetName":"Park Ave","state":"NY"},
		{"streetName":"Route 7","state":"VA"}
	]`

	tests := []struct {
		name     string
		query    string
		search   bool
		expected int
	}{
		{"short query", "12", false, 0},
		{"padded short query", "  12  ", false, 0},
		{"long query", "123 Main", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"query":"` + tt.query + `","candidates":` + candidates + `}`
			w, response := doJSON(addressRouter(), "POST", "/address/candidates", body)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if response["search"] != tt.search {
				t.Errorf("Expected search %v, got %v", tt.search, response["search"])
			}
			addresses, _ := response["addresses"].([]interface{})
			if len(addresses) != tt.expected {
				t.Errorf("Expected %d addresses, got %d", tt.expected, len(addresses))
			}
		})
	}
}
