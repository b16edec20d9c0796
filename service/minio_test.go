package service

import (
	"context"
	"testing"
	"time"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/model"
)

func TestNewMinioService(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:    "localhost:9000",
		AccessKey:   "test",
		SecretKey:   "test",
		Bucket:      "contracts",
		UseSSL:      false,
		TrashPrefix: "trash/",
	}

	svc, err := NewMinioService(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if svc.bucket != "contracts" {
		t.Errorf("Expected bucket 'contracts', got '%s'", svc.bucket)
	}
	if svc.config != cfg {
		t.Error("Expected config to be set")
	}
}

func TestNewMinioServiceInvalidEndpoint(t *testing.T) {
	_, err := NewMinioService(&config.MinioConfig{Endpoint: "http://localhost:9000/path"})
	if err == nil {
		t.Error("Expected error for endpoint with scheme and path")
	}
}

func TestMinioServiceIsTrash(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   bool
	}{
		{"trash/", "trash/Jane-Doe/c1/Contract.pdf", true},
		{"trash/", "Jane-Doe/c1/Contract.pdf", false},
		{"", "trash/Jane-Doe/c1/Contract.pdf", false},
	}
	for _, tt := range tests {
		svc := &MinioService{config: &config.MinioConfig{TrashPrefix: tt.prefix}}
		if got := svc.isTrash(tt.key); got != tt.want {
			t.Errorf("isTrash(%q) with prefix %q = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestRawFromObject(t *testing.T) {
	modified := time.Date(2026, 9, 1, 8, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	meta := map[string]string{
		"X-Amz-Meta-Transaction-Type": "purchase",
		"X-Amz-Meta-File-Role":        "alta",
		"X-Amz-Meta-Stage":            "closed",
		"X-Amz-Meta-Address":          `{"streetNumber":"123","streetName":"Main St","state":"VA"}`,
		"Filename":                    "ALTA (VA).pdf",
	}

	tx := RawFromObject("Jane-Doe/c1/alta.pdf", 2048, modified, "https://minio.test/alta", meta)

	if tx.Agent != "Jane-Doe" || tx.ContractID != "c1" {
		t.Errorf("Expected agent and contract from key, got %q %q", tx.Agent, tx.ContractID)
	}
	if tx.TransactionType != model.TypePurchase || tx.Stage != model.StageClosed {
		t.Errorf("Expected upper-cased metadata, got %s %s", tx.TransactionType, tx.Stage)
	}
	if tx.Address.Label() != "123 Main St VA" {
		t.Errorf("Expected address from metadata, got %q", tx.Address.Label())
	}
	if len(tx.Files) != 1 {
		t.Fatalf("Expected one file, got %d", len(tx.Files))
	}
	f := tx.Files[0]
	if f.Filename != "ALTA (VA).pdf" || f.FileRole != model.RoleALTA || f.Size != 2048 {
		t.Errorf("Unexpected file %+v", f)
	}
	if f.LastModified.Location() != time.UTC || !f.LastModified.Equal(modified) {
		t.Errorf("Expected UTC modification time, got %v", f.LastModified)
	}
}

func TestRawFromObjectDefaults(t *testing.T) {
	meta := map[string]string{"contract-id": "override", "address": "{not json"}
	tx := RawFromObject("Jane-Doe/folder/Contract.pdf", 1, time.Now(), "", meta)

	if tx.ContractID != "override" {
		t.Errorf("Expected contract ID metadata to win, got %q", tx.ContractID)
	}
	if tx.Address != nil {
		t.Error("Expected malformed address to be ignored")
	}
	if tx.Files[0].Filename != "Contract.pdf" {
		t.Errorf("Expected filename from key, got %q", tx.Files[0].Filename)
	}

	loose := RawFromObject("orphan.pdf", 1, time.Now(), "", nil)
	if loose.Agent != "" || loose.ContractID != "" {
		t.Errorf("Expected no agent or contract for a top-level object, got %+v", loose)
	}
}

func TestRawFromObjectGroupsByFolder(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	items := []model.RawTransaction{
		RawFromObject("Jane-Doe/c1/Contract.pdf", 1, now, "", nil),
		RawFromObject("Jane-Doe/c1/ALTA.pdf", 1, now, "", nil),
		RawFromObject("Jane-Doe/c2/Contract.pdf", 1, now, "", nil),
	}

	groups := GroupTransactions(items).Groups()
	if len(groups) != 2 {
		t.Fatalf("Expected objects to group by contract folder, got %d groups", len(groups))
	}
}

func TestWithAgent(t *testing.T) {
	ctx := WithAgent(context.Background(), "Jane-Doe")
	if got := agentFromContext(ctx); got != "Jane-Doe" {
		t.Errorf("Expected Jane-Doe, got %q", got)
	}
	if got := agentFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty agent, got %q", got)
	}
}
