package model

import (
	"encoding/json"
	"time"
)

// UnknownAgent buckets files whose agent could not be resolved
const UnknownAgent = "Unknown Agent"

// TransactionGroup is one logical transaction: all files uploaded for the
// same agent, property and transaction type.
type TransactionGroup struct {
	ID           string          `json:"id"`
	ContractID   string          `json:"contractId,omitempty"`
	Agent        string          `json:"agent"`
	Label        string          `json:"label"`
	Type         TransactionType `json:"type"`
	Stage        *Stage          `json:"stage"` // nil for rentals
	StageData    json.RawMessage `json:"stageData,omitempty"`
	Address      *Address        `json:"address,omitempty"`
	LastModified time.Time       `json:"lastModified"`
	Files        []FileRecord    `json:"files"`
}

// HasRole reports whether any file in the group has the given role
func (g *TransactionGroup) HasRole(role FileRole) bool {
	for _, f := range g.Files {
		if f.Role == role {
			return true
		}
	}
	return false
}

// HasFile reports whether the group already holds key
func (g *TransactionGroup) HasFile(key string) bool {
	for _, f := range g.Files {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate
func (g *TransactionGroup) Clone() *TransactionGroup {
	if g == nil {
		return nil
	}
	c := *g
	if g.Stage != nil {
		c.Stage = g.Stage.Ptr()
	}
	if g.Address != nil {
		a := *g.Address
		c.Address = &a
	}
	if g.StageData != nil {
		c.StageData = append(json.RawMessage(nil), g.StageData...)
	}
	c.Files = append([]FileRecord(nil), g.Files...)
	return &c
}

// AgentGroups is one agent's transactions, newest first
type AgentGroups struct {
	Agent  string              `json:"agent"`
	Groups []*TransactionGroup `json:"groups"`
}

// RawFile is a file descriptor as reported by the backend or object storage
type RawFile struct {
	Key             string          `json:"key"`
	Filename        string          `json:"filename,omitempty"`
	URL             string          `json:"url,omitempty"`
	Size            int64           `json:"size,omitempty"`
	LastModified    *time.Time      `json:"lastModified,omitempty"`
	TransactionType TransactionType `json:"transactionType,omitempty"`
	FileRole        FileRole        `json:"fileRole,omitempty"`
}

// RawTransaction is one item of the backend's GET payload
type RawTransaction struct {
	ContractID      string          `json:"contractId,omitempty"`
	Agent           string          `json:"agent"`
	TransactionType TransactionType `json:"transactionType,omitempty"`
	Address         *Address        `json:"address,omitempty"`
	Stage           Stage           `json:"stage,omitempty"`
	StageData       json.RawMessage `json:"stageData,omitempty"`
	Files           []RawFile       `json:"files"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time      `json:"updatedAt,omitempty"`
}

// Timestamp is the transaction's update time, falling back to creation
func (t *RawTransaction) Timestamp() time.Time {
	if t.UpdatedAt != nil && !t.UpdatedAt.IsZero() {
		return *t.UpdatedAt
	}
	if t.CreatedAt != nil {
		return *t.CreatedAt
	}
	return time.Time{}
}

// TransactionList is the backend's GET response body
type TransactionList struct {
	Items      []RawTransaction `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// StageAdvanceRequest is sent to the backend to persist a transition
type StageAdvanceRequest struct {
	ContractID string    `json:"contractId"`
	Stage      Stage     `json:"stage"`
	StageData  StageData `json:"stageData"`
}

// PresignRequest asks the backend for a direct upload URL
type PresignRequest struct {
	Filename             string          `json:"filename"`
	ContentType          string          `json:"contentType"`
	FileSize             int64           `json:"fileSize"`
	Address              *Address        `json:"address"`
	TransactionType      TransactionType `json:"transactionType"`
	FileRole             string          `json:"fileRole"`
	AgentName            string          `json:"agentName"`
	TenantBrokerInvolved *bool           `json:"tenantBrokerInvolved,omitempty"`
}

// PresignResponse is the backend's upload grant
type PresignResponse struct {
	URL             string            `json:"url"`
	Key             string            `json:"key"`
	RequiredHeaders map[string]string `json:"requiredHeaders,omitempty"`
}

// Identity is the signed-in user as supplied by the identity provider
type Identity struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}
