package model

import (
	"time"
)

// TransactionType distinguishes purchases from rentals
type TransactionType string

const (
	TypePurchase TransactionType = "PURCHASE"
	TypeRental   TransactionType = "RENTAL"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	return t == TypePurchase || t == TypeRental
}

// FileRole is what a stored file represents within its transaction
type FileRole string

const (
	RolePrimaryContract FileRole = "PRIMARY_CONTRACT"
	RoleLease           FileRole = "LEASE"
	RoleW9              FileRole = "W9"
	RoleALTA            FileRole = "ALTA"
	RoleCommissionDoc   FileRole = "COMMISSION_DOC"
	RoleOther           FileRole = "OTHER"
)

// Valid reports whether r is a known role
func (r FileRole) Valid() bool {
	switch r {
	case RolePrimaryContract, RoleLease, RoleW9, RoleALTA, RoleCommissionDoc, RoleOther:
		return true
	}
	return false
}

// FileRecord is the canonical shape of a stored object. Key is its identity.
type FileRecord struct {
	Key             string          `json:"key"`
	Filename        string          `json:"filename"`
	DisplayName     string          `json:"displayName"`
	URL             string          `json:"url,omitempty"`
	Size            int64           `json:"size"`
	LastModified    time.Time       `json:"lastModified"`
	TransactionType TransactionType `json:"transactionType"`
	Role            FileRole        `json:"role"`
}

// AgentFile pairs a file with the agent whose transaction it belongs to
type AgentFile struct {
	Agent string     `json:"agent"`
	File  FileRecord `json:"file"`
}
