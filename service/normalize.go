package service

import (
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ikonrealty/closingdesk/model"
)

var (
	parenStateRe = regexp.MustCompile(`\(([A-Za-z]{2})\)`)
	rentalNameRe = regexp.MustCompile(`(?i)(^|[\s_-])rental\.[a-z0-9]+$`)
	leaseWordRe  = regexp.MustCompile(`(^|[^a-z])leases?([^a-z]|$)`)
	altaWordRe   = regexp.MustCompile(`(^|[^a-z])alta([^a-z]|$)`)
)

// InferTransactionType picks the explicit type when present, otherwise
// infers RENTAL from a " rental/" folder marker in the key.
func InferTransactionType(explicit model.TransactionType, key string) model.TransactionType {
	if t := model.TransactionType(strings.ToUpper(string(explicit))); t.Valid() {
		return t
	}
	if strings.Contains(strings.ToLower(key), " rental/") {
		return model.TypeRental
	}
	return model.TypePurchase
}

// ClassifyRole derives the role of a file from its name. An explicit role
// from the backend always wins.
func ClassifyRole(explicit model.FileRole, filename string, txType model.TransactionType, hasAddress bool) model.FileRole {
	if explicit.Valid() {
		return explicit
	}
	// Upload requests tag the main purchase document as "PURCHASE".
	if strings.EqualFold(string(explicit), string(model.TypePurchase)) && hasAddress {
		return model.RolePrimaryContract
	}
	name := strings.ToLower(strings.TrimSpace(path.Base(filename)))
	compact := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name)

	switch {
	case strings.Contains(name, "rental_w9") || strings.Contains(compact, "rentalw9"):
		return model.RoleW9
	case hasAddress && isContractName(name):
		return model.RolePrimaryContract
	case leaseWordRe.MatchString(name) || (txType == model.TypeRental && rentalNameRe.MatchString(name)):
		return model.RoleLease
	case altaWordRe.MatchString(name):
		return model.RoleALTA
	case strings.Contains(name, "commission"):
		return model.RoleCommissionDoc
	}
	return model.RoleOther
}

// isContractName matches "contract.pdf" and generated "<address> Contract.pdf" names
func isContractName(name string) bool {
	return name == "contract.pdf" || strings.HasSuffix(name, " contract.pdf")
}

// DisplayName is the admin-facing file name: no folders, NFC, single spaces,
// "(VA)" written as "VA". It is cosmetic and never used as an identity.
func DisplayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = norm.NFC.String(name)
	name = parenStateRe.ReplaceAllStringFunc(name, func(m string) string {
		return strings.ToUpper(m[1:3])
	})
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeFile converts a raw descriptor into a FileRecord. tx supplies the
// transaction-level type, address and timestamps used as fallbacks.
func NormalizeFile(raw model.RawFile, tx *model.RawTransaction) model.FileRecord {
	var (
		txType     model.TransactionType
		hasAddress bool
		fallback   time.Time
	)
	if tx != nil {
		txType = tx.TransactionType
		hasAddress = tx.Address != nil
		fallback = tx.Timestamp()
	}

	explicit := raw.TransactionType
	if !explicit.Valid() {
		explicit = txType
	}
	resolved := InferTransactionType(explicit, raw.Key)

	filename := raw.Filename
	if strings.TrimSpace(filename) == "" {
		filename = path.Base(raw.Key)
	}

	modified := fallback
	if raw.LastModified != nil && !raw.LastModified.IsZero() {
		modified = *raw.LastModified
	}

	size := raw.Size
	if size < 0 {
		size = 0
	}

	return model.FileRecord{
		Key:             raw.Key,
		Filename:        filename,
		DisplayName:     DisplayName(filename),
		URL:             raw.URL,
		Size:            size,
		LastModified:    modified.UTC(),
		TransactionType: resolved,
		Role:            ClassifyRole(raw.FileRole, filename, resolved, hasAddress),
	}
}

// AgentVisible reports whether f shows in agent-facing listings. Tenant
// broker W-9s are admin only.
func AgentVisible(f model.FileRecord) bool {
	return f.Role != model.RoleW9
}
