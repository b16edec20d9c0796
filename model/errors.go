package model

import (
	"errors"
	"fmt"
)

// Validation error codes surfaced inline to the user
const (
	CodeMissingHolder          = "MissingHolder"
	CodeMissingOtherHolderName = "MissingOtherHolderName"
	CodeOtherHolderTooLong     = "OtherHolderTooLong"
	CodeHolderNotAvailable     = "HolderNotAvailable"
	CodeMissingContingencies   = "MissingContingencies"
	CodeUnknownContingency     = "UnknownContingency"
	CodeMissingOtherText       = "MissingOtherContingency"
	CodeOtherTextTooLong       = "OtherContingencyTooLong"
	CodeMissingClosingDate     = "MissingClosingDate"
	CodeInvalidClosingDate     = "InvalidClosingDate"
	CodeClosingDateInFuture    = "ClosingDateInFuture"
	CodeMissingTitleCompany    = "MissingTitleCompany"
	CodeMissingAmount          = "MissingAmount"
	CodeNegativeAmount         = "NegativeAmount"
	CodeStageMismatch          = "StageMismatch"
	CodeUnknownStage           = "UnknownStage"
	CodeUnlicensedState        = "UnlicensedState"
	CodeMissingStreetNumber    = "MissingStreetNumber"
	CodeMissingStreetName      = "MissingStreetName"
	CodeMissingTransactionType = "MissingTransactionType"
	CodeMissingAddress         = "MissingAddress"
	CodeMissingFile            = "MissingFile"
	CodeFileTooLarge           = "FileTooLarge"
	CodeUnsupportedFileType    = "UnsupportedFileType"
	CodeMissingTenantBroker    = "MissingTenantBrokerAnswer"
	CodeMissingW9              = "MissingW9"
	CodeInvalidPaymentMethod   = "InvalidPaymentMethod"
	CodeInvalidPaymentDate     = "InvalidPaymentDate"
	CodeInvalidPercent         = "InvalidPercent"
)

// ValidationError is a bad or missing field in user-supplied data.
// Two ValidationErrors match under errors.Is when their codes are equal.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks against ValidationError codes
var (
	ErrMissingHolder          = &ValidationError{Code: CodeMissingHolder}
	ErrMissingOtherHolderName = &ValidationError{Code: CodeMissingOtherHolderName}
	ErrStageMismatch          = &ValidationError{Code: CodeStageMismatch}
)

var (
	ErrNoFurtherStage          = errors.New("NoFurtherStage: transaction is already at its final stage")
	ErrNotApplicableToRental   = errors.New("NotApplicableToRental: rentals do not have stages")
	ErrDisbursementBeforeClose = errors.New("DisbursementBeforeClose: commission can only be disbursed after closing")
	ErrAltaNotUploaded         = errors.New("AltaNotUploaded: signed ALTA statement has not been uploaded")
	ErrAdminOnly               = errors.New("commission disbursement is restricted to admins")
	ErrMutationInFlight        = errors.New("a request for this item is already in progress")
	ErrGroupNotFound           = errors.New("transaction not found")
)

// DataIntegrityWarning records a file that could not be attributed cleanly.
// The file is still kept, bucketed under UnknownAgent.
type DataIntegrityWarning struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (w DataIntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity: %s: %s", w.Key, w.Reason)
}
