package models

import "fmt"

// ReconciliationErrorKind classifies reconciliation failures so callers can
// decide between actionable user messages (validation, conflicts) and generic
// ones (persistence).
type ReconciliationErrorKind string

const (
	ErrKindValidation          ReconciliationErrorKind = "validation"
	ErrKindReferentialConflict ReconciliationErrorKind = "referential_conflict"
	ErrKindPersistence         ReconciliationErrorKind = "persistence"
)

type ReconciliationError struct {
	Kind    ReconciliationErrorKind `json:"kind"`
	Message string                  `json:"message"`
	Err     error                   `json:"-"`
}

func (e *ReconciliationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...interface{}) *ReconciliationError {
	return &ReconciliationError{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

func referentialConflictError(format string, args ...interface{}) *ReconciliationError {
	return &ReconciliationError{Kind: ErrKindReferentialConflict, Message: fmt.Sprintf(format, args...)}
}

// persistenceError wraps a storage failure. The reconciliation is multi-step;
// a failure partway means the whole operation is reported failed even if some
// steps committed, so the wrapped error is logged with full detail for
// operators while the message stays generic.
func persistenceError(op string, err error) *ReconciliationError {
	return &ReconciliationError{Kind: ErrKindPersistence, Message: op, Err: err}
}

// IntegrityWarning reports a non-fatal data condition (orphaned receipt,
// dangling reference, missing inventory record). The operation proceeds with a
// sensible default; the condition is surfaced to the caller.
type IntegrityWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnOrphanReceipt          = "orphan_receipt"
	WarnDanglingReference      = "dangling_reference"
	WarnInventoryClamped       = "inventory_clamped"
	WarnInventoryRecordCreated = "inventory_record_created"
	WarnLegacyReferenceUsed    = "legacy_reference_used"
)
