package services

import "errors"

// Business-rule rejections. Each is a distinct kind so callers can render a
// specific message; none of them is retried.
var (
	// ErrInvalidQuantity is returned when a copy count is zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrInvalidRequest is returned for malformed input that is not a catalog
	// entry: empty institute or student names, bad ids, unreadable bodies.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCatalogEntry is returned for empty names or impossible
	// edition/price values.
	ErrInvalidCatalogEntry = errors.New("invalid catalog entry")

	// ErrNotFound is returned when a catalog book, institute or inventory row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBorrowerNotFound is returned when the student does not exist in the
	// acting institute.
	ErrBorrowerNotFound = errors.New("borrower not found")

	// ErrDuplicateLoan is returned when the student already holds an active
	// loan of the same book.
	ErrDuplicateLoan = errors.New("borrower already has this book on loan")

	// ErrNoCopiesAvailable is returned when the institute has no copy of the
	// book on the shelf.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrInsufficientCopies is returned when removing more copies than are on
	// the shelf.
	ErrInsufficientCopies = errors.New("cannot remove more copies than are available")

	// ErrNoActiveLoan is returned when returning or previewing a book the
	// student does not hold.
	ErrNoActiveLoan = errors.New("no active loan for this book and borrower")

	// ErrInternalConsistency means inventory and the lending ledger disagree.
	// It indicates a bug, aborts the transaction and is always logged.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// Stable codes for the error kinds, used in API responses and metric labels.
const (
	CodeOK                  = "ok"
	CodeInvalidRequest      = "invalid_request"
	CodeInvalidQuantity     = "invalid_quantity"
	CodeInvalidCatalogEntry = "invalid_catalog_entry"
	CodeNotFound            = "not_found"
	CodeBorrowerNotFound    = "borrower_not_found"
	CodeDuplicateLoan       = "duplicate_loan"
	CodeNoCopiesAvailable   = "no_copies_available"
	CodeInsufficientCopies  = "insufficient_copies"
	CodeNoActiveLoan        = "no_active_loan"
	CodeInstituteExists     = "institute_exists"
	CodeInternalConsistency = "internal_consistency"
	CodeInternal            = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrInvalidQuantity, CodeInvalidQuantity},
	{ErrInvalidCatalogEntry, CodeInvalidCatalogEntry},
	{ErrBorrowerNotFound, CodeBorrowerNotFound},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicateLoan, CodeDuplicateLoan},
	{ErrNoCopiesAvailable, CodeNoCopiesAvailable},
	{ErrInsufficientCopies, CodeInsufficientCopies},
	{ErrNoActiveLoan, CodeNoActiveLoan},
	{ErrInstituteExists, CodeInstituteExists},
	{ErrInternalConsistency, CodeInternalConsistency},
}

// ErrorCode maps err to its stable code; unknown errors are CodeInternal.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}
