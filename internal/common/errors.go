// Package common provides shared utilities used across all features
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDerivationExhausted         = errors.New("no valid bump found for program address")
	ErrInvalidSeeds                = errors.New("invalid program address seeds")
	ErrPoolNotFound                = errors.New("pool not found")
	ErrUnexpectedOwner             = errors.New("account owned by unexpected program")
	ErrVaultSignerDerivationFailed = errors.New("market vault signer derivation failed")
	ErrTableNotActive              = errors.New("lookup table missing or not active")
	ErrPrerequisiteStateMissing    = errors.New("prerequisite ledger state missing")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrRejectedByCoSigner          = errors.New("rejected by co-signer")
	ErrEnvelopeMismatch            = errors.New("co-signed envelope does not match the sent envelope")
	ErrSubmissionFailed            = errors.New("transaction submission failed")
	ErrDuplicateSubmission         = errors.New("transaction already processed")
	ErrConfirmationTimeout         = errors.New("transaction not confirmed before blockhash expiry")

	ErrNotFound        = errors.New("account not found")
	ErrUnauthenticated = errors.New("no signer connected")
	ErrIndeterminate   = errors.New("account existence could not be determined")
	ErrSchemaMismatch  = errors.New("account list does not match instruction schema")
	ErrTableFull       = errors.New("lookup table address ceiling exceeded")
	ErrInvalidParams   = errors.New("invalid operation parameters")
)

// OperationError attaches the failing operation and the offending address to an error.
type OperationError struct {
	Op      string
	Address string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (address %s)", e.Op, e.Err, e.Address)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func NewOperationError(op string, address fmt.Stringer, err error) *OperationError {
	oe := &OperationError{Op: op, Err: err}
	if address != nil {
		oe.Address = address.String()
	}
	return oe
}

// IsRetryable reports whether a fresh build cycle may succeed where this one failed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIndeterminate),
		errors.Is(err, ErrTableNotActive),
		errors.Is(err, ErrConfirmationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// HttpError represents an HTTP error with status code and message
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}

func HTTPErrorBadRequest(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    messageOrDefault(msg, "Bad request"),
	}
}

func HTTPErrorNotFound(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    messageOrDefault(msg, "Not found"),
	}
}

func HTTPErrorInternalError(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    messageOrDefault(msg, "Internal server error"),
	}
}

func HTTPErrorUnauthorized(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    messageOrDefault(msg, "Unauthorized"),
	}
}

func HTTPErrorResourceConflict(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusConflict,
		Code:       "RESOURCE_CONFLICT",
		Message:    messageOrDefault(msg, "Resource conflict"),
	}
}

func HTTPErrorUnprocessable(code, msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       code,
		Message:    messageOrDefault(msg, "Unprocessable entity"),
	}
}

func HTTPErrorBadGateway(code, msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadGateway,
		Code:       code,
		Message:    messageOrDefault(msg, "Upstream failure"),
	}
}

func HTTPErrorTimeout(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusGatewayTimeout,
		Code:       "CONFIRMATION_TIMEOUT",
		Message:    messageOrDefault(msg, "Timed out"),
	}
}

// ToHTTPError maps the domain taxonomy to a client-facing error. The message
// keeps the operation and address but never the co-signer's own response text.
func ToHTTPError(err error) *HttpError {
	var he *HttpError
	if errors.As(err, &he) {
		return he
	}

	msg := err.Error()
	var oe *OperationError
	if errors.As(err, &oe) {
		msg = oe.Op + ": " + rootMessage(oe.Err)
		if oe.Address != "" {
			msg += " (address " + oe.Address + ")"
		}
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return HTTPErrorUnauthorized(msg)
	case errors.Is(err, ErrInvalidParams):
		return HTTPErrorBadRequest(msg)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPoolNotFound):
		return HTTPErrorNotFound(msg)
	case errors.Is(err, ErrInsufficientFunds):
		return HTTPErrorUnprocessable("INSUFFICIENT_FUNDS", msg)
	case errors.Is(err, ErrPrerequisiteStateMissing):
		return HTTPErrorUnprocessable("PREREQUISITE_STATE_MISSING", msg)
	case errors.Is(err, ErrUnexpectedOwner):
		return HTTPErrorUnprocessable("UNEXPECTED_OWNER", msg)
	case errors.Is(err, ErrRejectedByCoSigner):
		return HTTPErrorBadGateway("REJECTED_BY_COSIGNER", msg)
	case errors.Is(err, ErrEnvelopeMismatch):
		return HTTPErrorBadGateway("ENVELOPE_MISMATCH", msg)
	case errors.Is(err, ErrSubmissionFailed):
		return HTTPErrorBadGateway("SUBMISSION_FAILED", msg)
	case errors.Is(err, ErrConfirmationTimeout):
		return HTTPErrorTimeout(msg)
	case errors.Is(err, ErrTableNotActive), errors.Is(err, ErrIndeterminate):
		return HTTPErrorResourceConflict(msg)
	}
	return HTTPErrorInternalError(msg)
}

// rootMessage returns the innermost sentinel text so wrapped transport details stay internal.
func rootMessage(err error) string {
	for _, s := range []error{
		ErrRejectedByCoSigner, ErrEnvelopeMismatch, ErrSubmissionFailed,
		ErrConfirmationTimeout, ErrInsufficientFunds, ErrPrerequisiteStateMissing,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}
