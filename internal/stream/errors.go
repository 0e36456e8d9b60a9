package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pushsync/internal/ir"
)

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// ErrCodeFetchFailed indicates a page could not be fetched or decoded.
	ErrCodeFetchFailed ErrorCode = "FETCH_FAILED"

	// ErrCodeDecryptFailed indicates an event was dropped by the decrypter.
	ErrCodeDecryptFailed ErrorCode = "DECRYPT_FAILED"

	// ErrCodeApplyFailed indicates an applier rejected an event.
	ErrCodeApplyFailed ErrorCode = "APPLY_FAILED"

	// ErrCodeCommitFailed indicates the local store could not commit.
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// ErrCodeRecycleFailed indicates the local store could not be rebuilt.
	ErrCodeRecycleFailed ErrorCode = "RECYCLE_FAILED"
)

// ApplyError describes an event that did not take full effect locally.
type ApplyError struct {
	Code    ErrorCode
	EventID ir.EventID
	Kind    ir.Kind
	Err     error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: event %s (%s): %v", e.Code, e.EventID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: event %s (%s)", e.Code, e.EventID, e.Kind)
}

// Unwrap returns the underlying store or decrypter error.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// FetchError describes a failed page fetch.
type FetchError struct {
	StatusCode int
	Since      ir.EventID
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", ErrCodeFetchFailed)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status %d", e.StatusCode)
	} else {
		b.WriteString("no response")
	}
	if !e.Since.IsZero() {
		fmt.Fprintf(&b, " (since=%s)", e.Since)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the transport or decode error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsCommitError reports whether err is a commit failure.
// Uses errors.As to handle wrapped errors.
func IsCommitError(err error) bool {
	return hasCode(err, ErrCodeCommitFailed)
}

// IsDecryptError reports whether err is a decryption drop.
func IsDecryptError(err error) bool {
	return hasCode(err, ErrCodeDecryptFailed)
}

// IsApplyError reports whether err is an applier failure.
func IsApplyError(err error) bool {
	return hasCode(err, ErrCodeApplyFailed)
}

// IsFetchError reports whether err is a page fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// stageCode maps a failure stage to its error code.
func stageCode(stage ir.FailureStage) ErrorCode {
	switch stage {
	case ir.StageDecrypt:
		return ErrCodeDecryptFailed
	case ir.StageApply:
		return ErrCodeApplyFailed
	case ir.StageCommit:
		return ErrCodeCommitFailed
	default:
		return ErrCodeRecycleFailed
	}
}
