package engine

import (
	"errors"
	"fmt"

	"slotline/internal/engine/auth"
	"slotline/internal/repo"
)

// Kind classifies engine failures for callers that map them to transport
// status codes.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Machine-readable error codes.
const (
	CodeInvalidArgument  = "invalid_argument"
	CodeProposalNotFound = "proposal_not_found"
	CodeSpaceNotFound    = "space_not_found"
	CodeSlotNotFound     = "slot_not_found"
	CodeInvalidBatch     = "invalid_batch"
	CodeDuplicateSlot    = "duplicate_slot"
	CodeInvalidResponse  = "invalid_response"
	CodeSlotNotInProp    = "slot_not_in_proposal"
	CodeProposalNotOpen  = "proposal_not_open"
	CodeProposalExpired  = "proposal_expired"
	CodeNotAllAgreed     = "not_all_agreed"
	CodeNotRespondent    = "not_a_respondent"
	CodeForbidden        = "forbidden"
	CodeNoCandidates     = "no_candidate_slots"
	CodeInternal         = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports how err should be classified. Unrecognised errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return KindForbidden
	}
	if errors.Is(err, repo.ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}

func invalid(code, msg string, details map[string]any) *Error {
	return &Error{Kind: KindInvalidArgument, Code: code, Message: msg, Details: details}
}

func notFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func conflict(code, msg string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Details: details}
}

// internal wraps store or provider failures. Errors that already carry a
// classification pass through unchanged.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: op, Err: err}
}

// authErr turns auth failures into forbidden errors and everything else
// into internal ones.
func authErr(err error) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: fe.Error(), Err: err}
	}
	return internal("authorize", err)
}
