// Package apperr classifies failures of the ticket pipeline.  Each sentinel
// carries a Kind that drives retry and escalation policy and a short message
// that is safe to show to an end user.  The internal error text is kept
// separate and only goes to logs.
package apperr

import "errors"

// Kind groups errors by how callers must react to them.
type Kind int

const (
	Internal Kind = iota
	// UserActionRequired is surfaced as-is and never retried.
	UserActionRequired
	// Invalid is a malformed request.
	Invalid
	// TransientNetwork may be retried with backoff.
	TransientNetwork
	// IdentityMismatch is fatal; retrying with the same identity cannot succeed.
	IdentityMismatch
	// DuplicateRegistration is an idempotency signal, not a failure.
	DuplicateRegistration
	// LedgerRejected means nothing was minted or burned.
	LedgerRejected
	// Escalated means a ledger side effect exists that the registry does not
	// reflect yet; an operator must reconcile.
	Escalated
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case UserActionRequired:
		return "user_action_required"
	case Invalid:
		return "invalid"
	case TransientNetwork:
		return "transient_network"
	case IdentityMismatch:
		return "identity_mismatch"
	case DuplicateRegistration:
		return "duplicate_registration"
	case LedgerRejected:
		return "ledger_rejected"
	case Escalated:
		return "escalated"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	}
	return "internal"
}

// Error is a classified sentinel.  Compare with errors.Is.
type Error struct {
	Kind    Kind
	msg     string
	display string
}

// New returns a sentinel with an internal message and a user-facing one.
func New(kind Kind, msg, display string) *Error {
	return &Error{Kind: kind, msg: msg, display: display}
}

func (e *Error) Error() string { return e.msg }

// Display is the human readable reason.
func (e *Error) Display() string { return e.display }

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Message returns a user-facing reason for err.  Unclassified errors get a
// generic message so internal details never leak.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.display != "" {
		return ae.display
	}
	return "Something went wrong. Please try again."
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	return KindOf(err) == TransientNetwork
}
