// Package gatoserr defines the sentinel error taxonomy shared by every
// GATOS component. Components wrap one of these sentinels with fmt.Errorf's
// %w verb; callers branch with errors.Is, never string matching.
package gatoserr

import "errors"

var (
	// Validation errors — client-fixable, never retried internally.
	ErrInvalidUlid      = errors.New("gatos: invalid ulid")
	ErrInvalidEventType = errors.New("gatos: invalid event type")
	ErrInvalidTopic     = errors.New("gatos: invalid topic")
	ErrInvalidActor     = errors.New("gatos: invalid actor")
	ErrInvalidNamespace = errors.New("gatos: invalid namespace")
	ErrInvalidGroup     = errors.New("gatos: invalid consumer group")
	ErrInvalidLimit     = errors.New("gatos: invalid limit")
	ErrPayloadTooLarge  = errors.New("gatos: payload too large")

	// Conflict errors — surfaced after the bounded retry budget is exhausted.
	ErrHeadConflict = errors.New("gatos: head conflict")
	ErrConflict     = errors.New("gatos: conflict")

	// Policy errors.
	ErrDenied           = errors.New("gatos: denied")
	ErrPolicyUnavailable = errors.New("gatos: policy unavailable")

	// Audit errors — fail-closed.
	ErrAuditFailed = errors.New("gatos: audit failed")

	// Backend errors.
	ErrIo         = errors.New("gatos: io error")
	ErrCorruption = errors.New("gatos: corruption")
	ErrInvariant  = errors.New("gatos: invariant violation")

	// Not-found errors, distinct from Io.
	ErrTopicNotFound = errors.New("gatos: topic not found")
	ErrNotFound      = errors.New("gatos: not found")

	// Encode/signature errors (Event Envelope).
	ErrEncode           = errors.New("gatos: encode error")
	ErrSignatureInvalid = errors.New("gatos: signature invalid")

	// RPC caller-identity errors (RP).
	ErrUnauthorized = errors.New("gatos: unauthorized")
)
