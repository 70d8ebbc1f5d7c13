package rpc

import (
	"encoding/json"
	"errors"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// ErrMalformedRequest is returned when a request line is not valid JSON, is
// missing a required method/params member, or fails schema validation — a
// client-fixable error distinct from any backend failure (spec §7).
var ErrMalformedRequest = errors.New("rpc: malformed request")

// Request is one line of the line-delimited JSON RPC surface (spec §4.8).
type Request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	// Token carries a JWT bearer credential used to derive AppendContext's
	// Caller for messages.publish (SPEC_FULL.md §2, "JWT-bearer caller
	// identity on RPC"); unused by messages.read/messages.prune.
	Token string `json:"token,omitempty"`
}

// Response is one line of output, echoing Request.ID.
type Response struct {
	ID     string    `json:"id,omitempty"`
	Result any       `json:"result,omitempty"`
	Error  *ErrorObj `json:"error,omitempty"`
}

// ErrorObj reports an RPC failure using the same taxonomy as gatoserr,
// never a bare string message a client would have to pattern-match on.
type ErrorObj struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorResponse classifies err against the gatoserr taxonomy and builds the
// Response a handler sends back for it.
func errorResponse(id string, err error) Response {
	return Response{ID: id, Error: &ErrorObj{Kind: errorKind(err), Message: err.Error()}}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "MalformedRequest"
	case errors.Is(err, gatoserr.ErrInvalidUlid),
		errors.Is(err, gatoserr.ErrInvalidEventType),
		errors.Is(err, gatoserr.ErrInvalidTopic),
		errors.Is(err, gatoserr.ErrInvalidActor),
		errors.Is(err, gatoserr.ErrInvalidNamespace),
		errors.Is(err, gatoserr.ErrInvalidGroup),
		errors.Is(err, gatoserr.ErrInvalidLimit),
		errors.Is(err, gatoserr.ErrPayloadTooLarge):
		return "InvalidRequest"
	case errors.Is(err, gatoserr.ErrHeadConflict), errors.Is(err, gatoserr.ErrConflict):
		return "Conflict"
	case errors.Is(err, gatoserr.ErrDenied):
		return "Denied"
	case errors.Is(err, gatoserr.ErrPolicyUnavailable):
		return "PolicyUnavailable"
	case errors.Is(err, gatoserr.ErrAuditFailed):
		return "AuditFailed"
	case errors.Is(err, gatoserr.ErrTopicNotFound), errors.Is(err, gatoserr.ErrNotFound):
		return "NotFound"
	case errors.Is(err, gatoserr.ErrCorruption):
		return "Corruption"
	case errors.Is(err, gatoserr.ErrInvariant):
		return "Invariant"
	case errors.Is(err, gatoserr.ErrUnauthorized):
		return "Unauthorized"
	default:
		return "Io"
	}
}

// ReadParams is messages.read's request body (spec §4.8).
type ReadParams struct {
	Topic           string `json:"topic"`
	Since           string `json:"since,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	CheckpointGroup string `json:"checkpoint_group,omitempty"`
}

// MessageEntry is one entry of messages.read's response (spec §4.8).
type MessageEntry struct {
	Ulid                string `json:"ulid"`
	Commit              string `json:"commit"`
	ContentID           string `json:"content_id"`
	EnvelopePath        string `json:"envelope_path"`
	CanonicalJSONBase64 string `json:"canonical_json_base64"`
}

// ReadResult is messages.read's response body (spec §4.8).
type ReadResult struct {
	Messages  []MessageEntry `json:"messages"`
	NextSince string         `json:"next_since,omitempty"`
}

// PruneParams is messages.prune's request body (spec §4.8).
type PruneParams struct {
	Topic         string  `json:"topic"`
	RetentionDays float64 `json:"retention_days"`
}

// PruneResult is messages.prune's response body: the deleted ref names.
type PruneResult struct {
	Deleted []string `json:"deleted"`
}

// PublishParams is messages.publish's request body (SPEC_FULL.md §2,
// supplementing spec.md's read/prune pair with the write side Policy Guard
// gates — see DESIGN.md).
type PublishParams struct {
	Topic      string            `json:"topic"`
	Namespace  string            `json:"namespace"`
	Actor      string            `json:"actor"`
	EventType  string            `json:"event_type"`
	Ulid       string            `json:"ulid"`
	Caps       []string          `json:"caps,omitempty"`
	Payload    map[string]any    `json:"payload,omitempty"`
	PolicyRoot string            `json:"policy_root,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PublishResult is messages.publish's response body.
type PublishResult struct {
	Commit    string `json:"commit"`
	ContentID string `json:"content_id"`
	Ulid      string `json:"ulid"`
}
