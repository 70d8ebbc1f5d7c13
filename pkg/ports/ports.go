// Package ports declares the cross-plane interfaces GATOS depends on:
// wall-clock access, policy evaluation, audit recording, metrics, and a
// generic journal store shape. The Clock implementations (clock.go) live
// here; every other concrete implementation lives in its own adapter
// package (pkg/pdp, pkg/audit, pkg/observability) and is wired at cmd/gatosd's composition
// root — the same seam the teacher uses for its PDP/KMS/store adapters.
package ports

import "context"

// Clock returns POSIX seconds UTC. Production code uses SystemClock; tests
// inject a deterministic queue (spec §9, "Dynamic clock injection").
type Clock interface {
	Now() uint64
}

// DecisionOutcome is the result of a policy evaluation.
type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "Allow"
	DecisionDeny  DecisionOutcome = "Deny"
)

// PolicyDecision is the successful result of PolicyClient.EvaluateAppend.
type PolicyDecision struct {
	Outcome       DecisionOutcome
	PolicyVersion string
	Reasons       []string
}

// PolicyErrorKind distinguishes the three ways a policy evaluation can fail
// without producing a decision (spec §4.6, §9 "Exceptions as control flow").
type PolicyErrorKind int

const (
	PolicyErrorUnavailable PolicyErrorKind = iota
	PolicyErrorInvalidRequest
	PolicyErrorOther
)

// PolicyError reports why EvaluateAppend could not reach Allow/Deny.
type PolicyError struct {
	Kind PolicyErrorKind
	Err  error
}

func (e *PolicyError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	switch e.Kind {
	case PolicyErrorUnavailable:
		return "policy: unavailable"
	case PolicyErrorInvalidRequest:
		return "policy: invalid request"
	default:
		return "policy: other"
	}
}

func (e *PolicyError) Unwrap() error { return e.Err }

// AppendContext is what a PolicyClient evaluates before an append is
// allowed to reach the journal or message plane.
type AppendContext struct {
	Topic     string
	Ulid      string
	ContentID string
	Caller    string
	Metadata  map[string]string
}

// PolicyClient is the pre-append gate (spec §4.6).
type PolicyClient interface {
	EvaluateAppend(ctx context.Context, actx AppendContext) (PolicyDecision, *PolicyError)
}

// PolicyAuditEntry is the immutable record written for every evaluated
// append, allow or deny (spec §3).
type PolicyAuditEntry struct {
	Decision  PolicyDecision
	Ctx       AppendContext
	Timestamp uint64
}

// AuditError reports why an audit write failed.
type AuditError struct {
	Kind string // "Io", "Conflict", "Other"
	Err  error
}

func (e *AuditError) Error() string {
	if e.Err != nil {
		return "audit: " + e.Kind + ": " + e.Err.Error()
	}
	return "audit: " + e.Kind
}

func (e *AuditError) Unwrap() error { return e.Err }

// AuditSink persists PolicyAuditEntry records to a tamper-evident commit
// chain (spec §4.6).
type AuditSink interface {
	RecordPolicyDecision(ctx context.Context, ns, actor string, entry PolicyAuditEntry) *AuditError
}

// Metrics is the RED-style counter/histogram sink every component reports
// through; adapted to OpenTelemetry in pkg/observability.
type Metrics interface {
	IncrCounter(name string, labels map[string]string)
	ObserveSeconds(name string, value float64, labels map[string]string)
}

// JournalStore is a generic append/read shape for a journal backend (spec
// §4.7). No package in this repository implements or consumes it: Policy
// Guard appends through its own policyguard.JournalAppender, and
// pkg/journal.Journal has a different method set.
type JournalStore interface {
	Append(ctx context.Context, ns, actor string, envelopeBytes []byte, eventType, eventCID string) (commitID string, err error)
	ReadWindow(ctx context.Context, ns, actor string, start, end string) ([]JournalRecord, error)
	ReadWindowPaginated(ctx context.Context, ns, actor string, start, end string, limit int) ([]JournalRecord, string, error)
}

// JournalRecord is one materialized entry from a journal read.
type JournalRecord struct {
	CommitID      string
	EnvelopeBytes []byte
}
