package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/gatos-project/gatos/pkg/ports"
)

// StdoutSink is a secondary, non-chained AuditSink that writes every
// policy decision as a line of structured JSON to a configurable writer —
// useful for local development and for test harnesses that want to assert
// against stderr instead of standing up a git repository. Production
// deployments use GitSink; cmd/gatosd does not wire StdoutSink, and nothing
// in the repository selects it from configuration.
type StdoutSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdoutSink creates a StdoutSink writing to os.Stdout.
func NewStdoutSink() *StdoutSink {
	return NewStdoutSinkWithWriter(os.Stdout)
}

// NewStdoutSinkWithWriter creates a StdoutSink writing to w.
func NewStdoutSinkWithWriter(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{writer: w}
}

// RecordPolicyDecision writes one "AUDIT: " line per entry. A write error
// against the underlying writer is reported as AuditError{Kind:"Io"}; a
// failure to marshal the entry is reported as AuditError{Kind:"Other"}.
func (s *StdoutSink) RecordPolicyDecision(ctx context.Context, ns, actor string, entry ports.PolicyAuditEntry) *ports.AuditError {
	record := struct {
		Namespace string                  `json:"namespace"`
		Actor     string                  `json:"actor"`
		Decision  ports.PolicyDecision    `json:"decision"`
		Ctx       ports.AppendContext     `json:"ctx"`
		Timestamp uint64                  `json:"timestamp"`
	}{Namespace: ns, Actor: actor, Decision: entry.Decision, Ctx: entry.Ctx, Timestamp: entry.Timestamp}

	raw, err := json.Marshal(record)
	if err != nil {
		return &ports.AuditError{Kind: "Other", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append([]byte("AUDIT: "), append(raw, '\n')...)); err != nil {
		return &ports.AuditError{Kind: "Io", Err: err}
	}
	return nil
}
