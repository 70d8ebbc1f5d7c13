// Package policyguard implements the Policy Guard (PG) component: every
// append to the Journal passes through a policy decision and is audited
// before (on Allow) or instead of (on Deny) reaching the event log
// (spec §4.6). It is the composition point between pkg/pdp, pkg/audit, and
// pkg/journal, mirroring the way the teacher's Guardian sits between a
// PolicyDecisionPoint and the rest of the kernel (pkg/guardian) — but
// Guardian collapses "policy unreachable" into a Deny, where Policy Guard
// fails the append outright and never writes an audit entry for it
// (spec §9, "Exceptions as control flow").
package policyguard

import (
	"context"
	"fmt"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/ports"
)

// JournalAppender is the slice of pkg/journal.Journal that Policy Guard
// needs — a consumer-defined interface, not ports.JournalStore, since
// Policy Guard only ever appends to one backing journal.
type JournalAppender interface {
	Append(ns, actor string, env eventenvelope.Envelope) (string, error)
}

// Guard orchestrates policy evaluation, audit recording, and the guarded
// append itself.
type Guard struct {
	clock   ports.Clock
	policy  ports.PolicyClient
	audit   ports.AuditSink
	journal JournalAppender
}

// New builds a Guard. clock, policy, audit, and journal must all be
// non-nil; there is no degraded mode for a missing policy gate.
func New(clock ports.Clock, policy ports.PolicyClient, audit ports.AuditSink, journal JournalAppender) *Guard {
	return &Guard{clock: clock, policy: policy, audit: audit, journal: journal}
}

// AppendWithPolicy evaluates env's append against the policy engine,
// records the decision to the audit trail, and — only on Allow — appends
// env to the journal (spec §4.6 steps 1-4):
//  1. Build an AppendContext and evaluate it.
//  2. A policy evaluation failure (Unavailable/InvalidRequest/Other) aborts
//     immediately; nothing is audited, since there is no decision to audit.
//  3. The decision (Allow or Deny) is always recorded to the audit sink. An
//     audit failure aborts before the append, even on Allow.
//  4. On Allow, env is appended to the journal. On Deny, the append never
//     reaches the journal; the caller sees ErrDenied.
func (g *Guard) AppendWithPolicy(ctx context.Context, ns, actor string, env eventenvelope.Envelope, caller string, metadata map[string]string) (string, error) {
	cid, err := eventenvelope.EventCID(env)
	if err != nil {
		return "", err
	}

	actx := ports.AppendContext{
		Topic:     ns,
		Ulid:      env.Ulid,
		ContentID: cid,
		Caller:    caller,
		Metadata:  metadata,
	}

	decision, perr := g.policy.EvaluateAppend(ctx, actx)
	if perr != nil {
		switch perr.Kind {
		case ports.PolicyErrorInvalidRequest:
			// A malformed policy (a CEL expression that does not evaluate
			// to a bool) is a terminal configuration defect, not a
			// transient backend outage — retrying it would never succeed
			// (spec §4.6 step 2, §7 error taxonomy).
			return "", fmt.Errorf("%w: %v", gatoserr.ErrDenied, perr)
		default:
			return "", fmt.Errorf("%w: %v", gatoserr.ErrPolicyUnavailable, perr)
		}
	}

	entry := ports.PolicyAuditEntry{Decision: decision, Ctx: actx, Timestamp: g.clock.Now()}
	if aerr := g.audit.RecordPolicyDecision(ctx, ns, actor, entry); aerr != nil {
		return "", fmt.Errorf("%w: %v", gatoserr.ErrAuditFailed, aerr)
	}

	if decision.Outcome != ports.DecisionAllow {
		return "", fmt.Errorf("%w: %s", gatoserr.ErrDenied, joinReasons(decision.Reasons))
	}

	return g.journal.Append(ns, actor, env)
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no reason given"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
