package policyguard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/policyguard"
	"github.com/gatos-project/gatos/pkg/ports"
)

type stubPolicy struct {
	decision ports.PolicyDecision
	err      *ports.PolicyError
}

func (s stubPolicy) EvaluateAppend(ctx context.Context, actx ports.AppendContext) (ports.PolicyDecision, *ports.PolicyError) {
	return s.decision, s.err
}

type stubAudit struct {
	recorded []ports.PolicyAuditEntry
	err      *ports.AuditError
}

func (s *stubAudit) RecordPolicyDecision(ctx context.Context, ns, actor string, entry ports.PolicyAuditEntry) *ports.AuditError {
	if s.err != nil {
		return s.err
	}
	s.recorded = append(s.recorded, entry)
	return nil
}

type stubJournal struct {
	appended bool
	commitID string
}

func (s *stubJournal) Append(ns, actor string, env eventenvelope.Envelope) (string, error) {
	s.appended = true
	return s.commitID, nil
}

func validEnv() eventenvelope.Envelope {
	return eventenvelope.Envelope{
		EventType:  "order.created",
		Ulid:       "01ARZ3NDEKTSV4RRFFQ69G5FA1",
		Actor:      "alice",
		Payload:    map[string]any{"n": 1},
		PolicyRoot: "root",
	}
}

func TestAppendWithPolicyAllowsAndAppends(t *testing.T) {
	policy := stubPolicy{decision: ports.PolicyDecision{Outcome: ports.DecisionAllow, PolicyVersion: "v1"}}
	aud := &stubAudit{}
	jrn := &stubJournal{commitID: "deadbeef"}
	g := policyguard.New(ports.FixedClock(1700000000), policy, aud, jrn)

	commit, err := g.AppendWithPolicy(context.Background(), "ns1", "alice", validEnv(), "caller1", nil)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", commit)
	require.True(t, jrn.appended)
	require.Len(t, aud.recorded, 1)
	require.Equal(t, ports.DecisionAllow, aud.recorded[0].Decision.Outcome)
}

func TestAppendWithPolicyDeniesAndSkipsJournal(t *testing.T) {
	policy := stubPolicy{decision: ports.PolicyDecision{Outcome: ports.DecisionDeny, PolicyVersion: "v1", Reasons: []string{"blocked"}}}
	aud := &stubAudit{}
	jrn := &stubJournal{}
	g := policyguard.New(ports.FixedClock(1700000000), policy, aud, jrn)

	_, err := g.AppendWithPolicy(context.Background(), "ns1", "alice", validEnv(), "caller1", nil)
	require.ErrorIs(t, err, gatoserr.ErrDenied)
	require.False(t, jrn.appended, "denied append must never reach the journal")
	require.Len(t, aud.recorded, 1, "deny must still be audited")
	require.Equal(t, ports.DecisionDeny, aud.recorded[0].Decision.Outcome)
}

func TestAppendWithPolicyUnavailableSkipsAuditAndJournal(t *testing.T) {
	policy := stubPolicy{err: &ports.PolicyError{Kind: ports.PolicyErrorUnavailable}}
	aud := &stubAudit{}
	jrn := &stubJournal{}
	g := policyguard.New(ports.FixedClock(1700000000), policy, aud, jrn)

	_, err := g.AppendWithPolicy(context.Background(), "ns1", "alice", validEnv(), "caller1", nil)
	require.ErrorIs(t, err, gatoserr.ErrPolicyUnavailable)
	require.False(t, jrn.appended)
	require.Empty(t, aud.recorded, "an unreachable policy produces no decision to audit")
}

func TestAppendWithPolicyInvalidRequestDeniesInsteadOfUnavailable(t *testing.T) {
	// A malformed policy expression (e.g. a CEL policy that evaluates to a
	// non-bool) is PolicyErrorInvalidRequest — a terminal configuration
	// defect, distinct from an unreachable backend (spec §4.6 step 2).
	policy := stubPolicy{err: &ports.PolicyError{Kind: ports.PolicyErrorInvalidRequest}}
	aud := &stubAudit{}
	jrn := &stubJournal{}
	g := policyguard.New(ports.FixedClock(1700000000), policy, aud, jrn)

	_, err := g.AppendWithPolicy(context.Background(), "ns1", "alice", validEnv(), "caller1", nil)
	require.ErrorIs(t, err, gatoserr.ErrDenied)
	require.NotErrorIs(t, err, gatoserr.ErrPolicyUnavailable)
	require.False(t, jrn.appended)
	require.Empty(t, aud.recorded, "a policy evaluation error produces no decision to audit")
}

func TestAppendWithPolicyAuditFailureAbortsBeforeAppend(t *testing.T) {
	policy := stubPolicy{decision: ports.PolicyDecision{Outcome: ports.DecisionAllow, PolicyVersion: "v1"}}
	aud := &stubAudit{err: &ports.AuditError{Kind: "Io"}}
	jrn := &stubJournal{}
	g := policyguard.New(ports.FixedClock(1700000000), policy, aud, jrn)

	_, err := g.AppendWithPolicy(context.Background(), "ns1", "alice", validEnv(), "caller1", nil)
	require.ErrorIs(t, err, gatoserr.ErrAuditFailed)
	require.False(t, jrn.appended, "an allow whose audit write fails must not reach the journal")
}
