package pdp

import (
	"context"

	"github.com/gatos-project/gatos/pkg/ports"
)

// StaticClient evaluates append decisions against a fixed topic->allowed
// table, falling back to defaultAllow for topics with no explicit entry.
// Adapted from the teacher's pkg/pdp.HelmPDP (a built-in rule-table PDP
// backend kept alongside the pluggable OPA/Cedar ones) — useful for local
// development and for exercising Policy Guard's Allow/Deny paths in tests
// without standing up a CEL expression or an OPA server.
type StaticClient struct {
	policyVersion string
	rules         map[string]bool
	defaultAllow  bool
}

// NewStaticClient builds a StaticClient. rules maps topic name to
// allow/deny; topics absent from rules fall back to defaultAllow.
func NewStaticClient(policyVersion string, rules map[string]bool, defaultAllow bool) *StaticClient {
	return &StaticClient{policyVersion: policyVersion, rules: rules, defaultAllow: defaultAllow}
}

// EvaluateAppend never fails: a StaticClient has no external dependency
// to be unavailable, so it only ever returns Allow or Deny.
func (s *StaticClient) EvaluateAppend(ctx context.Context, actx ports.AppendContext) (ports.PolicyDecision, *ports.PolicyError) {
	allowed := s.defaultAllow
	reason := "default policy"
	if v, ok := s.rules[actx.Topic]; ok {
		allowed = v
		reason = "explicit rule for topic " + actx.Topic
	}

	outcome := ports.DecisionDeny
	if allowed {
		outcome = ports.DecisionAllow
	}
	return ports.PolicyDecision{
		Outcome:       outcome,
		PolicyVersion: s.policyVersion,
		Reasons:       []string{reason},
	}, nil
}
