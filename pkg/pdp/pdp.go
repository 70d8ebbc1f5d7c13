// Package pdp adapts pluggable policy engines to ports.PolicyClient, the
// interface Policy Guard (pkg/policyguard) evaluates every append against
// (spec §4.6). GATOS keeps the teacher's PDP-as-a-pluggable-backend shape
// (pkg/pdp in the teacher repo lets Guardian swap HELM/OPA/Cedar backends
// behind one interface) but the interface itself is ports.PolicyClient,
// and every backend here MUST distinguish Allow/Deny from "could not
// evaluate" rather than collapsing both into Deny (spec §9).
package pdp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/gatos-project/gatos/pkg/ports"
)

// Backend identifies which policy engine produced a decision.
type Backend string

const (
	BackendStatic Backend = "static"
	BackendCEL    Backend = "cel"
	BackendOPA    Backend = "opa"
)

// DecisionHash produces a deterministic SHA-256 hash of a policy decision
// using JCS canonicalization (RFC 8785), for inclusion in logs and metrics
// labels where a full PolicyAuditEntry would be too large. Adapted from
// the teacher's pdp.ComputeDecisionHash, rebased onto ports.PolicyDecision.
func DecisionHash(decision ports.PolicyDecision) (string, error) {
	hashInput := struct {
		Outcome       ports.DecisionOutcome `json:"outcome"`
		PolicyVersion string                `json:"policy_version"`
	}{
		Outcome:       decision.Outcome,
		PolicyVersion: decision.PolicyVersion,
	}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("pdp: marshaling decision for hashing: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("pdp: jcs canonicalization failed: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
