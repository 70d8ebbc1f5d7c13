// Package pdp adapts policy engines to ports.PolicyClient. GATOS's
// append-path policy gate is deliberately pluggable the way the teacher's
// Guardian delegates to a PolicyDecisionPoint backend (pkg/pdp in the
// teacher repo) — CEL here, OPA-over-HTTP in opa.go — while the append
// path itself (pkg/policyguard) stays backend-agnostic.
//
// Every implementation here MUST be fail-closed: any error that is not a
// clean Allow/Deny maps to a ports.PolicyError (Unavailable,
// InvalidRequest or Other), never a silent Allow.
package pdp

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/gatos-project/gatos/pkg/ports"
)

// CELClient evaluates a single boolean CEL expression against the append
// context — `true` means Allow, `false` means Deny. Grounded on the
// teacher's pkg/kernel/celdp.CELDPEvaluator (cel.NewEnv with a single
// "input" map variable, compile-then-program-then-eval).
type CELClient struct {
	env           *cel.Env
	program       cel.Program
	policyVersion string
}

// NewCELClient compiles expr once at construction time; a compile error is
// returned immediately rather than deferred to the first EvaluateAppend
// call, since a broken policy expression is a deployment-time mistake, not
// a per-request condition.
func NewCELClient(expr string, policyVersion string) (*CELClient, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("pdp: building CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("pdp: compiling policy expression: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("pdp: building CEL program: %w", err)
	}

	return &CELClient{env: env, program: program, policyVersion: policyVersion}, nil
}

func appendContextToCELInput(actx ports.AppendContext) map[string]any {
	metadata := make(map[string]any, len(actx.Metadata))
	for k, v := range actx.Metadata {
		metadata[k] = v
	}
	return map[string]any{
		"topic":      actx.Topic,
		"ulid":       actx.Ulid,
		"content_id": actx.ContentID,
		"caller":     actx.Caller,
		"metadata":   metadata,
	}
}

// EvaluateAppend runs the compiled expression against actx. A runtime
// error (missing field, type mismatch) is reported as PolicyErrorOther —
// fail-closed, never an implicit Allow (spec §4.6).
func (c *CELClient) EvaluateAppend(ctx context.Context, actx ports.AppendContext) (ports.PolicyDecision, *ports.PolicyError) {
	input := map[string]any{"input": appendContextToCELInput(actx)}

	val, _, err := c.program.ContextEval(ctx, input)
	if err != nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorOther, Err: fmt.Errorf("pdp: cel eval: %w", err)}
	}

	boolVal, ok := val.Value().(bool)
	if !ok {
		return ports.PolicyDecision{}, &ports.PolicyError{
			Kind: ports.PolicyErrorInvalidRequest,
			Err:  fmt.Errorf("pdp: policy expression did not evaluate to a bool, got %s", val.Type()),
		}
	}

	outcome := ports.DecisionDeny
	reasons := []string{"cel expression evaluated false"}
	if boolVal {
		outcome = ports.DecisionAllow
		reasons = []string{"cel expression evaluated true"}
	}

	return ports.PolicyDecision{
		Outcome:       outcome,
		PolicyVersion: c.policyVersion,
		Reasons:       reasons,
	}, nil
}
