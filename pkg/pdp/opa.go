package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatos-project/gatos/pkg/ports"
)

const (
	defaultOPATimeout = 5 * time.Second
	defaultOPAPath    = "/v1/data/gatos/authz"
)

// OPAConfig configures OPAClient.
type OPAConfig struct {
	URL           string
	PolicyPath    string
	Timeout       time.Duration
	PolicyVersion string
}

// OPAClient evaluates append decisions against a remote OPA HTTP API.
// Adapted from the teacher's pkg/pdp.OPAPDP, with one deliberate
// behavioral change: the teacher collapses every failure mode (timeout,
// non-200, malformed body) into a silent policy Deny. Spec §4.6 and §9
// ("Exceptions as control flow... never collapse them into a generic
// error") require distinguishing "the policy said no" from "the policy
// could not be reached" — so unreachability and malformed responses here
// surface as ports.PolicyErrorUnavailable, not a Deny decision.
type OPAClient struct {
	config OPAConfig
	client *http.Client
}

// NewOPAClient builds an OPA-backed PolicyClient.
func NewOPAClient(cfg OPAConfig) *OPAClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOPATimeout
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = defaultOPAPath
	}
	return &OPAClient{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type opaRequest struct {
	Input *opaInput `json:"input"`
}

type opaInput struct {
	Topic     string            `json:"topic"`
	Ulid      string            `json:"ulid"`
	ContentID string            `json:"content_id"`
	Caller    string            `json:"caller"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type opaResponse struct {
	Result *opaResult `json:"result"`
}

type opaResult struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons,omitempty"`
}

// EvaluateAppend posts actx to the configured OPA decision endpoint.
func (o *OPAClient) EvaluateAppend(ctx context.Context, actx ports.AppendContext) (ports.PolicyDecision, *ports.PolicyError) {
	body := opaRequest{Input: &opaInput{
		Topic:     actx.Topic,
		Ulid:      actx.Ulid,
		ContentID: actx.ContentID,
		Caller:    actx.Caller,
		Metadata:  actx.Metadata,
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorInvalidRequest, Err: fmt.Errorf("pdp: marshal opa request: %w", err)}
	}

	url := o.config.URL + o.config.PolicyPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorInvalidRequest, Err: fmt.Errorf("pdp: building opa request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorUnavailable, Err: fmt.Errorf("pdp: opa unreachable: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorUnavailable, Err: fmt.Errorf("pdp: opa returned status %d", resp.StatusCode)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorUnavailable, Err: fmt.Errorf("pdp: reading opa response: %w", err)}
	}

	var parsed opaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.Result == nil {
		return ports.PolicyDecision{}, &ports.PolicyError{Kind: ports.PolicyErrorUnavailable, Err: fmt.Errorf("pdp: malformed opa response")}
	}

	outcome := ports.DecisionDeny
	if parsed.Result.Allow {
		outcome = ports.DecisionAllow
	}
	return ports.PolicyDecision{
		Outcome:       outcome,
		PolicyVersion: o.config.PolicyVersion,
		Reasons:       parsed.Result.Reasons,
	}, nil
}
