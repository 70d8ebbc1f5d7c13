package main

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatos-project/gatos/pkg/audit"
	"github.com/gatos-project/gatos/pkg/config"
	"github.com/gatos-project/gatos/pkg/gitrepo"
	"github.com/gatos-project/gatos/pkg/journal"
	"github.com/gatos-project/gatos/pkg/messageplane"
	"github.com/gatos-project/gatos/pkg/observability"
	"github.com/gatos-project/gatos/pkg/pdp"
	"github.com/gatos-project/gatos/pkg/policyguard"
	"github.com/gatos-project/gatos/pkg/ports"
	"github.com/gatos-project/gatos/pkg/rpc"
)

// services bundles every backend gatosd's RPC surface needs, the
// composition root wired once at startup and handed to rpc.Handler.
// Mirrors the teacher's cmd/helm Services struct (subsystems.go): one
// struct assembled in NewServices rather than package-level globals.
type services struct {
	repo       *gitrepo.Repo
	plane      *messageplane.Plane
	journal    *journal.Journal
	guard      *policyguard.Guard
	auditSink  *audit.GitSink
	handler    *rpc.Handler
	provider   *observability.Provider
	policyName string
}

// NewServices opens the backing git object database and wires the Message
// Plane, Journal, Policy Guard, and RPC Handler against it per cfg.
func NewServices(ctx context.Context, cfg *config.Config) (*services, error) {
	repo, err := gitrepo.Open(gitrepo.BackendFilesystem, cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", cfg.RepoPath, err)
	}

	clock := ports.SystemClock
	plane := messageplane.New(repo, clock,
		messageplane.WithMaxMessagesPerSegment(cfg.MaxMessagesPerSegment),
		messageplane.WithMaxBytesPerSegment(cfg.MaxBytesPerSegment),
		messageplane.WithRetryAttempts(cfg.JournalRetryAttempts),
	)
	jrn := journal.New(repo, cfg.JournalRetryAttempts)
	sink := audit.NewGitSink(repo, cfg.JournalRetryAttempts)

	policyClient, policyName, err := buildPolicyClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("building policy client: %w", err)
	}
	guard := policyguard.New(clock, policyClient, sink, jrn)

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	provider, err := observability.New(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	var metrics ports.Metrics
	if cfg.OTelEnabled {
		metrics = observability.NewMetricsAdapter(provider)
	}

	keyFunc := func(*jwt.Token) (any, error) { return []byte(cfg.JWTHMACSecret), nil }
	authn := rpc.NewCallerAuthenticator(keyFunc)

	handler := rpc.New(plane, guard, authn, metrics, rpc.WithTracer(provider.Tracer()))

	return &services{
		repo:       repo,
		plane:      plane,
		journal:    jrn,
		guard:      guard,
		auditSink:  sink,
		handler:    handler,
		provider:   provider,
		policyName: policyName,
	}, nil
}

// buildPolicyClient loads the named policy profile from cfg.PolicyProfilesDir
// and constructs the PDP backend it names (static, cel, or opa).
func buildPolicyClient(cfg *config.Config) (ports.PolicyClient, string, error) {
	profile, err := config.LoadProfile(cfg.PolicyProfilesDir, cfg.PolicyProfileCode)
	if err != nil {
		return nil, "", err
	}

	switch pdp.Backend(profile.Backend) {
	case pdp.BackendStatic, "":
		return pdp.NewStaticClient(profile.PolicyVersion, profile.Rules, profile.DefaultAllow), profile.Name, nil
	case pdp.BackendCEL:
		client, err := pdp.NewCELClient(profile.CELExpression, profile.PolicyVersion)
		if err != nil {
			return nil, "", err
		}
		return client, profile.Name, nil
	case pdp.BackendOPA:
		return pdp.NewOPAClient(pdp.OPAConfig{
			URL:           profile.OPA.URL,
			PolicyPath:    profile.OPA.PolicyPath,
			PolicyVersion: profile.PolicyVersion,
		}), profile.Name, nil
	default:
		return nil, "", fmt.Errorf("unknown policy backend %q in profile %q", profile.Backend, profile.Code)
	}
}

// Close releases the observability provider. The repository itself has no
// teardown: gitrepo.Repo holds no long-lived file handles beyond what
// go-git's storer already manages per call.
func (s *services) Close(ctx context.Context) {
	if s.provider != nil {
		_ = s.provider.Shutdown(ctx)
	}
}
