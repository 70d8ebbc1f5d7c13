package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatos-project/gatos/pkg/config"
	"github.com/gatos-project/gatos/pkg/rpc"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startDaemon is a variable to allow mocking in tests.
var startDaemon = runDaemon

// Run is gatosd's entrypoint, kept separate from main so it can be driven
// from tests with captured stdout/stderr.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startDaemon()
		return 0
	}

	switch args[1] {
	case "daemon", "serve":
		startDaemon()
		return 0
	case "messages":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: gatosd messages <read|prune|publish> [flags]")
			return 2
		}
		return runMessagesCmd(args[2], args[3:], stdout, stderr)
	case "audit":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: gatosd audit <show> [flags]")
			return 2
		}
		return runAuditCmd(args[2], args[3:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "gatosd v0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "gatosd - governance and audit substrate daemon")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  gatosd <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  daemon             Run the line-delimited JSON RPC loop over stdio (default)")
	fmt.Fprintln(w, "  messages read      One-shot messages.read call (--topic, --since, --limit)")
	fmt.Fprintln(w, "  messages prune     One-shot messages.prune call (--topic, --retention-days)")
	fmt.Fprintln(w, "  messages publish   One-shot messages.publish call (--topic, --namespace, --actor, ...)")
	fmt.Fprintln(w, "  audit show         Print a namespace/actor's policy audit chain (--namespace, --actor)")
	fmt.Fprintln(w, "  health             Check repository and policy profile health")
	fmt.Fprintln(w, "  version            Show version information")
	fmt.Fprintln(w, "  help               Show this help")
}

// runDaemon wires the full composition root and serves requests read from
// stdin until EOF or SIGINT/SIGTERM, mirroring the teacher's runServer
// blocking-on-sigChan shutdown pattern (cmd/helm/main.go).
func runDaemon() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	svc, err := NewServices(ctx, cfg)
	if err != nil {
		slog.Error("gatosd: failed to start", "error", err)
		os.Exit(1)
	}
	defer svc.Close(ctx)

	slog.Info("gatosd: ready",
		"repo_path", cfg.RepoPath,
		"policy_profile", cfg.PolicyProfileCode,
		"policy_backend", svc.policyName,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- svc.handler.Serve(ctx, os.Stdin, os.Stdout) }()

	select {
	case <-sigChan:
		slog.Info("gatosd: shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			slog.Error("gatosd: serve loop exited", "error", err)
		}
	}
}

// runMessagesCmd handles the one-shot CLI forms of messages.read,
// messages.prune, and messages.publish, sharing rpc.Handler.Handle with the
// daemon's JSONL loop rather than re-implementing request dispatch.
func runMessagesCmd(sub string, args []string, stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	svc, err := NewServices(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "gatosd: failed to start: %v\n", err)
		return 1
	}
	defer svc.Close(ctx)

	req, buildErr := buildMessagesRequest(sub, args, stderr)
	if buildErr != nil {
		return 2
	}

	resp := svc.handler.Handle(ctx, req)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(stderr, "gatosd: encoding response: %v\n", err)
		return 1
	}
	if resp.Error != nil {
		return 1
	}
	return 0
}

func buildMessagesRequest(sub string, args []string, stderr io.Writer) (rpc.Request, error) {
	switch sub {
	case "read":
		fs := flag.NewFlagSet("messages read", flag.ContinueOnError)
		fs.SetOutput(stderr)
		topic := fs.String("topic", "", "topic to read from (required)")
		since := fs.String("since", "", "ulid to read after")
		limit := fs.Int("limit", 0, "max messages to return")
		group := fs.String("checkpoint-group", "", "consumer checkpoint group to persist against")
		if err := fs.Parse(args); err != nil {
			return rpc.Request{}, err
		}
		params, _ := json.Marshal(rpc.ReadParams{Topic: *topic, Since: *since, Limit: *limit, CheckpointGroup: *group})
		return rpc.Request{Method: "messages.read", Params: params}, nil

	case "prune":
		fs := flag.NewFlagSet("messages prune", flag.ContinueOnError)
		fs.SetOutput(stderr)
		topic := fs.String("topic", "", "topic to prune (required)")
		retention := fs.Float64("retention-days", 0, "retention window in days")
		if err := fs.Parse(args); err != nil {
			return rpc.Request{}, err
		}
		params, _ := json.Marshal(rpc.PruneParams{Topic: *topic, RetentionDays: *retention})
		return rpc.Request{Method: "messages.prune", Params: params}, nil

	case "publish":
		fs := flag.NewFlagSet("messages publish", flag.ContinueOnError)
		fs.SetOutput(stderr)
		topic := fs.String("topic", "", "topic to publish to (required)")
		namespace := fs.String("namespace", "", "journal namespace (required)")
		actor := fs.String("actor", "", "actor id (required)")
		eventType := fs.String("event-type", "", "event type (required)")
		ulid := fs.String("ulid", "", "event ulid (required)")
		token := fs.String("token", "", "bearer token identifying the caller")
		payloadJSON := fs.String("payload", "{}", "JSON payload object")
		if err := fs.Parse(args); err != nil {
			return rpc.Request{}, err
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(*payloadJSON), &payload); err != nil {
			fmt.Fprintf(stderr, "gatosd: invalid --payload JSON: %v\n", err)
			return rpc.Request{}, err
		}
		params, _ := json.Marshal(rpc.PublishParams{
			Topic: *topic, Namespace: *namespace, Actor: *actor,
			EventType: *eventType, Ulid: *ulid, Payload: payload,
		})
		return rpc.Request{Method: "messages.publish", Token: *token, Params: params}, nil

	default:
		fmt.Fprintf(stderr, "Unknown messages subcommand: %s\n", sub)
		return rpc.Request{}, fmt.Errorf("unknown subcommand %q", sub)
	}
}

// runAuditCmd handles one-shot inspection of a namespace/actor's policy
// audit chain, for operators who need to see why an append was allowed or
// denied without going through the RPC surface.
func runAuditCmd(sub string, args []string, stdout, stderr io.Writer) int {
	if sub != "show" {
		fmt.Fprintf(stderr, "Unknown audit subcommand: %s\n", sub)
		return 2
	}

	fs := flag.NewFlagSet("audit show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	namespace := fs.String("namespace", "", "journal namespace (required)")
	actor := fs.String("actor", "", "actor id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *namespace == "" || *actor == "" {
		fmt.Fprintln(stderr, "Usage: gatosd audit show --namespace <ns> --actor <actor>")
		return 2
	}

	ctx := context.Background()
	cfg := config.Load()
	svc, err := NewServices(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "gatosd: failed to start: %v\n", err)
		return 1
	}
	defer svc.Close(ctx)

	chain, err := svc.auditSink.ReadChain(*namespace, *actor)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chain); err != nil {
		fmt.Fprintf(stderr, "gatosd: encoding audit chain: %v\n", err)
		return 1
	}
	return 0
}

// runHealthCmd opens the repository and loads the configured policy profile
// without serving any requests — a readiness check a deploy script can run
// before flipping traffic, mirroring the teacher's runHealthCmd (an HTTP
// probe against a long-running server); gatosd has no standalone health
// port, so this probes the same composition root the daemon itself builds.
func runHealthCmd(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	svc, err := NewServices(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer svc.Close(ctx)
	fmt.Fprintln(stdout, "OK")
	return 0
}
