package rpc

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/messageplane"
	"github.com/gatos-project/gatos/pkg/observability"
	"github.com/gatos-project/gatos/pkg/policyguard"
	"github.com/gatos-project/gatos/pkg/ports"
)

// Handler dispatches line-delimited JSON RPC requests against a Message
// Plane and (for messages.publish) a Policy Guard. It is the composition
// point cmd/gatosd wires at startup, mirroring the teacher's console.Server
// pattern of one struct holding every backend a route needs rather than a
// web framework's per-route middleware chain.
type Handler struct {
	plane   *messageplane.Plane
	guard   *policyguard.Guard
	auth    *CallerAuthenticator
	metrics ports.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures optional Handler behavior not every caller needs,
// following the functional-options convention pkg/messageplane already
// uses for its own constructor.
type Option func(*Handler)

// WithTracer attaches an OpenTelemetry tracer so messages.publish spans
// the policy evaluation and journal append it drives. Without it, Handle
// runs untraced.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) { h.tracer = tracer }
}

// New builds a Handler. auth may be nil, in which case messages.publish
// always fails with Unauthorized (fail closed, never an anonymous bypass).
// metrics may be nil, in which case metrics are simply not recorded.
func New(plane *messageplane.Plane, guard *policyguard.Guard, auth *CallerAuthenticator, metrics ports.Metrics, opts ...Option) *Handler {
	h := &Handler{
		plane:   plane,
		guard:   guard,
		auth:    auth,
		metrics: metrics,
		logger:  slog.Default().With("component", "rpc"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches a single decoded Request and returns its Response. It
// never panics or returns a transport error: any failure becomes a
// populated Response.Error so the daemon loop can always emit exactly one
// response line per request line.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case "messages.read":
		return h.handleRead(req)
	case "messages.prune":
		return h.handlePrune(req)
	case "messages.publish":
		return h.handlePublish(ctx, req)
	default:
		return errorResponse(req.ID, fmt.Errorf("%w: unknown method %q", ErrMalformedRequest, req.Method))
	}
}

func (h *Handler) handleRead(req Request) Response {
	if err := validateParams("read.json", req.Params); err != nil {
		return errorResponse(req.ID, err)
	}
	var p ReadParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}
	if p.Limit == 0 {
		p.Limit = messageplane.MaxPageSize
	}

	records, err := h.plane.Read(p.Topic, p.Since, p.Limit)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	result := ReadResult{Messages: make([]MessageEntry, len(records))}
	for i, r := range records {
		result.Messages[i] = MessageEntry{
			Ulid:                r.Ulid,
			Commit:              r.CommitID,
			ContentID:           r.ContentID,
			EnvelopePath:        r.EnvelopePath,
			CanonicalJSONBase64: base64.StdEncoding.EncodeToString(r.CanonicalEnvelope),
		}
	}

	if len(records) > 0 {
		last := records[len(records)-1]
		result.NextSince = last.Ulid
		if p.CheckpointGroup != "" {
			if err := h.plane.PersistCheckpoint(p.CheckpointGroup, p.Topic, last.Ulid, last.CommitID); err != nil {
				return errorResponse(req.ID, err)
			}
		}
	}

	return Response{ID: req.ID, Result: result}
}

func (h *Handler) handlePrune(req Request) Response {
	if err := validateParams("prune.json", req.Params); err != nil {
		return errorResponse(req.ID, err)
	}
	var p PruneParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}

	now := uint64(time.Now().UTC().Unix())
	retentionSeconds := uint64(p.RetentionDays * 24 * 3600)

	deleted, err := h.plane.Prune(p.Topic, now, retentionSeconds)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	h.incr("gatos_mp_prune_deleted_total", map[string]string{"topic": p.Topic}, len(deleted) > 0)
	return Response{ID: req.ID, Result: PruneResult{Deleted: deleted}}
}

func (h *Handler) handlePublish(ctx context.Context, req Request) Response {
	if h.guard == nil {
		return errorResponse(req.ID, fmt.Errorf("%w: messages.publish is not configured on this daemon", gatoserr.ErrInvariant))
	}
	if err := validateParams("publish.json", req.Params); err != nil {
		return errorResponse(req.ID, err)
	}
	var p PublishParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}

	caller, err := h.auth.Authenticate(req.Token)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	env := eventenvelope.Envelope{
		EventType:  p.EventType,
		Ulid:       p.Ulid,
		Actor:      p.Actor,
		Caps:       p.Caps,
		Payload:    p.Payload,
		PolicyRoot: p.PolicyRoot,
	}

	ctx, span := h.startSpan(ctx, "rpc.messages.publish",
		observability.JournalAppendOperation(p.Namespace, p.Actor, p.EventType, ""))
	defer span.End()

	commitID, err := h.guard.AppendWithPolicy(ctx, p.Namespace, p.Actor, env, caller, p.Metadata)
	if err != nil {
		observability.SetSpanStatus(ctx, err)
		h.incr("gatos_policy_deny_total", map[string]string{"namespace": p.Namespace}, errors.Is(err, gatoserr.ErrDenied))
		return errorResponse(req.ID, err)
	}

	contentID, err := eventenvelope.EventCID(env)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	span.SetAttributes(observability.AttrCommitID.String(commitID))
	h.incr("gatos_journal_append_total", map[string]string{"namespace": p.Namespace}, true)
	return Response{ID: req.ID, Result: PublishResult{Commit: commitID, ContentID: contentID, Ulid: p.Ulid}}
}

// startSpan opens a span on h.tracer if one was configured via WithTracer;
// otherwise it returns a no-op span so callers never need a nil check.
func (h *Handler) startSpan(ctx context.Context, name string, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, noop.Span{}
	}
	return h.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (h *Handler) incr(name string, labels map[string]string, should bool) {
	if !should || h.metrics == nil {
		return
	}
	h.metrics.IncrCounter(name, labels)
}

// Serve runs the daemon's line-delimited JSONL loop (spec §4.8): each line
// read from r is decoded as a Request, dispatched, and its Response written
// to w as a single JSON line. Serve returns when r is exhausted (EOF) or
// ctx is canceled — it never exits on a single malformed line, since that
// becomes an error Response instead.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(errorResponse("", fmt.Errorf("%w: %v", ErrMalformedRequest, err))); encErr != nil {
				return encErr
			}
			continue
		}

		resp := h.Handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
