package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gatos-project/gatos/pkg/audit"
	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gitrepo"
	"github.com/gatos-project/gatos/pkg/journal"
	"github.com/gatos-project/gatos/pkg/messageplane"
	"github.com/gatos-project/gatos/pkg/pdp"
	"github.com/gatos-project/gatos/pkg/policyguard"
	"github.com/gatos-project/gatos/pkg/ports"
)

const testHMACSecret = "test-signing-secret"

func newTestHandler(t *testing.T, rules map[string]bool, defaultAllow bool) *Handler {
	t.Helper()
	repo, err := gitrepo.Open(gitrepo.BackendMemory, "")
	require.NoError(t, err)

	clock := ports.FixedClock(1760000000)
	plane := messageplane.New(repo, clock)
	jrn := journal.New(repo, gitrepo.DefaultRetryAttempts)
	sink := audit.NewGitSink(repo, gitrepo.DefaultRetryAttempts)
	policy := pdp.NewStaticClient("v1", rules, defaultAllow)
	guard := policyguard.New(clock, policy, sink, jrn)

	keyFunc := func(t *jwt.Token) (any, error) { return []byte(testHMACSecret), nil }
	authn := NewCallerAuthenticator(keyFunc)

	return New(plane, guard, authn, nil)
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testHMACSecret))
	require.NoError(t, err)
	return s
}

func mustParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandlePublishThenReadRoundTrip(t *testing.T) {
	h := newTestHandler(t, nil, true)
	ctx := context.Background()

	publishReq := Request{
		ID:     "1",
		Method: "messages.publish",
		Token:  signedToken(t, "alice"),
		Params: mustParams(t, PublishParams{
			Topic:     "orders",
			Namespace: "default",
			Actor:     "alice",
			EventType: "order.created",
			Ulid:      "01ARZ3NDEKTSV4RRFFQ69G5FA1",
			Payload:   map[string]any{"n": 1},
		}),
	}
	resp := h.Handle(ctx, publishReq)
	require.Nil(t, resp.Error)
	pubResult, ok := resp.Result.(PublishResult)
	require.True(t, ok)
	require.NotEmpty(t, pubResult.Commit)

	// messages.publish appends to the Journal (per-actor), not the Message
	// Plane, so confirm the read path separately against a plane publish.
	_, err := h.plane.Publish("orders", mustEnvelope("01ARZ3NDEKTSV4RRFFQ69G5FA2"))
	require.NoError(t, err)

	readReq := Request{
		ID:     "2",
		Method: "messages.read",
		Params: mustParams(t, ReadParams{Topic: "orders", Limit: 10}),
	}
	resp = h.Handle(ctx, readReq)
	require.Nil(t, resp.Error)
	readResult, ok := resp.Result.(ReadResult)
	require.True(t, ok)
	require.Len(t, readResult.Messages, 1)
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FA2", readResult.Messages[0].Ulid)
}

func TestHandlePublishSpansWhenTracerConfigured(t *testing.T) {
	repo, err := gitrepo.Open(gitrepo.BackendMemory, "")
	require.NoError(t, err)

	clock := ports.FixedClock(1760000000)
	plane := messageplane.New(repo, clock)
	jrn := journal.New(repo, gitrepo.DefaultRetryAttempts)
	sink := audit.NewGitSink(repo, gitrepo.DefaultRetryAttempts)
	policy := pdp.NewStaticClient("v1", nil, true)
	guard := policyguard.New(clock, policy, sink, jrn)
	keyFunc := func(t *jwt.Token) (any, error) { return []byte(testHMACSecret), nil }
	authn := NewCallerAuthenticator(keyFunc)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := New(plane, guard, authn, nil, WithTracer(tp.Tracer("test")))

	req := Request{
		ID:     "1",
		Method: "messages.publish",
		Token:  signedToken(t, "alice"),
		Params: mustParams(t, PublishParams{
			Topic:     "orders",
			Namespace: "default",
			Actor:     "alice",
			EventType: "order.created",
			Ulid:      "01ARZ3NDEKTSV4RRFFQ69G5FA1",
			Payload:   map[string]any{"n": 1},
		}),
	}
	resp := h.Handle(context.Background(), req)
	require.Nil(t, resp.Error)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "rpc.messages.publish", ended[0].Name())
}

func TestHandlePublishDeniedByPolicy(t *testing.T) {
	h := newTestHandler(t, map[string]bool{"default": false}, true)

	req := Request{
		ID:     "1",
		Method: "messages.publish",
		Token:  signedToken(t, "alice"),
		Params: mustParams(t, PublishParams{
			Topic:     "default",
			Namespace: "default",
			Actor:     "alice",
			EventType: "order.created",
			Ulid:      "01ARZ3NDEKTSV4RRFFQ69G5FA1",
		}),
	}
	resp := h.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, "Denied", resp.Error.Kind)
}

func TestHandlePublishRejectsMissingToken(t *testing.T) {
	h := newTestHandler(t, nil, true)

	req := Request{
		ID:     "1",
		Method: "messages.publish",
		Params: mustParams(t, PublishParams{
			Topic:     "orders",
			Namespace: "default",
			Actor:     "alice",
			EventType: "order.created",
			Ulid:      "01ARZ3NDEKTSV4RRFFQ69G5FA1",
		}),
	}
	resp := h.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, "Unauthorized", resp.Error.Kind)
}

func TestHandleReadRejectsMalformedParams(t *testing.T) {
	h := newTestHandler(t, nil, true)
	req := Request{ID: "1", Method: "messages.read", Params: json.RawMessage(`{"limit": "not-a-number"}`)}
	resp := h.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, "MalformedRequest", resp.Error.Kind)
}

func TestHandleUnknownMethod(t *testing.T) {
	h := newTestHandler(t, nil, true)
	resp := h.Handle(context.Background(), Request{ID: "1", Method: "messages.vanish"})
	require.NotNil(t, resp.Error)
	require.Equal(t, "MalformedRequest", resp.Error.Kind)
}

func TestHandlePruneReportsDeleted(t *testing.T) {
	h := newTestHandler(t, nil, true)
	_, err := h.plane.Publish("orders", mustEnvelope("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.NoError(t, err)

	req := Request{
		ID:     "1",
		Method: "messages.prune",
		Params: mustParams(t, PruneParams{Topic: "orders", RetentionDays: 0}),
	}
	resp := h.Handle(context.Background(), req)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(PruneResult)
	require.True(t, ok)
	require.Len(t, result.Deleted, 1)
}

func TestServeProcessesLineDelimitedRequests(t *testing.T) {
	h := newTestHandler(t, nil, true)
	_, err := h.plane.Publish("orders", mustEnvelope("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.NoError(t, err)

	line, err := json.Marshal(Request{ID: "1", Method: "messages.read", Params: mustParams(t, ReadParams{Topic: "orders", Limit: 10})})
	require.NoError(t, err)

	in := bytes.NewReader(append(line, '\n'))
	var out bytes.Buffer
	require.NoError(t, h.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
}

func mustEnvelope(ulid string) eventenvelope.Envelope {
	return eventenvelope.Envelope{
		EventType:  "order.created",
		Ulid:       ulid,
		Actor:      "alice",
		Payload:    map[string]any{"n": 1},
		PolicyRoot: "root",
	}
}
