package messageplane

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoshash"
	"github.com/gatos-project/gatos/pkg/gitrepo"
	"github.com/gatos-project/gatos/pkg/ports"
)

func newTestPlane(t *testing.T, clock ports.Clock, opts ...Option) *Plane {
	t.Helper()
	repo, err := gitrepo.Open(gitrepo.BackendMemory, "")
	require.NoError(t, err)
	return New(repo, clock, opts...)
}

func envWithULID(ulid string) eventenvelope.Envelope {
	return eventenvelope.Envelope{
		EventType:  "order.created",
		Ulid:       ulid,
		Actor:      "alice",
		Payload:    map[string]any{"n": 1},
		PolicyRoot: "root",
	}
}

// Scenario 3 (spec §8): segment rotation on hour boundary.
func TestPublishRotatesSegmentOnHourBoundary(t *testing.T) {
	const (
		hour13 = 1763643600 // 2025-11-20T13:00:00Z
		hour14 = 1763647200 // 2025-11-20T14:00:00Z
	)
	clock := ports.NewQueueClock(hour13, hour13, hour14)
	p := newTestPlane(t, clock)

	_, err := p.Publish("orders", envWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.NoError(t, err)
	_, err = p.Publish("orders", envWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA2"))
	require.NoError(t, err)
	receiptC, err := p.Publish("orders", envWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA3"))
	require.NoError(t, err)

	segs, err := p.segmentRefs("orders")
	require.NoError(t, err)
	require.Len(t, segs, 2)

	headHash, exists, err := p.repo.Head(headRefName("orders"))
	require.NoError(t, err)
	require.True(t, exists)
	headCommit, err := p.repo.GetCommit(headHash)
	require.NoError(t, err)
	wantID, ok := gatoshash.ParseCommitIDTrailer(headCommit.Message)
	require.True(t, ok)
	require.Equal(t, receiptC.CommitID, wantID.Hex())
}

// Scenario 4 (spec §8): rotation on message-count limit.
func TestPublishRotatesOnMessageCountLimit(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock, WithMaxMessagesPerSegment(2))

	for _, u := range []string{
		"01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"01ARZ3NDEKTSV4RRFFQ69G5FA2",
		"01ARZ3NDEKTSV4RRFFQ69G5FA3",
	} {
		_, err := p.Publish("orders", envWithULID(u))
		require.NoError(t, err)
	}

	segs, err := p.segmentRefs("orders")
	require.NoError(t, err)
	require.Len(t, segs, 2)
}

// Scenario 5 (spec §8): subscriber pagination.
func TestReadSinceAndLimit(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)

	ulids := []string{
		"01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"01ARZ3NDEKTSV4RRFFQ69G5FA2",
		"01ARZ3NDEKTSV4RRFFQ69G5FA3",
		"01ARZ3NDEKTSV4RRFFQ69G5FA4",
	}
	for _, u := range ulids {
		_, err := p.Publish("orders", envWithULID(u))
		require.NoError(t, err)
	}

	recs, err := p.Read("orders", ulids[1], 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, ulids[2], recs[0].Ulid)
	require.Equal(t, ulids[3], recs[1].Ulid)

	recs, err = p.Read("orders", "", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, ulids[0], recs[0].Ulid)
}

func TestReadRejectsInvalidLimit(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)
	_, err := p.Publish("orders", envWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.NoError(t, err)

	_, err = p.Read("orders", "", 0)
	require.Error(t, err)
	_, err = p.Read("orders", "", MaxPageSize+1)
	require.Error(t, err)
}

func TestReadUnknownTopicFails(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)
	_, err := p.Read("never-published", "", 10)
	require.Error(t, err)
}

// Scenario 7 (spec §8): prune respects checkpoints.
func TestPruneRespectsCheckpoints(t *testing.T) {
	const baseTime = 1760000000
	clock := ports.FixedClock(baseTime)
	p := newTestPlane(t, clock)

	ulids := []string{
		"01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"01ARZ3NDEKTSV4RRFFQ69G5FA2",
		"01ARZ3NDEKTSV4RRFFQ69G5FA3",
	}
	for _, u := range ulids {
		_, err := p.Publish("orders", envWithULID(u))
		require.NoError(t, err)
	}

	require.NoError(t, p.PersistCheckpoint("workers", "orders", ulids[0], ""))

	const retention = 3 * 3600
	deleted, err := p.Prune("orders", baseTime+3*3600, retention)
	require.NoError(t, err)
	require.Empty(t, deleted, "checkpoint at U1 must block pruning the only segment")

	require.NoError(t, p.PersistCheckpoint("workers", "orders", ulids[2], ""))
	deleted, err = p.Prune("orders", baseTime+3*3600, retention)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	segs, err := p.segmentRefs("orders")
	require.NoError(t, err)
	require.Empty(t, segs)
}

func TestPersistAndLoadCheckpointRoundTrip(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)

	require.NoError(t, p.PersistCheckpoint("workers", "orders", "01ARZ3NDEKTSV4RRFFQ69G5FA1", "deadbeef"))

	cp, ok, err := p.LoadCheckpoint("workers", "orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FA1", cp.Ulid)
	require.Equal(t, "deadbeef", cp.Commit)
}

func TestLoadCheckpointAbsentReturnsNotOk(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)
	_, ok, err := p.LoadCheckpoint("workers", "orders")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPublishRejectsInvalidTopicSegments(t *testing.T) {
	clock := ports.FixedClock(1760000000)
	p := newTestPlane(t, clock)

	_, err := p.Publish("orders//eu", envWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.Error(t, err)
}
