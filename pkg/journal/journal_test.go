package journal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gitrepo"
)

func unmarshalInto(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	repo, err := gitrepo.Open(gitrepo.BackendMemory, "")
	require.NoError(t, err)
	return New(repo, 3)
}

func envelopeWithULID(ulid string) eventenvelope.Envelope {
	return eventenvelope.Envelope{
		EventType:  "order.created",
		Ulid:       ulid,
		Actor:      "alice",
		Payload:    map[string]any{"n": 1},
		PolicyRoot: "root",
	}
}

// Scenario 1 (spec §8): append & linear read.
func TestAppendAndReadWindowLinearOrder(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.Append("default", "alice", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	require.NoError(t, err)
	_, err = j.Append("default", "alice", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FBA"))
	require.NoError(t, err)

	records, err := j.ReadWindow("default", "alice", "", "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	var first, second eventenvelope.Envelope
	require.NoError(t, unmarshalInto(records[0].EnvelopeBytes, &first))
	require.NoError(t, unmarshalInto(records[1].EnvelopeBytes, &second))
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", first.Ulid)
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FBA", second.Ulid)
}

func TestAppendRejectsInjectionIdentifiers(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.Append("../../../heads/main", "alice", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	require.Error(t, err)

	_, err = j.Append("default", "actor~1", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	require.Error(t, err)
}

func TestReadWindowUnknownStartIsNotFound(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Append("default", "alice", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	require.NoError(t, err)

	_, err = j.ReadWindow("default", "alice", "deadbeef", "")
	require.Error(t, err)
}

func TestReadWindowPaginatedReturnsCursorWhenOverflowing(t *testing.T) {
	j := newTestJournal(t)
	ulids := []string{
		"01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"01ARZ3NDEKTSV4RRFFQ69G5FA2",
		"01ARZ3NDEKTSV4RRFFQ69G5FA3",
	}
	for _, u := range ulids {
		_, err := j.Append("default", "alice", envelopeWithULID(u))
		require.NoError(t, err)
	}

	page, cursor, err := j.ReadWindowPaginated("default", "alice", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, cursor)
	require.Equal(t, page[1].CommitID, cursor)
}

func TestReadWindowPicksDeterministicActorWhenOmitted(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Append("default", "bob", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA1"))
	require.NoError(t, err)
	_, err = j.Append("default", "alice", envelopeWithULID("01ARZ3NDEKTSV4RRFFQ69G5FA2"))
	require.NoError(t, err)

	records, err := j.ReadWindow("default", "", "", "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	var env eventenvelope.Envelope
	require.NoError(t, unmarshalInto(records[0].EnvelopeBytes, &env))
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FA2", env.Ulid, "alice sorts before bob lexicographically")
}
