package gitrepo

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

func openMemRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(BackendMemory, "")
	require.NoError(t, err)
	return r
}

func TestOpenRejectsUnspecifiedBackend(t *testing.T) {
	_, err := Open(BackendUnspecified, "")
	require.Error(t, err)
}

func TestOpenFilesystemRejectsEmptyPath(t *testing.T) {
	_, err := Open(BackendFilesystem, "")
	require.Error(t, err)
}

func TestPutGetBlobRoundTrip(t *testing.T) {
	r := openMemRepo(t)
	h, err := r.PutBlob([]byte(`{"hello":"world"}`))
	require.NoError(t, err)

	got, err := r.GetBlob(h)
	require.NoError(t, err)
	require.Equal(t, `{"hello":"world"}`, string(got))
}

func TestGetBlobNotFound(t *testing.T) {
	r := openMemRepo(t)
	_, err := r.GetBlob(plumbing.ZeroHash)
	require.Error(t, err)
}

func TestPutTreeNestedPathRoundTrip(t *testing.T) {
	r := openMemRepo(t)
	envHash, err := r.PutBlob([]byte(`{"event_type":"x"}`))
	require.NoError(t, err)
	metaHash, err := r.PutBlob([]byte(`{"written_at":"t"}`))
	require.NoError(t, err)

	treeHash, err := r.PutTree([]TreeEntry{
		{Path: "message/envelope.json", Hash: envHash},
		{Path: "meta/meta.json", Hash: metaHash},
	})
	require.NoError(t, err)

	gotEnv, err := r.GetTreeEntry(treeHash, "message/envelope.json")
	require.NoError(t, err)
	require.Equal(t, envHash, gotEnv)

	gotMeta, err := r.GetTreeEntry(treeHash, "meta/meta.json")
	require.NoError(t, err)
	require.Equal(t, metaHash, gotMeta)
}

func TestPutGetCommitRoundTrip(t *testing.T) {
	r := openMemRepo(t)
	blobHash, err := r.PutBlob([]byte("payload"))
	require.NoError(t, err)
	treeHash, err := r.PutTree([]TreeEntry{{Path: "message.json", Hash: blobHash}})
	require.NoError(t, err)

	commitHash, err := r.PutCommit(CommitSpec{
		Tree:      treeHash,
		Message:   "append",
		Timestamp: time.Unix(1000, 0).UTC(),
	})
	require.NoError(t, err)

	commit, err := r.GetCommit(commitHash)
	require.NoError(t, err)
	require.Equal(t, "append", commit.Message)
	require.Equal(t, treeHash, commit.TreeHash)
	require.Empty(t, commit.ParentHashes)
}

func TestCompareAndSwapFirstWriteRequiresAbsence(t *testing.T) {
	r := openMemRepo(t)
	name := plumbing.ReferenceName("refs/gatos/journal/default/alice/head")
	blobHash, err := r.PutBlob([]byte("x"))
	require.NoError(t, err)

	err = r.CompareAndSwap(name, blobHash, nil)
	require.NoError(t, err)

	_, ok, err := r.Head(name)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompareAndSwapRejectsStaleExpectation(t *testing.T) {
	r := openMemRepo(t)
	name := plumbing.ReferenceName("refs/gatos/journal/default/alice/head")
	first, err := r.PutBlob([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, r.CompareAndSwap(name, first, nil))

	second, err := r.PutBlob([]byte("second"))
	require.NoError(t, err)

	stale := plumbing.ZeroHash
	err = r.CompareAndSwap(name, second, &stale)
	require.ErrorIs(t, err, ErrCASMismatch)
}

func TestCompareAndSwapAcceptsCorrectExpectation(t *testing.T) {
	r := openMemRepo(t)
	name := plumbing.ReferenceName("refs/gatos/journal/default/alice/head")
	first, err := r.PutBlob([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, r.CompareAndSwap(name, first, nil))

	second, err := r.PutBlob([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, r.CompareAndSwap(name, second, &first))

	head, ok, err := r.Head(name)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, head)
}

func TestRefsWithPrefixFiltersAndRestarts(t *testing.T) {
	r := openMemRepo(t)
	h, err := r.PutBlob([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, r.CompareAndSwap("refs/gatos/journal/default/alice/head", h, nil))
	require.NoError(t, r.CompareAndSwap("refs/gatos/journal/default/bob/head", h, nil))
	require.NoError(t, r.CompareAndSwap("refs/gatos/topics/orders/head", h, nil))

	it, err := r.RefsWithPrefix("refs/gatos/journal/default/")
	require.NoError(t, err)
	require.Equal(t, 2, it.Len())

	names := it.All()
	require.Len(t, names, 2)

	_, ok := it.Next()
	require.False(t, ok, "All() should have drained the iterator")

	it.Reset()
	_, ok = it.Next()
	require.True(t, ok, "Reset should rewind position, not re-fetch names")
}

func TestRemoveReference(t *testing.T) {
	r := openMemRepo(t)
	h, err := r.PutBlob([]byte("x"))
	require.NoError(t, err)
	name := plumbing.ReferenceName("refs/gatos/topics/orders/segments/0000000001")
	require.NoError(t, r.CompareAndSwap(name, h, nil))

	require.NoError(t, r.RemoveReference(name))

	_, ok, err := r.Head(name)
	require.NoError(t, err)
	require.False(t, ok)
}
