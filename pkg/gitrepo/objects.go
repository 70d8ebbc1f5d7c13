package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// SignerIdentity is the process-wide cosmetic author/committer identity
// used on every GATOS commit (spec §5): purely descriptive, never a source
// of authorization. Overridable at process init for deployments that want
// a locally meaningful name in `git log`.
var SignerIdentity = object.Signature{
	Name:  "gatos-ledger",
	Email: "ledger@gatos.local",
}

// PutBlob writes data as a Git blob and returns its Git object hash. This
// is the host repository's own hash (SHA-1 or SHA-256 depending on repo
// format), distinct from the BLAKE3 content id GATOS uses for identity
// (spec §4.2 rationale: "Git's Oid is SHA-based and not a function of the
// caller's content hash").
func (r *Repo) PutBlob(data []byte) (plumbing.Hash, error) {
	obj := r.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: blob writer: %v", gatoserr.ErrIo, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("%w: blob write: %v", gatoserr.ErrIo, err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: blob close: %v", gatoserr.ErrIo, err)
	}
	h, err := r.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: blob store: %v", gatoserr.ErrIo, err)
	}
	return h, nil
}

// GetBlob reads back a blob by its Git object hash.
func (r *Repo) GetBlob(h plumbing.Hash) ([]byte, error) {
	obj, err := r.storer.EncodedObject(plumbing.BlobObject, h)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: blob %s", gatoserr.ErrNotFound, h)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: blob read: %v", gatoserr.ErrIo, err)
	}
	rc, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: blob reader: %v", gatoserr.ErrIo, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: blob read: %v", gatoserr.ErrIo, err)
	}
	return data, nil
}

// TreeEntry is one named entry of a tree, always a regular file in GATOS's
// usage (message/envelope.json, meta/meta.json, audit.json — spec §6);
// callers never pass directory, executable or symlink entries themselves
// (PutTree derives the directory trees from '/' in Path).
type TreeEntry struct {
	Path string
	Hash plumbing.Hash
}

// PutTree builds and stores a flat tree from entries, which may use '/' in
// Path to express one level of nesting (message/envelope.json is encoded
// as nested trees: a "message" directory entry pointing at a tree
// containing "envelope.json"). Entries are sorted per Git's tree-entry
// ordering requirement before encoding.
func (r *Repo) PutTree(entries []TreeEntry) (plumbing.Hash, error) {
	top := map[string][]TreeEntry{}
	var files []TreeEntry
	for _, e := range entries {
		if i := indexOf(e.Path, '/'); i >= 0 {
			dir, rest := e.Path[:i], e.Path[i+1:]
			top[dir] = append(top[dir], TreeEntry{Path: rest, Hash: e.Hash})
			continue
		}
		files = append(files, e)
	}

	var out []object.TreeEntry
	for _, f := range files {
		out = append(out, object.TreeEntry{Name: f.Path, Mode: filemode.Regular, Hash: f.Hash})
	}
	for dir, sub := range top {
		subHash, err := r.PutTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		out = append(out, object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: subHash})
	}

	sort.Slice(out, func(i, j int) bool { return treeEntryLess(out[i], out[j]) })

	tree := &object.Tree{Entries: out}
	obj := r.storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: tree encode: %v", gatoserr.ErrIo, err)
	}
	h, err := r.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: tree store: %v", gatoserr.ErrIo, err)
	}
	return h, nil
}

// treeEntryLess orders tree entries the way Git requires: byte-wise by
// name, with directory names compared as if suffixed by '/'.
func treeEntryLess(a, b object.TreeEntry) bool {
	an, bn := a.Name, b.Name
	if a.Mode == filemode.Dir {
		an += "/"
	}
	if b.Mode == filemode.Dir {
		bn += "/"
	}
	return an < bn
}

func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// GetTreeEntry resolves a '/'-separated path inside a tree hash down to the
// leaf blob hash, descending through nested trees as needed.
func (r *Repo) GetTreeEntry(treeHash plumbing.Hash, path string) (plumbing.Hash, error) {
	obj, err := r.storer.EncodedObject(plumbing.TreeObject, treeHash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("%w: tree %s", gatoserr.ErrNotFound, treeHash)
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: tree read: %v", gatoserr.ErrIo, err)
	}
	tree := &object.Tree{}
	if err := tree.Decode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: tree decode: %v", gatoserr.ErrIo, err)
	}

	head, rest := path, ""
	if i := indexOf(path, '/'); i >= 0 {
		head, rest = path[:i], path[i+1:]
	}
	for _, e := range tree.Entries {
		if e.Name != head {
			continue
		}
		if rest == "" {
			return e.Hash, nil
		}
		return r.GetTreeEntry(e.Hash, rest)
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: path %q not found in tree %s", gatoserr.ErrInvariant, path, treeHash)
}

// CommitSpec describes a commit to be written via PutCommit.
type CommitSpec struct {
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Message   string
	Timestamp time.Time
}

// PutCommit builds and stores a commit object with SignerIdentity as both
// author and committer.
func (r *Repo) PutCommit(spec CommitSpec) (plumbing.Hash, error) {
	sig := SignerIdentity
	sig.When = spec.Timestamp

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      spec.Message,
		TreeHash:     spec.Tree,
		ParentHashes: spec.Parents,
	}
	obj := r.storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: commit encode: %v", gatoserr.ErrIo, err)
	}
	h, err := r.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: commit store: %v", gatoserr.ErrIo, err)
	}
	return h, nil
}

// GetCommit reads back a commit object by Git hash.
func (r *Repo) GetCommit(h plumbing.Hash) (*object.Commit, error) {
	obj, err := r.storer.EncodedObject(plumbing.CommitObject, h)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: commit %s", gatoserr.ErrNotFound, h)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: commit read: %v", gatoserr.ErrIo, err)
	}
	commit := &object.Commit{Hash: h}
	if err := commit.Decode(obj); err != nil {
		return nil, fmt.Errorf("%w: commit decode: %v", gatoserr.ErrIo, err)
	}
	return commit, nil
}
