// Package objectstore implements the Object Store (OS) component: a
// content-addressed Hash -> bytes map on top of the shared Git plumbing in
// pkg/gitrepo (spec §4.2).
package objectstore

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
	"github.com/gatos-project/gatos/pkg/gitrepo"
)

// refPrefix is the exclusive ref namespace this component owns (spec §6).
const refPrefix = "refs/gatos/blake3-map/"

// Store is the Object Store: a ref-backed Hash -> blob map over a single
// repository.
type Store struct {
	repo *gitrepo.Repo
}

// New wraps repo as an Object Store.
func New(repo *gitrepo.Repo) *Store {
	return &Store{repo: repo}
}

func refName(id gatoshash.Hash) plumbing.ReferenceName {
	return plumbing.ReferenceName(refPrefix + id.Hex())
}

// Put writes data as a Git blob and points refs/gatos/blake3-map/<hex(id)>
// at it. Fails with Corruption if BLAKE3(data) != id. Idempotent: calling
// Put twice with the same (id, data) succeeds both times and leaves the ref
// unchanged on the second call.
func (s *Store) Put(id gatoshash.Hash, data []byte) error {
	if gatoshash.ContentID(data) != id {
		return fmt.Errorf("%w: content id does not match BLAKE3(data)", gatoserr.ErrCorruption)
	}

	name := refName(id)
	existingOid, exists, err := s.repo.Head(name)
	if err != nil {
		return err
	}

	blobHash, err := s.repo.PutBlob(data)
	if err != nil {
		return err
	}

	if exists {
		if existingOid == blobHash {
			// Same (id, data) written before: idempotent no-op.
			return nil
		}
		// A different Git Oid for the same content id can only happen if a
		// caller previously wrote different bytes under the same ref,
		// which Put's own Corruption check should have already rejected
		// upstream — treat it as a broken invariant rather than silently
		// overwriting.
		return fmt.Errorf("%w: ref %s already points at a different object", gatoserr.ErrInvariant, name)
	}

	if err := s.repo.CompareAndSwap(name, blobHash, nil); err != nil {
		if errors.Is(err, gitrepo.ErrCASMismatch) {
			// Lost a race with a concurrent Put of the same id; re-read and
			// confirm it landed the same blob before treating this as a
			// failure.
			oid, ok, rerr := s.repo.Head(name)
			if rerr == nil && ok && oid == blobHash {
				return nil
			}
			return fmt.Errorf("%w: concurrent write to %s", gatoserr.ErrInvariant, name)
		}
		return err
	}
	return nil
}

// Get resolves id's ref and reads back the blob. ok is false if the ref is
// absent.
func (s *Store) Get(id gatoshash.Hash) (data []byte, ok bool, err error) {
	name := refName(id)
	oid, exists, err := s.repo.Head(name)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	data, err = s.repo.GetBlob(oid)
	if err != nil {
		if errors.Is(err, gatoserr.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: ref %s has no resolvable target", gatoserr.ErrInvariant, name)
		}
		return nil, false, err
	}
	return data, true, nil
}
