package gitrepo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// ErrCASMismatch signals that a reference's current value did not match
// the caller's expectation at compare-and-swap time. Callers map this to
// their own retry-then-Conflict taxonomy (spec §7): Journal.Append retries
// up to its attempt budget then returns Conflict; MessagePlane.Publish maps
// it to HeadConflict.
var ErrCASMismatch = errors.New("gitrepo: reference changed concurrently")

// Head returns the current target hash of name, and false if the ref does
// not exist.
func (r *Repo) Head(name plumbing.ReferenceName) (plumbing.Hash, bool, error) {
	ref, err := r.storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("%w: reading ref %s: %v", gatoserr.ErrIo, name, err)
	}
	return ref.Hash(), true, nil
}

// CompareAndSwap atomically updates name to newHash, conditional on its
// current value. expected == nil means "the ref must not already exist";
// a non-nil expected means "the ref must currently equal *expected". On
// mismatch it returns ErrCASMismatch; callers retry from a fresh Head()
// read (spec §4.4 step 4-5, §4.5 step 6-7).
func (r *Repo) CompareAndSwap(name plumbing.ReferenceName, newHash plumbing.Hash, expected *plumbing.Hash) error {
	newRef := plumbing.NewHashReference(name, newHash)

	var oldRef *plumbing.Reference
	if expected != nil {
		oldRef = plumbing.NewHashReference(name, *expected)
	} else {
		// The zero hash can never be a real object id, so comparing
		// against it only succeeds when the underlying storer reports
		// the ref as absent (go-git's CheckAndSetReference treats a
		// "not found" current value as satisfying any `old`).
		oldRef = plumbing.NewHashReference(name, plumbing.ZeroHash)
	}

	if err := r.storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCASMismatch, name, err)
	}
	return nil
}

// SetReference unconditionally points name at newHash, creating or
// replacing it. Used only where the spec calls for plain overwrite rather
// than CAS — consumer checkpoints, which always replace any prior value
// (spec §4.5 persist_checkpoint).
func (r *Repo) SetReference(name plumbing.ReferenceName, newHash plumbing.Hash) error {
	if err := r.storer.SetReference(plumbing.NewHashReference(name, newHash)); err != nil {
		return fmt.Errorf("%w: setting ref %s: %v", gatoserr.ErrIo, name, err)
	}
	return nil
}

// RemoveReference deletes name outright. Used only by segment pruning
// (spec §4.5); the head ref of a topic or journal is never deleted.
func (r *Repo) RemoveReference(name plumbing.ReferenceName) error {
	if err := r.storer.RemoveReference(name); err != nil {
		return fmt.Errorf("%w: removing ref %s: %v", gatoserr.ErrIo, name, err)
	}
	return nil
}

// RefIterator is a finite, restartable sequence of reference names sharing
// a prefix, decoupled from the backing storer's native iteration model
// (spec §9 DESIGN NOTES, "Iterator over a ref namespace").
type RefIterator struct {
	names []plumbing.ReferenceName
	pos   int
}

// RefsWithPrefix snapshots every ref whose name starts with prefix into a
// restartable RefIterator.
func (r *Repo) RefsWithPrefix(prefix string) (*RefIterator, error) {
	iter, err := r.storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("%w: listing refs: %v", gatoserr.ErrIo, err)
	}
	defer iter.Close()

	var names []plumbing.ReferenceName
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(string(ref.Name()), prefix) {
			names = append(names, ref.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterating refs: %v", gatoserr.ErrIo, err)
	}

	return &RefIterator{names: names}, nil
}

// Next returns the next ref name in the sequence, or ("", false) once
// exhausted.
func (it *RefIterator) Next() (plumbing.ReferenceName, bool) {
	if it.pos >= len(it.names) {
		return "", false
	}
	name := it.names[it.pos]
	it.pos++
	return name, true
}

// Reset rewinds the iterator to its start without re-querying the backend.
func (it *RefIterator) Reset() {
	it.pos = 0
}

// Len reports the total number of refs captured.
func (it *RefIterator) Len() int {
	return len(it.names)
}

// All drains the iterator into a slice; a convenience for callers that
// need every name up front (segment enumeration, checkpoint listing).
func (it *RefIterator) All() []plumbing.ReferenceName {
	out := make([]plumbing.ReferenceName, len(it.names)-it.pos)
	copy(out, it.names[it.pos:])
	it.pos = len(it.names)
	return out
}
