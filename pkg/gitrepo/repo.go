// Package gitrepo is the shared Git plumbing layer underneath the Object
// Store, Journal, Message Plane, and policy audit sink. It factors out
// blob/tree/commit creation and ref-level compare-and-swap so that every
// GATOS component gets identical CAS-with-bounded-retry semantics over its
// own ref namespace, rather than four divergent copies of the same loop
// (spec §9 DESIGN NOTES, "Bounded retry loops with mutation inside a
// cooperative region").
//
// Grounded on github.com/go-git/go-git/v5, a dependency the retrieval pack
// carries in dolthub-dolt/go and other_examples manifests (driftlessaf,
// ossf-scorecard, sigstore-policy-controller) for exactly this purpose:
// programmatic access to a Git object database without shelling out to the
// git binary.
package gitrepo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// Backend selects which Git object database implementation backs a Repo.
// Spec §9 DESIGN NOTES calls for a "build-time feature gate that picks
// exactly one backing implementation; reject configurations selecting none
// or multiple" — GATOS resolves this at Open() time from configuration
// (see SPEC_FULL.md §4) rather than with Go build tags, because the daemon
// must choose its backend from GATOS_REPO_PATH at process start, and a
// compile-time facade would force a rebuild per deployment target.
type Backend int

const (
	// BackendUnspecified is the zero value; Open rejects it.
	BackendUnspecified Backend = iota
	// BackendFilesystem stores objects and refs under a bare repository
	// on disk at the given path, creating it if absent.
	BackendFilesystem
	// BackendMemory stores objects and refs in an ephemeral in-process
	// map; used by tests in place of a throwaway bare repo on disk (the
	// Git-native analogue of the teacher's sqlmock doubles).
	BackendMemory
)

// Repo is a thin handle over a Git object database's storer, exposing only
// the primitives GATOS needs: blob/tree/commit creation and reference CAS.
type Repo struct {
	storer storage.Storer
}

// Open resolves exactly one backend and returns a ready Repo. Passing
// BackendUnspecified, or any value outside the declared set, is an error —
// never a silent default.
func Open(backend Backend, path string) (*Repo, error) {
	switch backend {
	case BackendFilesystem:
		return openFilesystem(path)
	case BackendMemory:
		r, err := git.Init(memory.NewStorage(), memfs.New())
		if err != nil {
			return nil, fmt.Errorf("%w: in-memory repo init failed: %v", gatoserr.ErrIo, err)
		}
		return &Repo{storer: r.Storer}, nil
	case BackendUnspecified:
		return nil, fmt.Errorf("%w: no object store backend selected", gatoserr.ErrInvariant)
	default:
		return nil, fmt.Errorf("%w: unknown object store backend %d", gatoserr.ErrInvariant, backend)
	}
}

func openFilesystem(path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: filesystem backend requires a non-empty path", gatoserr.ErrInvariant)
	}
	r, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		r, err = git.PlainInit(path, true)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening repository at %s: %v", gatoserr.ErrIo, path, err)
	}
	return &Repo{storer: r.Storer}, nil
}
