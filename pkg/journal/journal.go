// Package journal implements the Journal (JN) component: strictly linear,
// per-actor, per-namespace append with ref-level CAS and bounded retry, and
// windowed/paginated reads over the resulting commit chain (spec §4.4).
package journal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
	"github.com/gatos-project/gatos/pkg/gitrepo"
)

const refRoot = "refs/gatos/journal/"

// Journal is the per-actor append log over a single repository.
type Journal struct {
	repo    *gitrepo.Repo
	attempts int
}

// New wraps repo as a Journal. attempts <= 0 uses gitrepo.DefaultRetryAttempts.
func New(repo *gitrepo.Repo, attempts int) *Journal {
	if attempts <= 0 {
		attempts = gitrepo.DefaultRetryAttempts
	}
	return &Journal{repo: repo, attempts: attempts}
}

func headRefName(ns, actor string) plumbing.ReferenceName {
	return plumbing.ReferenceName(refRoot + ns + "/" + actor)
}

// Record is one materialized journal entry.
type Record struct {
	CommitID      string
	EnvelopeBytes []byte
}

// Append validates ns, actor, and env, then writes a new commit onto
// refs/gatos/journal/<ns>/<actor> via bounded-retry CAS (spec §4.4 steps
// 1-6). Returns the new commit's gatoshash.CommitID (hex) as its
// identifier, not the Git commit hash.
func (j *Journal) Append(ns, actor string, env eventenvelope.Envelope) (string, error) {
	if err := gatoshash.ValidateNamespace(ns); err != nil {
		return "", err
	}
	if err := gatoshash.ValidateActor(actor); err != nil {
		return "", err
	}
	if err := eventenvelope.Validate(env); err != nil {
		return "", err
	}

	envBytes, err := gatoshash.CanonicalJSON(env)
	if err != nil {
		return "", fmt.Errorf("%w: encoding envelope: %v", gatoserr.ErrEncode, err)
	}
	cid, err := eventenvelope.EventCID(env)
	if err != nil {
		return "", err
	}

	name := headRefName(ns, actor)
	message := fmt.Sprintf("%s\n\nEvent-CID: %s\n", env.EventType, cid)
	treeID := gatoshash.TreeContentID(map[string]gatoshash.Hash{
		"message/envelope.json": gatoshash.ContentID(envBytes),
	})

	var commitID gatoshash.Hash
	retryErr := gitrepo.RetryCAS(j.attempts, func(attempt int) error {
		headHash, exists, err := j.repo.Head(name)
		if err != nil {
			return err
		}

		var parentID *gatoshash.Hash
		if exists {
			headCommit, err := j.repo.GetCommit(headHash)
			if err != nil {
				return err
			}
			if id, ok := gatoshash.ParseCommitIDTrailer(headCommit.Message); ok {
				parentID = &id
			}
		}

		now := time.Now().UTC()
		id, err := gatoshash.CommitID(gatoshash.CommitCore{
			Parent:    parentID,
			Tree:      treeID,
			Message:   message,
			Timestamp: uint64(now.Unix()),
		})
		if err != nil {
			return err
		}

		blobHash, err := j.repo.PutBlob(envBytes)
		if err != nil {
			return err
		}
		treeHash, err := j.repo.PutTree([]gitrepo.TreeEntry{{Path: "message/envelope.json", Hash: blobHash}})
		if err != nil {
			return err
		}

		var parents []plumbing.Hash
		if exists {
			parents = []plumbing.Hash{headHash}
		}
		newHash, err := j.repo.PutCommit(gitrepo.CommitSpec{
			Tree:      treeHash,
			Parents:   parents,
			Message:   gatoshash.AppendCommitIDTrailer(message, id),
			Timestamp: now,
		})
		if err != nil {
			return err
		}

		var expected *plumbing.Hash
		if exists {
			expected = &headHash
		}
		if err := j.repo.CompareAndSwap(name, newHash, expected); err != nil {
			return err
		}
		commitID = id
		return nil
	})
	if retryErr != nil {
		if errors.Is(retryErr, gitrepo.ErrCASMismatch) {
			return "", fmt.Errorf("%w: journal %s/%s: %v", gatoserr.ErrConflict, ns, actor, retryErr)
		}
		return "", retryErr
	}

	return commitID.Hex(), nil
}

// anyActorRef picks a deterministic ref under ns when actor is unspecified:
// the lexicographically first ref name under refs/gatos/journal/<ns>/
// (spec §9 open question, pinned to lexicographic ref-name order).
func (j *Journal) anyActorRef(ns string) (plumbing.ReferenceName, error) {
	it, err := j.repo.RefsWithPrefix(refRoot + ns + "/")
	if err != nil {
		return "", err
	}
	names := it.All()
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no journal refs under namespace %q", gatoserr.ErrNotFound, ns)
	}
	sort.Slice(names, func(i, k int) bool { return names[i] < names[k] })
	return names[0], nil
}

// ReadWindow walks the linear parent chain of ns/actor (or, if actor is
// empty, the deterministic "any actor" ref) from head to root, returning
// oldest-first. start (exclusive) and end (inclusive) are commit-id
// filters applied to the walk (spec §4.4).
func (j *Journal) ReadWindow(ns, actor, start, end string) ([]Record, error) {
	if err := gatoshash.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	var name plumbing.ReferenceName
	if actor != "" {
		if err := gatoshash.ValidateActor(actor); err != nil {
			return nil, err
		}
		name = headRefName(ns, actor)
	} else {
		var err error
		name, err = j.anyActorRef(ns)
		if err != nil {
			return nil, err
		}
	}

	chain, err := j.walkChain(name)
	if err != nil {
		return nil, err
	}

	return applyWindow(chain, start, end)
}

// ReadWindowPaginated is ReadWindow with a page cursor: at most limit
// records are returned; if more remain, cursor is the commit id of the
// last returned record (spec §4.4, "cursor is the commit id, never the
// ULID").
func (j *Journal) ReadWindowPaginated(ns, actor, start, end string, limit int) ([]Record, string, error) {
	records, err := j.ReadWindow(ns, actor, start, end)
	if err != nil {
		return nil, "", err
	}
	if len(records) <= limit {
		return records, "", nil
	}
	page := records[:limit]
	return page, page[len(page)-1].CommitID, nil
}

// walkChain walks name's commit chain from head to root, returning
// oldest-first.
func (j *Journal) walkChain(name plumbing.ReferenceName) ([]Record, error) {
	headHash, exists, err := j.repo.Head(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: ref %s does not exist", gatoserr.ErrNotFound, name)
	}

	var reversed []Record
	cur := headHash
	for {
		commit, err := j.repo.GetCommit(cur)
		if err != nil {
			return nil, err
		}
		envBytes, err := j.readEnvelopeBytes(commit)
		if err != nil {
			return nil, err
		}
		commitID, ok := gatoshash.ParseCommitIDTrailer(commit.Message)
		if !ok {
			return nil, fmt.Errorf("%w: commit %s missing commit id trailer", gatoserr.ErrCorruption, cur)
		}
		reversed = append(reversed, Record{CommitID: commitID.Hex(), EnvelopeBytes: envBytes})

		if len(commit.ParentHashes) == 0 {
			break
		}
		cur = commit.ParentHashes[0]
	}

	out := make([]Record, len(reversed))
	for i, r := range reversed {
		out[len(reversed)-1-i] = r
	}
	return out, nil
}

func (j *Journal) readEnvelopeBytes(commit *object.Commit) ([]byte, error) {
	blobHash, err := j.repo.GetTreeEntry(commit.TreeHash, "message/envelope.json")
	if err != nil {
		return nil, err
	}
	return j.repo.GetBlob(blobHash)
}

// applyWindow applies the start (exclusive)/end (inclusive) commit-id
// filters to an oldest-first chain.
func applyWindow(chain []Record, start, end string) ([]Record, error) {
	begin := 0
	if start != "" {
		idx := indexOfCommit(chain, start)
		if idx < 0 {
			return nil, fmt.Errorf("%w: start commit %q not found in chain", gatoserr.ErrNotFound, start)
		}
		begin = idx + 1
	}

	stop := len(chain)
	if end != "" {
		idx := indexOfCommit(chain, end)
		if idx >= 0 {
			stop = idx + 1
		}
	}

	if begin > stop {
		return []Record{}, nil
	}
	return chain[begin:stop], nil
}

func indexOfCommit(chain []Record, commitID string) int {
	for i, r := range chain {
		if r.CommitID == commitID {
			return i
		}
	}
	return -1
}
