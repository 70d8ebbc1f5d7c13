package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
	"github.com/gatos-project/gatos/pkg/gitrepo"
	"github.com/gatos-project/gatos/pkg/ports"
)

const auditRefRoot = "refs/gatos/audit/policy/"

// GitSink persists every policy decision to a tamper-evident commit chain,
// one ref per namespace/actor pair — the same bounded-CAS discipline as
// pkg/journal, applied to the audit trail instead of the event log itself
// (spec §4.6). Adapted from the teacher's StoreLogger (wraps an
// append-only store, builds a structured event, appends it) but targets a
// Git ref chain rather than the teacher's in-process AuditStore.
type GitSink struct {
	repo     *gitrepo.Repo
	attempts int
}

// NewGitSink wraps repo as an AuditSink. attempts <= 0 uses
// gitrepo.DefaultRetryAttempts.
func NewGitSink(repo *gitrepo.Repo, attempts int) *GitSink {
	if attempts <= 0 {
		attempts = gitrepo.DefaultRetryAttempts
	}
	return &GitSink{repo: repo, attempts: attempts}
}

func auditRefName(ns, actor string) plumbing.ReferenceName {
	return plumbing.ReferenceName(auditRefRoot + ns + "/" + actor)
}

// decisionWire is the nested "decision" object within wireEntry (spec §3
// PolicyAuditEntry, §4.6, §8 scenario #6 navigating "decision.outcome").
type decisionWire struct {
	Outcome       ports.DecisionOutcome `json:"outcome"`
	PolicyVersion string                `json:"policy_version"`
	Reasons       []string              `json:"reasons,omitempty"`
}

// ctxWire is the nested "ctx" object within wireEntry, mirroring
// ports.AppendContext.
type ctxWire struct {
	Topic     string            `json:"topic"`
	Ulid      string            `json:"ulid"`
	ContentID string            `json:"content_id"`
	Caller    string            `json:"caller"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// wireEntry is the on-disk JSON shape for one audit record at audit.json
// within its commit's tree: `{timestamp, decision, ctx}` (spec §3, §4.6,
// §6).
type wireEntry struct {
	Decision  decisionWire `json:"decision"`
	Ctx       ctxWire      `json:"ctx"`
	Timestamp uint64       `json:"timestamp"`
}

// RecordPolicyDecision appends entry onto refs/gatos/audit/policy/<ns>/<actor>.
// A CAS collision that exhausts the retry budget is reported as
// AuditError{Kind: "Conflict"}; any other failure is "Io".
func (g *GitSink) RecordPolicyDecision(ctx context.Context, ns, actor string, entry ports.PolicyAuditEntry) *ports.AuditError {
	we := wireEntry{
		Decision: decisionWire{
			Outcome:       entry.Decision.Outcome,
			PolicyVersion: entry.Decision.PolicyVersion,
			Reasons:       entry.Decision.Reasons,
		},
		Ctx: ctxWire{
			Topic:     entry.Ctx.Topic,
			Ulid:      entry.Ctx.Ulid,
			ContentID: entry.Ctx.ContentID,
			Caller:    entry.Ctx.Caller,
			Metadata:  entry.Ctx.Metadata,
		},
		Timestamp: entry.Timestamp,
	}
	raw, err := gatoshash.CanonicalJSON(we)
	if err != nil {
		return &ports.AuditError{Kind: "Other", Err: fmt.Errorf("%w: encoding audit entry: %v", gatoserr.ErrEncode, err)}
	}
	treeID := gatoshash.TreeContentID(map[string]gatoshash.Hash{"audit.json": gatoshash.ContentID(raw)})

	name := auditRefName(ns, actor)
	message := fmt.Sprintf("policy:%s\n", entry.Decision.Outcome)

	retryErr := gitrepo.RetryCAS(g.attempts, func(attempt int) error {
		headHash, exists, err := g.repo.Head(name)
		if err != nil {
			return err
		}

		var parentID *gatoshash.Hash
		if exists {
			headCommit, err := g.repo.GetCommit(headHash)
			if err != nil {
				return err
			}
			if id, ok := gatoshash.ParseCommitIDTrailer(headCommit.Message); ok {
				parentID = &id
			}
		}

		now := time.Now().UTC()
		commitID, err := gatoshash.CommitID(gatoshash.CommitCore{
			Parent:    parentID,
			Tree:      treeID,
			Message:   message,
			Timestamp: uint64(now.Unix()),
		})
		if err != nil {
			return err
		}

		blobHash, err := g.repo.PutBlob(raw)
		if err != nil {
			return err
		}
		treeHash, err := g.repo.PutTree([]gitrepo.TreeEntry{{Path: "audit.json", Hash: blobHash}})
		if err != nil {
			return err
		}

		var parents []plumbing.Hash
		if exists {
			parents = []plumbing.Hash{headHash}
		}
		newHash, err := g.repo.PutCommit(gitrepo.CommitSpec{
			Tree:      treeHash,
			Parents:   parents,
			Message:   gatoshash.AppendCommitIDTrailer(message, commitID),
			Timestamp: now,
		})
		if err != nil {
			return err
		}

		var expected *plumbing.Hash
		if exists {
			expected = &headHash
		}
		return g.repo.CompareAndSwap(name, newHash, expected)
	})
	if retryErr != nil {
		if errors.Is(retryErr, gitrepo.ErrCASMismatch) {
			return &ports.AuditError{Kind: "Conflict", Err: fmt.Errorf("%w: audit %s/%s: %v", gatoserr.ErrConflict, ns, actor, retryErr)}
		}
		return &ports.AuditError{Kind: "Io", Err: retryErr}
	}
	return nil
}

// ChainEntry is one materialized record from ReadChain, oldest first.
type ChainEntry struct {
	CommitID string
	Entry    wireEntry
}

// ReadChain walks the full audit commit chain for ns/actor, oldest first —
// the read side of the audit trail, used by pkg/audit's Exporter and by
// operator tooling that needs to inspect why an append was allowed or
// denied.
func (g *GitSink) ReadChain(ns, actor string) ([]ChainEntry, error) {
	name := auditRefName(ns, actor)
	headHash, exists, err := g.repo.Head(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: audit chain %s/%s does not exist", gatoserr.ErrNotFound, ns, actor)
	}

	var reversed []ChainEntry
	cur := headHash
	for {
		commit, err := g.repo.GetCommit(cur)
		if err != nil {
			return nil, err
		}
		blobHash, err := g.repo.GetTreeEntry(commit.TreeHash, "audit.json")
		if err != nil {
			return nil, err
		}
		raw, err := g.repo.GetBlob(blobHash)
		if err != nil {
			return nil, err
		}
		var we wireEntry
		if err := json.Unmarshal(raw, &we); err != nil {
			return nil, fmt.Errorf("%w: decoding audit entry: %v", gatoserr.ErrCorruption, err)
		}
		commitID, ok := gatoshash.ParseCommitIDTrailer(commit.Message)
		if !ok {
			return nil, fmt.Errorf("%w: commit %s missing commit id trailer", gatoserr.ErrCorruption, cur)
		}
		reversed = append(reversed, ChainEntry{CommitID: commitID.Hex(), Entry: we})

		if len(commit.ParentHashes) == 0 {
			break
		}
		cur = commit.ParentHashes[0]
	}

	out := make([]ChainEntry, len(reversed))
	for i, r := range reversed {
		out[len(reversed)-1-i] = r
	}
	return out, nil
}
