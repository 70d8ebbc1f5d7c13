package messageplane

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
)

// FindPrunableSegments returns the segment ref names for topic that are
// eligible for deletion at time now, given retentionSeconds and the
// current checkpoints for topic, without deleting anything (spec §4.5).
func (p *Plane) FindPrunableSegments(topic string, now uint64, retentionSeconds uint64) ([]string, error) {
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return nil, err
	}

	checkpoints, err := p.ListCheckpoints(topic)
	if err != nil {
		return nil, err
	}

	segmentRefs, err := p.segmentRefs(topic)
	if err != nil {
		return nil, err
	}

	var prunable []string
	for _, name := range segmentRefs {
		oid, exists, err := p.repo.Head(name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		commit, err := p.repo.GetCommit(oid)
		if err != nil {
			return nil, fmt.Errorf("%w: reading segment commit for %s: %v", gatoserr.ErrIo, name, err)
		}
		meta, err := p.readSegmentMeta(oid)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			continue
		}
		if now-meta.StartedAtEpoch < retentionSeconds {
			continue
		}

		rec, err := p.materializeRecord(commit)
		if err != nil {
			return nil, err
		}
		lastUlid := rec.Ulid

		if anyCheckpointBehind(checkpoints, lastUlid) {
			continue
		}

		prunable = append(prunable, string(name))
	}
	return prunable, nil
}

// Prune deletes the segment refs FindPrunableSegments identifies and
// returns their names. The head ref is never a candidate and is never
// touched; pruning only removes ref names, never commit objects
// (spec §4.5).
func (p *Plane) Prune(topic string, now uint64, retentionSeconds uint64) ([]string, error) {
	names, err := p.FindPrunableSegments(topic, now, retentionSeconds)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := p.repo.RemoveReference(plumbing.ReferenceName(name)); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// anyCheckpointBehind reports whether any consumer's checkpoint ulid is
// lexicographically less than lastUlid — ULIDs are time-ordered strings of
// fixed length, so lexicographic and chronological order coincide.
func anyCheckpointBehind(checkpoints map[string]Checkpoint, lastUlid string) bool {
	for _, cp := range checkpoints {
		if cp.Ulid < lastUlid {
			return true
		}
	}
	return false
}

// segmentRefs enumerates every segment ref under topic, excluding head.
func (p *Plane) segmentRefs(topic string) ([]plumbing.ReferenceName, error) {
	it, err := p.repo.RefsWithPrefix(headRefRoot + topic + "/")
	if err != nil {
		return nil, err
	}

	headName := headRefName(topic)
	var out []plumbing.ReferenceName
	for _, name := range it.All() {
		if name == headName {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
