package messageplane

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
)

// MessageRecord is one materialized entry from a subscriber read
// (spec §4.5).
type MessageRecord struct {
	CommitID         string
	ContentID        string
	EnvelopePath     string
	CanonicalEnvelope []byte
	Ulid             string
}

// Read walks topic's head chain, optionally truncating at sinceUlid
// (exclusive) if present, and returns up to limit records oldest-first
// (spec §4.5 subscriber read).
func (p *Plane) Read(topic string, sinceUlid string, limit int) ([]MessageRecord, error) {
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be 1..=%d, got %d", gatoserr.ErrInvalidLimit, MaxPageSize, limit)
	}
	if sinceUlid != "" {
		if err := gatoshash.ValidateULID(sinceUlid); err != nil {
			return nil, err
		}
	}

	hName := headRefName(topic)
	headHash, exists, err := p.repo.Head(hName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: topic %q", gatoserr.ErrTopicNotFound, topic)
	}

	// Walk descending (newest-first) from head, stopping either at the
	// root or at sinceUlid (exclusive).
	var descending []MessageRecord
	cur := headHash
	for {
		commit, err := p.repo.GetCommit(cur)
		if err != nil {
			return nil, err
		}
		rec, err := p.materializeRecord(commit)
		if err != nil {
			return nil, err
		}
		if sinceUlid != "" && rec.Ulid == sinceUlid {
			break
		}
		descending = append(descending, rec)

		if len(commit.ParentHashes) == 0 {
			break
		}
		cur = commit.ParentHashes[0]
	}

	ascending := make([]MessageRecord, len(descending))
	for i, r := range descending {
		ascending[len(descending)-1-i] = r
	}

	if len(ascending) > limit {
		ascending = ascending[:limit]
	}
	return ascending, nil
}

func (p *Plane) materializeRecord(commit *object.Commit) (MessageRecord, error) {
	blobHash, err := p.repo.GetTreeEntry(commit.TreeHash, "message/envelope.json")
	if err != nil {
		return MessageRecord{}, err
	}
	envBytes, err := p.repo.GetBlob(blobHash)
	if err != nil {
		return MessageRecord{}, err
	}

	var decoded struct {
		Ulid string `json:"ulid"`
	}
	if err := json.Unmarshal(envBytes, &decoded); err != nil {
		return MessageRecord{}, fmt.Errorf("%w: decoding envelope: %v", gatoserr.ErrCorruption, err)
	}

	commitID, ok := gatoshash.ParseCommitIDTrailer(commit.Message)
	if !ok {
		return MessageRecord{}, fmt.Errorf("%w: commit missing commit id trailer", gatoserr.ErrCorruption)
	}
	contentID := gatoshash.ContentID(envBytes).String()

	return MessageRecord{
		CommitID:          commitID.Hex(),
		ContentID:         contentID,
		EnvelopePath:       "message/envelope.json",
		CanonicalEnvelope:  envBytes,
		Ulid:               decoded.Ulid,
	}, nil
}

// Checkpoint is a consumer group's last-acknowledged position
// (spec §3 ConsumerCheckpoint).
type Checkpoint struct {
	Ulid   string `json:"ulid"`
	Commit string `json:"commit,omitempty"`
}

// PersistCheckpoint validates ulid and writes {ulid, commit?} to the
// checkpoint ref for (group, topic), replacing any prior value
// (spec §4.5).
func (p *Plane) PersistCheckpoint(group, topic, ulid, commit string) error {
	if err := gatoshash.ValidateGroup(group); err != nil {
		return err
	}
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return err
	}
	if err := gatoshash.ValidateULID(ulid); err != nil {
		return err
	}

	cp := Checkpoint{Ulid: ulid, Commit: commit}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("%w: encoding checkpoint: %v", gatoserr.ErrEncode, err)
	}
	blobHash, err := p.repo.PutBlob(data)
	if err != nil {
		return err
	}
	return p.repo.SetReference(checkpointRefName(group, topic), blobHash)
}

// LoadCheckpoint returns the stored checkpoint for (group, topic), or
// ok=false if none has been persisted.
func (p *Plane) LoadCheckpoint(group, topic string) (cp Checkpoint, ok bool, err error) {
	if err := gatoshash.ValidateGroup(group); err != nil {
		return Checkpoint{}, false, err
	}
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return Checkpoint{}, false, err
	}

	name := checkpointRefName(group, topic)
	blobHash, exists, err := p.repo.Head(name)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if !exists {
		return Checkpoint{}, false, nil
	}
	data, err := p.repo.GetBlob(blobHash)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: decoding checkpoint: %v", gatoserr.ErrCorruption, err)
	}
	return cp, true, nil
}

// ListCheckpoints enumerates every consumer group's checkpoint for topic.
func (p *Plane) ListCheckpoints(topic string) (map[string]Checkpoint, error) {
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return nil, err
	}

	it, err := p.repo.RefsWithPrefix(consumerRefRoot)
	if err != nil {
		return nil, err
	}

	suffix := "/" + topic
	out := map[string]Checkpoint{}
	for _, name := range it.All() {
		s := string(name)
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		rest := strings.TrimPrefix(s, consumerRefRoot)
		group := strings.TrimSuffix(rest, suffix)
		if strings.Contains(group, "/") {
			// The group segment itself must not contain '/'; a ref whose
			// remaining prefix still has a slash belongs to some other
			// topic that happens to share this suffix.
			continue
		}
		cp, ok, err := p.LoadCheckpoint(group, topic)
		if err != nil {
			return nil, err
		}
		if ok {
			out[group] = cp
		}
	}
	return out, nil
}
