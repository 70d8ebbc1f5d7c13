package messageplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gatos-project/gatos/pkg/eventenvelope"
	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
	"github.com/gatos-project/gatos/pkg/gitrepo"
	"github.com/gatos-project/gatos/pkg/ports"
)

const (
	headRefRoot    = "refs/gatos/messages/"
	consumerRefRoot = "refs/gatos/consumers/"
)

// Plane is the Message Plane: topic-scoped segmented append log.
type Plane struct {
	repo                 *gitrepo.Repo
	clock                ports.Clock
	attempts             int
	maxMessagesPerSegment int
	maxBytesPerSegment    int64
}

// Option configures a Plane beyond its defaults.
type Option func(*Plane)

// WithMaxMessagesPerSegment overrides MaxMessagesPerSegment.
func WithMaxMessagesPerSegment(n int) Option { return func(p *Plane) { p.maxMessagesPerSegment = n } }

// WithMaxBytesPerSegment overrides MaxBytesPerSegment.
func WithMaxBytesPerSegment(n int64) Option { return func(p *Plane) { p.maxBytesPerSegment = n } }

// WithRetryAttempts overrides the default CAS retry budget.
func WithRetryAttempts(n int) Option { return func(p *Plane) { p.attempts = n } }

// New wraps repo as a Message Plane using clock for wall-clock segment
// boundaries (spec §9, "Dynamic clock injection").
func New(repo *gitrepo.Repo, clock ports.Clock, opts ...Option) *Plane {
	p := &Plane{
		repo:                  repo,
		clock:                 clock,
		attempts:              gitrepo.DefaultRetryAttempts,
		maxMessagesPerSegment: MaxMessagesPerSegment,
		maxBytesPerSegment:    MaxBytesPerSegment,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func headRefName(topic string) plumbing.ReferenceName {
	return plumbing.ReferenceName(headRefRoot + topic + "/head")
}

func segmentRefName(topic string, epochSeconds uint64, segmentUlid string) plumbing.ReferenceName {
	return plumbing.ReferenceName(headRefRoot + topic + "/" + segmentRefSuffix(epochSeconds, segmentUlid))
}

func checkpointRefName(group, topic string) plumbing.ReferenceName {
	return plumbing.ReferenceName(consumerRefRoot + group + "/" + topic)
}

// PublishReceipt is returned on a successful Publish (spec §4.5 step 8).
type PublishReceipt struct {
	CommitID  string
	ContentID string
	Ulid      string
}

// Publish validates env, sanitizes topic, determines whether to continue
// the current segment or rotate, writes the message commit, and advances
// the segment and head refs via bounded-retry CAS (spec §4.5 steps 1-8).
func (p *Plane) Publish(topic string, env eventenvelope.Envelope) (PublishReceipt, error) {
	if err := gatoshash.ValidateTopic(topic); err != nil {
		return PublishReceipt{}, err
	}
	if err := eventenvelope.Validate(env); err != nil {
		return PublishReceipt{}, err
	}

	envBytes, err := gatoshash.CanonicalJSON(env)
	if err != nil {
		return PublishReceipt{}, fmt.Errorf("%w: encoding envelope: %v", gatoserr.ErrEncode, err)
	}
	cid, err := eventenvelope.EventCID(env)
	if err != nil {
		return PublishReceipt{}, err
	}

	hName := headRefName(topic)
	var receipt PublishReceipt

	retryErr := gitrepo.RetryCAS(p.attempts, func(attempt int) error {
		headHash, headExists, err := p.repo.Head(hName)
		if err != nil {
			return err
		}

		var prevMeta *SegmentMeta
		if headExists {
			prevMeta, err = p.readSegmentMeta(headHash)
			if err != nil {
				return err
			}
		}

		now := p.clock.Now()
		currentPrefix := segmentPrefix(topic, now)
		continuing := shouldContinueSegment(prevMeta, currentPrefix, len(envBytes), p.maxMessagesPerSegment, p.maxBytesPerSegment)

		var meta SegmentMeta
		if continuing {
			meta = SegmentMeta{
				Version:          1,
				SegmentPrefix:    prevMeta.SegmentPrefix,
				SegmentUlid:      prevMeta.SegmentUlid,
				StartedAtEpoch:   prevMeta.StartedAtEpoch,
				MessageCount:     prevMeta.MessageCount + 1,
				ApproximateBytes: prevMeta.ApproximateBytes + int64(len(envBytes)),
			}
		} else {
			meta = SegmentMeta{
				Version:          1,
				SegmentPrefix:    currentPrefix,
				SegmentUlid:      env.Ulid,
				StartedAtEpoch:   now,
				MessageCount:     1,
				ApproximateBytes: int64(len(envBytes)),
			}
		}

		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("%w: encoding segment meta: %v", gatoserr.ErrEncode, err)
		}

		envBlobHash, err := p.repo.PutBlob(envBytes)
		if err != nil {
			return err
		}
		metaBlobHash, err := p.repo.PutBlob(metaBytes)
		if err != nil {
			return err
		}
		treeHash, err := p.repo.PutTree([]gitrepo.TreeEntry{
			{Path: "message/envelope.json", Hash: envBlobHash},
			{Path: "meta/meta.json", Hash: metaBlobHash},
		})
		if err != nil {
			return err
		}

		var parents []plumbing.Hash
		if headExists {
			parents = []plumbing.Hash{headHash}
		}
		var parentID *gatoshash.Hash
		if headExists {
			headCommit, err := p.repo.GetCommit(headHash)
			if err != nil {
				return err
			}
			if id, ok := gatoshash.ParseCommitIDTrailer(headCommit.Message); ok {
				parentID = &id
			}
		}
		treeID := gatoshash.TreeContentID(map[string]gatoshash.Hash{
			"message/envelope.json": gatoshash.ContentID(envBytes),
			"meta/meta.json":        gatoshash.ContentID(metaBytes),
		})

		message := fmt.Sprintf("%s\n\nEvent-Id: ulid:%s\nContent-Id: %s\n", env.EventType, env.Ulid, cid)
		ts := epochToTime(now)
		commitID, err := gatoshash.CommitID(gatoshash.CommitCore{
			Parent:    parentID,
			Tree:      treeID,
			Message:   message,
			Timestamp: uint64(ts.Unix()),
		})
		if err != nil {
			return err
		}
		commitHash, err := p.repo.PutCommit(gitrepo.CommitSpec{
			Tree:      treeHash,
			Parents:   parents,
			Message:   gatoshash.AppendCommitIDTrailer(message, commitID),
			Timestamp: ts,
		})
		if err != nil {
			return err
		}

		sName := segmentRefName(topic, segmentEpochFromMeta(meta, now), meta.SegmentUlid)

		var segExpected *plumbing.Hash
		if continuing {
			segExpected = &headHash
		}
		if err := p.repo.CompareAndSwap(sName, commitHash, segExpected); err != nil {
			return err
		}

		var headExpected *plumbing.Hash
		if headExists {
			headExpected = &headHash
		}
		if err := p.repo.CompareAndSwap(hName, commitHash, headExpected); err != nil {
			return err
		}

		receipt = PublishReceipt{CommitID: commitID.Hex(), ContentID: cid, Ulid: env.Ulid}
		return nil
	})
	if retryErr != nil {
		if errors.Is(retryErr, gitrepo.ErrCASMismatch) {
			return PublishReceipt{}, fmt.Errorf("%w: topic %s: %v", gatoserr.ErrHeadConflict, topic, retryErr)
		}
		return PublishReceipt{}, retryErr
	}
	return receipt, nil
}

// segmentEpochFromMeta picks the epoch used to format a segment ref's
// date/hour path: the segment's own started_at_epoch so that a continued
// segment's ref name never drifts off its original hour bucket.
func segmentEpochFromMeta(meta SegmentMeta, now uint64) uint64 {
	if meta.StartedAtEpoch != 0 {
		return meta.StartedAtEpoch
	}
	return now
}

func (p *Plane) readSegmentMeta(commitHash plumbing.Hash) (*SegmentMeta, error) {
	commit, err := p.repo.GetCommit(commitHash)
	if err != nil {
		return nil, err
	}
	blobHash, err := p.repo.GetTreeEntry(commit.TreeHash, "meta/meta.json")
	if err != nil {
		if errors.Is(err, gatoserr.ErrInvariant) {
			// A message commit written before meta/meta.json existed, or
			// otherwise missing its segment metadata: treat as "no
			// continuable segment" rather than fail the whole publish.
			return nil, nil
		}
		return nil, err
	}
	data, err := p.repo.GetBlob(blobHash)
	if err != nil {
		return nil, err
	}
	var meta SegmentMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding segment meta: %v", gatoserr.ErrCorruption, err)
	}
	return &meta, nil
}

func epochToTime(epochSeconds uint64) time.Time {
	return time.Unix(int64(epochSeconds), 0).UTC()
}
