// Package messageplane implements the Message Plane (MP) component:
// topic-scoped, segmented, consumer-aware append log with subscriber reads,
// checkpoints, and retention-based pruning (spec §4.5).
package messageplane

import (
	"fmt"
	"time"
)

// MaxMessagesPerSegment is the default message-count rotation bound.
const MaxMessagesPerSegment = 100_000

// MaxBytesPerSegment is the default cumulative-size rotation bound (192 MiB).
const MaxBytesPerSegment = 192 << 20

// MaxPageSize bounds a single subscriber read (spec §4.5).
const MaxPageSize = 512

// SegmentMeta is carried in every message commit under meta/meta.json
// (spec §3).
type SegmentMeta struct {
	Version          int    `json:"version"`
	SegmentPrefix    string `json:"segment_prefix"`
	SegmentUlid      string `json:"segment_ulid"`
	StartedAtEpoch   uint64 `json:"started_at_epoch"`
	MessageCount     int    `json:"message_count"`
	ApproximateBytes int64  `json:"approximate_bytes"`
}

// segmentPrefix derives "<topic>/YYYY/MM/DD/HH" from an epoch-seconds
// wall-clock reading (spec §4.5 step 3).
func segmentPrefix(topic string, epochSeconds uint64) string {
	t := time.Unix(int64(epochSeconds), 0).UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%02d", topic, t.Year(), t.Month(), t.Day(), t.Hour())
}

// segmentRefSuffix derives "<YYYY>/<MM>/<DD>/<HH>/<segment_ulid>" used to
// compose the full segment ref name under refs/gatos/messages/<topic>/.
func segmentRefSuffix(epochSeconds uint64, segmentUlid string) string {
	t := time.Unix(int64(epochSeconds), 0).UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%02d/%s", t.Year(), t.Month(), t.Day(), t.Hour(), segmentUlid)
}

// shouldContinueSegment implements the continuation test of spec §4.5
// step 4: continue iff the segment prefix is unchanged and both the
// message-count and byte-size budgets still have room for one more
// message of payloadLen bytes.
func shouldContinueSegment(prev *SegmentMeta, currentPrefix string, payloadLen int, maxMessages int, maxBytes int64) bool {
	if prev == nil {
		return false
	}
	if prev.SegmentPrefix != currentPrefix {
		return false
	}
	if prev.MessageCount >= maxMessages {
		return false
	}
	if prev.ApproximateBytes+int64(payloadLen) > maxBytes {
		return false
	}
	return true
}
