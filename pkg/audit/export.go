package audit

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyNamespace is returned when namespace is empty.
	ErrEmptyNamespace = errors.New("audit: namespace must not be empty")
	// ErrEmptyActor is returned when actor is empty.
	ErrEmptyActor = errors.New("audit: actor must not be empty")
	// ErrSinkNotConfigured is returned when export is invoked without a backing sink.
	ErrSinkNotConfigured = errors.New("audit: sink not configured (fail-closed)")
)

// ExportRequest defines which audit chain to export.
type ExportRequest struct {
	Namespace string `json:"namespace"`
	Actor     string `json:"actor"`
}

// Exporter bundles a namespace/actor audit chain into a zip evidence pack —
// adapted from the teacher's pkg/audit.Exporter (events.json + manifest.json
// + README.txt, sha256 checksum over the resulting archive), rebased onto
// GitSink's commit chain instead of the teacher's in-process AuditStore.
type Exporter struct {
	sink *GitSink
}

// NewExporter wraps sink as an Exporter.
func NewExporter(sink *GitSink) *Exporter {
	return &Exporter{sink: sink}
}

// GeneratePack creates a zip file containing the audit chain and a
// manifest with its chain head, returning the archive bytes and its
// sha256 checksum.
func (e *Exporter) GeneratePack(req ExportRequest) ([]byte, string, error) {
	if req.Namespace == "" {
		return nil, "", ErrEmptyNamespace
	}
	if req.Actor == "" {
		return nil, "", ErrEmptyActor
	}
	if e.sink == nil {
		return nil, "", ErrSinkNotConfigured
	}

	chain, err := e.sink.ReadChain(req.Namespace, req.Actor)
	if err != nil {
		return nil, "", fmt.Errorf("audit: reading chain: %w", err)
	}

	eventsJSON, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return nil, "", err
	}

	var chainHead string
	if len(chain) > 0 {
		chainHead = chain[len(chain)-1].CommitID
	}
	manifest := map[string]any{
		"namespace":    req.Namespace,
		"actor":        req.Actor,
		"generated_at": time.Now().UTC(),
		"entry_count":  len(chain),
		"chain_head":   chainHead,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: failed to marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("events.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(eventsJSON)

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(manifestJSON)

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Audit evidence pack for %s/%s\nGenerated at %s\n", req.Namespace, req.Actor, time.Now().UTC())

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	checksum := hex.EncodeToString(hash[:])

	return zipBytes, checksum, nil
}
