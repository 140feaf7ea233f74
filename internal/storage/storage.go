// Package storage persists knowledge snapshots as JSON documents of the form
// {"results": {<entity id>: <record>}} on interchangeable backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/wesm/knowledge-harvest/internal/models"
)

// ErrDocumentNotFound is returned by an ObjectStore when no document exists under a key
var ErrDocumentNotFound = errors.New("document not found")

// Snapshot maps an entity id to its encoded record
type Snapshot map[string]json.RawMessage

// Key identifies the snapshot of one entity kind of one project
type Key struct {
	Project string // "owner/name"
	Kind    models.Kind
}

// Path returns the slash separated location of the snapshot document
func (k Key) Path() string {
	return path.Join(k.Project, k.Kind.FileName()+".json")
}

func (k Key) String() string {
	return fmt.Sprintf("%s (%s)", k.Project, k.Kind)
}

// Status describes the outcome of loading a snapshot
type Status int

const (
	// NotFound means no prior snapshot exists
	NotFound Status = iota
	// Found means a snapshot was decoded
	Found
	// Malformed means a document exists but is not a valid snapshot
	Malformed
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of Store.Load.
// Snapshot is never nil for Found and NotFound; Reason is set for Malformed.
type Result struct {
	Status   Status
	Snapshot Snapshot
	Reason   error
}

// Store persists snapshots. Save always replaces the whole document.
type Store interface {
	// Load returns the snapshot stored under key.
	// Connectivity failures are returned as errors, absence and corruption as Result statuses.
	Load(ctx context.Context, key Key) (Result, error)

	// Save replaces the snapshot stored under key
	Save(ctx context.Context, key Key, snapshot Snapshot) error

	// Location describes where the snapshot for key lives, for logging
	Location(key Key) string
}

type document struct {
	Results *Snapshot `json:"results"`
}

// EncodeDocument wraps a snapshot into its persisted document
func EncodeDocument(snapshot Snapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	data, err := json.Marshal(document{Results: &snapshot})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeDocument unwraps a persisted document. An empty document counts as not found.
func DecodeDocument(data []byte) Result {
	if len(data) == 0 {
		return notFound()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{Status: Malformed, Reason: fmt.Errorf("failed to parse snapshot document: %w", err)}
	}
	if doc.Results == nil {
		return Result{Status: Malformed, Reason: errors.New(`snapshot document has no "results"`)}
	}
	return Result{Status: Found, Snapshot: *doc.Results}
}

func notFound() Result {
	return Result{Status: NotFound, Snapshot: Snapshot{}}
}
