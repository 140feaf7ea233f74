package sync

import (
	"encoding/json"

	"github.com/wesm/knowledge-harvest/internal/storage"
)

// NewEntities returns the entities of listing whose id is not yet a key of previous,
// in listing order. Entities listed twice are returned once.
func NewEntities[E any](previous storage.Snapshot, listing []E, id func(E) string) []E {
	seen := make(map[string]struct{}, len(listing))
	var fresh []E
	for _, entity := range listing {
		key := id(entity)
		if _, known := previous[key]; known {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, entity)
	}
	return fresh
}

// Merge returns a snapshot holding every record of previous plus the new records.
// Records already in previous are never replaced.
func Merge(previous storage.Snapshot, records map[string]json.RawMessage) storage.Snapshot {
	merged := make(storage.Snapshot, len(previous)+len(records))
	for id, record := range records {
		merged[id] = record
	}
	for id, record := range previous {
		merged[id] = record
	}
	return merged
}
