package persist

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tasklift/tasklift/pkg/cache"
	"github.com/tasklift/tasklift/pkg/models"
)

// SnapshotVersion is the current structural version of the persisted
// snapshot. Older versions are migrated on load, one step at a time.
const SnapshotVersion = 2

// Snapshot is the persisted form of all four cache families.
type Snapshot struct {
	Version    int                               `json:"version"`
	SavedAt    time.Time                         `json:"saved_at"`
	Motivation []cache.Entry[string]             `json:"motivation"`
	Metadata   []cache.Entry[models.TaskMetadata] `json:"metadata"`
	Kits       []cache.Entry[models.TemplateKit]  `json:"kits"`
	Breakdowns []cache.Entry[[]string]            `json:"breakdowns"`
}

// migrations upgrades a raw snapshot blob from version v to v+1. The
// chain is applied sequentially from the stored version up to
// SnapshotVersion, so adding a schema revision means adding one entry
// here rather than special-casing in the loader.
var migrations = map[int]func([]byte) ([]byte, error){
	1: migrateV1,
}

// decodeSnapshot parses a snapshot blob, applying any pending migrations.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if probe.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", probe.Version, SnapshotVersion)
	}

	for v := probe.Version; v < SnapshotVersion; v++ {
		mig, ok := migrations[v]
		if !ok {
			return nil, fmt.Errorf("no migration from snapshot version %d", v)
		}
		var err error
		data, err = mig(data)
		if err != nil {
			return nil, fmt.Errorf("migrate snapshot v%d: %w", v, err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// migrateV1 upgrades the initial snapshot shape, whose keys were not
// credential-scoped. Every key is moved under the reserved legacy scope
// so it can never collide with a key derived from a real credential.
func migrateV1(data []byte) ([]byte, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	snap.Motivation = rescopeEntries(snap.Motivation)
	snap.Metadata = rescopeEntries(snap.Metadata)
	snap.Kits = rescopeEntries(snap.Kits)
	snap.Breakdowns = rescopeEntries(snap.Breakdowns)
	snap.Version = 2

	return json.Marshal(snap)
}

func rescopeEntries[V any](entries []cache.Entry[V]) []cache.Entry[V] {
	out := make([]cache.Entry[V], len(entries))
	for i, e := range entries {
		if !strings.HasPrefix(e.Key, cache.LegacyScope+":") {
			e.Key = cache.LegacyScope + ":" + e.Key
		}
		out[i] = e
	}
	return out
}
