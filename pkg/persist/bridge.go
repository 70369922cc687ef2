package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultFlushDelay is the debounce window between the last Schedule
// call and the snapshot write. Cache entries arrive at call frequency;
// one kit generation can produce several near-simultaneous writes, and
// the debounce collapses them into one storage write.
const DefaultFlushDelay = 750 * time.Millisecond

// Logf is the diagnostic sink for swallowed persistence errors. It must
// never block or panic.
type Logf func(format string, args ...any)

// Bridge debounces snapshot writes to a Store and loads them back on
// startup. All storage failures are logged and otherwise ignored; the
// in-memory caches keep working without durability.
type Bridge struct {
	store Store
	delay time.Duration
	logf  Logf

	mu      sync.Mutex
	timer   *time.Timer
	collect func() *Snapshot
}

// NewBridge creates a Bridge over store. A zero delay uses
// DefaultFlushDelay; a nil logf logs to stderr.
func NewBridge(store Store, delay time.Duration, logf Logf) *Bridge {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "tasklift: "+format+"\n", args...)
		}
	}
	return &Bridge{store: store, delay: delay, logf: logf}
}

// Schedule arranges for collect() to be called and its snapshot written
// once the debounce window passes without another Schedule call.
func (b *Bridge) Schedule(collect func() *Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.collect = collect
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flushPending)
}

// Flush writes any pending snapshot immediately.
func (b *Bridge) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	b.flushPending()
}

func (b *Bridge) flushPending() {
	b.mu.Lock()
	collect := b.collect
	b.collect = nil
	b.mu.Unlock()

	if collect == nil {
		return
	}
	b.write(collect())
}

func (b *Bridge) write(snap *Snapshot) {
	if snap == nil {
		return
	}
	snap.Version = SnapshotVersion
	snap.SavedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		b.logf("encode cache snapshot: %v", err)
		return
	}
	if err := b.store.Set(snapshotKey, data); err != nil {
		b.logf("write cache snapshot: %v", err)
	}
}

// Load reads and migrates the persisted snapshot. It returns nil when
// no snapshot exists or when anything about it is unreadable; loading
// never fails the caller.
func (b *Bridge) Load() *Snapshot {
	data, ok, err := b.store.Get(snapshotKey)
	if err != nil {
		b.logf("read cache snapshot: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		b.logf("decode cache snapshot: %v", err)
		return nil
	}
	return snap
}

// SaveCooldown persists the quota cooldown deadline. A zero time clears it.
func (b *Bridge) SaveCooldown(until time.Time) {
	if until.IsZero() {
		if err := b.store.Delete(cooldownKey); err != nil {
			b.logf("clear cooldown: %v", err)
		}
		return
	}
	if err := b.store.Set(cooldownKey, []byte(until.UTC().Format(time.RFC3339))); err != nil {
		b.logf("write cooldown: %v", err)
	}
}

// LoadCooldown returns the persisted cooldown deadline, if any.
func (b *Bridge) LoadCooldown() (time.Time, bool) {
	data, ok, err := b.store.Get(cooldownKey)
	if err != nil {
		b.logf("read cooldown: %v", err)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	until, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		b.logf("parse cooldown: %v", err)
		return time.Time{}, false
	}
	return until, true
}

// Close flushes any pending snapshot and closes the store.
func (b *Bridge) Close() error {
	b.Flush()
	return b.store.Close()
}
