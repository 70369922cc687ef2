package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Operation families. Each family owns one Cache instance, one in-flight
// group, and one section of the persisted snapshot.
const (
	FamilyMotivation = "motivation"
	FamilyMetadata   = "metadata"
	FamilyKit        = "kit"
	FamilyBreakdown  = "breakdown"
)

// NoCredentialScope partitions cache entries produced without any
// configured credential.
const NoCredentialScope = "nokey"

// LegacyScope partitions entries migrated from snapshots written before
// keys were credential-scoped. Kept distinct from real scopes so old
// entries can never shadow fresh ones.
const LegacyScope = "legacy"

// Scoper derives short, stable, non-reversible scope tags from
// credentials. The tag namespaces cache keys so switching credentials
// never serves answers cached under a different one. Derived tags are
// memoized for the life of the process.
type Scoper struct {
	mu   sync.RWMutex
	tags map[string]string
}

// NewScoper creates an empty Scoper.
func NewScoper() *Scoper {
	return &Scoper{tags: make(map[string]string)}
}

// Scope returns the tag for credential: the first 8 hex chars of its
// SHA-256 digest, or NoCredentialScope for an empty credential. The tag
// partitions a cache rather than guarding a security boundary, so the
// truncation is safe; the digest only keeps credential bytes out of
// stored keys and diagnostics.
func (s *Scoper) Scope(credential string) string {
	if credential == "" {
		return NoCredentialScope
	}

	s.mu.RLock()
	tag, ok := s.tags[credential]
	s.mu.RUnlock()
	if ok {
		return tag
	}

	sum := sha256.Sum256([]byte(credential))
	tag = hex.EncodeToString(sum[:])[:8]

	s.mu.Lock()
	s.tags[credential] = tag
	s.mu.Unlock()
	return tag
}

// NormalizeInput canonicalizes request text for cache keying: lowercase
// with runs of whitespace collapsed to single spaces. "  Grocery Trip  "
// and "grocery trip" key identically.
func NormalizeInput(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Key composes a cache key from a scope tag, an operation family, and an
// already normalized input.
func Key(scope, family, normalizedInput string) string {
	return scope + ":" + family + ":" + normalizedInput
}
