package genai

import (
	"os"
	"strings"
	"sync"
)

// CredentialSource resolves the active credential for remote calls. It
// is consulted before every attempt, so a credential rotated mid-retry
// takes effect immediately. Clear is invoked when the endpoint rejects
// the credential, so the user is re-prompted instead of burning retries.
type CredentialSource interface {
	// Credential returns the active credential, or "" when none is set.
	Credential() string

	// Clear discards the stored credential.
	Clear()
}

// StaticSource holds a credential in memory (config- or env-provided).
type StaticSource struct {
	mu  sync.RWMutex
	key string
}

// NewStaticSource creates a source with a fixed initial credential.
func NewStaticSource(key string) *StaticSource {
	return &StaticSource{key: key}
}

// Credential returns the stored credential.
func (s *StaticSource) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Clear drops the stored credential.
func (s *StaticSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
}

// FileSource reads the credential from a file on every resolution, so
// an external write (re-linking the key) is picked up without a
// restart. Clear removes the file.
type FileSource struct {
	path string
}

// NewFileSource creates a source over the given file path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Credential reads and trims the file contents. Any read failure is
// treated as no credential.
func (s *FileSource) Credential() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Clear removes the credential file.
func (s *FileSource) Clear() {
	_ = os.Remove(s.path)
}
