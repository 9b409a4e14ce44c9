// Package manifest records which backup attempt succeeded for each
// collection of a run.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Manifest maps a collection name to the attempt name the cluster confirmed
// as completed. The zero value is ready to use.
type Manifest struct {
	mu      sync.Mutex
	entries map[string]string
}

func New() *Manifest {
	return &Manifest{entries: map[string]string{}}
}

// Record stores the successful attempt for a collection, replacing any
// earlier one.
func (m *Manifest) Record(collection, attempt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[collection] = attempt
}

// Get returns the attempt recorded for a collection.
func (m *Manifest) Get(collection string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[collection]
	return v, ok
}

func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Collections returns the recorded collection names, sorted.
func (m *Manifest) Collections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns a copy of the mapping.
func (m *Manifest) Entries() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the manifest as a flat object with sorted keys.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	for k, v := range entries {
		if k == "" || v == "" {
			return fmt.Errorf("decode manifest: empty collection or attempt name")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entries == nil {
		entries = map[string]string{}
	}
	m.entries = entries
	return nil
}

// Encode renders the manifest document: sorted keys, four-space indent,
// trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Entries()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
