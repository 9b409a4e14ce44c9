package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rowjay/solr-backups/internal/storage"
	"github.com/rowjay/solr-backups/internal/util"
)

// ErrNotFound is returned by Store.Read when no manifest exists for a name.
var ErrNotFound = errors.New("manifest not found")

// Store reads and writes <backup_name>-manifest.json documents.
type Store struct {
	Storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{Storage: s}
}

// Write persists the manifest for backupName and returns its key.
func (s *Store) Write(ctx context.Context, backupName string, m *Manifest) (string, error) {
	payload, err := m.Encode()
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	key := util.ManifestKey(backupName)
	if err := s.Storage.Put(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return "", fmt.Errorf("write manifest %s: %w", key, err)
	}
	return key, nil
}

// Read loads the manifest for backupName.
func (s *Store) Read(ctx context.Context, backupName string) (*Manifest, error) {
	key := util.ManifestKey(backupName)
	reader, err := s.Storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read manifest %s: %w", key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", key, err)
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

// List returns every stored manifest, sorted by key.
func (s *Store) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := s.Storage.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	found := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, util.ManifestSuffix) {
			found = append(found, obj)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })
	return found, nil
}
