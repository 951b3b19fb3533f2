package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/citadel/pkg/observability"
)

// Store persists resource descriptors.
type Store interface {
	// Save writes or replaces the descriptor.
	Save(d *Descriptor) error

	// Delete removes the descriptor's persisted form. Deleting an absent
	// descriptor is not an error.
	Delete(resourceID string) error

	// LoadAll reads every persisted descriptor. Malformed entries are
	// skipped, not fatal.
	LoadAll() ([]*Descriptor, error)
}

// FileStore keeps one JSON file per resource under a root directory. File
// names are the SHA-256 of the resource identifier so arbitrary identifier
// strings are safe as file names.
type FileStore struct {
	rootDir string
	log     *observability.Logger

	// onSkip is invoked for each malformed file skipped during LoadAll,
	// for metrics. May be nil.
	onSkip func()
}

// NewFileStore creates a filesystem-backed descriptor store.
func NewFileStore(rootDir string, log *observability.Logger) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create descriptor directory: %w", err)
	}
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &FileStore{rootDir: rootDir, log: log}, nil
}

// SetSkipCallback registers a callback invoked once per malformed file
// skipped during LoadAll.
func (s *FileStore) SetSkipCallback(fn func()) { s.onSkip = fn }

// Save implements Store.
func (s *FileStore) Save(d *Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	if err := os.WriteFile(s.path(d.Identifier), data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(resourceID string) error {
	if err := os.Remove(s.path(resourceID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// LoadAll implements Store. The descriptor directory is scanned once;
// malformed files are logged and skipped so a single corrupt descriptor
// cannot take the whole resource manager down.
func (s *FileStore) LoadAll() ([]*Descriptor, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var out []*Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.rootDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.skip(path, err)
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			s.skip(path, err)
			continue
		}
		if d.Identifier == "" || len(d.Owners) == 0 {
			s.skip(path, fmt.Errorf("descriptor missing identifier or owners"))
			continue
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *FileStore) skip(path string, err error) {
	s.log.WithError(err).Warnf("skipping malformed descriptor file %s", path)
	if s.onSkip != nil {
		s.onSkip()
	}
}

func (s *FileStore) path(resourceID string) string {
	sum := sha256.Sum256([]byte(resourceID))
	return filepath.Join(s.rootDir, hex.EncodeToString(sum[:])+".json")
}
