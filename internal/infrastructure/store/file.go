package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"compliance-lab/internal/metrics"
	"compliance-lab/pkg/logger"
)

const sequencesFile = "_sequences.json"

// FileStore keeps each collection in <dir>/<name>.json.
// Writers are serialized by mu and replace files atomically, so a reader
// never observes a half-written file from this process. Files edited by
// other processes mid-write surface as ErrCorrupt.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *logger.Logger
}

// NewFileStore creates the data directory if needed
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.Global()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: log.WithComponent("file-store"),
	}, nil
}

// Dir returns the data directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Backend implements Store
func (s *FileStore) Backend() string {
	return "file"
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context, name string) ([]json.RawMessage, error) {
	items, err := s.load(ctx, name)
	metrics.ObserveStoreOp(s.Backend(), "load", ignoreExpected(err))
	return items, err
}

func (s *FileStore) load(ctx context.Context, name string) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	return DecodeCollection(content)
}

// Update implements Store
func (s *FileStore) Update(ctx context.Context, name string, fn UpdateFunc) error {
	err := s.update(ctx, name, fn)
	metrics.ObserveStoreOp(s.Backend(), "update", err)
	return err
}

func (s *FileStore) update(ctx context.Context, name string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		items = []json.RawMessage{}
	}

	updated, err := fn(items)
	if err != nil {
		return err
	}

	data, err := EncodeCollection(updated)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(name+".json", data); err != nil {
		return err
	}

	s.logger.Debug().Str("collection", name).Int("items", len(updated)).Msg("collection written")
	return nil
}

// NextSequence implements Store. Counters live in a separate file so
// deleting records never causes an id to be reused.
func (s *FileStore) NextSequence(ctx context.Context, name string, floor int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counters := map[string]int64{}
	content, err := os.ReadFile(filepath.Join(s.dir, sequencesFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(content, &counters); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, sequencesFile, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return 0, fmt.Errorf("failed to read sequences: %w", err)
	}

	next := max(counters[name], floor) + 1
	counters[name] = next

	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode sequences: %w", err)
	}
	if err := s.writeAtomic(sequencesFile, data); err != nil {
		return 0, err
	}

	metrics.ObserveStoreOp(s.Backend(), "sequence", nil)
	return next, nil
}

// Initialize creates any of the named collections that do not exist yet.
// Existing files are left untouched even when they do not parse.
func (s *FileStore) Initialize(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := validateName(name); err != nil {
			return err
		}
		if _, err := os.Stat(s.path(name)); err == nil {
			continue
		}
		if err := s.Update(ctx, name, func(items []json.RawMessage) ([]json.RawMessage, error) {
			return items, nil
		}); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", name, err)
		}
		s.logger.Info().Str("collection", name).Msg("created empty collection")
	}
	return nil
}

// Ping implements Store
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) writeAtomic(filename string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, filename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	return nil
}

// absent and corrupt collections are answers, not backend failures
func ignoreExpected(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
		return nil
	}
	return err
}
