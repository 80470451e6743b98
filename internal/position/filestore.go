// internal/position/filestore.go
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// document is the single JSON document holding every position, in creation
// order.
type document struct {
	Positions []*Position `json:"positions"`
}

// FileStore keeps the position document in one JSON file. Every mutation is
// a full read-modify-write of the document.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileStore opens the store, creating an empty document when the file
// does not exist yet so the first ReadAll never fails.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{path: path, logger: logger.Named("store")}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		if err := s.write(&document{Positions: []*Position{}}); err != nil {
			return nil, fmt.Errorf("initialize store: %w", err)
		}
		s.logger.Info("📄 Created empty position store", zap.String("path", path))
	}

	return s, nil
}

func (s *FileStore) Create(_ context.Context, pos *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	for _, existing := range doc.Positions {
		if existing.Key == pos.Key {
			s.logger.Debug("Position already exists, create is a no-op",
				zap.String("key", pos.Key.String()))
			return nil
		}
	}

	doc.Positions = append(doc.Positions, pos)
	return s.write(doc)
}

func (s *FileStore) Update(_ context.Context, key Key, mutate func(*Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	for _, pos := range doc.Positions {
		if pos.Key == key {
			if err := mutate(pos); err != nil {
				return err
			}
			pos.UpdatedAt = time.Now().UTC()
			return s.write(doc)
		}
	}

	return fmt.Errorf("update %s: %w", key, ErrNotFound)
}

func (s *FileStore) ReadAll(_ context.Context) ([]*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	snapshot := make([]*Position, len(doc.Positions))
	for i, pos := range doc.Positions {
		clone := *pos
		clone.Targets = append([]TargetSlot(nil), pos.Targets...)
		snapshot[i] = &clone
	}
	return snapshot, nil
}

func (s *FileStore) Remove(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	for i, pos := range doc.Positions {
		if pos.Key == key {
			doc.Positions = append(doc.Positions[:i], doc.Positions[i+1:]...)
			return s.write(doc)
		}
	}

	return fmt.Errorf("remove %s: %w", key, ErrNotFound)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	return &doc, nil
}

// write replaces the document atomically via a rename so a crash mid-write
// never leaves a truncated store behind.
func (s *FileStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
