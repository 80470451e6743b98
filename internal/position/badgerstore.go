// internal/position/badgerstore.go
package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var documentKey = []byte("positions/document")

// BadgerStore keeps the position document as a single value in an embedded
// Badger database. Semantics match FileStore: the document is read and
// rewritten wholesale on every mutation.
type BadgerStore struct {
	mu     sync.Mutex
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens the database, seeding an empty document on first use.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	s := &BadgerStore{db: db, logger: logger.Named("store")}

	err = db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(documentKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			data, merr := json.Marshal(&document{Positions: []*Position{}})
			if merr != nil {
				return merr
			}
			s.logger.Info("📄 Created empty position store", zap.String("dir", dir))
			return txn.Set(documentKey, data)
		}
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize badger store: %w", err)
	}

	return s, nil
}

func (s *BadgerStore) Create(_ context.Context, pos *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rewrite(func(doc *document) error {
		for _, existing := range doc.Positions {
			if existing.Key == pos.Key {
				return nil
			}
		}
		doc.Positions = append(doc.Positions, pos)
		return nil
	})
}

func (s *BadgerStore) Update(_ context.Context, key Key, mutate func(*Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rewrite(func(doc *document) error {
		for _, pos := range doc.Positions {
			if pos.Key == key {
				if err := mutate(pos); err != nil {
					return err
				}
				pos.UpdatedAt = time.Now().UTC()
				return nil
			}
		}
		return fmt.Errorf("update %s: %w", key, ErrNotFound)
	})
}

func (s *BadgerStore) ReadAll(_ context.Context) ([]*Position, error) {
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

func (s *BadgerStore) Remove(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rewrite(func(doc *document) error {
		for i, pos := range doc.Positions {
			if pos.Key == key {
				doc.Positions = append(doc.Positions[:i], doc.Positions[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove %s: %w", key, ErrNotFound)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) read() (*document, error) {
	var doc document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	return &doc, nil
}

// rewrite is the read-modify-write cycle for the whole document.
func (s *BadgerStore) rewrite(apply func(*document) error) error {
	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := apply(doc); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey, data)
	})
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
