package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	badger "github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
)

var bindingPrefix = []byte("binding/")

// Badger stores bindings as JSON values in an embedded badger database.
// Entries carry a native TTL when ttl > 0.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, ttl time.Duration) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func bindingKey(code string) []byte {
	return append(append([]byte{}, bindingPrefix...), code...)
}

func (s *Badger) Create(_ context.Context, b *models.MediaBinding) error {
	val, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := bindingKey(b.Code)
		if _, err := txn.Get(key); err == nil {
			return ErrCodeTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		e := badger.NewEntry(key, val)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	// A concurrent transaction wrote the same key first.
	if errors.Is(err, badger.ErrConflict) {
		return ErrCodeTaken
	}
	return err
}

func (s *Badger) Get(_ context.Context, code string) (*models.MediaBinding, error) {
	var b models.MediaBinding
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bindingKey(code))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &b)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return &b, nil
}

func (s *Badger) Delete(_ context.Context, code string) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := bindingKey(code)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another consumer deleted it in the meantime.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return deleted, nil
}

func (s *Badger) DeleteIfCreatedAt(_ context.Context, code string, createdAt time.Time) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := bindingKey(code)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var b models.MediaBinding
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &b) }); err != nil {
			return err
		}
		if !b.CreatedAt.Equal(createdAt) {
			return nil
		}
		deleted = true
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return deleted, nil
}

func (s *Badger) scan(fn func(b *models.MediaBinding)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = bindingPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var b models.MediaBinding
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			})
			if err != nil {
				return err
			}
			fn(&b)
		}
		return nil
	})
}

func (s *Badger) List(_ context.Context, limit int, createdAfter time.Time) ([]*models.MediaBinding, error) {
	var out []*models.MediaBinding
	err := s.scan(func(b *models.MediaBinding) {
		if createdAfter.IsZero() || b.CreatedAt.After(createdAfter) {
			out = append(out, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Badger) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var stale [][]byte
	err := s.scan(func(b *models.MediaBinding) {
		if !b.CreatedAt.After(cutoff) {
			stale = append(stale, bindingKey(b.Code))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scan bindings: %w", err)
	}
	if err := s.deleteKeys(stale); err != nil {
		return 0, fmt.Errorf("sweep bindings: %w", err)
	}
	return int64(len(stale)), nil
}

func (s *Badger) Clear(_ context.Context) error {
	var keys [][]byte
	err := s.scan(func(b *models.MediaBinding) {
		keys = append(keys, bindingKey(b.Code))
	})
	if err == nil {
		err = s.deleteKeys(keys)
	}
	if err != nil {
		return fmt.Errorf("clear bindings: %w", err)
	}
	return nil
}

func (s *Badger) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Badger) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}
