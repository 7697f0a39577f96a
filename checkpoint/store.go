// checkpoint/store.go
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no checkpoint exists for a model id.
var ErrNotFound = errors.New("checkpoint: not found")

// ErrModelID is returned for ids that cannot be used as a key segment.
var ErrModelID = errors.New("checkpoint: invalid model id")

// checkID rejects ids that would make one model's keys a prefix of another's.
func checkID(id string) error {
	if id == "" || strings.ContainsRune(id, '/') {
		return fmt.Errorf("%w: %q", ErrModelID, id)
	}
	return nil
}

// Store keeps checkpoint blocks in BadgerDB. Each save writes the block under
// a versioned key and moves the model's "latest" pointer to it.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func latestKey(id string) []byte { return []byte("model/" + id + "/latest") }

func versionPrefix(id string) []byte { return []byte("model/" + id + "/v/") }

func versionKey(id string, v uint64) []byte {
	return []byte(fmt.Sprintf("model/%s/v/%020d", id, v))
}

// Save assigns b the next version for its model id and stores it.
func (s *Store) Save(b *Block) error {
	if err := checkID(b.ModelID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		next := uint64(1)
		item, err := txn.Get(latestKey(b.ModelID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				v, perr := strconv.ParseUint(string(val), 10, 64)
				next = v + 1
				return perr
			}); err != nil {
				return fmt.Errorf("read latest version: %w", err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		b.Version = next
		data, err := b.MarshalBinary()
		if err != nil {
			return err
		}
		if err := txn.Set(versionKey(b.ModelID, next), data); err != nil {
			return err
		}
		return txn.Set(latestKey(b.ModelID), []byte(strconv.FormatUint(next, 10)))
	})
}

// Load returns the latest block saved for id.
func (s *Store) Load(id string) (*Block, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var b *Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var v uint64
		if err := item.Value(func(val []byte) error {
			v, err = strconv.ParseUint(string(val), 10, 64)
			return err
		}); err != nil {
			return err
		}
		b, err = loadVersion(txn, id, v)
		return err
	})
	return b, err
}

// LoadVersion returns a specific saved version of id.
func (s *Store) LoadVersion(id string, v uint64) (*Block, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var b *Block
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = loadVersion(txn, id, v)
		return err
	})
	return b, err
}

func loadVersion(txn *badger.Txn, id string, v uint64) (*Block, error) {
	item, err := txn.Get(versionKey(id, v))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s version %d", ErrNotFound, id, v)
	}
	if err != nil {
		return nil, err
	}
	b := new(Block)
	if err := item.Value(b.UnmarshalBinary); err != nil {
		return nil, fmt.Errorf("decode %s version %d: %w", id, v, err)
	}
	return b, nil
}

// Versions lists the saved versions of id in ascending order.
func (s *Store) Versions(id string) ([]uint64, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var out []uint64
	prefix := versionPrefix(id)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			v, err := strconv.ParseUint(strings.TrimPrefix(key, string(prefix)), 10, 64)
			if err != nil {
				return fmt.Errorf("bad version key %q: %w", key, err)
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}
