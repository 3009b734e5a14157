package storage

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"volley/internal/runner"
)

const (
	// BucketRuns maps a big-endian sequence number to a JSON HistoryItem,
	// so cursor order is insertion order.
	BucketRuns = "runs"
	// BucketIndex maps a run id to its sequence key in BucketRuns.
	BucketIndex = "index"
)

// BoltStore keeps history in a bbolt database file.
type BoltStore struct {
	db    *bbolt.DB
	limit int
}

func NewBoltStore(path string, limit int) (*BoltStore, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(BucketIndex))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, limit: limit}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(sum runner.Summary) error {
	item := NewHistoryItem(sum)
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		index := tx.Bucket([]byte(BucketIndex))

		if old := index.Get([]byte(item.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}

		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		if err := index.Put([]byte(item.ID), key); err != nil {
			return err
		}

		return s.trim(runs, index)
	})
}

// trim drops the oldest entries beyond the limit.
func (s *BoltStore) trim(runs, index *bbolt.Bucket) error {
	var keys [][]byte

	c := runs.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	excess := len(keys) - s.limit
	if excess <= 0 {
		return nil
	}

	stale := make(map[string]bool, excess)
	for _, k := range keys[:excess] {
		if err := runs.Delete(k); err != nil {
			return err
		}
		stale[string(k)] = true
	}

	var ids [][]byte
	ic := index.Cursor()
	for id, key := ic.First(); id != nil; id, key = ic.Next() {
		if stale[string(key)] {
			ids = append(ids, append([]byte(nil), id...))
		}
	}
	for _, id := range ids {
		if err := index.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// List returns items newest first.
func (s *BoltStore) List() ([]HistoryItem, error) {
	items := []HistoryItem{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *BoltStore) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(BucketIndex)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(BucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(BucketIndex))
		key := index.Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		if err := tx.Bucket([]byte(BucketRuns)).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketIndex} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
