package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"volley/internal/runner"
	"volley/internal/stats"
)

// DefaultLimit is how many finished runs are retained.
const DefaultLimit = 50

var ErrNotFound = errors.New("test history not found")

type HistoryItem struct {
	ID        string         `json:"id"`
	Config    runner.Config  `json:"config"`
	Stats     stats.Snapshot `json:"stats"`
	State     string         `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	EndTime   int64          `json:"endTime"`
	Duration  float64        `json:"duration"`
}

// NewHistoryItem converts a finished run summary into its stored form.
func NewHistoryItem(s runner.Summary) HistoryItem {
	return HistoryItem{
		ID:        s.ID,
		Config:    s.Config,
		Stats:     s.Stats,
		State:     s.State.String(),
		Timestamp: s.EndTime.UTC(),
		EndTime:   s.EndTime.UnixMilli(),
		Duration:  s.DurationSeconds,
	}
}

// HistoryStore keeps finished runs, newest first.
type HistoryStore interface {
	runner.HistorySink
	List() ([]HistoryItem, error)
	Get(id string) (*HistoryItem, error)
	Delete(id string) error
	Clear() error
	Close() error
}

// FileStore keeps history in one JSON file, rewritten on every change.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	limit    int
	items    []HistoryItem
}

func NewFileStore(path string, limit int) (*FileStore, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	s := &FileStore{
		filePath: path,
		limit:    limit,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) || len(data) == 0 {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.items); err != nil {
		return fmt.Errorf("decode %s: %w", s.filePath, err)
	}
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
	return nil
}

// persist must be called with mu held.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *FileStore) Save(sum runner.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Add to beginning
	s.items = append([]HistoryItem{NewHistoryItem(sum)}, s.items...)
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}

	return s.persist()
}

func (s *FileStore) List() ([]HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]HistoryItem, len(s.items))
	copy(res, s.items)
	return res, nil
}

func (s *FileStore) Get(id string) (*HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persist()
		}
	}
	return ErrNotFound
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []HistoryItem{}
	return s.persist()
}

func (s *FileStore) Close() error { return nil }

// Open returns the store for driver ("json" or "bolt").
func Open(driver, path string, limit int) (HistoryStore, error) {
	switch driver {
	case "", "json":
		return NewFileStore(path, limit)
	case "bolt":
		return NewBoltStore(path, limit)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
