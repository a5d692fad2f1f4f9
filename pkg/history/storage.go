package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	DefaultStorageFileName = ".sol-swap-history.json"

	lockTimeout    = 10 * time.Second
	lockRetryDelay = 20 * time.Millisecond
)

// Storage handles persistence of trade records. Several processes may share
// one file: every write re-reads it under an advisory lock.
type Storage struct {
	filePath string
	lock     *flock.Flock
	mu       sync.RWMutex
	records  map[string]*Record
}

// fileFormat represents the JSON structure for storage
type fileFormat struct {
	Records map[string]*Record `json:"records"`
}

// NewStorage creates a new storage instance
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &Storage{
		filePath: filePath,
		lock:     flock.New(filePath + ".lock"),
		records:  make(map[string]*Record),
	}

	if err := storage.load(); err != nil {
		// a missing file is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	return storage, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked()
}

// readLocked replaces the in-memory records with the file contents. Callers
// hold s.mu.
func (s *Storage) readLocked() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var stored fileFormat
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	s.records = stored.Records
	if s.records == nil {
		s.records = make(map[string]*Record)
	}

	return nil
}

// mutate runs fn against the current file contents while holding the file
// lock, then writes the result. Records written by other processes since the
// last read are kept.
func (s *Storage) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock history file: %w", err)
	}
	if !locked {
		return errors.New("failed to lock history file: timed out")
	}
	defer s.lock.Unlock()

	if err := s.readLocked(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reload history: %w", err)
	}

	if err := fn(); err != nil {
		return err
	}
	return s.saveLocked()
}

// saveLocked writes all records to disk. Callers hold s.mu and the file lock.
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Create adds a new record
func (s *Storage) Create(rec *Record) error {
	return s.mutate(func() error {
		if _, exists := s.records[rec.ID]; exists {
			return fmt.Errorf("record '%s' already exists", rec.ID)
		}

		stored := *rec
		s.records[rec.ID] = &stored
		return nil
	})
}

// Update applies fn to the stored record and persists it
func (s *Storage) Update(id string, fn func(*Record) error) (*Record, error) {
	var out Record
	err := s.mutate(func() error {
		rec, exists := s.records[id]
		if !exists {
			return fmt.Errorf("record '%s' not found", id)
		}

		updated := *rec
		if err := fn(&updated); err != nil {
			return err
		}
		s.records[id] = &updated
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get retrieves a copy of a record by id
func (s *Storage) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("record '%s' not found", id)
	}

	out := *rec
	return &out, nil
}

// Filter returns copies of the records matching keep, newest first
func (s *Storage) Filter(keep func(*Record) bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if keep == nil || keep(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.After(out[j].Created)
	})
	return out
}

// Count returns the total number of records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// GetFilePath returns the storage file path
func (s *Storage) GetFilePath() string {
	return s.filePath
}
