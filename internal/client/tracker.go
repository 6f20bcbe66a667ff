package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Tracker remembers which due reminders have been announced.
type Tracker interface {
	IsNew(id int64) bool
	MarkSeen(id int64)
}

// MemoryTracker keeps announced ids for the lifetime of the process.
type MemoryTracker struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

// NewMemoryTracker returns an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[int64]struct{})}
}

func (t *MemoryTracker) IsNew(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return !ok
}

func (t *MemoryTracker) MarkSeen(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[id] = struct{}{}
}

// Len reports how many ids have been seen.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// FileTracker is a MemoryTracker persisted as a JSON array so announcements
// are not repeated after a restart.
type FileTracker struct {
	*MemoryTracker
	path string
	// OnError receives persistence failures; the in-memory state stays authoritative.
	OnError func(error)
}

// NewFileTracker loads previously announced ids from path, if it exists.
func NewFileTracker(path string) (*FileTracker, error) {
	t := &FileTracker{MemoryTracker: NewMemoryTracker(), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read announced ids: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse announced ids %s: %w", path, err)
	}
	for _, id := range ids {
		t.seen[id] = struct{}{}
	}
	return t, nil
}

// MarkSeen records id and rewrites the file.
func (t *FileTracker) MarkSeen(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[id]; ok {
		return
	}
	t.seen[id] = struct{}{}

	if err := t.save(); err != nil && t.OnError != nil {
		t.OnError(err)
	}
}

// save must be called with t.mu held.
func (t *FileTracker) save() error {
	ids := make([]int64, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
