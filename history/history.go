package history

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	perrors "wooden_dutch/errors"
	"wooden_dutch/fsutil"
)

// Capacities of the two rotation histories.
const (
	TopicsCap  = 50
	AuthorsCap = 10
)

// Backend stores a whole list at once.
type Backend interface {
	Load() ([]string, error)
	Save(items []string) error
}

// FileBackend keeps a list as a pretty-printed JSON array.
type FileBackend struct {
	Path string
}

// Load returns the stored list. A missing file is an empty list.
func (f FileBackend) Load() ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return items, nil
}

// Save writes items through a temp file and rename.
func (f FileBackend) Save(items []string) error {
	if items == nil {
		items = []string{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.Path, data, 0o644)
}

// Queue is an append-only bounded list: only the most recent Cap items are kept.
// It does not lock across processes; concurrent runs may lose entries.
type Queue struct {
	name    string
	backend Backend
	cap     int
}

// NewQueue wraps backend with a capacity.
func NewQueue(name string, backend Backend, capacity int) *Queue {
	return &Queue{name: name, backend: backend, cap: capacity}
}

// NewFileQueue is NewQueue over a JSON file.
func NewFileQueue(name, path string, capacity int) *Queue {
	return NewQueue(name, FileBackend{Path: path}, capacity)
}

// Items returns the stored list, oldest first. Unreadable history is
// treated as empty along with the read error for the caller to log.
func (q *Queue) Items() ([]string, error) {
	items, err := q.backend.Load()
	if err != nil {
		return []string{}, err
	}
	if items == nil {
		items = []string{}
	}
	return trim(items, q.cap), nil
}

// Append reloads the list, appends item, trims to capacity and persists.
// Write failures are PERSISTENCE errors; an unreadable file restarts the list.
func (q *Queue) Append(item string) error {
	items, _ := q.backend.Load()
	items = trim(append(items, item), q.cap)
	if err := q.backend.Save(items); err != nil {
		return perrors.NewPersistence(q.name+" history", err)
	}
	return nil
}

func trim(items []string, capacity int) []string {
	if capacity > 0 && len(items) > capacity {
		return append([]string(nil), items[len(items)-capacity:]...)
	}
	return items
}
