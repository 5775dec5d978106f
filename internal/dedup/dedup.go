// Package dedup tracks which message IDs have already been forwarded.
//
// IDs are persisted one per line in an append-only file so state survives
// restarts. The file is small (one short line per forwarded message) and is
// rewritten never; a crash can at worst lose the last appended ID, which only
// causes one duplicate forward.
package dedup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Tracker is a persistent set of forwarded message IDs. Safe for concurrent
// use.
type Tracker struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	path string
}

// NewTracker loads the tracker state from path, creating parent directories
// as needed. A missing file means an empty state. Blank lines are skipped, so
// a hand-edited file stays loadable.
func NewTracker(path string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	t := &Tracker{
		ids:  make(map[string]struct{}),
		path: path,
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			t.ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

// Has reports whether id is already tracked.
func (t *Tracker) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// SeenIDs returns a snapshot of all tracked IDs.
func (t *Tracker) SeenIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[string]struct{}, len(t.ids))
	for id := range t.ids {
		snapshot[id] = struct{}{}
	}
	return snapshot
}

// MarkSeen records id and appends it to the state file. Marking an already
// tracked ID is a no-op.
func (t *Tracker) MarkSeen(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ids[id]; ok {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open state file for append: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, id); err != nil {
		return fmt.Errorf("append state file: %w", err)
	}

	t.ids[id] = struct{}{}
	return nil
}

// Count returns the number of tracked IDs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
