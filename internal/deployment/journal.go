package deployment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/olorin-ai/investigation-engine/internal/ident"
)

// Journal persists one JSON document per deployment at
// <state_dir>/<deployment_id>.json. Writes
// are serialised per journal; periodic writes every FlushEvery Record calls
// amortise I/O (the number of log entries is not counted), and a final
// write is mandatory at any terminal transition.
type Journal struct {
	dir string
	// FlushEvery is the number of Record calls between periodic writes.
	// Zero writes on every Record call.
	FlushEvery int

	mu         sync.Mutex
	sinceFlush map[ident.DeploymentID]int
}

// NewJournal constructs a Journal rooted at dir, creating it if needed.
func NewJournal(dir string, flushEvery int) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("deployment: create state dir: %w", err)
	}
	return &Journal{dir: dir, FlushEvery: flushEvery, sinceFlush: make(map[ident.DeploymentID]int)}, nil
}

func (j *Journal) path(id ident.DeploymentID) string {
	return filepath.Join(j.dir, string(id)+".json")
}

// Write persists state unconditionally. Used at creation and at every
// terminal transition.
func (j *Journal) Write(state *DeploymentState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeLocked(state)
}

func (j *Journal) writeLocked(state *DeploymentState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("deployment: marshal state: %w", err)
	}
	tmp := j.path(state.DeploymentID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("deployment: write state: %w", err)
	}
	if err := os.Rename(tmp, j.path(state.DeploymentID)); err != nil {
		return fmt.Errorf("deployment: rename state: %w", err)
	}
	j.sinceFlush[state.DeploymentID] = 0
	return nil
}

// Record persists state only on every FlushEvery-th call since the last
// write, amortising journal I/O on chatty deployments.
func (j *Journal) Record(state *DeploymentState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sinceFlush[state.DeploymentID]++
	if j.FlushEvery > 0 && j.sinceFlush[state.DeploymentID] < j.FlushEvery {
		return nil
	}
	return j.writeLocked(state)
}

// Load reads one deployment's state back from disk.
func (j *Journal) Load(id ident.DeploymentID) (*DeploymentState, error) {
	data, err := os.ReadFile(j.path(id))
	if err != nil {
		return nil, fmt.Errorf("deployment: read state %s: %w", id, err)
	}
	var state DeploymentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("deployment: decode state %s: %w", id, err)
	}
	return &state, nil
}

// List returns every persisted deployment id, sorted.
func (j *Journal) List() ([]ident.DeploymentID, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("deployment: list state dir: %w", err)
	}
	var ids []ident.DeploymentID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, ident.DeploymentID(strings.TrimSuffix(name, ".json")))
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

// Remove deletes one deployment's journal file.
func (j *Journal) Remove(id ident.DeploymentID) error {
	if err := os.Remove(j.path(id)); err != nil {
		return fmt.Errorf("deployment: remove state %s: %w", id, err)
	}
	return nil
}
