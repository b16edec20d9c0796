package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

// SnapshotSource lists every transaction the dashboards aggregate
type SnapshotSource interface {
	FetchTransactions(ctx context.Context) ([]model.RawTransaction, error)
}

// Snapshot is a point-in-time copy of the aggregated dashboard data
type Snapshot struct {
	Agents    []model.AgentGroups          `json:"agents"`
	Warnings  []model.DataIntegrityWarning `json:"warnings,omitempty"`
	FetchedAt time.Time                    `json:"fetchedAt"`
	Error     string                       `json:"error,omitempty"`
}

// Groups returns every group across agents
func (s Snapshot) Groups() []*model.TransactionGroup {
	var out []*model.TransactionGroup
	for _, a := range s.Agents {
		out = append(out, a.Groups...)
	}
	return out
}

// Files returns every file across groups
func (s Snapshot) Files() []model.FileRecord {
	var out []model.FileRecord
	for _, g := range s.Groups() {
		out = append(out, g.Files...)
	}
	return out
}

// SnapshotStore holds the latest aggregation in memory. Mutations patch
// individual groups; a refresh replaces everything.
type SnapshotStore struct {
	mu        sync.RWMutex
	groups    map[string]*model.TransactionGroup
	warnings  []model.DataIntegrityWarning
	fetchedAt time.Time
	lastErr   string
}

var (
	globalStore *SnapshotStore
	storeOnce   sync.Once
)

// InitSnapshotStore initializes the global snapshot store
func InitSnapshotStore() {
	storeOnce.Do(func() {
		globalStore = NewSnapshotStore()
		slog.Info("snapshot store initialized")
	})
}

// GetSnapshotStore returns the global snapshot store
func GetSnapshotStore() *SnapshotStore {
	if globalStore == nil {
		InitSnapshotStore()
	}
	return globalStore
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{groups: make(map[string]*model.TransactionGroup)}
}

// Replace swaps in a freshly grouped result
func (s *SnapshotStore) Replace(result GroupingResult, at time.Time) {
	groups := make(map[string]*model.TransactionGroup)
	for _, g := range result.Groups() {
		groups[g.ID] = g.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
	s.warnings = append([]model.DataIntegrityWarning(nil), result.Warnings...)
	s.fetchedAt = at
	s.lastErr = ""
}

// Refresh re-fetches from src. On failure the previous data stays in place
// and the error is recorded for display.
func (s *SnapshotStore) Refresh(ctx context.Context, src SnapshotSource) error {
	items, err := src.FetchTransactions(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = "Unable to load contracts. Please refresh, and if the problem continues contact support."
		s.mu.Unlock()
		slog.Error("snapshot refresh failed", "error", err)
		return err
	}
	result := GroupTransactions(items)
	s.Replace(result, time.Now())
	slog.Info("snapshot refreshed",
		"transactions", len(items),
		"agents", len(result.Agents),
		"warnings", len(result.Warnings),
	)
	return nil
}

// Snapshot returns a deep copy of the current state in display order.
// Groups whose files were all removed are hidden.
func (s *SnapshotStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAgent := make(map[string][]*model.TransactionGroup)
	for _, g := range s.groups {
		if len(g.Files) == 0 {
			continue
		}
		byAgent[g.Agent] = append(byAgent[g.Agent], g.Clone())
	}
	agents := make([]string, 0, len(byAgent))
	for a := range byAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	snap := Snapshot{
		Agents:    make([]model.AgentGroups, 0, len(agents)),
		Warnings:  append([]model.DataIntegrityWarning(nil), s.warnings...),
		FetchedAt: s.fetchedAt,
		Error:     s.lastErr,
	}
	for _, a := range agents {
		groups := byAgent[a]
		SortGroups(groups)
		snap.Agents = append(snap.Agents, model.AgentGroups{Agent: a, Groups: groups})
	}
	return snap
}

// Group returns a copy of the group with id
func (s *SnapshotStore) Group(id string) (*model.TransactionGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok || len(g.Files) == 0 {
		return nil, false
	}
	return g.Clone(), true
}

// GroupByFile returns a copy of the group holding key
func (s *SnapshotStore) GroupByFile(key string) (*model.TransactionGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.HasFile(key) {
			return g.Clone(), true
		}
	}
	return nil, false
}

// Patch applies fn to each listed group and returns their prior state for
// Restore. Unknown IDs are skipped.
func (s *SnapshotStore) Patch(ids []string, fn func(*model.TransactionGroup)) []*model.TransactionGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := make([]*model.TransactionGroup, 0, len(ids))
	for _, id := range ids {
		g, ok := s.groups[id]
		if !ok {
			continue
		}
		prior = append(prior, g.Clone())
		fn(g)
	}
	return prior
}

// Restore puts groups back exactly as given
func (s *SnapshotStore) Restore(groups []*model.TransactionGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range groups {
		s.groups[g.ID] = g.Clone()
	}
}

// FetchedAt returns when the data was last replaced
func (s *SnapshotStore) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Count returns the number of visible groups
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, g := range s.groups {
		if len(g.Files) > 0 {
			n++
		}
	}
	return n
}
