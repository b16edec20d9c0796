package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

type fakeSource struct {
	items []model.RawTransaction
	err   error
	calls int
}

func (f *fakeSource) FetchTransactions(ctx context.Context) ([]model.RawTransaction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func newTestStore(t *testing.T, items ...model.RawTransaction) *SnapshotStore {
	t.Helper()
	store := NewSnapshotStore()
	if err := store.Refresh(context.Background(), &fakeSource{items: items}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return store
}

func TestSnapshotStoreRefresh(t *testing.T) {
	store := newTestStore(t,
		purchaseTx("Jane-Doe", "c1", mainSt, model.StageUploaded, at(1), "Contract.pdf", "ALTA.pdf"),
		purchaseTx("John-Smith", "c2", oakSt, model.StageClosed, at(2), "Contract.pdf"),
	)

	if store.Count() != 2 {
		t.Errorf("Expected 2 groups, got %d", store.Count())
	}
	if store.FetchedAt().IsZero() {
		t.Error("Expected fetch time to be set")
	}

	snap := store.Snapshot()
	if len(snap.Agents) != 2 || snap.Agents[0].Agent != "Jane-Doe" {
		t.Errorf("Unexpected agents %+v", snap.Agents)
	}
	if len(snap.Files()) != 3 {
		t.Errorf("Expected 3 files, got %d", len(snap.Files()))
	}
	if snap.Error != "" {
		t.Errorf("Expected no error, got %q", snap.Error)
	}
}

func TestSnapshotStoreRefreshFailureKeepsData(t *testing.T) {
	store := newTestStore(t, purchaseTx("Jane-Doe", "c1", mainSt, model.StageUploaded, at(1), "Contract.pdf"))
	fetched := store.FetchedAt()

	src := &fakeSource{err: errors.New("connection refused")}
	if err := store.Refresh(context.Background(), src); err == nil {
		t.Fatal("Expected refresh error")
	}

	snap := store.Snapshot()
	if snap.Error == "" {
		t.Error("Expected a displayable error")
	}
	if len(snap.Groups()) != 1 {
		t.Errorf("Expected previous data to stay, got %d groups", len(snap.Groups()))
	}
	if !store.FetchedAt().Equal(fetched) {
		t.Error("Expected fetch time unchanged after failure")
	}

	if err := store.Refresh(context.Background(), &fakeSource{}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if store.Snapshot().Error != "" {
		t.Error("Expected a successful refresh to clear the error")
	}
}

func TestSnapshotStoreGroupReturnsCopy(t *testing.T) {
	store := newTestStore(t, purchaseTx("Jane-Doe", "c1", mainSt, model.StageUploaded, at(1), "Contract.pdf"))

	g, ok := store.Group("c1")
	if !ok {
		t.Fatal("Expected group c1")
	}
	*g.Stage = model.StageClosed
	g.Files = nil

	again, _ := store.Group("c1")
	if *again.Stage != model.StageUploaded || len(again.Files) != 1 {
		t.Error("Expected store to be unaffected by edits to a returned group")
	}

	if _, ok := store.Group("missing"); ok {
		t.Error("Expected missing group to be absent")
	}
	if g, ok := store.GroupByFile("Jane-Doe/c1/Contract.pdf"); !ok || g.ID != "c1" {
		t.Error("Expected lookup by file key")
	}
	if _, ok := store.GroupByFile("nope"); ok {
		t.Error("Expected unknown key to be absent")
	}
}

func TestSnapshotStorePatchAndRestore(t *testing.T) {
	store := newTestStore(t,
		purchaseTx("Jane-Doe", "c1", mainSt, model.StageUploaded, at(1), "Contract.pdf"),
		purchaseTx("Jane-Doe", "c2", oakSt, model.StageUploaded, at(2), "Contract.pdf"),
	)

	prior := store.Patch([]string{"c1", "missing"}, func(g *model.TransactionGroup) {
		g.Stage = model.StageEMDCollected.Ptr()
		g.LastModified = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	})
	if len(prior) != 1 {
		t.Fatalf("Expected prior state for one group, got %d", len(prior))
	}

	snap := store.Snapshot()
	if snap.Agents[0].Groups[0].ID != "c1" {
		t.Error("Expected patched group to sort first")
	}
	if g, _ := store.Group("c1"); *g.Stage != model.StageEMDCollected {
		t.Errorf("Expected patched stage, got %s", *g.Stage)
	}

	store.Restore(prior)
	if g, _ := store.Group("c1"); *g.Stage != model.StageUploaded {
		t.Errorf("Expected restored stage, got %s", *g.Stage)
	}
}

func TestSnapshotStoreHidesEmptyGroups(t *testing.T) {
	store := newTestStore(t, purchaseTx("Jane-Doe", "c1", mainSt, model.StageUploaded, at(1), "Contract.pdf"))

	store.Patch([]string{"c1"}, func(g *model.TransactionGroup) { g.Files = nil })

	if store.Count() != 0 {
		t.Errorf("Expected emptied group hidden, got count %d", store.Count())
	}
	if _, ok := store.Group("c1"); ok {
		t.Error("Expected emptied group hidden from lookups")
	}
	if len(store.Snapshot().Agents) != 0 {
		t.Error("Expected agent without groups to disappear")
	}
}

func TestGetSnapshotStore(t *testing.T) {
	InitSnapshotStore()
	if GetSnapshotStore() == nil {
		t.Fatal("Expected non-nil store")
	}
	if GetSnapshotStore() != GetSnapshotStore() {
		t.Error("Expected a single global store")
	}
}
