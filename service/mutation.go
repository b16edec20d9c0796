package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
)

// MutationError is a mutation the collaborator rejected or never received.
// The optimistic change has been rolled back to Reverted.
type MutationError struct {
	Op       string
	Target   string
	Reason   error
	Reverted []*model.TransactionGroup
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Target, e.Reason)
}

func (e *MutationError) Unwrap() error { return e.Reason }

// Mutator applies stage advances and deletions as two-phase commits against
// the snapshot store: patch locally, call the backend, then re-fetch on
// success or restore the prior groups on failure. At most one mutation per
// target runs at a time.
type Mutator struct {
	store   *SnapshotStore
	source  SnapshotSource
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewMutator(store *SnapshotStore, source SnapshotSource, backend Backend) *Mutator {
	return &Mutator{
		store:    store,
		source:   source,
		backend:  backend,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// acquire claims target or reports ErrMutationInFlight
func (m *Mutator) acquire(target string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[target]; busy {
		return nil, model.ErrMutationInFlight
	}
	m.inFlight[target] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inFlight, target)
		m.mu.Unlock()
	}, nil
}

// Busy reports whether a mutation on target is running
func (m *Mutator) Busy(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.inFlight[target]
	return busy
}

// Targets for the in-flight guard
func StageTarget(groupID string) string { return "stage:" + groupID }
func FileTarget(key string) string      { return "file:" + key }

const BulkTarget = "bulk"

// AdvanceStage moves a purchase to its next stage using the raw payload for
// target. A disbursement submitted while already at COMMISSION amends the
// packet without moving the stage.
func (m *Mutator) AdvanceStage(ctx context.Context, groupID string, target model.Stage, raw json.RawMessage, actor Actor) (*model.TransactionGroup, error) {
	release, err := m.acquire(StageTarget(groupID))
	if err != nil {
		return nil, err
	}
	defer release()

	g, ok := m.store.Group(groupID)
	if !ok || !canSee(actor, g) {
		return nil, model.ErrGroupNotFound
	}
	if g.Type == model.TypeRental || g.Stage == nil {
		return nil, model.ErrNotApplicableToRental
	}

	data, err := model.DecodeStageData(target, raw)
	if err != nil {
		return nil, err
	}

	now := m.now()
	next := *g.Stage
	if d, ok := data.(model.DisbursementData); ok && *g.Stage == model.StageCommission {
		if err := AmendDisbursement(g, d, actor); err != nil {
			return nil, err
		}
	} else {
		if next, err = Advance(g, data, actor, now); err != nil {
			return nil, err
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage data: %w", err)
	}
	var extra []model.FileRecord
	if c, ok := data.(model.ClosingData); ok {
		extra = SupportingFiles(g, c, now)
	}

	prior := m.store.Patch([]string{g.ID}, func(pg *model.TransactionGroup) {
		pg.Stage = next.Ptr()
		pg.StageData = encoded
		pg.LastModified = now
		for _, f := range extra {
			if !pg.HasFile(f.Key) {
				pg.Files = append(pg.Files, f)
			}
		}
	})

	contractID := g.ContractID
	if contractID == "" {
		contractID = g.ID
	}
	req := model.StageAdvanceRequest{ContractID: contractID, Stage: next, StageData: data}
	if err := m.backend.AdvanceStage(WithAgent(ctx, g.Agent), req, uuid.NewString()); err != nil {
		m.store.Restore(prior)
		logger.Warn(ctx, "stage advance reverted", "group_id", g.ID, "stage", next, "error", err)
		return nil, &MutationError{Op: "advance stage", Target: g.ID, Reason: err, Reverted: prior}
	}
	logger.Info(ctx, "stage advanced", "group_id", g.ID, "from", *g.Stage, "to", next)

	m.reconcile(ctx)
	if updated, ok := m.store.Group(g.ID); ok {
		return updated, nil
	}
	// The backend may rekey the group; the optimistic copy is still correct.
	g.Stage = next.Ptr()
	g.StageData = encoded
	return g, nil
}

// DeleteFile removes a single file by key
func (m *Mutator) DeleteFile(ctx context.Context, key string, actor Actor) error {
	release, err := m.acquire(FileTarget(key))
	if err != nil {
		return err
	}
	defer release()

	g, ok := m.store.GroupByFile(key)
	if !ok || !canSee(actor, g) {
		return model.ErrGroupNotFound
	}

	prior := m.store.Patch([]string{g.ID}, func(pg *model.TransactionGroup) {
		pg.Files = withoutKeys(pg.Files, map[string]struct{}{key: {}})
	})
	if err := m.backend.DeleteFile(ctx, key); err != nil {
		m.store.Restore(prior)
		logger.Warn(ctx, "file delete reverted", "key", key, "error", err)
		return &MutationError{Op: "delete file", Target: key, Reason: err, Reverted: prior}
	}
	logger.Info(ctx, "file deleted", "key", key, "group_id", g.ID)
	m.reconcile(ctx)
	return nil
}

// BulkDelete removes every file older than years once gate allows it.
// It returns the number of files removed from the snapshot.
func (m *Mutator) BulkDelete(ctx context.Context, years float64, gate *ConfirmGate, actor Actor) (int, error) {
	if !actor.Admin {
		return 0, model.ErrAdminOnly
	}
	release, err := m.acquire(BulkTarget)
	if err != nil {
		return 0, err
	}
	defer release()

	now := m.now()
	if err := gate.Begin(now); err != nil {
		return 0, err
	}
	defer gate.Finish()

	snap := m.store.Snapshot()
	eligible := Eligible(snap.Files(), years, now)
	keys := make(map[string]struct{}, len(eligible))
	for _, f := range eligible {
		keys[f.Key] = struct{}{}
	}
	var ids []string
	for _, g := range snap.Groups() {
		for _, f := range g.Files {
			if _, ok := keys[f.Key]; ok {
				ids = append(ids, g.ID)
				break
			}
		}
	}

	prior := m.store.Patch(ids, func(pg *model.TransactionGroup) {
		pg.Files = withoutKeys(pg.Files, keys)
	})
	if err := m.backend.BulkDelete(ctx, years); err != nil {
		m.store.Restore(prior)
		logger.Warn(ctx, "bulk delete reverted", "years", years, "files", len(keys), "error", err)
		return 0, &MutationError{Op: "bulk delete", Target: BulkTarget, Reason: err, Reverted: prior}
	}
	logger.Info(ctx, "bulk delete submitted", "years", years, "files", len(keys))
	m.reconcile(ctx)
	return len(keys), nil
}

// reconcile replaces optimistic state with the collaborator's. A failed
// re-fetch keeps the optimistic state, which the backend already accepted.
func (m *Mutator) reconcile(ctx context.Context) {
	if m.source == nil {
		return
	}
	if err := m.store.Refresh(ctx, m.source); err != nil {
		slog.Warn("reconcile after mutation failed", "error", err)
	}
}

func withoutKeys(files []model.FileRecord, keys map[string]struct{}) []model.FileRecord {
	out := files[:0:0]
	for _, f := range files {
		if _, drop := keys[f.Key]; !drop {
			out = append(out, f)
		}
	}
	return out
}

// canSee reports whether actor may act on g: admins on anything, agents on
// their own transactions
func canSee(actor Actor, g *model.TransactionGroup) bool {
	return actor.Admin || (actor.Agent != "" && actor.Agent == g.Agent)
}

// IsClientError reports whether err is the caller's fault rather than a
// failed round trip
func IsClientError(err error) bool {
	var ve *model.ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, model.ErrNotApplicableToRental) ||
		errors.Is(err, model.ErrNoFurtherStage) ||
		errors.Is(err, model.ErrDisbursementBeforeClose) ||
		errors.Is(err, model.ErrAltaNotUploaded)
}
