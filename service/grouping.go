package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

const (
	purchaseFallbackLabel = "Purchase Contract"
	rentalFallbackLabel   = "Rental"
)

// TaggedRecord is a normalized file with the transaction metadata the
// backend reported alongside it.
type TaggedRecord struct {
	Agent      string
	ContractID string
	Address    *model.Address
	Stage      model.Stage
	StageData  json.RawMessage
	UpdatedAt  time.Time
	File       model.FileRecord
}

// metaTime is the moment the record's transaction metadata was written
func (r *TaggedRecord) metaTime() time.Time {
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.File.LastModified
}

// newer orders records by metadata time, then key, so the pick is the same
// whatever order records arrive in.
func (r *TaggedRecord) newer(than *TaggedRecord) bool {
	if than == nil {
		return true
	}
	a, b := r.metaTime(), than.metaTime()
	if !a.Equal(b) {
		return a.After(b)
	}
	if r.File.Key != than.File.Key {
		return r.File.Key > than.File.Key
	}
	if r.ContractID != than.ContractID {
		return r.ContractID > than.ContractID
	}
	if r.Stage != than.Stage {
		return r.Stage.Index() > than.Stage.Index()
	}
	return supersedes(r.File, than.File)
}

// GroupingResult is the per-agent view of a snapshot
type GroupingResult struct {
	Agents   []model.AgentGroups          `json:"agents"`
	Warnings []model.DataIntegrityWarning `json:"warnings,omitempty"`
}

// Groups returns every group across agents in display order
func (r GroupingResult) Groups() []*model.TransactionGroup {
	var out []*model.TransactionGroup
	for _, a := range r.Agents {
		out = append(out, a.Groups...)
	}
	return out
}

// AgentNames returns the agents in display order
func (r GroupingResult) AgentNames() []string {
	names := make([]string, len(r.Agents))
	for i, a := range r.Agents {
		names[i] = a.Agent
	}
	return names
}

type groupState struct {
	key       string
	agent     string
	label     string
	txType    model.TransactionType
	files     map[string]model.FileRecord
	primary   *TaggedRecord // newest primary-contract record
	reported  *TaggedRecord // newest record carrying a valid stage
	latest    *TaggedRecord // newest record of any kind
	contracts map[string]struct{}
}

// Grouper folds tagged records into transaction groups. The zero value is
// not usable; call NewGrouper.
type Grouper struct {
	groups   map[string]*groupState
	warnings []model.DataIntegrityWarning
	warned   map[string]struct{}
}

func NewGrouper() *Grouper {
	return &Grouper{
		groups: make(map[string]*groupState),
		warned: make(map[string]struct{}),
	}
}

// Add merges records. Adding a file whose key is already in its group is a
// no-op for the file set.
func (g *Grouper) Add(records ...TaggedRecord) {
	for i := range records {
		rec := records[i]
		if strings.TrimSpace(rec.File.Key) == "" {
			g.warn(model.DataIntegrityWarning{Key: rec.File.Filename, Reason: "file has no storage key"})
			continue
		}
		if strings.TrimSpace(rec.Agent) == "" {
			g.warn(model.DataIntegrityWarning{Key: rec.File.Key, Reason: "no agent; bucketed under " + model.UnknownAgent})
			rec.Agent = model.UnknownAgent
		}
		rec.Agent = strings.TrimSpace(rec.Agent)

		key, label := groupKey(&rec)
		st, ok := g.groups[key]
		if !ok {
			st = &groupState{
				key:       key,
				agent:     rec.Agent,
				label:     label,
				txType:    rec.File.TransactionType,
				files:     make(map[string]model.FileRecord),
				contracts: make(map[string]struct{}),
			}
			g.groups[key] = st
		}
		st.merge(&rec)
	}
}

func (g *Grouper) warn(w model.DataIntegrityWarning) {
	id := w.Key + "\x00" + w.Reason
	if _, seen := g.warned[id]; seen {
		return
	}
	g.warned[id] = struct{}{}
	g.warnings = append(g.warnings, w)
	slog.Warn("data integrity warning", "key", w.Key, "reason", w.Reason)
}

func (st *groupState) merge(rec *TaggedRecord) {
	if existing, ok := st.files[rec.File.Key]; !ok || supersedes(rec.File, existing) {
		st.files[rec.File.Key] = rec.File
	}
	if rec.ContractID != "" {
		st.contracts[rec.ContractID] = struct{}{}
	}

	r := *rec
	if rec.newer(st.latest) {
		st.latest = &r
	}
	if st.txType != model.TypePurchase {
		return
	}
	if rec.Stage.Valid() && rec.newer(st.reported) {
		st.reported = &r
	}
	if rec.File.Role == model.RolePrimaryContract && rec.newer(st.primary) {
		st.primary = &r
	}
}

// groupKey returns the merge key and display label for a record.
// Purchases key on (agent, address label, PURCHASE); rentals on
// (agent, rental label). Records without an address never merge across
// transactions.
func groupKey(rec *TaggedRecord) (string, string) {
	label := rec.Address.Label()
	discriminator := ""
	if label == "" {
		discriminator = rec.ContractID
		if discriminator == "" {
			discriminator = path.Dir(rec.File.Key)
		}
	}

	switch rec.File.TransactionType {
	case model.TypeRental:
		if label == "" {
			label = rentalFallbackLabel
		}
		return strings.Join([]string{rec.Agent, string(model.TypeRental), strings.ToLower(label), discriminator}, "\x1f"), label
	default:
		if label == "" {
			label = purchaseFallbackLabel
		}
		return strings.Join([]string{rec.Agent, string(model.TypePurchase), strings.ToLower(label), discriminator}, "\x1f"), label
	}
}

// Groups builds the sorted result: agents ascending, groups newest first.
func (g *Grouper) Groups() GroupingResult {
	states := make([]*groupState, 0, len(g.groups))
	for _, st := range g.groups {
		if len(st.files) > 0 {
			states = append(states, st)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].key < states[j].key })

	// One contract may split into several groups, e.g. when its files
	// disagree on transaction type. The first key keeps the contract ID.
	byAgent := make(map[string][]*model.TransactionGroup)
	taken := make(map[string]struct{}, len(states))
	for _, st := range states {
		group := st.build()
		if _, dup := taken[group.ID]; dup {
			g.warn(model.DataIntegrityWarning{
				Key:    group.ID,
				Reason: "contract ID shared by more than one transaction group",
			})
			group.ID = group.ID + "-" + keyHash(st.key)
		}
		taken[group.ID] = struct{}{}
		byAgent[st.agent] = append(byAgent[st.agent], group)
	}

	agents := make([]string, 0, len(byAgent))
	for a := range byAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	result := GroupingResult{
		Agents:   make([]model.AgentGroups, 0, len(agents)),
		Warnings: append([]model.DataIntegrityWarning(nil), g.warnings...),
	}
	for _, a := range agents {
		groups := byAgent[a]
		SortGroups(groups)
		result.Agents = append(result.Agents, model.AgentGroups{Agent: a, Groups: groups})
	}
	sort.Slice(result.Warnings, func(i, j int) bool {
		if result.Warnings[i].Key != result.Warnings[j].Key {
			return result.Warnings[i].Key < result.Warnings[j].Key
		}
		return result.Warnings[i].Reason < result.Warnings[j].Reason
	})
	return result
}

// SortGroups orders groups by LastModified descending, then label and ID
func SortGroups(groups []*model.TransactionGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.ID < b.ID
	})
}

func (st *groupState) build() *model.TransactionGroup {
	files := make([]model.FileRecord, 0, len(st.files))
	var newestFile time.Time
	for _, f := range st.files {
		files = append(files, f)
		if f.LastModified.After(newestFile) {
			newestFile = f.LastModified
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })

	group := &model.TransactionGroup{
		Agent: st.agent,
		Label: st.label,
		Type:  st.txType,
		Files: files,
	}

	authority := st.latest
	if st.txType == model.TypePurchase {
		stage := model.StageUploaded
		switch {
		case st.primary != nil:
			authority = st.primary
			if st.primary.Stage.Valid() {
				stage = st.primary.Stage
			}
			group.LastModified = st.primary.metaTime()
		case st.reported != nil:
			stage = st.reported.Stage
			group.LastModified = newestOf(newestFile, st.latest.metaTime())
		default:
			group.LastModified = newestOf(newestFile, st.latest.metaTime())
		}
		group.Stage = stage.Ptr()
		if authority.StageData != nil && authority.Stage == stage {
			group.StageData = append(json.RawMessage(nil), authority.StageData...)
		}
	} else {
		group.LastModified = newestOf(newestFile, st.latest.metaTime())
	}

	if authority.Address != nil {
		a := *authority.Address
		group.Address = &a
		if l := a.Label(); l != "" {
			group.Label = l
		}
	} else if st.txType == model.TypeRental {
		for _, f := range files {
			if f.Role == model.RoleLease {
				group.Label = strings.TrimSuffix(f.DisplayName, path.Ext(f.DisplayName))
				break
			}
		}
	}
	group.ContractID = authority.ContractID
	if group.ContractID == "" {
		group.ContractID = smallest(st.contracts)
	}
	group.ID = group.ContractID
	if group.ID == "" {
		group.ID = keyHash(st.key)
	}
	return group
}

// supersedes orders two reports of the same key: newer wins, then URL,
// size and filename so the survivor never depends on arrival order.
func supersedes(a, b model.FileRecord) bool {
	if !a.LastModified.Equal(b.LastModified) {
		return a.LastModified.After(b.LastModified)
	}
	if a.URL != b.URL {
		return a.URL > b.URL
	}
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return a.Filename > b.Filename
}

func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

func newestOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func smallest(set map[string]struct{}) string {
	out := ""
	for k := range set {
		if out == "" || k < out {
			out = k
		}
	}
	return out
}

// TagTransactions normalizes every file of every raw transaction.
// Transactions without files produce no records.
func TagTransactions(items []model.RawTransaction) []TaggedRecord {
	var records []TaggedRecord
	for i := range items {
		tx := &items[i]
		if len(tx.Files) == 0 {
			slog.Debug("skipping transaction without files", "contract_id", tx.ContractID, "agent", tx.Agent)
			continue
		}
		for _, raw := range tx.Files {
			records = append(records, TaggedRecord{
				Agent:      tx.Agent,
				ContractID: tx.ContractID,
				Address:    tx.Address,
				Stage:      tx.Stage,
				StageData:  tx.StageData,
				UpdatedAt:  tx.Timestamp(),
				File:       NormalizeFile(raw, tx),
			})
		}
	}
	return records
}

// GroupTransactions normalizes and groups a backend snapshot
func GroupTransactions(items []model.RawTransaction) GroupingResult {
	g := NewGrouper()
	g.Add(TagTransactions(items)...)
	return g.Groups()
}
