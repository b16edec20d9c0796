package service

import (
	"sort"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

// Window labels, in fallback order
const (
	WindowThisMonth = "This month"
	Window60Days    = "Last 60 days"
	Window90Days    = "Last 90 days"
)

// DefaultLeaderboardSize is how many agents the activity summary ranks
const DefaultLeaderboardSize = 5

// AgentCount is one leaderboard row
type AgentCount struct {
	Agent string `json:"agent"`
	Count int    `json:"count"`
}

// Window is the dashboard's current-activity summary
type Window struct {
	Label       string                        `json:"label"`
	Total       int                           `json:"total"`
	PerAgent    map[string][]model.FileRecord `json:"perAgent"`
	Leaderboard []AgentCount                  `json:"leaderboard"`
}

// Flatten turns groups into (agent, file) pairs. Purchases contribute every
// file; rentals contribute one representative file.
func Flatten(groups []*model.TransactionGroup) []model.AgentFile {
	var pairs []model.AgentFile
	for _, g := range groups {
		if len(g.Files) == 0 {
			continue
		}
		if g.Type == model.TypeRental {
			pairs = append(pairs, model.AgentFile{Agent: g.Agent, File: representative(g)})
			continue
		}
		for _, f := range g.Files {
			pairs = append(pairs, model.AgentFile{Agent: g.Agent, File: f})
		}
	}
	return pairs
}

// representative is the lease when there is one, else the first file by key
func representative(g *model.TransactionGroup) model.FileRecord {
	first := g.Files[0]
	for _, f := range g.Files {
		if f.Role == model.RoleLease {
			return f
		}
		if f.Key < first.Key {
			first = f
		}
	}
	return first
}

// CurrentWindow picks the first non-empty window of this calendar month, the
// last 60 days and the last 90 days. When all are empty the 90 day window is
// returned with its own label.
func CurrentWindow(pairs []model.AgentFile, now time.Time, leaderboardSize int) Window {
	if leaderboardSize <= 0 {
		leaderboardSize = DefaultLeaderboardSize
	}

	label := WindowThisMonth
	chosen := filterPairs(pairs, func(t time.Time) bool { return sameMonth(t, now) })
	if len(chosen) == 0 {
		label = Window60Days
		chosen = filterPairs(pairs, since(now, 60))
	}
	if len(chosen) == 0 {
		label = Window90Days
		chosen = filterPairs(pairs, since(now, 90))
	}

	w := Window{
		Label:       label,
		Total:       len(chosen),
		PerAgent:    make(map[string][]model.FileRecord),
		Leaderboard: []AgentCount{},
	}
	counts := make(map[string]int)
	for _, p := range chosen {
		w.PerAgent[p.Agent] = append(w.PerAgent[p.Agent], p.File)
		counts[p.Agent]++
	}
	for agent, n := range counts {
		w.Leaderboard = append(w.Leaderboard, AgentCount{Agent: agent, Count: n})
	}
	sort.Slice(w.Leaderboard, func(i, j int) bool {
		a, b := w.Leaderboard[i], w.Leaderboard[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Agent < b.Agent
	})
	if len(w.Leaderboard) > leaderboardSize {
		w.Leaderboard = w.Leaderboard[:leaderboardSize]
	}
	return w
}

func filterPairs(pairs []model.AgentFile, keep func(time.Time) bool) []model.AgentFile {
	var out []model.AgentFile
	for _, p := range pairs {
		if keep(p.File.LastModified) {
			out = append(out, p)
		}
	}
	return out
}

func sameMonth(t, now time.Time) bool {
	t = t.In(now.Location())
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// since keeps times on or after now minus days
func since(now time.Time, days int) func(time.Time) bool {
	cutoff := now.AddDate(0, 0, -days)
	return func(t time.Time) bool { return !t.Before(cutoff) }
}

// SortNewestFirst returns a copy of pairs ordered by LastModified descending,
// ties broken by key
func SortNewestFirst(pairs []model.AgentFile) []model.AgentFile {
	out := append([]model.AgentFile(nil), pairs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].File, out[j].File
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		return a.Key < b.Key
	})
	return out
}

// AgentView selects which slice of an agent's own files the dashboard shows
type AgentView string

const (
	ViewRecent  AgentView = "recent"
	ViewMonth   AgentView = "month"
	ViewQuarter AgentView = "quarter"
	ViewYear    AgentView = "year"
	ViewOlder   AgentView = "older"
	ViewAll     AgentView = "all"
)

const recentCount = 3

// FilterByView applies an agent dashboard view. W-9s never show. Unknown
// views return every visible file.
func FilterByView(files []model.FileRecord, view AgentView, now time.Time, recent int) []model.FileRecord {
	if recent <= 0 {
		recent = recentCount
	}
	visible := make([]model.FileRecord, 0, len(files))
	for _, f := range files {
		if AgentVisible(f) {
			visible = append(visible, f)
		}
	}

	startOfQuarter := time.Date(now.Year(), ((now.Month()-1)/3)*3+1, 1, 0, 0, 0, 0, now.Location())
	startOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())

	keep := func(pred func(time.Time) bool) []model.FileRecord {
		out := []model.FileRecord{}
		for _, f := range visible {
			if pred(f.LastModified) {
				out = append(out, f)
			}
		}
		return out
	}

	switch view {
	case ViewRecent:
		sort.SliceStable(visible, func(i, j int) bool {
			return visible[i].LastModified.After(visible[j].LastModified)
		})
		if len(visible) > recent {
			visible = visible[:recent]
		}
		return visible
	case ViewMonth:
		return keep(func(t time.Time) bool { return sameMonth(t, now) })
	case ViewQuarter:
		return keep(func(t time.Time) bool { return !t.Before(startOfQuarter) })
	case ViewYear:
		return keep(func(t time.Time) bool { return !t.Before(startOfYear) })
	case ViewOlder:
		return keep(func(t time.Time) bool { return t.Before(startOfYear) })
	}
	return visible
}
