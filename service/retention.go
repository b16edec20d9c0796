package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

const yearLength = time.Duration(365.25 * 24 * float64(time.Hour))

// RetentionTier is one "older than" option in the bulk cleanup menu
type RetentionTier struct {
	ThresholdYears float64 `json:"thresholdYears"`
	Label          string  `json:"label"`
}

var (
	tiersFiveYears = []RetentionTier{
		{5, "Older than 5 years"},
		{3, "Older than 3 years"},
		{2, "Older than 2 years"},
	}
	tiersThreeYears = []RetentionTier{
		{3, "Older than 3 years"},
		{2, "Older than 2 years"},
		{1, "Older than 1 year"},
	}
	tiersTwoYears = []RetentionTier{
		{2, "Older than 2 years"},
		{1, "Older than 1 year"},
		{0.5, "Older than 6 months"},
	}
	tiersRecent = []RetentionTier{
		{1, "Older than 1 year (This year)"},
		{0.25, "Older than 3 months (This quarter)"},
		{1.0 / 12, "Older than 1 month (This month)"},
	}
)

// AgeYears is the age of t at now in 365.25-day years
func AgeYears(t, now time.Time) float64 {
	return float64(now.Sub(t)) / float64(yearLength)
}

// OldestFile returns the earliest LastModified in files
func OldestFile(files []model.FileRecord) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, f := range files {
		if f.LastModified.IsZero() {
			continue
		}
		if !found || f.LastModified.Before(oldest) {
			oldest, found = f.LastModified, true
		}
	}
	return oldest, found
}

// Tiers scales the cleanup menu to the age of the oldest file
func Tiers(files []model.FileRecord, now time.Time) []RetentionTier {
	oldest, ok := OldestFile(files)
	if !ok {
		return copyTiers(tiersFiveYears)
	}
	age := AgeYears(oldest, now)
	switch {
	case age >= 5:
		return copyTiers(tiersFiveYears)
	case age >= 3:
		return copyTiers(tiersThreeYears)
	case age >= 2:
		return copyTiers(tiersTwoYears)
	}
	return copyTiers(tiersRecent)
}

func copyTiers(t []RetentionTier) []RetentionTier {
	return append([]RetentionTier(nil), t...)
}

// ValidTier reports whether years is one of the options offered for files
func ValidTier(files []model.FileRecord, years float64, now time.Time) bool {
	for _, t := range Tiers(files, now) {
		if t.ThresholdYears == years {
			return true
		}
	}
	return false
}

// Cutoff is the instant before which files are older than years
func Cutoff(years float64, now time.Time) time.Time {
	return now.Add(-time.Duration(years * float64(yearLength)))
}

// Eligible returns the files older than years, oldest first
func Eligible(files []model.FileRecord, years float64, now time.Time) []model.FileRecord {
	cutoff := Cutoff(years, now)
	out := []model.FileRecord{}
	for _, f := range files {
		if f.LastModified.Before(cutoff) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.Before(out[j].LastModified)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

var ErrConfirmNotReady = errors.New("confirmation incomplete: type the confirmation word and wait for the countdown")

// ConfirmGate guards an irreversible action. The action is enabled only once
// the text equals the confirmation word and the countdown, restarted on every
// text change, has run out. It is disabled again while the action runs.
type ConfirmGate struct {
	mu        sync.Mutex
	word      string
	countdown time.Duration
	text      string
	changedAt time.Time
	inFlight  bool
}

// The bulk delete confirmation is fixed: type DELETE, then wait 10 seconds.
const (
	ConfirmWord      = "DELETE"
	ConfirmCountdown = 10 * time.Second
)

// NewConfirmGate returns the gate guarding bulk deletes
func NewConfirmGate() *ConfirmGate {
	return newConfirmGate(ConfirmWord, ConfirmCountdown)
}

func newConfirmGate(word string, countdown time.Duration) *ConfirmGate {
	return &ConfirmGate{word: word, countdown: countdown}
}

// SetText records the typed confirmation. Retyping the same text does not
// restart the countdown.
func (g *ConfirmGate) SetText(text string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if text == g.text && !g.changedAt.IsZero() {
		return
	}
	g.text = text
	g.changedAt = now
}

// Remaining is how long until the action enables. It is the full countdown
// while the text does not match.
func (g *ConfirmGate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining(now)
}

func (g *ConfirmGate) remaining(now time.Time) time.Duration {
	if g.text != g.word {
		return g.countdown
	}
	left := g.countdown - now.Sub(g.changedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Enabled reports whether the confirm action may run at now
func (g *ConfirmGate) Enabled(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled(now)
}

func (g *ConfirmGate) enabled(now time.Time) bool {
	return !g.inFlight && g.text == g.word && g.remaining(now) == 0
}

// Begin claims the gate for one run of the action
func (g *ConfirmGate) Begin(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return model.ErrMutationInFlight
	}
	if !g.enabled(now) {
		return ErrConfirmNotReady
	}
	g.inFlight = true
	return nil
}

// Finish releases the gate and clears the typed text, whatever the outcome
func (g *ConfirmGate) Finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	g.text = ""
	g.changedAt = time.Time{}
}

// InFlight reports whether the action is running
func (g *ConfirmGate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
