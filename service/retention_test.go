package service

import (
	"errors"
	"testing"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

var retentionNow = time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

func aged(key string, years float64) model.FileRecord {
	return model.FileRecord{Key: key, LastModified: retentionNow.Add(-time.Duration(years * float64(yearLength)))}
}

func thresholds(tiers []RetentionTier) []float64 {
	out := make([]float64, len(tiers))
	for i, t := range tiers {
		out[i] = t.ThresholdYears
	}
	return out
}

func TestTiers(t *testing.T) {
	tests := []struct {
		name   string
		oldest float64
		want   []float64
	}{
		{"six years", 6, []float64{5, 3, 2}},
		{"exactly five", 5, []float64{5, 3, 2}},
		{"four years", 4, []float64{3, 2, 1}},
		{"two and a half", 2.5, []float64{2, 1, 0.5}},
		{"eight months", 0.7, []float64{1, 0.25, 1.0 / 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := []model.FileRecord{aged("new", 0.01), aged("old", tt.oldest)}
			got := thresholds(Tiers(files, retentionNow))
			if len(got) != len(tt.want) {
				t.Fatalf("Tiers() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tiers()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if got := thresholds(Tiers(nil, retentionNow)); got[0] != 5 {
		t.Errorf("Expected default tiers without files, got %v", got)
	}
}

func TestValidTier(t *testing.T) {
	files := []model.FileRecord{aged("old", 4)}
	if !ValidTier(files, 2, retentionNow) {
		t.Error("Expected 2 years to be offered")
	}
	if ValidTier(files, 5, retentionNow) {
		t.Error("Did not expect 5 years to be offered")
	}
}

func TestEligible(t *testing.T) {
	files := []model.FileRecord{
		aged("b", 3.5),
		aged("recent", 0.5),
		aged("a", 3.5),
		aged("oldest", 4),
	}
	got := Eligible(files, 3, retentionNow)

	var keys []string
	for _, f := range got {
		keys = append(keys, f.Key)
	}
	want := []string{"oldest", "a", "b"}
	if len(keys) != len(want) {
		t.Fatalf("Eligible() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Eligible()[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	if out := Eligible(files, 5, retentionNow); out == nil || len(out) != 0 {
		t.Errorf("Expected an empty non-nil slice, got %v", out)
	}
}

func TestConfirmGate(t *testing.T) {
	start := retentionNow
	gate := NewConfirmGate()

	if gate.Enabled(start) {
		t.Fatal("Expected gate disabled before typing")
	}

	gate.SetText("DELET", start)
	if got := gate.Remaining(start.Add(20 * time.Second)); got != 10*time.Second {
		t.Errorf("Expected full countdown for wrong text, got %v", got)
	}

	gate.SetText("DELETE", start.Add(time.Second))
	if gate.Enabled(start.Add(10 * time.Second)) {
		t.Error("Expected gate still counting down at 9s")
	}
	if got := gate.Remaining(start.Add(6 * time.Second)); got != 5*time.Second {
		t.Errorf("Expected 5s remaining, got %v", got)
	}

	// Re-sending identical text does not restart the countdown.
	gate.SetText("DELETE", start.Add(8*time.Second))
	if !gate.Enabled(start.Add(11 * time.Second)) {
		t.Fatal("Expected gate enabled after the countdown")
	}

	if err := gate.Begin(start.Add(11 * time.Second)); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if gate.Enabled(start.Add(12*time.Second)) || !gate.InFlight() {
		t.Error("Expected gate disabled while in flight")
	}
	if err := gate.Begin(start.Add(12 * time.Second)); !errors.Is(err, model.ErrMutationInFlight) {
		t.Errorf("Expected ErrMutationInFlight, got %v", err)
	}

	gate.Finish()
	if gate.InFlight() {
		t.Error("Expected gate released")
	}
	if err := gate.Begin(start.Add(30 * time.Second)); !errors.Is(err, ErrConfirmNotReady) {
		t.Errorf("Expected text cleared after Finish, got %v", err)
	}
}

func TestNewConfirmGateIsFixed(t *testing.T) {
	start := retentionNow
	gate := NewConfirmGate()

	gate.SetText("delete", start)
	if gate.Enabled(start.Add(time.Hour)) {
		t.Error("Expected the word to be case sensitive")
	}
	gate.SetText("DELETE", start)
	if got := gate.Remaining(start); got != 10*time.Second {
		t.Errorf("Expected a 10s countdown, got %v", got)
	}
	if gate.Enabled(start.Add(9 * time.Second)) {
		t.Error("Expected gate disabled before 10s")
	}
	if !gate.Enabled(start.Add(10 * time.Second)) {
		t.Error("Expected gate enabled at 10s")
	}
}

func TestConfirmGateChangeRestartsCountdown(t *testing.T) {
	start := retentionNow
	gate := NewConfirmGate()

	gate.SetText("DELETE", start)
	gate.SetText("DELETEX", start.Add(5*time.Second))
	gate.SetText("DELETE", start.Add(6*time.Second))

	if gate.Enabled(start.Add(11 * time.Second)) {
		t.Error("Expected countdown to restart after the text changed")
	}
	if !gate.Enabled(start.Add(16 * time.Second)) {
		t.Error("Expected gate enabled 10s after the last change")
	}
}
