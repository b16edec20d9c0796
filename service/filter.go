package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ikonrealty/closingdesk/model"
)

// Filter narrows the grouped dataset. Zero-valued fields impose no constraint.
type Filter struct {
	Agent string    `json:"agent,omitempty"`
	Text  string    `json:"text,omitempty"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"` // inclusive of the whole day
}

// ParseFilter builds a Filter from query values. Dates are YYYY-MM-DD.
func ParseFilter(agent, text, start, end string) (Filter, error) {
	f := Filter{Agent: strings.TrimSpace(agent), Text: text}
	var err error
	if s := strings.TrimSpace(start); s != "" {
		if f.Start, err = time.Parse(model.DateLayout, s); err != nil {
			return Filter{}, fmt.Errorf("invalid start date %q: %w", s, err)
		}
	}
	if s := strings.TrimSpace(end); s != "" {
		if f.End, err = time.Parse(model.DateLayout, s); err != nil {
			return Filter{}, fmt.Errorf("invalid end date %q: %w", s, err)
		}
	}
	return f, nil
}

// Active reports whether any filter input is non-empty
func (f Filter) Active() bool {
	return f.Agent != "" || strings.TrimSpace(f.Text) != "" || !f.Start.IsZero() || !f.End.IsZero()
}

// Apply runs the agent, text and date stages in turn, each on the survivors
// of the previous one. Agents left with no groups are dropped.
func (f Filter) Apply(agents []model.AgentGroups) []model.AgentGroups {
	out := agents
	if f.Agent != "" {
		out = keepAgents(out, func(a string, _ *model.TransactionGroup) bool { return a == f.Agent })
	}
	if q := strings.ToLower(strings.TrimSpace(f.Text)); q != "" {
		out = keepAgents(out, func(a string, g *model.TransactionGroup) bool { return matchesText(a, g, q) })
	}
	if !f.Start.IsZero() || !f.End.IsZero() {
		out = keepAgents(out, f.inRange)
	}
	if out == nil {
		out = []model.AgentGroups{}
	}
	return out
}

func keepAgents(agents []model.AgentGroups, keep func(agent string, g *model.TransactionGroup) bool) []model.AgentGroups {
	out := make([]model.AgentGroups, 0, len(agents))
	for _, a := range agents {
		var groups []*model.TransactionGroup
		for _, g := range a.Groups {
			if keep(a.Agent, g) {
				groups = append(groups, g)
			}
		}
		if len(groups) > 0 {
			out = append(out, model.AgentGroups{Agent: a.Agent, Groups: groups})
		}
	}
	return out
}

// matchesText checks the agent, the label and each file's name separately so
// a query cannot match across two filenames.
func matchesText(agent string, g *model.TransactionGroup, q string) bool {
	if strings.Contains(strings.ToLower(agent), q) || strings.Contains(strings.ToLower(g.Label), q) {
		return true
	}
	for _, f := range g.Files {
		if strings.Contains(strings.ToLower(f.DisplayName), q) || strings.Contains(strings.ToLower(f.Filename), q) {
			return true
		}
	}
	return false
}

func (f Filter) inRange(_ string, g *model.TransactionGroup) bool {
	t := g.LastModified
	if !f.Start.IsZero() {
		start := startOfDay(f.Start)
		if t.Before(start) {
			return false
		}
	}
	if !f.End.IsZero() {
		if !t.Before(startOfDay(f.End).AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// HasResults reports whether at least one agent kept at least one group
func HasResults(agents []model.AgentGroups) bool {
	for _, a := range agents {
		if len(a.Groups) > 0 {
			return true
		}
	}
	return false
}

// DashboardMode is what the admin results panel is showing
type DashboardMode string

const (
	ModeNormal       DashboardMode = "normal"
	ModeAgents       DashboardMode = "agents"
	ModeAllContracts DashboardMode = "allContracts"
	ModeWindow       DashboardMode = "window"
)

// ResultSource names which input produced the visible results
type ResultSource string

const (
	SourceNone    ResultSource = ""
	SourceSummary ResultSource = "summary"
	SourceFilters ResultSource = "filters"
)

// DashboardView decides whether a summary drill-down or the filter results
// are on screen. Filter input always wins over a drill-down.
type DashboardView struct {
	Mode         DashboardMode `json:"mode"`
	Source       ResultSource  `json:"source"`
	FocusedAgent string        `json:"focusedAgent,omitempty"`
	Filter       Filter        `json:"filter"`
}

// NewDashboardView returns a clean dashboard
func NewDashboardView() *DashboardView {
	return &DashboardView{Mode: ModeNormal}
}

// DrillDown opens a summary result and clears any filter input
func (v *DashboardView) DrillDown(mode DashboardMode, focusedAgent string) {
	v.Filter = Filter{}
	v.Source = SourceSummary
	v.Mode = mode
	v.FocusedAgent = focusedAgent
}

// SetFilter replaces the filter input and reconciles against hasResults,
// the outcome of applying it.
func (v *DashboardView) SetFilter(f Filter, hasResults bool) {
	v.Filter = f
	v.Reconcile(hasResults)
}

// Reconcile settles Mode and Source after filter input or data changed
func (v *DashboardView) Reconcile(hasResults bool) {
	if v.Filter.Active() {
		if hasResults {
			v.Source = SourceFilters
			v.Mode = ModeAgents
			v.FocusedAgent = ""
			return
		}
		if v.Source == SourceFilters {
			v.Mode = ModeNormal
			v.Source = SourceNone
		}
		return
	}
	if v.Source == SourceFilters {
		v.Mode = ModeNormal
		v.Source = SourceNone
	}
}

// Reset returns to a clean dashboard
func (v *DashboardView) Reset() {
	*v = DashboardView{Mode: ModeNormal}
}

// ShowsSummary reports whether a summary drill-down is on screen
func (v *DashboardView) ShowsSummary() bool {
	return v.Source == SourceSummary && v.Mode != ModeNormal
}

// ShowsFilterResults reports whether filter results are on screen
func (v *DashboardView) ShowsFilterResults(hasResults bool) bool {
	return v.Source == SourceFilters && hasResults
}
