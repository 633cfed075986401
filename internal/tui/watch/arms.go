package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/armsd/internal/api"
	"github.com/mattjoyce/armsd/internal/events"
)

// ArmState is one arm as the dashboard currently knows it.
type ArmState struct {
	Name      string
	Alpha     float64
	Beta      float64
	Orphan    bool
	Samples   int
	Successes int
	Failures  int
	LastDraw  float64
	LastEvent time.Time
}

func (a ArmState) Mean() float64 {
	if a.Alpha+a.Beta <= 0 {
		return 0
	}
	return a.Alpha / (a.Alpha + a.Beta)
}

// Board tracks every arm seen in a snapshot or an event. Counters only
// cover what happened while the dashboard was attached.
type Board struct {
	arms    map[string]*ArmState
	catalog string
}

func NewBoard() *Board {
	return &Board{arms: make(map[string]*ArmState)}
}

func (b *Board) arm(name string) *ArmState {
	a, ok := b.arms[name]
	if !ok {
		a = &ArmState{Name: name, Alpha: 1, Beta: 1}
		b.arms[name] = a
	}
	return a
}

// Reset replaces beliefs with a GET /arms snapshot, keeping live counters
// for arms that are still present.
func (b *Board) Reset(snap api.ArmsResponse) {
	b.catalog = snap.Catalog
	keep := make(map[string]*ArmState, len(snap.Arms)+len(snap.Orphans))
	for _, v := range snap.Arms {
		a := b.arm(v.Name)
		a.Alpha, a.Beta, a.Orphan = v.Alpha, v.Beta, false
		keep[v.Name] = a
	}
	for _, name := range snap.Orphans {
		a := b.arm(name)
		a.Orphan = true
		keep[name] = a
	}
	b.arms = keep
}

// Apply folds one hub event into the board. It reports whether the event
// changed anything.
func (b *Board) Apply(e events.Event) bool {
	switch e.Type {
	case events.TypeArmSampled:
		var p events.ArmSampled
		if json.Unmarshal(e.Data, &p) != nil || p.Arm == "" {
			return false
		}
		a := b.arm(p.Arm)
		a.Samples++
		a.LastDraw = p.Draw
		a.LastEvent = e.At
		if p.Catalog != "" {
			b.catalog = p.Catalog
		}
		return true

	case events.TypeRewardRecorded:
		var p events.RewardRecorded
		if json.Unmarshal(e.Data, &p) != nil || p.Arm == "" {
			return false
		}
		a := b.arm(p.Arm)
		a.Alpha, a.Beta = p.Alpha, p.Beta
		if p.Success {
			a.Successes++
		} else {
			a.Failures++
		}
		a.LastEvent = e.At
		return true

	case events.TypeArmsPruned:
		var p events.ArmsPruned
		if json.Unmarshal(e.Data, &p) != nil {
			return false
		}
		for _, name := range p.Arms {
			delete(b.arms, name)
		}
		return len(p.Arms) > 0
	}
	return false
}

// Sorted returns arms by descending posterior mean, then by name.
func (b *Board) Sorted() []ArmState {
	out := make([]ArmState, 0, len(b.arms))
	for _, a := range b.arms {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].Mean(), out[j].Mean()
		if mi != mj {
			return mi > mj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func armColumns() []table.Column {
	return []table.Column{
		{Title: "Arm", Width: 20},
		{Title: "α", Width: 8},
		{Title: "β", Width: 8},
		{Title: "Mean", Width: 6},
		{Title: "", Width: 12},
		{Title: "Pulls", Width: 6},
		{Title: "+/-", Width: 9},
	}
}

func (b *Board) Rows() []table.Row {
	arms := b.Sorted()
	rows := make([]table.Row, 0, len(arms))
	for _, a := range arms {
		name := a.Name
		if a.Orphan {
			name += " (orphan)"
		}
		rows = append(rows, table.Row{
			name,
			fmt.Sprintf("%g", a.Alpha),
			fmt.Sprintf("%g", a.Beta),
			fmt.Sprintf("%.3f", a.Mean()),
			meanBar(a.Mean(), 12),
			fmt.Sprintf("%d", a.Samples),
			fmt.Sprintf("%d/%d", a.Successes, a.Failures),
		})
	}
	return rows
}
