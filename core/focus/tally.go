package focus

import (
	"math"
	"time"
)

// Tally holds the running counters of one run.
// FocusedFrames + DistractedFrames <= TotalFrames; undecided frames only count toward TotalFrames.
type Tally struct {
	TotalFrames      int `json:"total_frames"`
	FocusedFrames    int `json:"focused_frames"`
	DistractedFrames int `json:"distracted_frames"`
	TabSwitchCount   int `json:"tab_switch_count"`
}

func (t Tally) UndecidedFrames() int {
	return t.TotalFrames - t.FocusedFrames - t.DistractedFrames
}

func (t Tally) FocusPercentage() int {
	return FocusPercentage(t.FocusedFrames, t.TotalFrames)
}

// FocusPercentage returns round(100 * focused / total), or 0 when no frame was recorded.
func FocusPercentage(focused, total int) int {
	if total <= 0 || focused <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(focused) / float64(total)))
	if pct > 100 {
		return 100
	}
	return pct
}

// TabSwitch is a visibility change reported by the participant's client.
type TabSwitch struct {
	Timestamp time.Time `json:"timestamp"` // UTC
	Reason    string    `json:"reason"`
}

// Aggregator accumulates frame labels and tab switches.
// It is not safe for concurrent use: its owning Run serializes access.
type Aggregator struct {
	tally       Tally
	tabSwitches []TabSwitch
}

func (a *Aggregator) RecordFrame(label Label) {
	a.tally.TotalFrames++
	switch label {
	case LabelFocused:
		a.tally.FocusedFrames++
	case LabelDistracted:
		a.tally.DistractedFrames++
	}
}

func (a *Aggregator) RecordTabSwitch(ts TabSwitch) {
	a.tally.TabSwitchCount++
	a.tabSwitches = append(a.tabSwitches, ts)
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() Tally {
	return a.tally
}

func (a *Aggregator) TabSwitches() []TabSwitch {
	return append([]TabSwitch(nil), a.tabSwitches...)
}
