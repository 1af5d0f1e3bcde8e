package focus

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Status of a tracking run.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusEnded      Status = "ended"
)

// Key identifies a run: one participant inside one class session.
type Key struct {
	SessionID     string
	ParticipantID string
}

func (k Key) String() string {
	return k.SessionID + "/" + k.ParticipantID
}

// RunInfo is the metadata a Report is built from.
type RunInfo struct {
	SessionID     string
	ParticipantID string
	CourseID      string
	StartTime     time.Time
	EndTime       time.Time
}

// Snapshot is a read-only view of a run.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Status        Status    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	Tally
	UndecidedFrames int `json:"undecided_frames"`
	FocusPercentage int `json:"focus_percentage"`
	// Version grows with every change of the run.
	Version uint64 `json:"version"`
}

// Result is what a run freezes into when it stops.
type Result struct {
	Info        RunInfo
	Tally       Tally
	TabSwitches []TabSwitch
}

// Run is the state machine of one tracking run: not_started -> running -> ended.
//
// Every counter update and the stop transition hold mu, so an event either lands before
// the stop (and is part of the result) or is rejected with ErrNotRunning.
type Run struct {
	key      Key
	courseID string

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time
	version   uint64
	agg       Aggregator

	// pubMu orders the snapshots published for this run.
	pubMu     sync.Mutex
	published uint64
	sealed    bool
}

func newRun(key Key) *Run {
	return &Run{key: key, status: StatusNotStarted}
}

func (r *Run) Key() Key { return r.key }

func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) Start(courseID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusNotStarted {
		return errors.Wrapf(ErrInvalidTransition, "start from %s", r.status)
	}
	r.courseID = courseID
	r.status = StatusRunning
	r.startTime = now
	r.version++
	return nil
}

func (r *Run) RecordFrame(label Label) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRunning {
		return ErrNotRunning
	}
	r.agg.RecordFrame(label)
	r.version++
	return nil
}

func (r *Run) RecordTabSwitch(ts time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRunning {
		return ErrNotRunning
	}
	r.agg.RecordTabSwitch(TabSwitch{Timestamp: ts, Reason: reason})
	r.version++
	return nil
}

func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	tally := r.agg.Snapshot()
	snap := Snapshot{
		SessionID:     r.key.SessionID,
		ParticipantID: r.key.ParticipantID,
		Status:        r.status,
		StartTime:     r.startTime,
		Version:       r.version,
	}
	r.mu.Unlock()

	snap.Tally = tally
	snap.UndecidedFrames = tally.UndecidedFrames()
	snap.FocusPercentage = tally.FocusPercentage()
	return snap
}

// Stop ends the run and freezes its counters. Only a running run can stop.
func (r *Run) Stop(now time.Time) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRunning {
		return Result{}, errors.Wrapf(ErrInvalidTransition, "stop from %s", r.status)
	}
	r.status = StatusEnded
	r.endTime = now
	r.version++

	return Result{
		Info: RunInfo{
			SessionID:     r.key.SessionID,
			ParticipantID: r.key.ParticipantID,
			CourseID:      r.courseID,
			StartTime:     r.startTime,
			EndTime:       r.endTime,
		},
		Tally:       r.agg.Snapshot(),
		TabSwitches: r.agg.TabSwitches(),
	}, nil
}

// publish hands the current snapshot to fn unless a newer one was already handed over,
// or the run is no longer running. Calls are serialized per run.
func (r *Run) publish(fn func(Snapshot) error) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	snap := r.Snapshot()
	if r.sealed || snap.Status != StatusRunning || snap.Version <= r.published {
		return nil
	}
	if err := fn(snap); err != nil {
		return err
	}
	r.published = snap.Version
	return nil
}

// seal waits for an in-flight publish and rejects the later ones.
func (r *Run) seal() {
	r.pubMu.Lock()
	r.sealed = true
	r.pubMu.Unlock()
}
