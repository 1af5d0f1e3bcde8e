package focus

import (
	"sort"
	"sync"
)

// Registry maps a Key to its live Run. It is the only place deciding whether a run is live.
// Keys are independent: acquiring or releasing one never blocks another.
type Registry struct {
	runs sync.Map // Key -> *Run
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire registers a fresh not-started Run for key, or fails with ErrAlreadyRunning.
func (reg *Registry) Acquire(key Key) (*Run, error) {
	run := newRun(key)
	if _, loaded := reg.runs.LoadOrStore(key, run); loaded {
		return nil, ErrAlreadyRunning
	}
	return run, nil
}

// Release removes run from the registry. It is a no-op when key is absent or already
// holds a newer run.
func (reg *Registry) Release(key Key, run *Run) {
	reg.runs.CompareAndDelete(key, run)
}

func (reg *Registry) Lookup(key Key) (*Run, error) {
	v, ok := reg.runs.Load(key)
	if !ok {
		return nil, ErrNotRunning
	}
	return v.(*Run), nil
}

// Session returns the live runs of a class session, ordered by participant.
func (reg *Registry) Session(sessionID string) []*Run {
	var runs []*Run
	reg.runs.Range(func(k, v interface{}) bool {
		if k.(Key).SessionID == sessionID {
			runs = append(runs, v.(*Run))
		}
		return true
	})
	sort.Slice(runs, func(i, j int) bool { return runs[i].key.ParticipantID < runs[j].key.ParticipantID })
	return runs
}

func (reg *Registry) Len() int {
	var n int
	reg.runs.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
