package focus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/session"
)

// Live event types.
const (
	EventSnapshot = "snapshot"
	EventReport   = "report"
)

// LiveEvent is a change of a run, as shared between processes.
type LiveEvent struct {
	Type     string    `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Report   *Report   `json:"report,omitempty"`
}

type (
	// SessionReader reads the class session metadata a run is started against.
	SessionReader interface {
		GetByID(ctx context.Context, id string) (session.Session, error)
	}

	Repository interface {
		// CreateReport persists rep with its tab switches and returns it with its ID set.
		CreateReport(ctx context.Context, rep Report) (Report, error)
		GetReportByID(ctx context.Context, id string) (Report, error)
		QueryReports(ctx context.Context, filter ReportFilter, ordering []core.DBOrdering) ([]Report, error)
	}

	// Observer is notified of run activity, outside any run lock.
	Observer interface {
		RunStarted()
		RunStopped(rep Report)
		FrameRecorded(label Label)
		TabSwitchRecorded()
		EventDropped(kind string)
	}

	// Publisher shares live snapshots and final reports with other processes.
	Publisher interface {
		PublishSnapshot(ctx context.Context, snap Snapshot) error
		PublishReport(ctx context.Context, rep Report) error
	}

	// EventSubscriber streams the LiveEvents of a class session until ctx is done.
	EventSubscriber interface {
		Subscribe(ctx context.Context, sessionID string) (<-chan LiveEvent, error)
	}

	// SnapshotReader reads the snapshots published by other processes. GetSnapshot
	// returns ErrNotRunning when none is known for the participant.
	SnapshotReader interface {
		GetSnapshot(ctx context.Context, sessionID, participantID string) (Snapshot, error)
	}

	Deps struct {
		Sessions   SessionReader
		Reports    Repository
		Classifier Classifier        // optional
		Clock      core.Clock        // optional
		Logger     core.Logger
		Observer   Observer          // optional
		Publisher  Publisher         // optional
		Snapshots  SnapshotReader    // optional
		Events     EventSubscriber   // optional
		MailSvc    core.EmailService // optional
	}

	Service struct {
		sessions   SessionReader
		reports    Repository
		classifier Classifier
		clock      core.Clock
		logger     core.Logger
		observer   Observer
		publisher  Publisher
		snapshots  SnapshotReader
		events     EventSubscriber
		mailSvc    core.EmailService

		registry *Registry

		pendingMu sync.Mutex
		pending   map[Key][]Report // reports of ended runs not saved yet, oldest first
	}
)

func NewService(deps Deps) *Service {
	svc := &Service{
		sessions:   deps.Sessions,
		reports:    deps.Reports,
		classifier: deps.Classifier,
		clock:      deps.Clock,
		logger:     deps.Logger,
		observer:   deps.Observer,
		publisher:  deps.Publisher,
		snapshots:  deps.Snapshots,
		events:     deps.Events,
		mailSvc:    deps.MailSvc,
		registry:   NewRegistry(),
		pending:    make(map[Key][]Report),
	}
	if svc.clock == nil {
		svc.clock = core.SystemClock{}
	}
	if svc.observer == nil {
		svc.observer = nopObserver{}
	}
	return svc
}

// Start begins a tracking run for key. The class session must be running.
//
// The session is read again once the run is live: a session ended in between either
// shows up here, or its StopSession sees the run.
func (svc *Service) Start(ctx context.Context, key Key) (Snapshot, error) {
	sess, err := svc.sessions.GetByID(ctx, key.SessionID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "reading session")
	}
	if !sess.IsRunning() {
		return Snapshot{}, session.ErrNotActive
	}

	run, err := svc.registry.Acquire(key)
	if err != nil {
		return Snapshot{}, err
	}
	if err = run.Start(sess.CourseID, svc.clock.Now()); err != nil {
		svc.registry.Release(key, run)
		return Snapshot{}, err
	}

	if sess, err = svc.sessions.GetByID(ctx, key.SessionID); err != nil || !sess.IsRunning() {
		_, _ = run.Stop(svc.clock.Now())
		svc.registry.Release(key, run)
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "reading session")
		}
		return Snapshot{}, session.ErrNotActive
	}
	svc.observer.RunStarted()

	svc.publishSnapshot(ctx, run)
	return run.Snapshot(), nil
}

// RecordFrame counts an already classified frame.
func (svc *Service) RecordFrame(ctx context.Context, key Key, label Label) error {
	if !label.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "label", Error: labelText})
	}

	run, err := svc.registry.Lookup(key)
	if err == nil {
		err = run.RecordFrame(label)
	}
	if err != nil {
		svc.drop("frame", key, err)
		return err
	}
	svc.observer.FrameRecorded(label)
	svc.publishSnapshot(ctx, run)
	return nil
}

// ClassifyAndRecord classifies frame, without holding the run lock, then counts it.
// Classification failures count the frame as undecided.
func (svc *Service) ClassifyAndRecord(ctx context.Context, key Key, frame []byte) (Label, error) {
	if _, err := svc.registry.Lookup(key); err != nil {
		svc.drop("frame", key, err)
		return "", err
	}

	label, err := ClassifyFrame(ctx, svc.classifier, frame)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("classifying frame for %s: %v", key, err), err)
	}
	return label, svc.RecordFrame(ctx, key, label)
}

// RecordTabSwitch counts a tab switch. It never fails the caller: events outside a live run
// are dropped and false is returned.
func (svc *Service) RecordTabSwitch(ctx context.Context, key Key, ts time.Time, reason string) bool {
	if ts.IsZero() {
		ts = svc.clock.Now()
	}

	run, err := svc.registry.Lookup(key)
	if err == nil {
		err = run.RecordTabSwitch(ts.UTC(), core.CleanString(reason))
	}
	if err != nil {
		svc.drop("tab_switch", key, err)
		return false
	}
	svc.observer.TabSwitchRecorded()
	svc.publishSnapshot(ctx, run)
	return true
}

// LiveStats returns the snapshot of the live run of key. Runs hosted by another
// process are read from the snapshot reader, when there is one.
func (svc *Service) LiveStats(ctx context.Context, key Key) (Snapshot, error) {
	run, err := svc.registry.Lookup(key)
	if err == nil {
		return run.Snapshot(), nil
	}
	if svc.snapshots == nil {
		return Snapshot{}, err
	}

	snap, err := svc.snapshots.GetSnapshot(ctx, key.SessionID, key.ParticipantID)
	if err != nil {
		if errors.Cause(err) != ErrNotRunning {
			svc.logger.Warn(fmt.Sprintf("reading snapshot of %s: %v", key, err), err)
		}
		return Snapshot{}, ErrNotRunning
	}
	return snap, nil
}

// SubscribeSession streams the live events of a class session, from every process,
// until ctx is done.
func (svc *Service) SubscribeSession(ctx context.Context, sessionID string) (<-chan LiveEvent, error) {
	if svc.events == nil {
		return nil, ErrNoLiveEvents
	}
	return svc.events.Subscribe(ctx, sessionID)
}

// LiveSession returns a snapshot of every live run of a class session.
func (svc *Service) LiveSession(sessionID string) []Snapshot {
	runs := svc.registry.Session(sessionID)
	snaps := make([]Snapshot, 0, len(runs))
	for _, run := range runs {
		snaps = append(snaps, run.Snapshot())
	}
	return snaps
}

// Stop ends the live run of key and persists its report.
//
// Frames recorded before the stop transition are part of the report; later ones are
// rejected with ErrNotRunning. The report gets its ID here, so saving it again never
// duplicates it. If persisting fails the run stays ended, a *ReportNotSavedError
// carrying the report is returned, and the next Stop for the same key retries every
// report still unsaved for it.
func (svc *Service) Stop(ctx context.Context, key Key) (Report, error) {
	saved, err := svc.stop(ctx, key)
	if err != nil {
		if notSaved, ok := err.(*ReportNotSavedError); ok {
			return notSaved.Report, err
		}
		return Report{}, err
	}
	return saved[len(saved)-1], nil
}

// StopSession stops every live run of a class session and retries its unsaved reports.
// It returns the reports that were saved and the first persistence error.
func (svc *Service) StopSession(ctx context.Context, sessionID string) ([]Report, error) {
	keys := make([]Key, 0)
	seen := make(map[Key]bool)
	for _, run := range svc.registry.Session(sessionID) {
		keys = append(keys, run.Key())
		seen[run.Key()] = true
	}
	svc.pendingMu.Lock()
	for key := range svc.pending {
		if key.SessionID == sessionID && !seen[key] {
			keys = append(keys, key)
		}
	}
	svc.pendingMu.Unlock()

	var firstErr error
	reports := make([]Report, 0, len(keys))
	for _, key := range keys {
		saved, err := svc.stop(ctx, key)
		reports = append(reports, saved...)
		if err == nil || firstErr != nil {
			continue
		}
		// stopped concurrently by the participant
		if cause := errors.Cause(err); cause != ErrNotRunning && cause != ErrInvalidTransition {
			firstErr = err
		}
	}
	return reports, firstErr
}

// stop ends the live run of key, if any, then saves the reports pending for key followed
// by the new one. It returns the saved reports, oldest first.
func (svc *Service) stop(ctx context.Context, key Key) ([]Report, error) {
	var reps []Report
	if run, err := svc.registry.Lookup(key); err == nil {
		rep, err := svc.endRun(key, run)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}

	reps = append(svc.takePending(key), reps...)
	if len(reps) == 0 {
		return nil, ErrNotRunning
	}
	return svc.saveReports(ctx, key, reps)
}

func (svc *Service) endRun(key Key, run *Run) (Report, error) {
	res, err := run.Stop(svc.clock.Now())
	if err != nil {
		return Report{}, err
	}
	svc.registry.Release(key, run)
	run.seal()

	rep := Build(res.Info, res.Tally, res.Tally.TabSwitchCount)
	rep.ID = uuid.New().String()
	rep.TabSwitches = res.TabSwitches
	if rep.ClockSkew {
		svc.logger.Warn(fmt.Sprintf("clock skew on %s: end %s before start %s", key, rep.EndTime, rep.StartTime))
	}
	svc.observer.RunStopped(rep)
	return rep, nil
}

func (svc *Service) GetReport(ctx context.Context, id string) (Report, error) {
	return svc.reports.GetReportByID(ctx, id)
}

func (svc *Service) Reports(ctx context.Context, filter ReportFilter, ordering []core.DBOrdering) ([]Report, error) {
	ordering = core.FilterOrderings(ordering, ReportOrderingFields...)
	if len(ordering) == 0 {
		ordering = DefaultReportOrdering
	}
	reports, err := svc.reports.QueryReports(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	return reports, nil
}

func (svc *Service) Statistics(ctx context.Context, sessionID string) (Statistics, error) {
	reports, err := svc.reports.QueryReports(ctx, ReportFilter{SessionID: sessionID}, nil)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying session reports")
	}
	return Summarize(reports), nil
}

// Registry exposes the live runs, mainly for tests and diagnostics.
func (svc *Service) Registry() *Registry {
	return svc.registry
}

// saveReports writes reps in order. The ones that fail go back to the pending list and
// the newest failure is returned as a *ReportNotSavedError.
func (svc *Service) saveReports(ctx context.Context, key Key, reps []Report) ([]Report, error) {
	var lastErr error
	var unsaved []Report
	saved := make([]Report, 0, len(reps))
	for _, rep := range reps {
		stored, err := svc.reports.CreateReport(ctx, rep)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("saving report %s for %s: %v", rep.ID, key, err), err)
			unsaved = append(unsaved, rep)
			lastErr = &ReportNotSavedError{Report: rep, Err: err}
			continue
		}
		saved = append(saved, stored)

		if svc.publisher != nil {
			if err = svc.publisher.PublishReport(ctx, stored); err != nil {
				svc.logger.Warn(fmt.Sprintf("publishing report %s: %v", stored.ID, err), err)
			}
		}
	}
	if len(unsaved) > 0 {
		svc.putPending(key, unsaved...)
	}
	return saved, lastErr
}

func (svc *Service) putPending(key Key, reps ...Report) {
	svc.pendingMu.Lock()
	defer svc.pendingMu.Unlock()
	svc.pending[key] = append(svc.pending[key], reps...)
}

func (svc *Service) takePending(key Key) []Report {
	svc.pendingMu.Lock()
	defer svc.pendingMu.Unlock()
	reps := svc.pending[key]
	delete(svc.pending, key)
	return reps
}

// publishSnapshot shares the current snapshot of run. Snapshots of a run go out in
// version order and never after the run has stopped.
func (svc *Service) publishSnapshot(ctx context.Context, run *Run) {
	if svc.publisher == nil {
		return
	}
	err := run.publish(func(snap Snapshot) error {
		return svc.publisher.PublishSnapshot(ctx, snap)
	})
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing snapshot %s: %v", run.Key(), err), err)
	}
}

func (svc *Service) drop(kind string, key Key, err error) {
	svc.observer.EventDropped(kind)
	svc.logger.Debug(fmt.Sprintf("dropping %s for %s: %v", kind, key, err))
}

type nopObserver struct{}

func (nopObserver) RunStarted()         {}
func (nopObserver) RunStopped(Report)   {}
func (nopObserver) FrameRecorded(Label) {}
func (nopObserver) TabSwitchRecorded()  {}
func (nopObserver) EventDropped(string) {}
