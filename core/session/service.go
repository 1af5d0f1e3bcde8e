package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
)

var (
	// errors
	ErrNotFound          = errors.New("session not found")
	ErrNotActive         = errors.New("session is not running")
	ErrCourseBusy        = errors.New("this course already has a running session")
	ErrInvalidTransition = errors.New("invalid session transition")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		QuerySessions(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Session, error)
		HasRunningSession(ctx context.Context, courseID string) (bool, error)
		// UpdateSessionStatus persists the status and timestamps of sess.
		UpdateSessionStatus(ctx context.Context, sess Session) (Session, error)
	}

	Service struct {
		repo  Repository
		clock core.Clock
	}
)

func NewService(repo Repository, clock core.Clock) *Service {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Service{repo: repo, clock: clock}
}

var transitions = map[Status][]Status{
	StatusNotStarted: {StatusRunning},
	StatusRunning:    {StatusEnded},
}

func canTransition(from, to Status) bool {
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

func (svc *Service) Create(ctx context.Context, teacherID string, ns NewSession) (Session, error) {
	now := svc.clock.Now().UTC()
	name := ns.Name
	if name == "" {
		name = DefaultName(now)
	}
	sess := Session{
		CourseID:  ns.CourseID,
		TeacherID: teacherID,
		Name:      name,
		Status:    StatusNotStarted,
		CreatedAt: now,
	}
	sess, err := svc.repo.CreateSession(ctx, sess)
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	return sess, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
}

// Start opens the session for tracking runs. A course has at most one running session.
func (svc *Service) Start(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !canTransition(sess.Status, StatusRunning) {
		return Session{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", sess.Status, StatusRunning)
	}

	busy, err := svc.repo.HasRunningSession(ctx, sess.CourseID)
	if err != nil {
		return Session{}, errors.Wrap(err, "checking running sessions")
	}
	if busy {
		return Session{}, ErrCourseBusy
	}

	now := svc.clock.Now().UTC()
	sess.Status = StatusRunning
	sess.StartTime = &now
	return svc.repo.UpdateSessionStatus(ctx, sess)
}

// End closes the session. Live tracking runs are stopped by the caller.
func (svc *Service) End(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !canTransition(sess.Status, StatusEnded) {
		return Session{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", sess.Status, StatusEnded)
	}

	now := svc.clock.Now().UTC()
	sess.Status = StatusEnded
	sess.EndTime = &now
	return svc.repo.UpdateSessionStatus(ctx, sess)
}
