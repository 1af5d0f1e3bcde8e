package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) session.Repository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) query() []session.Session {
	sessions := make([]session.Session, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		sessions = append(sessions, *s)
	}
	return sessions
}

func (repo *sessionRepository) hasRunning(courseID, excludedID string) bool {
	for _, s := range repo.db.table {
		if s.CourseID == courseID && s.IsRunning() && s.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if sess.IsRunning() && repo.hasRunning(sess.CourseID, "") {
		return session.Session{}, session.ErrCourseBusy
	}
	sess.ID = uuid.New().String()
	repo.db.table[sess.ID] = &sess
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(_ context.Context, id string) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return *s, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) QuerySessions(_ context.Context, filter session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	statuses := make(map[session.Status]bool, len(filter.Status))
	for _, st := range filter.Status {
		statuses[st] = true
	}

	sessions := make([]session.Session, 0)
	for _, s := range repo.query() {
		if filter.CourseID != "" && s.CourseID != filter.CourseID {
			continue
		}
		if filter.TeacherID != "" && s.TeacherID != filter.TeacherID {
			continue
		}
		if len(statuses) > 0 && !statuses[s.Status] {
			continue
		}
		sessions = append(sessions, s)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	ordering = append(ordering[:len(ordering):len(ordering)], core.DBOrdering{Field: "id", Ascending: true})
	sortBy(len(sessions), func(i, j int) { sessions[i], sessions[j] = sessions[j], sessions[i] }, ordering, map[string]compareFunc{
		"created_at": func(i, j int) int { return compareTime(sessions[i].CreatedAt, sessions[j].CreatedAt) },
		"start_time": func(i, j int) int { return compareTimePtr(sessions[i].StartTime, sessions[j].StartTime) },
		"end_time":   func(i, j int) int { return compareTimePtr(sessions[i].EndTime, sessions[j].EndTime) },
		"name":       func(i, j int) int { return compareString(sessions[i].Name, sessions[j].Name) },
		"id":         func(i, j int) int { return compareString(sessions[i].ID, sessions[j].ID) },
	})
	return sessions, nil
}

func (repo *sessionRepository) HasRunningSession(_ context.Context, courseID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.hasRunning(courseID, ""), nil
}

func (repo *sessionRepository) UpdateSessionStatus(_ context.Context, sess session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save the lifecycle fields
	orig, ok := repo.db.table[sess.ID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	if sess.IsRunning() && repo.hasRunning(orig.CourseID, orig.ID) {
		return session.Session{}, session.ErrCourseBusy
	}
	orig.Status = sess.Status
	orig.StartTime = sess.StartTime
	orig.EndTime = sess.EndTime
	return *orig, nil
}
