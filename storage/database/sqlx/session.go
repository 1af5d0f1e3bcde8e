package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/session"
	"github.com/hamzaf287/focus-app/storage/database"
)

const sessionColumns = "id, course_id, teacher_id, name, status, start_time, end_time, created_at"

type sessionRow struct {
	ID        string       `db:"id"`
	CourseID  string       `db:"course_id"`
	TeacherID string       `db:"teacher_id"`
	Name      string       `db:"name"`
	Status    string       `db:"status"`
	StartTime sql.NullTime `db:"start_time"`
	EndTime   sql.NullTime `db:"end_time"`
	CreatedAt time.Time    `db:"created_at"`
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func newSessionRow(sess session.Session) sessionRow {
	return sessionRow{
		ID:        sess.ID,
		CourseID:  sess.CourseID,
		TeacherID: sess.TeacherID,
		Name:      sess.Name,
		Status:    string(sess.Status),
		StartTime: nullTime(sess.StartTime),
		EndTime:   nullTime(sess.EndTime),
		CreatedAt: sess.CreatedAt.UTC(),
	}
}

func (row sessionRow) session() session.Session {
	return session.Session{
		ID:        row.ID,
		CourseID:  row.CourseID,
		TeacherID: row.TeacherID,
		Name:      row.Name,
		Status:    session.Status(row.Status),
		StartTime: timePtr(row.StartTime),
		EndTime:   timePtr(row.EndTime),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) session.Repository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	sess.ID = uuid.New().String()
	q := `INSERT INTO class_session (` + sessionColumns + `)
		VALUES (:id, :course_id, :teacher_id, :name, :status, :start_time, :end_time, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newSessionRow(sess)); err != nil {
		if database.IsUniqueViolation(err) {
			return session.Session{}, session.ErrCourseBusy
		}
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id string) (session.Session, error) {
	var row sessionRow
	q := repo.db.Rebind(`SELECT ` + sessionColumns + ` FROM class_session WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "selecting session")
	}
	return row.session(), nil
}

func (repo *sessionRepository) QuerySessions(ctx context.Context, filter session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	var w where
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, st := range filter.Status {
			statuses = append(statuses, string(st))
		}
		w.add("status IN (?)", statuses)
	}

	q, args, err := sqlx.In(`SELECT `+sessionColumns+` FROM class_session`+w.String()+orderBy(ordering, "created_at DESC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "building sessions query")
	}

	var rows []sessionRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	return sessions, nil
}

func (repo *sessionRepository) HasRunningSession(ctx context.Context, courseID string) (bool, error) {
	var count int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM class_session WHERE course_id = ? AND status = ?`)
	if err := repo.db.GetContext(ctx, &count, q, courseID, string(session.StatusRunning)); err != nil {
		return false, errors.Wrap(err, "counting running sessions")
	}
	return count > 0, nil
}

func (repo *sessionRepository) UpdateSessionStatus(ctx context.Context, sess session.Session) (session.Session, error) {
	q := `UPDATE class_session SET status = :status, start_time = :start_time, end_time = :end_time WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newSessionRow(sess))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return session.Session{}, session.ErrCourseBusy
		}
		return session.Session{}, errors.Wrap(err, "updating session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}
