package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/session"
	"github.com/hamzaf287/focus-app/storage/database"
)

// OpenDB opens a migrated in-memory sqlite database, closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{Engine: "sqlite", Path: ":memory:"}}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed to migrate: %v", err)
	}
	return db
}

func CreateSession(
	t *testing.T,
	repo session.Repository,
	courseID, teacherID, name string,
	status session.Status,
	createdAt ...time.Time,
) session.Session {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	sess := session.Session{
		CourseID:  courseID,
		TeacherID: teacherID,
		Name:      name,
		Status:    status,
		CreatedAt: tstamp,
	}
	if status != session.StatusNotStarted {
		sess.StartTime = &tstamp
	}
	if status == session.StatusEnded {
		end := tstamp.Add(time.Hour)
		sess.EndTime = &end
	}
	sess, err := repo.CreateSession(context.Background(), sess)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

var _ core.Clock = FixedClock{}

func (c FixedClock) Now() time.Time {
	return c.T
}
