package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/storage/database"
	"github.com/hamzaf287/focus-app/tests"
)

const insertSession = `INSERT INTO class_session (id, course_id, teacher_id, name, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`

func countSessions(t *testing.T, db *sqlx.DB) int {
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM class_session`))
	return n
}

func TestWithinTx(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := database.WithinTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(insertSession, "s1", "C1", "t1", "one", "not_started", now)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countSessions(t, db))

	errBoom := errors.New("boom")
	err = database.WithinTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(insertSession, "s2", "C1", "t1", "two", "not_started", now); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, countSessions(t, db), "rolled back")
}

func TestWithinTx_ClosedDB(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, db.Close())

	err := database.WithinTx(context.Background(), db, func(tx *sqlx.Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, core.IsShutdown(err))
}

func TestIsUniqueViolation(t *testing.T) {
	db := testutil.OpenDB(t)
	now := time.Now().UTC()

	_, err := db.Exec(insertSession, "s1", "C1", "t1", "one", "running", now)
	require.NoError(t, err)
	_, err = db.Exec(insertSession, "s2", "C1", "t1", "two", "not_started", now)
	require.NoError(t, err)

	// one running session per course
	_, err = db.Exec(insertSession, "s3", "C1", "t1", "three", "running", now)
	assert.True(t, database.IsUniqueViolation(err))

	_, err = db.Exec(insertSession, "s4", "C2", "t1", "four", "running", now)
	assert.NoError(t, err)

	assert.False(t, database.IsUniqueViolation(nil))
	assert.False(t, database.IsUniqueViolation(errors.New("connection refused")))
}
