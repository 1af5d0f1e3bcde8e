package dummydb

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
)

// ErrUnavailable is returned by writes while the database is marked as failing.
var ErrUnavailable = errors.New("dummy database unavailable")

type (
	DB struct {
		session *sessionTable
		report  *reportTable
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*session.Session
	}

	reportTable struct {
		sync.RWMutex
		table   map[string]*focus.Report
		failing bool
	}
)

func Open() (*DB, error) {
	db := &DB{
		session: &sessionTable{table: make(map[string]*session.Session)},
		report:  &reportTable{table: make(map[string]*focus.Report)},
	}
	return db, nil
}

// FailReportWrites makes report writes fail until called again with false.
func (db *DB) FailReportWrites(failing bool) {
	db.report.Lock()
	defer db.report.Unlock()
	db.report.failing = failing
}
