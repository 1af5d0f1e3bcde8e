package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/storage/database"
)

const reportColumns = `id, session_id, participant_id, course_id, start_time, end_time, duration, total_frames,
	focused_frames, distracted_frames, focus_percentage, tab_switch_count, clock_skew, grade, created_at`

type reportRow struct {
	ID               string    `db:"id"`
	SessionID        string    `db:"session_id"`
	ParticipantID    string    `db:"participant_id"`
	CourseID         string    `db:"course_id"`
	StartTime        time.Time `db:"start_time"`
	EndTime          time.Time `db:"end_time"`
	Duration         int64     `db:"duration"`
	TotalFrames      int       `db:"total_frames"`
	FocusedFrames    int       `db:"focused_frames"`
	DistractedFrames int       `db:"distracted_frames"`
	FocusPercentage  int       `db:"focus_percentage"`
	TabSwitchCount   int       `db:"tab_switch_count"`
	ClockSkew        bool      `db:"clock_skew"`
	Grade            string    `db:"grade"`
	CreatedAt        time.Time `db:"created_at"`
}

type tabSwitchRow struct {
	ReportID  string    `db:"report_id"`
	Seq       int       `db:"seq"`
	Timestamp time.Time `db:"ts"`
	Reason    string    `db:"reason"`
}

func newReportRow(rep focus.Report) reportRow {
	return reportRow{
		ID:               rep.ID,
		SessionID:        rep.SessionID,
		ParticipantID:    rep.ParticipantID,
		CourseID:         rep.CourseID,
		StartTime:        rep.StartTime.UTC(),
		EndTime:          rep.EndTime.UTC(),
		Duration:         rep.Duration,
		TotalFrames:      rep.TotalFrames,
		FocusedFrames:    rep.FocusedFrames,
		DistractedFrames: rep.DistractedFrames,
		FocusPercentage:  rep.FocusPercentage,
		TabSwitchCount:   rep.TabSwitchCount,
		ClockSkew:        rep.ClockSkew,
		Grade:            rep.Grade,
		CreatedAt:        rep.CreatedAt.UTC(),
	}
}

func (row reportRow) report() focus.Report {
	return focus.Report{
		ID:               row.ID,
		SessionID:        row.SessionID,
		ParticipantID:    row.ParticipantID,
		CourseID:         row.CourseID,
		StartTime:        row.StartTime.UTC(),
		EndTime:          row.EndTime.UTC(),
		Duration:         row.Duration,
		TotalFrames:      row.TotalFrames,
		FocusedFrames:    row.FocusedFrames,
		DistractedFrames: row.DistractedFrames,
		FocusPercentage:  row.FocusPercentage,
		TabSwitchCount:   row.TabSwitchCount,
		TabSwitches:      []focus.TabSwitch{},
		ClockSkew:        row.ClockSkew,
		Grade:            row.Grade,
		CreatedAt:        row.CreatedAt.UTC(),
	}
}

type reportRepository struct {
	db *sqlx.DB
}

var _ focus.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) focus.Repository {
	return &reportRepository{db: db}
}

// CreateReport inserts the report and its tab switches in one transaction.
// A report whose ID is already stored is not inserted again: the stored one is returned.
func (repo *reportRepository) CreateReport(ctx context.Context, rep focus.Report) (focus.Report, error) {
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}
	if rep.TabSwitches == nil {
		rep.TabSwitches = []focus.TabSwitch{}
	}

	var exists bool
	err := database.WithinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM focus_report WHERE id = ?`), rep.ID); err != nil {
			return errors.Wrap(err, "checking report")
		}
		if exists = n > 0; exists {
			return nil
		}

		q := `INSERT INTO focus_report (` + reportColumns + `) VALUES (:id, :session_id, :participant_id, :course_id,
			:start_time, :end_time, :duration, :total_frames, :focused_frames, :distracted_frames, :focus_percentage,
			:tab_switch_count, :clock_skew, :grade, :created_at)`
		if _, err := tx.NamedExecContext(ctx, q, newReportRow(rep)); err != nil {
			return errors.Wrap(err, "inserting report")
		}

		q = tx.Rebind(`INSERT INTO tab_switch (report_id, seq, ts, reason) VALUES (?, ?, ?, ?)`)
		for i, ts := range rep.TabSwitches {
			if _, err := tx.ExecContext(ctx, q, rep.ID, i+1, ts.Timestamp.UTC(), ts.Reason); err != nil {
				return errors.Wrap(err, "inserting tab switch")
			}
		}
		return nil
	})
	if err != nil {
		if !database.IsUniqueViolation(err) {
			return focus.Report{}, err
		}
		exists = true // inserted concurrently
	}
	if exists {
		return repo.GetReportByID(ctx, rep.ID)
	}
	return rep, nil
}

func (repo *reportRepository) GetReportByID(ctx context.Context, id string) (focus.Report, error) {
	var row reportRow
	q := repo.db.Rebind(`SELECT ` + reportColumns + ` FROM focus_report WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return focus.Report{}, focus.ErrReportNotFound
		}
		return focus.Report{}, errors.Wrap(err, "selecting report")
	}

	reports := []focus.Report{row.report()}
	if err := repo.loadTabSwitches(ctx, reports); err != nil {
		return focus.Report{}, err
	}
	return reports[0], nil
}

func (repo *reportRepository) QueryReports(ctx context.Context, filter focus.ReportFilter, ordering []core.DBOrdering) ([]focus.Report, error) {
	var w where
	if filter.SessionID != "" {
		w.add("session_id = ?", filter.SessionID)
	}
	if filter.ParticipantID != "" {
		w.add("participant_id = ?", filter.ParticipantID)
	}
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}

	q := repo.db.Rebind(`SELECT ` + reportColumns + ` FROM focus_report` + w.String() + orderBy(ordering, "created_at DESC"))
	var rows []reportRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting reports")
	}

	reports := make([]focus.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.report())
	}
	if err := repo.loadTabSwitches(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (repo *reportRepository) loadTabSwitches(ctx context.Context, reports []focus.Report) error {
	if len(reports) == 0 {
		return nil
	}
	idx := make(map[string]int, len(reports))
	ids := make([]string, 0, len(reports))
	for i, rep := range reports {
		idx[rep.ID] = i
		ids = append(ids, rep.ID)
	}

	q, args, err := sqlx.In(`SELECT report_id, seq, ts, reason FROM tab_switch WHERE report_id IN (?) ORDER BY report_id, seq`, ids)
	if err != nil {
		return errors.Wrap(err, "building tab switches query")
	}
	var rows []tabSwitchRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "selecting tab switches")
	}
	for _, row := range rows {
		i := idx[row.ReportID]
		reports[i].TabSwitches = append(reports[i].TabSwitches, focus.TabSwitch{Timestamp: row.Timestamp.UTC(), Reason: row.Reason})
	}
	return nil
}
