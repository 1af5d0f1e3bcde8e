package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
)

type reportRepository struct {
	db *reportTable
}

var _ focus.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) focus.Repository {
	return &reportRepository{db: db.report}
}

func copyReport(rep focus.Report) focus.Report {
	tabs := make([]focus.TabSwitch, len(rep.TabSwitches))
	copy(tabs, rep.TabSwitches)
	rep.TabSwitches = tabs
	return rep
}

func (repo *reportRepository) CreateReport(_ context.Context, rep focus.Report) (focus.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.db.failing {
		return focus.Report{}, ErrUnavailable
	}
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}
	if stored, ok := repo.db.table[rep.ID]; ok {
		return copyReport(*stored), nil
	}
	rep = copyReport(rep)
	stored := copyReport(rep)
	repo.db.table[rep.ID] = &stored
	return rep, nil
}

func (repo *reportRepository) GetReportByID(_ context.Context, id string) (focus.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rep, ok := repo.db.table[id]; ok {
		return copyReport(*rep), nil
	}
	return focus.Report{}, focus.ErrReportNotFound
}

func (repo *reportRepository) QueryReports(_ context.Context, filter focus.ReportFilter, ordering []core.DBOrdering) ([]focus.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reports := make([]focus.Report, 0)
	for _, rep := range repo.db.table {
		if filter.SessionID != "" && rep.SessionID != filter.SessionID {
			continue
		}
		if filter.ParticipantID != "" && rep.ParticipantID != filter.ParticipantID {
			continue
		}
		if filter.CourseID != "" && rep.CourseID != filter.CourseID {
			continue
		}
		reports = append(reports, copyReport(*rep))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	// map iteration is random: ties fall back to the id
	ordering = append(ordering[:len(ordering):len(ordering)], core.DBOrdering{Field: "id", Ascending: true})
	sortBy(len(reports), func(i, j int) { reports[i], reports[j] = reports[j], reports[i] }, ordering, map[string]compareFunc{
		"focus_percentage": func(i, j int) int { return compareInt(int64(reports[i].FocusPercentage), int64(reports[j].FocusPercentage)) },
		"duration":         func(i, j int) int { return compareInt(reports[i].Duration, reports[j].Duration) },
		"created_at":       func(i, j int) int { return compareTime(reports[i].CreatedAt, reports[j].CreatedAt) },
		"tab_switch_count": func(i, j int) int { return compareInt(int64(reports[i].TabSwitchCount), int64(reports[j].TabSwitchCount)) },
		"id":               func(i, j int) int { return compareString(reports[i].ID, reports[j].ID) },
	})
	return reports, nil
}
