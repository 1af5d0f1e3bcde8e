package focus

import (
	"math"
	"time"

	"github.com/hamzaf287/focus-app/core"
)

// Grades
const (
	GradeExcellent        = "Excellent"
	GradeGood             = "Good"
	GradeNeedsImprovement = "Needs Improvement"
)

// Report is the immutable summary of one ended run.
type Report struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	ParticipantID    string      `json:"participant_id"`
	CourseID         string      `json:"course_id"`
	StartTime        time.Time   `json:"start_time"` // UTC
	EndTime          time.Time   `json:"end_time"`   // UTC
	Duration         int64       `json:"duration"`   // seconds
	TotalFrames      int         `json:"total_frames"`
	FocusedFrames    int         `json:"focused_frames"`
	DistractedFrames int         `json:"distracted_frames"`
	FocusPercentage  int         `json:"focus_percentage"`
	TabSwitchCount   int         `json:"tab_switch_count"`
	TabSwitches      []TabSwitch `json:"tab_switches"`
	ClockSkew        bool        `json:"clock_skew"`
	Grade            string      `json:"grade"`
	CreatedAt        time.Time   `json:"created_at"` // UTC
}

// Build freezes a run into a Report. When the end time precedes the start time the duration
// is clamped to 0 and the report is flagged with ClockSkew.
func Build(run RunInfo, tally Tally, tabSwitchCount int) Report {
	rep := Report{
		SessionID:        run.SessionID,
		ParticipantID:    run.ParticipantID,
		CourseID:         run.CourseID,
		StartTime:        run.StartTime.UTC(),
		EndTime:          run.EndTime.UTC(),
		TotalFrames:      tally.TotalFrames,
		FocusedFrames:    tally.FocusedFrames,
		DistractedFrames: tally.DistractedFrames,
		FocusPercentage:  tally.FocusPercentage(),
		TabSwitchCount:   tabSwitchCount,
		TabSwitches:      []TabSwitch{},
		CreatedAt:        run.EndTime.UTC(),
	}
	if run.EndTime.Before(run.StartTime) {
		rep.ClockSkew = true
	} else {
		rep.Duration = int64(run.EndTime.Sub(run.StartTime) / time.Second)
	}
	rep.Grade = Grade(rep.FocusPercentage)
	return rep
}

func Grade(pct int) string {
	switch {
	case pct >= 80:
		return GradeExcellent
	case pct >= 60:
		return GradeGood
	default:
		return GradeNeedsImprovement
	}
}

// ReportFilter applies AND operation on the set fields.
type ReportFilter struct {
	SessionID     string `query:"session_id"`
	ParticipantID string `query:"participant_id"`
	CourseID      string `query:"course_id"`
}

func (f *ReportFilter) Clean() {
	f.SessionID = core.CleanString(f.SessionID)
	f.ParticipantID = core.CleanString(f.ParticipantID)
	f.CourseID = core.CleanString(f.CourseID)
}

// ReportOrderingFields are the fields reports may be ordered by.
var ReportOrderingFields = []string{"focus_percentage", "duration", "created_at", "tab_switch_count"}

// DefaultReportOrdering ranks the most focused participants first.
var DefaultReportOrdering = []core.DBOrdering{{Field: "focus_percentage"}, {Field: "created_at", Ascending: true}}

// Statistics summarizes the reports of a session.
type Statistics struct {
	ReportCount  int     `json:"report_count"`
	StudentCount int     `json:"student_count"`
	AverageFocus float64 `json:"average_focus"`
	MaxFocus     int     `json:"max_focus"`
	MinFocus     int     `json:"min_focus"`
}

func Summarize(reports []Report) Statistics {
	stats := Statistics{ReportCount: len(reports)}
	if len(reports) == 0 {
		return stats
	}

	participants := make(map[string]struct{}, len(reports))
	stats.MinFocus = math.MaxInt32
	var sum int
	for _, rep := range reports {
		participants[rep.ParticipantID] = struct{}{}
		sum += rep.FocusPercentage
		if rep.FocusPercentage > stats.MaxFocus {
			stats.MaxFocus = rep.FocusPercentage
		}
		if rep.FocusPercentage < stats.MinFocus {
			stats.MinFocus = rep.FocusPercentage
		}
	}
	stats.StudentCount = len(participants)
	stats.AverageFocus = math.Round(float64(sum)/float64(len(reports))*100) / 100
	return stats
}
