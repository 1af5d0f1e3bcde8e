package session

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hamzaf287/focus-app/core"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusEnded      Status = "ended"
)

var Statuses = []Status{StatusNotStarted, StatusRunning, StatusEnded}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Session is one scheduled focus-tracking window of a course, owned by the teacher who created it.
type Session struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"course_id"`
	TeacherID string     `json:"teacher_id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"start_time"` // UTC
	EndTime   *time.Time `json:"end_time"`   // UTC
	CreatedAt time.Time  `json:"created_at"` // UTC
}

func (s Session) IsRunning() bool {
	return s.Status == StatusRunning
}

// DefaultName is the name given to sessions created without one.
func DefaultName(t time.Time) string {
	return "Session " + t.UTC().Format("2006-01-02 15:04")
}

// NewSession contains information needed to create a new Session.
type NewSession struct {
	CourseID string `json:"course_id" validate:"required,max=64,identifier"`
	Name     string `json:"name" validate:"omitempty,max=255"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.CourseID = core.CleanString(ns.CourseID)
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	CourseID  string   `query:"course_id"`
	TeacherID string   `query:"teacher_id"`
	Status    []Status `query:"status"`
}

func (f *QueryFilter) Clean() {
	f.CourseID = core.CleanString(f.CourseID)
	f.TeacherID = core.CleanString(f.TeacherID)

	statuses := make([]Status, 0, len(f.Status))
	for _, st := range f.Status {
		if st = Status(core.CleanString(string(st), true /* lower */)); st.Valid() {
			statuses = append(statuses, st)
		}
	}
	f.Status = statuses
}

// OrderingFields are the fields sessions may be ordered by.
var OrderingFields = []string{"created_at", "start_time", "end_time", "name"}
