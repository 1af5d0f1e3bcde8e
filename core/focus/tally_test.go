package focus

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFocusPercentage(t *testing.T) {
	tests := []struct {
		name    string
		focused int
		total   int
		want    int
	}{
		{name: "no frames", focused: 0, total: 0, want: 0},
		{name: "no focused frames", focused: 0, total: 12, want: 0},
		{name: "all focused", focused: 12, total: 12, want: 100},
		{name: "seven of ten", focused: 7, total: 10, want: 70},
		{name: "half", focused: 500, total: 1000, want: 50},
		{name: "rounds half up", focused: 1, total: 8, want: 13},
		{name: "rounds down", focused: 1, total: 3, want: 33},
		{name: "rounds up", focused: 2, total: 3, want: 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FocusPercentage(tt.focused, tt.total))
		})
	}
}

func TestAggregator_RecordFrame(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		var agg Aggregator
		n := rnd.Intn(200)
		var focused, distracted int
		for j := 0; j < n; j++ {
			label := Labels[rnd.Intn(len(Labels))]
			switch label {
			case LabelFocused:
				focused++
			case LabelDistracted:
				distracted++
			}
			agg.RecordFrame(label)
		}

		tally := agg.Snapshot()
		assert.Equal(t, n, tally.TotalFrames)
		assert.Equal(t, focused, tally.FocusedFrames)
		assert.Equal(t, distracted, tally.DistractedFrames)
		assert.Equal(t, n-focused-distracted, tally.UndecidedFrames())
		assert.GreaterOrEqual(t, tally.FocusPercentage(), 0)
		assert.LessOrEqual(t, tally.FocusPercentage(), 100)
	}
}

func TestAggregator_Snapshot(t *testing.T) {
	var agg Aggregator
	agg.RecordFrame(LabelFocused)
	agg.RecordTabSwitch(TabSwitch{Timestamp: time.Now(), Reason: "blur"})

	snap := agg.Snapshot()
	tabs := agg.TabSwitches()
	agg.RecordFrame(LabelUndecided)
	agg.RecordTabSwitch(TabSwitch{Timestamp: time.Now(), Reason: "hidden"})

	assert.Equal(t, Tally{TotalFrames: 1, FocusedFrames: 1, TabSwitchCount: 1}, snap)
	assert.Len(t, tabs, 1)
	assert.Equal(t, 2, agg.Snapshot().TotalFrames)
}

func TestBuild(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tally := Tally{TotalFrames: 10, FocusedFrames: 7, DistractedFrames: 3, TabSwitchCount: 2}

	t.Run("regular run", func(t *testing.T) {
		run := RunInfo{SessionID: "s1", ParticipantID: "p1", CourseID: "c1", StartTime: start, EndTime: start.Add(90 * time.Second)}
		rep := Build(run, tally, 2)

		assert.Equal(t, "s1", rep.SessionID)
		assert.Equal(t, "p1", rep.ParticipantID)
		assert.Equal(t, "c1", rep.CourseID)
		assert.Equal(t, int64(90), rep.Duration)
		assert.Equal(t, 10, rep.TotalFrames)
		assert.Equal(t, 7, rep.FocusedFrames)
		assert.Equal(t, 3, rep.DistractedFrames)
		assert.Equal(t, 70, rep.FocusPercentage)
		assert.Equal(t, 2, rep.TabSwitchCount)
		assert.Equal(t, GradeGood, rep.Grade)
		assert.False(t, rep.ClockSkew)
		assert.True(t, rep.CreatedAt.Equal(run.EndTime))
	})

	t.Run("clock skew", func(t *testing.T) {
		run := RunInfo{SessionID: "s1", ParticipantID: "p1", StartTime: start, EndTime: start.Add(-time.Minute)}
		rep := Build(run, tally, 2)

		assert.Equal(t, int64(0), rep.Duration)
		assert.True(t, rep.ClockSkew)
	})

	t.Run("empty run", func(t *testing.T) {
		run := RunInfo{SessionID: "s1", ParticipantID: "p1", StartTime: start, EndTime: start}
		rep := Build(run, Tally{}, 0)

		assert.Equal(t, 0, rep.FocusPercentage)
		assert.Equal(t, GradeNeedsImprovement, rep.Grade)
		assert.NotNil(t, rep.TabSwitches)
	})
}

func TestGrade(t *testing.T) {
	assert.Equal(t, GradeExcellent, Grade(100))
	assert.Equal(t, GradeExcellent, Grade(80))
	assert.Equal(t, GradeGood, Grade(79))
	assert.Equal(t, GradeGood, Grade(60))
	assert.Equal(t, GradeNeedsImprovement, Grade(59))
	assert.Equal(t, GradeNeedsImprovement, Grade(0))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Statistics{}, Summarize(nil))

	stats := Summarize([]Report{
		{ParticipantID: "p1", FocusPercentage: 70},
		{ParticipantID: "p2", FocusPercentage: 45},
		{ParticipantID: "p1", FocusPercentage: 90},
	})
	assert.Equal(t, Statistics{ReportCount: 3, StudentCount: 2, AverageFocus: 68.33, MaxFocus: 90, MinFocus: 45}, stats)
}
