package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzaf287/focus-app/core/focus"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	started := testutil.ToFloat64(runsStarted)
	active := testutil.ToFloat64(runsActive)
	focused := testutil.ToFloat64(framesTotal.WithLabelValues("focused"))
	good := testutil.ToFloat64(reportsTotal.WithLabelValues(focus.GradeGood))
	skews := testutil.ToFloat64(clockSkews)
	dropped := testutil.ToFloat64(eventsDropped.WithLabelValues("frame"))

	rec.RunStarted()
	rec.FrameRecorded(focus.LabelFocused)
	rec.FrameRecorded(focus.LabelFocused)
	rec.TabSwitchRecorded()
	rec.EventDropped("frame")
	assert.Equal(t, active+1, testutil.ToFloat64(runsActive))

	rec.RunStopped(focus.Report{FocusPercentage: 70, Grade: focus.GradeGood, ClockSkew: true})

	assert.Equal(t, started+1, testutil.ToFloat64(runsStarted))
	assert.Equal(t, active, testutil.ToFloat64(runsActive))
	assert.Equal(t, focused+2, testutil.ToFloat64(framesTotal.WithLabelValues("focused")))
	assert.Equal(t, good+1, testutil.ToFloat64(reportsTotal.WithLabelValues(focus.GradeGood)))
	assert.Equal(t, skews+1, testutil.ToFloat64(clockSkews))
	assert.Equal(t, dropped+1, testutil.ToFloat64(eventsDropped.WithLabelValues("frame")))
}

func TestHandler(t *testing.T) {
	NewRecorder().TabSwitchRecorded()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "focus_tab_switches_total")
}
