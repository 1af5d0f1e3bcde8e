package tests

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/hamzaf287/focus-app/apps/api/echo"
	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
	"github.com/hamzaf287/focus-app/tests"
)

func trackingPath(sessionID, action string) string {
	return "/api/sessions/" + sessionID + "/tracking/" + action
}

func labelBody(label string) []byte {
	return []byte(`{"label": "` + label + `"}`)
}

func TestTrackingAPI_EndToEnd(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "LIT-1", teacher.ID, "Poetry", session.StatusRunning)
	token := getToken(t, student)

	rec := do(http.MethodPost, trackingPath(sess.ID, "start"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started StartResponse
	unmarshallRec(t, rec, &started)
	assert.True(t, started.OK)
	assert.Equal(t, focus.StatusRunning, started.Snapshot.Status)
	assert.Equal(t, student.ID, started.Snapshot.ParticipantID)

	for i := 0; i < 7; i++ {
		rec = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody("focused"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	for i := 0; i < 3; i++ {
		rec = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody("Distracted"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	for _, reason := range []string{"visibilitychange", "blur"} {
		rec = do(http.MethodPost, trackingPath(sess.ID, "tab-switches"), token, []byte(`{"reason": "`+reason+`"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"ok": true, "recorded": true}`, rec.Body.String())
	}

	rec = do(http.MethodGet, trackingPath(sess.ID, "stats"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap focus.Snapshot
	unmarshallRec(t, rec, &snap)
	assert.Equal(t, 10, snap.TotalFrames)
	assert.Equal(t, 7, snap.FocusedFrames)
	assert.Equal(t, 3, snap.DistractedFrames)
	assert.Equal(t, 2, snap.TabSwitchCount)
	assert.Equal(t, 70, snap.FocusPercentage)

	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep focus.Report
	unmarshallRec(t, rec, &rep)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, sess.ID, rep.SessionID)
	assert.Equal(t, student.ID, rep.ParticipantID)
	assert.Equal(t, "LIT-1", rep.CourseID)
	assert.Equal(t, 10, rep.TotalFrames)
	assert.Equal(t, 70, rep.FocusPercentage)
	assert.Equal(t, 2, rep.TabSwitchCount)
	assert.Len(t, rep.TabSwitches, 2)
	assert.False(t, rep.ClockSkew)
	assert.GreaterOrEqual(t, rep.Duration, int64(0))

	tests := []httpTest{
		{
			name:     "stop twice",
			method:   http.MethodPost,
			path:     trackingPath(sess.ID, "stop"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: focus.ErrNotRunning.Error()}),
		},
		{
			name:     "frame after stop",
			method:   http.MethodPost,
			path:     trackingPath(sess.ID, "frames"),
			body:     labelBody("focused"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: focus.ErrNotRunning.Error()}),
		},
		{
			name:     "tab switch after stop is acknowledged",
			method:   http.MethodPost,
			path:     trackingPath(sess.ID, "tab-switches"),
			body:     []byte(`{"reason": "blur"}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, TabSwitchResponse{OK: true, Recorded: false}),
		},
		{
			name:     "stats after stop",
			method:   http.MethodGet,
			path:     trackingPath(sess.ID, "stats"),
			token:    token,
			wantCode: http.StatusConflict,
		},
	}
	runHTTPTests(t, tests)

	// the report is persisted
	rec = do(http.MethodGet, "/api/reports/"+rep.ID, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved focus.Report
	unmarshallRec(t, rec, &saved)
	assert.Equal(t, 70, saved.FocusPercentage)
	assert.Len(t, saved.TabSwitches, 2)
}

func TestTrackingAPI_Errors(t *testing.T) {
	pending := testutil.CreateSession(t, sessRepo, "LIT-2", teacher.ID, "Prose", session.StatusNotStarted)
	running := testutil.CreateSession(t, sessRepo, "LIT-3", teacher.ID, "Drama", session.StatusRunning)
	token := getToken(t, student)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "start"),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "unknown session",
			method:   http.MethodPost,
			path:     trackingPath("unknown", "start"),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: session.ErrNotFound.Error()}),
		},
		{
			name:     "session not started",
			method:   http.MethodPost,
			path:     trackingPath(pending.ID, "start"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: session.ErrNotActive.Error()}),
		},
		{
			name:     "frame before start",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "frames"),
			body:     labelBody("focused"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: focus.ErrNotRunning.Error()}),
		},
		{
			name:     "stop before start",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "stop"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: focus.ErrNotRunning.Error()}),
		},
		{
			name:     "tab switch before start is acknowledged",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "tab-switches"),
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, TabSwitchResponse{OK: true, Recorded: false}),
		},
		{
			name:     "malformed tab switch is acknowledged",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "tab-switches"),
			body:     []byte(`{"timestamp": 12`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, TabSwitchResponse{OK: true, Recorded: false}),
		},
		{
			name:     "start",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "start"),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "start twice",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "start"),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: focus.ErrAlreadyRunning.Error()}),
		},
		{
			name:     "invalid label",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "frames"),
			body:     labelBody("sleepy"),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"label": "must be one of focused, distracted or undecided"}`),
		},
		{
			name:     "empty frame",
			method:   http.MethodPost,
			path:     trackingPath(running.ID, "frames"),
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"label": "a label or a frame is required"}`),
		},
		{
			name:     "invalid frames are not counted",
			method:   http.MethodGet,
			path:     trackingPath(running.ID, "stats"),
			token:    token,
			wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, tests)

	snap, err := focusSvc.LiveStats(context.Background(), focus.Key{SessionID: running.ID, ParticipantID: student.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalFrames)
	assert.Equal(t, 0, snap.FocusPercentage)
}

func TestTrackingAPI_ClassifyFrames(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "CS-50", teacher.ID, "Intro", session.StatusRunning)
	token := getToken(t, otherStudent)

	rec := do(http.MethodPost, trackingPath(sess.ID, "start"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []httpTest{
		{
			name:     "base64 frame",
			method:   http.MethodPost,
			path:     trackingPath(sess.ID, "frames"),
			body:     []byte(`{"frame": "` + base64.StdEncoding.EncodeToString([]byte("focused")) + `"}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, FrameResponse{OK: true, Label: focus.LabelFocused}),
		},
		{
			name:     "client label wins over the frame",
			method:   http.MethodPost,
			path:     trackingPath(sess.ID, "frames"),
			body:     []byte(`{"label": "distracted", "frame": "` + base64.StdEncoding.EncodeToString([]byte("focused")) + `"}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, FrameResponse{OK: true, Label: focus.LabelDistracted}),
		},
	}
	runHTTPTests(t, tests)

	rawFrame := func(frame string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, trackingPath(sess.ID, "frames"), bytes.NewReader([]byte(frame)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEOctetStream)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	rec = rawFrame("distracted")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok": true, "label": "distracted"}`, rec.Body.String())

	// classifier failures count as undecided
	rec = rawFrame("blurry")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok": true, "label": "undecided"}`, rec.Body.String())

	// oversized frames are rejected, not truncated
	rec = rawFrame(strings.Repeat("f", 5<<20+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error": "frame too large"}`, rec.Body.String())

	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep focus.Report
	unmarshallRec(t, rec, &rep)
	assert.Equal(t, 4, rep.TotalFrames)
	assert.Equal(t, 1, rep.FocusedFrames)
	assert.Equal(t, 2, rep.DistractedFrames)
	assert.Equal(t, 25, rep.FocusPercentage)
}

func TestTrackingAPI_ReportNotSaved(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "MUS-3", teacher.ID, "Choir", session.StatusRunning)
	token := getToken(t, student)

	rec := do(http.MethodPost, trackingPath(sess.ID, "start"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, label := range []string{"focused", "focused", "undecided"} {
		rec = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody(label))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	db.FailReportWrites(true)
	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	db.FailReportWrites(false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	var notSaved ReportNotSavedResponse
	unmarshallRec(t, rec, &notSaved)
	assert.True(t, notSaved.Retryable)
	assert.NotEmpty(t, notSaved.Report.ID)
	assert.Equal(t, 3, notSaved.Report.TotalFrames)
	assert.Equal(t, 67, notSaved.Report.FocusPercentage)

	// the run has ended
	rec = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody("focused"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// retrying saves the same report
	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep focus.Report
	unmarshallRec(t, rec, &rep)
	assert.Equal(t, notSaved.Report.ID, rep.ID)
	assert.Equal(t, 3, rep.TotalFrames)
	assert.Equal(t, 67, rep.FocusPercentage)

	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrackingAPI_ConcurrentFrames(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "PE-1", teacher.ID, "Gym", session.StatusRunning)
	token := getToken(t, student)

	rec := do(http.MethodPost, trackingPath(sess.ID, "start"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	const frames = 1000
	var wg sync.WaitGroup
	codes := make([]int, frames)
	for i := 0; i < frames; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			label := "focused"
			if i%2 == 1 {
				label = "distracted"
			}
			codes[i] = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody(label)).Code
		}(i)
	}
	wg.Wait()
	for i, code := range codes {
		require.Equal(t, http.StatusOK, code, fmt.Sprintf("frame %d", i))
	}

	rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep focus.Report
	unmarshallRec(t, rec, &rep)
	assert.Equal(t, frames, rep.TotalFrames)
	assert.Equal(t, frames/2, rep.FocusedFrames)
	assert.Equal(t, frames/2, rep.DistractedFrames)
	assert.Equal(t, 50, rep.FocusPercentage)
}

func TestTrackingAPI_UnsavedReportsSurviveRestart(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "ART-2", teacher.ID, "Sketching", session.StatusRunning)
	token := getToken(t, otherStudent)

	db.FailReportWrites(true)
	for _, label := range []string{"focused", "distracted"} {
		rec := do(http.MethodPost, trackingPath(sess.ID, "start"), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(http.MethodPost, trackingPath(sess.ID, "frames"), token, labelBody(label))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	}
	db.FailReportWrites(false)

	rec := do(http.MethodPost, trackingPath(sess.ID, "stop"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reports, err := focusSvc.Reports(context.Background(), focus.ReportFilter{SessionID: sess.ID}, nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].TotalFrames)
	assert.Equal(t, 1, reports[1].TotalFrames)
	assert.Equal(t, 1, reports[0].FocusedFrames+reports[1].FocusedFrames)
}
