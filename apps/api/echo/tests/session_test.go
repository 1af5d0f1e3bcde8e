package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/hamzaf287/focus-app/apps/api/echo"
	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
	"github.com/hamzaf287/focus-app/services/email"
	"github.com/hamzaf287/focus-app/services/logger"
	"github.com/hamzaf287/focus-app/storage/database/dummy"
	"github.com/hamzaf287/focus-app/tests"
)

func TestSessionAPI_Create(t *testing.T) {
	teacherToken := getToken(t, teacher)
	studentToken := getToken(t, student)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     "/api/sessions",
			body:     []byte(`{"course_id": "MATH-101"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "students cannot create sessions",
			method:   http.MethodPost,
			path:     "/api/sessions",
			body:     []byte(`{"course_id": "MATH-101"}`),
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden),
		},
		{
			name:     "missing course",
			method:   http.MethodPost,
			path:     "/api/sessions",
			body:     []byte(`{"name": "Algebra"}`),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"course_id": "this field is required"}`),
		},
		{
			name:     "invalid course",
			method:   http.MethodPost,
			path:     "/api/sessions",
			body:     []byte(`{"course_id": "math 101/a"}`),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"course_id": "only letters, digits and the characters _ - . : are allowed"}`),
		},
	}
	runHTTPTests(t, tests)

	t.Run("created", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/sessions", teacherToken, []byte(`{"course_id": " MATH-101 ", "name": "Algebra"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sess session.Session
		unmarshallRec(t, rec, &sess)
		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, "MATH-101", sess.CourseID)
		assert.Equal(t, teacher.ID, sess.TeacherID)
		assert.Equal(t, "Algebra", sess.Name)
		assert.Equal(t, session.StatusNotStarted, sess.Status)
	})
}

func TestSessionAPI_Lifecycle(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "HIST-7", teacher.ID, "History", session.StatusNotStarted)
	busy := testutil.CreateSession(t, sessRepo, "HIST-7", teacher.ID, "History bis", session.StatusNotStarted)
	teacherToken := getToken(t, teacher)

	tests := []httpTest{
		{
			name:     "other teachers can read it",
			method:   http.MethodGet,
			path:     "/api/sessions/" + sess.ID,
			token:    getToken(t, otherTeacher),
			wantCode: http.StatusOK,
		},
		{
			name:     "other teacher cannot start it",
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/start",
			token:    getToken(t, otherTeacher),
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, errNotFound),
		},
		{
			name:     "unknown session",
			method:   http.MethodPost,
			path:     "/api/sessions/unknown/start",
			token:    teacherToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, errNotFound),
		},
		{
			name:     "cannot end before start",
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/end",
			token:    teacherToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: session.ErrInvalidTransition.Error()}),
		},
		{
			name:     "start",
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/start",
			token:    teacherToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "start twice",
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/start",
			token:    teacherToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: session.ErrInvalidTransition.Error()}),
		},
		{
			name:     "one running session per course",
			method:   http.MethodPost,
			path:     "/api/sessions/" + busy.ID + "/start",
			token:    teacherToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: session.ErrCourseBusy.Error()}),
		},
		{
			name:     "end",
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/end",
			token:    teacherToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "course is free again",
			method:   http.MethodPost,
			path:     "/api/sessions/" + busy.ID + "/start",
			token:    teacherToken,
			wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, tests)

	got, err := sessRepo.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.NotNil(t, got.StartTime)
	assert.NotNil(t, got.EndTime)
}

func TestSessionAPI_Query(t *testing.T) {
	mine := testutil.CreateSession(t, sessRepo, "GEO-9", teacher.ID, "Maps", session.StatusEnded)
	theirs := testutil.CreateSession(t, sessRepo, "GEO-9", otherTeacher.ID, "Rivers", session.StatusEnded)

	ids := func(token string) []string {
		rec := do(http.MethodGet, "/api/sessions?course_id=GEO-9", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sessions []session.Session
		unmarshallRec(t, rec, &sessions)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		return ids
	}

	assert.Equal(t, []string{mine.ID}, ids(getToken(t, teacher)))
	assert.Equal(t, []string{theirs.ID}, ids(getToken(t, otherTeacher)))
	assert.ElementsMatch(t, []string{mine.ID, theirs.ID}, ids(getToken(t, admin)))

	// teachers cannot widen their filter
	rec := do(http.MethodGet, "/api/sessions?teacher_id="+otherTeacher.ID+"&course_id=GEO-9", getToken(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSessionAPI_EndStopsLiveRuns(t *testing.T) {
	emailsvc.ResetSentMessages()
	sess := testutil.CreateSession(t, sessRepo, "ART-4", teacher.ID, "Drawing", session.StatusRunning)
	teacherToken := getToken(t, teacher)
	studentToken := getToken(t, student)
	otherToken := getToken(t, otherStudent)
	base := "/api/sessions/" + sess.ID

	for _, token := range []string{studentToken, otherToken} {
		rec := do(http.MethodPost, base+"/tracking/start", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	for _, label := range []string{"focused", "focused", "distracted"} {
		rec := do(http.MethodPost, base+"/tracking/frames", studentToken, []byte(`{"label": "`+label+`"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := do(http.MethodPost, base+"/tracking/frames", otherToken, []byte(`{"label": "focused"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// live view
	rec = do(http.MethodGet, base+"/live", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var live []focus.Snapshot
	unmarshallRec(t, rec, &live)
	assert.Len(t, live, 2)

	rec = do(http.MethodGet, base+"/live", studentToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// end
	rec = do(http.MethodPost, base+"/end", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp EndSessionResponse
	unmarshallRec(t, rec, &resp)
	assert.Equal(t, session.StatusEnded, resp.Session.Status)
	assert.Equal(t, 2, resp.Stopped)
	assert.Equal(t, 2, resp.Statistics.ReportCount)
	assert.Equal(t, 2, resp.Statistics.StudentCount)
	assert.Equal(t, 100, resp.Statistics.MaxFocus)
	assert.Equal(t, 67, resp.Statistics.MinFocus)

	// runs are gone
	rec = do(http.MethodGet, base+"/tracking/stats", studentToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(http.MethodGet, base+"/live", teacherToken)
	assert.JSONEq(t, "[]", rec.Body.String())

	// reports
	rec = do(http.MethodGet, base+"/reports?ordering=-focus_percentage", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reports []focus.Report
	unmarshallRec(t, rec, &reports)
	require.Len(t, reports, 2)
	assert.Equal(t, otherStudent.ID, reports[0].ParticipantID)
	assert.Equal(t, 100, reports[0].FocusPercentage)
	assert.Equal(t, student.ID, reports[1].ParticipantID)
	assert.Equal(t, 67, reports[1].FocusPercentage)

	rec = do(http.MethodGet, base+"/statistics", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats focus.Statistics
	unmarshallRec(t, rec, &stats)
	assert.Equal(t, resp.Statistics, stats)

	// summary email to the teacher
	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, teacher.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Drawing")
	require.Len(t, sent[0].Attachments, 1)
	assert.True(t, strings.HasSuffix(sent[0].Attachments[0].Filename, ".csv"))

	// ending again is a no-op
	rec = do(http.MethodPost, base+"/end", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshallRec(t, rec, &resp)
	assert.Equal(t, 0, resp.Stopped)
	assert.Equal(t, 2, resp.Statistics.ReportCount)
}

// replayEvents replays the events of a session, then ends the stream.
type replayEvents map[string][]focus.LiveEvent

func (r replayEvents) Subscribe(_ context.Context, sessionID string) (<-chan focus.LiveEvent, error) {
	events := make(chan focus.LiveEvent, len(r[sessionID]))
	for _, evt := range r[sessionID] {
		events <- evt
	}
	close(events)
	return events, nil
}

func TestSessionAPI_LiveEvents(t *testing.T) {
	sess := testutil.CreateSession(t, sessRepo, "BIO-7", teacher.ID, "Cells", session.StatusRunning)
	path := "/api/sessions/" + sess.ID + "/live/events"
	teacherToken := getToken(t, teacher)

	rec := do(http.MethodGet, path, teacherToken)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.JSONEq(t, `{"error": "live events are not enabled"}`, rec.Body.String())

	snap := focus.Snapshot{SessionID: sess.ID, ParticipantID: student.ID, Status: focus.StatusRunning, Version: 3}
	rep := focus.Report{ID: "r-live", SessionID: sess.ID, ParticipantID: student.ID}
	logger := logsvc.NewNopLogger()
	sessionSvc := session.NewService(sessRepo, nil)
	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		SessionSvc: sessionSvc,
		FocusSvc: focus.NewService(focus.Deps{
			Sessions: sessionSvc,
			Reports:  dummydb.NewReportRepository(db),
			Logger:   logger,
			Events: replayEvents{sess.ID: {
				{Type: focus.EventSnapshot, Snapshot: &snap},
				{Type: focus.EventReport, Report: &rep},
			}},
		}),
		Validate:   validate,
		Translator: translator,
	})

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "students cannot listen", token: getToken(t, student), wantCode: http.StatusNotFound},
		{name: "other teachers cannot listen", token: getToken(t, otherTeacher), wantCode: http.StatusNotFound},
		{name: "owner", token: teacherToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, path, tt.token)
			server.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
			blocks := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
			require.Len(t, blocks, 2)
			assert.True(t, strings.HasPrefix(blocks[0], "event: snapshot\ndata: {"), blocks[0])
			assert.Contains(t, blocks[0], `"version":3`)
			assert.True(t, strings.HasPrefix(blocks[1], "event: report\ndata: {"), blocks[1])
			assert.Contains(t, blocks[1], `"id":"r-live"`)
		})
	}
}
