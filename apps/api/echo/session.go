package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
)

type sessionApi struct {
	svc      *session.Service
	focusSvc *focus.Service
	validate *validator.Validate
	logger   core.Logger
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := sessionApi{
		svc:      deps.SessionSvc,
		focusSvc: deps.FocusSvc,
		validate: deps.Validate,
		logger:   deps.Logger,
	}
	member := sessionMiddleware(api.svc, false)
	owner := sessionMiddleware(api.svc, true)

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.create, teacherMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve, member)

	// teacher endpoints
	sg.POST("/:id/start", api.start, owner)
	sg.POST("/:id/end", api.end, owner)
	sg.GET("/:id/live", api.live, owner)
	sg.GET("/:id/live/events", api.liveEvents, owner)
	sg.GET("/:id/reports", api.reports, owner)
	sg.GET("/:id/statistics", api.statistics, owner)
}

type EndSessionResponse struct {
	Session    session.Session  `json:"session"`
	Statistics focus.Statistics `json:"statistics"`
	Stopped    int              `json:"stopped"` // runs stopped by this call
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Create(ctx.Request().Context(), contextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *sessionApi) query(ctx echo.Context) error {
	filter := new(session.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []session.Session{})
	}
	filter.Clean()

	// teachers only see their own sessions
	if usr := contextUser(ctx); usr.IsTeacher() && !usr.IsAdmin() {
		filter.TeacherID = usr.ID
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	sessions, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) start(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	sess, err = api.svc.Start(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// end closes the session and stops every live run in it. Calling it again on an ended session
// retries the reports that could not be saved.
func (api *sessionApi) end(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	if sess.Status != session.StatusEnded {
		if sess, err = api.svc.End(rctx, sess.ID); err != nil {
			return errors.Wrap(err, "ending session")
		}
	}

	stopped, err := api.focusSvc.StopSession(rctx, sess.ID)
	if err != nil {
		return errors.Wrap(err, "stopping live runs")
	}

	reports, err := api.focusSvc.Reports(rctx, focus.ReportFilter{SessionID: sess.ID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying session reports")
	}
	stats := focus.Summarize(reports)

	usr := contextUser(ctx)
	to := mail.Address{Name: usr.Username, Address: usr.Email}
	if err = api.focusSvc.SendSessionSummary(sess, to, reports, stats); err != nil {
		api.logger.Warn(fmt.Sprintf("sending summary of session %s: %v", sess.ID, err), err, usr.Person())
	}

	return ctx.JSON(http.StatusOK, EndSessionResponse{Session: sess, Statistics: stats, Stopped: len(stopped)})
}

func (api *sessionApi) live(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, api.focusSvc.LiveSession(sess.ID))
}

// liveEvents streams the run events of the session as server-sent events until the
// client goes away.
func (api *sessionApi) liveEvents(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	events, err := api.focusSvc.SubscribeSession(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "subscribing to live events")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return errors.Wrap(err, "marshalling live event")
		}
		if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
			return nil // client gone
		}
		res.Flush()
	}
	return nil
}

func (api *sessionApi) reports(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reports, err := api.focusSvc.Reports(
		ctx.Request().Context(),
		focus.ReportFilter{SessionID: sess.ID},
		ordering.Allowed(focus.DefaultReportOrdering, focus.ReportOrderingFields...),
	)
	if err != nil {
		return errors.Wrap(err, "querying session reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *sessionApi) statistics(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	stats, err := api.focusSvc.Statistics(ctx.Request().Context(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "computing session statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}
