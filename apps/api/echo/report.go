package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
	"github.com/hamzaf287/focus-app/core/user"
)

type reportApi struct {
	svc        *focus.Service
	sessionSvc *session.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := reportApi{
		svc:        deps.FocusSvc,
		sessionSvc: deps.SessionSvc,
	}

	rg := g.Group("/reports", jwt)
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
}

// canRead reports whether usr may read rep: its participant, the session teacher or an admin.
func (api *reportApi) canRead(ctx echo.Context, usr user.User, rep focus.Report) (bool, error) {
	if usr.IsAdmin() || rep.ParticipantID == usr.ID {
		return true, nil
	}
	if !usr.IsTeacher() {
		return false, nil
	}
	sess, err := api.sessionSvc.GetByID(ctx.Request().Context(), rep.SessionID)
	if err != nil {
		if errors.Cause(err) == session.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding session by ID")
	}
	return usr.CanManage(sess.TeacherID), nil
}

// Handlers

// query lists reports. Students only ever see their own; teachers see those of their sessions.
func (api *reportApi) query(ctx echo.Context) error {
	filter := new(focus.ReportFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []focus.Report{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr := contextUser(ctx)
	if !usr.IsAdmin() && !usr.IsTeacher() {
		filter.ParticipantID = usr.ID
	}

	reports, err := api.svc.Reports(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}

	visible := make([]focus.Report, 0, len(reports))
	sessionAccess := make(map[string]bool)
	for _, rep := range reports {
		if usr.IsAdmin() || rep.ParticipantID == usr.ID {
			visible = append(visible, rep)
			continue
		}
		ok, seen := sessionAccess[rep.SessionID]
		if !seen {
			if ok, err = api.canRead(ctx, usr, rep); err != nil {
				return err
			}
			sessionAccess[rep.SessionID] = ok
		}
		if ok {
			visible = append(visible, rep)
		}
	}
	return ctx.JSON(http.StatusOK, visible)
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	rep, err := api.svc.GetReport(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == focus.ErrReportNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding report by ID")
	}

	ok, err := api.canRead(ctx, contextUser(ctx), rep)
	if err != nil {
		return err
	}
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, rep)
}
