package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core/session"
)

// teacherMiddleware only lets teachers and admins through.
func teacherMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsTeacher || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// sessionMiddleware loads the `:id` session into the context.
// With ownerOnly, only its teacher or an admin get through; others get a 404.
func sessionMiddleware(svc *session.Service, ownerOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == session.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding session by ID")
			}
			if ownerOnly && !contextUser(ctx).CanManage(sess.TeacherID) {
				return errHttpNotFound
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

var errSessionNotFoundInCtx = errors.New("session object not found in echo.Context")

func contextSession(ctx echo.Context) (session.Session, error) {
	sess, ok := ctx.Get(contextSessionKey).(session.Session)
	if !ok {
		return session.Session{}, errSessionNotFoundInCtx
	}
	return sess, nil
}
