package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
	errFrameTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "frame too large")
)

// domainErrors maps the sentinel errors of the core packages to their HTTP status.
var domainErrors = []struct {
	err  error
	code int
}{
	{session.ErrNotFound, http.StatusNotFound},
	{session.ErrNotActive, http.StatusConflict},
	{session.ErrCourseBusy, http.StatusConflict},
	{session.ErrInvalidTransition, http.StatusConflict},
	{focus.ErrInvalidTransition, http.StatusConflict},
	{focus.ErrAlreadyRunning, http.StatusConflict},
	{focus.ErrNotRunning, http.StatusConflict},
	{focus.ErrReportNotFound, http.StatusNotFound},
	{focus.ErrNoLiveEvents, http.StatusNotImplemented},
}

func domainErrorCode(err error) (int, bool) {
	for _, de := range domainErrors {
		if err == de.err {
			return de.code, true
		}
	}
	return 0, false
}

// ReportNotSavedResponse is sent when a run has ended but its report could not be written yet.
type ReportNotSavedResponse struct {
	Error     string       `json:"error"`
	Retryable bool         `json:"retryable"`
	Report    focus.Report `json:"report"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := domainErrorCode(cause); ok {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *focus.ReportNotSavedError:
				code = http.StatusServiceUnavailable
				message = ReportNotSavedResponse{
					Error:     "report could not be saved, retry stopping the session",
					Retryable: core.IsRetryable(err),
					Report:    origErr.Report,
				}
				logger.Error(origErr.Error(), err, contextUser(ctx).Person())
				if core.IsShutdown(origErr.Err) {
					signalShutdown()
				}
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx).Person())

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug && code >= http.StatusInternalServerError {
				m = err.Error()
			}
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
