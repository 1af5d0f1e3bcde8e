package echoapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
)

const (
	maxFrameSize    = 5 << 20
	maxFrameBody    = "8M" // a base64 frame inside JSON
	maxReasonLength = 255
)

type trackingApi struct {
	svc      *focus.Service
	validate *validator.Validate
}

func registerTrackingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := trackingApi{
		svc:      deps.FocusSvc,
		validate: deps.Validate,
	}

	// the participant is always the authenticated user
	tg := g.Group("/sessions/:id/tracking", jwt)
	tg.POST("/start", api.start)
	tg.POST("/frames", api.recordFrame, middleware.BodyLimit(maxFrameBody))
	tg.POST("/tab-switches", api.recordTabSwitch)
	tg.GET("/stats", api.stats)
	tg.POST("/stop", api.stop)
}

type (
	// FrameRequest carries either a label computed by the client or the raw frame (base64) to classify.
	FrameRequest struct {
		Label focus.Label `json:"label" validate:"omitempty,focuslabel"`
		Frame []byte      `json:"frame"`
	}

	FrameResponse struct {
		OK    bool        `json:"ok"`
		Label focus.Label `json:"label"`
	}

	TabSwitchRequest struct {
		Timestamp time.Time `json:"timestamp"`
		Reason    string    `json:"reason"`
	}

	TabSwitchResponse struct {
		OK       bool `json:"ok"`
		Recorded bool `json:"recorded"`
	}

	StartResponse struct {
		OK       bool           `json:"ok"`
		Snapshot focus.Snapshot `json:"snapshot"`
	}
)

func (fr *FrameRequest) Validate(validate *validator.Validate) error {
	fr.Label = focus.Label(core.CleanString(string(fr.Label), true /* lower */))
	if fr.Label == "" && len(fr.Frame) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "label", Error: "a label or a frame is required"})
	}
	return validate.Struct(fr)
}

func (tr *TabSwitchRequest) Clean() {
	tr.Reason = core.CleanString(tr.Reason)
	if len(tr.Reason) > maxReasonLength {
		tr.Reason = tr.Reason[:maxReasonLength]
	}
}

func participantKey(ctx echo.Context) focus.Key {
	return focus.Key{SessionID: ctx.Param("id"), ParticipantID: contextUser(ctx).ID}
}

// Handlers

func (api *trackingApi) start(ctx echo.Context) error {
	snap, err := api.svc.Start(ctx.Request().Context(), participantKey(ctx))
	if err != nil {
		return errors.Wrap(err, "starting run")
	}
	return ctx.JSON(http.StatusOK, StartResponse{OK: true, Snapshot: snap})
}

// recordFrame accepts JSON or a raw application/octet-stream frame.
func (api *trackingApi) recordFrame(ctx echo.Context) error {
	var data FrameRequest
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEOctetStream) {
		frame, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxFrameSize+1))
		if err != nil {
			return errors.Wrap(err, "reading frame")
		}
		if len(frame) > maxFrameSize {
			return errFrameTooLarge
		}
		data.Frame = frame
	} else if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FrameRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	key := participantKey(ctx)
	label := data.Label
	var err error
	if label != "" {
		err = api.svc.RecordFrame(ctx.Request().Context(), key, label)
	} else {
		label, err = api.svc.ClassifyAndRecord(ctx.Request().Context(), key, data.Frame)
	}
	if err != nil {
		return errors.Wrap(err, "recording frame")
	}
	return ctx.JSON(http.StatusOK, FrameResponse{OK: true, Label: label})
}

// recordTabSwitch never fails: events outside a live run are acknowledged and dropped.
func (api *trackingApi) recordTabSwitch(ctx echo.Context) error {
	var data TabSwitchRequest
	if err := ctx.Bind(&data); err != nil {
		ctx.Logger().Debugf("binding to TabSwitchRequest: %v", err)
		return ctx.JSON(http.StatusOK, TabSwitchResponse{OK: true})
	}
	data.Clean()

	recorded := api.svc.RecordTabSwitch(ctx.Request().Context(), participantKey(ctx), data.Timestamp, data.Reason)
	return ctx.JSON(http.StatusOK, TabSwitchResponse{OK: true, Recorded: recorded})
}

func (api *trackingApi) stats(ctx echo.Context) error {
	snap, err := api.svc.LiveStats(ctx.Request().Context(), participantKey(ctx))
	if err != nil {
		return errors.Wrap(err, "reading live stats")
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *trackingApi) stop(ctx echo.Context) error {
	rep, err := api.svc.Stop(ctx.Request().Context(), participantKey(ctx))
	if err != nil {
		return errors.Wrap(err, "stopping run")
	}
	return ctx.JSON(http.StatusOK, rep)
}
