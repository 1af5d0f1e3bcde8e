package focus

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
)

// Label is the per-frame classification outcome.
type Label string

const (
	LabelFocused    Label = "focused"
	LabelDistracted Label = "distracted"
	LabelUndecided  Label = "undecided"
)

var Labels = []Label{LabelFocused, LabelDistracted, LabelUndecided}

func (l Label) Valid() bool {
	for _, lbl := range Labels {
		if l == lbl {
			return true
		}
	}
	return false
}

// Classifier turns one video frame into a Label. Implementations may be slow or fail.
type Classifier interface {
	Classify(ctx context.Context, frame []byte) (Label, error)
}

// ClassifyFrame runs c on frame. A missing classifier, a classifier error or an unknown label all
// yield LabelUndecided together with an error wrapping ErrClassifierFailure, meant for logging only.
func ClassifyFrame(ctx context.Context, c Classifier, frame []byte) (Label, error) {
	if c == nil {
		return LabelUndecided, errors.Wrap(ErrClassifierFailure, "no classifier configured")
	}
	label, err := c.Classify(ctx, frame)
	if err != nil {
		return LabelUndecided, errors.Wrap(ErrClassifierFailure, err.Error())
	}
	if !label.Valid() {
		return LabelUndecided, errors.Wrapf(ErrClassifierFailure, "unknown label %q", label)
	}
	return label, nil
}

var (
	labelTag  = "focuslabel"
	labelText = "must be one of focused, distracted or undecided"
)

// InitValidators registers the focus validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(labelTag, func(fl validator.FieldLevel) bool {
		return Label(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, labelTag, labelText)
}
