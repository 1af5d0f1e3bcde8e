package classifiersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
)

type prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HTTPClassifier sends raw frames to a remote model server and reads back its label.
type HTTPClassifier struct {
	url    string
	client *rest.Client
}

var _ focus.Classifier = (*HTTPClassifier)(nil)

func NewHTTPClassifier(conf *core.Config) *HTTPClassifier {
	return &HTTPClassifier{
		url:    conf.Classifier.URL,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: conf.Classifier.Timeout}},
	}
}

// Classify POSTs the frame as application/octet-stream. Labels are matched case-insensitively.
func (c *HTTPClassifier) Classify(ctx context.Context, frame []byte) (focus.Label, error) {
	if len(frame) == 0 {
		return "", errors.New("empty frame")
	}

	res, err := c.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.url,
		Headers: map[string]string{"Content-Type": "application/octet-stream", "Accept": "application/json"},
		Body:    frame,
	})
	if err != nil {
		return "", errors.Wrap(err, "calling classifier")
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier status %d: %s", res.StatusCode, core.CleanString(res.Body))
	}

	var pred prediction
	if err = json.Unmarshal([]byte(res.Body), &pred); err != nil {
		return "", errors.Wrap(err, "decoding classifier response")
	}
	return focus.Label(strings.ToLower(strings.TrimSpace(pred.Label))), nil
}
