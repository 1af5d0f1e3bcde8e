package focus

import (
	"bytes"
	"encoding/csv"
	"net/mail"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/session"
)

const summaryTemplate = "session_summary"

type summaryData struct {
	Session    session.Session
	Statistics Statistics
	Reports    []Report
}

// SendSessionSummary emails the statistics of an ended session, with every report attached as CSV.
func (svc *Service) SendSessionSummary(sess session.Session, to mail.Address, reports []Report, stats Statistics) error {
	if svc.mailSvc == nil || to.Address == "" {
		return nil
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Focus summary: " + sess.Name,
		TemplateName: summaryTemplate,
		TemplateData: summaryData{Session: sess, Statistics: stats, Reports: reports},
	}
	if len(reports) > 0 {
		content, err := reportsCSV(reports)
		if err != nil {
			return errors.Wrap(err, "writing reports csv")
		}
		if err = msg.Attach(bytes.NewReader(content), "session-"+sess.ID+".csv", "text/csv"); err != nil {
			return errors.Wrap(err, "attaching reports csv")
		}
	}

	svc.mailSvc.SendMessages(msg)
	return nil
}

func reportsCSV(reports []Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"participant_id", "duration", "total_frames", "focused_frames", "distracted_frames",
		"focus_percentage", "grade", "tab_switch_count", "clock_skew",
	})
	for _, rep := range reports {
		_ = w.Write([]string{
			rep.ParticipantID,
			strconv.FormatInt(rep.Duration, 10),
			strconv.Itoa(rep.TotalFrames),
			strconv.Itoa(rep.FocusedFrames),
			strconv.Itoa(rep.DistractedFrames),
			strconv.Itoa(rep.FocusPercentage),
			rep.Grade,
			strconv.Itoa(rep.TabSwitchCount),
			strconv.FormatBool(rep.ClockSkew),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
