package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/hamzaf287/focus-app/core/focus"
	"github.com/hamzaf287/focus-app/core/session"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) } // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	sessions session.Repository
	reports  focus.Repository
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version")
	fmt.Println("  stats -session ID [-json] - print the focus statistics and reports of a session")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	statsCmd := flag.NewFlagSet("stats", flag.ContinueOnError)
	statsSession := statsCmd.String("session", "", "The class session ID.")
	statsJSON := statsCmd.Bool("json", false, "Print JSON, even on a terminal.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "stats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statsSession == "" {
			statsCmd.Usage()
			return errHelp
		}
		return cli.stats(*statsSession, *statsJSON || !isTerminalFunc())
	default:
		cli.printUsage()
		return errHelp
	}
}

type sessionStats struct {
	Session    session.Session  `json:"session"`
	Statistics focus.Statistics `json:"statistics"`
	Reports    []focus.Report   `json:"reports"`
}

func (cli *commandLine) stats(sessionID string, asJSON bool) error {
	ctx := context.Background()
	sess, err := cli.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	reports, err := cli.reports.QueryReports(ctx, focus.ReportFilter{SessionID: sess.ID}, focus.DefaultReportOrdering)
	if err != nil {
		return err
	}
	data := sessionStats{Session: sess, Statistics: focus.Summarize(reports), Reports: reports}

	if asJSON {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	fmt.Fprintf(cli.out, "%s (%s, %s)\n", sess.Name, sess.CourseID, sess.Status)
	fmt.Fprintf(cli.out, "reports: %d  students: %d  average: %.2f%%  max: %d%%  min: %d%%\n\n",
		data.Statistics.ReportCount, data.Statistics.StudentCount, data.Statistics.AverageFocus,
		data.Statistics.MaxFocus, data.Statistics.MinFocus,
	)
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARTICIPANT\tFOCUS\tGRADE\tFRAMES\tTAB SWITCHES\tDURATION")
	for _, rep := range reports {
		fmt.Fprintf(w, "%s\t%d%%\t%s\t%d\t%d\t%ds\n",
			rep.ParticipantID, rep.FocusPercentage, rep.Grade, rep.TotalFrames, rep.TabSwitchCount, rep.Duration,
		)
	}
	return w.Flush()
}
