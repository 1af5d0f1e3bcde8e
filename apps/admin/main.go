package main

import (
	"fmt"
	"os"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/services/logger"
	"github.com/hamzaf287/focus-app/storage/database"
	"github.com/hamzaf287/focus-app/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewZeroLogger(os.Stderr, conf, true)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:       db,
		sessions: sqlxrepos.NewSessionRepository(db),
		reports:  sqlxrepos.NewReportRepository(db),
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
