package main

import (
	"context"
	"errors"
	"fmt"

	"invoiz/internal/store"
)

type runCatalog interface {
	LastRun(ctx context.Context) (*store.Run, error)
	CountRecords(ctx context.Context, runID string) (int, error)
}

// browseScope picks which run the browser shows. Without last it is every
// stored record under the default title.
func browseScope(ctx context.Context, db runCatalog, last bool) (runID, heading string, err error) {
	if !last {
		return "", "", nil
	}
	run, err := db.LastRun(ctx)
	if err != nil {
		return "", "", fmt.Errorf("load last run: %w", err)
	}
	if run == nil {
		return "", "", errors.New("no runs recorded yet; run `invoiz run` first")
	}
	// Counted from the records table so an interrupted run still reports
	// what it saved.
	n, err := db.CountRecords(ctx, run.ID)
	if err != nil {
		return "", "", fmt.Errorf("count records of run %s: %w", run.ID, err)
	}
	return run.ID, runHeading(run, n), nil
}

func runHeading(run *store.Run, stored int) string {
	h := fmt.Sprintf("Last run %q, %s: %d record(s)", run.Query, run.StartedAt.Local().Format("2006-01-02 15:04"), stored)
	switch {
	case run.Error != "":
		h += " (error: " + run.Error + ")"
	case run.FinishedAt.IsZero():
		h += " (unfinished)"
	}
	return h
}
