package model

import (
	"database/sql"
	"time"
)

// Run status values.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run is one recorded backup invocation.
type Run struct {
	ID          int64  // autoincrement row ID
	RunID       string // UUID, also used as the log operation ID
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	OutputPath  string // absolute output directory
	ArchivePath string // final artifact; empty when not compressed
	EntryCount  int
	Status      string
	Error       string
}

// Finished reports whether the run has been closed out.
func (r *Run) Finished() bool {
	return r.FinishedAt.Valid
}
