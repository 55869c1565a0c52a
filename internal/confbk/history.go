package confbk

import "confbk/internal/model"

// History records backup runs.
type History interface {
	// StartRun inserts a run in the running state.
	StartRun(runID, outputPath string, entryCount int) (*model.Run, error)

	// FinishRun stores the run's final status, archive path and error.
	FinishRun(run *model.Run) error

	// ListRuns returns up to limit runs, newest first.
	ListRuns(limit int) ([]*model.Run, error)

	// Close closes the underlying store.
	Close() error
}
