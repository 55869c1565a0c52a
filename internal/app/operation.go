package app

import (
	"fmt"
	"path/filepath"

	"confbk/internal/confbk"
	"confbk/internal/model"
)

// Operation tracks one backup run in the history database, from the
// moment the executor starts until it returns.
type Operation struct {
	history confbk.History
	run     *model.Run
}

// StartOperation records a new running backup.
func StartOperation(history confbk.History, runID, outputPath string, entryCount int) (*Operation, error) {
	run, err := history.StartRun(runID, outputPath, entryCount)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	return &Operation{history: history, run: run}, nil
}

// Run returns the tracked history record.
func (op *Operation) Run() *model.Run {
	return op.run
}

// Finish stores the outcome. A nil runErr marks the run successful; the
// archive path is taken from res when there is one and stored absolute.
func (op *Operation) Finish(res *confbk.Result, runErr error) error {
	op.run.Status = model.RunStatusSuccess
	op.run.Error = ""
	if runErr != nil {
		op.run.Status = model.RunStatusError
		op.run.Error = runErr.Error()
	}
	if res != nil && res.ArchivePath != "" {
		archivePath, err := filepath.Abs(res.ArchivePath)
		if err != nil {
			archivePath = res.ArchivePath
		}
		op.run.ArchivePath = archivePath
	}

	if err := op.history.FinishRun(op.run); err != nil {
		return fmt.Errorf("recording run result: %w", err)
	}
	return nil
}
