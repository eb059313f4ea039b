package expense

import (
	"context"
	"log/slog"
)

// LogCommitter is the in-repo adapter at the persistence boundary: it
// records the commit decision and leaves the actual write to the host
// application's collaborator.
type LogCommitter struct {
	logger *slog.Logger
}

func NewLogCommitter(logger *slog.Logger) *LogCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCommitter{logger: logger}
}

func (c *LogCommitter) Commit(_ context.Context, groupID int64, rec Record) error {
	c.logger.Info("expense.commit",
		"group_id", groupID,
		"category", rec.Category,
		"comment", rec.Comment,
		"amount", rec.Amount.String(),
		"currency", rec.Currency,
		"date", rec.Date.Format("2006-01-02"),
	)
	return nil
}
