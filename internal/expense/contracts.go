package expense

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the shape the external commit-expense collaborator expects.
type Record struct {
	Date     time.Time
	Category string
	Comment  string
	Amount   decimal.Decimal
	Currency string
}

// Committer hands a confirmed item to the expense-persistence collaborator.
// This subsystem only decides what to send and when; the write itself is
// somebody else's job.
type Committer interface {
	Commit(ctx context.Context, groupID int64, rec Record) error
}
