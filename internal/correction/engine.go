package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/llm"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

// driftTolerance is the hard authorization gate: a corrected summary whose
// total drifts more than 1% from the original is rejected outright.
var driftTolerance = decimal.RequireFromString("0.01")

// ErrDriftExceeded marks a correction rejected by the total-preservation
// gate. Nothing is persisted when it fires.
var ErrDriftExceeded = errors.New("correction changes the receipt total beyond tolerance")

// DriftError carries the totals the gate compared.
type DriftError struct {
	Original  decimal.Decimal
	Corrected decimal.Decimal
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("corrected total %s drifts from original %s by more than 1%%",
		e.Corrected.String(), e.Original.String())
}

func (e *DriftError) Unwrap() error { return ErrDriftExceeded }

// Engine applies a free-text operator correction to a job's summary and
// enforces total preservation before accepting the result.
type Engine struct {
	model  llm.SummaryCorrector
	cats   repository.CategoryRepository
	logger *slog.Logger
}

func NewEngine(model llm.SummaryCorrector, cats repository.CategoryRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{model: model, cats: cats, logger: logger}
}

// Apply runs the correction model and validates the candidate. The engine
// persists nothing itself: on acceptance the new summary is returned and
// the caller stores it together with the history entry, so a failed store
// cannot leave a recorded correction without its summary.
func (e *Engine) Apply(ctx context.Context, job *entity.Job, instruction string) (*entity.Summary, error) {
	if job.AISummary == nil {
		return nil, fmt.Errorf("job %d has no summary to correct", job.ID)
	}
	known, err := e.knownCategories(ctx, job.GroupID)
	if err != nil {
		return nil, err
	}

	cand, err := e.model.CorrectSummary(ctx, llm.CorrectRequest{
		Summary:           job.AISummary,
		Instruction:       instruction,
		AllowedCategories: known,
		History:           job.CorrectionHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("correction model: %w", err)
	}

	// The candidate's own total_amount field is untrusted; recompute from
	// the items before comparing.
	corrected := cand.Recompute()
	cand.TotalAmount = corrected
	original := job.AISummary.TotalAmount

	if exceedsTolerance(original, corrected) {
		e.logger.Warn("correction.rejected",
			"job_id", job.ID,
			"original", original.String(),
			"corrected", corrected.String(),
		)
		return nil, &DriftError{Original: original, Corrected: corrected}
	}

	e.logger.Info("correction.accepted", "job_id", job.ID, "total", corrected.String())
	return cand, nil
}

// Outcome describes an accepted candidate for the correction history.
func Outcome(s *entity.Summary) string {
	return fmt.Sprintf("accepted; total %s %s across %d categories",
		s.TotalAmount.String(), s.Currency, len(s.Categories))
}

// exceedsTolerance reports |corrected − original| / original > 1%.
// A zero original tolerates only a zero corrected total.
func exceedsTolerance(original, corrected decimal.Decimal) bool {
	diff := corrected.Sub(original).Abs()
	if original.IsZero() {
		return !diff.IsZero()
	}
	return diff.Div(original.Abs()).Cmp(driftTolerance) > 0
}

func (e *Engine) knownCategories(ctx context.Context, groupID int64) ([]string, error) {
	cats, err := e.cats.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names, nil
}
