package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex-mextner/expensesyncbot/internal/correction"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/expense"
	"github.com/alex-mextner/expensesyncbot/internal/match"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

// Corrector applies a free-text instruction to a job's summary.
// *correction.Engine satisfies it.
type Corrector interface {
	Apply(ctx context.Context, job *entity.Job, instruction string) (*entity.Summary, error)
}

// Flow is the confirmation state machine. One of two mutually exclusive
// modes is selected per job when recognition finishes: item-by-item for
// small receipts, bulk summary for the rest. Items only ever move
// pending → confirmed; the job completes when no pending items remain.
type Flow struct {
	jobs        repository.JobRepository
	items       repository.ItemRepository
	cats        repository.CategoryRepository
	notifier    Notifier
	committer   expense.Committer
	corrector   Corrector
	matcher     match.Matcher
	itemwiseMax int
	logger      *slog.Logger
}

func NewFlow(
	jobs repository.JobRepository,
	items repository.ItemRepository,
	cats repository.CategoryRepository,
	notifier Notifier,
	committer expense.Committer,
	corrector Corrector,
	matcher match.Matcher,
	itemwiseMax int,
	logger *slog.Logger,
) *Flow {
	if matcher == nil {
		matcher = match.NewHeuristic()
	}
	if itemwiseMax < 1 {
		itemwiseMax = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		jobs:        jobs,
		items:       items,
		cats:        cats,
		notifier:    notifier,
		committer:   committer,
		corrector:   corrector,
		matcher:     matcher,
		itemwiseMax: itemwiseMax,
		logger:      logger,
	}
}

// Start picks the confirmation mode for a freshly recognized job.
func (f *Flow) Start(ctx context.Context, job *entity.Job, items []*entity.Item) error {
	if len(items) <= f.itemwiseMax {
		f.logger.Info("confirm.mode", "job_id", job.ID, "mode", "itemwise", "items", len(items))
		return f.showNext(ctx, job)
	}
	f.logger.Info("confirm.mode", "job_id", job.ID, "mode", "summary", "items", len(items))
	if err := f.jobs.SetSummaryMode(ctx, job.ID, true); err != nil {
		return err
	}
	summary := BuildSummary(items)
	messageID, err := f.notifier.ShowSummary(ctx, job, summary)
	if err != nil {
		return err
	}
	return f.jobs.SaveSummary(ctx, job.ID, summary, messageID)
}

// HandleAction routes a parsed callback action.
func (f *Flow) HandleAction(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case ConfirmItem:
		return f.confirmByOption(ctx, a.ItemID, a.OptionIndex)
	case OtherItem:
		return f.armCategoryInput(ctx, a.ItemID)
	case SkipItem:
		return f.skip(ctx, a.ItemID)
	case AcceptSummary:
		return f.acceptSummary(ctx, a.JobID)
	case CorrectSummary:
		job, err := f.jobs.GetByID(ctx, a.JobID)
		if err != nil {
			return err
		}
		return f.notifier.PromptCorrection(ctx, job)
	case ItemizeSummary:
		return f.itemize(ctx, a.JobID)
	case UseCategory:
		return f.confirmNamed(ctx, a.ItemID, a.Name, false)
	case NewCategory:
		return f.confirmNamed(ctx, a.ItemID, a.Name, true)
	default:
		return fmt.Errorf("unhandled action %T", action)
	}
}

// HandleText consumes a free-text group message when the flow is waiting
// for one. The waiting item takes priority over a pending summary
// correction; unconsumed text (false) belongs to the host's plain expense
// parser.
func (f *Flow) HandleText(ctx context.Context, groupID int64, text string) (bool, error) {
	item, err := f.items.WaitingItem(ctx, groupID)
	if err != nil {
		return false, err
	}
	if item != nil {
		return true, f.categoryFromText(ctx, item, text)
	}

	job, err := f.jobs.ActiveSummaryJob(ctx, groupID)
	if err != nil {
		return false, err
	}
	if job != nil && job.AISummary != nil {
		return true, f.applyCorrection(ctx, job, text)
	}
	return false, nil
}

func (f *Flow) confirmByOption(ctx context.Context, itemID int64, optionIndex int) error {
	item, err := f.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Confirmed() {
		// Idempotent: a stale button press must not re-trigger persistence.
		f.logger.Info("confirm.duplicate", "item_id", itemID)
		return nil
	}
	opts := item.CategoryOptions()
	if optionIndex < 0 || optionIndex >= len(opts) {
		return fmt.Errorf("item %d has no option %d", itemID, optionIndex)
	}
	job, err := f.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	if _, err := f.cats.Create(ctx, job.GroupID, opts[optionIndex]); err != nil {
		return err
	}
	return f.confirmWith(ctx, job, item, opts[optionIndex])
}

func (f *Flow) confirmNamed(ctx context.Context, itemID int64, name string, create bool) error {
	item, err := f.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Confirmed() {
		return nil
	}
	job, err := f.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	if create {
		if _, err := f.cats.Create(ctx, job.GroupID, name); err != nil {
			return err
		}
	}
	return f.confirmWith(ctx, job, item, name)
}

// confirmWith commits the expense, confirms the item and advances the
// item-by-item presentation.
func (f *Flow) confirmWith(ctx context.Context, job *entity.Job, item *entity.Item, category string) error {
	err := f.committer.Commit(ctx, job.GroupID, expense.Record{
		Date:     time.Now(),
		Category: category,
		Comment:  item.Name,
		Amount:   item.Total,
		Currency: item.Currency,
	})
	if err != nil {
		return fmt.Errorf("committing expense for item %d: %w", item.ID, err)
	}
	if err := f.items.Confirm(ctx, item.ID, &category); err != nil {
		return err
	}
	return f.showNext(ctx, job)
}

func (f *Flow) skip(ctx context.Context, itemID int64) error {
	item, err := f.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Confirmed() {
		return nil
	}
	job, err := f.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	// Confirmed with no category: nothing is handed to persistence.
	if err := f.items.Confirm(ctx, item.ID, nil); err != nil {
		return err
	}
	return f.showNext(ctx, job)
}

func (f *Flow) armCategoryInput(ctx context.Context, itemID int64) error {
	item, err := f.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Confirmed() {
		return nil
	}
	job, err := f.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	if err := f.items.SetWaitingInput(ctx, job.GroupID, item.ID); err != nil {
		return err
	}
	return f.notifier.PromptCategoryInput(ctx, job, item)
}

// categoryFromText resolves a typed category name for the waiting item:
// exact match wins outright, a close match is offered for confirmation,
// no match creates a new category.
func (f *Flow) categoryFromText(ctx context.Context, item *entity.Item, text string) error {
	job, err := f.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	if exact, err := f.cats.FindByName(ctx, job.GroupID, text); err != nil {
		return err
	} else if exact != nil {
		return f.confirmWith(ctx, job, item, exact.Name)
	}

	cats, err := f.cats.ListByGroup(ctx, job.GroupID)
	if err != nil {
		return err
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	if matched, ok := f.matcher.Closest(text, names); ok {
		// Keep the item waiting until the operator picks use-or-create.
		return f.notifier.PromptCategoryConfirm(ctx, job, item, text, matched)
	}

	if _, err := f.cats.Create(ctx, job.GroupID, text); err != nil {
		return err
	}
	return f.confirmWith(ctx, job, item, text)
}

func (f *Flow) acceptSummary(ctx context.Context, jobID int64) error {
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.AISummary == nil {
		return fmt.Errorf("job %d has no summary to accept", jobID)
	}
	byID := map[int64]string{}
	byName := map[string]string{}
	for _, cat := range job.AISummary.Categories {
		for _, it := range cat.Items {
			if it.ItemID != 0 {
				byID[it.ItemID] = cat.Name
			}
			byName[it.Name] = cat.Name
		}
	}

	items, err := f.items.ListByJob(ctx, jobID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Confirmed() {
			continue
		}
		// Item ids survive corrections; the name map only backs stored
		// summaries that predate them.
		category, ok := byID[item.ID]
		if !ok {
			category, ok = byName[item.Name]
		}
		if !ok {
			category = item.SuggestedCategory
		}
		if _, err := f.cats.Create(ctx, job.GroupID, category); err != nil {
			return err
		}
		err = f.committer.Commit(ctx, job.GroupID, expense.Record{
			Date:     time.Now(),
			Category: category,
			Comment:  item.Name,
			Amount:   item.Total,
			Currency: item.Currency,
		})
		if err != nil {
			return fmt.Errorf("committing expense for item %d: %w", item.ID, err)
		}
		if err := f.items.Confirm(ctx, item.ID, &category); err != nil {
			return err
		}
	}
	return f.complete(ctx, job)
}

func (f *Flow) itemize(ctx context.Context, jobID int64) error {
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := f.jobs.SetSummaryMode(ctx, jobID, false); err != nil {
		return err
	}
	return f.showNext(ctx, job)
}

func (f *Flow) applyCorrection(ctx context.Context, job *entity.Job, instruction string) error {
	corrected, err := f.corrector.Apply(ctx, job, instruction)
	if err != nil {
		if errors.Is(err, correction.ErrDriftExceeded) {
			// Rejected action; prior summary stays displayed and stored.
			return f.notifier.NotifyCorrectionRejected(ctx, job, err.Error())
		}
		return f.notifier.NotifyCorrectionRejected(ctx, job, "correction failed: "+err.Error())
	}

	messageID := 0
	if job.SummaryMessageID != nil {
		messageID = *job.SummaryMessageID
	}
	newMessageID, err := f.notifier.ReplaceSummary(ctx, job, messageID, corrected)
	if err != nil {
		return err
	}
	if err := f.jobs.SaveSummary(ctx, job.ID, corrected, newMessageID); err != nil {
		return err
	}
	// History only ever records corrections whose summary made it to storage.
	return f.jobs.AppendCorrection(ctx, job.ID, entity.CorrectionEntry{
		UserText: instruction,
		Result:   correction.Outcome(corrected),
	})
}

// showNext presents the next pending item, or completes the job when no
// pending items remain.
func (f *Flow) showNext(ctx context.Context, job *entity.Job) error {
	item, err := f.items.NextPending(ctx, job.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return f.complete(ctx, job)
	}
	return f.notifier.ShowItem(ctx, job, item, item.CategoryOptions())
}

func (f *Flow) complete(ctx context.Context, job *entity.Job) error {
	if err := f.jobs.MarkDone(ctx, job.ID); err != nil {
		return err
	}
	f.logger.Info("confirm.complete", "job_id", job.ID)
	return f.notifier.NotifyDone(ctx, job)
}
