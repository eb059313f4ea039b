package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/recognition"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

// Recognizer is the recognition chain as the dispatcher sees it.
// *recognition.Recognizer satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, job *entity.Job, in recognition.Input) (*recognition.Result, error)
}

// Starter kicks off the confirmation flow for a recognized job.
// *confirm.Flow satisfies it.
type Starter interface {
	Start(ctx context.Context, job *entity.Job, items []*entity.Item) error
}

// Notifier covers the chat signals the dispatcher itself emits.
// *notify.Telegram satisfies it.
type Notifier interface {
	SetProcessingReaction(ctx context.Context, job *entity.Job) error
	SetNoResultReaction(ctx context.Context, job *entity.Job) error
	NotifyError(ctx context.Context, job *entity.Job, message string) error
}

// Dispatcher is the singleton background loop: it polls the queue on a
// fixed interval and drives recognition for every pending job, strictly
// sequentially. Only one instance should run against a given database.
type Dispatcher struct {
	jobs       repository.JobRepository
	items      repository.ItemRepository
	recognizer Recognizer
	media      recognition.MediaFetcher
	flow       Starter
	notifier   Notifier
	interval   time.Duration
	logger     *slog.Logger

	busy atomic.Bool
}

func New(
	jobs repository.JobRepository,
	items repository.ItemRepository,
	recognizer Recognizer,
	media recognition.MediaFetcher,
	flow Starter,
	notifier Notifier,
	interval time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:       jobs,
		items:      items,
		recognizer: recognizer,
		media:      media,
		flow:       flow,
		notifier:   notifier,
		interval:   interval,
		logger:     logger,
	}
}

// Start runs the timer loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	go func() {
		defer ticker.Stop()
		d.logger.Info("dispatch.started", "interval", d.interval)
		for {
			select {
			case <-ctx.Done():
				d.logger.Info("dispatch.stopped")
				return
			case <-ticker.C:
				d.Tick(ctx)
			}
		}
	}()
}

// Tick processes every pending job. An overlapping tick is skipped
// entirely rather than queued, so at most one pipeline execution runs
// regardless of queue depth.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.busy.CompareAndSwap(false, true) {
		d.logger.Info("dispatch.tick.skip")
		return
	}
	defer d.busy.Store(false)

	for {
		job, err := d.jobs.ClaimNextPending(ctx)
		if err != nil {
			d.logger.Error("dispatch.claim.failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		// One bad job must not abort the rest of the tick.
		d.processJob(ctx, job)
	}
}

func (d *Dispatcher) processJob(ctx context.Context, job *entity.Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch.job.panic", "job_id", job.ID, "panic", r)
			d.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := d.jobs.MarkProcessing(ctx, job.ID); err != nil {
		d.logger.Error("dispatch.mark_processing.failed", "job_id", job.ID, "error", err)
		return
	}
	if err := d.notifier.SetProcessingReaction(ctx, job); err != nil {
		d.logger.Warn("dispatch.seen_reaction.failed", "job_id", job.ID, "error", err)
	}

	in, err := d.buildInput(ctx, job)
	if err != nil {
		d.fail(ctx, job, err.Error())
		return
	}
	result, err := d.recognizer.Recognize(ctx, job, in)
	if err != nil {
		d.fail(ctx, job, err.Error())
		return
	}

	if err := d.items.InsertBatch(ctx, result.Items); err != nil {
		d.fail(ctx, job, "storing recognized items failed")
		d.logger.Error("dispatch.insert_items.failed", "job_id", job.ID, "error", err)
		return
	}
	d.logger.Info("dispatch.job.recognized", "job_id", job.ID,
		"items", len(result.Items), "currency", result.Currency)

	if err := d.flow.Start(ctx, job, result.Items); err != nil {
		d.logger.Error("dispatch.confirm_start.failed", "job_id", job.ID, "error", err)
	}
}

func (d *Dispatcher) buildInput(ctx context.Context, job *entity.Job) (recognition.Input, error) {
	in := recognition.Input{Kind: job.PayloadKind, Payload: job.Payload}
	if job.PayloadKind == entity.PayloadFile {
		image, err := d.media.FetchMedia(ctx, job.Payload)
		if err != nil {
			return in, fmt.Errorf("downloading the receipt photo failed")
		}
		in.Image = image
	}
	return in, nil
}

// fail marks the job terminal and produces exactly one explanatory
// notification plus the no-result reaction.
func (d *Dispatcher) fail(ctx context.Context, job *entity.Job, message string) {
	if err := d.jobs.MarkError(ctx, job.ID, message); err != nil {
		d.logger.Error("dispatch.mark_error.failed", "job_id", job.ID, "error", err)
		return
	}
	if err := d.notifier.NotifyError(ctx, job, message); err != nil {
		d.logger.Warn("dispatch.notify_error.failed", "job_id", job.ID, "error", err)
	}
	if err := d.notifier.SetNoResultReaction(ctx, job); err != nil {
		d.logger.Warn("dispatch.reaction.failed", "job_id", job.ID, "error", err)
	}
}
