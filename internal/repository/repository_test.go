package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{
		DSN: filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRepos(t *testing.T) (JobRepository, ItemRepository, CategoryRepository) {
	t.Helper()
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobRepository(db, logger), NewItemRepository(db, logger), NewCategoryRepository(db, logger)
}

func enqueueJob(t *testing.T, jobs JobRepository, groupID int64) *entity.Job {
	t.Helper()
	ctx := context.Background()
	id, err := jobs.Enqueue(ctx, &entity.Job{
		GroupID:         groupID,
		SubmitterID:     7,
		SourceMessageID: 100,
		PayloadKind:     entity.PayloadFile,
		Payload:         "file-handle",
	})
	require.NoError(t, err)
	job, err := jobs.GetByID(ctx, id)
	require.NoError(t, err)
	return job
}

func TestJobQueueOrderAndClaim(t *testing.T) {
	jobs, _, _ := testRepos(t)
	ctx := context.Background()

	first := enqueueJob(t, jobs, 1)
	second := enqueueJob(t, jobs, 1)

	claimed, err := jobs.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, claimed.ID)
	require.Equal(t, entity.JobStatusPending, claimed.Status)

	// Still pending until marked; the oldest keeps coming back.
	claimed, err = jobs.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, claimed.ID)

	require.NoError(t, jobs.MarkProcessing(ctx, first.ID))
	claimed, err = jobs.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, claimed.ID)

	require.NoError(t, jobs.MarkProcessing(ctx, second.ID))
	claimed, err = jobs.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestJobTransitionsAreMonotonic(t *testing.T) {
	jobs, _, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)

	require.NoError(t, jobs.MarkProcessing(ctx, job.ID))
	require.NoError(t, jobs.MarkDone(ctx, job.ID))

	// A done job can never move again.
	require.Error(t, jobs.MarkError(ctx, job.ID, "late failure"))
	require.Error(t, jobs.MarkProcessing(ctx, job.ID))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, entity.JobStatusDone, got.Status)
	require.Nil(t, got.ErrorMessage)
}

func TestJobErrorKeepsMessage(t *testing.T) {
	jobs, _, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)

	require.NoError(t, jobs.MarkProcessing(ctx, job.ID))
	require.NoError(t, jobs.MarkError(ctx, job.ID, "receipt could not be read"))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, entity.JobStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, "receipt could not be read", *got.ErrorMessage)
}

func TestSaveSummaryRoundTrip(t *testing.T) {
	jobs, _, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)
	require.NoError(t, jobs.MarkProcessing(ctx, job.ID))
	require.NoError(t, jobs.SetSummaryMode(ctx, job.ID, true))

	summary := &entity.Summary{
		Categories: []entity.SummaryCategory{
			{Name: "groceries", Items: []entity.SummaryItem{
				{Name: "milk", Total: decimal.RequireFromString("3.50")},
				{Name: "bread", Total: decimal.RequireFromString("2.00")},
			}},
		},
		TotalAmount: decimal.RequireFromString("5.50"),
		Currency:    "EUR",
	}
	require.NoError(t, jobs.SaveSummary(ctx, job.ID, summary, 42))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, got.SummaryMode)
	require.NotNil(t, got.AISummary)
	require.True(t, got.AISummary.TotalAmount.Equal(summary.TotalAmount))
	require.Equal(t, "groceries", got.AISummary.Categories[0].Name)
	require.NotNil(t, got.SummaryMessageID)
	require.Equal(t, 42, *got.SummaryMessageID)

	active, err := jobs.ActiveSummaryJob(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, job.ID, active.ID)

	none, err := jobs.ActiveSummaryJob(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestAppendCorrectionAccumulates(t *testing.T) {
	jobs, _, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)

	require.NoError(t, jobs.AppendCorrection(ctx, job.ID, entity.CorrectionEntry{
		UserText: "move milk to dairy", Result: "accepted",
	}))
	require.NoError(t, jobs.AppendCorrection(ctx, job.ID, entity.CorrectionEntry{
		UserText: "merge snacks into groceries", Result: "accepted",
	}))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.CorrectionHistory, 2)
	require.Equal(t, "move milk to dairy", got.CorrectionHistory[0].UserText)
}

func insertItems(t *testing.T, items ItemRepository, jobID int64, names ...string) []*entity.Item {
	t.Helper()
	batch := make([]*entity.Item, len(names))
	for i, name := range names {
		batch[i] = &entity.Item{
			JobID:              jobID,
			Name:               name,
			Quantity:           decimal.NewFromInt(1),
			UnitPrice:          decimal.RequireFromString("2.50"),
			Total:              decimal.RequireFromString("2.50"),
			Currency:           "EUR",
			SuggestedCategory:  "groceries",
			PossibleCategories: []string{"household"},
			Status:             entity.ItemStatusPending,
		}
	}
	require.NoError(t, items.InsertBatch(context.Background(), batch))
	return batch
}

func TestItemConfirmIsIdempotent(t *testing.T) {
	jobs, items, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)
	batch := insertItems(t, items, job.ID, "milk")
	require.NotZero(t, batch[0].ID)

	cat := "groceries"
	require.NoError(t, items.Confirm(ctx, batch[0].ID, &cat))

	// Second confirm is a no-op, not an error, and must not change the
	// stored category.
	other := "household"
	require.NoError(t, items.Confirm(ctx, batch[0].ID, &other))

	got, err := items.GetByID(ctx, batch[0].ID)
	require.NoError(t, err)
	require.Equal(t, entity.ItemStatusConfirmed, got.Status)
	require.Equal(t, "groceries", *got.ConfirmedCategory)
}

func TestInsertBatchWithNoItemsIsANoop(t *testing.T) {
	jobs, items, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)

	require.NoError(t, items.InsertBatch(ctx, nil))
	require.NoError(t, items.InsertBatch(ctx, []*entity.Item{}))

	n, err := items.CountPending(ctx, job.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNextPendingAdvances(t *testing.T) {
	jobs, items, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)
	batch := insertItems(t, items, job.ID, "milk", "bread", "eggs")

	next, err := items.NextPending(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "milk", next.Name)

	require.NoError(t, items.Confirm(ctx, batch[0].ID, nil))
	next, err = items.NextPending(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "bread", next.Name)

	n, err := items.CountPending(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, items.Confirm(ctx, batch[1].ID, nil))
	require.NoError(t, items.Confirm(ctx, batch[2].ID, nil))
	next, err = items.NextPending(ctx, job.ID)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestWaitingInputIsExclusivePerGroup(t *testing.T) {
	jobs, items, _ := testRepos(t)
	ctx := context.Background()
	job := enqueueJob(t, jobs, 1)
	batch := insertItems(t, items, job.ID, "milk", "bread")

	require.NoError(t, items.SetWaitingInput(ctx, 1, batch[0].ID))
	require.NoError(t, items.SetWaitingInput(ctx, 1, batch[1].ID))

	waiting, err := items.WaitingItem(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, batch[1].ID, waiting.ID)

	first, err := items.GetByID(ctx, batch[0].ID)
	require.NoError(t, err)
	require.False(t, first.WaitingForCategoryInput)

	require.NoError(t, items.ClearWaitingInput(ctx, batch[1].ID))
	waiting, err = items.WaitingItem(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, waiting)
}

func TestCategoryCreateIsIdempotent(t *testing.T) {
	_, _, cats := testRepos(t)
	ctx := context.Background()

	a, err := cats.Create(ctx, 1, "Groceries")
	require.NoError(t, err)
	b, err := cats.Create(ctx, 1, "Groceries")
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)

	// Lookup is case-insensitive.
	found, err := cats.FindByName(ctx, 1, "groceries")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, a.ID, found.ID)

	missing, err := cats.FindByName(ctx, 1, "transport")
	require.NoError(t, err)
	require.Nil(t, missing)

	def, err := cats.EnsureDefault(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entity.DefaultCategory, def.Name)

	all, err := cats.ListByGroup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
