package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/recognition"
)

type memJobs struct {
	mu     sync.Mutex
	jobs   []*entity.Job
	claims int
}

func (m *memJobs) Enqueue(_ context.Context, job *entity.Job) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = int64(len(m.jobs) + 1)
	job.Status = entity.JobStatusPending
	m.jobs = append(m.jobs, job)
	return job.ID, nil
}

func (m *memJobs) GetByID(_ context.Context, id int64) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, fmt.Errorf("job %d not found", id)
}

func (m *memJobs) ClaimNextPending(_ context.Context) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	for _, j := range m.jobs {
		if j.Status == entity.JobStatusPending {
			return j, nil
		}
	}
	return nil, nil
}

func (m *memJobs) setStatus(id int64, from, to entity.JobStatus, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			if j.Status != from {
				return fmt.Errorf("job %d is %s, not %s", id, j.Status, from)
			}
			j.Status = to
			j.ErrorMessage = message
			return nil
		}
	}
	return fmt.Errorf("job %d not found", id)
}

func (m *memJobs) MarkProcessing(_ context.Context, id int64) error {
	return m.setStatus(id, entity.JobStatusPending, entity.JobStatusProcessing, nil)
}

func (m *memJobs) MarkDone(_ context.Context, id int64) error {
	return m.setStatus(id, entity.JobStatusProcessing, entity.JobStatusDone, nil)
}

func (m *memJobs) MarkError(_ context.Context, id int64, message string) error {
	return m.setStatus(id, entity.JobStatusProcessing, entity.JobStatusError, &message)
}

func (m *memJobs) SetSummaryMode(_ context.Context, _ int64, _ bool) error { return nil }
func (m *memJobs) SaveSummary(_ context.Context, _ int64, _ *entity.Summary, _ int) error {
	return nil
}
func (m *memJobs) AppendCorrection(_ context.Context, _ int64, _ entity.CorrectionEntry) error {
	return nil
}
func (m *memJobs) ActiveSummaryJob(_ context.Context, _ int64) (*entity.Job, error) {
	return nil, nil
}

type memItems struct {
	mu      sync.Mutex
	batches [][]*entity.Item
}

func (m *memItems) InsertBatch(_ context.Context, items []*entity.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, items)
	return nil
}

func (m *memItems) GetByID(_ context.Context, _ int64) (*entity.Item, error)    { return nil, nil }
func (m *memItems) ListByJob(_ context.Context, _ int64) ([]*entity.Item, error) { return nil, nil }
func (m *memItems) NextPending(_ context.Context, _ int64) (*entity.Item, error) { return nil, nil }
func (m *memItems) CountPending(_ context.Context, _ int64) (int, error)         { return 0, nil }
func (m *memItems) Confirm(_ context.Context, _ int64, _ *string) error          { return nil }
func (m *memItems) SetWaitingInput(_ context.Context, _, _ int64) error          { return nil }
func (m *memItems) ClearWaitingInput(_ context.Context, _ int64) error           { return nil }
func (m *memItems) WaitingItem(_ context.Context, _ int64) (*entity.Item, error) { return nil, nil }

type stubRecognizer struct {
	run func(job *entity.Job, in recognition.Input) (*recognition.Result, error)
}

func (s *stubRecognizer) Recognize(_ context.Context, job *entity.Job, in recognition.Input) (*recognition.Result, error) {
	return s.run(job, in)
}

type stubMedia struct {
	image []byte
	err   error
	calls int
}

func (s *stubMedia) FetchMedia(_ context.Context, _ string) ([]byte, error) {
	s.calls++
	return s.image, s.err
}

type stubFlow struct {
	mu      sync.Mutex
	started []int64
}

func (s *stubFlow) Start(_ context.Context, job *entity.Job, _ []*entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, job.ID)
	return nil
}

type silentNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *silentNotifier) NotifyError(_ context.Context, _ *entity.Job, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
	return nil
}
func (n *silentNotifier) SetProcessingReaction(_ context.Context, _ *entity.Job) error { return nil }
func (n *silentNotifier) SetNoResultReaction(_ context.Context, _ *entity.Job) error   { return nil }

func oneItemResult() *recognition.Result {
	return &recognition.Result{
		Currency: "EUR",
		Items:    []*entity.Item{{Name: "milk", Status: entity.ItemStatusPending}},
	}
}

func testDispatcher(jobs *memJobs, items *memItems, rec Recognizer, media recognition.MediaFetcher, flow Starter, notifier *silentNotifier) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(jobs, items, rec, media, flow, notifier, time.Second, logger)
}

func enqueue(t *testing.T, jobs *memJobs, kind entity.PayloadKind, payload string) int64 {
	t.Helper()
	id, err := jobs.Enqueue(context.Background(), &entity.Job{
		GroupID: 1, PayloadKind: kind, Payload: payload,
	})
	require.NoError(t, err)
	return id
}

func TestTickDrainsQueueInOrder(t *testing.T) {
	jobs := &memJobs{}
	items := &memItems{}
	flow := &stubFlow{}
	first := enqueue(t, jobs, entity.PayloadText, "MILK 2.50")
	second := enqueue(t, jobs, entity.PayloadText, "BREAD 1.50")

	rec := &stubRecognizer{run: func(*entity.Job, recognition.Input) (*recognition.Result, error) {
		return oneItemResult(), nil
	}}
	d := testDispatcher(jobs, items, rec, &stubMedia{}, flow, &silentNotifier{})
	d.Tick(context.Background())

	require.Equal(t, []int64{first, second}, flow.started)
	require.Len(t, items.batches, 2)

	// The confirmation flow owns completion; the dispatcher leaves jobs
	// in processing.
	for _, id := range []int64{first, second} {
		job, err := jobs.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, entity.JobStatusProcessing, job.Status)
	}
}

func TestOneFailingJobDoesNotAbortTheTick(t *testing.T) {
	jobs := &memJobs{}
	flow := &stubFlow{}
	notifier := &silentNotifier{}
	bad := enqueue(t, jobs, entity.PayloadText, "garbage")
	good := enqueue(t, jobs, entity.PayloadText, "MILK 2.50")

	rec := &stubRecognizer{run: func(job *entity.Job, _ recognition.Input) (*recognition.Result, error) {
		if job.ID == bad {
			return nil, fmt.Errorf("receipt could not be read")
		}
		return oneItemResult(), nil
	}}
	d := testDispatcher(jobs, &memItems{}, rec, &stubMedia{}, flow, notifier)
	d.Tick(context.Background())

	badJob, err := jobs.GetByID(context.Background(), bad)
	require.NoError(t, err)
	require.Equal(t, entity.JobStatusError, badJob.Status)
	require.Equal(t, "receipt could not be read", *badJob.ErrorMessage)
	require.Equal(t, []string{"receipt could not be read"}, notifier.errors)

	require.Equal(t, []int64{good}, flow.started)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	jobs := &memJobs{}
	enqueue(t, jobs, entity.PayloadText, "MILK 2.50")

	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &stubRecognizer{run: func(*entity.Job, recognition.Input) (*recognition.Result, error) {
		close(entered)
		<-release
		return oneItemResult(), nil
	}}
	d := testDispatcher(jobs, &memItems{}, rec, &stubMedia{}, &stubFlow{}, &silentNotifier{})

	done := make(chan struct{})
	go func() {
		d.Tick(context.Background())
		close(done)
	}()
	<-entered

	jobs.mu.Lock()
	claimsBefore := jobs.claims
	jobs.mu.Unlock()

	// A second tick while the first is mid-job must return immediately
	// without touching the queue.
	d.Tick(context.Background())

	jobs.mu.Lock()
	claimsAfter := jobs.claims
	jobs.mu.Unlock()
	require.Equal(t, claimsBefore, claimsAfter)

	close(release)
	<-done
}

func TestFileJobDownloadsMediaFirst(t *testing.T) {
	jobs := &memJobs{}
	media := &stubMedia{image: []byte{0xFF, 0xD8}}
	enqueue(t, jobs, entity.PayloadFile, "file-handle")

	var gotImage []byte
	rec := &stubRecognizer{run: func(_ *entity.Job, in recognition.Input) (*recognition.Result, error) {
		gotImage = in.Image
		return oneItemResult(), nil
	}}
	d := testDispatcher(jobs, &memItems{}, rec, media, &stubFlow{}, &silentNotifier{})
	d.Tick(context.Background())

	require.Equal(t, 1, media.calls)
	require.Equal(t, []byte{0xFF, 0xD8}, gotImage)
}

func TestMediaDownloadFailureFailsTheJob(t *testing.T) {
	jobs := &memJobs{}
	notifier := &silentNotifier{}
	id := enqueue(t, jobs, entity.PayloadFile, "file-handle")

	d := testDispatcher(jobs, &memItems{},
		&stubRecognizer{run: func(*entity.Job, recognition.Input) (*recognition.Result, error) {
			t.Fatal("recognizer must not run without media")
			return nil, nil
		}},
		&stubMedia{err: fmt.Errorf("telegram 404")}, &stubFlow{}, notifier)
	d.Tick(context.Background())

	job, err := jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, entity.JobStatusError, job.Status)
	// The operator-facing message hides transport details.
	require.Equal(t, "downloading the receipt photo failed", *job.ErrorMessage)
}

func TestPanicInPipelineMarksJobFailed(t *testing.T) {
	jobs := &memJobs{}
	id := enqueue(t, jobs, entity.PayloadText, "MILK 2.50")

	rec := &stubRecognizer{run: func(*entity.Job, recognition.Input) (*recognition.Result, error) {
		panic("boom")
	}}
	d := testDispatcher(jobs, &memItems{}, rec, &stubMedia{}, &stubFlow{}, &silentNotifier{})
	d.Tick(context.Background())

	job, err := jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, entity.JobStatusError, job.Status)
}
