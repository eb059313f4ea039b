package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex-mextner/expensesyncbot/internal/common"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

type JobRepository interface {
	// Enqueue inserts a pending job and returns its id.
	Enqueue(ctx context.Context, job *entity.Job) (int64, error)
	GetByID(ctx context.Context, id int64) (*entity.Job, error)
	// ClaimNextPending returns the oldest pending job, or nil when the
	// queue is empty. Only the dispatcher calls this.
	ClaimNextPending(ctx context.Context) (*entity.Job, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkDone(ctx context.Context, id int64) error
	MarkError(ctx context.Context, id int64, message string) error
	SetSummaryMode(ctx context.Context, id int64, on bool) error
	// SaveSummary persists the summary snapshot and the chat message
	// currently rendering it.
	SaveSummary(ctx context.Context, id int64, summary *entity.Summary, messageID int) error
	AppendCorrection(ctx context.Context, id int64, e entity.CorrectionEntry) error
	// ActiveSummaryJob returns the group's processing summary-mode job,
	// or nil when none exists.
	ActiveSummaryJob(ctx context.Context, groupID int64) (*entity.Job, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	return &jobRepo{db: db, log: log}
}

const jobColumns = `id, group_id, submitter_id, source_message_id, thread_id,
	payload_kind, payload, status, error_message, summary_mode, ai_summary,
	correction_history, summary_message_id, created_at`

func (r *jobRepo) Enqueue(ctx context.Context, job *entity.Job) (int64, error) {
	history, err := json.Marshal(job.CorrectionHistory)
	if err != nil {
		return 0, common.WrapError(err, "encode correction history")
	}
	if len(job.CorrectionHistory) == 0 {
		history = []byte("[]")
	}
	var id int64
	err = r.db.QueryRowContext(ctx, r.db.rebind(
		`INSERT INTO jobs (group_id, submitter_id, source_message_id, thread_id,
			payload_kind, payload, status, summary_mode, correction_history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?) RETURNING id`),
		job.GroupID, job.SubmitterID, job.SourceMessageID, job.ThreadID,
		string(job.PayloadKind), job.Payload, string(entity.JobStatusPending),
		string(history), time.Now().Unix(),
	).Scan(&id)
	if err != nil {
		r.log.Error("job.enqueue.failed", "group_id", job.GroupID, "error", err)
		return 0, common.WrapError(err, "enqueue job")
	}
	r.log.Info("job.enqueued", "job_id", id, "group_id", job.GroupID, "kind", job.PayloadKind)
	return id, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id int64) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) ClaimNextPending(ctx context.Context) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id LIMIT 1`),
		string(entity.JobStatusPending))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// Status transitions are monotonic: the WHERE clause only lets a row leave
// the expected prior state, so done/error rows can never move again.
func (r *jobRepo) MarkProcessing(ctx context.Context, id int64) error {
	return r.transition(ctx, id, entity.JobStatusPending, entity.JobStatusProcessing, nil)
}

func (r *jobRepo) MarkDone(ctx context.Context, id int64) error {
	return r.transition(ctx, id, entity.JobStatusProcessing, entity.JobStatusDone, nil)
}

func (r *jobRepo) MarkError(ctx context.Context, id int64, message string) error {
	return r.transition(ctx, id, entity.JobStatusProcessing, entity.JobStatusError, &message)
}

func (r *jobRepo) transition(ctx context.Context, id int64, from, to entity.JobStatus, message *string) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE jobs SET status = ?, error_message = ? WHERE id = ? AND status = ?`),
		string(to), message, id, string(from))
	if err != nil {
		r.log.Error("job.transition.failed", "job_id", id, "to", to, "error", err)
		return common.WrapError(err, "job transition")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.log.Warn("job.transition.rejected", "job_id", id, "from", from, "to", to)
		return common.NewAppError("JOB_STATE", fmt.Sprintf("job %d is not %s", id, from), common.ErrValidation)
	}
	r.log.Info("job.status", "job_id", id, "status", to)
	return nil
}

func (r *jobRepo) SetSummaryMode(ctx context.Context, id int64, on bool) error {
	mode := 0
	if on {
		mode = 1
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE jobs SET summary_mode = ? WHERE id = ?`), mode, id)
	return common.WrapError(err, "set summary mode")
}

func (r *jobRepo) SaveSummary(ctx context.Context, id int64, summary *entity.Summary, messageID int) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return common.WrapError(err, "encode summary")
	}
	_, err = r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE jobs SET ai_summary = ?, summary_message_id = ? WHERE id = ?`),
		string(blob), messageID, id)
	if err != nil {
		r.log.Error("job.summary.save_failed", "job_id", id, "error", err)
		return common.WrapError(err, "save summary")
	}
	return nil
}

func (r *jobRepo) AppendCorrection(ctx context.Context, id int64, e entity.CorrectionEntry) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	history := append(job.CorrectionHistory, e)
	blob, err := json.Marshal(history)
	if err != nil {
		return common.WrapError(err, "encode correction history")
	}
	_, err = r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE jobs SET correction_history = ? WHERE id = ?`), string(blob), id)
	return common.WrapError(err, "append correction")
}

func (r *jobRepo) ActiveSummaryJob(ctx context.Context, groupID int64) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM jobs
		WHERE group_id = ? AND status = ? AND summary_mode = 1
		ORDER BY id DESC LIMIT 1`),
		groupID, string(entity.JobStatusProcessing))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		j           entity.Job
		kind        string
		status      string
		summaryMode int64
		aiSummary   sql.NullString
		history     string
		createdAt   int64
	)
	err := row.Scan(&j.ID, &j.GroupID, &j.SubmitterID, &j.SourceMessageID, &j.ThreadID,
		&kind, &j.Payload, &status, &j.ErrorMessage, &summaryMode, &aiSummary,
		&history, &j.SummaryMessageID, &createdAt)
	if err != nil {
		return nil, err
	}
	j.PayloadKind = entity.PayloadKind(kind)
	j.Status = entity.JobStatus(status)
	j.SummaryMode = summaryMode != 0
	j.CreatedAt = time.Unix(createdAt, 0)
	if aiSummary.Valid && aiSummary.String != "" {
		var s entity.Summary
		if err := json.Unmarshal([]byte(aiSummary.String), &s); err != nil {
			return nil, common.WrapError(err, "decode summary")
		}
		j.AISummary = &s
	}
	if err := json.Unmarshal([]byte(history), &j.CorrectionHistory); err != nil {
		return nil, common.WrapError(err, "decode correction history")
	}
	return &j, nil
}
