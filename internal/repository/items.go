package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alex-mextner/expensesyncbot/internal/common"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

type ItemRepository interface {
	// InsertBatch stores one recognition result. All items of a job are
	// created together.
	InsertBatch(ctx context.Context, items []*entity.Item) error
	GetByID(ctx context.Context, id int64) (*entity.Item, error)
	ListByJob(ctx context.Context, jobID int64) ([]*entity.Item, error)
	// NextPending returns the oldest pending item of a job, or nil.
	NextPending(ctx context.Context, jobID int64) (*entity.Item, error)
	CountPending(ctx context.Context, jobID int64) (int, error)
	// Confirm moves a pending item to confirmed. Confirming an already
	// confirmed item leaves the row untouched.
	Confirm(ctx context.Context, id int64, category *string) error
	// SetWaitingInput arms waiting_input on one item, clearing it from
	// every other item in the same group first.
	SetWaitingInput(ctx context.Context, groupID, itemID int64) error
	ClearWaitingInput(ctx context.Context, itemID int64) error
	// WaitingItem returns the group's item armed for category input, or nil.
	WaitingItem(ctx context.Context, groupID int64) (*entity.Item, error)
}

type itemRepo struct {
	db  *DB
	log *slog.Logger
}

func NewItemRepository(db *DB, log *slog.Logger) ItemRepository {
	return &itemRepo{db: db, log: log}
}

const itemColumns = `id, job_id, name, name_original, quantity, unit_price, total,
	currency, suggested_category, possible_categories, status, confirmed_category,
	waiting_input`

func (r *itemRepo) InsertBatch(ctx context.Context, items []*entity.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin insert batch")
	}
	defer func() { _ = tx.Rollback() }()

	stmt := r.db.rebind(
		`INSERT INTO items (job_id, name, name_original, quantity, unit_price, total,
			currency, suggested_category, possible_categories, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	for _, it := range items {
		alts, err := json.Marshal(it.PossibleCategories)
		if err != nil {
			return common.WrapError(err, "encode categories")
		}
		if len(it.PossibleCategories) == 0 {
			alts = []byte("[]")
		}
		err = tx.QueryRowContext(ctx, stmt,
			it.JobID, it.Name, it.NameOriginal,
			it.Quantity.String(), it.UnitPrice.String(), it.Total.String(),
			it.Currency, it.SuggestedCategory, string(alts),
			string(entity.ItemStatusPending),
		).Scan(&it.ID)
		if err != nil {
			r.log.Error("item.insert.failed", "job_id", it.JobID, "error", err)
			return common.WrapError(err, "insert item")
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit insert batch")
	}
	r.log.Info("items.inserted", "job_id", items[0].JobID, "count", len(items))
	return nil
}

func (r *itemRepo) GetByID(ctx context.Context, id int64) (*entity.Item, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+itemColumns+` FROM items WHERE id = ?`), id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return it, err
}

func (r *itemRepo) ListByJob(ctx context.Context, jobID int64) ([]*entity.Item, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT `+itemColumns+` FROM items WHERE job_id = ? ORDER BY id`), jobID)
	if err != nil {
		return nil, common.WrapError(err, "list items")
	}
	defer rows.Close()

	var items []*entity.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *itemRepo) NextPending(ctx context.Context, jobID int64) (*entity.Item, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+itemColumns+` FROM items
		WHERE job_id = ? AND status = ? ORDER BY id LIMIT 1`),
		jobID, string(entity.ItemStatusPending))
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (r *itemRepo) CountPending(ctx context.Context, jobID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT COUNT(*) FROM items WHERE job_id = ? AND status = ?`),
		jobID, string(entity.ItemStatusPending)).Scan(&n)
	return n, common.WrapError(err, "count pending items")
}

func (r *itemRepo) Confirm(ctx context.Context, id int64, category *string) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE items SET status = ?, confirmed_category = ?, waiting_input = 0
		WHERE id = ? AND status = ?`),
		string(entity.ItemStatusConfirmed), category, id, string(entity.ItemStatusPending))
	if err != nil {
		r.log.Error("item.confirm.failed", "item_id", id, "error", err)
		return common.WrapError(err, "confirm item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already confirmed; pending → confirmed only ever happens once.
		r.log.Warn("item.confirm.noop", "item_id", id)
		return nil
	}
	r.log.Info("item.confirmed", "item_id", id)
	return nil
}

func (r *itemRepo) SetWaitingInput(ctx context.Context, groupID, itemID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin set waiting")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, r.db.rebind(
		`UPDATE items SET waiting_input = 0
		WHERE waiting_input = 1
		AND job_id IN (SELECT id FROM jobs WHERE group_id = ?)`), groupID)
	if err != nil {
		return common.WrapError(err, "clear group waiting")
	}
	_, err = tx.ExecContext(ctx, r.db.rebind(
		`UPDATE items SET waiting_input = 1 WHERE id = ?`), itemID)
	if err != nil {
		return common.WrapError(err, "set waiting")
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit set waiting")
	}
	r.log.Info("item.waiting_input", "item_id", itemID, "group_id", groupID)
	return nil
}

func (r *itemRepo) ClearWaitingInput(ctx context.Context, itemID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE items SET waiting_input = 0 WHERE id = ?`), itemID)
	return common.WrapError(err, "clear waiting")
}

func (r *itemRepo) WaitingItem(ctx context.Context, groupID int64) (*entity.Item, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+itemColumnsPrefixed+` FROM items i
		JOIN jobs j ON j.id = i.job_id
		WHERE j.group_id = ? AND i.waiting_input = 1 LIMIT 1`), groupID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

const itemColumnsPrefixed = `i.id, i.job_id, i.name, i.name_original, i.quantity,
	i.unit_price, i.total, i.currency, i.suggested_category, i.possible_categories,
	i.status, i.confirmed_category, i.waiting_input`

func scanItem(row rowScanner) (*entity.Item, error) {
	var (
		it       entity.Item
		qty      string
		unit     string
		total    string
		alts     string
		status   string
		waiting  int64
	)
	err := row.Scan(&it.ID, &it.JobID, &it.Name, &it.NameOriginal, &qty, &unit, &total,
		&it.Currency, &it.SuggestedCategory, &alts, &status, &it.ConfirmedCategory,
		&waiting)
	if err != nil {
		return nil, err
	}
	if it.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, common.WrapError(err, "decode quantity")
	}
	if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
		return nil, common.WrapError(err, "decode unit price")
	}
	if it.Total, err = decimal.NewFromString(total); err != nil {
		return nil, common.WrapError(err, "decode total")
	}
	if err := json.Unmarshal([]byte(alts), &it.PossibleCategories); err != nil {
		return nil, common.WrapError(err, "decode categories")
	}
	it.Status = entity.ItemStatus(status)
	it.WaitingForCategoryInput = waiting != 0
	return &it, nil
}
