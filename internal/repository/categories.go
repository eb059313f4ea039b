package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/alex-mextner/expensesyncbot/internal/common"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

type CategoryRepository interface {
	ListByGroup(ctx context.Context, groupID int64) ([]*entity.Category, error)
	// FindByName matches case-insensitively; returns nil when absent.
	FindByName(ctx context.Context, groupID int64, name string) (*entity.Category, error)
	Create(ctx context.Context, groupID int64, name string) (*entity.Category, error)
	// EnsureDefault returns the group's default bucket, creating it on
	// first use.
	EnsureDefault(ctx context.Context, groupID int64) (*entity.Category, error)
}

type categoryRepo struct {
	db  *DB
	log *slog.Logger
}

func NewCategoryRepository(db *DB, log *slog.Logger) CategoryRepository {
	return &categoryRepo{db: db, log: log}
}

func (r *categoryRepo) ListByGroup(ctx context.Context, groupID int64) ([]*entity.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT id, group_id, name FROM categories WHERE group_id = ? ORDER BY name`), groupID)
	if err != nil {
		return nil, common.WrapError(err, "list categories")
	}
	defer rows.Close()

	var cats []*entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

func (r *categoryRepo) FindByName(ctx context.Context, groupID int64, name string) (*entity.Category, error) {
	var c entity.Category
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT id, group_id, name FROM categories
		WHERE group_id = ? AND LOWER(name) = ? LIMIT 1`),
		groupID, strings.ToLower(strings.TrimSpace(name))).
		Scan(&c.ID, &c.GroupID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "find category")
	}
	return &c, nil
}

func (r *categoryRepo) Create(ctx context.Context, groupID int64, name string) (*entity.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewAppError("CATEGORY_NAME", "empty category name", common.ErrInvalidInput)
	}
	if existing, err := r.FindByName(ctx, groupID, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	var id int64
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`INSERT INTO categories (group_id, name) VALUES (?, ?) RETURNING id`),
		groupID, name).Scan(&id)
	if err != nil {
		r.log.Error("category.create.failed", "group_id", groupID, "name", name, "error", err)
		return nil, common.WrapError(err, "create category")
	}
	r.log.Info("category.created", "group_id", groupID, "name", name)
	return &entity.Category{ID: id, GroupID: groupID, Name: name}, nil
}

func (r *categoryRepo) EnsureDefault(ctx context.Context, groupID int64) (*entity.Category, error) {
	return r.Create(ctx, groupID, entity.DefaultCategory)
}
