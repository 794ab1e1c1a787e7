package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is an interface that allows us to use either a connection pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements mlrcontent.Repository and mlrcontent.FeedbackRepository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the tables this repository needs when they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "content_sequence") {
				return fmt.Errorf("%s: %w", operation, mlrcontent.ErrVersionConflict)
			}
			return fmt.Errorf("%s: duplicate entry (%s)", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%s: value rejected by %s", operation, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const contentColumns = `id, content_type, audience, focus, key_message, current_html,
		status, external_proof_id, parent_id, created_at, updated_at`

func scanContent(row pgx.Row) (*mlrcontent.ContentItem, error) {
	var item mlrcontent.ContentItem
	err := row.Scan(
		&item.ID, &item.ContentType, &item.Audience, &item.Focus, &item.KeyMessage,
		&item.CurrentHTML, &item.Status, &item.ExternalProofID, &item.ParentID,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, item *mlrcontent.ContentItem, first *mlrcontent.ContentVersion) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO content_item (`+contentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, item.ContentType, item.Audience, item.Focus, item.KeyMessage,
			item.CurrentHTML, item.Status, item.ExternalProofID, item.ParentID,
			item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return err
		}
		return insertVersion(ctx, tx, first)
	})
	if err != nil {
		return r.handlePostgresError("create content", err)
	}
	return nil
}

func insertVersion(ctx context.Context, db DBTX, v *mlrcontent.ContentVersion) error {
	_, err := db.Exec(ctx, `
		INSERT INTO content_version (id, content_id, sequence, html, change_notes, change_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.ContentID, v.Sequence, v.HTML, v.ChangeNotes, v.ChangeSource, v.CreatedAt)
	return err
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*mlrcontent.ContentItem, error) {
	item, err := scanContent(r.db.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_item WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mlrcontent.ErrContentNotFound
		}
		return nil, r.handlePostgresError("get content", err)
	}
	return item, nil
}

func (r *Repository) ListContent(ctx context.Context, filters mlrcontent.ListContentFilters) ([]*mlrcontent.ContentItem, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters.ContentType != "" {
		args = append(args, filters.ContentType)
		where = append(where, fmt.Sprintf("content_type = $%d", len(args)))
	}
	if filters.Audience != "" {
		args = append(args, filters.Audience)
		where = append(where, fmt.Sprintf("audience = $%d", len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + contentColumns + ` FROM content_item`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryContent(ctx, "list content", query, args...)
}

func (r *Repository) queryContent(ctx context.Context, op, query string, args ...interface{}) ([]*mlrcontent.ContentItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	defer rows.Close()

	items := []*mlrcontent.ContentItem{}
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan content", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate content rows", err)
	}
	return items, nil
}

// lockContent reads the item row with FOR UPDATE, serializing writers on the same id.
func lockContent(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*mlrcontent.ContentItem, error) {
	item, err := scanContent(tx.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_item WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mlrcontent.ErrContentNotFound
	}
	return item, err
}

func (r *Repository) AppendVersion(ctx context.Context, id uuid.UUID, version *mlrcontent.ContentVersion, mutate func(*mlrcontent.ContentItem) error) (*mlrcontent.ContentItem, error) {
	var result *mlrcontent.ContentItem
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		item, err := lockContent(ctx, tx, id)
		if err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(item); err != nil {
				return err
			}
		}

		var current int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sequence), 0) FROM content_version WHERE content_id = $1`, id,
		).Scan(&current); err != nil {
			return err
		}
		version.ContentID = id
		version.Sequence = current + 1
		if err := insertVersion(ctx, tx, version); err != nil {
			return err
		}

		item.CurrentHTML = version.HTML
		item.UpdatedAt = version.CreatedAt
		if _, err := tx.Exec(ctx, `
			UPDATE content_item SET current_html = $2, status = $3, external_proof_id = $4, updated_at = $5
			WHERE id = $1`,
			id, item.CurrentHTML, item.Status, item.ExternalProofID, item.UpdatedAt); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, r.passThrough("append version", err)
	}
	return result, nil
}

func (r *Repository) UpdateContent(ctx context.Context, id uuid.UUID, mutate func(*mlrcontent.ContentItem) error) (*mlrcontent.ContentItem, error) {
	var result *mlrcontent.ContentItem
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		item, err := lockContent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(item); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE content_item SET status = $2, external_proof_id = $3, updated_at = $4
			WHERE id = $1`,
			id, item.Status, item.ExternalProofID, item.UpdatedAt); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, r.passThrough("update content", err)
	}
	return result, nil
}

// passThrough keeps domain errors raised inside a transaction intact.
func (r *Repository) passThrough(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return r.handlePostgresError(op, err)
	}
	return err
}

func (r *Repository) FindContentByProofID(ctx context.Context, proofID string) ([]*mlrcontent.ContentItem, error) {
	return r.queryContent(ctx, "find content by proof",
		`SELECT `+contentColumns+` FROM content_item WHERE external_proof_id = $1 ORDER BY created_at`, proofID)
}

func (r *Repository) GetContentVersions(ctx context.Context, id uuid.UUID) ([]*mlrcontent.ContentVersion, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_item WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, r.handlePostgresError("get content versions", err)
	}
	if !exists {
		return nil, mlrcontent.ErrContentNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, content_id, sequence, html, change_notes, change_source, created_at
		FROM content_version WHERE content_id = $1 ORDER BY sequence`, id)
	if err != nil {
		return nil, r.handlePostgresError("get content versions", err)
	}
	defer rows.Close()

	versions := []*mlrcontent.ContentVersion{}
	for rows.Next() {
		var v mlrcontent.ContentVersion
		if err := rows.Scan(&v.ID, &v.ContentID, &v.Sequence, &v.HTML, &v.ChangeNotes, &v.ChangeSource, &v.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan content version", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate version rows", err)
	}
	return versions, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_item WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete content", err)
	}
	if tag.RowsAffected() == 0 {
		return mlrcontent.ErrContentNotFound
	}
	return nil
}
