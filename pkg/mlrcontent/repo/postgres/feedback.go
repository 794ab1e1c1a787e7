package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

const feedbackColumns = `id, proof_id, proof_name, status, decision, current_stage,
		last_event, decided_at, created_at, updated_at`

func scanFeedback(row pgx.Row) (*mlrcontent.ReviewFeedback, error) {
	var fb mlrcontent.ReviewFeedback
	err := row.Scan(
		&fb.ID, &fb.ProofID, &fb.ProofName, &fb.Status, &fb.Decision, &fb.CurrentStage,
		&fb.LastEvent, &fb.DecidedAt, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// UpsertFeedback inserts the row for a new proof id, or locks the existing row
// and applies mlrcontent.MergeFeedback to it. A concurrent first delivery
// loses the insert race on the proof_id key and falls back to the merge.
func (r *Repository) UpsertFeedback(ctx context.Context, update mlrcontent.FeedbackUpdate) (*mlrcontent.ReviewFeedback, error) {
	var result *mlrcontent.ReviewFeedback
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := lockFeedback(ctx, tx, update.ProofID)
		if err != nil && !errors.Is(err, mlrcontent.ErrFeedbackNotFound) {
			return err
		}

		if existing == nil {
			fresh := mlrcontent.MergeFeedback(nil, update)
			tag, err := tx.Exec(ctx, `
				INSERT INTO ziflow_feedback (`+feedbackColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (proof_id) DO NOTHING`,
				fresh.ID, fresh.ProofID, fresh.ProofName, fresh.Status, fresh.Decision,
				fresh.CurrentStage, fresh.LastEvent, fresh.DecidedAt, fresh.CreatedAt, fresh.UpdatedAt)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 1 {
				result = &fresh
				return nil
			}
			if existing, err = lockFeedback(ctx, tx, update.ProofID); err != nil {
				return err
			}
		}

		merged := mlrcontent.MergeFeedback(existing, update)
		if _, err := tx.Exec(ctx, `
			UPDATE ziflow_feedback SET
				proof_name = $2, status = $3, decision = $4, current_stage = $5,
				last_event = $6, decided_at = $7, updated_at = $8
			WHERE id = $1`,
			merged.ID, merged.ProofName, merged.Status, merged.Decision, merged.CurrentStage,
			merged.LastEvent, merged.DecidedAt, merged.UpdatedAt); err != nil {
			return err
		}
		result = &merged
		return nil
	})
	if err != nil {
		return nil, r.passThrough("upsert feedback", err)
	}
	return result, nil
}

func lockFeedback(ctx context.Context, tx pgx.Tx, proofID string) (*mlrcontent.ReviewFeedback, error) {
	fb, err := scanFeedback(tx.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM ziflow_feedback WHERE proof_id = $1 FOR UPDATE`, proofID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mlrcontent.ErrFeedbackNotFound
	}
	return fb, err
}

func (r *Repository) AddComments(ctx context.Context, feedbackID uuid.UUID, comments []mlrcontent.ReviewComment) (int, error) {
	if len(comments) == 0 {
		return 0, nil
	}

	inserted := 0
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range comments {
			id := c.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			batch.Queue(`
				INSERT INTO ziflow_comment (
					id, feedback_id, external_comment_id, author_name, author_email,
					content, page, x, y, comment_created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (feedback_id, external_comment_id) DO NOTHING`,
				id, feedbackID, c.ExternalCommentID, c.AuthorName, c.AuthorEmail,
				c.Content, c.Page, c.X, c.Y, c.CommentCreatedAt)
		}

		results := tx.SendBatch(ctx, batch)
		for range comments {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, r.handlePostgresError("add comments", err)
	}
	return inserted, nil
}

func (r *Repository) GetFeedbackByProofID(ctx context.Context, proofID string) (*mlrcontent.ReviewFeedback, error) {
	fb, err := scanFeedback(r.db.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM ziflow_feedback WHERE proof_id = $1`, proofID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mlrcontent.ErrFeedbackNotFound
		}
		return nil, r.handlePostgresError("get feedback", err)
	}
	return fb, nil
}

func (r *Repository) ListComments(ctx context.Context, feedbackID uuid.UUID) ([]mlrcontent.ReviewComment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, feedback_id, external_comment_id, author_name, author_email,
		       content, page, x, y, comment_created_at
		FROM ziflow_comment WHERE feedback_id = $1
		ORDER BY comment_created_at, external_comment_id`, feedbackID)
	if err != nil {
		return nil, r.handlePostgresError("list comments", err)
	}
	defer rows.Close()

	comments := []mlrcontent.ReviewComment{}
	for rows.Next() {
		var c mlrcontent.ReviewComment
		if err := rows.Scan(&c.ID, &c.FeedbackID, &c.ExternalCommentID, &c.AuthorName, &c.AuthorEmail,
			&c.Content, &c.Page, &c.X, &c.Y, &c.CommentCreatedAt); err != nil {
			return nil, r.handlePostgresError("scan comment", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate comment rows", err)
	}
	return comments, nil
}

func (r *Repository) ListFeedback(ctx context.Context, filters mlrcontent.ListFeedbackFilters) ([]*mlrcontent.ReviewFeedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM ziflow_feedback`
	var args []interface{}
	if filters.Decision != "" {
		args = append(args, filters.Decision)
		query += " WHERE decision = $1"
	}
	query += " ORDER BY updated_at DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, filters.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list feedback", err)
	}
	defer rows.Close()

	result := []*mlrcontent.ReviewFeedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan feedback", err)
		}
		result = append(result, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate feedback rows", err)
	}
	return result, nil
}

func (r *Repository) DeleteFeedback(ctx context.Context, proofID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ziflow_feedback WHERE proof_id = $1`, proofID)
	if err != nil {
		return r.handlePostgresError("delete feedback", err)
	}
	if tag.RowsAffected() == 0 {
		return mlrcontent.ErrFeedbackNotFound
	}
	return nil
}
