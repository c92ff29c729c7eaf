package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"autogramhandoff/config/database"
	"autogramhandoff/internal/agp/model"
	"autogramhandoff/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, r.DB, schemaSQL)
}

// CreateSession stores a session together with its manifest in one transaction.
func (r *SessionRepository) CreateSession(ctx context.Context, s model.Session, docs []model.Document) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		logger.Sugar.Errorf("Failed to begin session transaction: %v", err)
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO sessions (id, api_key, origin, callback_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.APIKey, s.Origin, s.CallbackURL, s.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert session %s: %v", s.ID, err)
		return err
	}

	for _, d := range docs {
		_, err = tx.ExecContext(ctx, `INSERT INTO documents (id, session_id, nth, title, content, url) VALUES ($1, $2, $3, $4, $5, $6)`,
			d.ID, s.ID, d.Order, d.Title, d.Content, d.URL)
		if err != nil {
			logger.Sugar.Errorf("Failed to insert document %s for session %s: %v", d.ID, s.ID, err)
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Sugar.Errorf("Failed to commit session %s: %v", s.ID, err)
		return err
	}
	return nil
}

// GetSession returns sql.ErrNoRows when the session does not exist.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx, `SELECT id, api_key, origin, callback_url, created_at, completed_at FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.APIKey, &s.Origin, &s.CallbackURL, &s.CreatedAt, &s.CompletedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get session %s: %v", id, err)
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) GetDocuments(ctx context.Context, sessionID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, session_id, nth, title, content, url FROM documents WHERE session_id = $1 ORDER BY nth`, sessionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for session %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Order, &d.Title, &d.Content, &d.URL); err != nil {
			logger.Sugar.Errorf("Failed to scan document for session %s: %v", sessionID, err)
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *SessionRepository) SaveSignedDocument(ctx context.Context, d model.SignedDocument) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO signed_documents (session_id, document_id, content, digest, signed_at) VALUES ($1, $2, $3, $4, $5)`,
		d.SessionID, d.DocumentID, d.Content, d.Digest, d.SignedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to save signed document for session %s: %v", d.SessionID, err)
	}
	return err
}

func (r *SessionRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, `UPDATE sessions SET completed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to complete session %s: %v", id, err)
		return 0, err
	}
	return result.RowsAffected()
}
