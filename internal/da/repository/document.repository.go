package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"autogramhandoff/config/database"
	"autogramhandoff/internal/da/model"
	"autogramhandoff/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, r.DB, schemaSQL)
}

func (r *DocumentRepository) Create(ctx context.Context, d model.Document) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO documents (id, title, content, created_at) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Title, d.Content, d.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

// GetByID returns sql.ErrNoRows when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	err := r.DB.QueryRowContext(ctx, "SELECT id, title, content, created_at FROM documents WHERE id = $1", id).
		Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get document %s: %v", id, err)
		}
		return nil, err
	}
	return &d, nil
}

// List returns every document in creation order, content included.
func (r *DocumentRepository) List(ctx context.Context) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, title, content, created_at FROM documents ORDER BY created_at, id")
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents: %v", err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt); err != nil {
			logger.Sugar.Errorf("Failed to scan document: %v", err)
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	if err != nil {
		logger.Sugar.Errorf("Failed to count documents: %v", err)
	}
	return n, err
}

func (r *DocumentRepository) CreateSession(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, "INSERT INTO signing_sessions (id, started_at) VALUES ($1, $2)", id, startedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to record signing session %s: %v", id, err)
	}
	return err
}

// GetSession returns sql.ErrNoRows when DA never started the session.
func (r *DocumentRepository) GetSession(ctx context.Context, id string) (*model.SigningSession, error) {
	var s model.SigningSession
	err := r.DB.QueryRowContext(ctx, "SELECT id, started_at, completed_at FROM signing_sessions WHERE id = $1", id).
		Scan(&s.ID, &s.StartedAt, &s.CompletedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get signing session %s: %v", id, err)
		}
		return nil, err
	}
	return &s, nil
}

func (r *DocumentRepository) CompleteSession(ctx context.Context, id string, at time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "UPDATE signing_sessions SET completed_at = $1 WHERE id = $2", at, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to complete signing session %s: %v", id, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepository) SaveSigned(ctx context.Context, d model.SignedDocument) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO signed_documents (session_id, document_id, content, digest, received_at) VALUES ($1, $2, $3, $4, $5)`,
		d.SessionID, d.DocumentID, d.Content, d.Digest, d.ReceivedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to save signed document for session %s: %v", d.SessionID, err)
	}
	return err
}

func (r *DocumentRepository) ListSigned(ctx context.Context, sessionID string) ([]model.SignedDocument, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT session_id, document_id, content, digest, received_at FROM signed_documents WHERE session_id = $1 ORDER BY received_at", sessionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list signed documents for session %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	signed := []model.SignedDocument{}
	for rows.Next() {
		var d model.SignedDocument
		if err := rows.Scan(&d.SessionID, &d.DocumentID, &d.Content, &d.Digest, &d.ReceivedAt); err != nil {
			logger.Sugar.Errorf("Failed to scan signed document: %v", err)
			return nil, err
		}
		signed = append(signed, d)
	}
	return signed, rows.Err()
}
