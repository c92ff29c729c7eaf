package model

import (
	"database/sql"
	"time"
)

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateDocRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CreateDocResponse struct {
	DocID string `json:"id"`
}

type SigningSession struct {
	ID          string
	StartedAt   time.Time
	CompletedAt sql.NullTime
}

type SignedDocument struct {
	SessionID  string    `json:"session_id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Digest     string    `json:"digest"`
	ReceivedAt time.Time `json:"received_at"`
}

type SessionResponse struct {
	SessionID       string           `json:"sessionId"`
	Completed       bool             `json:"completed"`
	SignedDocuments []SignedDocument `json:"signedDocuments"`
}
