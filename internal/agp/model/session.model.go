package model

import (
	"database/sql"
	"time"
)

type Session struct {
	ID          string
	APIKey      string
	Origin      string
	CallbackURL string
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

// Document is a manifest entry stored for a session. Order is the entry's
// index in the submitted manifest.
type Document struct {
	ID        string
	SessionID string
	Order     int
	Title     string
	Content   sql.NullString
	URL       sql.NullString
}

type SignedDocument struct {
	SessionID  string
	DocumentID string
	Content    string
	Digest     string
	SignedAt   time.Time
}
