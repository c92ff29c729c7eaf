package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autogramhandoff/internal/agp/model"
	"autogramhandoff/internal/agp/repository"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidAPIKey         = errors.New("invalid API key")
	ErrInvalidManifest       = errors.New("invalid manifest")
	ErrMissingSessionID      = errors.New("missing session ID")
	ErrMissingSignedDocument = errors.New("missing signed document")
	ErrSessionNotFound       = errors.New("session not found")
)

// Relayer forwards signing results to the DA that started a session.
type Relayer interface {
	DocumentSigned(ctx context.Context, callbackURL string, req store.DocumentSignedRequest) error
	SigningComplete(ctx context.Context, callbackURL, sessionID string) error
}

type SessionService struct {
	Repo   *repository.SessionRepository
	Relay  Relayer
	apiKey string
	now    func() time.Time
}

func NewSessionService(repo *repository.SessionRepository, relay Relayer, apiKey string) *SessionService {
	return &SessionService{Repo: repo, Relay: relay, apiKey: apiKey, now: time.Now}
}

// StartSigning checks the API key, stores the manifest in submitted order and returns the new session id.
func (s *SessionService) StartSigning(ctx context.Context, req store.StartSigningRequest) (string, error) {
	if req.APIKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(s.apiKey)) != 1 {
		return "", ErrInvalidAPIKey
	}
	if err := validateManifest(req.Manifest); err != nil {
		return "", err
	}

	session := model.Session{
		ID:          uuid.NewString(),
		APIKey:      req.APIKey,
		Origin:      req.Origin,
		CallbackURL: req.CallbackURL,
		CreatedAt:   s.now().UTC(),
	}
	if session.Origin == "" {
		session.Origin = "*"
	}

	docs := make([]model.Document, 0, len(req.Manifest))
	for i, d := range req.Manifest {
		docs = append(docs, model.Document{
			ID:        d.ID,
			SessionID: session.ID,
			Order:     i,
			Title:     d.Title,
			Content:   nullString(d.Content),
			URL:       nullString(d.URL),
		})
	}

	if err := s.Repo.CreateSession(ctx, session, docs); err != nil {
		return "", err
	}
	logger.Sugar.Infof("Session created with ID %s (%d documents)", session.ID, len(docs))
	return session.ID, nil
}

// Manifest returns the session and its documents ordered as they were submitted.
func (s *SessionService) Manifest(ctx context.Context, sessionID string) (*model.Session, []store.ManifestDocument, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.Repo.GetDocuments(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	manifest := make([]store.ManifestDocument, 0, len(docs))
	for _, d := range docs {
		entry := store.ManifestDocument{ID: d.ID, Title: d.Title}
		if d.Content.Valid {
			entry.Content = store.StringPtr(d.Content.String)
		}
		if d.URL.Valid {
			entry.URL = store.StringPtr(d.URL.String)
		}
		manifest = append(manifest, entry)
	}
	return session, manifest, nil
}

// DocumentSigned records a signed document and relays it to the session's callback URL.
// Relay failures are logged only.
func (s *SessionService) DocumentSigned(ctx context.Context, req store.DocumentSignedRequest) (string, error) {
	if req.SessionID == "" {
		return "", ErrMissingSessionID
	}
	if req.SignedDocument == "" {
		return "", ErrMissingSignedDocument
	}
	session, err := s.session(ctx, req.SessionID)
	if err != nil {
		return "", err
	}

	digest := store.Digest(req.SignedDocument)
	err = s.Repo.SaveSignedDocument(ctx, model.SignedDocument{
		SessionID:  req.SessionID,
		DocumentID: req.DocumentID,
		Content:    req.SignedDocument,
		Digest:     digest,
		SignedAt:   s.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	logger.Sugar.Infof("Document %q signed for session %s (digest %s)", req.DocumentID, req.SessionID, digest)

	if s.Relay != nil && session.CallbackURL != "" {
		req.Digest = digest
		if err := s.Relay.DocumentSigned(ctx, session.CallbackURL, req); err != nil {
			logger.Sugar.Warnf("Failed to relay signed document for session %s: %v", req.SessionID, err)
		}
	}
	return digest, nil
}

// SigningComplete marks the session complete and relays the completion.
func (s *SessionService) SigningComplete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := s.Repo.MarkCompleted(ctx, sessionID, s.now().UTC()); err != nil {
		return err
	}
	logger.Sugar.Infof("Signing process completed for session %s", sessionID)

	if s.Relay != nil && session.CallbackURL != "" {
		if err := s.Relay.SigningComplete(ctx, session.CallbackURL, sessionID); err != nil {
			logger.Sugar.Warnf("Failed to relay completion for session %s: %v", sessionID, err)
		}
	}
	return nil
}

func (s *SessionService) session(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func validateManifest(manifest []store.ManifestDocument) error {
	seen := make(map[string]bool, len(manifest))
	for i, d := range manifest {
		if d.ID == "" {
			return fmt.Errorf("%w: document %d has no id", ErrInvalidManifest, i)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate document id %q", ErrInvalidManifest, d.ID)
		}
		seen[d.ID] = true
		if d.Content == nil && d.URL == nil {
			return fmt.Errorf("%w: document %q has neither content nor url", ErrInvalidManifest, d.ID)
		}
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
