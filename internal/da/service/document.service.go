package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autogramhandoff/internal/da/model"
	"autogramhandoff/internal/da/repository"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/socket"
	"autogramhandoff/store"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDigestMismatch   = errors.New("digest does not match signed document")
	ErrMissingSignedDoc = errors.New("missing signed document")
)

// SigningStarter opens a signing session on the AGP.
type SigningStarter interface {
	StartSigning(ctx context.Context, req store.StartSigningRequest) (string, error)
}

type Options struct {
	APIKey        string
	BaseURL       string
	InlineContent bool
}

type DocumentService struct {
	Repo *repository.DocumentRepository
	Hub  *socket.Hub
	AGP  SigningStarter
	opts Options
	now  func() time.Time
}

func NewDocumentService(repo *repository.DocumentRepository, hub *socket.Hub, agp SigningStarter, opts Options) *DocumentService {
	return &DocumentService{Repo: repo, Hub: hub, AGP: agp, opts: opts, now: time.Now}
}

func (s *DocumentService) CreateDocument(ctx context.Context, title, content string) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}
	if title == "" {
		title = "Untitled Document"
	}
	doc := model.Document{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// SeedDefaults stores a hello.txt document when the store is empty.
func (s *DocumentService) SeedDefaults(ctx context.Context) error {
	n, err := s.Repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	id, err := s.CreateDocument(ctx, "hello.txt", "Hello, world!")
	if err != nil {
		return err
	}
	logger.Sugar.Infof("Seeded document %s", id)
	return nil
}

func (s *DocumentService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]model.Document, error) {
	return s.Repo.List(ctx)
}

// Manifest describes every stored document for the AGP, by URL or inline.
func (s *DocumentService) Manifest(ctx context.Context) ([]store.ManifestDocument, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	manifest := make([]store.ManifestDocument, 0, len(docs))
	for _, d := range docs {
		entry := store.ManifestDocument{ID: d.ID, Title: d.Title}
		if s.opts.InlineContent {
			entry.Content = store.StringPtr(d.Content)
		} else {
			entry.URL = store.StringPtr(fmt.Sprintf("%s/documents/%s", s.opts.BaseURL, d.ID))
		}
		manifest = append(manifest, entry)
	}
	return manifest, nil
}

// StartSigning submits the manifest to the AGP and records the returned session.
func (s *DocumentService) StartSigning(ctx context.Context) (string, error) {
	manifest, err := s.Manifest(ctx)
	if err != nil {
		return "", err
	}
	sessionID, err := s.AGP.StartSigning(ctx, store.StartSigningRequest{
		APIKey:      s.opts.APIKey,
		Manifest:    manifest,
		Origin:      s.opts.BaseURL,
		CallbackURL: s.opts.BaseURL + "/callbacks",
	})
	if err != nil {
		return "", fmt.Errorf("start signing on agp: %w", err)
	}
	if err := s.Repo.CreateSession(ctx, sessionID, s.now().UTC()); err != nil {
		return "", err
	}
	logger.Sugar.Infof("Signing process started, AGP session %s (%d documents)", sessionID, len(manifest))
	return sessionID, nil
}

// RecordSigned stores a relayed signed document and pushes it to pages watching the session.
func (s *DocumentService) RecordSigned(ctx context.Context, req store.DocumentSignedRequest) error {
	if req.SignedDocument == "" {
		return ErrMissingSignedDoc
	}
	if _, err := s.session(ctx, req.SessionID); err != nil {
		return err
	}
	digest := store.Digest(req.SignedDocument)
	if req.Digest != "" && req.Digest != digest {
		return ErrDigestMismatch
	}

	signed := model.SignedDocument{
		SessionID:  req.SessionID,
		DocumentID: req.DocumentID,
		Content:    req.SignedDocument,
		Digest:     digest,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.Repo.SaveSigned(ctx, signed); err != nil {
		return err
	}

	payload, _ := json.Marshal(socket.SignedPayload{DocumentID: signed.DocumentID, Content: signed.Content, Digest: digest})
	s.Hub.Publish(socket.WSMessage{Type: socket.DocumentSignedType, SessionID: req.SessionID, Payload: payload})
	return nil
}

func (s *DocumentService) CompleteSigning(ctx context.Context, sessionID string) error {
	if _, err := s.session(ctx, sessionID); err != nil {
		return err
	}
	if _, err := s.Repo.CompleteSession(ctx, sessionID, s.now().UTC()); err != nil {
		return err
	}
	logger.Sugar.Infof("Signing complete for session %s", sessionID)
	s.Hub.Publish(socket.WSMessage{Type: socket.SigningCompleteType, SessionID: sessionID})
	return nil
}

func (s *DocumentService) GetSession(ctx context.Context, sessionID string) (*model.SessionResponse, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	signed, err := s.Repo.ListSigned(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionResponse{
		SessionID:       session.ID,
		Completed:       session.CompletedAt.Valid,
		SignedDocuments: signed,
	}, nil
}

func (s *DocumentService) session(ctx context.Context, sessionID string) (*model.SigningSession, error) {
	session, err := s.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}
