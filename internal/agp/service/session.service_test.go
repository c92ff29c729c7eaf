package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"autogramhandoff/config"
	"autogramhandoff/config/database"
	"autogramhandoff/internal/agp/repository"
	"autogramhandoff/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	mu        sync.Mutex
	signed    []store.DocumentSignedRequest
	completed []string
	err       error
}

func (f *fakeRelay) DocumentSigned(_ context.Context, _ string, req store.DocumentSignedRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signed = append(f.signed, req)
	return f.err
}

func (f *fakeRelay) SigningComplete(_ context.Context, _ string, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, sessionID)
	return f.err
}

func newService(t *testing.T, relay Relayer) *SessionService {
	ctx := context.Background()
	db, err := database.Connect(ctx, config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSessionRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	return NewSessionService(repo, relay, "secret")
}

func TestStartSigningRejectsWrongKey(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.StartSigning(context.Background(), store.StartSigningRequest{APIKey: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = svc.StartSigning(context.Background(), store.StartSigningRequest{})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestStartSigningValidatesManifest(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	cases := map[string][]store.ManifestDocument{
		"missing id":         {{Title: "x", Content: store.StringPtr("c")}},
		"duplicate id":       {{ID: "a", Content: store.StringPtr("c")}, {ID: "a", URL: store.StringPtr("u")}},
		"no content nor url": {{ID: "a"}},
	}
	for name, manifest := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret", Manifest: manifest})
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestStartSigningPersistsManifestInOrder(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	manifest := []store.ManifestDocument{
		{ID: "z", Title: "Zeta", URL: store.StringPtr("http://da/documents/z")},
		{ID: "a", Title: "Alpha", Content: store.StringPtr("inline text")},
		{ID: "m", Title: "Mu", URL: store.StringPtr("http://da/documents/m")},
	}
	id, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret", Manifest: manifest})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	session, got, err := svc.Manifest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "*", session.Origin)
	assert.Equal(t, manifest, got)
}

func TestSameDocumentIDAcrossSessions(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	manifest := []store.ManifestDocument{{ID: "hello.txt", Content: store.StringPtr("hi")}}

	first, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret", Manifest: manifest})
	require.NoError(t, err)
	second, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret", Manifest: manifest})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestManifestUnknownSession(t *testing.T) {
	svc := newService(t, nil)
	_, _, err := svc.Manifest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDocumentSignedRelaysWithDigest(t *testing.T) {
	relay := &fakeRelay{}
	svc := newService(t, relay)
	ctx := context.Background()

	id, err := svc.StartSigning(ctx, store.StartSigningRequest{
		APIKey:      "secret",
		CallbackURL: "http://da/callbacks",
		Manifest:    []store.ManifestDocument{{ID: "d1", Content: store.StringPtr("hi")}},
	})
	require.NoError(t, err)

	digest, err := svc.DocumentSigned(ctx, store.DocumentSignedRequest{SessionID: id, DocumentID: "d1", SignedDocument: "signed hi"})
	require.NoError(t, err)
	assert.Equal(t, store.Digest("signed hi"), digest)

	require.Len(t, relay.signed, 1)
	assert.Equal(t, digest, relay.signed[0].Digest)
	assert.Equal(t, "d1", relay.signed[0].DocumentID)
}

func TestDocumentSignedIgnoresRelayFailure(t *testing.T) {
	relay := &fakeRelay{err: errors.New("da down")}
	svc := newService(t, relay)
	ctx := context.Background()

	id, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret", CallbackURL: "http://da/callbacks"})
	require.NoError(t, err)

	_, err = svc.DocumentSigned(ctx, store.DocumentSignedRequest{SessionID: id, SignedDocument: "x"})
	assert.NoError(t, err)
	assert.NoError(t, svc.SigningComplete(ctx, id))
	assert.Equal(t, []string{id}, relay.completed)
}

func TestDocumentSignedWithoutCallbackSkipsRelay(t *testing.T) {
	relay := &fakeRelay{}
	svc := newService(t, relay)
	ctx := context.Background()

	id, err := svc.StartSigning(ctx, store.StartSigningRequest{APIKey: "secret"})
	require.NoError(t, err)

	_, err = svc.DocumentSigned(ctx, store.DocumentSignedRequest{SessionID: id, SignedDocument: "x"})
	require.NoError(t, err)
	assert.Empty(t, relay.signed)
}

func TestDocumentSignedInputErrors(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.DocumentSigned(ctx, store.DocumentSignedRequest{SignedDocument: "x"})
	assert.ErrorIs(t, err, ErrMissingSessionID)

	_, err = svc.DocumentSigned(ctx, store.DocumentSignedRequest{SessionID: "s"})
	assert.ErrorIs(t, err, ErrMissingSignedDocument)

	_, err = svc.DocumentSigned(ctx, store.DocumentSignedRequest{SessionID: "s", SignedDocument: "x"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, svc.SigningComplete(ctx, ""), ErrMissingSessionID)
	assert.ErrorIs(t, svc.SigningComplete(ctx, "unknown"), ErrSessionNotFound)
}
