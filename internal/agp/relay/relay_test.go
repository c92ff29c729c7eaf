package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autogramhandoff/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSignedCarriesTokenAndBody(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody store.DocumentSignedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New("shared-key")
	err := c.DocumentSigned(context.Background(), server.URL+"/callbacks/", store.DocumentSignedRequest{
		SessionID:      "s1",
		DocumentID:     "d1",
		SignedDocument: "signed",
		Digest:         "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "/callbacks/document-signed", gotPath)
	assert.Equal(t, "s1", gotBody.SessionID)
	assert.Equal(t, "signed", gotBody.SignedDocument)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimPrefix(gotAuth, "Bearer "), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("shared-key"), nil
	}, jwt.WithIssuer(store.CallbackIssuer), jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.Subject)
}

func TestSigningCompleteReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cb/signing-complete", r.URL.Path)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := New("k").SigningComplete(context.Background(), server.URL+"/cb", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTokenExpires(t *testing.T) {
	c := New("k")
	c.now = func() time.Time { return time.Now().Add(-2 * TokenTTL) }

	token, err := c.Token("s1")
	require.NoError(t, err)

	_, err = jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
