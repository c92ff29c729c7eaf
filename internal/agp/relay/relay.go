package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"autogramhandoff/store"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds how long a relayed callback token is accepted.
const TokenTTL = time.Minute

// Client forwards signing results to the callback URL a DA registered with its session.
// Each callback is attempted once.
type Client struct {
	HTTP   *http.Client
	secret []byte
	now    func() time.Time
}

func New(secret string) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (c *Client) DocumentSigned(ctx context.Context, callbackURL string, req store.DocumentSignedRequest) error {
	return c.post(ctx, callbackURL, "/document-signed", req.SessionID, req)
}

func (c *Client) SigningComplete(ctx context.Context, callbackURL, sessionID string) error {
	return c.post(ctx, callbackURL, "/signing-complete", sessionID, store.SigningCompleteRequest{SessionID: sessionID})
}

// Token issues the bearer token for callbacks about a session.
func (c *Client) Token(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    store.CallbackIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Client) post(ctx context.Context, callbackURL, path, sessionID string, body any) error {
	token, err := c.Token(sessionID)
	if err != nil {
		return fmt.Errorf("sign callback token: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := strings.TrimRight(callbackURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned %d", url, resp.StatusCode)
	}
	return nil
}
