// Package store holds the wire types exchanged between the DA and AGP servers
// and the browser messages the AGP iframe posts to its parent window.
package store

// ManifestDocument describes one document submitted for signing. Exactly one of
// Content and URL is expected; both are encoded as null when absent.
type ManifestDocument struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content *string `json:"content"`
	URL     *string `json:"url"`
}

type StartSigningRequest struct {
	APIKey      string             `json:"apiKey"`
	Manifest    []ManifestDocument `json:"manifest"`
	Origin      string             `json:"origin,omitempty"`
	CallbackURL string             `json:"callbackUrl,omitempty"`
}

type StartSigningResponse struct {
	SessionID string `json:"sessionId"`
}

// DocumentSignedRequest is posted by the iframe to the AGP and relayed by the AGP to the DA.
type DocumentSignedRequest struct {
	SessionID      string `json:"sessionId"`
	DocumentID     string `json:"documentId,omitempty"`
	SignedDocument string `json:"signedDocument"`
	Digest         string `json:"digest,omitempty"`
}

type SigningCompleteRequest struct {
	SessionID string `json:"sessionId"`
}

// postMessage types sent from the AGP iframe to the embedding page.
const (
	MessageDocumentSigned  = "documentSigned"
	MessageSigningComplete = "signingComplete"
)

func StringPtr(s string) *string {
	return &s
}
