package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// CallbackIssuer is the JWT issuer the AGP sets on tokens for relayed callbacks.
const CallbackIssuer = "agp"

// Digest returns the hex BLAKE3-256 digest of a signed document.
func Digest(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
