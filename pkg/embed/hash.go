package embed

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash fingerprints embeddable text so a stored embedding can be
// compared against the document it was generated from.
func ContentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
