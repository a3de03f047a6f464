package crypto

import "crypto/sha256"

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
