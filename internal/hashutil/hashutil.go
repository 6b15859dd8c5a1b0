// Package hashutil implements the hex codec and SHA-256 helpers the
// rest of simbtc builds on. Grounded on original_source/src/util.rs.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// ToHex lowercase-hex-encodes data.
func ToHex(data []byte) string {
	return hex.EncodeToString(data)
}

// FromHex decodes a lowercase-hex string.
func FromHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Sha256 hashes data followed by nonce (concatenated, not interleaved)
// and returns the lowercase-hex digest. This mirrors
// original_source/src/util.rs::sha256, which is used both for the
// genesis sentinel and block hashing (data = canonical JSON, nonce =
// the big-endian nonce bytes).
func Sha256(data, nonce []byte) string {
	h := sha256.New()
	h.Write(data)
	h.Write(nonce)
	return ToHex(h.Sum(nil))
}

// Sha256Bytes hashes data alone and returns the raw digest.
func Sha256Bytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
