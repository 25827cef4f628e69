package kdf

import (
	"crypto/sha1"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// DerivePBKDF2 implements PKCS#5 v2 key derivation (spec.md §4.D,
// §8.4). Delegates the HMAC-PRF block construction to
// golang.org/x/crypto/pbkdf2 — the pack leans on golang.org/x/crypto
// subpackages for exactly this kind of primitive throughout (teacher,
// rclone, moby) rather than hand-rolling the inner-hash-info caching
// the source describes; the RFC 6070 test vectors in §8.4 pin the
// output regardless of which HMAC loop produces it.
func DerivePBKDF2(password, salt []byte, iterations, keyLen int, newHash func() hash.Hash) []byte {
	if newHash == nil {
		newHash = sha1.New
	}
	return pbkdf2.Key(password, salt, iterations, keyLen, newHash)
}
