// Package kdf implements the padding and key-derivation layer of
// spec.md §4.D: PKCS#1 v1.5 pad/unpad, CMS double-CBC key wrap,
// PKCS#5 v2 PBKDF2, PKCS#12 KDF, OpenPGP S2K, and the SSL/TLS PRFs.
package kdf

import (
	"crypto/rand"
	"errors"
)

// Sentinel errors matching spec.md §7's error kinds as they apply to
// this layer.
var (
	ErrOverflow = errors.New("kdf: output would not fit the target size")
	ErrBadData  = errors.New("kdf: malformed padding")
)

const minPad1v5Bytes = 8 // minimum non-zero pad bytes, RFC 8017 §7.2.1

// AdjustPKCS1 coerces a big-endian integer to exactly keySize bytes,
// per spec.md §4.D: strip leading zeros while longer than keySize,
// left-pad with zeros while shorter, and reject (ErrBadData) if after
// stripping the result is shorter than 56 bytes — the minimum sane
// RSA modulus size this module accepts (448-bit).
func AdjustPKCS1(b []byte, keySize int) ([]byte, error) {
	for len(b) > keySize && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > keySize {
		return nil, ErrOverflow
	}
	if len(b) < keySize {
		out := make([]byte, keySize)
		copy(out[keySize-len(b):], b)
		b = out
	}
	if len(b) < 56 {
		return nil, ErrBadData
	}
	return b, nil
}

// WrapPKCS1 builds an RFC 8017 §7.2.1 type-2 padded block of exactly
// keySize bytes: 00 02 <random non-zero pad, >= 8 bytes> 00 <payload>.
// Returns ErrOverflow if payload doesn't leave at least 11 bytes of
// slack (2 fixed bytes + 8 minimum pad + 1 terminator).
func WrapPKCS1(payload []byte, keySize int) ([]byte, error) {
	if len(payload) > keySize-11 {
		return nil, ErrOverflow
	}
	out := make([]byte, keySize)
	out[0] = 0x00
	out[1] = 0x02
	padLen := keySize - len(payload) - 3
	pad := out[2 : 2+padLen]
	if err := fillNonZero(pad); err != nil {
		return nil, err
	}
	out[2+padLen] = 0x00
	copy(out[3+padLen:], payload)
	return out, nil
}

func fillNonZero(b []byte) error {
	for i := range b {
		for {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				return err
			}
			if one[0] != 0 {
				b[i] = one[0]
				break
			}
		}
	}
	return nil
}

// UnwrapPKCS1 validates and strips an RFC 8017 type-2 padded block,
// returning the payload. Any structural mismatch is ErrBadData;
// callers (internal/keyex) upgrade this to WrongKey when the context
// is semantically a key-unwrap (spec.md §7).
func UnwrapPKCS1(block []byte, minPayload int) ([]byte, error) {
	if len(block) < 11 || block[0] != 0x00 || block[1] != 0x02 {
		return nil, ErrBadData
	}
	i := 2
	count := 0
	for i < len(block) && block[i] != 0x00 {
		count++
		i++
	}
	if i == len(block) || count < minPad1v5Bytes {
		return nil, ErrBadData
	}
	payload := block[i+1:]
	if len(payload) < minPayload {
		return nil, ErrBadData
	}
	return payload, nil
}

// WrapPKCS1PGP is the PGP session-key variant of WrapPKCS1: the
// payload is prefixed with a 1-byte symmetric-algorithm id and
// suffixed with a 2-byte big-endian checksum (sum of the session key
// bytes alone, mod 2^16 — the algorithm id is not part of the sum),
// per spec.md §4.D and RFC 4880.
func WrapPKCS1PGP(sessionAlgo byte, sessionKey []byte, keySize int) ([]byte, error) {
	payload := make([]byte, 0, 1+len(sessionKey)+2)
	payload = append(payload, sessionAlgo)
	payload = append(payload, sessionKey...)
	var sum uint32
	for _, b := range sessionKey {
		sum += uint32(b)
	}
	payload = append(payload, byte(sum>>8), byte(sum))
	return WrapPKCS1(payload, keySize)
}

// UnwrapPKCS1PGP reverses WrapPKCS1PGP and verifies the checksum,
// returning the session algorithm id and key.
func UnwrapPKCS1PGP(block []byte, keySize int) (sessionAlgo byte, sessionKey []byte, err error) {
	payload, err := UnwrapPKCS1(block, 1+1+2)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 3 {
		return 0, nil, ErrBadData
	}
	body := payload[:len(payload)-2]
	checkBytes := payload[len(payload)-2:]
	sessionKey := body[1:]
	var sum uint32
	for _, b := range sessionKey {
		sum += uint32(b)
	}
	if byte(sum>>8) != checkBytes[0] || byte(sum) != checkBytes[1] {
		return 0, nil, ErrBadData
	}
	return body[0], sessionKey, nil
}
