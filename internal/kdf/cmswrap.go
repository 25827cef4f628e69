package kdf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

// MinKeySizeBytes and MaxKeySizeBytes bound the session key length
// the CMS key-wrap block accepts, per spec.md §3/§4.D.
const (
	MinKeySizeBytes = 5   // MIN_KEYSIZE_BITS/8 (40 bits), spec.md §6
	MaxKeySizeBytes = 512 // generous upper bound, 4096-bit RSA-sized keys
)

// ErrIntegrity is returned when the key-wrap check bytes don't
// validate on unwrap (spec.md §4.D's "integrity gate").
var ErrIntegrity = errors.New("kdf: CMS key-wrap integrity check failed")

// WrapCMSKey implements RFC 3394-style CMS key wrapping as specified
// in spec.md §4.D: build a key block
//
//	[length][~k0][~k1][~k2][key][random padding]
//
// padded to a multiple of the cipher block size with a minimum of two
// blocks, then encrypt it with CBC twice in succession under the same
// key — the second pass's IV is the last ciphertext block of the
// first pass. kek must already be a ready AES key; iv1 is the
// caller-supplied (or freshly generated) first-pass IV.
func WrapCMSKey(kek, iv1, key []byte) ([]byte, error) {
	if len(key) < MinKeySizeBytes || len(key) > MaxKeySizeBytes {
		return nil, errors.New("kdf: session key length out of range")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()

	plain := make([]byte, 0, 4+len(key)+bs)
	plain = append(plain, byte(len(key)))
	plain = append(plain, ^key[0], ^key[1], ^key[2])
	plain = append(plain, key...)

	minLen := 2 * bs
	for len(plain) < minLen || len(plain)%bs != 0 {
		plain = append(plain, 0)
	}
	pad := plain[4+len(key):]
	if _, err := rand.Read(pad); err != nil {
		return nil, err
	}

	// First pass: CBC under iv1.
	pass1 := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv1).CryptBlocks(pass1, plain)

	// Second pass: CBC under the last ciphertext block of pass1.
	lastBlock := pass1[len(pass1)-bs:]
	pass2 := make([]byte, len(pass1))
	cipher.NewCBCEncrypter(block, lastBlock).CryptBlocks(pass2, pass1)

	return pass2, nil
}

// UnwrapCMSKey inverts WrapCMSKey: using the (n-1)'th ciphertext block
// as the IV, decrypt the final block; using that plaintext block as
// the IV, decrypt blocks 0..n-2; then re-decrypt the whole buffer
// under the original iv1. Validates the integrity gate (length range,
// check bytes equal to the bitwise complement of the first three key
// bytes) and returns the recovered key.
func UnwrapCMSKey(kek, iv1, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(wrapped) < 2*bs || len(wrapped)%bs != 0 {
		return nil, ErrBadData
	}
	n := len(wrapped) / bs
	secondToLast := wrapped[(n-2)*bs : (n-1)*bs]
	lastCt := wrapped[(n-1)*bs:]

	lastPt := make([]byte, bs)
	cipher.NewCBCDecrypter(block, secondToLast).CryptBlocks(lastPt, lastCt)

	pass1 := make([]byte, len(wrapped))
	copy(pass1[(n-1)*bs:], lastPt)
	cipher.NewCBCDecrypter(block, lastPt).CryptBlocks(pass1[:(n-1)*bs], wrapped[:(n-1)*bs])

	plain := make([]byte, len(pass1))
	cipher.NewCBCDecrypter(block, iv1).CryptBlocks(plain, pass1)

	if len(plain) < 4 {
		return nil, ErrBadData
	}
	length := int(plain[0])
	if length < MinKeySizeBytes || length > MaxKeySizeBytes || 4+length > len(plain) {
		return nil, ErrIntegrity
	}
	key := plain[4 : 4+length]
	if plain[1] != ^key[0] || plain[2] != ^key[1] || plain[3] != ^key[2] {
		return nil, ErrIntegrity
	}
	return append([]byte(nil), key...), nil
}
