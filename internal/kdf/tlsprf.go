package kdf

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// SSLPRF implements the SSL 3.0 master-secret PRF of spec.md §4.D:
// for each 16-byte output block k, hash SHA1('A'*k || key || salt)
// then MD5(key || sha1out), concatenating blocks until outLen bytes
// are produced.
func SSLPRF(key, salt []byte, outLen int) []byte {
	out := make([]byte, 0, outLen+md5.Size)
	for k := 1; len(out) < outLen; k++ {
		prefix := make([]byte, k)
		for i := range prefix {
			prefix[i] = 'A' + byte(k-1)
		}
		s1 := sha1.New()
		s1.Write(prefix)
		s1.Write(key)
		s1.Write(salt)
		shaOut := s1.Sum(nil)

		m := md5.New()
		m.Write(key)
		m.Write(shaOut)
		out = append(out, m.Sum(nil)...)
	}
	return out[:outLen]
}

// TLSPRF implements the TLS 1.0/1.1 PRF of spec.md §4.D:
// P_MD5(s1,label||seed) XOR P_SHA1(s2,label||seed), where s1 and s2
// are the two halves of key (overlapping by one byte if key has odd
// length).
func TLSPRF(key, label, seed []byte, outLen int) []byte {
	full := append(append([]byte(nil), label...), seed...)
	half := (len(key) + 1) / 2
	s1 := key[:half]
	s2 := key[len(key)-half:]

	md5Stream := pHash(md5.New, s1, full, outLen)
	sha1Stream := pHash(sha1.New, s2, full, outLen)

	out := make([]byte, outLen)
	for i := 0; i < outLen; i++ {
		out[i] = md5Stream[i] ^ sha1Stream[i]
	}
	return out
}

// pHash implements P_hash(secret, seed) from RFC 2246/4346: a stream
// of HMAC(secret, A_i || seed) blocks where A_1 = HMAC(secret, seed)
// and A_{i+1} = HMAC(secret, A_i).
func pHash(newHash func() hash.Hash, secret, seed []byte, outLen int) []byte {
	mac := func(key, data []byte) []byte {
		h := hmac.New(newHash, key)
		h.Write(data)
		return h.Sum(nil)
	}
	a := mac(secret, seed)
	out := make([]byte, 0, outLen+64)
	for len(out) < outLen {
		out = append(out, mac(secret, append(append([]byte(nil), a...), seed...))...)
		a = mac(secret, a)
	}
	return out[:outLen]
}
