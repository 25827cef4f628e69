package kdf

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func TestPKCS1RoundTrip(t *testing.T) {
	for _, keySize := range []int{128, 256, 384, 512} {
		payload := make([]byte, keySize-11)
		if _, err := rand.Read(payload); err != nil {
			t.Fatal(err)
		}
		wrapped, err := WrapPKCS1(payload, keySize)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		if wrapped[0] != 0x00 || wrapped[1] != 0x02 {
			t.Fatalf("bad header bytes: %x", wrapped[:2])
		}
		got, err := UnwrapPKCS1(wrapped, 0)
		if err != nil {
			t.Fatalf("unwrap: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestPKCS1PGPRoundTrip(t *testing.T) {
	sessionKey := make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatal(err)
	}
	wrapped, err := WrapPKCS1PGP(9, sessionKey, 256)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	algoID, key, err := UnwrapPKCS1PGP(wrapped, 256)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if algoID != 9 {
		t.Fatalf("algo id mismatch: got %d want 9", algoID)
	}
	if !bytes.Equal(key, sessionKey) {
		t.Fatalf("round trip mismatch: got %x want %x", key, sessionKey)
	}
}

func TestPKCS1PGPChecksumExcludesAlgoByte(t *testing.T) {
	// RFC 4880's checksum covers the session-key octets only, not the
	// leading algorithm-id byte: two session keys differing only in
	// the algo id they're wrapped under must carry the same checksum.
	sessionKey := bytes.Repeat([]byte{0x42}, 16)
	a, err := WrapPKCS1PGP(7, sessionKey, 256)
	if err != nil {
		t.Fatalf("wrap a: %v", err)
	}
	b, err := WrapPKCS1PGP(9, sessionKey, 256)
	if err != nil {
		t.Fatalf("wrap b: %v", err)
	}
	_, keyA, err := UnwrapPKCS1PGP(a, 256)
	if err != nil {
		t.Fatalf("unwrap a: %v", err)
	}
	_, keyB, err := UnwrapPKCS1PGP(b, 256)
	if err != nil {
		t.Fatalf("unwrap b: %v", err)
	}
	if !bytes.Equal(keyA, sessionKey) || !bytes.Equal(keyB, sessionKey) {
		t.Fatalf("checksum rejected a valid session key when the algo id changed")
	}
}

func TestPKCS1OverflowRejected(t *testing.T) {
	payload := make([]byte, 256-10) // only 10 bytes slack, need 11
	if _, err := WrapPKCS1(payload, 256); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestAdjustPKCS1(t *testing.T) {
	b, err := AdjustPKCS1(append([]byte{0, 0}, bytes.Repeat([]byte{0xaa}, 62)...), 62)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 62 {
		t.Fatalf("expected 62 bytes, got %d", len(b))
	}

	short := bytes.Repeat([]byte{0x01}, 10)
	b, err = AdjustPKCS1(short, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 64 {
		t.Fatalf("expected left-padded 64 bytes, got %d", len(b))
	}

	_, err = AdjustPKCS1(bytes.Repeat([]byte{0, 0x01}, 30), 30)
	if err != ErrBadData {
		t.Fatalf("expected ErrBadData for undersized result, got %v", err)
	}
}

func TestCMSKeyWrapRoundTrip(t *testing.T) {
	kek := make([]byte, 32)
	iv1 := make([]byte, aes.BlockSize)
	key := make([]byte, 16)
	rand.Read(kek)
	rand.Read(iv1)
	rand.Read(key)

	wrapped, err := WrapCMSKey(kek, iv1, key)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	got, err := UnwrapCMSKey(kek, iv1, wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("round trip mismatch: got %x want %x", got, key)
	}
}

func TestPBKDF2RFC6070(t *testing.T) {
	got := DerivePBKDF2([]byte("password"), []byte("salt"), 1, 20, sha1.New)
	want, _ := hex.DecodeString("0c60c80f961f0e71f3a9b524af6012062fe037a6")
	if !bytes.Equal(got, want) {
		t.Fatalf("PBKDF2 vector mismatch: got %x want %x", got, want)
	}
}

func TestS2KCountCoding(t *testing.T) {
	if DecodeS2KCount(0x60) != 65536 {
		t.Fatalf("expected 65536, got %d", DecodeS2KCount(0x60))
	}
}

func TestS2KDeriveSalted(t *testing.T) {
	salt := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	key := DeriveS2K(sha1.New, S2KIteratedSalt, salt, []byte("abc"), DecodeS2KCount(0x60), 16)
	if len(key) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(key))
	}
}
