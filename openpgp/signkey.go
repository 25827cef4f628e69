// This is free and unencumbered software released into the public domain.

// Package openpgp builds the OpenPGP v4 secret/public-key and
// signature packets for an Ed25519 signing key, the demo key format
// cmd/cryptctl's keygen subcommand emits. It deliberately covers only
// what that subcommand needs: a self-contained sign key, its
// passphrase-protected secret-key packet, and binary-document
// signatures. It does not model user IDs, certificate binding, or
// ASCII armor; engine/internal/sig is what actually checks and
// produces signatures for the wire formats this module is grounded on.
package openpgp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
	"io"
	mathbits "math/bits"
	"time"

	"golang.org/x/crypto/ed25519"
)

const (
	// SignKeyPubLen is the size of the public part of an OpenPGP packet.
	SignKeyPubLen = 53
	signKeySecLen = 3 + 32 + 2

	// Encoded S2K octet count.
	s2kCount = 0xff // maximum strength
)

// ErrWrongPassphrase indicates the wrong passphrase was given.
var ErrWrongPassphrase = errors.New("openpgp: wrong passphrase")

// SignKey represents an Ed25519 sign key (EdDSA).
type SignKey struct {
	Key     ed25519.PrivateKey
	created int64
	packet  []byte
}

// Seed sets the 32-byte seed for a sign key.
func (k *SignKey) Seed(seed []byte) {
	k.Key = ed25519.NewKeyFromSeed(seed)
	k.packet = nil
}

// Created returns the key's creation date in unix epoch seconds.
func (k *SignKey) Created() int64 {
	return k.created
}

// SetCreated sets the creation date in unix epoch seconds.
func (k *SignKey) SetCreated(when int64) {
	k.created = when
	k.packet = nil
}

// Seckey returns the secret half of the key (the 32-byte seed).
func (k *SignKey) Seckey() []byte {
	return k.Key[:32]
}

// Pubkey returns the public half of the key.
func (k *SignKey) Pubkey() []byte {
	return k.Key[32:]
}

// Packet returns an OpenPGP Secret-Key packet for this key,
// unencrypted. Use EncPacket for a passphrase-protected variant.
func (k *SignKey) Packet() []byte {
	be := binary.BigEndian

	if k.packet != nil {
		return k.packet
	}

	packet := make([]byte, SignKeyPubLen+1, SignKeyPubLen+signKeySecLen)
	packet[0] = 0xc0 | 5 // packet header, Secret-Key Packet (5)
	packet[2] = 0x04     // packet version, new (4)

	// Public Key
	be.PutUint32(packet[3:], uint32(k.created)) // creation date
	packet[7] = 22                              // algorithm, EdDSA
	packet[8] = 9                               // OID length
	// OID (1.3.6.1.4.1.11591.15.1)
	oid := []byte{0x2b, 0x06, 0x01, 0x04, 0x01, 0xda, 0x47, 0x0f, 0x01}
	copy(packet[9:], oid)
	be.PutUint16(packet[18:], 263)  // public key length (always 263 bits)
	packet[20] = 0x40               // MPI prefix
	copy(packet[21:53], k.Pubkey()) // public key (32 bytes)

	// Secret Key
	packet[53] = 0 // string-to-key, unencrypted
	mpikey := mpi(k.Seckey())
	packet = append(packet, mpikey...)
	// Append checksum
	packet = packet[:len(packet)+2]
	be.PutUint16(packet[len(packet)-2:], checksum(mpikey))

	packet[1] = byte(len(packet) - 2) // packet length
	k.packet = packet
	return packet
}

// PubPacket returns a public key packet for this key.
func (k *SignKey) PubPacket() []byte {
	packet := make([]byte, SignKeyPubLen)
	packet[0] = 0xc0 | 6 // packet header, Public-Key packet (6)
	packet[1] = SignKeyPubLen - 2
	copy(packet[2:], k.Packet()[2:])
	return packet
}

func decodeS2K(c byte) int {
	return (16 + int(c&15)) << (uint(c>>4) + 6)
}

// s2k computes a symmetric protection key from a passphrase. This
// implements S2K as it is actually used in practice by both GnuPG and
// PGP; the OpenPGP standard (3.7.1.3) is subtly incorrect in its
// description, and that algorithm is not used by actual
// implementations. https://dev.gnupg.org/T4676
func s2k(passphrase, salt []byte, count int) []byte {
	h := sha256.New()
	full := make([]byte, 8+len(passphrase))
	copy(full[0:], salt)
	copy(full[8:], passphrase)
	iterations := count / len(full)
	for i := 0; i < iterations; i++ {
		h.Write(full)
	}
	tail := count - iterations*len(full)
	h.Write(full[:tail])
	return h.Sum(nil)
}

// EncPacket returns a passphrase-encrypted Secret-Key packet.
func (k *SignKey) EncPacket(passphrase []byte) []byte {
	var saltIV [24]byte
	if _, err := rand.Read(saltIV[:]); err != nil {
		panic(err) // should never happen
	}
	salt := saltIV[:8]
	iv := saltIV[8:]

	key := s2k(passphrase, salt, decodeS2K(s2kCount))

	mpikey := mpi(k.Seckey())
	mac := sha1.New()
	mac.Write(mpikey)
	seckey := mac.Sum(mpikey)
	block, _ := aes.NewCipher(key)
	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(seckey, seckey)

	packet := k.Packet()[:57]
	packet[53] = 254 // encrypted with S2K
	packet[54] = 9   // AES-256
	packet[55] = 3   // Iterated and Salted S2K
	packet[56] = 8   // SHA-256
	packet = append(packet, salt...)
	packet = append(packet, s2kCount)
	packet = append(packet, iv...)
	packet = append(packet, seckey...)
	packet[1] = byte(len(packet) - 2) // update packet length
	return packet
}

// DecodeEncPacket reverses EncPacket, recovering the 32-byte seed.
func DecodeEncPacket(packet, passphrase []byte) ([]byte, error) {
	if len(packet) < 84 || packet[53] != 254 {
		return nil, errors.New("openpgp: not a passphrase-protected secret-key packet")
	}
	if packet[54] != 9 || packet[55] != 3 || packet[56] != 8 {
		return nil, errors.New("openpgp: unsupported string-to-key parameters")
	}
	salt := packet[57:65]
	count := decodeS2K(packet[65])
	iv := packet[66:82]
	data := append([]byte(nil), packet[82:]...)

	key := s2k(passphrase, salt, count)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, data)

	seckey, check := mpiDecode(data, 32)
	if seckey == nil {
		return nil, ErrWrongPassphrase
	}
	mac := sha1.New()
	mac.Write(mpi(seckey))
	if !bytes.Equal(mac.Sum(nil), check) {
		return nil, ErrWrongPassphrase
	}
	return seckey, nil
}

// KeyID returns the Key ID for a sign key.
func (k *SignKey) KeyID() []byte {
	h := sha1.New()
	h.Write([]byte{0x99, 0, 51})         // "packet" length = 51
	h.Write(k.Packet()[2:SignKeyPubLen]) // public key portion
	return h.Sum(nil)
}

type subpacket struct {
	Type byte
	Data []byte
}

// Sign binary data with this key using an OpenPGP signature packet.
func (k *SignKey) Sign(src io.Reader) ([]byte, error) {
	const sigtype = 0x00 // Binary document
	h := sha256.New()
	if _, err := io.Copy(h, src); err != nil {
		return nil, err
	}
	subpackets := []subpacket{fingerprint(k.KeyID())}
	in := sigInput{h, sigtype, time.Now().Unix(), subpackets}
	return k.sign(in), nil
}

func fingerprint(keyid []byte) subpacket {
	// Issuer Fingerprint subpacket (length=22, type=33)
	return subpacket{Type: 33, Data: append([]byte{0x04}, keyid...)}
}

type sigInput struct {
	h          hash.Hash
	sigtype    byte
	when       int64
	subpackets []subpacket
}

func (k *SignKey) sign(in sigInput) []byte {
	var subpackets []subpacket

	packet := make([]byte, 8, 257)
	packet[0] = 0xc0 | 2   // packet header, new format, Signature Packet (2)
	packet[2] = 0x04       // packet version, new (4)
	packet[3] = in.sigtype // signature type
	packet[4] = 22         // public-key algorithm, EdDSA
	packet[5] = 8          // hash algorithm, SHA-256

	// Signature Creation Time subpacket (type=2)
	sigCreated := subpacket{
		Type: 2,
		Data: marshal32be(uint32(in.when)),
	}
	subpackets = append(subpackets, sigCreated)

	// Issuer subpacket (type=16)
	issuer := subpacket{
		Type: 16,
		Data: k.KeyID()[12:20],
	}
	subpackets = append(subpackets, issuer)

	subpackets = append(subpackets, in.subpackets...)
	for _, sp := range subpackets {
		packet = append(packet, byte(len(sp.Data)+1))
		packet = append(packet, sp.Type)
		packet = append(packet, sp.Data...)
	}

	// Hashed subpacket data length
	hashedLen := uint16(len(packet) - 8)
	binary.BigEndian.PutUint16(packet[6:8], hashedLen)

	// Unhashed subpacket data (none)
	packet = packet[:len(packet)+2]
	binary.BigEndian.PutUint16(packet[len(packet)-2:], 0)

	// Write hash trailers
	h := in.h
	h.Write(packet[2 : hashedLen+8])                       // trailer
	h.Write([]byte{4, 0xff, 0, 0, 0, byte(hashedLen + 6)}) // final trailer

	sigsum := h.Sum(nil)
	sig := ed25519.Sign(k.Key, sigsum)

	// hash preview
	packet = append(packet, sigsum[:2]...)

	r := sig[:32]
	packet = append(packet, mpi(r)...)
	m := sig[32:]
	packet = append(packet, mpi(m)...)

	packet[1] = byte(len(packet)) - 2 // packet length
	return packet
}

// mpi encodes b as an OpenPGP multiprecision integer: a two-byte
// bit-count prefix followed by the big-endian magnitude with leading
// zero bytes stripped.
func mpi(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	trimmed := b[i:]
	bits := len(trimmed) * 8
	if len(trimmed) > 0 {
		bits -= 8 - mathbits.Len8(trimmed[0])
	}
	out := make([]byte, 2+len(trimmed))
	binary.BigEndian.PutUint16(out, uint16(bits))
	copy(out[2:], trimmed)
	return out
}

// mpiDecode reads a size-byte MPI payload (ignoring the bit-count
// prefix's exact value beyond sizing) and returns it left-padded to
// size bytes, along with whatever trails it.
func mpiDecode(buf []byte, size int) (value, tail []byte) {
	if len(buf) < 2 {
		return nil, nil
	}
	bits := int(binary.BigEndian.Uint16(buf))
	n := (bits + 7) / 8
	if n > size || len(buf) < 2+n {
		return nil, nil
	}
	value = make([]byte, size)
	copy(value[size-n:], buf[2:2+n])
	return value, buf[2+n:]
}

func marshal32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// checksum is the 16-bit sum of b's bytes, mod 65536, per RFC 4880
// §5.5.3's secret-key checksum.
func checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}
