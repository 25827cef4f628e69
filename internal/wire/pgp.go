package wire

import "encoding/binary"

// OpenPGP packet tags this module cares about (RFC 4880 §4.3).
const (
	PacketPKESessionKey  = 1
	PacketSignature      = 2
	PacketSKESessionKey  = 3
	PacketOnePassSig     = 4
	PacketSecretKey      = 5
	PacketPublicKey      = 6
	PacketCompressedData = 8
	PacketLiteralData    = 11
	PacketUserID         = 13
)

// ReadPacketHeader reads an old- or new-format OpenPGP packet header
// (CTB byte + length) and returns the packet tag and body length.
// Mirrors the teacher's hand-decoded CTB bytes in signkey.go (0xc0|tag
// for new-format headers) generalized to also accept old-format CTBs
// and all three/four new-format length encodings.
func (c *Cursor) ReadPacketHeader() (tag int, length int) {
	ctb := c.ReadByte()
	if !c.Ok() {
		return 0, 0
	}
	if ctb&0x80 == 0 {
		c.SetError(KindBadData)
		return 0, 0
	}
	if ctb&0x40 != 0 {
		// New format.
		tag = int(ctb & 0x3f)
		length = c.readNewLength()
		return tag, length
	}
	// Old format.
	tag = int(ctb>>2) & 0x0f
	lenType := ctb & 0x03
	switch lenType {
	case 0:
		length = int(c.ReadByte())
	case 1:
		length = int(c.Uint16())
	case 2:
		length = int(c.Uint32())
	default:
		length = c.Remaining()
	}
	return tag, length
}

func (c *Cursor) readNewLength() int {
	first := c.ReadByte()
	if !c.Ok() {
		return 0
	}
	switch {
	case first < 192:
		return int(first)
	case first < 224:
		second := c.ReadByte()
		return (int(first)-192)<<8 + int(second) + 192
	case first == 255:
		return int(c.Uint32())
	default:
		// Partial body lengths (224..254) are not produced or
		// consumed by this module; treat as malformed.
		c.SetError(KindBadData)
		return 0
	}
}

// WritePacketHeader appends a new-format OpenPGP packet header for the
// given tag and body length, choosing the shortest length encoding
// (1, 2, or 5 bytes), matching RFC 4880 §4.2.2.
func WritePacketHeader(out []byte, tag int, length int) []byte {
	out = append(out, 0xc0|byte(tag))
	switch {
	case length < 192:
		out = append(out, byte(length))
	case length < 8384:
		l := length - 192
		out = append(out, byte(l>>8)+192, byte(l))
	default:
		out = append(out, 255)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(length))
		out = append(out, b[:]...)
	}
	return out
}

// ShortLength encodes length as a new-format OpenPGP body length,
// without the leading tag byte (used when the packet header is built
// incrementally and the tag byte is patched in afterward, as the
// teacher's SignKey.Packet does with packet[1]).
func ShortLength(length int) []byte {
	switch {
	case length < 192:
		return []byte{byte(length)}
	case length < 8384:
		l := length - 192
		return []byte{byte(l>>8) + 192, byte(l)}
	default:
		var b [5]byte
		b[0] = 255
		binary.BigEndian.PutUint32(b[1:], uint32(length))
		return b[:]
	}
}

// ReadMPI reads an OpenPGP multi-precision integer: a 16-bit bit
// length followed by ceil(bits/8) big-endian bytes with no sign byte.
// Mirrors mpiDecode in the teacher's signkey.go, generalized to
// variable-length integers instead of a fixed 32-byte key.
func (c *Cursor) ReadMPI() (value []byte, bitLen int) {
	bitLen = int(c.Uint16())
	if !c.Ok() {
		return nil, 0
	}
	byteLen := (bitLen + 7) / 8
	value = c.ReadExact(byteLen)
	return value, bitLen
}

// WriteMPI appends an OpenPGP MPI encoding of a big-endian magnitude
// with leading zero bytes stripped, matching the teacher's mpi().
func WriteMPI(out []byte, v []byte) []byte {
	for len(v) > 0 && v[0] == 0 {
		v = v[1:]
	}
	bitLen := 0
	if len(v) > 0 {
		bitLen = (len(v)-1)*8 + bitlen(v[0])
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(bitLen))
	out = append(out, hdr[:]...)
	return append(out, v...)
}

func bitlen(b byte) int {
	n := 0
	for b != 0 {
		n++
		b >>= 1
	}
	return n
}

// Uint32BE appends a big-endian uint32, used for Key Expiration Time
// and Signature Creation Time subpackets (the teacher's marshal32be).
func Uint32BE(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// Checksum computes the 16-bit arithmetic sum of key mod 2^16, used
// by the unencrypted secret-key checksum trailer and PKCS#1-PGP
// session-key wrap checksum (spec.md §4.D).
func Checksum(key []byte) uint16 {
	var sum uint16
	for _, b := range key {
		sum += uint16(b)
	}
	return sum
}
