package sig

import (
	"hash"

	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/wire"
)

// PGPSubpacket is one hashed or unhashed signature subpacket (RFC 4880
// §5.2.3.1), keeping the critical bit the teacher's signkey.go never
// needed to represent (it only ever emits non-critical subpackets).
type PGPSubpacket struct {
	Critical bool
	Type     byte
	Data     []byte
}

// PGPSignature is a decoded OpenPGP version-4 signature packet (tag
// 2), generalizing the teacher's hand-built Ed25519-only sign() to
// any registered public-key/hash algorithm pair (spec.md §4.F "PGP").
type PGPSignature struct {
	SigType            byte
	PubKeyAlgo         algo.Algo
	HashAlgo           algo.Algo
	HashedSubpackets   []PGPSubpacket
	UnhashedSubpackets []PGPSubpacket
	HashPreview        [2]byte
	MPIs               [][]byte // 1 for RSA, 2 for DSA/EdDSA (r,s or r,s-as-MPI)
}

// Subpacket type constants the rest of this module reads/writes.
const (
	SubpacketSigCreationTime = 2
	SubpacketIssuer          = 16
	SubpacketKeyExpire       = 9
	SubpacketKeyFlags        = 27
	SubpacketFeatures        = 30
	SubpacketIssuerFingerprint = 33
)

func readSubpackets(c *wire.Cursor, total int) []PGPSubpacket {
	end := c.Pos() + total
	var out []PGPSubpacket
	for c.Pos() < end && c.Ok() {
		length := readSubpacketLength(c)
		bodyEnd := c.Pos() + length
		typeByte := c.ReadByte()
		if !c.Ok() {
			return nil
		}
		critical := typeByte&0x80 != 0
		data := c.ReadExact(bodyEnd - c.Pos())
		if !c.Ok() {
			return nil
		}
		out = append(out, PGPSubpacket{Critical: critical, Type: typeByte &^ 0x80, Data: data})
	}
	if c.Pos() != end {
		c.SetError(wire.KindBadData)
		return nil
	}
	return out
}

// readSubpacketLength decodes RFC 4880 §5.2.3.1's variable-length
// subpacket-length encoding (1, 2, or 5 bytes), distinct from the
// packet-body length encoding in internal/wire despite sharing the
// same prefix thresholds.
func readSubpacketLength(c *wire.Cursor) int {
	first := c.ReadByte()
	if !c.Ok() {
		return 0
	}
	switch {
	case first < 192:
		return int(first)
	case first < 255:
		second := c.ReadByte()
		return (int(first)-192)<<8 + int(second) + 192
	default:
		return int(c.Uint32())
	}
}

func writeSubpacketLength(w *wire.Writer, n int) {
	switch {
	case n < 192:
		w.WriteByte(byte(n))
	case n < 16320:
		l := n - 192
		w.WriteByte(byte(l>>8) + 192)
		w.WriteByte(byte(l))
	default:
		w.WriteByte(255)
		w.WriteUint32(uint32(n))
	}
}

func writeSubpackets(w *wire.Writer, subs []PGPSubpacket) {
	for _, sp := range subs {
		typeByte := sp.Type
		if sp.Critical {
			typeByte |= 0x80
		}
		writeSubpacketLength(w, len(sp.Data)+1)
		w.WriteByte(typeByte)
		w.Write(sp.Data)
	}
}

func subpacketsLen(subs []PGPSubpacket) int {
	w := wire.NewCountingWriter()
	writeSubpackets(w, subs)
	return w.Len()
}

// ReadPGPSignature parses a version-4 signature packet body (the
// bytes following the packet header).
func ReadPGPSignature(body []byte) (PGPSignature, error) {
	c := wire.NewCursor(body)
	var s PGPSignature
	version := c.ReadByte()
	if version != 4 {
		return PGPSignature{}, ErrNotAvail
	}
	s.SigType = c.ReadByte()
	pkAlgoByte := c.ReadByte()
	hashAlgoByte := c.ReadByte()
	hashedLen := int(c.Uint16())
	if !c.Ok() {
		return PGPSignature{}, classifyErr(c)
	}
	s.HashedSubpackets = readSubpackets(c, hashedLen)
	if !c.Ok() {
		return PGPSignature{}, classifyErr(c)
	}
	unhashedLen := int(c.Uint16())
	if !c.Ok() {
		return PGPSignature{}, classifyErr(c)
	}
	s.UnhashedSubpackets = readSubpackets(c, unhashedLen)
	if !c.Ok() {
		return PGPSignature{}, classifyErr(c)
	}
	preview := c.ReadExact(2)
	if !c.Ok() {
		return PGPSignature{}, classifyErr(c)
	}
	copy(s.HashPreview[:], preview)

	var err error
	s.PubKeyAlgo, err = algo.FromPGP(pkAlgoByte, algo.ClassSign)
	if err != nil {
		return PGPSignature{}, ErrNotAvail
	}
	s.HashAlgo, err = algo.FromPGP(hashAlgoByte, algo.ClassHash)
	if err != nil {
		return PGPSignature{}, ErrNotAvail
	}

	n := 1
	if s.PubKeyAlgo == algo.AlgoDSA || s.PubKeyAlgo == algo.AlgoEd25519 {
		n = 2
	}
	for i := 0; i < n; i++ {
		mpi, _ := c.ReadMPI()
		if !c.Ok() {
			return PGPSignature{}, classifyErr(c)
		}
		s.MPIs = append(s.MPIs, mpi)
	}
	if c.Remaining() != 0 {
		return PGPSignature{}, ErrBadData
	}
	return s, nil
}

// WritePGPSignature appends a full version-4 signature packet (header
// + body) to out.
func WritePGPSignature(out []byte, s PGPSignature) []byte {
	w := wire.NewWriter()
	encodePGPSignature(w, s)
	body := w.Bytes()
	out = wire.WritePacketHeader(out, wire.PacketSignature, len(body))
	return append(out, body...)
}

func encodePGPSignature(w *wire.Writer, s PGPSignature) {
	w.WriteByte(4)
	w.WriteByte(s.SigType)
	pkCode, _ := algo.ToPGP(s.PubKeyAlgo, algo.ClassSign)
	w.WriteByte(pkCode)
	hashCode, _ := algo.ToPGP(s.HashAlgo, algo.ClassHash)
	w.WriteByte(hashCode)
	w.WriteUint16(uint16(subpacketsLen(s.HashedSubpackets)))
	writeSubpackets(w, s.HashedSubpackets)
	w.WriteUint16(uint16(subpacketsLen(s.UnhashedSubpackets)))
	writeSubpackets(w, s.UnhashedSubpackets)
	w.Write(s.HashPreview[:])
	for _, m := range s.MPIs {
		w.WriteMPI(m)
	}
}

// HashForSigning feeds h with the exact byte sequence a v4 signature
// hashes over the signed content's digest context: the hashed-subpacket
// portion of the signature packet itself followed by the RFC 4880
// §5.2.4 "version, 0xFF, four-byte length" trailer. Mirrors the
// teacher's sign(): `h.Write(packet[2:hashedLen+8]); h.Write([]byte{4,
// 0xff, 0,0,0, byte(hashedLen+6)})`, generalized to any hashed-subpacket
// length and split from digest-of-content hashing so callers hash the
// signed data first, then call this to add the trailer.
func HashForSigning(h hash.Hash, s PGPSignature) {
	hw := wire.NewWriter()
	hw.WriteByte(4)
	hw.WriteByte(s.SigType)
	pkCode, _ := algo.ToPGP(s.PubKeyAlgo, algo.ClassSign)
	hw.WriteByte(pkCode)
	hashCode, _ := algo.ToPGP(s.HashAlgo, algo.ClassHash)
	hw.WriteByte(hashCode)
	hashedLen := subpacketsLen(s.HashedSubpackets)
	hw.WriteUint16(uint16(hashedLen))
	writeSubpackets(hw, s.HashedSubpackets)
	h.Write(hw.Bytes())

	trailerLen := hw.Len() // version+sigtype+pkalgo+hashalgo+2+hashedLen == 6+hashedLen
	h.Write([]byte{4, 0xff, byte(trailerLen >> 24), byte(trailerLen >> 16), byte(trailerLen >> 8), byte(trailerLen)})
}

// PGPOnePassSig is a decoded One-Pass Signature packet (tag 4), used
// to announce a forthcoming signature before streamed content in
// detached/inline signing (spec.md §4.F).
type PGPOnePassSig struct {
	SigType    byte
	HashAlgo   algo.Algo
	PubKeyAlgo algo.Algo
	KeyID      [8]byte
	Nested     bool
}

func ReadPGPOnePassSig(body []byte) (PGPOnePassSig, error) {
	c := wire.NewCursor(body)
	var o PGPOnePassSig
	version := c.ReadByte()
	if version != 3 {
		return PGPOnePassSig{}, ErrNotAvail
	}
	o.SigType = c.ReadByte()
	hashByte := c.ReadByte()
	pkByte := c.ReadByte()
	keyID := c.ReadExact(8)
	nested := c.ReadByte()
	if !c.Ok() {
		return PGPOnePassSig{}, classifyErr(c)
	}
	copy(o.KeyID[:], keyID)
	o.Nested = nested == 0

	var err error
	o.HashAlgo, err = algo.FromPGP(hashByte, algo.ClassHash)
	if err != nil {
		return PGPOnePassSig{}, ErrNotAvail
	}
	o.PubKeyAlgo, err = algo.FromPGP(pkByte, algo.ClassSign)
	if err != nil {
		return PGPOnePassSig{}, ErrNotAvail
	}
	if c.Remaining() != 0 {
		return PGPOnePassSig{}, ErrBadData
	}
	return o, nil
}

func WritePGPOnePassSig(out []byte, o PGPOnePassSig) []byte {
	w := wire.NewWriter()
	w.WriteByte(3)
	w.WriteByte(o.SigType)
	hashCode, _ := algo.ToPGP(o.HashAlgo, algo.ClassHash)
	w.WriteByte(hashCode)
	pkCode, _ := algo.ToPGP(o.PubKeyAlgo, algo.ClassSign)
	w.WriteByte(pkCode)
	w.Write(o.KeyID[:])
	if o.Nested {
		w.WriteByte(0)
	} else {
		w.WriteByte(1)
	}
	body := w.Bytes()
	out = wire.WritePacketHeader(out, wire.PacketOnePassSig, len(body))
	return append(out, body...)
}

// IssuerKeyID extracts the Issuer subpacket's key ID from either
// subpacket list, searching hashed first then unhashed, returning
// false if absent.
func (s PGPSignature) IssuerKeyID() ([8]byte, bool) {
	for _, list := range [][]PGPSubpacket{s.HashedSubpackets, s.UnhashedSubpackets} {
		for _, sp := range list {
			if sp.Type == SubpacketIssuer && len(sp.Data) == 8 {
				var id [8]byte
				copy(id[:], sp.Data)
				return id, true
			}
		}
	}
	return [8]byte{}, false
}

// UnknownCriticalSubpacket reports whether any hashed or unhashed
// subpacket is marked critical and of a type this module doesn't
// recognize, per RFC 4880 §5.2.3.1's mandate that such signatures must
// be rejected rather than silently accepted.
func (s PGPSignature) UnknownCriticalSubpacket() bool {
	known := map[byte]bool{
		SubpacketSigCreationTime:   true,
		SubpacketIssuer:            true,
		SubpacketKeyExpire:         true,
		SubpacketKeyFlags:          true,
		SubpacketFeatures:          true,
		SubpacketIssuerFingerprint: true,
	}
	for _, list := range [][]PGPSubpacket{s.HashedSubpackets, s.UnhashedSubpackets} {
		for _, sp := range list {
			if sp.Critical && !known[sp.Type] {
				return true
			}
		}
	}
	return false
}
