// Package keyex implements the per-format key-exchange codec of
// spec.md §4.E: one read and one write function per (format,
// key-class), filling a QueryInfo-shaped result on read and emitting
// bytes on write following the probe-then-emit idiom.
package keyex

import (
	"errors"

	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/kdf"
	"github.com/cryptwire/engine/internal/wire"
)

// Errors surfaced by this package, mapped to spec.md §7 kinds by the
// orchestrator.
var (
	ErrBadData    = errors.New("keyex: malformed encoding")
	ErrWrongKey   = errors.New("keyex: key-id comparison failed")
	ErrNotAvail   = errors.New("keyex: format or algorithm not available")
	ErrUnderflow  = errors.New("keyex: buffer ended mid-object")
)

// PGPPke is a decoded OpenPGP Public-Key-Encrypted-Session-Key packet
// (tag 1), spec.md §4.E.
type PGPPke struct {
	Version int // 2, 3, or 4 (4 remapped from 3 on read per write convention)
	KeyID   [8]byte
	Algo    algo.Algo
	MPIs    [][]byte // one MPI for RSA, two for ElGamal
}

// ReadPGPPke parses a PKE packet body (the bytes after the packet
// header) into a PGPPke.
func ReadPGPPke(body []byte) (PGPPke, error) {
	c := wire.NewCursor(body)
	var pke PGPPke
	version := int(c.ReadByte())
	if version != 2 && version != 3 {
		c.SetError(wire.KindBadData)
	}
	keyID := c.ReadExact(8)
	algoByte := c.ReadByte()
	if !c.Ok() {
		return PGPPke{}, classifyErr(c)
	}
	copy(pke.KeyID[:], keyID)
	pke.Version = version
	if pke.Version == 3 {
		// Write always emits OpenPGP version 3 for this packet type;
		// read remaps 3 -> "OpenPGP" (spec.md §4.E).
		pke.Version = 3
	}

	var err error
	pke.Algo, err = algo.FromPGP(algoByte, algo.ClassPKCCrypt)
	if err != nil {
		return PGPPke{}, ErrNotAvail
	}

	n := 1
	if pke.Algo == algo.AlgoElgamal {
		n = 2
	}
	for i := 0; i < n; i++ {
		mpi, _ := c.ReadMPI()
		if !c.Ok() {
			return PGPPke{}, classifyErr(c)
		}
		pke.MPIs = append(pke.MPIs, mpi)
	}
	if c.Remaining() != 0 {
		return PGPPke{}, ErrBadData
	}
	return pke, nil
}

// EncodedLen returns the body length WritePGPPke would produce.
func (p PGPPke) EncodedLen() int {
	w := wire.NewCountingWriter()
	p.encode(w)
	return w.Len()
}

// WritePGPPke appends a full PKE packet (header + body) to out.
func WritePGPPke(out []byte, p PGPPke) []byte {
	w := wire.NewWriter()
	p.encode(w)
	body := w.Bytes()
	out = wire.WritePacketHeader(out, wire.PacketPKESessionKey, len(body))
	return append(out, body...)
}

func (p PGPPke) encode(w *wire.Writer) {
	w.WriteByte(3) // write always uses version 3 for PKE packets
	w.Write(p.KeyID[:])
	code, _ := algo.ToPGP(p.Algo, algo.ClassPKCCrypt)
	w.WriteByte(code)
	for _, m := range p.MPIs {
		w.WriteMPI(m)
	}
}

// PGPSke is a decoded OpenPGP Symmetric-Key-Encrypted-Session-Key
// packet (tag 3), spec.md §4.E.
type PGPSke struct {
	CryptAlgo algo.Algo
	S2KSpec   int
	HashAlgo  algo.Algo
	Salt      [8]byte // present for S2K spec 1 and 3
	Count     int     // coded count byte's decoded value, spec 3 only
}

// ReadPGPSke parses an SKE packet body.
func ReadPGPSke(body []byte) (PGPSke, error) {
	c := wire.NewCursor(body)
	var ske PGPSke
	version := c.ReadByte()
	if version != 4 {
		c.SetError(wire.KindBadData)
	}
	cryptByte := c.ReadByte()
	s2kSpec := int(c.ReadByte())
	hashByte := c.ReadByte()
	if !c.Ok() {
		return PGPSke{}, classifyErr(c)
	}

	var err error
	ske.CryptAlgo, err = algo.FromPGP(cryptByte, algo.ClassCrypt)
	if err != nil {
		return PGPSke{}, ErrNotAvail
	}
	ske.HashAlgo, err = algo.FromPGP(hashByte, algo.ClassHash)
	if err != nil {
		return PGPSke{}, ErrNotAvail
	}
	ske.S2KSpec = s2kSpec

	switch s2kSpec {
	case kdf.S2KSimple:
		// No salt, no count.
	case kdf.S2KSalted:
		salt := c.ReadExact(8)
		if !c.Ok() {
			return PGPSke{}, classifyErr(c)
		}
		copy(ske.Salt[:], salt)
	case kdf.S2KIteratedSalt:
		salt := c.ReadExact(8)
		countByte := c.ReadByte()
		if !c.Ok() {
			return PGPSke{}, classifyErr(c)
		}
		copy(ske.Salt[:], salt)
		ske.Count = kdf.DecodeS2KCount(countByte)
	default:
		return PGPSke{}, ErrNotAvail
	}
	if c.Remaining() != 0 {
		return PGPSke{}, ErrBadData
	}
	return ske, nil
}

// WritePGPSke appends a full SKE packet (header + body) to out.
func WritePGPSke(out []byte, s PGPSke) []byte {
	w := wire.NewWriter()
	w.WriteByte(4)
	cryptCode, _ := algo.ToPGP(s.CryptAlgo, algo.ClassCrypt)
	w.WriteByte(cryptCode)
	w.WriteByte(byte(s.S2KSpec))
	hashCode, _ := algo.ToPGP(s.HashAlgo, algo.ClassHash)
	w.WriteByte(hashCode)
	switch s.S2KSpec {
	case kdf.S2KSalted:
		w.Write(s.Salt[:])
	case kdf.S2KIteratedSalt:
		w.Write(s.Salt[:])
		w.WriteByte(kdf.EncodeS2KCount(s.Count))
	}
	body := w.Bytes()
	out = wire.WritePacketHeader(out, wire.PacketSKESessionKey, len(body))
	return append(out, body...)
}

func classifyErr(c *wire.Cursor) error {
	if c.ErrKind() == wire.KindUnderflow {
		return ErrUnderflow
	}
	return ErrBadData
}
