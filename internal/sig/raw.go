// Package sig implements the signature codec of spec.md §4.F: one
// read and one write function per signature format (raw, X.509, CMS,
// cryptlib, PGP, SSH, SSL), including CMS signedAttributes handling
// and the OpenPGP v4 trailer-hashing convention.
package sig

import (
	"errors"

	"github.com/cryptwire/engine/internal/wire"
)

// Sentinel errors, mapped to spec.md §7 kinds by the orchestrator.
var (
	ErrBadData        = errors.New("sig: malformed encoding")
	ErrSignatureError = errors.New("sig: signature verification failed")
	ErrWrongKey       = errors.New("sig: key-id comparison failed")
	ErrNotAvail       = errors.New("sig: format or algorithm not available")
	ErrUnderflow      = errors.New("sig: buffer ended mid-object")
)

func classifyErr(c *wire.Cursor) error {
	if c.ErrKind() == wire.KindUnderflow {
		return ErrUnderflow
	}
	return ErrBadData
}

// ReadRaw extracts the contents of a bare BIT STRING signature
// wrapper (spec.md §4.F "Raw / X.509"): `BIT STRING` with a single
// leading zero unused-bits byte, which this module always emits
// (signature bit strings are always byte-aligned).
func ReadRaw(buf []byte) ([]byte, error) {
	c := wire.NewCursor(buf)
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	if tag != wire.TagBitString || length < 1 {
		return nil, ErrBadData
	}
	unused := c.ReadByte()
	if unused != 0 {
		return nil, ErrBadData
	}
	body := c.ReadExact(length - 1)
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	return body, nil
}

// WriteRaw wraps sigBytes in a byte-aligned BIT STRING.
func WriteRaw(sigBytes []byte) []byte {
	w := wire.NewWriter()
	w.WriteTagLength(wire.TagBitString, len(sigBytes)+1)
	w.WriteByte(0)
	w.Write(sigBytes)
	return w.Bytes()
}

// X509Signature is a decoded X.509-style signature: an
// AlgorithmIdentifier followed by the BIT STRING-wrapped signature
// bytes (spec.md §4.F).
type X509Signature struct {
	SigAlgo wire.AlgoID
	Sig     []byte
}

// ReadX509 parses `AlgorithmIdentifier` immediately followed by a
// BIT STRING, matching how X.509's `signatureAlgorithm` and
// `signatureValue` fields sit as siblings inside the enclosing
// Certificate/TBSCertList structure.
func ReadX509(buf []byte) (X509Signature, error) {
	c := wire.NewCursor(buf)
	algoID := c.ReadAlgoID()
	if !c.Ok() {
		return X509Signature{}, classifyErr(c)
	}
	sig, err := readRawAt(c)
	if err != nil {
		return X509Signature{}, err
	}
	return X509Signature{SigAlgo: algoID, Sig: sig}, nil
}

func readRawAt(c *wire.Cursor) ([]byte, error) {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	if tag != wire.TagBitString || length < 1 {
		return nil, ErrBadData
	}
	unused := c.ReadByte()
	if unused != 0 {
		return nil, ErrBadData
	}
	return c.ReadExact(length - 1), nil
}

// WriteX509 appends an AlgorithmIdentifier followed by the BIT
// STRING-wrapped signature.
func WriteX509(sigAlgo wire.AlgoID, sigBytes []byte) []byte {
	w := wire.NewWriter()
	writeAlgoIDTo(w, sigAlgo)
	w.WriteTagLength(wire.TagBitString, len(sigBytes)+1)
	w.WriteByte(0)
	w.Write(sigBytes)
	return w.Bytes()
}

func writeAlgoIDTo(w *wire.Writer, a wire.AlgoID) {
	inner := wire.NewWriter()
	inner.WriteOID(a.OID)
	inner.Write(a.Params)
	w.WriteSequenceHeader(inner.Len())
	w.Write(inner.Bytes())
}

// AlgoID re-exports wire.AlgoID under this package for callers that
// don't want to import internal/wire directly.
type AlgoID = wire.AlgoID
