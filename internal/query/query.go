// Package query implements the object-introspection layer of spec.md
// §4.G: given an opaque blob, decide whether it is ASN.1 or OpenPGP,
// and classify it into a QueryInfo-shaped (format, kind, version)
// triple without fully decoding it, so internal/engine can route the
// blob to the matching internal/keyex or internal/sig reader.
package query

import (
	"errors"

	"github.com/cryptwire/engine/internal/keyex"
	"github.com/cryptwire/engine/internal/wire"
)

// MinObjectSize is the smallest buffer this module will attempt to
// classify (spec.md §8: "implementation-defined, >= 16").
const MinObjectSize = 16

// Format mirrors spec.md §3's QueryInfo.format enumeration.
type Format int

const (
	FormatNone Format = iota
	FormatCryptlib
	FormatCMS
	FormatSMIME
	FormatPGP
	FormatSSH
	FormatSSL
	FormatX509
	FormatRaw
)

// Kind mirrors spec.md §3's QueryInfo.kind enumeration.
type Kind int

const (
	KindNone Kind = iota
	KindEncryptedKey
	KindPKCEncryptedKey
	KindSignature
	KindOnePassSig
)

// Info is the decoded-metadata record spec.md §3 calls QueryInfo.
type Info struct {
	Format    Format
	Kind      Kind
	Version   int
	KeyID     []byte
	NewRecipientInfo bool // unknown RecipientInfo context-tag in (CtagRIPwri, CtagRIMax]; caller should skip, not error
}

var (
	ErrUnderflow = errors.New("query: buffer too short to classify")
	ErrBadData   = errors.New("query: malformed object header")
)

// Classify implements spec.md §4.G's four-step object-query algorithm.
func Classify(buf []byte) (Info, error) {
	if len(buf) < MinObjectSize {
		return Info{}, ErrUnderflow
	}
	first := buf[0]
	// spec.md §4.G gates on BER_SEQUENCE or MAKE_CTAG(3) (PWRI); this
	// module also recognizes the full RecipientInfo context-tag range
	// here rather than only after already committing to the ASN.1
	// branch, since a caller iterating a RecipientInfos SET hands this
	// function one element at a time and any of KEKRI/PWRI/unknown-tag
	// elements can legitimately be the first byte seen.
	if first == wire.TagSequence || (first&0xe0 == 0xa0 && first >= wire.MakeCtag(keyex.CtagRIKekri)) {
		return classifyASN1(buf)
	}
	return classifyPGP(buf)
}

func classifyASN1(buf []byte) (Info, error) {
	c := wire.NewCursor(buf)
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return Info{}, ErrUnderflow
	}
	end := c.Pos() + length
	if end > len(buf) {
		return Info{}, ErrUnderflow
	}

	if tag == wire.MakeCtag(keyex.CtagRIPwri) {
		version := c.ReadShortInteger()
		if !c.Ok() {
			return Info{}, ErrBadData
		}
		return Info{Format: FormatCMS, Kind: KindEncryptedKey, Version: version}, nil
	}
	if tag == wire.MakeCtag(keyex.CtagRIKekri) {
		version := c.ReadShortInteger()
		if !c.Ok() {
			return Info{}, ErrBadData
		}
		return Info{Format: FormatCMS, Kind: KindEncryptedKey, Version: version}, nil
	}
	if tag >= wire.MakeCtag(keyex.CtagRIPwri+1) && tag <= wire.MakeCtag(keyex.CtagRIMax) {
		return Info{NewRecipientInfo: true}, nil
	}

	version := c.ReadShortInteger()
	if !c.Ok() {
		return Info{}, ErrBadData
	}
	switch version {
	case keyex.KeyTransVersion:
		return Info{Format: FormatCMS, Kind: KindPKCEncryptedKey, Version: version}, nil
	case 1:
		// CMS SignerInfo version 1 and KeyTransRecipientInfo version 1
		// share the low integer; both are SEQUENCEs at the top level
		// and distinguished by the caller already knowing which codec
		// it asked for — query only reports the (format, version) pair.
		return Info{Format: FormatCMS, Kind: KindSignature, Version: version}, nil
	case keyex.KeyTransExVersion:
		return Info{Format: FormatCryptlib, Kind: KindPKCEncryptedKey, Version: version}, nil
	case 3:
		return Info{Format: FormatCryptlib, Kind: KindSignature, Version: version}, nil
	case keyex.KEKVersion:
		return Info{Format: FormatCMS, Kind: KindEncryptedKey, Version: version}, nil
	default:
		return Info{}, ErrBadData
	}
}

func classifyPGP(buf []byte) (Info, error) {
	c := wire.NewCursor(buf)
	tag, length := c.ReadPacketHeader()
	if !c.Ok() {
		return Info{}, ErrBadData
	}
	if c.Pos()+length > len(buf) {
		return Info{}, ErrUnderflow
	}

	switch tag {
	case wire.PacketPKESessionKey:
		return Info{Format: FormatPGP, Kind: KindPKCEncryptedKey}, nil
	case wire.PacketSKESessionKey:
		return Info{Format: FormatPGP, Kind: KindEncryptedKey}, nil
	case wire.PacketSignature:
		return Info{Format: FormatPGP, Kind: KindSignature, Version: 4}, nil
	case wire.PacketOnePassSig:
		// kind=None per spec.md §4.G, but callers dispatch to a
		// dedicated one-pass-sig reader rather than treating this as
		// an unrecognized object.
		return Info{Format: FormatPGP, Kind: KindNone, Version: 3}, nil
	default:
		return Info{}, ErrBadData
	}
}
