package keyex

import (
	"encoding/asn1"

	"github.com/cryptwire/engine/internal/wire"
)

// OIDs used by the CMS/cryptlib key-exchange codec (spec.md §3).
var (
	OIDPBKDF2  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	OIDPWRIKEK = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 3, 9}
)

// RecipientInfo context tags (spec.md §3).
const (
	CtagRIKekri = 2 // [2] KEKRecipientInfo (implicit SET index per source numbering)
	CtagRIPwri  = 3 // [3] PasswordRecipientInfo
	CtagRIMax   = 9
)

const (
	KeyTransVersion   = 0 // CMS KeyTransRecipientInfo (v1)
	KeyTransExVersion = 2 // cryptlib KeyTransRecipientInfo (v3)
	KEKVersion        = 4
	PWRIVersion       = 0
)

// CMSKeyTrans is a decoded RFC 5652 KeyTransRecipientInfo (v1):
// SEQ { INTEGER 0, IssuerAndSerialNumber, AlgorithmIdentifier, OCTET STRING }.
type CMSKeyTrans struct {
	IssuerAndSerial []byte // raw DER of the IssuerAndSerialNumber SEQUENCE
	KeyAlgo         wire.AlgoID
	EncryptedKey    []byte
}

func ReadCMSKeyTrans(body []byte) (CMSKeyTrans, error) {
	c := wire.NewCursor(body)
	length := c.ReadSequence()
	if !c.Ok() {
		return CMSKeyTrans{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != KeyTransVersion {
		return CMSKeyTrans{}, ErrBadData
	}
	iAndS := c.ReadUniversal() // SEQUENCE { issuer Name, serialNumber INTEGER }
	algoID := c.ReadAlgoID()
	encKey := c.ReadOctetString()
	if !c.Ok() {
		return CMSKeyTrans{}, classifyErr(c)
	}
	if c.Pos() != end {
		return CMSKeyTrans{}, ErrBadData
	}
	return CMSKeyTrans{IssuerAndSerial: iAndS, KeyAlgo: algoID, EncryptedKey: encKey}, nil
}

func WriteCMSKeyTrans(kt CMSKeyTrans) []byte {
	inner := wire.NewWriter()
	inner.WriteShortInteger(KeyTransVersion)
	inner.Write(kt.IssuerAndSerial)
	writeAlgoID(inner, kt.KeyAlgo)
	inner.WriteOctetString(kt.EncryptedKey)
	out := wire.NewWriter()
	out.WriteSequenceHeader(inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

// CryptlibKeyTrans is cryptlib's extended KeyTransRecipientInfo (v3):
// SEQ { INTEGER 2, [0] OCTET STRING keyID, AlgorithmIdentifier, OCTET STRING }.
type CryptlibKeyTrans struct {
	KeyID        []byte
	KeyAlgo      wire.AlgoID
	EncryptedKey []byte
}

func ReadCryptlibKeyTrans(body []byte) (CryptlibKeyTrans, error) {
	c := wire.NewCursor(body)
	length := c.ReadSequence()
	if !c.Ok() {
		return CryptlibKeyTrans{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != KeyTransExVersion {
		return CryptlibKeyTrans{}, ErrBadData
	}
	keyIDLen := c.ReadConstructed(wire.MakeCtag(0))
	keyID := c.ReadExact(keyIDLen)
	algoID := c.ReadAlgoID()
	encKey := c.ReadOctetString()
	if !c.Ok() {
		return CryptlibKeyTrans{}, classifyErr(c)
	}
	if c.Pos() != end {
		return CryptlibKeyTrans{}, ErrBadData
	}
	return CryptlibKeyTrans{KeyID: keyID, KeyAlgo: algoID, EncryptedKey: encKey}, nil
}

func WriteCryptlibKeyTrans(kt CryptlibKeyTrans) []byte {
	inner := wire.NewWriter()
	inner.WriteShortInteger(KeyTransExVersion)
	inner.WriteTagLength(wire.MakeCtag(0), len(kt.KeyID))
	inner.Write(kt.KeyID)
	writeAlgoID(inner, kt.KeyAlgo)
	inner.WriteOctetString(kt.EncryptedKey)
	out := wire.NewWriter()
	out.WriteSequenceHeader(inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

// CMSPwri is a decoded RFC 3211 PasswordRecipientInfo as extended by
// spec.md §4.E: tagged [3] outer, PWRI_VERSION=0, optional [0]
// derivation-info (PBKDF2 OID + salt + iteration count), followed by
// an algorithm-id wrapper that is either "modern" (PWRIKEK OID + KEK
// AlgorithmIdentifier wrapped in a SEQUENCE) or "legacy" (bare KEK
// AlgorithmIdentifier) — detected by attempting the PWRIKEK OID read,
// clearing the stream error, and retrying without the wrapper.
type CMSPwri struct {
	Salt           []byte
	Iterations     int
	KEKAlgo        wire.AlgoID
	ModernFormat   bool
	EncryptedKey   []byte
}

// MaxKeySetupIterations bounds PWRI/PBKDF2 iteration counts accepted
// on read (spec.md §3's invariant).
const MaxKeySetupIterations = 20_000_000

func ReadCMSPwri(body []byte) (CMSPwri, error) {
	c := wire.NewCursor(body)
	length := c.ReadConstructed(wire.MakeCtag(CtagRIPwri))
	if !c.Ok() {
		return CMSPwri{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != PWRIVersion {
		return CMSPwri{}, ErrBadData
	}

	var pwri CMSPwri
	if c.PeekTag() == wire.MakeCtag(0) {
		derivLen := c.ReadConstructed(wire.MakeCtag(0))
		derivEnd := c.Pos() + derivLen
		derivAlgo := c.ReadAlgoID() // SEQ{ PBKDF2 OID, params SEQ{salt, iterations} }
		if !c.Ok() {
			return CMSPwri{}, classifyErr(c)
		}
		if derivAlgo.OID == nil || !derivAlgo.OID.Equal(OIDPBKDF2) {
			return CMSPwri{}, ErrBadData
		}
		pc := wire.NewCursor(derivAlgo.Params)
		pc.ReadSequence()
		pwri.Salt = pc.ReadOctetString()
		pwri.Iterations = pc.ReadShortInteger()
		if !pc.Ok() || pwri.Iterations > MaxKeySetupIterations {
			return CMSPwri{}, ErrBadData
		}
		if c.Pos() != derivEnd {
			return CMSPwri{}, ErrBadData
		}
	}

	// Modern-vs-legacy detection: try the PWRIKEK-wrapped form first;
	// on failure, clear the error and retry as a bare AlgorithmIdentifier
	// (spec.md §4.E, §9 Open Questions).
	checkpoint := c.Pos()
	wrapLen := c.ReadSequence()
	if c.Ok() {
		wrapEnd := c.Pos() + wrapLen
		c.ReadFixedOID(OIDPWRIKEK)
		if c.Ok() {
			pwri.KEKAlgo = c.ReadAlgoID()
			if c.Ok() && c.Pos() == wrapEnd {
				pwri.ModernFormat = true
			} else {
				c.SetError(wire.KindBadData)
			}
		}
	}
	if !c.Ok() {
		c.Seek(checkpoint)
		c.ClearError()
		pwri.KEKAlgo = c.ReadAlgoID()
		pwri.ModernFormat = false
	}

	pwri.EncryptedKey = c.ReadOctetString()
	if !c.Ok() {
		return CMSPwri{}, classifyErr(c)
	}
	if c.Pos() != end {
		return CMSPwri{}, ErrBadData
	}
	return pwri, nil
}

func WriteCMSPwri(p CMSPwri) []byte {
	inner := wire.NewWriter()
	inner.WriteShortInteger(PWRIVersion)
	if p.Salt != nil {
		params := wire.NewWriter()
		params.WriteOctetString(p.Salt)
		params.WriteShortInteger(uint64(p.Iterations))
		derivBody := wire.NewWriter()
		derivBody.WriteOID(OIDPBKDF2)
		derivBody.WriteSequenceHeader(params.Len())
		derivBody.Write(params.Bytes())
		inner.WriteTagLength(wire.MakeCtag(0), derivBody.Len())
		inner.Write(derivBody.Bytes())
	}
	if p.ModernFormat {
		wrap := wire.NewWriter()
		wrap.WriteOID(OIDPWRIKEK)
		writeAlgoID(wrap, p.KEKAlgo)
		inner.WriteSequenceHeader(wrap.Len())
		inner.Write(wrap.Bytes())
	} else {
		writeAlgoID(inner, p.KEKAlgo)
	}
	inner.WriteOctetString(p.EncryptedKey)

	out := wire.NewWriter()
	out.WriteTagLength(wire.MakeCtag(CtagRIPwri), inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

func writeAlgoID(w *wire.Writer, a wire.AlgoID) {
	inner := wire.NewWriter()
	inner.WriteOID(a.OID)
	inner.Write(a.Params)
	w.WriteSequenceHeader(inner.Len())
	w.Write(inner.Bytes())
}

// CMSKekri is a decoded RFC 5652 KEKRecipientInfo: tagged [2] outer,
// SEQ { INTEGER 4, kekid SEQ { OCTET STRING keyIdentifier },
// AlgorithmIdentifier, OCTET STRING }. The optional GeneralizedTime /
// OtherKeyAttribute fields of kekid are not produced by this module
// and are skipped (not rejected) on read.
type CMSKekri struct {
	KeyIdentifier []byte
	KeyAlgo       wire.AlgoID
	EncryptedKey  []byte
}

func ReadCMSKekri(body []byte) (CMSKekri, error) {
	c := wire.NewCursor(body)
	length := c.ReadConstructed(wire.MakeCtag(CtagRIKekri))
	if !c.Ok() {
		return CMSKekri{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != KEKVersion {
		return CMSKekri{}, ErrBadData
	}
	kekidLen := c.ReadSequence()
	kekidEnd := c.Pos() + kekidLen
	keyID := c.ReadOctetString()
	if c.Pos() < kekidEnd {
		c.Skip(kekidEnd - c.Pos()) // skip optional date/other-attribute
	}
	algoID := c.ReadAlgoID()
	encKey := c.ReadOctetString()
	if !c.Ok() {
		return CMSKekri{}, classifyErr(c)
	}
	if c.Pos() != end {
		return CMSKekri{}, ErrBadData
	}
	return CMSKekri{KeyIdentifier: keyID, KeyAlgo: algoID, EncryptedKey: encKey}, nil
}

func WriteCMSKekri(k CMSKekri) []byte {
	kekid := wire.NewWriter()
	kekid.WriteOctetString(k.KeyIdentifier)

	inner := wire.NewWriter()
	inner.WriteShortInteger(KEKVersion)
	inner.WriteSequenceHeader(kekid.Len())
	inner.Write(kekid.Bytes())
	writeAlgoID(inner, k.KeyAlgo)
	inner.WriteOctetString(k.EncryptedKey)

	out := wire.NewWriter()
	out.WriteTagLength(wire.MakeCtag(CtagRIKekri), inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}
