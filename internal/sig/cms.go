package sig

import (
	"bytes"
	"encoding/asn1"
	"sort"

	"github.com/cryptwire/engine/internal/wire"
)

// CMSAttribute is one `SEQUENCE { type OID, values SET OF ANY }`
// element of a signedAttrs/unsignedAttrs collection. Each entry in
// Values is the raw DER encoding (tag+length+content) of one
// AttributeValue.
type CMSAttribute struct {
	OID    asn1.ObjectIdentifier
	Values [][]byte
}

// Well-known attribute OIDs used by CreateSignature/CheckSignature.
var (
	OIDContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	OIDCounterSig    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 6}
)

// CMSSignerInfo is a decoded RFC 5652 SignerInfo (version 1, the only
// version this module produces — certificate-identified signers via
// issuerAndSerialNumber rather than subjectKeyIdentifier).
type CMSSignerInfo struct {
	IssuerAndSerial []byte // raw DER of the IssuerAndSerialNumber SEQUENCE
	DigestAlgo      wire.AlgoID
	SignedAttrs     []CMSAttribute
	SigAlgo         wire.AlgoID
	Signature       []byte
	UnsignedAttrs   []CMSAttribute
}

const SignerInfoVersion = 1

func encodeAttribute(a CMSAttribute) []byte {
	values := append([][]byte(nil), a.Values...)
	sort.Slice(values, func(i, j int) bool { return bytes.Compare(values[i], values[j]) < 0 })
	inner := wire.NewWriter()
	for _, v := range values {
		inner.Write(v)
	}
	set := wire.NewWriter()
	set.WriteTagLength(wire.TagSet, inner.Len())
	set.Write(inner.Bytes())

	w := wire.NewWriter()
	w.WriteOID(a.OID)
	w.Write(set.Bytes())
	out := wire.NewWriter()
	out.WriteSequenceHeader(w.Len())
	out.Write(w.Bytes())
	return out.Bytes()
}

// encodeAttributeList DER-sorts a SET OF Attribute's elements by their
// own encoded bytes, matching the ecosystem's pkcs7 marshalling
// convention (sort each fully-encoded SEQUENCE{type,values} before
// concatenating) rather than relying on insertion order.
func encodeAttributeList(attrs []CMSAttribute) [][]byte {
	out := make([][]byte, len(attrs))
	for i, a := range attrs {
		out[i] = encodeAttribute(a)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

func writeAttrListBody(w *wire.Writer, attrs []CMSAttribute) {
	for _, enc := range encodeAttributeList(attrs) {
		w.Write(enc)
	}
}

func attrListBodyLen(attrs []CMSAttribute) int {
	w := wire.NewCountingWriter()
	writeAttrListBody(w, attrs)
	return w.Len()
}

func readAttributeList(buf []byte) ([]CMSAttribute, error) {
	c := wire.NewCursor(buf)
	var out []CMSAttribute
	for c.Remaining() > 0 && c.Ok() {
		length := c.ReadSequence()
		end := c.Pos() + length
		oid := c.ReadOID()
		setTag, setLen := c.ReadTagLength()
		if setTag != wire.TagSet {
			c.SetError(wire.KindBadData)
		}
		setEnd := c.Pos() + setLen
		var values [][]byte
		for c.Pos() < setEnd && c.Ok() {
			values = append(values, c.ReadUniversal())
		}
		if !c.Ok() || c.Pos() != setEnd || c.Pos() != end {
			return nil, ErrBadData
		}
		out = append(out, CMSAttribute{OID: oid, Values: values})
	}
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	return out, nil
}

// Find returns the first (and, per spec.md's single-valued attribute
// convention, only) value for oid, or nil if absent.
func findAttr(attrs []CMSAttribute, oid asn1.ObjectIdentifier) []byte {
	for _, a := range attrs {
		if a.OID.Equal(oid) && len(a.Values) > 0 {
			return a.Values[0]
		}
	}
	return nil
}

// MessageDigest returns the raw octet-string content of the
// message-digest signed attribute, or nil if absent/malformed.
func (s CMSSignerInfo) MessageDigest() []byte {
	raw := findAttr(s.SignedAttrs, OIDMessageDigest)
	if raw == nil {
		return nil
	}
	c := wire.NewCursor(raw)
	v := c.ReadOctetString()
	if !c.Ok() {
		return nil
	}
	return v
}

// ReadCMSSignerInfo parses a SignerInfo body (the bytes inside its
// enclosing SEQUENCE, header already consumed by the caller, which is
// typically an iteration over SignerInfos SET OF SignerInfo).
func ReadCMSSignerInfo(body []byte) (CMSSignerInfo, error) {
	c := wire.NewCursor(body)
	length := c.ReadSequence()
	if !c.Ok() {
		return CMSSignerInfo{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != SignerInfoVersion {
		return CMSSignerInfo{}, ErrBadData
	}
	iAndS := c.ReadUniversal()
	digestAlgo := c.ReadAlgoID()
	if !c.Ok() {
		return CMSSignerInfo{}, classifyErr(c)
	}

	var info CMSSignerInfo
	if c.PeekTag() == wire.MakeCtag(0) {
		attrs, err := readImplicitAttrSet(c, 0)
		if err != nil {
			return CMSSignerInfo{}, err
		}
		info.SignedAttrs = attrs
	}

	sigAlgo := c.ReadAlgoID()
	sig := c.ReadOctetString()
	if !c.Ok() {
		return CMSSignerInfo{}, classifyErr(c)
	}

	if c.Pos() < end && c.PeekTag() == wire.MakeCtag(1) {
		attrs, err := readImplicitAttrSet(c, 1)
		if err != nil {
			return CMSSignerInfo{}, err
		}
		info.UnsignedAttrs = attrs
	}
	if !c.Ok() || c.Pos() != end {
		return CMSSignerInfo{}, ErrBadData
	}

	info.IssuerAndSerial = iAndS
	info.DigestAlgo = digestAlgo
	info.SigAlgo = sigAlgo
	info.Signature = sig
	return info, nil
}

func readImplicitAttrSet(c *wire.Cursor, ctag byte) ([]CMSAttribute, error) {
	length := c.ReadConstructed(wire.MakeCtag(ctag))
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	body := c.ReadExact(length)
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	return readAttributeList(body)
}

// SignedAttrsHashBytes returns the exact bytes CreateSignature/
// CheckSignature must hash for the signedAttrs field: the DER
// encoding re-tagged from `[0] IMPLICIT` to a universal `SET OF`
// (RFC 5652 §5.4 — "a field ... tagged [0] IMPLICIT ... MUST be
// DER re-encoded as a SET OF before being digested"), NOT the literal
// `[0]` bytes as they appear on the wire.
func SignedAttrsHashBytes(attrs []CMSAttribute) []byte {
	bodyLen := attrListBodyLen(attrs)
	w := wire.NewWriter()
	w.WriteTagLength(wire.TagSet, bodyLen)
	writeAttrListBody(w, attrs)
	return w.Bytes()
}

// WriteCMSSignerInfo encodes a full SignerInfo SEQUENCE.
func WriteCMSSignerInfo(info CMSSignerInfo) []byte {
	inner := wire.NewWriter()
	inner.WriteShortInteger(SignerInfoVersion)
	inner.Write(info.IssuerAndSerial)
	writeAlgoIDTo(inner, info.DigestAlgo)
	if info.SignedAttrs != nil {
		bodyLen := attrListBodyLen(info.SignedAttrs)
		inner.WriteTagLength(wire.MakeCtag(0), bodyLen)
		writeAttrListBody(inner, info.SignedAttrs)
	}
	writeAlgoIDTo(inner, info.SigAlgo)
	inner.WriteOctetString(info.Signature)
	if info.UnsignedAttrs != nil {
		bodyLen := attrListBodyLen(info.UnsignedAttrs)
		inner.WriteTagLength(wire.MakeCtag(1), bodyLen)
		writeAttrListBody(inner, info.UnsignedAttrs)
	}
	out := wire.NewWriter()
	out.WriteSequenceHeader(inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

// CMSCryptlib is cryptlib's extended SignerInfo (version 3): adds a
// `[0] OCTET STRING keyID` signerIdentifier alternative to
// issuerAndSerialNumber, mirroring CryptlibKeyTrans in internal/keyex.
type CMSCryptlib struct {
	KeyID         []byte
	DigestAlgo    wire.AlgoID
	SignedAttrs   []CMSAttribute
	SigAlgo       wire.AlgoID
	Signature     []byte
	UnsignedAttrs []CMSAttribute
}

const CryptlibSignerInfoVersion = 3

func ReadCMSCryptlib(body []byte) (CMSCryptlib, error) {
	c := wire.NewCursor(body)
	length := c.ReadSequence()
	if !c.Ok() {
		return CMSCryptlib{}, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != CryptlibSignerInfoVersion {
		return CMSCryptlib{}, ErrBadData
	}
	keyIDLen := c.ReadConstructed(wire.MakeCtag(0))
	keyID := c.ReadExact(keyIDLen)
	digestAlgo := c.ReadAlgoID()
	if !c.Ok() {
		return CMSCryptlib{}, classifyErr(c)
	}

	var out CMSCryptlib
	if c.PeekTag() == wire.MakeCtag(1) {
		attrs, err := readImplicitAttrSet(c, 1)
		if err != nil {
			return CMSCryptlib{}, err
		}
		out.SignedAttrs = attrs
	}
	sigAlgo := c.ReadAlgoID()
	sig := c.ReadOctetString()
	if !c.Ok() {
		return CMSCryptlib{}, classifyErr(c)
	}
	if c.Pos() < end && c.PeekTag() == wire.MakeCtag(2) {
		attrs, err := readImplicitAttrSet(c, 2)
		if err != nil {
			return CMSCryptlib{}, err
		}
		out.UnsignedAttrs = attrs
	}
	if !c.Ok() || c.Pos() != end {
		return CMSCryptlib{}, ErrBadData
	}
	out.KeyID = keyID
	out.DigestAlgo = digestAlgo
	out.SigAlgo = sigAlgo
	out.Signature = sig
	return out, nil
}

func WriteCMSCryptlib(info CMSCryptlib) []byte {
	inner := wire.NewWriter()
	inner.WriteShortInteger(CryptlibSignerInfoVersion)
	inner.WriteTagLength(wire.MakeCtag(0), len(info.KeyID))
	inner.Write(info.KeyID)
	writeAlgoIDTo(inner, info.DigestAlgo)
	if info.SignedAttrs != nil {
		bodyLen := attrListBodyLen(info.SignedAttrs)
		inner.WriteTagLength(wire.MakeCtag(1), bodyLen)
		writeAttrListBody(inner, info.SignedAttrs)
	}
	writeAlgoIDTo(inner, info.SigAlgo)
	inner.WriteOctetString(info.Signature)
	if info.UnsignedAttrs != nil {
		bodyLen := attrListBodyLen(info.UnsignedAttrs)
		inner.WriteTagLength(wire.MakeCtag(2), bodyLen)
		writeAttrListBody(inner, info.UnsignedAttrs)
	}
	out := wire.NewWriter()
	out.WriteSequenceHeader(inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

// CountersignHashWholeSignerInfo gates between the two possible
// interpretations of RFC 2985/5652 countersignature hashing this
// module's spec left open (spec.md §9 Open Questions): false (the
// default, and correct per RFC 5652 §11.4) hashes only the content
// octets of the countersigned SignerInfo's `signature` OCTET STRING;
// true reproduces the historical broken behaviour some toolkits
// shipped, hashing the whole encoded SignerInfo instead, for
// interop testing against that behaviour only.
var CountersignHashWholeSignerInfo = false

// CountersignatureDigestInput returns the bytes a countersignature
// must hash over, given the countersigned SignerInfo's raw encoding
// and the byte range (within it) of its `signature` OCTET STRING
// content octets, as produced by ReadCMSSignerInfoEx.
func CountersignatureDigestInput(signerInfoRaw []byte, sigContentStart, sigContentLen int) []byte {
	if CountersignHashWholeSignerInfo {
		return signerInfoRaw
	}
	return signerInfoRaw[sigContentStart : sigContentStart+sigContentLen]
}

// ReadCMSSignerInfoEx is ReadCMSSignerInfo but also returns the
// absolute byte range of the `signature` OCTET STRING's content
// octets within body, for CountersignatureDigestInput.
func ReadCMSSignerInfoEx(body []byte) (CMSSignerInfo, int, int, error) {
	c := wire.NewCursor(body)
	length := c.ReadSequence()
	if !c.Ok() {
		return CMSSignerInfo{}, 0, 0, classifyErr(c)
	}
	end := c.Pos() + length
	version := c.ReadShortInteger()
	if version != SignerInfoVersion {
		return CMSSignerInfo{}, 0, 0, ErrBadData
	}
	iAndS := c.ReadUniversal()
	digestAlgo := c.ReadAlgoID()
	if !c.Ok() {
		return CMSSignerInfo{}, 0, 0, classifyErr(c)
	}
	var info CMSSignerInfo
	if c.PeekTag() == wire.MakeCtag(0) {
		attrs, err := readImplicitAttrSet(c, 0)
		if err != nil {
			return CMSSignerInfo{}, 0, 0, err
		}
		info.SignedAttrs = attrs
	}
	sigAlgo := c.ReadAlgoID()
	sigTag, sigLen := c.ReadTagLength()
	if !c.Ok() || sigTag != wire.TagOctetString {
		return CMSSignerInfo{}, 0, 0, ErrBadData
	}
	sigStart := c.Pos()
	sig := c.ReadExact(sigLen)
	if !c.Ok() {
		return CMSSignerInfo{}, 0, 0, classifyErr(c)
	}
	if c.Pos() < end && c.PeekTag() == wire.MakeCtag(1) {
		attrs, err := readImplicitAttrSet(c, 1)
		if err != nil {
			return CMSSignerInfo{}, 0, 0, err
		}
		info.UnsignedAttrs = attrs
	}
	if !c.Ok() || c.Pos() != end {
		return CMSSignerInfo{}, 0, 0, ErrBadData
	}
	info.IssuerAndSerial = iAndS
	info.DigestAlgo = digestAlgo
	info.SigAlgo = sigAlgo
	info.Signature = sig
	return info, sigStart, sigLen, nil
}
