package wire

import (
	"encoding/asn1"
	"math/big"
)

// ASN.1 universal tags used directly by the cursor helpers below.
const (
	TagInteger     = 0x02
	TagBitString   = 0x03
	TagOctetString = 0x04
	TagNull        = 0x05
	TagOID         = 0x06
	TagUTCTime     = 0x17
	TagSequence    = 0x30 // constructed
	TagSet         = 0x31 // constructed

	classContextConstructed = 0xA0
)

// MakeCtag builds the constructed, context-specific tag byte for tag
// number n (e.g. MakeCtag(3) == 0xA3), matching the source's
// MAKE_CTAG macro.
func MakeCtag(n byte) byte { return classContextConstructed | n }

// readLength reads a BER/DER length octet sequence (short or long
// form) and returns the decoded length.
func (c *Cursor) readLength() int {
	if !c.Ok() {
		return 0
	}
	first := c.ReadByte()
	if !c.Ok() {
		return 0
	}
	if first&0x80 == 0 {
		return int(first)
	}
	n := int(first & 0x7f)
	if n == 0 || n > 4 {
		c.SetError(KindBadData)
		return 0
	}
	lb := c.ReadExact(n)
	if !c.Ok() {
		return 0
	}
	length := 0
	for _, b := range lb {
		length = length<<8 | int(b)
	}
	return length
}

// ReadTagLength consumes a tag byte and its length, returning the tag
// and the declared content length, without reading the content.
func (c *Cursor) ReadTagLength() (tag byte, length int) {
	tag = c.ReadByte()
	length = c.readLength()
	return tag, length
}

// PeekTag returns the next tag byte without consuming anything.
func (c *Cursor) PeekTag() byte {
	return c.PeekByte()
}

// ReadSequence expects tag 0x30 (SEQUENCE) and returns its content
// length, having consumed the tag+length header only.
func (c *Cursor) ReadSequence() int {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return 0
	}
	if tag != TagSequence {
		c.SetError(KindBadData)
		return 0
	}
	return length
}

// ReadLongSequence is ReadSequence for inputs expected to carry a
// long-form (possibly multi-byte) DER length, i.e. no additional
// short-length fast path; identical semantics, kept as a distinct
// name to mirror callers that explicitly expect large objects
// (top-level SignedData, CMS ContentInfo).
func (c *Cursor) ReadLongSequence() int {
	return c.ReadSequence()
}

// ReadConstructed expects a constructed context tag (e.g. [0], [1])
// and returns its content length.
func (c *Cursor) ReadConstructed(tag byte) int {
	gotTag, length := c.ReadTagLength()
	if !c.Ok() {
		return 0
	}
	if gotTag != tag {
		c.SetError(KindBadData)
		return 0
	}
	return length
}

// ReadShortInteger reads an INTEGER expected to fit in an int (version
// numbers, small counters).
func (c *Cursor) ReadShortInteger() int {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return 0
	}
	if tag != TagInteger || length < 1 || length > 8 {
		c.SetError(KindBadData)
		return 0
	}
	b := c.ReadExact(length)
	if !c.Ok() {
		return 0
	}
	v := 0
	for _, x := range b {
		v = v<<8 | int(x)
	}
	return v
}

// ReadBigInteger reads an arbitrary-precision non-negative INTEGER
// (DSA/ElGamal r/s values in CMS SEQUENCE form).
func (c *Cursor) ReadBigInteger() *big.Int {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return nil
	}
	if tag != TagInteger || length < 1 {
		c.SetError(KindBadData)
		return nil
	}
	b := c.ReadExact(length)
	if !c.Ok() {
		return nil
	}
	return new(big.Int).SetBytes(b)
}

// ReadOctetString reads a primitive OCTET STRING and returns its
// content bytes (aliasing the source buffer).
func (c *Cursor) ReadOctetString() []byte {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return nil
	}
	if tag != TagOctetString {
		c.SetError(KindBadData)
		return nil
	}
	return c.ReadExact(length)
}

// ReadOctetStringHole reads an OCTET STRING but returns only its
// position (start, length) instead of copying/aliasing the content,
// for QueryInfo data-span fields that must stay zero-copy.
func (c *Cursor) ReadOctetStringHole() (start, length int) {
	tag, l := c.ReadTagLength()
	if !c.Ok() {
		return 0, 0
	}
	if tag != TagOctetString {
		c.SetError(KindBadData)
		return 0, 0
	}
	start = c.pos
	c.Skip(l)
	return start, l
}

// ReadFixedOID reads an OID and requires it to equal want.
func (c *Cursor) ReadFixedOID(want asn1.ObjectIdentifier) {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return
	}
	if tag != TagOID {
		c.SetError(KindBadData)
		return
	}
	body := c.ReadExact(length)
	if !c.Ok() {
		return
	}
	got, err := decodeOID(body)
	if err != nil || !got.Equal(want) {
		c.SetError(KindBadData)
	}
}

// ReadOID reads and returns an arbitrary OID.
func (c *Cursor) ReadOID() asn1.ObjectIdentifier {
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return nil
	}
	if tag != TagOID {
		c.SetError(KindBadData)
		return nil
	}
	body := c.ReadExact(length)
	if !c.Ok() {
		return nil
	}
	oid, err := decodeOID(body)
	if err != nil {
		c.SetError(KindBadData)
		return nil
	}
	return oid
}

func decodeOID(body []byte) (asn1.ObjectIdentifier, error) {
	// Re-wrap as a DER OID TLV and let encoding/asn1 decode the
	// base-128 arc encoding; this module speaks TLV manually but does
	// not reimplement OID arc arithmetic, matching how the rest of the
	// Go CMS/PKCS#7 ecosystem (smallstep/pkcs7, mozilla-services/pkcs7)
	// leans on encoding/asn1 for the object-identifier subset.
	raw := make([]byte, 0, len(body)+2)
	raw = append(raw, TagOID, byte(len(body)))
	raw = append(raw, body...)
	var oid asn1.ObjectIdentifier
	_, err := asn1.Unmarshal(raw, &oid)
	return oid, err
}

// AlgoID is a decoded AlgorithmIdentifier: an OID plus optional DER
// parameters (nil if the parameters field was NULL or absent).
type AlgoID struct {
	OID    asn1.ObjectIdentifier
	Params []byte
}

// ReadAlgoID reads a SEQUENCE { OID, ANY params OPTIONAL }.
func (c *Cursor) ReadAlgoID() AlgoID {
	length := c.ReadSequence()
	if !c.Ok() {
		return AlgoID{}
	}
	end := c.pos + length
	oid := c.ReadOID()
	var params []byte
	if c.pos < end {
		params = c.ReadExact(end - c.pos)
	}
	if c.pos != end {
		c.SetError(KindBadData)
	}
	return AlgoID{OID: oid, Params: params}
}

// ReadAlgoIDEx is ReadAlgoID but also returns the absolute byte range
// of the whole SEQUENCE, for callers (CMS countersignature hashing)
// that need to hash the original encoded bytes verbatim.
func (c *Cursor) ReadAlgoIDEx() (AlgoID, int, int) {
	start := c.pos
	tag, length := c.ReadTagLength()
	if !c.Ok() {
		return AlgoID{}, 0, 0
	}
	if tag != TagSequence {
		c.SetError(KindBadData)
		return AlgoID{}, 0, 0
	}
	end := c.pos + length
	oid := c.ReadOID()
	var params []byte
	if c.pos < end {
		params = c.ReadExact(end - c.pos)
	}
	if c.pos != end {
		c.SetError(KindBadData)
	}
	return AlgoID{OID: oid, Params: params}, start, end
}

// ReadUniversal skips over an arbitrary TLV (used to step over fields
// the reader doesn't care about) and returns its raw bytes including
// the tag and length header.
func (c *Cursor) ReadUniversal() []byte {
	start := c.pos
	_, length := c.ReadTagLength()
	if !c.Ok() {
		return nil
	}
	c.Skip(length)
	if !c.Ok() {
		return nil
	}
	return c.buf[start:c.pos]
}
