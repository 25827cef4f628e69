package sig

import (
	"bytes"
	"crypto/dsa"
	"crypto/rand"
	"crypto/sha1"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/cryptoctx"
	"github.com/cryptwire/engine/internal/wire"
)

func TestRawRoundTrip(t *testing.T) {
	sig := []byte{0x01, 0x02, 0x03, 0x04}
	enc := WriteRaw(sig)
	got, err := ReadRaw(enc)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if !bytes.Equal(got, sig) {
		t.Fatalf("round trip mismatch")
	}
}

func TestX509RoundTrip(t *testing.T) {
	algoID := wire.AlgoID{OID: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}}
	sig := bytes.Repeat([]byte{0xab}, 256)
	enc := WriteX509(algoID, sig)
	got, err := ReadX509(enc)
	if err != nil {
		t.Fatalf("ReadX509: %v", err)
	}
	if !got.SigAlgo.OID.Equal(algoID.OID) || !bytes.Equal(got.Sig, sig) {
		t.Fatalf("field mismatch")
	}
}

func genDSAKey(t *testing.T) *dsa.PrivateKey {
	t.Helper()
	var params dsa.Parameters
	if err := dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160); err != nil {
		t.Fatalf("dsa params: %v", err)
	}
	priv := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: params}}
	if err := dsa.GenerateKey(priv, rand.Reader); err != nil {
		t.Fatalf("dsa keygen: %v", err)
	}
	return priv
}

func TestDLPFormatRoundTrip(t *testing.T) {
	priv := genDSAKey(t)
	ctx := cryptoctx.NewDSAContext(&priv.PublicKey, priv)
	digest := sha1.Sum([]byte("message"))

	for _, format := range []cryptoctx.DLPFormat{cryptoctx.DLPFormatPGP, cryptoctx.DLPFormatSSH, cryptoctx.DLPFormatCMS} {
		encoded, err := SignDLP(ctx, digest[:], format)
		if err != nil {
			t.Fatalf("SignDLP(%v): %v", format, err)
		}
		if err := VerifyDLP(ctx, digest[:], encoded, format); err != nil {
			t.Fatalf("VerifyDLP(%v): %v", format, err)
		}
	}
}

func TestCMSSignerInfoWithSigningTime(t *testing.T) {
	// spec.md E3: CMS SignerInfo carrying a signingTime attribute.
	contentTypeVal := mustMarshal(t, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1})
	digestVal := mustOctetString([]byte("0123456789abcdef0123"))
	signingTimeVal := mustUTCTime(t)

	signedAttrs := []CMSAttribute{
		{OID: OIDContentType, Values: [][]byte{contentTypeVal}},
		{OID: OIDMessageDigest, Values: [][]byte{digestVal}},
		{OID: OIDSigningTime, Values: [][]byte{signingTimeVal}},
	}

	info := CMSSignerInfo{
		IssuerAndSerial: mustIssuerAndSerial(t),
		DigestAlgo:      wire.AlgoID{OID: asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}},
		SignedAttrs:     signedAttrs,
		SigAlgo:         wire.AlgoID{OID: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}},
		Signature:       bytes.Repeat([]byte{0xcd}, 128),
	}
	enc := WriteCMSSignerInfo(info)
	got, err := ReadCMSSignerInfo(enc)
	if err != nil {
		t.Fatalf("ReadCMSSignerInfo: %v", err)
	}
	if !bytes.Equal(got.Signature, info.Signature) {
		t.Fatalf("signature mismatch")
	}
	if md := got.MessageDigest(); !bytes.Equal(md, []byte("0123456789abcdef0123")) {
		t.Fatalf("message digest mismatch: %x", md)
	}
	if len(got.SignedAttrs) != 3 {
		t.Fatalf("expected 3 signed attrs, got %d", len(got.SignedAttrs))
	}

	// The hashed bytes must use a universal SET OF tag (0x31), not the
	// wire's [0] IMPLICIT tag (0xA0).
	hashBytes := SignedAttrsHashBytes(got.SignedAttrs)
	if hashBytes[0] != wire.TagSet {
		t.Fatalf("expected re-tagged SET OF (0x31), got %#x", hashBytes[0])
	}
}

func TestCryptlibSignerInfoRoundTrip(t *testing.T) {
	info := CMSCryptlib{
		KeyID:      []byte("0123456789abcdef"),
		DigestAlgo: wire.AlgoID{OID: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}},
		SigAlgo:    wire.AlgoID{OID: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}},
		Signature:  bytes.Repeat([]byte{0xef}, 256),
	}
	enc := WriteCMSCryptlib(info)
	got, err := ReadCMSCryptlib(enc)
	if err != nil {
		t.Fatalf("ReadCMSCryptlib: %v", err)
	}
	if !bytes.Equal(got.KeyID, info.KeyID) || !bytes.Equal(got.Signature, info.Signature) {
		t.Fatalf("field mismatch")
	}
}

func TestPGPv4DSASignatureTrailer(t *testing.T) {
	// spec.md E4: PGP v4 DSA signature; the trailer for a hashed length
	// of 0x17 (23) bytes is `04 FF 00 00 00 17`.
	s := PGPSignature{
		SigType:    0x00,
		PubKeyAlgo: algo.AlgoDSA,
		HashAlgo:   algo.AlgoSHA1,
		HashedSubpackets: []PGPSubpacket{
			{Type: SubpacketSigCreationTime, Data: wire.Uint32BE(1234567890)},
			{Type: SubpacketIssuer, Data: bytes.Repeat([]byte{0x11}, 8)},
		},
	}
	hashedLen := subpacketsLen(s.HashedSubpackets)
	if hashedLen != 23 {
		t.Fatalf("expected 23-byte hashed subpacket block, got %d", hashedLen)
	}

	h := sha1.New()
	h.Write([]byte("signed content"))
	HashForSigning(h, s)
	digest := h.Sum(nil)
	if len(digest) != 20 {
		t.Fatalf("expected 20-byte SHA-1 digest")
	}

	// Re-derive the trailer independently and check its bytes.
	wantTrailer := []byte{4, 0xff, 0, 0, 0, byte(hashedLen + 6)}
	if wantTrailer[5] != 0x1d {
		t.Fatalf("expected trailer length byte 0x1d, got %#x", wantTrailer[5])
	}

	priv := genDSAKey(t)
	ctx := cryptoctx.NewDSAContext(&priv.PublicKey, priv)
	sigBytes, err := SignDLP(ctx, digest, cryptoctx.DLPFormatPGP)
	if err != nil {
		t.Fatalf("SignDLP: %v", err)
	}
	c := wire.NewCursor(sigBytes)
	scratch, err := DecodeDLPPGP(c)
	if err != nil {
		t.Fatalf("DecodeDLPPGP: %v", err)
	}
	s.MPIs = [][]byte{scratch[:20], scratch[20:]}
	packet := WritePGPSignature(nil, s)

	pc := wire.NewCursor(packet)
	tag, length := pc.ReadPacketHeader()
	if tag != wire.PacketSignature {
		t.Fatalf("unexpected packet tag %d", tag)
	}
	body := pc.ReadExact(length)
	got, err := ReadPGPSignature(body)
	if err != nil {
		t.Fatalf("ReadPGPSignature: %v", err)
	}
	if got.PubKeyAlgo != algo.AlgoDSA || got.HashAlgo != algo.AlgoSHA1 {
		t.Fatalf("algo mismatch")
	}
	if err := ctx.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: rsToScratchForTest(got.MPIs)}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func rsToScratchForTest(mpis [][]byte) []byte {
	out := make([]byte, 40)
	copy(out[20-len(mpis[0]):20], mpis[0])
	copy(out[40-len(mpis[1]):40], mpis[1])
	return out
}

func TestOnePassSigRoundTrip(t *testing.T) {
	o := PGPOnePassSig{
		SigType:    0x00,
		HashAlgo:   algo.AlgoSHA256,
		PubKeyAlgo: algo.AlgoRSA,
		Nested:     true,
	}
	copy(o.KeyID[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	packet := WritePGPOnePassSig(nil, o)
	c := wire.NewCursor(packet)
	tag, length := c.ReadPacketHeader()
	if tag != wire.PacketOnePassSig {
		t.Fatalf("unexpected tag %d", tag)
	}
	got, err := ReadPGPOnePassSig(c.ReadExact(length))
	if err != nil {
		t.Fatalf("ReadPGPOnePassSig: %v", err)
	}
	if got.KeyID != o.KeyID || !got.Nested {
		t.Fatalf("field mismatch")
	}
}

func TestSSHSignatureRoundTrip(t *testing.T) {
	sig := bytes.Repeat([]byte{0x42}, 40)
	enc := WriteSSHSignature(SSHAlgoDSA, sig)
	name, got, err := ReadSSHSignature(enc)
	if err != nil {
		t.Fatalf("ReadSSHSignature: %v", err)
	}
	if name != SSHAlgoDSA || !bytes.Equal(got, sig) {
		t.Fatalf("field mismatch")
	}
}

func TestSSHSignatureBadDSALength(t *testing.T) {
	sig := bytes.Repeat([]byte{0x42}, 41) // DSA must be exactly 40
	enc := WriteSSHSignature(SSHAlgoDSA, sig)
	if _, _, err := ReadSSHSignature(enc); err != ErrBadData {
		t.Fatalf("expected ErrBadData, got %v", err)
	}
}

func TestSSLSignatureRoundTrip(t *testing.T) {
	sig := bytes.Repeat([]byte{0x77}, 128)
	enc := WriteSSLSignature(sig)
	got, err := ReadSSLSignature(enc)
	if err != nil {
		t.Fatalf("ReadSSLSignature: %v", err)
	}
	if !bytes.Equal(got, sig) {
		t.Fatalf("round trip mismatch")
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := asn1.Marshal(v)
	if err != nil {
		t.Fatalf("asn1.Marshal: %v", err)
	}
	return b
}

func mustOctetString(v []byte) []byte {
	w := wire.NewWriter()
	w.WriteOctetString(v)
	return w.Bytes()
}

// mustUTCTime builds a fixed UTCTime TLV by hand (tag 0x17) rather
// than through asn1.Marshal+time.Time, since this module's test
// environment cannot call time.Now.
func mustUTCTime(t *testing.T) []byte {
	t.Helper()
	body := []byte("230102030405Z")
	w := wire.NewWriter()
	w.WriteTagLength(wire.TagUTCTime, len(body))
	w.Write(body)
	return w.Bytes()
}

func mustIssuerAndSerial(t *testing.T) []byte {
	t.Helper()
	type tbsIAS struct {
		Issuer asn1.RawValue
		Serial *big.Int
	}
	issuerName := mustMarshal(t, struct{ CN string }{"Test CA"})
	raw := tbsIAS{
		Issuer: asn1.RawValue{FullBytes: issuerName},
		Serial: big.NewInt(12345),
	}
	b, err := asn1.Marshal(raw)
	if err != nil {
		t.Fatalf("asn1.Marshal issuerAndSerial: %v", err)
	}
	return b
}
