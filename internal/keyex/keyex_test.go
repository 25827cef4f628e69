package keyex

import (
	"bytes"
	"encoding/asn1"
	"testing"

	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/kdf"
	"github.com/cryptwire/engine/internal/wire"
)

func TestPGPSkeRoundTrip(t *testing.T) {
	var salt [8]byte
	for i := range salt {
		salt[i] = byte(i)
	}
	in := PGPSke{
		CryptAlgo: algo.AlgoAES128,
		S2KSpec:   kdf.S2KIteratedSalt,
		HashAlgo:  algo.AlgoSHA1,
		Salt:      salt,
		Count:     kdf.DecodeS2KCount(0x60),
	}
	packet := WritePGPSke(nil, in)

	c := wire.NewCursor(packet)
	tag, length := c.ReadPacketHeader()
	if tag != wire.PacketSKESessionKey {
		t.Fatalf("unexpected tag %d", tag)
	}
	body := c.ReadExact(length)
	got, err := ReadPGPSke(body)
	if err != nil {
		t.Fatalf("ReadPGPSke: %v", err)
	}
	if got.CryptAlgo != in.CryptAlgo || got.HashAlgo != in.HashAlgo || got.S2KSpec != in.S2KSpec {
		t.Fatalf("field mismatch: %+v != %+v", got, in)
	}
	if got.Salt != in.Salt {
		t.Fatalf("salt mismatch")
	}
	// EncodeS2KCount(Decode(0x60)) round trips to the same coded byte.
	if kdf.EncodeS2KCount(got.Count) != 0x60 {
		t.Fatalf("count round trip mismatch: got coded %x", kdf.EncodeS2KCount(got.Count))
	}
}

func TestPGPPkeRoundTrip(t *testing.T) {
	var keyID [8]byte
	copy(keyID[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	in := PGPPke{
		Algo:  algo.AlgoRSA,
		KeyID: keyID,
		MPIs:  [][]byte{{0x01, 0x02, 0x03}},
	}
	out := WritePGPPke(nil, in)
	c := wire.NewCursor(out)
	tag, length := c.ReadPacketHeader()
	if tag != wire.PacketPKESessionKey {
		t.Fatalf("unexpected tag %d", tag)
	}
	body := c.ReadExact(length)
	got, err := ReadPGPPke(body)
	if err != nil {
		t.Fatalf("ReadPGPPke: %v", err)
	}
	if got.KeyID != in.KeyID || got.Algo != in.Algo {
		t.Fatalf("field mismatch")
	}
	if !bytes.Equal(got.MPIs[0], in.MPIs[0]) {
		t.Fatalf("MPI mismatch")
	}
}

func TestCMSPwriModernRoundTrip(t *testing.T) {
	p := CMSPwri{
		Salt:         []byte("saltsalt"),
		Iterations:   2048,
		KEKAlgo:      wire.AlgoID{OID: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}},
		ModernFormat: true,
		EncryptedKey: []byte("0123456789abcdef"),
	}
	enc := WriteCMSPwri(p)
	got, err := ReadCMSPwri(enc)
	if err != nil {
		t.Fatalf("ReadCMSPwri: %v", err)
	}
	if got.Iterations != p.Iterations || !bytes.Equal(got.Salt, p.Salt) {
		t.Fatalf("field mismatch: %+v", got)
	}
	if !got.ModernFormat {
		t.Fatal("expected modern format detected")
	}
	if !bytes.Equal(got.EncryptedKey, p.EncryptedKey) {
		t.Fatalf("encrypted key mismatch")
	}
}

func TestCMSPwriLegacyRoundTrip(t *testing.T) {
	p := CMSPwri{
		KEKAlgo:      wire.AlgoID{OID: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}},
		ModernFormat: false,
		EncryptedKey: []byte("0123456789abcdef"),
	}
	enc := WriteCMSPwri(p)
	got, err := ReadCMSPwri(enc)
	if err != nil {
		t.Fatalf("ReadCMSPwri: %v", err)
	}
	if got.ModernFormat {
		t.Fatal("expected legacy format detected")
	}
	if !got.KEKAlgo.OID.Equal(p.KEKAlgo.OID) {
		t.Fatalf("KEK algo mismatch")
	}
}

func TestCryptlibKeyTransRoundTrip(t *testing.T) {
	kt := CryptlibKeyTrans{
		KeyID:        []byte("0123456789abcdef"),
		KeyAlgo:      wire.AlgoID{OID: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}},
		EncryptedKey: bytes.Repeat([]byte{0xaa}, 256),
	}
	enc := WriteCryptlibKeyTrans(kt)
	got, err := ReadCryptlibKeyTrans(enc)
	if err != nil {
		t.Fatalf("ReadCryptlibKeyTrans: %v", err)
	}
	if !bytes.Equal(got.KeyID, kt.KeyID) || !bytes.Equal(got.EncryptedKey, kt.EncryptedKey) {
		t.Fatalf("field mismatch")
	}
}
