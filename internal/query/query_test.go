package query

import (
	"bytes"
	"encoding/asn1"
	"testing"

	"github.com/cryptwire/engine/internal/keyex"
	"github.com/cryptwire/engine/internal/wire"
)

func TestClassifyUnderflow(t *testing.T) {
	if _, err := Classify(make([]byte, MinObjectSize-1)); err != ErrUnderflow {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
}

func TestClassifyPGPPke(t *testing.T) {
	pke := keyex.PGPPke{Algo: 8 /* AlgoRSA native id */, MPIs: [][]byte{{0x01, 0x02}}}
	packet := keyex.WritePGPPke(nil, pke)
	info, err := Classify(packet)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if info.Format != FormatPGP || info.Kind != KindPKCEncryptedKey {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestClassifyPGPOnePassSig(t *testing.T) {
	body := []byte{3, 0x00, 2, 1, 1, 2, 3, 4, 5, 6, 7, 8, 1}
	packet := wire.WritePacketHeader(nil, wire.PacketOnePassSig, len(body))
	packet = append(packet, body...)
	info, err := Classify(packet)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if info.Kind != KindNone || info.Format != FormatPGP {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestClassifyCMSPwri(t *testing.T) {
	p := keyex.CMSPwri{
		KEKAlgo:      wire.AlgoID{OID: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}},
		EncryptedKey: bytes.Repeat([]byte{1}, 16),
	}
	enc := keyex.WriteCMSPwri(p)
	info, err := Classify(enc)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if info.Format != FormatCMS || info.Kind != KindEncryptedKey {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestClassifyUnknownRecipientInfoTag(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = wire.MakeCtag(5) // in (CtagRIPwri, CtagRIMax]
	buf[1] = 10
	info, err := Classify(buf)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !info.NewRecipientInfo {
		t.Fatalf("expected NewRecipientInfo=true")
	}
}
