package wire

import (
	"bytes"
	"testing"
)

func TestCursorReadExactUnderflow(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if got := c.ReadExact(2); !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("ReadExact(2) = %v", got)
	}
	if got := c.ReadExact(5); got != nil {
		t.Fatalf("expected nil past end, got %v", got)
	}
	if c.Ok() {
		t.Fatal("expected poisoned cursor after underflow")
	}
	if c.AsError() != ErrUnderflow {
		t.Fatalf("expected ErrUnderflow, got %v", c.AsError())
	}
}

func TestCursorClearErrorRetry(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02})
	checkpoint := c.Pos()
	c.ReadFixedOID(nil) // deliberately wrong shape, poisons cursor
	if c.Ok() {
		t.Fatal("expected poisoned cursor")
	}
	c.Seek(checkpoint)
	c.ClearError()
	if !c.Ok() {
		t.Fatal("expected cursor healthy after ClearError")
	}
}

func TestMPIRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01},
		{0xff, 0x00, 0x01},
		{0x00, 0x00, 0x80},
	}
	for _, v := range cases {
		enc := WriteMPI(nil, v)
		c := NewCursor(enc)
		got, _ := c.ReadMPI()
		trimmed := v
		for len(trimmed) > 0 && trimmed[0] == 0 {
			trimmed = trimmed[1:]
		}
		if !bytes.Equal(got, trimmed) {
			t.Fatalf("MPI round trip: got %x want %x", got, trimmed)
		}
	}
}

func TestPacketHeaderRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 191, 192, 8383, 8384, 70000}
	for _, l := range lengths {
		hdr := WritePacketHeader(nil, PacketSignature, l)
		c := NewCursor(hdr)
		tag, gotLen := c.ReadPacketHeader()
		if tag != PacketSignature || gotLen != l {
			t.Fatalf("length %d: got tag=%d len=%d", l, tag, gotLen)
		}
	}
}

func TestChecksum(t *testing.T) {
	if Checksum([]byte{0x01, 0x02, 0x03}) != 6 {
		t.Fatal("unexpected checksum")
	}
}

func TestWriterCountingMatchesLive(t *testing.T) {
	probe := NewCountingWriter()
	probe.WriteOctetString([]byte("hello"))
	live := NewWriter()
	live.WriteOctetString([]byte("hello"))
	if probe.Len() != live.Len() {
		t.Fatalf("probe len %d != live len %d", probe.Len(), live.Len())
	}
	if probe.Bytes() != nil {
		t.Fatal("counting writer should not accumulate bytes")
	}
}
