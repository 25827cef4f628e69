package sig

import (
	"math/big"

	"github.com/cryptwire/engine/internal/cryptoctx"
	"github.com/cryptwire/engine/internal/wire"
)

// DLP format-aware (de)serialization (spec.md §4.F "DLP
// specialisation"): cryptoctx.DSAContext always signs/verifies through
// a fixed 40-byte (r||s) scratch form; this file converts that scratch
// form to and from the three wire shapes a DSA/ElGamal signature can
// take depending on container format.

func scratchToRS(scratch []byte) (r, s *big.Int) {
	return new(big.Int).SetBytes(scratch[:20]), new(big.Int).SetBytes(scratch[20:])
}

func rsToScratch(r, s *big.Int) []byte {
	out := make([]byte, 40)
	rb, sb := r.Bytes(), s.Bytes()
	copy(out[20-len(rb):20], rb)
	copy(out[40-len(sb):40], sb)
	return out
}

// EncodeDLPPGP writes r/s as two consecutive OpenPGP MPIs, the form
// used inside a v4 signature packet's trailing MPI block.
func EncodeDLPPGP(w *wire.Writer, scratch []byte) {
	r, s := scratchToRS(scratch)
	w.WriteMPI(r.Bytes())
	w.WriteMPI(s.Bytes())
}

// DecodeDLPPGP reads two consecutive MPIs and returns the 40-byte
// scratch form.
func DecodeDLPPGP(c *wire.Cursor) ([]byte, error) {
	r, _ := c.ReadMPI()
	s, _ := c.ReadMPI()
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	return rsToScratch(new(big.Int).SetBytes(r), new(big.Int).SetBytes(s)), nil
}

// EncodeDLPSSH serializes r/s as the "ssh-dss" wire format: a single
// 40-byte blob, r and s each left-padded to 20 bytes with no further
// framing (the enclosing SSH signature string supplies the length).
func EncodeDLPSSH(scratch []byte) []byte {
	out := make([]byte, 40)
	copy(out, scratch)
	return out
}

// DecodeDLPSSH is the inverse of EncodeDLPSSH.
func DecodeDLPSSH(blob []byte) ([]byte, error) {
	if len(blob) != 40 {
		return nil, ErrBadData
	}
	return append([]byte(nil), blob...), nil
}

// EncodeDLPCMS serializes r/s as `SEQUENCE { INTEGER r, INTEGER s }`,
// the Dss-Sig-Value form RFC 3279 / CMS signatures use.
func EncodeDLPCMS(scratch []byte) []byte {
	r, s := scratchToRS(scratch)
	inner := wire.NewWriter()
	inner.WriteBigInteger(r)
	inner.WriteBigInteger(s)
	out := wire.NewWriter()
	out.WriteSequenceHeader(inner.Len())
	out.Write(inner.Bytes())
	return out.Bytes()
}

// DecodeDLPCMS is the inverse of EncodeDLPCMS, returning the 40-byte
// scratch form cryptoctx.DSAContext expects.
func DecodeDLPCMS(buf []byte) ([]byte, error) {
	c := wire.NewCursor(buf)
	length := c.ReadSequence()
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	end := c.Pos() + length
	r := c.ReadBigInteger()
	s := c.ReadBigInteger()
	if !c.Ok() || c.Pos() != end {
		return nil, ErrBadData
	}
	return rsToScratch(r, s), nil
}

// SignDLP signs digest through ctx and re-encodes the result in the
// wire shape format requires.
func SignDLP(ctx *cryptoctx.DSAContext, digest []byte, format cryptoctx.DLPFormat) ([]byte, error) {
	scratch, err := ctx.Sign(cryptoctx.SignParams{Hash: digest, Format: format})
	if err != nil {
		return nil, err
	}
	switch format {
	case cryptoctx.DLPFormatSSH:
		return EncodeDLPSSH(scratch), nil
	case cryptoctx.DLPFormatCMS:
		return EncodeDLPCMS(scratch), nil
	default:
		w := wire.NewWriter()
		EncodeDLPPGP(w, scratch)
		return w.Bytes(), nil
	}
}

// VerifyDLP re-decodes a wire-format DLP signature to scratch form and
// verifies it through ctx.
func VerifyDLP(ctx *cryptoctx.DSAContext, digest, sig []byte, format cryptoctx.DLPFormat) error {
	var scratch []byte
	var err error
	switch format {
	case cryptoctx.DLPFormatSSH:
		scratch, err = DecodeDLPSSH(sig)
	case cryptoctx.DLPFormatCMS:
		scratch, err = DecodeDLPCMS(sig)
	default:
		scratch, err = DecodeDLPPGP(wire.NewCursor(sig))
	}
	if err != nil {
		return err
	}
	return ctx.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: scratch, Format: format})
}
