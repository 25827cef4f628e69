package sig

import (
	"github.com/cryptwire/engine/internal/wire"
)

// SSH signature blob: `uint32 total ‖ ssh_string(algoName) ‖ uint32
// sigLen ‖ sigBytes` (spec.md §4.F). DSA signatures are always 40
// bytes (EncodeDLPSSH); RSA signatures range [56, MAX_PKCSIZE].
const (
	SSHMinRSASigLen = 56
	SSHMaxSigLen    = 512 // MAX_PKCSIZE, spec.md §8

	SSHAlgoRSA = "ssh-rsa"
	SSHAlgoDSA = "ssh-dss"
)

// WriteSSHSignature appends the full `uint32 total ‖ ...` blob.
func WriteSSHSignature(algoName string, sigBytes []byte) []byte {
	body := wire.NewWriter()
	writeSSHString(body, []byte(algoName))
	writeSSHString(body, sigBytes)
	w := wire.NewWriter()
	w.WriteUint32(uint32(body.Len()))
	w.Write(body.Bytes())
	return w.Bytes()
}

// ReadSSHSignature parses the blob and validates the per-algorithm
// length invariant (spec.md §4.F).
func ReadSSHSignature(buf []byte) (algoName string, sigBytes []byte, err error) {
	c := wire.NewCursor(buf)
	total := c.Uint32()
	if !c.Ok() {
		return "", nil, classifyErr(c)
	}
	bodyStart := c.Pos()
	name := readSSHString(c)
	sig := readSSHString(c)
	if !c.Ok() {
		return "", nil, classifyErr(c)
	}
	if c.Pos()-bodyStart != int(total) {
		return "", nil, ErrBadData
	}
	switch string(name) {
	case SSHAlgoDSA:
		if len(sig) != 40 {
			return "", nil, ErrBadData
		}
	case SSHAlgoRSA:
		if len(sig) < SSHMinRSASigLen || len(sig) > SSHMaxSigLen {
			return "", nil, ErrBadData
		}
	default:
		return "", nil, ErrNotAvail
	}
	return string(name), sig, nil
}

func writeSSHString(w *wire.Writer, b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.Write(b)
}

func readSSHString(c *wire.Cursor) []byte {
	n := c.Uint32()
	if !c.Ok() {
		return nil
	}
	return c.ReadExact(int(n))
}

// SSL signatures are a raw `uint16 len ‖ bytes` blob with no algorithm
// identifier (spec.md §4.F) — the enclosing protocol (SSL/TLS
// handshake) already knows the signing algorithm from cipher suite
// negotiation.
func WriteSSLSignature(sigBytes []byte) []byte {
	w := wire.NewWriter()
	w.WriteUint16(uint16(len(sigBytes)))
	w.Write(sigBytes)
	return w.Bytes()
}

func ReadSSLSignature(buf []byte) ([]byte, error) {
	c := wire.NewCursor(buf)
	n := c.Uint16()
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	sig := c.ReadExact(int(n))
	if !c.Ok() {
		return nil, classifyErr(c)
	}
	return sig, nil
}
