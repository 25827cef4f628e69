// Package zeroize provides a fixed-capacity byte buffer that is wiped
// on every exit path, modeling the source's stack-allocated
// CRYPT_MAX_PKCSIZE+128 secret buffers and their zeroise() calls
// (spec.md §9 Design Notes, "Manual-memory / stack buffers for
// secrets"). The teacher's SignKey.Load zeroes nothing explicitly
// (Go's GC makes that less critical) but this module's contexts carry
// unwrapped session keys and RSA plaintexts, which spec.md §5
// requires zeroed "on every exit path, success or failure".
package zeroize

// MaxSize bounds the buffer, mirroring CRYPT_MAX_PKCSIZE + 128 from
// the source (4096-bit RSA modulus plus slack).
const MaxSize = 512 + 128

// Buffer is a fixed-capacity secret buffer. Zero value is empty and
// ready to use.
type Buffer struct {
	data [MaxSize]byte
	n    int
}

// Set copies v into the buffer, which must not exceed MaxSize.
func (b *Buffer) Set(v []byte) bool {
	if len(v) > MaxSize {
		return false
	}
	b.n = copy(b.data[:], v)
	return true
}

// Bytes returns the live portion of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Len returns the number of live bytes.
func (b *Buffer) Len() int { return b.n }

// Zero wipes the buffer. Safe to call multiple times, and on an
// already-empty buffer.
func (b *Buffer) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.n = 0
}

// With runs fn with a scratch Buffer that is always zeroed on return,
// whether fn returns an error or not — the scoped-guard idiom spec.md
// §5 requires for sensitive buffers on every exit path.
func With(fn func(b *Buffer) error) error {
	var b Buffer
	defer b.Zero()
	return fn(&b)
}

// Wipe zeroes an arbitrary slice in place (used for caller-owned
// buffers that aren't routed through a Buffer, e.g. a plaintext
// session key about to be handed to a freshly created context).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
