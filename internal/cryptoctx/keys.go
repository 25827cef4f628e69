package cryptoctx

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/dsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"hash"
	"math/big"

	"golang.org/x/crypto/ed25519"

	"github.com/cryptwire/engine/internal/algo"
)

// ErrUnsupported is returned by operations a concrete context kind
// doesn't implement (e.g. Encrypt on a signature-only key).
var ErrUnsupported = errors.New("cryptoctx: operation not supported by this context")

// HashContext wraps a running hash.Hash as a HashCtx, implementing the
// hash(empty)-finalizes convention of spec.md §4.C.
type HashContext struct {
	handle    ContextHandle
	attrs     Attrs
	h         hash.Hash
	finalized bool
}

// NewHashContext starts a new hash context over algo.
func NewHashContext(newHash func() hash.Hash, algoID int) *HashContext {
	hc := &HashContext{handle: NewContextHandle(), h: newHash()}
	hc.attrs.AlgoID = algoID
	return hc
}

func (h *HashContext) Handle() ContextHandle { return h.handle }
func (h *HashContext) Attrs() *Attrs         { return &h.attrs }

// Hash feeds buf into the running hash. Passing a zero-length (but
// non-nil-semantics don't matter here) buf finalizes: the digest
// becomes available via Attrs().HashValue and further calls are
// rejected, matching spec.md §4.C.
func (h *HashContext) Hash(buf []byte) error {
	if h.finalized {
		return errors.New("cryptoctx: hash already finalized")
	}
	if len(buf) == 0 {
		h.attrs.HashValue = h.h.Sum(nil)
		h.finalized = true
		return nil
	}
	h.h.Write(buf)
	return nil
}

func (h *HashContext) Finalized() bool { return h.finalized }

// RSAContext wraps an RSA key pair (either half may be nil) as a
// KeyCtx, backing PKCS#1 v1.5 wrap/unwrap and raw/X.509/CMS/cryptlib/
// SSH signature formats.
type RSAContext struct {
	handle ContextHandle
	attrs  Attrs
	Pub    *rsa.PublicKey
	Priv   *rsa.PrivateKey
}

func NewRSAContext(pub *rsa.PublicKey, priv *rsa.PrivateKey) *RSAContext {
	c := &RSAContext{handle: NewContextHandle(), Pub: pub, Priv: priv}
	if pub == nil && priv != nil {
		pub = &priv.PublicKey
	}
	if pub != nil {
		c.attrs.KeySize = (pub.N.BitLen() + 7) / 8
	}
	return c
}

func (c *RSAContext) Handle() ContextHandle { return c.handle }
func (c *RSAContext) Attrs() *Attrs         { return &c.attrs }

// Encrypt performs raw RSA public-key encryption of a pre-padded
// block (the PKCS#1 padding itself lives in internal/kdf, per spec.md
// §4.D — contexts only run the primitive).
func (c *RSAContext) Encrypt(buf []byte) ([]byte, error) {
	if c.Pub == nil {
		return nil, ErrUnsupported
	}
	m := new(big.Int).SetBytes(buf)
	e := big.NewInt(int64(c.Pub.E))
	out := new(big.Int).Exp(m, e, c.Pub.N)
	return leftPad(out.Bytes(), c.attrs.KeySize), nil
}

// Decrypt performs raw RSA private-key decryption (no padding check;
// internal/kdf.UnwrapPKCS1 validates the result).
func (c *RSAContext) Decrypt(buf []byte) ([]byte, error) {
	if c.Priv == nil {
		return nil, ErrUnsupported
	}
	m := new(big.Int).SetBytes(buf)
	out := new(big.Int).Exp(m, c.Priv.D, c.Priv.N)
	return leftPad(out.Bytes(), c.attrs.KeySize), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// Sign produces a raw PKCS#1 v1.5 RSA signature over an already
// DigestInfo-or-raw-padded block supplied in params.Hash; callers in
// internal/sig build the DigestInfo/padding and pass the padded block
// through params.Hash so the context stays a thin primitive.
func (c *RSAContext) Sign(params SignParams) ([]byte, error) {
	if c.Priv == nil {
		return nil, ErrUnsupported
	}
	m := new(big.Int).SetBytes(params.Hash)
	out := new(big.Int).Exp(m, c.Priv.D, c.Priv.N)
	return leftPad(out.Bytes(), c.attrs.KeySize), nil
}

func (c *RSAContext) Verify(params VerifyParams) error {
	if c.Pub == nil {
		return ErrUnsupported
	}
	s := new(big.Int).SetBytes(params.Signature)
	e := big.NewInt(int64(c.Pub.E))
	out := new(big.Int).Exp(s, e, c.Pub.N)
	got := leftPad(out.Bytes(), c.attrs.KeySize)
	want := leftPad(params.Hash, c.attrs.KeySize)
	if !constantTimeEqual(got, want) {
		return ErrCompareFailed
	}
	return nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// DSAContext wraps a DSA key pair, backing the DLP signature family
// (spec.md §4.F "DLP specialisation"). Hash input must be exactly 20
// bytes (SHA-1), enforced by internal/sig before calling Sign/Verify.
type DSAContext struct {
	handle ContextHandle
	attrs  Attrs
	Pub    *dsa.PublicKey
	Priv   *dsa.PrivateKey
}

func NewDSAContext(pub *dsa.PublicKey, priv *dsa.PrivateKey) *DSAContext {
	return &DSAContext{handle: NewContextHandle(), Pub: pub, Priv: priv}
}

func (c *DSAContext) Handle() ContextHandle { return c.handle }
func (c *DSAContext) Attrs() *Attrs         { return &c.attrs }

func (c *DSAContext) Encrypt(buf []byte) ([]byte, error) { return nil, ErrUnsupported }
func (c *DSAContext) Decrypt(buf []byte) ([]byte, error) { return nil, ErrUnsupported }

// DSASignature is the (r, s) pair a DLP sign produces; internal/sig
// serializes it per-format (PGP MPI pair, SSH fixed 40-byte form, or
// CMS SEQUENCE { INTEGER r, INTEGER s }).
type DSASignature struct {
	R, S *big.Int
}

func (c *DSAContext) Sign(params SignParams) ([]byte, error) {
	if c.Priv == nil {
		return nil, ErrUnsupported
	}
	if len(params.Hash) != sha1.Size {
		return nil, errors.New("cryptoctx: DSA requires a 20-byte hash")
	}
	r, s, err := dsa.Sign(rand.Reader, c.Priv, params.Hash)
	if err != nil {
		return nil, err
	}
	return encodeDSASig(DSASignature{R: r, S: s}), nil
}

func (c *DSAContext) Verify(params VerifyParams) error {
	if c.Pub == nil {
		return ErrUnsupported
	}
	if len(params.Hash) != sha1.Size {
		return errors.New("cryptoctx: DSA requires a 20-byte hash")
	}
	sig, err := decodeDSASig(params.Signature)
	if err != nil {
		return err
	}
	if !dsa.Verify(c.Pub, params.Hash, sig.R, sig.S) {
		return ErrCompareFailed
	}
	return nil
}

func encodeDSASig(s DSASignature) []byte {
	// Internal scratch form: two fixed 20-byte big-endian halves; the
	// per-format codecs in internal/sig re-wrap this for the wire.
	out := make([]byte, 40)
	rb := s.R.Bytes()
	sb := s.S.Bytes()
	copy(out[20-len(rb):20], rb)
	copy(out[40-len(sb):40], sb)
	return out
}

func decodeDSASig(b []byte) (DSASignature, error) {
	if len(b) != 40 {
		return DSASignature{}, errors.New("cryptoctx: malformed DSA signature")
	}
	return DSASignature{
		R: new(big.Int).SetBytes(b[:20]),
		S: new(big.Int).SetBytes(b[20:]),
	}, nil
}

// Ed25519Context backs the teacher's EdDSA signing path, kept for PGP
// v4 signatures over Ed25519 keys as produced by the teacher's
// SignKey.
type Ed25519Context struct {
	handle ContextHandle
	attrs  Attrs
	Pub    ed25519.PublicKey
	Priv   ed25519.PrivateKey
}

func NewEd25519Context(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Ed25519Context {
	return &Ed25519Context{handle: NewContextHandle(), Pub: pub, Priv: priv}
}

func (c *Ed25519Context) Handle() ContextHandle { return c.handle }
func (c *Ed25519Context) Attrs() *Attrs         { return &c.attrs }

func (c *Ed25519Context) Encrypt(buf []byte) ([]byte, error) { return nil, ErrUnsupported }
func (c *Ed25519Context) Decrypt(buf []byte) ([]byte, error) { return nil, ErrUnsupported }

func (c *Ed25519Context) Sign(params SignParams) ([]byte, error) {
	if c.Priv == nil {
		return nil, ErrUnsupported
	}
	return ed25519.Sign(c.Priv, params.Hash), nil
}

func (c *Ed25519Context) Verify(params VerifyParams) error {
	if c.Pub == nil {
		return ErrUnsupported
	}
	if !ed25519.Verify(c.Pub, params.Hash, params.Signature) {
		return ErrCompareFailed
	}
	return nil
}

// ConventionalContext wraps a symmetric block cipher key — AES for
// CMS double-CBC key wrap (internal/kdf), or CAST5 for PGP SKE, whose
// S2K result is historically a CAST5 session key — selected by the
// context's AlgoID.
type ConventionalContext struct {
	handle ContextHandle
	attrs  Attrs
	key    []byte
}

// newBlockCipher picks the block cipher implementation matching the
// context's native algorithm id.
func (c *ConventionalContext) newBlockCipher() (cipher.Block, error) {
	if algo.Algo(c.attrs.AlgoID) == algo.AlgoCAST5 {
		return algo.NewCAST5Cipher(c.key)
	}
	return aes.NewCipher(c.key)
}

func NewConventionalContext(key []byte, algoID int) *ConventionalContext {
	c := &ConventionalContext{handle: NewContextHandle(), key: append([]byte(nil), key...)}
	c.attrs.AlgoID = algoID
	c.attrs.KeySize = len(key)
	c.attrs.Key = c.key
	return c
}

func (c *ConventionalContext) Handle() ContextHandle { return c.handle }
func (c *ConventionalContext) Attrs() *Attrs         { return &c.attrs }

// CBCEncrypt and CBCDecrypt are the primitive operations the
// double-CBC wrap in internal/kdf composes; they require the IV to
// already be set via Attrs().SetIV/GenIV (guarded by the Locker).
func (c *ConventionalContext) CBCEncrypt(plaintext []byte) ([]byte, error) {
	block, err := c.newBlockCipher()
	if err != nil {
		return nil, err
	}
	iv := c.attrs.IV()
	if len(iv) != block.BlockSize() {
		return nil, errors.New("cryptoctx: IV size mismatch")
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

func (c *ConventionalContext) CBCDecryptWithIV(ciphertext, iv []byte) ([]byte, error) {
	block, err := c.newBlockCipher()
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.New("cryptoctx: IV size mismatch")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func (c *ConventionalContext) Encrypt(buf []byte) ([]byte, error) { return c.CBCEncrypt(buf) }
func (c *ConventionalContext) Decrypt(buf []byte) ([]byte, error) {
	return c.CBCDecryptWithIV(buf, c.attrs.IV())
}
func (c *ConventionalContext) Sign(SignParams) ([]byte, error)     { return nil, ErrUnsupported }
func (c *ConventionalContext) Verify(VerifyParams) error           { return ErrUnsupported }

// CertContext wraps an x509.Certificate (optionally the leaf of a
// chain) as a CertCtx, implementing the identity-comparison modes of
// spec.md §4.C and the cert-chain leaf selection of §4.F.
type CertContext struct {
	handle ContextHandle
	attrs  Attrs
	Chain  []*x509.Certificate // Chain[0] is the current/leaf cert
	Key    KeyCtx              // signing/verification primitive for Chain[0]
}

func NewCertContext(chain []*x509.Certificate, key KeyCtx) *CertContext {
	return &CertContext{handle: NewContextHandle(), Chain: chain, Key: key}
}

func (c *CertContext) Handle() ContextHandle { return c.handle }
func (c *CertContext) Attrs() *Attrs         { return &c.attrs }

func (c *CertContext) Encrypt(buf []byte) ([]byte, error) { return c.Key.Encrypt(buf) }
func (c *CertContext) Decrypt(buf []byte) ([]byte, error) { return c.Key.Decrypt(buf) }
func (c *CertContext) Sign(p SignParams) ([]byte, error)  { return c.Key.Sign(p) }
func (c *CertContext) Verify(p VerifyParams) error        { return c.Key.Verify(p) }

func (c *CertContext) IsChain() bool { return len(c.Chain) > 1 }

// SelectLeaf repositions the chain cursor to the first (leaf)
// certificate. Callers must hold the lock for the duration of the
// operation that follows (spec.md §4.F).
func (c *CertContext) SelectLeaf() error {
	if len(c.Chain) == 0 {
		return errors.New("cryptoctx: empty certificate chain")
	}
	return nil
}

func (c *CertContext) Leaf() *x509.Certificate { return c.Chain[0] }

// Compare matches the leaf certificate's identity against want under
// the given mode.
func (c *CertContext) Compare(mode CompareMode, want []byte) error {
	leaf := c.Leaf()
	var got []byte
	switch mode {
	case CompareKeyID, CompareKeyIDPGP, CompareKeyIDOpenPGP:
		got = c.attrs.KeyIDNative
	case CompareIssuerAndSerial:
		got = c.attrs.IssuerAndSerial
	case CompareHash:
		sum := sha1.Sum(leaf.Raw)
		got = sum[:]
	}
	if !constantTimeEqual(got, want) {
		return ErrCompareFailed
	}
	return nil
}

// HashAlgoFromCrypto maps a crypto.Hash to this module's hash size,
// used when bridging x509's crypto.Hash-based SignatureAlgorithm
// space into the registry.
func HashAlgoFromCrypto(h crypto.Hash) int { return int(h) }
