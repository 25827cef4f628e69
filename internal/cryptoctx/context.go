// Package cryptoctx defines the context message surface of spec.md
// §4.C: the abstract handle a key, hash, or cipher is addressed
// through. The source speaks to contexts via a single
// krnlSendMessage(handle, opcode, params) dispatch; this package
// replaces that with a capability-set of small interfaces per §9
// Design Notes ("Message-dispatch polymorphism").
package cryptoctx

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrPermission is returned when an IV-touching attribute is accessed
// on a locked context, or a read-only keyset attribute is written.
var ErrPermission = errors.New("cryptoctx: permission denied (context locked)")

// ContextHandle is an opaque per-process identifier for a context,
// standing in for the source's integer object handles without
// exposing a kernel/object table (spec.md §6: the kernel is an
// external collaborator, out of scope).
type ContextHandle uuid.UUID

// NewContextHandle allocates a fresh opaque handle.
func NewContextHandle() ContextHandle {
	return ContextHandle(uuid.New())
}

func (h ContextHandle) String() string { return uuid.UUID(h).String() }

// CompareMode selects what Cert.Compare matches against (spec.md
// §4.C).
type CompareMode int

const (
	CompareKeyID CompareMode = iota
	CompareKeyIDPGP
	CompareKeyIDOpenPGP
	CompareIssuerAndSerial
	CompareHash
)

// ErrCompareFailed is the generic comparison-mismatch error the codec
// layer translates to WrongKey (spec.md §7).
var ErrCompareFailed = errors.New("cryptoctx: compare failed")

// Locker is the scoped IV-mutation lock every KeyCtx embeds. While
// locked, IV-mutating setters return ErrPermission; other attributes
// stay accessible (spec.md §4.C).
type Locker struct {
	mu     sync.Mutex
	locked bool
}

// LockGuard releases its Locker exactly once, on Close. Acquire via
// Locker.Lock and always `defer guard.Release()` (spec.md §9 "Scoped
// locking (RAII/defer)").
type LockGuard struct {
	l        *Locker
	released bool
}

// Lock acquires the IV-mutation lock, blocking until any concurrent
// holder releases it (spec.md §5: "the lock is a mutual-exclusion
// token"). Returns a guard whose Release must run on every exit path.
func (l *Locker) Lock() *LockGuard {
	l.mu.Lock()
	l.locked = true
	return &LockGuard{l: l}
}

// Release unlocks. Safe to call more than once; only the first call
// has an effect, so `defer guard.Release()` composes with an early
// explicit Release on the success path.
func (g *LockGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.l.locked = false
	g.l.mu.Unlock()
}

// Locked reports whether the lock is currently held, for setters that
// need to reject IV mutation without blocking (spec.md §4.C: "Set/get
// on a locked context returns Permission for any IV-touching
// attribute").
func (l *Locker) Locked() bool { return l.locked }

// Attrs is the typed get/set surface of spec.md §4.C, covering the
// attributes every context kind exposes. Concrete KeyCtx
// implementations embed an Attrs and guard IV fields with their
// Locker.
type Attrs struct {
	Locker

	AlgoClass int
	AlgoID    int
	Mode      int
	KeySize   int

	iv       []byte
	ivLocked bool

	HashValue        []byte
	KeySetupIters    int
	KeySetupSalt     []byte
	KeySetupAlgo     int
	Key              []byte
	Label            string
	KeyIDNative      []byte
	KeyIDPGPv3       []byte
	KeyIDOpenPGP     []byte
	IssuerAndSerial  []byte
	CertificateType  int
}

// IV returns the current IV bytes.
func (a *Attrs) IV() []byte { return a.iv }

// SetIV sets the IV. Returns ErrPermission if the context is locked,
// matching spec.md §4.C's rule that IV mutation is forbidden while
// locked.
func (a *Attrs) SetIV(iv []byte) error {
	if a.Locked() {
		return ErrPermission
	}
	a.iv = append([]byte(nil), iv...)
	return nil
}

// GenIV fills a freshly allocated IV of the given size with random
// bytes and installs it, honoring the lock the same as SetIV. This is
// the side effect export_mech triggers per spec.md §4.C: "export_mech
// on an unwrap context generates a fresh IV iff the mode requires
// one".
func (a *Attrs) GenIV(size int) error {
	iv := make([]byte, size)
	if _, err := rand.Read(iv); err != nil {
		return err
	}
	return a.SetIV(iv)
}

// KeyCtx is the abstract handle to a key or cipher context (spec.md
// §4.C / §9's KeyCtx trait).
type KeyCtx interface {
	Handle() ContextHandle
	Attrs() *Attrs
	Encrypt(buf []byte) ([]byte, error)
	Decrypt(buf []byte) ([]byte, error)
	Sign(params SignParams) ([]byte, error)
	Verify(params VerifyParams) error
}

// HashCtx is the abstract handle to a running hash computation.
// Hash(nil) finalizes (spec.md §4.C: "hash(empty) finalises").
type HashCtx interface {
	Handle() ContextHandle
	Attrs() *Attrs
	Hash(buf []byte) error
	Finalized() bool
}

// MacCtx is the MAC-context analogue of HashCtx, kept distinct because
// spec.md §4.C lists MAC as its own message-recipient family even
// though its wire shape mirrors HashCtx.
type MacCtx interface {
	HashCtx
	Key() []byte
}

// CertCtx extends KeyCtx with certificate identity comparison and
// chain navigation, used by the signature/key-exchange codecs'
// cert-chain leaf selection (spec.md §4.F "Certificate-chain
// selection").
type CertCtx interface {
	KeyCtx
	Compare(mode CompareMode, want []byte) error
	IsChain() bool
	SelectLeaf() error
}

// SignParams and VerifyParams are the MechanismSignInfo parameter
// blocks of spec.md §3, carrying the DLP format hint of §4.F's "DLP
// specialisation".
type DLPFormat int

const (
	DLPFormatNone DLPFormat = iota
	DLPFormatPGP
	DLPFormatSSH
	DLPFormatCMS
)

type SignParams struct {
	Hash   []byte
	Format DLPFormat
}

type VerifyParams struct {
	Hash      []byte
	Signature []byte
	Format    DLPFormat
}
