// Package engine implements the top-level orchestrator of spec.md
// §4.H: the four public entry points (ExportKey, ImportKey,
// CreateSignature, CheckSignature) plus QueryObject, each following
// the Idle -> CheckParams -> AcquireLock -> GenerateMaterial ->
// SerialiseOrParse -> ReleaseLock -> Done|Error state machine. This
// package is the only one in the module that is allowed to know about
// every other internal/ package at once; everything below it stays
// format- or concern-scoped.
package engine

import (
	"crypto/sha1"
	"encoding/asn1"
	"errors"

	"github.com/cryptwire/engine/engine/engineerr"
	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/cryptoctx"
	"github.com/cryptwire/engine/internal/kdf"
	"github.com/cryptwire/engine/internal/keyex"
	"github.com/cryptwire/engine/internal/query"
	"github.com/cryptwire/engine/internal/sig"
	"github.com/cryptwire/engine/internal/wire"
	"github.com/cryptwire/engine/internal/zeroize"
)

// Well-known AlgorithmIdentifier OIDs this package needs to stamp on
// CMS/X.509 output. These are the same arcs the teacher's/pack's
// crypto code uses (RFC 3279/8017 rsaEncryption, RFC 3279 id-dsa-
// with-sha1, NIST SHA-1, and the PKCS#5 AES-256-CBC arc for PWRI KEK
// algorithms).
var (
	rsaOID        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	rsaSigOID     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5} // sha1WithRSAEncryption
	dsaSigOID     = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 3}     // id-dsa-with-sha1
	sha1OID       = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	aes128CBCOID  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	aes192CBCOID  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	aes256CBCOID  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

// cmsAESWrapOID picks the AES-CBC KEK AlgorithmIdentifier matching a
// conventional context's key size, for PWRI export.
func cmsAESWrapOID(keySizeBytes int) asn1.ObjectIdentifier {
	switch keySizeBytes {
	case 24:
		return aes192CBCOID
	case 32:
		return aes256CBCOID
	default:
		return aes128CBCOID
	}
}

// KeyexFormat is the export_key/import_key format selector of spec.md
// §3's KeyexKind.
type KeyexFormat int

const (
	KeyexFormatNone KeyexFormat = iota
	KeyexFormatCMS
	KeyexFormatCryptlib
	KeyexFormatPGP
)

// SignatureFormat is the create_signature/check_signature format
// selector of spec.md §3's SignatureKind.
type SignatureFormat int

const (
	SigFormatNone SignatureFormat = iota
	SigFormatRaw
	SigFormatX509
	SigFormatCMS
	SigFormatCryptlib
	SigFormatPGP
	SigFormatSSH
	SigFormatSSL
)

// leafContext resolves a possibly cert-chain-wrapped KeyCtx down to
// the concrete signing/wrapping primitive, performing the lock +
// leaf-selection step of spec.md §4.H step 4 when ctx is a CertCtx.
// The returned release func is always non-nil and safe to call
// unconditionally; callers defer it immediately.
func leafContext(ctx cryptoctx.KeyCtx) (cryptoctx.KeyCtx, func(), error) {
	cc, isChain := ctx.(cryptoctx.CertCtx)
	if !isChain {
		return ctx, func() {}, nil
	}
	guard := cc.Attrs().Lock()
	if err := cc.SelectLeaf(); err != nil {
		guard.Release()
		return nil, func() {}, err
	}
	return cc, guard.Release, nil
}

// ExportKey wraps a session key under wrapCtx in the given format,
// implementing spec.md §6's `export_key`.
//
// sessionKey is the plaintext key material to wrap; it is not
// retained or mutated, but the caller-visible copy this function
// makes internally is zeroed before return (spec.md §5, "sensitive
// buffers ... zeroed on every exit path").
func ExportKey(sessionKey []byte, wrapCtx cryptoctx.KeyCtx, format KeyexFormat) (out []byte, err error) {
	const op = "ExportKey"
	if len(sessionKey) == 0 {
		return nil, engineerr.Arg(op, "sessionKey")
	}
	if format == KeyexFormatNone {
		return nil, engineerr.Arg(op, "format")
	}

	leaf, release, lockErr := leafContext(wrapCtx)
	if lockErr != nil {
		return nil, engineerr.Wrap(op, engineerr.KindPermission, lockErr)
	}
	defer release()

	scratch := make([]byte, len(sessionKey))
	copy(scratch, sessionKey)
	defer zeroize.Wipe(scratch)

	switch k := leaf.(type) {
	case *cryptoctx.ConventionalContext:
		return exportKeyPassword(op, scratch, k, format)
	case *cryptoctx.RSAContext:
		return exportKeyPKC(op, scratch, k, format)
	case *cryptoctx.CertContext:
		rsaCtx, ok := k.Key.(*cryptoctx.RSAContext)
		if !ok {
			return nil, engineerr.New(op, engineerr.KindNotAvail)
		}
		return exportKeyPKC(op, scratch, rsaCtx, format)
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func exportKeyPassword(op string, key []byte, kek *cryptoctx.ConventionalContext, format KeyexFormat) ([]byte, error) {
	switch format {
	case KeyexFormatCMS:
		guard := kek.Attrs().Lock()
		defer guard.Release()
		if err := kek.Attrs().GenIV(16); err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, err)
		}
		wrapped, err := kdf.WrapCMSKey(kek.Attrs().Key, kek.Attrs().IV(), key)
		if err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindOverflow, err)
		}
		return keyex.WriteCMSPwri(keyex.CMSPwri{
			Salt:         kek.Attrs().KeySetupSalt,
			Iterations:   kek.Attrs().KeySetupIters,
			KEKAlgo:      wire.AlgoID{OID: cmsAESWrapOID(kek.Attrs().KeySize)},
			ModernFormat: true,
			EncryptedKey: wrapped,
		}), nil
	case KeyexFormatPGP:
		// PGP SKE with no following PKE packet: the S2K result is used
		// directly as the message key, so export just emits the S2K
		// parameters already recorded on the context (spec.md §4.E);
		// the session key bytes themselves travel out-of-band as the
		// bulk-cipher key, not inside this packet.
		ske := keyex.PGPSke{
			CryptAlgo: algo.Algo(kek.Attrs().AlgoID),
			S2KSpec:   3,
			HashAlgo:  algo.AlgoSHA1,
			Count:     kek.Attrs().KeySetupIters,
		}
		copy(ske.Salt[:], kek.Attrs().KeySetupSalt)
		return keyex.WritePGPSke(nil, ske), nil
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func exportKeyPKC(op string, key []byte, wrapCtx *cryptoctx.RSAContext, format KeyexFormat) ([]byte, error) {
	keySize := wrapCtx.Attrs().KeySize
	switch format {
	case KeyexFormatCMS:
		padded, err := kdf.WrapPKCS1(key, keySize)
		if err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindOverflow, err)
		}
		encKey, err := wrapCtx.Encrypt(padded)
		if err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, err)
		}
		return keyex.WriteCMSKeyTrans(keyex.CMSKeyTrans{
			IssuerAndSerial: wrapCtx.Attrs().IssuerAndSerial,
			KeyAlgo:         wire.AlgoID{OID: rsaOID},
			EncryptedKey:    encKey,
		}), nil
	case KeyexFormatCryptlib:
		padded, err := kdf.WrapPKCS1(key, keySize)
		if err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindOverflow, err)
		}
		encKey, err := wrapCtx.Encrypt(padded)
		if err != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, err)
		}
		return keyex.WriteCryptlibKeyTrans(keyex.CryptlibKeyTrans{
			KeyID:        wrapCtx.Attrs().KeyIDNative,
			KeyAlgo:      wire.AlgoID{OID: rsaOID},
			EncryptedKey: encKey,
		}), nil
	case KeyexFormatPGP:
		sessionAlgoCode, cerr := algo.ToPGP(algo.AlgoAES256, algo.ClassCrypt)
		if cerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindNotAvail, cerr)
		}
		padded, werr := kdf.WrapPKCS1PGP(sessionAlgoCode, key, keySize)
		if werr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindOverflow, werr)
		}
		encKey, eerr := wrapCtx.Encrypt(padded)
		if eerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, eerr)
		}
		mpi := encKey
		pke := keyex.PGPPke{Version: 3, Algo: algo.AlgoRSA, MPIs: [][]byte{mpi}}
		copy(pke.KeyID[:], wrapCtx.Attrs().KeyIDPGPv3)
		return keyex.WritePGPPke(nil, pke), nil
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

// ImportKey unwraps a session key encoded in buf under importCtx,
// implementing spec.md §6's `import_key`. The returned key bytes are
// caller-owned; the caller is responsible for zeroing them once
// consumed (this function cannot know their lifetime, matching §5's
// note that the returned context's lifetime is otherwise undefined).
func ImportKey(buf []byte, importCtx cryptoctx.KeyCtx, format KeyexFormat) (sessionKey []byte, err error) {
	const op = "ImportKey"
	if len(buf) == 0 {
		return nil, engineerr.Arg(op, "buf")
	}

	leaf, release, lockErr := leafContext(importCtx)
	if lockErr != nil {
		return nil, engineerr.Wrap(op, engineerr.KindPermission, lockErr)
	}
	defer release()

	switch k := leaf.(type) {
	case *cryptoctx.ConventionalContext:
		return importKeyPassword(op, buf, k, format)
	case *cryptoctx.RSAContext:
		return importKeyPKC(op, buf, k, format)
	case *cryptoctx.CertContext:
		rsaCtx, ok := k.Key.(*cryptoctx.RSAContext)
		if !ok {
			return nil, engineerr.New(op, engineerr.KindNotAvail)
		}
		return importKeyPKC(op, buf, rsaCtx, format)
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func importKeyPassword(op string, buf []byte, kek *cryptoctx.ConventionalContext, format KeyexFormat) ([]byte, error) {
	switch format {
	case KeyexFormatCMS:
		pwri, rerr := keyex.ReadCMSPwri(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		guard := kek.Attrs().Lock()
		defer guard.Release()
		key, uerr := kdf.UnwrapCMSKey(kek.Attrs().Key, kek.Attrs().IV(), pwri.EncryptedKey)
		if uerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, uerr)
		}
		return key, nil
	case KeyexFormatPGP:
		if _, rerr := keyex.ReadPGPSke(buf); rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		return append([]byte(nil), kek.Attrs().Key...), nil
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func importKeyPKC(op string, buf []byte, importCtx *cryptoctx.RSAContext, format KeyexFormat) ([]byte, error) {
	keySize := importCtx.Attrs().KeySize
	switch format {
	case KeyexFormatCMS:
		kt, rerr := keyex.ReadCMSKeyTrans(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		padded, derr := importCtx.Decrypt(kt.EncryptedKey)
		if derr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, derr)
		}
		key, uerr := kdf.UnwrapPKCS1(padded, kdf.MinKeySizeBytes)
		if uerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, uerr)
		}
		return key, nil
	case KeyexFormatCryptlib:
		kt, rerr := keyex.ReadCryptlibKeyTrans(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		if !compareKeyID(importCtx.Attrs().KeyIDNative, kt.KeyID) {
			return nil, engineerr.New(op, engineerr.KindWrongKey)
		}
		padded, derr := importCtx.Decrypt(kt.EncryptedKey)
		if derr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, derr)
		}
		key, uerr := kdf.UnwrapPKCS1(padded, kdf.MinKeySizeBytes)
		if uerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, uerr)
		}
		return key, nil
	case KeyexFormatPGP:
		pke, rerr := keyex.ReadPGPPke(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		// OpenPGP allows PGP-v2 key ids masquerading as OpenPGP ones:
		// a compare(KeyIdOpenPGP) failure gets one retry against the
		// PGP-v3 key-id flavour before WrongKey is declared.
		if !compareKeyID(importCtx.Attrs().KeyIDOpenPGP, pke.KeyID[:]) &&
			!compareKeyID(importCtx.Attrs().KeyIDPGPv3, pke.KeyID[:]) {
			return nil, engineerr.New(op, engineerr.KindWrongKey)
		}
		padded, derr := importCtx.Decrypt(pke.MPIs[0])
		if derr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindFailed, derr)
		}
		_, key, uerr := kdf.UnwrapPKCS1PGP(padded, keySize)
		if uerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, uerr)
		}
		return key, nil
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

// SignExtra carries the optional per-format extras create_signature
// accepts: CMS/cryptlib signed/unsigned attributes, PGP subpackets.
// A zero-value SignExtra is a plain signature with no attributes.
type SignExtra struct {
	CMSSignedAttrs   []sig.CMSAttribute
	CMSUnsignedAttrs []sig.CMSAttribute
	PGPHashedSubpks  []sig.PGPSubpacket
	PGPUnhashedSubpks []sig.PGPSubpacket
	PGPSigType       byte
	CertIssuerSerial []byte // CMS: IssuerAndSerialNumber, filled from the signing cert when signCtx is a CertCtx
}

// CreateSignature signs hashCtx's finalized digest with signCtx and
// serializes the result in the given format, implementing spec.md
// §6's `create_signature`. hashCtx must already be finalized (spec.md
// §5's ordering guarantee: "hash finalisation must occur after the
// PGP trailer bytes are appended" is the PGP codec's job — the
// orchestrator just requires a finalized digest at this boundary).
func CreateSignature(signCtx cryptoctx.KeyCtx, hashCtx cryptoctx.HashCtx, format SignatureFormat, extra *SignExtra) (out []byte, err error) {
	const op = "CreateSignature"
	if !hashCtx.Finalized() {
		return nil, engineerr.Wrap(op, engineerr.KindComplete, errCreateSigHashNotFinal)
	}
	digest := hashCtx.Attrs().HashValue
	if len(digest) == 0 {
		return nil, engineerr.Arg(op, "hashCtx")
	}
	if extra == nil {
		extra = &SignExtra{}
	}

	leaf, release, lockErr := leafContext(signCtx)
	if lockErr != nil {
		return nil, engineerr.Wrap(op, engineerr.KindPermission, lockErr)
	}
	defer release()

	if cc, ok := leaf.(*cryptoctx.CertContext); ok {
		if extra.CertIssuerSerial == nil {
			extra.CertIssuerSerial = cc.Attrs().IssuerAndSerial
		}
		leaf = cc.Key
	}

	switch format {
	case SigFormatRaw:
		s, serr := leaf.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		return sig.WriteRaw(s), nil
	case SigFormatX509:
		s, serr := leaf.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		return sig.WriteX509(sigAlgoID(leaf, hashCtx), s), nil
	case SigFormatSSL:
		s, serr := leaf.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		return sig.WriteSSLSignature(s), nil
	case SigFormatSSH:
		return createSSHSignature(op, leaf, digest)
	case SigFormatCMS:
		return createCMSSignature(op, leaf, digest, extra, false)
	case SigFormatCryptlib:
		return createCMSSignature(op, leaf, digest, extra, true)
	case SigFormatPGP:
		return createPGPSignature(op, leaf, hashCtx, digest, extra)
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

var errCreateSigHashNotFinal = errors.New("engine: hash context not finalized")

func createSSHSignature(op string, leaf cryptoctx.KeyCtx, digest []byte) ([]byte, error) {
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		s, serr := sig.SignDLP(k, digest, cryptoctx.DLPFormatSSH)
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		return sig.WriteSSHSignature(sig.SSHAlgoDSA, s), nil
	case *cryptoctx.RSAContext:
		s, serr := k.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		return sig.WriteSSHSignature(sig.SSHAlgoRSA, s), nil
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func createCMSSignature(op string, leaf cryptoctx.KeyCtx, digest []byte, extra *SignExtra, cryptlib bool) ([]byte, error) {
	attrs := extra.CMSSignedAttrs
	hashInput := digest
	if len(attrs) > 0 {
		hashInput = sig.SignedAttrsHashBytes(attrs)
	}
	var sigBytes []byte
	var sigAlgo wire.AlgoID
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		s, serr := sig.SignDLP(k, sha1Of(hashInput), cryptoctx.DLPFormatCMS)
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		sigBytes = s
		sigAlgo = wire.AlgoID{OID: dsaSigOID}
	case *cryptoctx.RSAContext:
		s, serr := k.Sign(cryptoctx.SignParams{Hash: hashInput})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		sigBytes = s
		sigAlgo = wire.AlgoID{OID: rsaOID}
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}

	if cryptlib {
		return sig.WriteCMSCryptlib(sig.CMSCryptlib{
			KeyID:         leaf.Attrs().KeyIDNative,
			DigestAlgo:    wire.AlgoID{OID: sha1OID},
			SignedAttrs:   attrs,
			SigAlgo:       sigAlgo,
			Signature:     sigBytes,
			UnsignedAttrs: extra.CMSUnsignedAttrs,
		}), nil
	}
	return sig.WriteCMSSignerInfo(sig.CMSSignerInfo{
		IssuerAndSerial: extra.CertIssuerSerial,
		DigestAlgo:      wire.AlgoID{OID: sha1OID},
		SignedAttrs:     attrs,
		SigAlgo:         sigAlgo,
		Signature:       sigBytes,
		UnsignedAttrs:   extra.CMSUnsignedAttrs,
	}), nil
}

func createPGPSignature(op string, leaf cryptoctx.KeyCtx, hashCtx cryptoctx.HashCtx, digest []byte, extra *SignExtra) ([]byte, error) {
	s := sig.PGPSignature{
		SigType:          extra.PGPSigType,
		HashAlgo:         algo.AlgoSHA1,
		HashedSubpackets: extra.PGPHashedSubpks,
		UnhashedSubpackets: extra.PGPUnhashedSubpks,
	}
	var sigBytes []byte
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		s.PubKeyAlgo = algo.AlgoDSA
		scratch, serr := k.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		s.MPIs = [][]byte{scratch[:20], scratch[20:]}
	case *cryptoctx.Ed25519Context:
		s.PubKeyAlgo = algo.AlgoEd25519
		sigBytes, _ = k.Sign(cryptoctx.SignParams{Hash: digest})
		s.MPIs = [][]byte{sigBytes[:32], sigBytes[32:]}
	case *cryptoctx.RSAContext:
		s.PubKeyAlgo = algo.AlgoRSA
		raw, serr := k.Sign(cryptoctx.SignParams{Hash: digest})
		if serr != nil {
			return nil, translateSignErr(op, serr)
		}
		s.MPIs = [][]byte{raw}
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
	if len(digest) >= 2 {
		copy(s.HashPreview[:], digest[:2])
	}
	return sig.WritePGPSignature(nil, s), nil
}

func translateSignErr(op string, err error) error {
	if err == cryptoctx.ErrCompareFailed {
		return engineerr.FromCompareFailed(op, err)
	}
	if err == cryptoctx.ErrUnsupported {
		return engineerr.New(op, engineerr.KindNotAvail)
	}
	return engineerr.Wrap(op, engineerr.KindFailed, err)
}

// CheckExtra returns the attribute set recovered from the signature
// on a successful CMS verification (spec.md §5's ordering guarantee:
// the embedded messageDigest comparison succeeds before the caller
// receives this).
type CheckExtra struct {
	CMSSignedAttrs   []sig.CMSAttribute
	CMSUnsignedAttrs []sig.CMSAttribute
}

// CheckSignature verifies buf against hashCtx's digest under
// sigCheckCtx, implementing spec.md §6's `check_signature`.
func CheckSignature(buf []byte, sigCheckCtx cryptoctx.KeyCtx, hashCtx cryptoctx.HashCtx, format SignatureFormat) (*CheckExtra, error) {
	const op = "CheckSignature"
	if len(buf) == 0 {
		return nil, engineerr.Arg(op, "buf")
	}
	if !hashCtx.Finalized() {
		return nil, engineerr.Wrap(op, engineerr.KindComplete, errCreateSigHashNotFinal)
	}
	digest := hashCtx.Attrs().HashValue

	leaf, release, lockErr := leafContext(sigCheckCtx)
	if lockErr != nil {
		return nil, engineerr.Wrap(op, engineerr.KindPermission, lockErr)
	}
	defer release()
	if cc, ok := leaf.(*cryptoctx.CertContext); ok {
		leaf = cc.Key
	}

	switch format {
	case SigFormatRaw:
		s, rerr := sig.ReadRaw(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		return nil, verifyErr(op, leaf.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: s}))
	case SigFormatX509:
		x, rerr := sig.ReadX509(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		return nil, verifyErr(op, leaf.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: x.Sig}))
	case SigFormatSSL:
		s, rerr := sig.ReadSSLSignature(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		return nil, verifyErr(op, leaf.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: s}))
	case SigFormatSSH:
		return nil, checkSSHSignature(op, leaf, digest, buf)
	case SigFormatCMS:
		return checkCMSSignature(op, leaf, digest, buf, false)
	case SigFormatCryptlib:
		return checkCMSSignature(op, leaf, digest, buf, true)
	case SigFormatPGP:
		return nil, checkPGPSignature(op, leaf, digest, buf)
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
}

func checkSSHSignature(op string, leaf cryptoctx.KeyCtx, digest, buf []byte) error {
	name, s, rerr := sig.ReadSSHSignature(buf)
	if rerr != nil {
		return engineerr.Wrap(op, engineerr.KindBadData, rerr)
	}
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		if name != sig.SSHAlgoDSA {
			return engineerr.New(op, engineerr.KindWrongKey)
		}
		return verifyErr(op, sig.VerifyDLP(k, digest, s, cryptoctx.DLPFormatSSH))
	case *cryptoctx.RSAContext:
		if name != sig.SSHAlgoRSA {
			return engineerr.New(op, engineerr.KindWrongKey)
		}
		return verifyErr(op, k.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: s}))
	default:
		return engineerr.New(op, engineerr.KindNotAvail)
	}
}

func checkCMSSignature(op string, leaf cryptoctx.KeyCtx, digest, buf []byte, cryptlib bool) (*CheckExtra, error) {
	var signedAttrs, unsignedAttrs []sig.CMSAttribute
	var sigBytes []byte
	if cryptlib {
		info, rerr := sig.ReadCMSCryptlib(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		signedAttrs, unsignedAttrs, sigBytes = info.SignedAttrs, info.UnsignedAttrs, info.Signature
	} else {
		info, rerr := sig.ReadCMSSignerInfo(buf)
		if rerr != nil {
			return nil, engineerr.Wrap(op, engineerr.KindBadData, rerr)
		}
		signedAttrs, unsignedAttrs, sigBytes = info.SignedAttrs, info.UnsignedAttrs, info.Signature
		if len(signedAttrs) > 0 {
			// spec.md §5: messageDigest must be compared *before* the
			// attribute set is handed back to the caller.
			if md := info.MessageDigest(); md != nil && !bytesEqual(md, digest) {
				return nil, engineerr.New(op, engineerr.KindSignatureError)
			}
		}
	}

	hashInput := digest
	if len(signedAttrs) > 0 {
		hashInput = sig.SignedAttrsHashBytes(signedAttrs)
	}

	var verr error
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		verr = sig.VerifyDLP(k, sha1Of(hashInput), sigBytes, cryptoctx.DLPFormatCMS)
	case *cryptoctx.RSAContext:
		verr = k.Verify(cryptoctx.VerifyParams{Hash: hashInput, Signature: sigBytes})
	default:
		return nil, engineerr.New(op, engineerr.KindNotAvail)
	}
	if verr != nil {
		return nil, verifyErr(op, verr)
	}
	return &CheckExtra{CMSSignedAttrs: signedAttrs, CMSUnsignedAttrs: unsignedAttrs}, nil
}

func checkPGPSignature(op string, leaf cryptoctx.KeyCtx, digest, buf []byte) error {
	s, rerr := sig.ReadPGPSignature(buf)
	if rerr != nil {
		return engineerr.Wrap(op, engineerr.KindBadData, rerr)
	}
	if s.UnknownCriticalSubpacket() {
		return engineerr.New(op, engineerr.KindNotAvail)
	}
	switch k := leaf.(type) {
	case *cryptoctx.DSAContext:
		scratch := make([]byte, 40)
		copy(scratch[20-len(s.MPIs[0]):20], s.MPIs[0])
		copy(scratch[40-len(s.MPIs[1]):40], s.MPIs[1])
		return verifyErr(op, k.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: scratch}))
	case *cryptoctx.Ed25519Context:
		full := make([]byte, 64)
		copy(full[32-len(s.MPIs[0]):32], s.MPIs[0])
		copy(full[64-len(s.MPIs[1]):64], s.MPIs[1])
		return verifyErr(op, k.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: full}))
	case *cryptoctx.RSAContext:
		return verifyErr(op, k.Verify(cryptoctx.VerifyParams{Hash: digest, Signature: s.MPIs[0]}))
	default:
		return engineerr.New(op, engineerr.KindNotAvail)
	}
}

func verifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == cryptoctx.ErrCompareFailed {
		return engineerr.New(op, engineerr.KindSignatureError)
	}
	return engineerr.Wrap(op, engineerr.KindFailed, err)
}

// QueryObject classifies buf per spec.md §4.G / §6's `query_object`,
// delegating directly to internal/query — the orchestrator adds no
// state-machine steps here since classification has no side effects.
func QueryObject(buf []byte) (query.Info, error) {
	info, err := query.Classify(buf)
	if err != nil {
		kind := engineerr.KindBadData
		if err == query.ErrUnderflow {
			kind = engineerr.KindUnderflow
		}
		return query.Info{}, engineerr.Wrap("QueryObject", kind, err)
	}
	return info, nil
}

// compareKeyID implements the context compare(key_id) opcode of
// spec.md §4.C for the key-exchange codecs: a message-embedded key id
// must match a non-empty expected id exactly, never match on two
// empty ids.
func compareKeyID(want, got []byte) bool {
	return len(want) != 0 && bytesEqual(want, got)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sha1Of(b []byte) []byte {
	h := sha1.New()
	h.Write(b)
	return h.Sum(nil)
}

// sigAlgoID builds the AlgorithmIdentifier an X.509 signature names,
// combining the signing key's algorithm with the hash the caller
// already computed.
func sigAlgoID(leaf cryptoctx.KeyCtx, hashCtx cryptoctx.HashCtx) wire.AlgoID {
	switch leaf.(type) {
	case *cryptoctx.DSAContext:
		return wire.AlgoID{OID: dsaSigOID}
	default:
		return wire.AlgoID{OID: rsaSigOID}
	}
}
