// This is free and unencumbered software released into the public domain.

// cryptctl is a small CLI front end over the engine package, in the
// shape of passphrase2pgp: one binary, one config struct built by
// optparse, one subcommand dispatch in main(). It exercises
// ExportKey/ImportKey/CreateSignature/CheckSignature/QueryObject
// against real files instead of wiring a TLS/CMS stack around them.
package main

import (
	"bufio"
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/cryptwire/engine/engine"
	"github.com/cryptwire/engine/engine/engineerr"
	"github.com/cryptwire/engine/internal/algo"
	"github.com/cryptwire/engine/internal/cryptoctx"
	"github.com/cryptwire/engine/openpgp"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/ed25519"
	"nullprogram.com/x/optparse"
)

const (
	kdfTime   = 8
	kdfMemory = 1024 * 1024 // 1 GB

	cmdKeygen = iota
	cmdWrap
	cmdUnwrap
	cmdSign
	cmdVerify
	cmdQuery
)

// Print the message like fmt.Printf() and then os.Exit(1).
func fatal(format string, args ...interface{}) {
	buf := bytes.NewBufferString("cryptctl: ")
	fmt.Fprintf(buf, format, args...)
	buf.WriteRune('\n')
	os.Stderr.Write(buf.Bytes())
	os.Exit(1)
}

// Derive a 64-byte seed from a passphrase, same scheme and cost
// passphrase2pgp uses for its own key material.
func kdf(passphrase, uid []byte, scale int) []byte {
	t := uint32(kdfTime * scale)
	memory := uint32(kdfMemory * scale)
	return argon2.IDKey(passphrase, uid, t, memory, 1, 64)
}

// firstLine returns a file's first line, not including \r or \n.
func firstLine(filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.Bytes(), nil
}

type config struct {
	cmd  int
	args []string

	format     string
	hashAlgo   string
	input      string
	output     string
	keyFile    string
	pubKeyFile string
	privKeyFile string
	passFile   string
	uid        string
	created    int64
	verbose    bool
}

func usage(w io.Writer) {
	bw := bufio.NewWriter(w)
	i := "  "
	f := func(s ...interface{}) { fmt.Fprintln(bw, s...) }
	f("Usage: cryptctl <command> [options]")
	f("Commands:")
	f(i, "-K, --keygen           generate an Ed25519 signing key")
	f(i, "-W, --wrap             export (wrap) a session key")
	f(i, "-U, --unwrap           import (unwrap) a session key")
	f(i, "-S, --sign             create a detached signature")
	f(i, "-V, --verify           check a detached signature")
	f(i, "-Q, --query            classify an opaque wire object")
	f("Options:")
	f(i, "-f, --format NAME      cms|cryptlib|pgp (keyex) or raw|x509|cms|cryptlib|pgp|ssh|ssl (sig)")
	f(i, "-H, --hash NAME        sha1|sha256|sha384|sha512 [sha256]")
	f(i, "-i, --input FILE       read input from FILE (default stdin)")
	f(i, "-o, --output FILE      write output to FILE (default stdout)")
	f(i, "-k, --key FILE         Ed25519 key packet from --keygen")
	f(i, "-P, --pubkey FILE      PEM RSA public key (wrap target)")
	f(i, "-p, --privkey FILE     PEM RSA private key (unwrap target)")
	f(i, "-w, --passphrase FILE  passphrase file for password-based wrap/unwrap")
	f(i, "-u, --uid STRING       user ID / KDF salt for --keygen")
	f(i, "-v, --verbose          print additional information")
	bw.Flush()
}

func parse() *config {
	conf := config{format: "pgp", hashAlgo: "sha256"}

	options := []optparse.Option{
		{"keygen", 'K', optparse.KindNone},
		{"wrap", 'W', optparse.KindNone},
		{"unwrap", 'U', optparse.KindNone},
		{"sign", 'S', optparse.KindNone},
		{"verify", 'V', optparse.KindNone},
		{"query", 'Q', optparse.KindNone},

		{"format", 'f', optparse.KindRequired},
		{"hash", 'H', optparse.KindRequired},
		{"help", 'h', optparse.KindNone},
		{"input", 'i', optparse.KindRequired},
		{"output", 'o', optparse.KindRequired},
		{"key", 'k', optparse.KindRequired},
		{"pubkey", 'P', optparse.KindRequired},
		{"privkey", 'p', optparse.KindRequired},
		{"passphrase", 'w', optparse.KindRequired},
		{"uid", 'u', optparse.KindRequired},
		{"verbose", 'v', optparse.KindNone},
	}

	var cmdSeen bool
	results, rest, err := optparse.Parse(options, os.Args)
	if err != nil {
		usage(os.Stderr)
		fatal("%s", err)
	}
	for _, result := range results {
		switch result.Long {
		case "keygen":
			conf.cmd, cmdSeen = cmdKeygen, true
		case "wrap":
			conf.cmd, cmdSeen = cmdWrap, true
		case "unwrap":
			conf.cmd, cmdSeen = cmdUnwrap, true
		case "sign":
			conf.cmd, cmdSeen = cmdSign, true
		case "verify":
			conf.cmd, cmdSeen = cmdVerify, true
		case "query":
			conf.cmd, cmdSeen = cmdQuery, true

		case "format":
			conf.format = result.Optarg
		case "hash":
			conf.hashAlgo = result.Optarg
		case "help":
			usage(os.Stdout)
			os.Exit(0)
		case "input":
			conf.input = result.Optarg
		case "output":
			conf.output = result.Optarg
		case "key":
			conf.keyFile = result.Optarg
		case "pubkey":
			conf.pubKeyFile = result.Optarg
		case "privkey":
			conf.privKeyFile = result.Optarg
		case "passphrase":
			conf.passFile = result.Optarg
		case "uid":
			conf.uid = result.Optarg
		case "verbose":
			conf.verbose = true
		}
	}
	if !cmdSeen {
		usage(os.Stderr)
		fatal("a command is required")
	}
	conf.created = time.Now().Unix()
	conf.args = rest
	return &conf
}

func readInput(conf *config) []byte {
	var r io.Reader = os.Stdin
	if conf.input != "" {
		f, err := os.Open(conf.input)
		if err != nil {
			fatal("%s", err)
		}
		defer f.Close()
		r = f
	}
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		fatal("%s", err)
	}
	return buf
}

func writeOutput(conf *config, buf []byte) {
	var w io.Writer = os.Stdout
	if conf.output != "" {
		f, err := os.Create(conf.output)
		if err != nil {
			fatal("%s", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(buf); err != nil {
		fatal("%s", err)
	}
}

func hashAlgo(name string) algo.Algo {
	switch name {
	case "sha1":
		return algo.AlgoSHA1
	case "sha384":
		return algo.AlgoSHA384
	case "sha512":
		return algo.AlgoSHA512
	default:
		return algo.AlgoSHA256
	}
}

func newHashCtx(name string) *cryptoctx.HashContext {
	a := hashAlgo(name)
	info, err := algo.HashByAlgo(a)
	if err != nil {
		fatal("%s", err)
	}
	return cryptoctx.NewHashContext(info.New, int(a))
}

func keyexFormat(name string) engine.KeyexFormat {
	switch name {
	case "cms":
		return engine.KeyexFormatCMS
	case "cryptlib":
		return engine.KeyexFormatCryptlib
	case "pgp":
		return engine.KeyexFormatPGP
	default:
		fatal("invalid keyex format: %s", name)
		return engine.KeyexFormatNone
	}
}

func sigFormat(name string) engine.SignatureFormat {
	switch name {
	case "raw":
		return engine.SigFormatRaw
	case "x509":
		return engine.SigFormatX509
	case "cms":
		return engine.SigFormatCMS
	case "cryptlib":
		return engine.SigFormatCryptlib
	case "pgp":
		return engine.SigFormatPGP
	case "ssh":
		return engine.SigFormatSSH
	case "ssl":
		return engine.SigFormatSSL
	default:
		fatal("invalid signature format: %s", name)
		return engine.SigFormatNone
	}
}

func readPassphrase(conf *config) []byte {
	if conf.passFile != "" {
		line, err := firstLine(conf.passFile)
		if err != nil {
			fatal("%s", err)
		}
		return line
	}
	fmt.Fprint(os.Stderr, "passphrase: ")
	s := bufio.NewScanner(os.Stdin)
	if !s.Scan() {
		fatal("no passphrase given")
	}
	return s.Bytes()
}

func loadRSAPublicKey(path string) *rsa.PublicKey {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		fatal("%s", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		fatal("%s: not a PEM file", path)
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub
		}
		fatal("%s: certificate does not hold an RSA key", path)
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		fatal("%s: %s", path, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		fatal("%s: not an RSA public key", path)
	}
	return rsaPub
}

func loadRSAPrivateKey(path string) *rsa.PrivateKey {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		fatal("%s", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		fatal("%s: not a PEM file", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		fatal("%s: %s", path, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		fatal("%s: not an RSA private key", path)
	}
	return rsaKey
}

func loadEd25519Key(conf *config) *openpgp.SignKey {
	if conf.keyFile == "" {
		fatal("--key is required")
	}
	raw, err := ioutil.ReadFile(conf.keyFile)
	if err != nil {
		fatal("%s", err)
	}
	var key openpgp.SignKey
	if len(raw) >= 84 && raw[0] == 0xc0|5 && raw[53] == 254 {
		pass := readPassphrase(conf)
		seed, err := openpgp.DecodeEncPacket(raw, pass)
		if err != nil {
			fatal("%s", err)
		}
		key.Seed(seed)
	} else if len(raw) >= 32 {
		key.Seed(raw[:32])
	} else {
		fatal("%s: not a recognized key file", conf.keyFile)
	}
	return &key
}

func doKeygen(conf *config) {
	if conf.uid == "" {
		fatal("--uid is required")
	}
	pass := readPassphrase(conf)
	seed := kdf(pass, []byte(conf.uid), 1)

	var key openpgp.SignKey
	key.Seed(seed[:32])
	key.SetCreated(conf.created)

	if conf.verbose {
		fmt.Fprintf(os.Stderr, "Key ID: %X\n", key.KeyID())
	}

	packet := key.EncPacket(pass)
	writeOutput(conf, packet)
}

func doWrap(conf *config) {
	sessionKey := readInput(conf)
	format := keyexFormat(conf.format)

	var wrapCtx cryptoctx.KeyCtx
	if conf.pubKeyFile != "" {
		wrapCtx = cryptoctx.NewRSAContext(loadRSAPublicKey(conf.pubKeyFile), nil)
	} else {
		pass := readPassphrase(conf)
		kek := kdf(pass, []byte(conf.uid), 1)[:32]
		wrapCtx = cryptoctx.NewConventionalContext(kek, int(algo.AlgoAES256))
	}

	out, err := engine.ExportKey(sessionKey, wrapCtx, format)
	if err != nil {
		fatal("%s", explainEngineErr(err))
	}
	writeOutput(conf, out)
}

func doUnwrap(conf *config) {
	buf := readInput(conf)
	format := keyexFormat(conf.format)

	var importCtx cryptoctx.KeyCtx
	if conf.privKeyFile != "" {
		priv := loadRSAPrivateKey(conf.privKeyFile)
		importCtx = cryptoctx.NewRSAContext(&priv.PublicKey, priv)
	} else {
		pass := readPassphrase(conf)
		kek := kdf(pass, []byte(conf.uid), 1)[:32]
		importCtx = cryptoctx.NewConventionalContext(kek, int(algo.AlgoAES256))
	}

	sessionKey, err := engine.ImportKey(buf, importCtx, format)
	if err != nil {
		fatal("%s", explainEngineErr(err))
	}
	writeOutput(conf, sessionKey)
}

func doSign(conf *config) {
	data := readInput(conf)
	key := loadEd25519Key(conf)
	signCtx := cryptoctx.NewEd25519Context(ed25519.PublicKey(key.Key[32:]), key.Key)

	hashCtx := newHashCtx(conf.hashAlgo)
	if err := hashCtx.Hash(data); err != nil {
		fatal("%s", err)
	}
	if err := hashCtx.Hash(nil); err != nil {
		fatal("%s", err)
	}

	out, err := engine.CreateSignature(signCtx, hashCtx, sigFormat(conf.format), nil)
	if err != nil {
		fatal("%s", explainEngineErr(err))
	}
	if conf.verbose {
		fmt.Fprintf(os.Stderr, "Key ID: %X\n", key.KeyID())
	}
	writeOutput(conf, out)
}

func doVerify(conf *config) {
	sigBytes := readInput(conf)
	if len(conf.args) != 1 {
		fatal("verify requires exactly one data file argument")
	}
	data, err := ioutil.ReadFile(conf.args[0])
	if err != nil {
		fatal("%s", err)
	}
	key := loadEd25519Key(conf)
	verifyCtx := cryptoctx.NewEd25519Context(ed25519.PublicKey(key.Key[32:]), nil)

	hashCtx := newHashCtx(conf.hashAlgo)
	if err := hashCtx.Hash(data); err != nil {
		fatal("%s", err)
	}
	if err := hashCtx.Hash(nil); err != nil {
		fatal("%s", err)
	}

	if _, err := engine.CheckSignature(sigBytes, verifyCtx, hashCtx, sigFormat(conf.format)); err != nil {
		fatal("%s", explainEngineErr(err))
	}
	fmt.Fprintln(os.Stderr, "signature OK")
}

func doQuery(conf *config) {
	buf := readInput(conf)
	info, err := engine.QueryObject(buf)
	if err != nil {
		fatal("%s", explainEngineErr(err))
	}
	fmt.Printf("format=%d kind=%d version=%d keyID=%s newRecipientInfo=%v\n",
		info.Format, info.Kind, info.Version, hex.EncodeToString(info.KeyID), info.NewRecipientInfo)
}

func explainEngineErr(err error) string {
	if ee, ok := err.(*engineerr.Error); ok {
		return ee.Error()
	}
	return err.Error()
}

func main() {
	conf := parse()
	switch conf.cmd {
	case cmdKeygen:
		doKeygen(conf)
	case cmdWrap:
		doWrap(conf)
	case cmdUnwrap:
		doUnwrap(conf)
	case cmdSign:
		doSign(conf)
	case cmdVerify:
		doVerify(conf)
	case cmdQuery:
		doQuery(conf)
	}
}
