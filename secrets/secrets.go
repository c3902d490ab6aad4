// Package secrets implements one-way hashing of client secrets using a
// versioned, self-describing envelope format.
//
// The envelope is a stable persisted wire format: secrets hashed by older
// releases must keep verifying after upgrades, so the algorithm, iteration
// count and salt are recorded alongside the derived key rather than assumed.
//
// Envelope binary layout, big-endian, base64 encoded:
//
//	[1]  format version, currently 0x01
//	[4]  algorithm identifier (0 = SHA-1, 1 = SHA-256, 2 = SHA-512)
//	[4]  iteration count
//	[4]  salt length N
//	[N]  salt
//	[..] derived key
package secrets

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"hash"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/logging"
	"golang.org/x/crypto/pbkdf2"
	"google.golang.org/grpc/codes"
)

// Algorithm identifies the PRF recorded in a secret envelope.
type Algorithm uint32

const (
	AlgorithmSHA1   Algorithm = 0
	AlgorithmSHA256 Algorithm = 1
	AlgorithmSHA512 Algorithm = 2
)

const (
	formatVersion byte = 0x01

	// Parameters used when producing new envelopes. Verification always uses
	// the parameters recorded in the envelope itself.
	defaultIterations = 10_000
	defaultSaltSize   = 128 // bytes
	defaultKeySize    = 32  // bytes, 256-bit derived key

	// Envelopes carrying less salt or key material than this are rejected
	// outright rather than verified.
	minSaltSize = 16 // 128 bits
	minKeySize  = 16 // 128 bits

	headerSize = 1 + 4 + 4 + 4
)

// ErrUnknownAlgorithm is returned when an envelope, or the hasher
// configuration, names an algorithm identifier this release does not know.
// It is a configuration error, never silently substituted.
var ErrUnknownAlgorithm = errors.NewC("secrets: unknown algorithm identifier", codes.FailedPrecondition)

// Hasher hashes and verifies client secrets. Implementations must never
// propagate failures from Verify: a secret either verifies or it does not.
type Hasher interface {
	// Hash derives a new envelope from a plaintext secret.
	Hash(secret string) (string, error)

	// Verify reports whether the secret matches a previously hashed
	// envelope. Malformed envelopes verify false.
	Verify(secret, envelope string) bool
}

// Option configures a Hasher.
type Option func(*hasher)

// WithLogger sets the logger used to report malformed envelopes.
func WithLogger(log logging.Logger) Option {
	return func(h *hasher) {
		h.log = log
	}
}

// WithAlgorithm overrides the PRF used for newly produced envelopes.
// Existing envelopes verify with their recorded algorithm regardless.
func WithAlgorithm(alg Algorithm) Option {
	return func(h *hasher) {
		h.alg = alg
	}
}

// NewHasher returns a Hasher producing version 0x01 envelopes with PBKDF2,
// 10,000 iterations, SHA-256 and a 128-byte random salt.
func NewHasher(opts ...Option) Hasher {
	h := &hasher{
		alg: AlgorithmSHA256,
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DefaultHasher is the hasher used when none is configured explicitly.
var DefaultHasher = NewHasher()

type hasher struct {
	alg Algorithm
	log logging.Logger
}

func (h *hasher) Hash(secret string) (string, error) {
	prf, err := prfFor(h.alg)
	if err != nil {
		return "", err
	}

	salt := make([]byte, defaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.WrapPrefix(err, "secrets: salt generation failed", 0)
	}

	key := pbkdf2.Key([]byte(secret), salt, defaultIterations, defaultKeySize, prf)

	buf := make([]byte, 0, headerSize+len(salt)+len(key))
	buf = append(buf, formatVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.alg))
	buf = binary.BigEndian.AppendUint32(buf, defaultIterations)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(salt)))
	buf = append(buf, salt...)
	buf = append(buf, key...)

	return base64.StdEncoding.EncodeToString(buf), nil
}

func (h *hasher) Verify(secret, envelope string) bool {
	if envelope == "" {
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		h.log.Infow("secret envelope is not valid base64", "error", err)
		return false
	}
	if len(raw) < headerSize {
		h.log.Infow("secret envelope is truncated", "length", len(raw))
		return false
	}
	if raw[0] != formatVersion {
		h.log.Infow("secret envelope has unsupported version", "version", raw[0])
		return false
	}

	alg := Algorithm(binary.BigEndian.Uint32(raw[1:5]))
	iterations := int(binary.BigEndian.Uint32(raw[5:9]))
	saltLen := int(binary.BigEndian.Uint32(raw[9:13]))

	if saltLen < 0 || headerSize+saltLen > len(raw) {
		h.log.Infow("secret envelope has inconsistent salt length", "saltLength", saltLen)
		return false
	}
	salt := raw[headerSize : headerSize+saltLen]
	stored := raw[headerSize+saltLen:]

	if len(salt) < minSaltSize || len(stored) < minKeySize {
		h.log.Infow("secret envelope has insufficient salt or key material",
			"saltLength", len(salt), "keyLength", len(stored))
		return false
	}

	prf, err := prfFor(alg)
	if err != nil {
		// Nothing can be derived without the PRF; surface loudly but do not
		// throw across the public boundary.
		h.log.Errorw("secret envelope names an unknown algorithm", "algorithm", alg)
		return false
	}

	derived := pbkdf2.Key([]byte(secret), salt, iterations, len(stored), prf)
	return subtle.ConstantTimeCompare(derived, stored) == 1
}

func prfFor(alg Algorithm) (func() hash.Hash, error) {
	switch alg {
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, errors.Mark(ErrUnknownAlgorithm, 0)
	}
}
