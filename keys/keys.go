// Package keys ranks and names the cryptographic credentials attached to a
// registration. The ordering is total and deterministic so that the same
// configuration always selects the same primary signing key and assigns the
// same key identifiers, across process restarts and hosts.
package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Credential pairs key material with an algorithm. Key holds one of:
// *rsa.PrivateKey, *rsa.PublicKey, *ecdsa.PrivateKey, *ecdsa.PublicKey,
// ed25519.PrivateKey, ed25519.PublicKey, or []byte for symmetric secrets.
// Certificate is set for certificate-backed keys and drives validity-window
// ranking and thumbprint-based identification.
type Credential struct {
	Key         any
	Certificate *x509.Certificate
	Algorithm   string
	KeyID       string
}

// IsSymmetric reports whether the credential wraps a shared secret.
func (c *Credential) IsSymmetric() bool {
	_, ok := c.Key.([]byte)
	return ok
}

// Compare defines the total ordering used to pick a canonical primary key.
// It returns a negative value when a should sort before b. Rules, evaluated
// in sequence:
//
//  1. Identical credential instances are equal.
//  2. A symmetric key is always preferred over an asymmetric key.
//  3. A certificate-backed key not yet within its validity window sorts
//     below any competing valid key.
//  4. Between two certificate-backed keys, the later expiration wins.
//  5. A certificate-backed key is preferred over a bare asymmetric key.
//  6. Two bare keys of the same general shape are equal.
func Compare(a, b *Credential, now time.Time) int {
	if a == b {
		return 0
	}

	symA, symB := a.IsSymmetric(), b.IsSymmetric()
	switch {
	case symA && symB:
		return 0
	case symA:
		return -1
	case symB:
		return 1
	}

	certA, certB := a.Certificate, b.Certificate
	pendingA := certA != nil && now.Before(certA.NotBefore)
	pendingB := certB != nil && now.Before(certB.NotBefore)
	if pendingA != pendingB {
		if pendingA {
			return 1
		}
		return -1
	}

	switch {
	case certA != nil && certB != nil:
		if certA.NotAfter.After(certB.NotAfter) {
			return -1
		}
		if certB.NotAfter.After(certA.NotAfter) {
			return 1
		}
		return 0
	case certA != nil:
		return -1
	case certB != nil:
		return 1
	}

	return 0
}

// SortCredentials stable-sorts credentials into preference order, most
// preferred first.
func SortCredentials(creds []*Credential, now time.Time) {
	sort.SliceStable(creds, func(i, j int) bool {
		return Compare(creds[i], creds[j], now) < 0
	})
}

// InferKeyID derives a deterministic identifier for a credential that lacks
// an explicit one:
//
//   - certificate-backed keys use the certificate thumbprint,
//   - RSA keys use the first 40 base64url characters (upper-cased) of the
//     public modulus,
//   - elliptic-curve and Ed25519 keys receive the analogous treatment of
//     their public coordinates,
//   - symmetric secrets are digested first so the identifier never leaks
//     key material.
//
// Returns "" when the key shape is not recognized.
func InferKeyID(c *Credential) string {
	if c.Certificate != nil {
		return Thumbprint(c.Certificate)
	}

	switch k := c.Key.(type) {
	case *rsa.PrivateKey:
		return truncatedID(k.PublicKey.N.Bytes())
	case *rsa.PublicKey:
		return truncatedID(k.N.Bytes())
	case *ecdsa.PrivateKey:
		return truncatedID(k.PublicKey.X.Bytes())
	case *ecdsa.PublicKey:
		return truncatedID(k.X.Bytes())
	case ed25519.PrivateKey:
		return truncatedID(k.Public().(ed25519.PublicKey))
	case ed25519.PublicKey:
		return truncatedID(k)
	case []byte:
		digest := sha256.Sum256(k)
		return truncatedID(digest[:])
	}
	return ""
}

// AssignKeyIDs fills in missing key identifiers in place.
func AssignKeyIDs(creds []*Credential) {
	for _, c := range creds {
		if c.KeyID == "" {
			c.KeyID = InferKeyID(c)
		}
	}
}

// Thumbprint returns the SHA-1 digest of the certificate's DER encoding as
// upper-case hex, matching the form published by most certificate stores.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func truncatedID(material []byte) string {
	id := strings.ToUpper(base64.RawURLEncoding.EncodeToString(material))
	if len(id) > 40 {
		id = id[:40]
	}
	return id
}
