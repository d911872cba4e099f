// Package taproot implements BIP-340 Schnorr signatures over secp256k1.
package taproot

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
)

// TaggedHash adds some domain separation to SHA-256.
//
// This is the hash_tag function mentioned in BIP-340.
//
// See: https://github.com/bitcoin/bips/blob/master/bip-0340.mediawiki#specification
func TaggedHash(tag string, datas ...[]byte) []byte {
	tagSum := sha256.Sum256([]byte(tag))

	h := sha256.New()
	h.Write(tagSum[:])
	h.Write(tagSum[:])
	for _, data := range datas {
		h.Write(data)
	}
	return h.Sum(nil)
}

// Challenge computes e = H_tag("BIP0340/challenge", R.x || P.x || m) as a scalar.
func Challenge(rx, px, m []byte) *curve.Scalar {
	return curve.FromHash(TaggedHash("BIP0340/challenge", rx, px, m))
}

// PublicKeyLength is the number of bytes in a PublicKey.
const PublicKeyLength = 32

// PublicKey represents a public key for BIP-340 signatures.
//
// This is the x coordinate of a point with even y.
type PublicKey []byte

// PublicKeyFromPoint returns the x-only encoding of p.
func PublicKeyFromPoint(p *curve.Point) PublicKey {
	return PublicKey(p.XBytes())
}

// Point lifts the public key into the point with even y coordinate.
func (pk PublicKey) Point() (*curve.Point, error) {
	if len(pk) != PublicKeyLength {
		return nil, fmt.Errorf("taproot: public key has %d bytes, expected %d", len(pk), PublicKeyLength)
	}
	return curve.LiftX(pk)
}

// SecretKeyLength is the number of bytes in a SecretKey.
const SecretKeyLength = 32

// SecretKey represents a secret key for BIP-340 signatures.
type SecretKey []byte

// Public calculates the public key corresponding to a given secret key.
func (sk SecretKey) Public() (PublicKey, error) {
	scalar := curve.NewScalar()
	if err := scalar.UnmarshalBinary(sk); err != nil || scalar.IsZero() {
		return nil, fmt.Errorf("invalid secret key")
	}
	return PublicKeyFromPoint(scalar.ActOnBase()), nil
}

// GenKey generates a new key-pair, from a source of randomness.
func GenKey(rand io.Reader) (SecretKey, PublicKey, error) {
	for {
		secret := SecretKey(make([]byte, SecretKeyLength))
		if _, err := io.ReadFull(rand, secret); err != nil {
			return nil, nil, err
		}
		if public, err := secret.Public(); err == nil {
			return secret, public, nil
		}
	}
}

// SignatureLen is the number of bytes in a Signature.
const SignatureLen = 64

// Signature represents a signature according to BIP-340.
//
// This is R.x || s, exactly SignatureLen bytes.
type Signature []byte

// NewSignature serializes (R, s) where R has even y.
func NewSignature(R *curve.Point, s *curve.Scalar) Signature {
	sig := make([]byte, 0, SignatureLen)
	sig = append(sig, R.XBytes()...)
	sig = append(sig, s.Bytes()...)
	return sig
}

// Sign creates a single-party BIP-340 signature over m with auxiliary randomness.
func (sk SecretKey) Sign(rand io.Reader, m []byte) (Signature, error) {
	// See: https://github.com/bitcoin/bips/blob/master/bip-0340.mediawiki#default-signing
	d := curve.NewScalar()
	if err := d.UnmarshalBinary(sk); err != nil || d.IsZero() {
		return nil, fmt.Errorf("invalid secret key")
	}

	P := d.ActOnBase()
	PBytes := P.XBytes()
	if !P.HasEvenY() {
		d.Negate()
	}

	a := make([]byte, 32)
	if _, err := io.ReadFull(rand, a); err != nil {
		return nil, err
	}
	t := d.Bytes()
	aHash := TaggedHash("BIP0340/aux", a)
	for i := 0; i < 32; i++ {
		t[i] ^= aHash[i]
	}

	k := curve.FromHash(TaggedHash("BIP0340/nonce", t, PBytes, m))
	if k.IsZero() {
		return nil, fmt.Errorf("invalid nonce")
	}
	R := k.ActOnBase()
	if !R.HasEvenY() {
		k.Negate()
	}

	e := Challenge(R.XBytes(), PBytes, m)
	z := e.Mul(d).Add(k)
	return NewSignature(R, z), nil
}

// Verify checks the integrity of a signature, using a public key.
func (pk PublicKey) Verify(sig Signature, m []byte) bool {
	// See: https://github.com/bitcoin/bips/blob/master/bip-0340.mediawiki#verification
	if len(sig) != SignatureLen {
		return false
	}

	P, err := pk.Point()
	if err != nil {
		return false
	}
	s := curve.NewScalar()
	if err = s.UnmarshalBinary(sig[32:]); err != nil {
		return false
	}
	e := Challenge(sig[:32], pk, m)

	check := s.ActOnBase().Sub(e.Act(P))
	if check.IsIdentity() {
		return false
	}
	if !check.HasEvenY() {
		return false
	}
	return bytes.Equal(check.XBytes(), sig[:32])
}
