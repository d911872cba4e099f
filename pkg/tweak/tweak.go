// Package tweak derives one-time public keys from a shared key.
//
// A tweak is a scalar t added to a base key P, giving P' = P + t•G. The
// holder of the input data can later prove the relation between P and P',
// and the threshold group can sign for P' by shifting its shares by t.
package tweak

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
)

// NonceLength is the number of random bytes appended to the caller's data.
const NonceLength = curve.ScalarBytes

const maxAttempts = 128

var ErrInfinity = errors.New("tweak: result is the point at infinity")

// GeneratedTweakScalar is a tweak together with the data it was hashed from.
//
// InputData is data || nonce. It must be retained by the caller: it is the only
// way to recompute Scalar and prove the relation to the base key.
type GeneratedTweakScalar struct {
	InputData []byte
	Scalar    *curve.Scalar
}

// GenerateTweakWithNonce hashes data with a fresh random nonce into a scalar.
func GenerateTweakWithNonce(data []byte) (*GeneratedTweakScalar, error) {
	return GenerateTweakWithNonceFrom(rand.Reader, data)
}

// GenerateTweakWithNonceFrom is GenerateTweakWithNonce with an explicit randomness source.
//
// Digests that are zero or not below the group order are discarded and a new
// nonce is drawn.
func GenerateTweakWithNonceFrom(rand io.Reader, data []byte) (*GeneratedTweakScalar, error) {
	for i := 0; i < maxAttempts; i++ {
		nonce := make([]byte, NonceLength)
		if _, err := io.ReadFull(rand, nonce); err != nil {
			return nil, fmt.Errorf("tweak: read nonce: %w", err)
		}
		input := make([]byte, 0, len(data)+NonceLength)
		input = append(input, data...)
		input = append(input, nonce...)

		s, err := ScalarFromInput(input)
		if err != nil {
			continue
		}
		return &GeneratedTweakScalar{InputData: input, Scalar: s}, nil
	}
	return nil, sample.ErrMaxIterations
}

// ScalarFromInput recomputes the tweak scalar for retained input data.
func ScalarFromInput(input []byte) (*curve.Scalar, error) {
	digest := chainhash.HashB(input)
	s := curve.NewScalar()
	if err := s.UnmarshalBinary(digest); err != nil {
		return nil, fmt.Errorf("tweak: digest out of range: %w", err)
	}
	if s.IsZero() {
		return nil, errors.New("tweak: zero digest")
	}
	return s, nil
}

// Verify checks that the tweak scalar is the one committed to by InputData.
func (g *GeneratedTweakScalar) Verify() bool {
	s, err := ScalarFromInput(g.InputData)
	return err == nil && s.Equal(g.Scalar)
}

// TweakedKey is the x-only encoding of a tweaked public key plus the parity of its y coordinate.
type TweakedKey struct {
	XOnly [schnorr.PubKeyBytesLen]byte
	// Odd is true when the full point has an odd y coordinate.
	Odd bool
}

// PublicKey reconstructs the full tweaked public key.
func (k TweakedKey) PublicKey() (*btcec.PublicKey, error) {
	var compressed [btcec.PubKeyBytesLenCompressed]byte
	compressed[0] = secpCompressedEven
	if k.Odd {
		compressed[0] = secpCompressedOdd
	}
	copy(compressed[1:], k.XOnly[:])
	return btcec.ParsePubKey(compressed[:])
}

const (
	secpCompressedEven = 0x02
	secpCompressedOdd  = 0x03
)

// TweakPubkey returns P + t•G as an x-only key plus parity.
func TweakPubkey(pubkey *btcec.PublicKey, t *curve.Scalar) (TweakedKey, error) {
	tweaked, err := addScalar(pubkey, t)
	if err != nil {
		return TweakedKey{}, err
	}
	var out TweakedKey
	copy(out.XOnly[:], schnorr.SerializePubKey(tweaked))
	out.Odd = tweaked.SerializeCompressed()[0] == secpCompressedOdd
	return out, nil
}

// UntweakPubkey recovers P from P + t•G.
func UntweakPubkey(tweaked TweakedKey, t *curve.Scalar) (*btcec.PublicKey, error) {
	full, err := tweaked.PublicKey()
	if err != nil {
		return nil, err
	}
	return addScalar(full, curve.NewScalar().Set(t).Negate())
}

func addScalar(pubkey *btcec.PublicKey, t *curve.Scalar) (*btcec.PublicKey, error) {
	if pubkey == nil || t == nil {
		return nil, errors.New("tweak: nil input")
	}
	var (
		s            btcec.ModNScalar
		key, tG, res btcec.JacobianPoint
	)
	s.SetByteSlice(t.Bytes())
	pubkey.AsJacobian(&key)
	btcec.ScalarBaseMultNonConst(&s, &tG)
	btcec.AddNonConst(&key, &tG, &res)

	if (res.X.IsZero() && res.Y.IsZero()) || res.Z.IsZero() {
		return nil, ErrInfinity
	}
	res.ToAffine()
	return btcec.NewPublicKey(&res.X, &res.Y), nil
}

// ToBtcec converts a curve point into a btcec public key.
func ToBtcec(p *curve.Point) (*btcec.PublicKey, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(data)
}

// FromBtcec converts a btcec public key into a curve point.
func FromBtcec(pk *btcec.PublicKey) (*curve.Point, error) {
	p := curve.NewIdentityPoint()
	if err := p.UnmarshalBinary(pk.SerializeCompressed()); err != nil {
		return nil, err
	}
	return p, nil
}
