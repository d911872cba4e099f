// Package curve implements the secp256k1 group used by every threshold key in
// this module.
//
// Scalars mutate and return their receiver, so that expressions such as
//
//	z := NewScalar().Set(lambda).Mul(s).Mul(c)
//
// can be chained. Points are immutable: Add, Sub and Negate return new values.
package curve

import (
	"encoding/hex"

	"github.com/cronokirby/saferith"
)

// ScalarBytes is the length of a canonical scalar encoding.
const ScalarBytes = 32

// PointBytes is the length of a compressed point encoding.
const PointBytes = 33

// Name identifies the group in transcripts and errors.
const Name = "secp256k1"

var order *saferith.Modulus

func init() {
	orderBytes, _ := hex.DecodeString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
	order = saferith.ModulusFromBytes(orderBytes)
}

// Order returns the order of the group, as a Modulus.
func Order() *saferith.Modulus {
	return order
}

// FromHash converts a hash value to a Scalar.
//
// The digest is truncated to the byte length of the group order and then
// reduced, following what crypto/ecdsa does for oversized hashes.
func FromHash(h []byte) *Scalar {
	orderBytes := (order.BitLen() + 7) / 8
	if len(h) > orderBytes {
		h = h[:orderBytes]
	}
	return NewScalar().SetNat(new(saferith.Nat).SetBytes(h))
}
