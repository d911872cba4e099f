// Package musig defines the identity under which one threshold key is created and reused.
package musig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
)

// Role namespaces keys so that a user and an issuer sharing a public key never share a threshold key.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleIssuer
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleIssuer:
		return "issuer"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ID is the canonical identity of one logical threshold key.
//
// ID is a comparable value: == and map keys compare the full tuple,
// and no hashing or truncation is applied.
type ID struct {
	Role      Role
	PublicKey [curve.PointBytes]byte
	AssetID   string
}

// NewUser returns the identity of a user's key for an asset.
func NewUser(userPublicKey *curve.Point, assetID string) (ID, error) {
	return newID(RoleUser, userPublicKey, assetID)
}

// NewIssuer returns the identity of an issuer's key for an asset.
func NewIssuer(issuerPublicKey *curve.Point, assetID string) (ID, error) {
	return newID(RoleIssuer, issuerPublicKey, assetID)
}

func newID(role Role, pk *curve.Point, assetID string) (ID, error) {
	var id ID
	if pk == nil || pk.IsIdentity() {
		return id, fmt.Errorf("musig: invalid %s public key", role)
	}
	data, err := pk.MarshalBinary()
	if err != nil {
		return id, err
	}
	id.Role = role
	copy(id.PublicKey[:], data)
	id.AssetID = assetID
	return id, nil
}

// Validate checks that the role is known and that the public key decodes to a point.
func (id ID) Validate() error {
	if id.Role != RoleUser && id.Role != RoleIssuer {
		return fmt.Errorf("musig: unknown %s", id.Role)
	}
	p := curve.NewIdentityPoint()
	if err := p.UnmarshalBinary(id.PublicKey[:]); err != nil {
		return fmt.Errorf("musig: %w", err)
	}
	if p.IsIdentity() {
		return fmt.Errorf("musig: identity public key")
	}
	return nil
}

// PublicKeyPoint decodes the public key of the identity.
func (id ID) PublicKeyPoint() (*curve.Point, error) {
	p := curve.NewIdentityPoint()
	if err := p.UnmarshalBinary(id.PublicKey[:]); err != nil {
		return nil, err
	}
	return p, nil
}

// Compare orders identities by role, then public key, then asset.
func (id ID) Compare(other ID) int {
	switch {
	case id.Role < other.Role:
		return -1
	case id.Role > other.Role:
		return 1
	}
	if c := bytes.Compare(id.PublicKey[:], other.PublicKey[:]); c != 0 {
		return c
	}
	return strings.Compare(id.AssetID, other.AssetID)
}

// String returns "role/pubkey/asset". It is injective and used as a storage key.
func (id ID) String() string {
	return fmt.Sprintf("%s/%s/%s", id.Role, hex.EncodeToString(id.PublicKey[:]), id.AssetID)
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	var id ID
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return id, fmt.Errorf("musig: malformed id %q", s)
	}
	switch parts[0] {
	case RoleUser.String():
		id.Role = RoleUser
	case RoleIssuer.String():
		id.Role = RoleIssuer
	default:
		return id, fmt.Errorf("musig: unknown role %q", parts[0])
	}
	pk, err := hex.DecodeString(parts[1])
	if err != nil || len(pk) != curve.PointBytes {
		return id, fmt.Errorf("musig: malformed public key in %q", s)
	}
	copy(id.PublicKey[:], pk)
	id.AssetID = parts[2]
	return id, id.Validate()
}
