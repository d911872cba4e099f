package sign

import (
	"crypto/sha256"
	"io"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"golang.org/x/crypto/hkdf"
)

// SigningNonces are the single-use secrets (dᵢ, eᵢ) of one signing ceremony.
type SigningNonces struct {
	D *curve.Scalar
	E *curve.Scalar
}

// Commit generates fresh nonces and their commitment.
//
// The nonces are derived with HKDF from fresh randomness and the secret share,
// so that a weak randomness source alone does not expose them.
func Commit(rand io.Reader, key *keygen.KeyPackage) (*SigningNonces, *SigningCommitment, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, nil, err
	}
	ikm := append(seed, key.SecretShare.Bytes()...)
	defer func() {
		for i := range ikm {
			ikm[i] = 0
		}
	}()

	nonces := &SigningNonces{
		D: sample.Scalar(hkdf.New(sha256.New, ikm, nil, []byte(protocolID+"/nonce/d"))),
		E: sample.Scalar(hkdf.New(sha256.New, ikm, nil, []byte(protocolID+"/nonce/e"))),
	}
	return nonces, nonces.Commitment(), nil
}

// Commitment returns (dᵢ•G, eᵢ•G).
func (n *SigningNonces) Commitment() *SigningCommitment {
	return &SigningCommitment{
		D: n.D.ActOnBase(),
		E: n.E.ActOnBase(),
	}
}

// Zeroize erases the nonces.
func (n *SigningNonces) Zeroize() {
	if n.D != nil {
		n.D.Zeroize()
	}
	if n.E != nil {
		n.E.Zeroize()
	}
}

func (n *SigningNonces) consumed() bool {
	return n.D == nil || n.E == nil || n.D.IsZero() || n.E.IsZero()
}
