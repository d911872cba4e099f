package test

import (
	"io"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

// GenerateKeys creates key packages for params with a trusted dealer.
//
// The output has the same shape as a completed key generation, including the
// even y normalization of the group key.
func GenerateKeys(params keygen.Params, source io.Reader) (map[party.ID]*keygen.KeyPackage, *keygen.PublicKeyPackage) {
	secret := sample.Scalar(source)
	if !secret.ActOnBase().HasEvenY() {
		secret.Negate()
	}
	f := polynomial.NewPolynomial(source, params.Degree(), secret)

	public := &keygen.PublicKeyPackage{
		Params:             params,
		PublicKey:          secret.ActOnBase(),
		VerificationShares: make(map[party.ID]*curve.Point, params.N),
	}
	keys := make(map[party.ID]*keygen.KeyPackage, params.N)
	for _, id := range params.Participants() {
		s := f.Evaluate(id.Scalar())
		public.VerificationShares[id] = s.ActOnBase()
		keys[id] = &keygen.KeyPackage{
			ID:                id,
			Params:            params,
			SecretShare:       s,
			PublicKey:         public.PublicKey,
			VerificationShare: public.VerificationShares[id],
		}
	}
	return keys, public
}
