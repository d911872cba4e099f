package polynomial_test

import (
	"crypto/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/party"
)

func TestPolynomial_Constant(t *testing.T) {
	secret := sample.Scalar(rand.Reader)
	poly := polynomial.NewPolynomial(rand.Reader, 3, secret)
	assert.True(t, poly.Constant().Equal(secret))
	assert.EqualValues(t, 3, poly.Degree())
}

func TestExponent_Evaluate(t *testing.T) {
	for deg := 0; deg < 5; deg++ {
		poly := polynomial.NewPolynomial(rand.Reader, deg, sample.Scalar(rand.Reader))
		polyExp := polynomial.NewPolynomialExponent(poly)
		for i := 0; i < 5; i++ {
			x := sample.Scalar(rand.Reader)
			assert.True(t, poly.Evaluate(x).ActOnBase().Equal(polyExp.Evaluate(x)))
		}
	}
}

func TestExponent_ZeroConstant(t *testing.T) {
	poly := polynomial.NewPolynomial(rand.Reader, 2, nil)
	polyExp := polynomial.NewPolynomialExponent(poly)
	assert.True(t, polyExp.IsConstant)
	assert.True(t, polyExp.Constant().IsIdentity())
	assert.Equal(t, 2, polyExp.Degree())
	x := sample.Scalar(rand.Reader)
	assert.True(t, poly.Evaluate(x).ActOnBase().Equal(polyExp.Evaluate(x)))
}

func TestSum(t *testing.T) {
	polys := make([]*polynomial.Polynomial, 4)
	exps := make([]*polynomial.Exponent, 4)
	for i := range polys {
		polys[i] = polynomial.NewPolynomial(rand.Reader, 2, sample.Scalar(rand.Reader))
		exps[i] = polynomial.NewPolynomialExponent(polys[i])
	}
	summed, err := polynomial.Sum(exps)
	require.NoError(t, err)

	x := sample.Scalar(rand.Reader)
	expected := curve.NewScalar()
	for _, p := range polys {
		expected.Add(p.Evaluate(x))
	}
	assert.True(t, expected.ActOnBase().Equal(summed.Evaluate(x)))

	// Sum must not modify its inputs
	assert.True(t, polys[0].Evaluate(x).ActOnBase().Equal(exps[0].Evaluate(x)))
}

func TestExponent_Marshal(t *testing.T) {
	poly := polynomial.NewPolynomialExponent(polynomial.NewPolynomial(rand.Reader, 3, sample.Scalar(rand.Reader)))
	data, err := cbor.Marshal(poly)
	require.NoError(t, err)
	got := polynomial.EmptyExponent()
	require.NoError(t, cbor.Unmarshal(data, got))
	assert.True(t, poly.Equal(got))
}

func TestLagrange(t *testing.T) {
	secret := sample.Scalar(rand.Reader)
	poly := polynomial.NewPolynomial(rand.Reader, 2, secret)
	for _, ids := range []party.IDSlice{{1, 2, 3}, {2, 4, 7}, {1, 2, 3, 4, 5}} {
		coefficients := polynomial.Lagrange(ids)
		sum := curve.NewScalar()
		reconstructed := curve.NewScalar()
		for _, id := range ids {
			sum.Add(coefficients[id])
			share := poly.Evaluate(id.Scalar())
			reconstructed.Add(share.Mul(coefficients[id]))
		}
		assert.True(t, sum.Equal(curve.NewScalarUInt32(1)), "coefficients must sum to one")
		assert.True(t, reconstructed.Equal(secret))
		assert.True(t, polynomial.LagrangeSingle(ids, ids[0]).Equal(coefficients[ids[0]]))
	}
}

func TestPolynomial_Marshal(t *testing.T) {
	poly := polynomial.NewPolynomial(rand.Reader, 2, sample.Scalar(rand.Reader))
	data, err := poly.MarshalBinary()
	require.NoError(t, err)
	var got polynomial.Polynomial
	require.NoError(t, got.UnmarshalBinary(data))
	x := sample.Scalar(rand.Reader)
	assert.True(t, poly.Evaluate(x).Equal(got.Evaluate(x)))
}
