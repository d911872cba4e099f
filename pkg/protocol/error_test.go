package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/taurusgroup/frost-bridge/pkg/party"
)

func TestErrorKinds(t *testing.T) {
	err := NewError(KindCrypto, "sign.VerifyShare", ErrInvalidShare, 2)
	wrapped := fmt.Errorf("aggregator: %w", err)

	assert.Equal(t, KindCrypto, KindOf(wrapped))
	assert.Equal(t, []party.ID{2}, CulpritsOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrInvalidShare)
	assert.False(t, Retryable(wrapped))
	assert.Equal(t, "sign.VerifyShare: crypto: culprits [2]: invalid share", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewError(KindTransport, "rpc", errors.New("connection refused"))))
	assert.True(t, Retryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.False(t, Retryable(NewError(KindConfig, "signer", ErrParamsMismatch)))
	assert.False(t, Retryable(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestParseKind(t *testing.T) {
	for k := KindUnknown; k <= KindResource; k++ {
		assert.Equal(t, k, ParseKind(k.String()))
	}
	assert.Equal(t, KindUnknown, ParseKind("bogus"))
}
