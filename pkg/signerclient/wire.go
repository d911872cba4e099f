package signerclient

import (
	"errors"

	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
)

// ServiceName is the name under which Service is registered.
const ServiceName = "Signer"

// Args carries a CBOR encoded request.
type Args struct {
	Payload []byte `json:"payload"`
}

// Reply carries a CBOR encoded response, or the error returned by the signer.
type Reply struct {
	Payload []byte     `json:"payload,omitempty"`
	Error   *WireError `json:"error,omitempty"`
}

// WireError is a protocol.Error as sent over the network.
type WireError struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	// Sentinel is the text of a protocol sentinel error in the chain, if any.
	Sentinel string     `json:"sentinel,omitempty"`
	Culprits []party.ID `json:"culprits,omitempty"`
}

var sentinels = []error{
	protocol.ErrNonceConsumed,
	protocol.ErrAlreadyFinalized,
	protocol.ErrRoundOrder,
	protocol.ErrUnknownCeremony,
	protocol.ErrParamsMismatch,
	protocol.ErrMissingPackage,
	protocol.ErrInvalidShare,
	protocol.ErrPublicKeyMismatch,
}

func toWire(err error) *WireError {
	w := &WireError{
		Kind:    protocol.KindOf(err).String(),
		Message: err.Error(),
	}
	var e *protocol.Error
	if errors.As(err, &e) {
		w.Op = e.Op
		w.Culprits = e.Culprits
		if e.Err != nil {
			w.Message = e.Err.Error()
		}
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			w.Sentinel = s.Error()
			break
		}
	}
	return w
}

// remoteError keeps errors.Is working on sentinels across the network.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }

// Err rebuilds the *protocol.Error sent by the signer.
func (w *WireError) Err() error {
	inner := &remoteError{msg: w.Message}
	for _, s := range sentinels {
		if s.Error() == w.Sentinel {
			inner.sentinel = s
			break
		}
	}
	return protocol.NewError(protocol.ParseKind(w.Kind), w.Op, inner, w.Culprits...)
}
