package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/taurusgroup/frost-bridge/pkg/party"
)

// Kind classifies an Error so that callers can decide between retrying and aborting.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfig covers threshold or participant mismatches and unknown identifiers. Never retried.
	KindConfig
	// KindTransport covers timeouts and connection failures to one participant. Retried a bounded number of times.
	KindTransport
	// KindMissingData covers incomplete package sets.
	KindMissingData
	// KindCrypto covers malformed packages, invalid shares and diverging public keys. Always aborts.
	KindCrypto
	// KindProtocol covers misuse of the round state machine, such as a consumed nonce.
	KindProtocol
	// KindResource covers storage failures.
	KindResource
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindConfig:      "config",
	KindTransport:   "transport",
	KindMissingData: "missing_data",
	KindCrypto:      "crypto",
	KindProtocol:    "protocol",
	KindResource:    "resource",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

var (
	ErrNonceConsumed     = errors.New("signing nonces already consumed")
	ErrAlreadyFinalized  = errors.New("key already finalized for this identity")
	ErrRoundOrder        = errors.New("round requested out of order")
	ErrUnknownCeremony   = errors.New("unknown ceremony")
	ErrParamsMismatch    = errors.New("threshold parameters mismatch")
	ErrMissingPackage    = errors.New("missing package")
	ErrInvalidShare      = errors.New("invalid share")
	ErrPublicKeyMismatch = errors.New("public key packages differ")
)

// Error is a custom error for protocols which contains information about the operation in which it occurred,
// its kind, and the parties responsible.
type Error struct {
	Kind Kind
	// Op is the operation in which the error occurred, e.g. "signer.DkgRound2"
	Op string
	// Culprits is empty if the identity of the misbehaving party cannot be known
	Culprits []party.ID
	// Err is the underlying error
	Err error
}

// NewError returns an *Error of the given kind.
func NewError(kind Kind, op string, err error, culprits ...party.ID) *Error {
	return &Error{Kind: kind, Op: op, Culprits: culprits, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if len(e.Culprits) > 0 {
		b.WriteString(": culprits ")
		b.WriteString(party.IDSlice(e.Culprits).String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
//
// Context deadlines and cancellations are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if isContextError(err) {
		return KindTransport
	}
	return KindUnknown
}

// CulpritsOf returns the culprits of the first *Error in err's chain.
func CulpritsOf(err error) []party.ID {
	var e *Error
	if errors.As(err, &e) {
		return e.Culprits
	}
	return nil
}

// Retryable returns true if err is a transport failure.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}
