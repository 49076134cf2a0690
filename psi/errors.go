package psi

import "errors"

// Kind classifies a protocol error. A Party1/Party2 round method that
// returns an error does not advance the party's state and does not zeroize
// its secrets; only Close does that.
type Kind int

const (
	// KindInvalidPoint: decode failed, identity point, or not of order q.
	KindInvalidPoint Kind = iota
	// KindInvalidCiphertext: homomorphic decode failed, or arithmetic
	// produced an invalid element.
	KindInvalidCiphertext
	// KindProtocolViolation: wrong message length, out-of-order round, or
	// a duplicate identifier in the caller's own input.
	KindProtocolViolation
	// KindCryptoFailure: RNG failure or underlying primitive error.
	KindCryptoFailure
	// KindOverflowRisk: n * vmax exceeds the safety margin below the
	// homomorphic cipher's plaintext modulus. Raised at setup, before any
	// round runs.
	KindOverflowRisk
)

func (k Kind) String() string {
	switch k {
	case KindInvalidPoint:
		return "invalid_point"
	case KindInvalidCiphertext:
		return "invalid_ciphertext"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindCryptoFailure:
		return "crypto_failure"
	case KindOverflowRisk:
		return "overflow_risk"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind that the HTTP transport
// (§2a), the error metrics, and the Kafka consumer's temporary-failure
// classification dispatch on.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return "psi: " + e.Kind.String()
	}
	return "psi: " + e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

// IsKind reports whether err (or an error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	// ErrDuplicateIdentifier is wrapped with KindProtocolViolation when a
	// party's own input set contains a repeated identifier.
	ErrDuplicateIdentifier = errors.New("psi: duplicate identifier in input set")
	// ErrOutOfOrder is wrapped with KindProtocolViolation when a round
	// method is invoked before its prerequisite round has completed.
	ErrOutOfOrder = errors.New("psi: round invoked out of order")
	// ErrSessionClosed is wrapped with KindProtocolViolation once a party
	// has been closed and its secrets zeroized.
	ErrSessionClosed = errors.New("psi: session already closed")
)
