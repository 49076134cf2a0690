package psi

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/psiproto/ddh-psi-sum/group"
)

// MinSeedBytes is the minimum length of a session seed, per the session
// parameters' ≥128-bit invariant.
const MinSeedBytes = 16

// NewSeed draws a fresh, cryptographically random per-session seed. Every
// new protocol execution must call this exactly once and share the result
// with the counterparty during setup; reusing a seed across sessions
// violates the session parameters' freshness invariant.
func NewSeed() ([]byte, error) {
	seed := make([]byte, MinSeedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}
	return seed, nil
}

// checkOverflow enforces invariant 5 of the session's data model: P2's
// plaintext values lie in [0, vmax] with n*vmax < plaintextModulus(pk2).
// Raised as KindOverflowRisk at setup, before any round runs, per §7.
func checkOverflow(n int, vmax *big.Int, plaintextModulus *big.Int) error {
	if vmax.Sign() < 0 {
		return wrap(KindOverflowRisk, errNegativeVMax)
	}
	bound := new(big.Int).Mul(big.NewInt(int64(n)), vmax)
	if bound.Cmp(plaintextModulus) >= 0 {
		return wrap(KindOverflowRisk, errSumExceedsModulus)
	}
	return nil
}

var (
	errNegativeVMax       = errNew("vmax must be non-negative")
	errSumExceedsModulus  = errNew("n * vmax is not safely below the plaintext modulus")
)

// errNew avoids importing "errors" twice across files for a single literal;
// kept here purely as a tiny local helper.
func errNew(msg string) error { return &staticError{msg} }

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }

// shuffle randomly permutes s in place using a cryptographically strong
// source, satisfying the session's "every transmitted collection is
// randomly permuted" invariant (Fisher-Yates with uniform indices drawn via
// crypto/rand by rejection sampling).
func shuffle[T any](s []T) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

func randIndex(n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	var buf [8]byte
	limit := (uint64(1) << 63) - (uint64(1)<<63)%uint64(n)
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, wrap(KindCryptoFailure, err)
		}
		v := binary.BigEndian.Uint64(buf[:]) &^ (uint64(1) << 63)
		if v < limit {
			return int(v % uint64(n)), nil
		}
	}
}

// defaultGroup is the DDH group fixed by the session parameters (P-256).
func defaultGroup() *group.Group { return group.P256() }
