package psi

import (
	"context"
	"math/big"

	"github.com/psiproto/ddh-psi-sum/group"
	"github.com/psiproto/ddh-psi-sum/paillier"
	"github.com/psiproto/ddh-psi-sum/pool"
)

type party2State int

const (
	party2Init party2State = iota
	party2Begun
	party2Round2Done
	party2Done
	party2Closed
)

// Pair is one of P2's (identifier, value) records.
type Pair struct {
	ID    []byte
	Value *big.Int
}

// Party2 holds the (identifier, value) side of a PSI-SUM session: it learns
// the sum of its values over the intersection (and the cardinality P1
// reports), but nothing about P1's non-matching identifiers. P1 sees P2's
// values only as ciphertexts.
type Party2 struct {
	g              *group.Group
	concurrency    int
	pairs          []Pair
	vmax           *big.Int
	securityBits   int
	k2             *group.Scalar
	seed           []byte
	pk2            *paillier.PublicKey
	sk2            *paillier.PrivateKey
	state          party2State
}

// NewParty2 constructs a Party2 over the given (identifier, value) set.
// vmax bounds every value (0 <= value <= vmax); securityBits sizes the
// Paillier modulus generated in Begin (paillier.MinModulusBits or greater).
// Identifiers must be pairwise distinct and every value must lie in
// [0, vmax], or the session is rejected before any round runs.
func NewParty2(pairs []Pair, vmax *big.Int, securityBits int) (*Party2, error) {
	ids := make([][]byte, len(pairs))
	for i, pr := range pairs {
		ids[i] = pr.ID
		if pr.Value == nil || pr.Value.Sign() < 0 || pr.Value.Cmp(vmax) > 0 {
			return nil, wrap(KindProtocolViolation, errNew("value out of [0, vmax] range"))
		}
	}
	if err := rejectDuplicates(ids); err != nil {
		return nil, err
	}
	if securityBits < paillier.MinModulusBits {
		securityBits = paillier.MinModulusBits
	}

	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return &Party2{
		g:            defaultGroup(),
		concurrency:  pool.DefaultConcurrency,
		pairs:        cp,
		vmax:         new(big.Int).Set(vmax),
		securityBits: securityBits,
		state:        party2Init,
	}, nil
}

// SetConcurrency overrides the worker pool width used for per-element round
// operations. Safe to call only before Round2.
func (p *Party2) SetConcurrency(n int) { p.concurrency = n }

// Begin generates P2's per-session secrets — the hash-to-curve seed and the
// Paillier key pair — and returns the out-of-band setup message for P1.
// It also enforces the overflow invariant: n*vmax must stay safely below
// the generated key's plaintext modulus.
func (p *Party2) Begin(ctx context.Context) (*SetupMsg, error) {
	if p.state != party2Init {
		return nil, wrap(KindProtocolViolation, ErrOutOfOrder)
	}

	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	pk2, sk2, err := paillier.KeyGen(p.securityBits)
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}
	if err := checkOverflow(len(p.pairs), p.vmax, pk2.N); err != nil {
		return nil, err
	}

	k2, err := p.g.RandScalar()
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}

	p.seed, p.pk2, p.sk2, p.k2 = seed, pk2, sk2, k2

	pkBytes, err := pk2.MarshalBinary()
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}
	p.state = party2Begun
	return &SetupMsg{Seed: seed, PublicKey: pkBytes}, nil
}

// Round2 re-exponentiates P1's round-1 points with k2 to produce Z, and
// builds P2's own (blinded identifier, encrypted value) pairs. Both
// collections are independently shuffled before return.
func (p *Party2) Round2(ctx context.Context, msg *Round1Msg) (*Round2Msg, error) {
	if p.state != party2Begun {
		return nil, wrap(KindProtocolViolation, ErrOutOfOrder)
	}

	zPoints, err := pool.Map(ctx, p.concurrency, msg.Points, func(_ context.Context, _ int, enc []byte) ([]byte, error) {
		pt, err := p.g.Decode(enc)
		if err != nil {
			return nil, wrap(KindInvalidPoint, err)
		}
		doubled, err := p.g.ScalarMul(pt, p.k2)
		if err != nil {
			return nil, wrap(KindInvalidPoint, err)
		}
		return p.g.Encode(doubled), nil
	})
	if err != nil {
		return nil, err
	}
	if err := shuffle(zPoints); err != nil {
		return nil, err
	}

	wPairs, err := pool.Map(ctx, p.concurrency, p.pairs, func(_ context.Context, _ int, pr Pair) (WirePair, error) {
		pt, err := p.g.HashToCurve(pr.ID, p.seed)
		if err != nil {
			return WirePair{}, wrap(KindInvalidPoint, err)
		}
		blinded, err := p.g.ScalarMul(pt, p.k2)
		if err != nil {
			return WirePair{}, wrap(KindInvalidPoint, err)
		}
		ct, err := paillier.Encrypt(p.pk2, pr.Value)
		if err != nil {
			return WirePair{}, wrap(KindCryptoFailure, err)
		}
		ctBytes, err := ct.MarshalBinary()
		if err != nil {
			return WirePair{}, wrap(KindCryptoFailure, err)
		}
		return WirePair{Point: p.g.Encode(blinded), Ciphertext: ctBytes}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := shuffle(wPairs); err != nil {
		return nil, err
	}

	p.state = party2Round2Done
	return &Round2Msg{Z: Round1Msg{Points: zPoints}, WPairs: wPairs}, nil
}

// Finalize decrypts P1's round-3 message, returning the cardinality of the
// intersection and the sum of P2's values over the matched identifiers.
func (p *Party2) Finalize(ctx context.Context, msg *Round3Msg) (uint64, *big.Int, error) {
	if p.state != party2Round2Done {
		return 0, nil, wrap(KindProtocolViolation, ErrOutOfOrder)
	}
	ct, err := paillier.UnmarshalCiphertext(p.pk2, msg.Ciphertext)
	if err != nil {
		return 0, nil, wrap(KindInvalidCiphertext, err)
	}
	sum, err := paillier.Decrypt(p.sk2, ct)
	if err != nil {
		return 0, nil, wrap(KindInvalidCiphertext, err)
	}
	p.state = party2Done
	return msg.Cardinality, sum, nil
}

// Close zeroizes P2's secret exponent and private key material. Safe to
// call multiple times.
func (p *Party2) Close() {
	if p.state == party2Closed {
		return
	}
	p.k2.Zeroize()
	if p.sk2 != nil {
		p.sk2.Lambda.SetInt64(0)
		p.sk2.Mu.SetInt64(0)
	}
	p.state = party2Closed
}
