package psi

import (
	"context"
	"encoding/hex"
	"math/big"

	"github.com/psiproto/ddh-psi-sum/group"
	"github.com/psiproto/ddh-psi-sum/paillier"
	"github.com/psiproto/ddh-psi-sum/pool"
)

type party1State int

const (
	party1Init party1State = iota
	party1SetupDone
	party1Round1Done
	party1Done
	party1Closed
)

// Party1 holds the identifier-only side of a PSI-SUM session: it learns the
// cardinality of the intersection. It sums P2's matched values only under
// encryption and cannot decrypt the result; P2 decrypts it in Finalize.
type Party1 struct {
	g             *group.Group
	concurrency   int
	identifiers   [][]byte
	k1            *group.Scalar
	seed          []byte
	pk2           *paillier.PublicKey
	roundOnePoint map[int][]byte // encoded k1-exponentiated points, by input index, before shuffling
	state         party1State
}

// NewParty1 constructs a Party1 over the given identifier set. Identifiers
// must be pairwise distinct; a repeat is a caller bug, reported as
// KindProtocolViolation rather than silently deduplicated.
func NewParty1(identifiers [][]byte) (*Party1, error) {
	if err := rejectDuplicates(identifiers); err != nil {
		return nil, err
	}
	ids := make([][]byte, len(identifiers))
	copy(ids, identifiers)
	return &Party1{
		g:           defaultGroup(),
		concurrency: pool.DefaultConcurrency,
		identifiers: ids,
		state:       party1Init,
	}, nil
}

// SetConcurrency overrides the worker pool width used for per-element round
// operations. Safe to call only before Round1.
func (p *Party1) SetConcurrency(n int) { p.concurrency = n }

// AcceptSetup consumes P2's out-of-band setup message: the shared
// hash-to-curve seed and P2's homomorphic public key.
func (p *Party1) AcceptSetup(msg *SetupMsg) error {
	if p.state != party1Init {
		return wrap(KindProtocolViolation, ErrOutOfOrder)
	}
	if len(msg.Seed) < MinSeedBytes {
		return wrap(KindProtocolViolation, errNew("setup seed too short"))
	}
	pk2, err := paillier.UnmarshalPublicKey(msg.PublicKey)
	if err != nil {
		return wrap(KindInvalidCiphertext, err)
	}
	p.seed = append([]byte(nil), msg.Seed...)
	p.pk2 = pk2
	p.state = party1SetupDone
	return nil
}

// Round1 hashes and blinds every identifier with P1's secret exponent k1,
// shuffles the result, and returns it for transmission to P2.
func (p *Party1) Round1(ctx context.Context) (*Round1Msg, error) {
	if p.state != party1SetupDone {
		return nil, wrap(KindProtocolViolation, ErrOutOfOrder)
	}
	k1, err := p.g.RandScalar()
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}
	p.k1 = k1

	encoded, err := pool.Map(ctx, p.concurrency, p.identifiers, func(_ context.Context, _ int, id []byte) ([]byte, error) {
		pt, err := p.g.HashToCurve(id, p.seed)
		if err != nil {
			return nil, wrap(KindInvalidPoint, err)
		}
		blinded, err := p.g.ScalarMul(pt, p.k1)
		if err != nil {
			return nil, wrap(KindInvalidPoint, err)
		}
		return p.g.Encode(blinded), nil
	})
	if err != nil {
		return nil, err
	}

	if err := shuffle(encoded); err != nil {
		return nil, err
	}
	p.state = party1Round1Done
	return &Round1Msg{Points: encoded}, nil
}

// Round3 consumes P2's round-2 message, recovers the matching ciphertexts
// by re-exponentiating P2's blinded identifiers with k1 and comparing
// against the doubly-blinded set Z, sums the matches homomorphically,
// always rerandomizes the result (even for an empty intersection), and
// returns the message for P2 to decrypt.
func (p *Party1) Round3(ctx context.Context, msg *Round2Msg) (*Round3Msg, error) {
	if p.state != party1Round1Done {
		return nil, wrap(KindProtocolViolation, ErrOutOfOrder)
	}

	zSet := make(map[string]struct{}, len(msg.Z.Points))
	for _, enc := range msg.Z.Points {
		zSet[hex.EncodeToString(enc)] = struct{}{}
	}

	type candidate struct {
		matched bool
		ct      *paillier.Ciphertext
	}
	results, err := pool.Map(ctx, p.concurrency, msg.WPairs, func(_ context.Context, _ int, wp WirePair) (candidate, error) {
		pt, err := p.g.Decode(wp.Point)
		if err != nil {
			return candidate{}, wrap(KindInvalidPoint, err)
		}
		doubled, err := p.g.ScalarMul(pt, p.k1)
		if err != nil {
			return candidate{}, wrap(KindInvalidPoint, err)
		}
		_, isMatch := zSet[hex.EncodeToString(p.g.Encode(doubled))]
		if !isMatch {
			return candidate{matched: false}, nil
		}
		ct, err := paillier.UnmarshalCiphertext(p.pk2, wp.Ciphertext)
		if err != nil {
			return candidate{}, wrap(KindInvalidCiphertext, err)
		}
		return candidate{matched: true, ct: ct}, nil
	})
	if err != nil {
		return nil, err
	}

	sum, err := paillier.Encrypt(p.pk2, big.NewInt(0))
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}
	var cardinality uint64
	for _, r := range results {
		if !r.matched {
			continue
		}
		cardinality++
		sum, err = paillier.Add(p.pk2, sum, r.ct)
		if err != nil {
			return nil, wrap(KindInvalidCiphertext, err)
		}
	}

	// Mandatory rerandomization: the wire ciphertext must be indistinguishable
	// from a fresh encryption regardless of cardinality, including zero.
	sum, err = paillier.Rerandomize(p.pk2, sum)
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}

	ctBytes, err := sum.MarshalBinary()
	if err != nil {
		return nil, wrap(KindCryptoFailure, err)
	}

	p.state = party1Done
	return &Round3Msg{Cardinality: cardinality, Ciphertext: ctBytes}, nil
}

// Close zeroizes P1's secret exponent. Safe to call multiple times.
func (p *Party1) Close() {
	if p.state == party1Closed {
		return
	}
	p.k1.Zeroize()
	p.state = party1Closed
}

func rejectDuplicates(identifiers [][]byte) error {
	seen := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		key := string(id)
		if _, ok := seen[key]; ok {
			return wrap(KindProtocolViolation, ErrDuplicateIdentifier)
		}
		seen[key] = struct{}{}
	}
	return nil
}
