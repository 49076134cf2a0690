package psi

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// randomIdentifier returns a random alphanumeric identifier, adapted from
// the teacher's random test-fixture generator for use at session scale.
func randomIdentifier(length int) []byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, length)
	for i := range out {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		out[i] = alphabet[n.Int64()]
	}
	return out
}

const testSecurityBits = 256 // below MinModulusBits; NewParty2 raises it to MinModulusBits

func id(s string) []byte { return []byte(s) }

// runSession drives one full three-round exchange between a freshly built
// Party1 and Party2. The message structs are passed directly rather than
// serialized; TestWireRoundTrip below covers MarshalBinary/UnmarshalBinary
// for Round1Msg and Round3Msg.
func runSession(t *testing.T, p1Ids [][]byte, p2Pairs []Pair, vmax int64) (uint64, *big.Int) {
	t.Helper()
	ctx := context.Background()

	p1, err := NewParty1(p1Ids)
	require.NoError(t, err)
	defer p1.Close()

	p2, err := NewParty2(p2Pairs, big.NewInt(vmax), testSecurityBits)
	require.NoError(t, err)
	defer p2.Close()

	setup, err := p2.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, p1.AcceptSetup(setup))

	r1, err := p1.Round1(ctx)
	require.NoError(t, err)

	r2, err := p2.Round2(ctx, r1)
	require.NoError(t, err)

	r3, err := p1.Round3(ctx, r2)
	require.NoError(t, err)

	card, sum, err := p2.Finalize(ctx, r3)
	require.NoError(t, err)
	require.Equal(t, card, r3.Cardinality)
	return card, sum
}

func TestScenarioFullOverlap(t *testing.T) {
	ids := [][]byte{id("a"), id("b"), id("c")}
	pairs := []Pair{{ID: id("a"), Value: big.NewInt(10)}, {ID: id("b"), Value: big.NewInt(20)}, {ID: id("c"), Value: big.NewInt(30)}}
	card, sum := runSession(t, ids, pairs, 100)
	require.Equal(t, uint64(3), card)
	require.Equal(t, 0, big.NewInt(60).Cmp(sum))
}

func TestScenarioNoOverlap(t *testing.T) {
	ids := [][]byte{id("a"), id("b")}
	pairs := []Pair{{ID: id("x"), Value: big.NewInt(5)}, {ID: id("y"), Value: big.NewInt(7)}}
	card, sum := runSession(t, ids, pairs, 100)
	require.Equal(t, uint64(0), card)
	require.Equal(t, 0, big.NewInt(0).Cmp(sum))
}

func TestScenarioPartialOverlap(t *testing.T) {
	ids := [][]byte{id("a"), id("b"), id("z")}
	pairs := []Pair{{ID: id("a"), Value: big.NewInt(4)}, {ID: id("b"), Value: big.NewInt(6)}, {ID: id("q"), Value: big.NewInt(99)}}
	card, sum := runSession(t, ids, pairs, 100)
	require.Equal(t, uint64(2), card)
	require.Equal(t, 0, big.NewInt(10).Cmp(sum))
}

func TestScenarioEmptyP1Set(t *testing.T) {
	pairs := []Pair{{ID: id("a"), Value: big.NewInt(4)}}
	card, sum := runSession(t, nil, pairs, 100)
	require.Equal(t, uint64(0), card)
	require.Equal(t, 0, big.NewInt(0).Cmp(sum))
}

func TestScenarioEmptyP2Set(t *testing.T) {
	ids := [][]byte{id("a"), id("b")}
	card, sum := runSession(t, ids, nil, 100)
	require.Equal(t, uint64(0), card)
	require.Equal(t, 0, big.NewInt(0).Cmp(sum))
}

func TestScenarioValuesAtVMax(t *testing.T) {
	ids := [][]byte{id("a")}
	pairs := []Pair{{ID: id("a"), Value: big.NewInt(100)}}
	card, sum := runSession(t, ids, pairs, 100)
	require.Equal(t, uint64(1), card)
	require.Equal(t, 0, big.NewInt(100).Cmp(sum))
}

func TestDuplicateIdentifierRejected(t *testing.T) {
	_, err := NewParty1([][]byte{id("a"), id("a")})
	require.Error(t, err)
	require.True(t, IsKind(err, KindProtocolViolation))

	_, err = NewParty2([]Pair{{ID: id("a"), Value: big.NewInt(1)}, {ID: id("a"), Value: big.NewInt(2)}}, big.NewInt(10), testSecurityBits)
	require.Error(t, err)
	require.True(t, IsKind(err, KindProtocolViolation))
}

func TestValueAboveVMaxRejected(t *testing.T) {
	_, err := NewParty2([]Pair{{ID: id("a"), Value: big.NewInt(101)}}, big.NewInt(100), testSecurityBits)
	require.Error(t, err)
	require.True(t, IsKind(err, KindProtocolViolation))
}

func TestRoundsOutOfOrderRejected(t *testing.T) {
	ctx := context.Background()
	p1, err := NewParty1([][]byte{id("a")})
	require.NoError(t, err)
	defer p1.Close()

	_, err = p1.Round1(ctx)
	require.Error(t, err)
	require.True(t, IsKind(err, KindProtocolViolation))
}

func TestTamperedPointRejected(t *testing.T) {
	ctx := context.Background()
	p1, err := NewParty1([][]byte{id("a")})
	require.NoError(t, err)
	defer p1.Close()
	p2, err := NewParty2([]Pair{{ID: id("a"), Value: big.NewInt(1)}}, big.NewInt(10), testSecurityBits)
	require.NoError(t, err)
	defer p2.Close()

	setup, err := p2.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, p1.AcceptSetup(setup))
	r1, err := p1.Round1(ctx)
	require.NoError(t, err)
	r2, err := p2.Round2(ctx, r1)
	require.NoError(t, err)

	// Flip the SEC1 prefix byte: a flipped x-coordinate byte still decodes to
	// a valid curve point about half the time.
	r2.WPairs[0].Point[0] ^= 0xff
	_, err = p1.Round3(ctx, r2)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidPoint))
}

func TestTamperedCiphertextRejected(t *testing.T) {
	ctx := context.Background()
	p1, err := NewParty1([][]byte{id("a")})
	require.NoError(t, err)
	defer p1.Close()
	p2, err := NewParty2([]Pair{{ID: id("a"), Value: big.NewInt(1)}}, big.NewInt(10), testSecurityBits)
	require.NoError(t, err)
	defer p2.Close()

	setup, err := p2.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, p1.AcceptSetup(setup))
	r1, err := p1.Round1(ctx)
	require.NoError(t, err)
	r2, err := p2.Round2(ctx, r1)
	require.NoError(t, err)

	for i := range r2.WPairs[0].Ciphertext {
		r2.WPairs[0].Ciphertext[i] = 0
	}
	_, err = p1.Round3(ctx, r2)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCiphertext))
}

func TestCommutativityOfScalarMultiplication(t *testing.T) {
	g := defaultGroup()
	pt, err := g.HashToCurve(id("a"), []byte("0123456789abcdef"))
	require.NoError(t, err)

	a, err := g.RandScalar()
	require.NoError(t, err)
	b, err := g.RandScalar()
	require.NoError(t, err)

	ab, err := g.ScalarMul(pt, a)
	require.NoError(t, err)
	ab, err = g.ScalarMul(ab, b)
	require.NoError(t, err)

	ba, err := g.ScalarMul(pt, b)
	require.NoError(t, err)
	ba, err = g.ScalarMul(ba, a)
	require.NoError(t, err)

	require.Equal(t, 0, ab.X.Cmp(ba.X))
	require.Equal(t, 0, ab.Y.Cmp(ba.Y))
}

func TestFreshSeedsGiveIndependentMappings(t *testing.T) {
	g := defaultGroup()
	seed1, err := NewSeed()
	require.NoError(t, err)
	seed2, err := NewSeed()
	require.NoError(t, err)

	p1, err := g.HashToCurve(id("a"), seed1)
	require.NoError(t, err)
	p2, err := g.HashToCurve(id("a"), seed2)
	require.NoError(t, err)

	require.False(t, p1.X.Cmp(p2.X) == 0 && p1.Y.Cmp(p2.Y) == 0)
}

func TestRerandomizationUnlinkability(t *testing.T) {
	ctx := context.Background()
	ids := [][]byte{id("a")}
	pairs := []Pair{{ID: id("a"), Value: big.NewInt(1)}}

	var ciphertexts [][]byte
	for i := 0; i < 5; i++ {
		p1, err := NewParty1(ids)
		require.NoError(t, err)
		p2, err := NewParty2(pairs, big.NewInt(10), testSecurityBits)
		require.NoError(t, err)

		setup, err := p2.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, p1.AcceptSetup(setup))
		r1, err := p1.Round1(ctx)
		require.NoError(t, err)
		r2, err := p2.Round2(ctx, r1)
		require.NoError(t, err)
		r3, err := p1.Round3(ctx, r2)
		require.NoError(t, err)

		ciphertexts = append(ciphertexts, r3.Ciphertext)
		p1.Close()
		p2.Close()
	}

	for i := 0; i < len(ciphertexts); i++ {
		for j := i + 1; j < len(ciphertexts); j++ {
			require.NotEqual(t, ciphertexts[i], ciphertexts[j])
		}
	}
}

func TestScenarioLargeSetWithKnownOverlap(t *testing.T) {
	const n, overlap = 64, 17

	shared := make([][]byte, overlap)
	for i := range shared {
		shared[i] = randomIdentifier(12)
	}

	p1Ids := make([][]byte, 0, n)
	p1Ids = append(p1Ids, shared...)
	for i := len(shared); i < n; i++ {
		p1Ids = append(p1Ids, randomIdentifier(12))
	}

	pairs := make([]Pair, 0, n)
	var wantSum int64
	for _, s := range shared {
		v := int64(3)
		wantSum += v
		pairs = append(pairs, Pair{ID: s, Value: big.NewInt(v)})
	}
	for i := len(shared); i < n; i++ {
		pairs = append(pairs, Pair{ID: randomIdentifier(12), Value: big.NewInt(1)})
	}

	card, sum := runSession(t, p1Ids, pairs, 1000)
	require.Equal(t, uint64(overlap), card)
	require.Equal(t, 0, big.NewInt(wantSum).Cmp(sum))
}

func TestWireRoundTrip(t *testing.T) {
	r1 := &Round1Msg{Points: [][]byte{[]byte("abc"), []byte("defgh")}}
	data, err := r1.MarshalBinary()
	require.NoError(t, err)
	var got Round1Msg
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, r1.Points, got.Points)

	r3 := &Round3Msg{Cardinality: 7, Ciphertext: []byte("ciphertext-bytes")}
	data, err = r3.MarshalBinary()
	require.NoError(t, err)
	var gotR3 Round3Msg
	require.NoError(t, gotR3.UnmarshalBinary(data))
	require.Equal(t, r3.Cardinality, gotR3.Cardinality)
	require.Equal(t, r3.Ciphertext, gotR3.Ciphertext)
}
