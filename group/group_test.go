package group

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashToCurveDeterministic(t *testing.T) {
	g := P256()
	seed := []byte("seed-one")

	p1, err := g.HashToCurve([]byte("user1"), seed)
	require.NoError(t, err)
	p2, err := g.HashToCurve([]byte("user1"), seed)
	require.NoError(t, err)

	require.True(t, bytes.Equal(g.Encode(p1), g.Encode(p2)))
	require.True(t, g.IsOnCurve(p1))
}

func TestHashToCurveSeedIndependence(t *testing.T) {
	g := P256()
	p1, err := g.HashToCurve([]byte("user1"), []byte("seed-a"))
	require.NoError(t, err)
	p2, err := g.HashToCurve([]byte("user1"), []byte("seed-b"))
	require.NoError(t, err)

	require.False(t, bytes.Equal(g.Encode(p1), g.Encode(p2)))
}

func TestHashToCurveDifferentIdentifiers(t *testing.T) {
	g := P256()
	seed := []byte("seed-one")
	p1, err := g.HashToCurve([]byte("user1"), seed)
	require.NoError(t, err)
	p2, err := g.HashToCurve([]byte("user2"), seed)
	require.NoError(t, err)

	require.False(t, bytes.Equal(g.Encode(p1), g.Encode(p2)))
}

func TestScalarMulCommutative(t *testing.T) {
	g := P256()
	p, err := g.HashToCurve([]byte("user1"), []byte("seed"))
	require.NoError(t, err)

	a, err := g.RandScalar()
	require.NoError(t, err)
	b, err := g.RandScalar()
	require.NoError(t, err)

	ab, err := g.ScalarMul(p, a)
	require.NoError(t, err)
	ab, err = g.ScalarMul(ab, b)
	require.NoError(t, err)

	ba, err := g.ScalarMul(p, b)
	require.NoError(t, err)
	ba, err = g.ScalarMul(ba, a)
	require.NoError(t, err)

	require.True(t, bytes.Equal(g.Encode(ab), g.Encode(ba)))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := P256()
	p, err := g.HashToCurve([]byte("user1"), []byte("seed"))
	require.NoError(t, err)

	encoded := g.Encode(p)
	decoded, err := g.Decode(encoded)
	require.NoError(t, err)
	require.True(t, bytes.Equal(g.Encode(decoded), encoded))
}

func TestDecodeRejectsTamperedPoint(t *testing.T) {
	g := P256()
	p, err := g.HashToCurve([]byte("user1"), []byte("seed"))
	require.NoError(t, err)

	encoded := g.Encode(p)
	encoded[len(encoded)-1] ^= 0xff

	_, err = g.Decode(encoded)
	require.Error(t, err)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	g := P256()
	_, err := g.Decode([]byte{0x02, 0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidPoint)
}

func TestRandScalarInRange(t *testing.T) {
	g := P256()
	for i := 0; i < 32; i++ {
		s, err := g.RandScalar()
		require.NoError(t, err)
		require.True(t, s.v.Sign() > 0)
		require.True(t, s.v.Cmp(g.Order()) < 0)
	}
}
