// Package group implements the DDH group operations used by the PSI-SUM
// protocol: deterministic hash-to-curve, scalar multiplication, and
// compressed point encode/decode over NIST P-256.
//
// The hash-to-curve construction is the Simplified SWU encoding (Brier et
// al., "Efficient Indifferentiable Hashing into Ordinary Elliptic Curves"),
// ported from the reference system's SWU method rather than its
// try-and-increment encoding: a single-pass mapping with no retry loop. The
// arithmetic uses math/big and branches on whether g(x1) is a square, so it
// is not constant-time. It assumes a=-3 and p=3 mod 4, true of all NIST
// prime curves.
package group

import (
	"crypto"
	"crypto/elliptic"
	"crypto/rand"
	_ "crypto/sha256" // registers crypto.SHA256 for hashToBaseField
	"errors"
	"io"
	"math/big"
)

var (
	ErrInvalidPoint     = errors.New("group: marshaled point is invalid")
	ErrPointOffCurve    = errors.New("group: point is not on the curve")
	ErrIdentityPoint    = errors.New("group: point is the identity element")
	ErrPointAtInfinity  = errors.New("group: hash-to-curve encountered a degenerate field element")
	ErrShortRandomBytes = errors.New("group: short read from random source")
)

// hashSeedDST is the domain-separation tag mixed into the hash-to-curve
// input ahead of the per-session seed, mirroring the fixed ANSI X9.62 point
// generation seed the reference system hashes ahead of token material.
var hashSeedDST = []byte("psi-sum v1 hash-to-curve DST")

// Group is the DDH group the PSI-SUM protocol runs in: the P-256 curve's
// prime-order subgroup, together with a fixed hash function used both for
// hash-to-curve and for domain separation.
type Group struct {
	curve elliptic.Curve
	hash  crypto.Hash
}

// P256 returns the DDH group over NIST P-256 (secp256r1), the curve named
// in the session parameters.
func P256() *Group {
	return &Group{curve: elliptic.P256(), hash: crypto.SHA256}
}

// Curve exposes the underlying elliptic.Curve, e.g. to read its order q.
func (g *Group) Curve() elliptic.Curve { return g.curve }

// Order returns q, the order of the prime-order subgroup.
func (g *Group) Order() *big.Int { return g.curve.Params().N }

// Point is an element of the group's prime-order subgroup, or the special
// identity value represented by nil coordinates (never produced by
// HashToCurve, and rejected by Decode).
type Point struct {
	X, Y *big.Int
}

func (p *Point) isIdentity() bool {
	return p == nil || p.X == nil || p.Y == nil || (p.X.Sign() == 0 && p.Y.Sign() == 0)
}

// IsOnCurve reports whether p lies on the group's curve.
func (g *Group) IsOnCurve(p *Point) bool {
	if p.isIdentity() {
		return false
	}
	return g.curve.IsOnCurve(p.X, p.Y)
}

func fieldByteLen(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) >> 3
}

// Scalar is a secret exponent drawn uniformly from [1, q-1]. It is always
// session-scoped: callers must call Zeroize when the session ends.
type Scalar struct {
	v *big.Int
}

// RandScalar draws a uniform scalar in [1, q-1] using the group's curve
// order, rejection-sampling to avoid the modular bias of a naive
// big.Int.Mod reduction (same technique the reference system uses for
// blinding factors and VOPRF scalars).
func (g *Group) RandScalar() (*Scalar, error) {
	N := g.curve.Params().N
	bitLen := N.BitLen()
	byteLen := (bitLen + 7) >> 3
	buf := make([]byte, byteLen)
	mask := byte(0xff) >> (8 - uint(bitLen%8))
	if bitLen%8 == 0 {
		mask = 0xff
	}

	for {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return nil, ErrShortRandomBytes
		}
		buf[0] &= mask
		v := new(big.Int).SetBytes(buf)
		if v.Sign() == 0 || v.Cmp(N) >= 0 {
			continue
		}
		return &Scalar{v: v}, nil
	}
}

// ScalarFromBytes interprets buf as a big-endian integer and reduces it
// into [1, q-1]. Used only for deterministic test vectors; production
// scalars always come from RandScalar.
func (g *Group) ScalarFromBytes(buf []byte) *Scalar {
	v := new(big.Int).SetBytes(buf)
	v.Mod(v, g.curve.Params().N)
	if v.Sign() == 0 {
		v.SetInt64(1)
	}
	return &Scalar{v: v}
}

// Zeroize overwrites the scalar's backing storage. Go's garbage collector
// does not guarantee the old big.Int words are unreachable until the next
// collection, but this removes the only live reference and bounds the
// window during which the secret is reachable from the Scalar value.
func (s *Scalar) Zeroize() {
	if s == nil || s.v == nil {
		return
	}
	s.v.SetInt64(0)
	s.v = nil
}

// HashToCurve deterministically maps identifier, under the per-session
// seed, to a point of the prime-order subgroup. Two calls with identical
// (identifier, seed) always yield the same point; distinct seeds give
// independent mappings. The identity element is never returned — on the
// negligible-probability degenerate field element, the caller should treat
// the identifier as unmappable (ErrPointAtInfinity), which cannot occur for
// a seed and identifier drawn from any reasonable distribution.
func (g *Group) HashToCurve(identifier, seed []byte) (*Point, error) {
	t, err := g.hashToBaseField(identifier, seed)
	if err != nil {
		return nil, err
	}
	return g.simplifiedSWU(t)
}

func (g *Group) hashToBaseField(identifier, seed []byte) (*big.Int, error) {
	byteLen := fieldByteLen(g.curve)
	h := g.hash.New()
	h.Write(hashSeedDST)
	h.Write(seed)
	h.Write(identifier)
	sum := h.Sum(nil)
	t := new(big.Int).SetBytes(sum[:byteLen])
	t.Mod(t, g.curve.Params().P)
	return t, nil
}

// simplifiedSWU implements the Brier et al. encoding for curves with a=-3
// and p=3 mod 4 (true of P-256), following the same derivation the
// reference system uses for its SWU hash-to-curve method.
func (g *Group) simplifiedSWU(t *big.Int) (*Point, error) {
	var u, t0, y2, bDivA, y big.Int
	params := g.curve.Params()
	p := params.P
	A := big.NewInt(-3)
	B := params.B

	bDivA.ModInverse(A, p)
	bDivA.Mul(&bDivA, B)
	bDivA.Neg(&bDivA)
	bDivA.Mod(&bDivA, p)

	pPlus1Div4 := new(big.Int).Add(p, big.NewInt(1))
	pPlus1Div4.Rsh(pPlus1Div4, 2)

	u.Mul(t, t)
	u.Neg(&u)
	u.Mod(&u, p)

	t0.Mul(&u, &u)
	t0.Add(&t0, &u)
	t0.Mod(&t0, p)
	if t0.Sign() == 0 {
		return nil, ErrPointAtInfinity
	}
	t0.ModInverse(&t0, p)

	x := new(big.Int).SetInt64(1)
	x.Add(x, &t0)
	x.Mul(x, &bDivA)
	x.Mod(x, p)

	gVal := new(big.Int).Mul(x, x)
	gVal.Mod(gVal, p)
	gVal.Add(gVal, A)
	gVal.Mul(gVal, x)
	gVal.Mod(gVal, p)
	gVal.Add(gVal, B)
	gVal.Mod(gVal, p)

	y.Exp(gVal, pPlus1Div4, p)
	y2.Mul(&y, &y)
	y2.Mod(&y2, p)
	if y2.Cmp(gVal) != 0 {
		x.Mul(x, &u)
		x.Mod(x, p)
		y.Mul(&y, &u)
		y.Mul(&y, t)
		y.Neg(&y)
		y.Mod(&y, p)
	}

	if !g.curve.IsOnCurve(x, &y) {
		return nil, ErrPointOffCurve
	}
	return &Point{X: x, Y: &y}, nil
}

// ScalarMul multiplies p by k, returning a new point. It rejects the
// identity element and any point not on the group's curve.
func (g *Group) ScalarMul(p *Point, k *Scalar) (*Point, error) {
	if p.isIdentity() {
		return nil, ErrIdentityPoint
	}
	if !g.curve.IsOnCurve(p.X, p.Y) {
		return nil, ErrPointOffCurve
	}
	x, y := g.curve.ScalarMult(p.X, p.Y, k.v.Bytes())
	if (x.Sign() == 0 && y.Sign() == 0) || !g.curve.IsOnCurve(x, y) {
		return nil, ErrIdentityPoint
	}
	return &Point{X: x, Y: y}, nil
}

// Encode produces the SEC1-compressed representation of p (33 bytes for
// P-256).
func (g *Group) Encode(p *Point) []byte {
	byteLen := fieldByteLen(g.curve)
	out := make([]byte, 1+byteLen)
	out[0] = byte(2 + p.Y.Bit(0))
	p.X.FillBytes(out[1:])
	return out
}

// Decode parses a SEC1-compressed point and validates that it is on-curve
// and not the identity element.
func (g *Group) Decode(data []byte) (*Point, error) {
	byteLen := fieldByteLen(g.curve)
	if len(data) != byteLen+1 {
		return nil, ErrInvalidPoint
	}
	if data[0] != 0x02 && data[0] != 0x03 {
		return nil, ErrInvalidPoint
	}
	fieldOrder := g.curve.Params().P
	x := new(big.Int).SetBytes(data[1:])
	if x.Cmp(fieldOrder) >= 0 {
		return nil, ErrInvalidPoint
	}

	// y^2 = x^3 - 3x + b (mod p)
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	rhs.Sub(rhs, threeX)
	rhs.Add(rhs, g.curve.Params().B)
	rhs.Mod(rhs, fieldOrder)

	y := new(big.Int).ModSqrt(rhs, fieldOrder)
	if y == nil {
		return nil, ErrInvalidPoint
	}
	sign := data[0] & 1
	if sign != byte(y.Bit(0)) {
		y.Sub(fieldOrder, y)
	}

	p := &Point{X: x, Y: y}
	if !g.curve.IsOnCurve(x, y) {
		return nil, ErrInvalidPoint
	}
	if p.isIdentity() {
		return nil, ErrIdentityPoint
	}
	return p, nil
}
