package paillier

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// testKeyBits is far below MinModulusBits so the test suite's repeated
// keygen calls stay fast; production code always goes through KeyGen.
const testKeyBits = 256

func testKeyPair(t *testing.T) (*PublicKey, *PrivateKey) {
	t.Helper()
	pk, sk, err := keyGen(testKeyBits)
	require.NoError(t, err)
	return pk, sk
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pk, sk := testKeyPair(t)

	m := big.NewInt(42)
	c, err := Encrypt(pk, m)
	require.NoError(t, err)

	got, err := Decrypt(sk, c)
	require.NoError(t, err)
	require.Equal(t, 0, m.Cmp(got))
}

func TestEncryptIsProbabilistic(t *testing.T) {
	pk, _ := testKeyPair(t)

	m := big.NewInt(7)
	c1, err := Encrypt(pk, m)
	require.NoError(t, err)
	c2, err := Encrypt(pk, m)
	require.NoError(t, err)

	require.NotEqual(t, 0, c1.C.Cmp(c2.C))
}

func TestHomomorphicAdd(t *testing.T) {
	pk, sk := testKeyPair(t)

	a := big.NewInt(10)
	b := big.NewInt(32)
	ca, err := Encrypt(pk, a)
	require.NoError(t, err)
	cb, err := Encrypt(pk, b)
	require.NoError(t, err)

	sum, err := Add(pk, ca, cb)
	require.NoError(t, err)

	got, err := Decrypt(sk, sum)
	require.NoError(t, err)
	require.Equal(t, 0, big.NewInt(42).Cmp(got))
}

func TestRerandomizePreservesPlaintext(t *testing.T) {
	pk, sk := testKeyPair(t)

	m := big.NewInt(99)
	c, err := Encrypt(pk, m)
	require.NoError(t, err)

	r, err := Rerandomize(pk, c)
	require.NoError(t, err)
	require.NotEqual(t, 0, c.C.Cmp(r.C))

	got, err := Decrypt(sk, r)
	require.NoError(t, err)
	require.Equal(t, 0, m.Cmp(got))
}

func TestRerandomizeOfZeroStillDecryptsZero(t *testing.T) {
	pk, sk := testKeyPair(t)

	c, err := Encrypt(pk, big.NewInt(0))
	require.NoError(t, err)
	r, err := Rerandomize(pk, c)
	require.NoError(t, err)

	got, err := Decrypt(sk, r)
	require.NoError(t, err)
	require.Equal(t, 0, big.NewInt(0).Cmp(got))
}

func TestTamperedCiphertextRejectedOrStillDecrypts(t *testing.T) {
	pk, sk := testKeyPair(t)

	c, err := Encrypt(pk, big.NewInt(5))
	require.NoError(t, err)

	data, err := c.MarshalBinary()
	require.NoError(t, err)
	data[0] ^= 0xff

	tampered, err := UnmarshalCiphertext(pk, data)
	if err != nil {
		// detected at decode time; the negative-test contract is satisfied.
		require.ErrorIs(t, err, ErrInvalidCiphertext)
		return
	}
	_, err = Decrypt(sk, tampered)
	require.NoError(t, err) // a structurally valid element still decrypts to *some* plaintext
}

func TestPublicKeyMarshalRoundTrip(t *testing.T) {
	pk, _ := testKeyPair(t)

	data, err := pk.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalPublicKey(data)
	require.NoError(t, err)
	require.True(t, pk.Equal(got))
}

func TestEncryptRejectsOutOfRangePlaintext(t *testing.T) {
	pk, _ := testKeyPair(t)
	_, err := Encrypt(pk, new(big.Int).Neg(big.NewInt(1)))
	require.ErrorIs(t, err, ErrPlaintextRange)

	_, err = Encrypt(pk, pk.N)
	require.ErrorIs(t, err, ErrPlaintextRange)
}
