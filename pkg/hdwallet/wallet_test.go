package hdwallet

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveKnownAddress(t *testing.T) {
	w, err := NewFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	addr, err := w.Address(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", addr.Hex())

	// h 与 ' 等价
	alt, err := w.Address("m/44h/60h/0h/0/0")
	require.NoError(t, err)
	assert.Equal(t, addr, alt)

	next, err := w.Address("m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, addr, next)
}

func TestPublicKeyMatchesPrivateKey(t *testing.T) {
	w, err := NewFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	priv, err := w.Derive(DefaultPath)
	require.NoError(t, err)
	pub, err := w.PublicKey(DefaultPath)
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(priv.PublicKey), crypto.PubkeyToAddress(*pub.ToECDSA()))
	assert.Len(t, pub.SerializeCompressed(), 33)
}

func TestInvalidInputs(t *testing.T) {
	_, err := NewFromMnemonic("not a mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = NewFromSeed([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = ParsePath("m/44'/abc")
	assert.Error(t, err)
}

func TestParsePath(t *testing.T) {
	idx, err := ParsePath("m/44'/60'/0'/0/3")
	require.NoError(t, err)
	assert.Equal(t, []uint32{
		44 + hdkeychain.HardenedKeyStart,
		60 + hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart,
		0,
		3,
	}, idx)

	idx, err = ParsePath("m")
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic(128)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)
	assert.True(t, ValidateMnemonic(m))

	m, err = GenerateMnemonic(256)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 24)
}
