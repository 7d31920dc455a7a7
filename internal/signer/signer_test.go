package signer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"overlay-core/internal/service/pipeline"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type backend struct {
	nonce   uint64
	baseFee *big.Int
	sent    []*ethtypes.Transaction
	sendErr error
	gas     uint64
}

func (b *backend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return b.nonce, nil }
func (b *backend) SuggestGasPrice(context.Context) (*big.Int, error)              { return big.NewInt(5e9), nil }
func (b *backend) SuggestGasTipCap(context.Context) (*big.Int, error)             { return big.NewInt(1e9), nil }
func (b *backend) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(100), BaseFee: b.baseFee}, nil
}
func (b *backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return b.gas, nil }
func (b *backend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

var chainID = big.NewInt(42161)

func newTestSigner(t *testing.T, b *backend, opts ...Option) *LocalSigner {
	t.Helper()
	s, err := FromMnemonic(testMnemonic, "", chainID, b, opts...)
	require.NoError(t, err)
	return s
}

func request(s *LocalSigner, gas *uint64) pipeline.TxRequest {
	return pipeline.TxRequest{
		From:     s.Address(),
		To:       common.HexToAddress("0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01"),
		Data:     []byte{0xde, 0xad},
		GasLimit: gas,
	}
}

func TestSendDynamicFeeTransaction(t *testing.T) {
	b := &backend{nonce: 3, baseFee: big.NewInt(2e9)}
	s := newTestSigner(t, b)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", s.Address().Hex())

	gas := uint64(25200)
	hash, err := s.SendTransaction(context.Background(), request(s, &gas))
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, gas, tx.Gas())
	assert.Equal(t, big.NewInt(5e9), tx.GasFeeCap())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSendLegacyAndEstimatesGas(t *testing.T) {
	b := &backend{gas: 60000}
	s := newTestSigner(t, b)

	_, err := s.SendTransaction(context.Background(), request(s, nil))
	require.NoError(t, err)
	tx := b.sent[0]
	assert.Equal(t, uint8(ethtypes.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.Equal(t, big.NewInt(5e9), tx.GasPrice())
}

func TestNonceAdvancesLocally(t *testing.T) {
	b := &backend{nonce: 7, baseFee: big.NewInt(1)}
	s := newTestSigner(t, b)
	gas := uint64(21000)

	_, err := s.SendTransaction(context.Background(), request(s, &gas))
	require.NoError(t, err)
	// 节点的 pending nonce 还没更新
	_, err = s.SendTransaction(context.Background(), request(s, &gas))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), b.sent[0].Nonce())
	assert.Equal(t, uint64(8), b.sent[1].Nonce())
}

func TestConfirmRejection(t *testing.T) {
	b := &backend{baseFee: big.NewInt(1)}
	s := newTestSigner(t, b, WithConfirm(func(context.Context, pipeline.TxRequest) (bool, error) {
		return false, nil
	}))
	gas := uint64(21000)

	_, err := s.SendTransaction(context.Background(), request(s, &gas))
	require.Error(t, err)
	assert.True(t, pipeline.IsUserRejected(err))
	assert.Empty(t, b.sent)
}

func TestWrongAccount(t *testing.T) {
	b := &backend{baseFee: big.NewInt(1)}
	s := newTestSigner(t, b)
	req := request(s, nil)
	req.From = common.HexToAddress("0x01")

	_, err := s.SendTransaction(context.Background(), req)
	assert.ErrorIs(t, err, ErrWrongAccount)
}

func TestBroadcastFailureResetsNonce(t *testing.T) {
	b := &backend{nonce: 1, baseFee: big.NewInt(1), sendErr: errors.New("replacement transaction underpriced")}
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := New(key, chainID, b)
	gas := uint64(21000)

	_, err = s.SendTransaction(context.Background(), request(s, &gas))
	require.Error(t, err)
	assert.False(t, pipeline.IsUserRejected(err))
	assert.Nil(t, s.nextNonce)
}
