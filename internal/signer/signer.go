package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"overlay-core/internal/service/pipeline"
	"overlay-core/pkg/hdwallet"
	"overlay-core/pkg/keystore"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend 签名器需要的链上能力，*ethclient.Client 直接满足
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// RejectedError 用户在确认环节拒绝，ErrorCode 与 EIP-1193 一致
type RejectedError struct{}

func (RejectedError) Error() string  { return "user rejected transaction" }
func (RejectedError) ErrorCode() int { return pipeline.UserRejectedCode }

// ConfirmFunc 签名前的确认钩子，返回 false 视为用户拒绝
type ConfirmFunc func(ctx context.Context, tx pipeline.TxRequest) (bool, error)

var ErrWrongAccount = errors.New("signer does not control the sending account")

// LocalSigner 本地私钥签名并广播
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
	confirm ConfirmFunc
	log     *zap.Logger

	// 串行化发送，保证 nonce 连续
	mu        sync.Mutex
	nextNonce *uint64
}

type Option func(*LocalSigner)

func WithConfirm(fn ConfirmFunc) Option {
	return func(s *LocalSigner) { s.confirm = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *LocalSigner) { s.log = l }
}

func New(key *ecdsa.PrivateKey, chainID *big.Int, backend Backend, opts ...Option) *LocalSigner {
	s := &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromMnemonic 从助记词按路径派生私钥
func FromMnemonic(mnemonic, path string, chainID *big.Int, backend Backend, opts ...Option) (*LocalSigner, error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = hdwallet.DefaultPath
	}
	key, err := w.Derive(path)
	if err != nil {
		return nil, err
	}
	return New(key, chainID, backend, opts...), nil
}

// FromKeystore 解密 keystore 文件中的助记词再派生
func FromKeystore(file, password, path string, chainID *big.Int, backend Backend, opts ...Option) (*LocalSigner, error) {
	keyJSON, err := keystore.LoadFromFile(file)
	if err != nil {
		return nil, fmt.Errorf("加载 Keystore 失败: %w", err)
	}
	mnemonic, err := keystore.DecryptMnemonic(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("解密失败 (密码错误?): %w", err)
	}
	return FromMnemonic(mnemonic, path, chainID, backend, opts...)
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SendTransaction 确认 -> 填充 nonce/gas/fee -> 签名 -> 广播
func (s *LocalSigner) SendTransaction(ctx context.Context, req pipeline.TxRequest) (common.Hash, error) {
	if req.From != s.address {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrWrongAccount, req.From.Hex())
	}

	// 1. 用户确认
	if s.confirm != nil {
		ok, err := s.confirm(ctx, req)
		if err != nil {
			return common.Hash{}, fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			return common.Hash{}, RejectedError{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. 构造交易
	tx, err := s.buildTx(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}

	// 3. 签名
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	// 4. 广播
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		// nonce 状态不确定，下一次重新从节点获取
		s.nextNonce = nil
		return common.Hash{}, err
	}
	next := signed.Nonce() + 1
	s.nextNonce = &next

	s.log.Info("Transaction broadcast", zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", signed.Nonce()), zap.Uint64("gas", signed.Gas()))
	return signed.Hash(), nil
}

func (s *LocalSigner) buildTx(ctx context.Context, req pipeline.TxRequest) (*ethtypes.Transaction, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	if s.nextNonce != nil && *s.nextNonce > nonce {
		nonce = *s.nextNonce
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To

	var gasLimit uint64
	if req.GasLimit != nil {
		gasLimit = *req.GasLimit
	} else {
		gasLimit, err = s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Data: req.Data, Value: value})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get head: %w", err)
	}

	// 不支持 EIP-1559 的链退回 legacy 交易
	if head.BaseFee == nil {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     req.Data,
		}), nil
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip: %w", err)
	}
	// feeCap = 2 * baseFee + tip
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gasLimit,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      req.Data,
	}), nil
}
