package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"overlay-core/internal/service/builder"
	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/ledger"
	"overlay-core/internal/service/popup"
	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	account = common.HexToAddress("0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e")
	market  = common.HexToAddress("0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01")
	token   = common.HexToAddress("0x4305C4Bc521B052F17d389c2Fe9d37caBeB70d54")
	txHash  = common.HexToHash("0x1234")
)

// provider 以 calldata 决定估算结果，nil gas 表示估算失败
type provider struct {
	mu      sync.Mutex
	gas     func(msg ethereum.CallMsg) (uint64, error)
	callErr error
	calls   int
}

func (p *provider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.gas(msg)
}

func (p *provider) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	return nil, nil
}

type signer struct {
	mu   sync.Mutex
	sent []TxRequest
	hash common.Hash
	err  error
}

func (s *signer) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, tx)
	if s.err != nil {
		return common.Hash{}, s.err
	}
	return s.hash, nil
}

// rejectedErr 模拟钱包返回的 EIP-1193 错误
type rejectedErr struct{}

func (rejectedErr) Error() string  { return "user rejected transaction" }
func (rejectedErr) ErrorCode() int { return UserRejectedCode }

type sink struct {
	mu  sync.Mutex
	got []popup.Notification
}

func (s *sink) Notify(ctx context.Context, n popup.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(uint64, common.Hash, common.Address, types.TransactionInfo) error {
	return errors.New("db unavailable")
}

type fixture struct {
	provider *provider
	signer   *signer
	ledger   *ledger.Ledger
	popups   *sink
	pipeline *Pipeline
	session  Session
}

func newFixture(gas func(ethereum.CallMsg) (uint64, error)) *fixture {
	f := &fixture{
		provider: &provider{gas: gas},
		signer:   &signer{hash: txHash},
		ledger:   ledger.New(),
		popups:   &sink{},
	}
	f.pipeline = New(estimator.New(f.provider), f.ledger, WithPopupSink(f.popups))
	chainID := uint64(42161)
	f.session = Session{Account: &account, ChainID: &chainID, Signer: f.signer}
	return f
}

func fixedGas(g uint64) func(ethereum.CallMsg) (uint64, error) {
	return func(ethereum.CallMsg) (uint64, error) { return g, nil }
}

func failingGas(ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("gas required exceeds allowance")
}

func buildIntent(value string) builder.BuildIntent {
	return builder.BuildIntent{
		Market:     market,
		TypedValue: value,
		Leverage:   "2",
		IsLong:     true,
		Slippage:   "1",
		Prices:     &builder.MarketPrices{Bid: big.NewInt(1e18), Ask: big.NewInt(1e18)},
	}
}

func TestScenarioEmptyInputIsInvalid(t *testing.T) {
	f := newFixture(fixedGas(21000))

	cb := f.pipeline.BuildCallback(f.session, buildIntent(""))
	assert.Equal(t, StateInvalid, cb.State)
	assert.Nil(t, cb.Run)
	assert.NotEmpty(t, cb.Error)
	assert.Empty(t, builder.Build(buildIntent(""), builder.Context{Account: f.session.Account, ChainID: f.session.ChainID}))
}

func TestScenarioSuccessfulBuildRegistersLedger(t *testing.T) {
	f := newFixture(fixedGas(21000))

	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))
	require.Equal(t, StateValid, cb.State)
	require.NotNil(t, cb.Run)

	hash, err := cb.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, txHash, hash)

	require.Len(t, f.signer.sent, 1)
	sent := f.signer.sent[0]
	require.NotNil(t, sent.GasLimit)
	assert.Equal(t, estimator.MarginedGas(21000, estimator.DefaultMarginBps), *sent.GasLimit)
	assert.Equal(t, uint64(25200), *sent.GasLimit)
	assert.Equal(t, market, sent.To)
	assert.Equal(t, account, sent.From)
	assert.Nil(t, sent.Value)

	rec, ok := f.ledger.Get(*f.session.ChainID, hash)
	require.True(t, ok)
	assert.Equal(t, types.TransactionTypeBuild, rec.Info.Type())
	assert.Equal(t, account, rec.From)
	assert.Empty(t, f.popups.got)
}

func TestScenarioRevertStopsBeforeSubmission(t *testing.T) {
	f := newFixture(failingGas)
	f.provider.callErr = errors.New("execution reverted: INSUFFICIENT_COLLATERAL")

	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))
	require.Equal(t, StateValid, cb.State)

	_, err := cb.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_COLLATERAL", err.Error())
	assert.Empty(t, f.signer.sent)
	assert.Empty(t, f.ledger.All(*f.session.ChainID))
}

func TestScenarioUserRejection(t *testing.T) {
	f := newFixture(fixedGas(21000))
	f.signer.err = rejectedErr{}

	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))
	_, err := cb.Run(context.Background())

	var rejected *UserRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Transaction rejected.", err.Error())
	assert.True(t, IsUserRejected(err))

	require.Len(t, f.popups.got, 1)
	assert.False(t, f.popups.got[0].Success)
	assert.Equal(t, types.TransactionTypeBuild, f.popups.got[0].Info.Type())
	assert.Empty(t, f.ledger.All(*f.session.ChainID))
}

func TestSubmissionFailureCarriesCall(t *testing.T) {
	f := newFixture(fixedGas(21000))
	f.signer.err = errors.New("nonce too low")

	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))
	_, err := cb.Run(context.Background())

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, market, subErr.Call.Target)
	assert.False(t, IsUserRejected(err))
	require.Len(t, f.popups.got, 1)
	assert.Empty(t, f.ledger.All(*f.session.ChainID))
}

func TestInconsistentEstimation(t *testing.T) {
	f := newFixture(failingGas)

	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))
	_, err := cb.Run(context.Background())

	var inconsistent *estimator.InconsistentEstimationError
	require.ErrorAs(t, err, &inconsistent)
	assert.Empty(t, f.signer.sent)
}

func TestMissingDependencies(t *testing.T) {
	f := newFixture(fixedGas(21000))

	cases := map[string]Session{
		"account": {ChainID: f.session.ChainID, Signer: f.signer},
		"chain":   {Account: f.session.Account, Signer: f.signer},
		"signer":  {Account: f.session.Account, ChainID: f.session.ChainID},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			cb := f.pipeline.BuildCallback(s, buildIntent("10"))
			assert.Equal(t, StateInvalid, cb.State)
			assert.Equal(t, MissingDependencies, cb.Error)
			assert.Nil(t, cb.Run)
		})
	}

	cb := f.pipeline.Callback(f.session, nil)
	assert.Equal(t, StateInvalid, cb.State)
}

func TestNilPointerIntentIsInvalid(t *testing.T) {
	f := newFixture(fixedGas(21000))

	intents := []builder.Intent{
		(*builder.BuildIntent)(nil),
		(*builder.UnwindIntent)(nil),
		(*builder.BridgeIntent)(nil),
		(*builder.ApprovalIntent)(nil),
	}
	for _, in := range intents {
		var cb Callback
		require.NotPanics(t, func() { cb = f.pipeline.Callback(f.session, in) })
		assert.Equal(t, StateInvalid, cb.State)
		assert.Equal(t, MissingDependencies, cb.Error)
		assert.Nil(t, cb.Run)
	}
	assert.Empty(t, f.signer.sent)
}

func TestLoadingWhileAwaitingMarketData(t *testing.T) {
	f := newFixture(fixedGas(21000))
	in := buildIntent("10")
	in.Prices = nil

	cb := f.pipeline.BuildCallback(f.session, in)
	assert.Equal(t, StateLoading, cb.State)
	assert.Nil(t, cb.Run)
}

func TestUnwindAndBridgeRegisterTheirTypes(t *testing.T) {
	isLong := true
	unwind := builder.UnwindIntent{
		Market:        market,
		PositionID:    big.NewInt(7),
		UnwindValue:   "50",
		IsLong:        &isLong,
		PositionValue: big.NewInt(1e18),
		Prices:        &builder.MarketPrices{Bid: big.NewInt(1e18), Ask: big.NewInt(1e18)},
	}
	f := newFixture(fixedGas(50000))
	hash, err := f.pipeline.UnwindCallback(f.session, unwind).Run(context.Background())
	require.NoError(t, err)
	rec, _ := f.ledger.Get(*f.session.ChainID, hash)
	assert.Equal(t, types.TransactionTypeUnwind, rec.Info.Type())

	bridge := builder.BridgeIntent{Token: token, DstChainID: 101, Amount: "3", NativeFee: big.NewInt(12345)}
	f = newFixture(fixedGas(80000))
	hash, err = f.pipeline.BridgeCallback(f.session, bridge).Run(context.Background())
	require.NoError(t, err)
	rec, _ = f.ledger.Get(*f.session.ChainID, hash)
	assert.Equal(t, types.TransactionTypeBridge, rec.Info.Type())
	assert.Equal(t, big.NewInt(12345), f.signer.sent[0].Value)
}

func TestApprovalFallsBackToExactAmount(t *testing.T) {
	maxApprove := func(msg ethereum.CallMsg) (uint64, error) {
		// calldata 末尾 32 字节是 amount
		amount := new(big.Int).SetBytes(msg.Data[len(msg.Data)-32:])
		if amount.Cmp(math.MaxBig256) == 0 {
			return 0, errors.New("restricted token")
		}
		return 46000, nil
	}
	f := newFixture(maxApprove)
	in := builder.ApprovalIntent{Token: token, Spender: market, Amount: big.NewInt(5e18)}

	hash, err := f.pipeline.ApproveCallback(f.session, in).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.signer.sent, 1)
	amount := new(big.Int).SetBytes(f.signer.sent[0].Data[len(f.signer.sent[0].Data)-32:])
	assert.Equal(t, big.NewInt(5e18), amount)
	assert.Equal(t, 2, f.provider.calls)

	assert.True(t, f.ledger.HasPendingApproval(*f.session.ChainID, token, market))
	_, ok := f.ledger.Get(*f.session.ChainID, hash)
	assert.True(t, ok)
}

func TestRegistrationFailureStillReturnsHash(t *testing.T) {
	f := newFixture(fixedGas(21000))
	p := New(estimator.New(f.provider), failingRecorder{})

	hash, err := p.BuildCallback(f.session, buildIntent("10")).Run(context.Background())
	assert.Equal(t, txHash, hash)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, txHash, regErr.Hash)
}

func TestDuplicateHashSurfacesLedgerInvariant(t *testing.T) {
	f := newFixture(fixedGas(21000))
	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))

	_, err := cb.Run(context.Background())
	require.NoError(t, err)

	// 签名器返回了相同的 hash，账本拒绝重复登记
	_, err = cb.Run(context.Background())
	var inv *ledger.InvariantError
	require.ErrorAs(t, err, &inv)
}

func TestRunIgnoresCancellation(t *testing.T) {
	f := newFixture(fixedGas(21000))
	cb := f.pipeline.BuildCallback(f.session, buildIntent("10"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hash, err := cb.Run(ctx)
	require.NoError(t, err)
	_, ok := f.ledger.Get(*f.session.ChainID, hash)
	assert.True(t, ok)
}
