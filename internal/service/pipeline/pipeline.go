package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"overlay-core/internal/service/builder"
	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/popup"
	"overlay-core/internal/types"
	"overlay-core/pkg/monitor"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// State 回调的可用状态
type State string

const (
	StateInvalid State = "INVALID"
	StateLoading State = "LOADING"
	StateValid   State = "VALID"
)

const (
	stageInvalid    = "invalid"
	stageReady      = "ready"
	stageEstimating = "estimating"
	stageSubmitted  = "submitted"
)

// TxRequest 交给签名器的交易；GasLimit 为空时由签名器自行估算
type TxRequest struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit *uint64
}

// Signer 签名并广播，返回交易 hash
type Signer interface {
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// Session 调用方的账户、链与签名器，任何一项为空时回调都是 Invalid
type Session struct {
	Account *common.Address
	ChainID *uint64
	Signer  Signer
}

// Callback 某个意图当前是否可以提交。只有 Valid 时 Run 非空。
type Callback struct {
	State State
	Run   func(ctx context.Context) (common.Hash, error)
	Error string
}

// Estimator *estimator.Estimator 满足
type Estimator interface {
	Estimate(ctx context.Context, from common.Address, calls []types.Call) []types.EstimationOutcome
}

// Recorder *ledger.Ledger 满足
type Recorder interface {
	Record(chainID uint64, hash common.Hash, from common.Address, info types.TransactionInfo) error
}

// Pipeline 把意图变成已广播并登记在账本里的交易。
// 本身无状态，同一意图的并发调用由调用方去重。
type Pipeline struct {
	estimator     Estimator
	ledger        Recorder
	popups        popup.Sink
	marginBps     uint64
	submitTimeout time.Duration
	log           *zap.Logger
}

type Option func(*Pipeline)

func WithPopupSink(s popup.Sink) Option {
	return func(p *Pipeline) { p.popups = s }
}

func WithMarginBps(bps uint64) Option {
	return func(p *Pipeline) { p.marginBps = bps }
}

// WithSubmitTimeout 签名 + 广播的超时，0 表示不限
func WithSubmitTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.submitTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

func New(est Estimator, ledger Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{
		estimator: est,
		ledger:    ledger,
		marginBps: estimator.DefaultMarginBps,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) BuildCallback(s Session, in builder.BuildIntent) Callback {
	return p.Callback(s, in)
}

func (p *Pipeline) UnwindCallback(s Session, in builder.UnwindIntent) Callback {
	return p.Callback(s, in)
}

func (p *Pipeline) BridgeCallback(s Session, in builder.BridgeIntent) Callback {
	return p.Callback(s, in)
}

func (p *Pipeline) ApproveCallback(s Session, in builder.ApprovalIntent) Callback {
	return p.Callback(s, in)
}

// Callback 校验 session 与意图，返回当前状态；Valid 时附带可执行的 Run
func (p *Pipeline) Callback(s Session, intent builder.Intent) Callback {
	if builder.IsNil(intent) || s.Account == nil || s.ChainID == nil || s.Signer == nil {
		p.stage(intent, stageInvalid, zap.String("reason", MissingDependencies))
		return Callback{State: StateInvalid, Error: MissingDependencies}
	}

	bctx := builder.Context{Account: s.Account, ChainID: s.ChainID}
	if err := builder.Validate(intent, bctx); err != nil {
		if errors.Is(err, builder.ErrAwaitingMarketData) {
			return Callback{State: StateLoading, Error: err.Error()}
		}
		p.stage(intent, stageInvalid, zap.String("reason", err.Error()))
		return Callback{State: StateInvalid, Error: err.Error()}
	}

	return Callback{
		State: StateValid,
		Run: func(ctx context.Context) (common.Hash, error) {
			return p.run(ctx, s, intent, bctx)
		},
	}
}

func (p *Pipeline) run(ctx context.Context, s Session, intent builder.Intent, bctx builder.Context) (common.Hash, error) {
	// 一旦开始估算就不再响应取消，广播出去的交易必须登记
	ctx = context.WithoutCancel(ctx)
	account, chainID := *s.Account, *s.ChainID
	info := builder.Info(intent, bctx)
	kind := string(intent.Kind())

	// 1. Ready
	calls := builder.Build(intent, bctx)
	if len(calls) == 0 {
		return common.Hash{}, fmt.Errorf("no candidate calls for %s", kind)
	}
	p.stage(intent, stageReady, zap.Int("candidates", len(calls)))

	// 2. Estimating
	chosen, err := p.estimate(ctx, account, calls, intent)
	if err != nil {
		if approval, ok := exactApprovalFallback(intent); ok {
			p.log.Info("Max approval failed estimation, retrying with exact amount",
				zap.String("token", approval.Token.Hex()), zap.Error(err))
			chosen, err = p.estimate(ctx, account, builder.Build(approval, bctx), approval)
		}
	}
	if err != nil {
		monitor.Failure(kind, failureKind(err))
		p.log.Warn("Estimation failed", zap.String("intent", kind),
			zap.String("account", account.Hex()), zap.Error(err))
		return common.Hash{}, err
	}

	// 3. Submit
	hash, err := p.submit(ctx, s.Signer, account, chosen)
	if err != nil {
		if IsUserRejected(err) {
			// 用户主动拒绝，不是系统故障
			monitor.Failure(kind, "rejected")
			p.log.Info("Transaction rejected by user", zap.String("intent", kind), zap.String("account", account.Hex()))
			p.notify(ctx, account, chainID, info)
			return common.Hash{}, &UserRejectedError{Err: err}
		}
		monitor.Failure(kind, "submission")
		p.log.Error("Transaction submission failed", zap.String("intent", kind),
			zap.Stringer("call", chosen.Call), zap.Error(err))
		p.notify(ctx, account, chainID, info)
		return common.Hash{}, &SubmissionError{Call: chosen.Call, Err: err}
	}
	p.stage(intent, stageSubmitted, zap.String("hash", hash.Hex()), zap.Uint64("chain_id", chainID))

	// 4. 登记到账本，必须在返回 hash 之前完成
	if err := p.ledger.Record(chainID, hash, account, info); err != nil {
		monitor.Failure(kind, "registration")
		p.log.Error("Ledger registration failed", zap.String("hash", hash.Hex()),
			zap.Uint64("chain_id", chainID), zap.Error(err))
		return hash, &RegistrationError{Hash: hash, Err: err}
	}
	return hash, nil
}

func (p *Pipeline) estimate(ctx context.Context, from common.Address, calls []types.Call, intent builder.Intent) (types.ChosenCall, error) {
	p.stage(intent, stageEstimating)
	start := time.Now()
	outcomes := p.estimator.Estimate(ctx, from, calls)
	monitor.ObserveEstimate(string(intent.Kind()), time.Since(start).Seconds())
	return estimator.Select(outcomes, p.marginBps)
}

func (p *Pipeline) submit(ctx context.Context, signer Signer, from common.Address, chosen types.ChosenCall) (common.Hash, error) {
	if p.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.submitTimeout)
		defer cancel()
	}
	req := TxRequest{
		From:     from,
		To:       chosen.Call.Target,
		Data:     chosen.Call.Calldata,
		GasLimit: chosen.GasLimit,
	}
	if chosen.Call.HasValue() {
		req.Value = chosen.Call.Value
	}
	return signer.SendTransaction(ctx, req)
}

func (p *Pipeline) notify(ctx context.Context, account common.Address, chainID uint64, info types.TransactionInfo) {
	if p.popups == nil {
		return
	}
	err := p.popups.Notify(ctx, popup.Notification{
		Account: account.Hex(),
		ChainID: chainID,
		Success: false,
		Info:    info,
	})
	if err != nil {
		p.log.Warn("Popup notify failed", zap.Error(err))
	}
}

func (p *Pipeline) stage(intent builder.Intent, stage string, fields ...zap.Field) {
	kind := "unknown"
	if !builder.IsNil(intent) {
		kind = string(intent.Kind())
	}
	monitor.Stage(kind, stage)
	p.log.Debug("Pipeline stage", append([]zap.Field{zap.String("intent", kind), zap.String("stage", stage)}, fields...)...)
}

// exactApprovalFallback 部分代币不支持 MaxUint256 授权，退回精确数量
func exactApprovalFallback(intent builder.Intent) (builder.ApprovalIntent, bool) {
	var in builder.ApprovalIntent
	switch v := intent.(type) {
	case builder.ApprovalIntent:
		in = v
	case *builder.ApprovalIntent:
		in = *v
	default:
		return in, false
	}
	if in.Exact || in.Amount == nil || in.Amount.Sign() <= 0 {
		return in, false
	}
	in.Exact = true
	return in, true
}

func failureKind(err error) string {
	var revert *estimator.RevertError
	var inconsistent *estimator.InconsistentEstimationError
	switch {
	case errors.As(err, &revert):
		return "revert"
	case errors.As(err, &inconsistent):
		return "inconsistent"
	case errors.Is(err, estimator.ErrNoOutcomes):
		return "no_outcomes"
	default:
		return "estimation"
	}
}
