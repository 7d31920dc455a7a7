package estimator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Provider 估算所需的链上只读能力，*ethclient.Client 直接满足
type Provider interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Estimator 并行估算所有候选调用
type Estimator struct {
	provider Provider
	timeout  time.Duration
	log      *zap.Logger
}

type Option func(*Estimator)

// WithTimeout 单个候选 (估算 + 模拟) 的超时时间
func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) { e.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Estimator) { e.log = l }
}

func New(provider Provider, opts ...Option) *Estimator {
	e := &Estimator{
		provider: provider,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate 对每个候选调用: 先 estimateGas，失败后用 eth_call 模拟以拿到 revert 原因。
// 结果与输入一一对应、顺序一致；等待全部完成后才返回。
// 调用方取消 ctx 不会中断已经发出的请求。
func (e *Estimator) Estimate(ctx context.Context, from common.Address, calls []types.Call) []types.EstimationOutcome {
	ctx = context.WithoutCancel(ctx)
	outcomes := make([]types.EstimationOutcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call types.Call) {
			defer wg.Done()
			outcomes[i] = e.estimateOne(ctx, from, call)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (e *Estimator) estimateOne(ctx context.Context, from common.Address, call types.Call) types.EstimationOutcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	msg := callMsg(from, call)

	gas, gasErr := e.provider.EstimateGas(ctx, msg)
	if gasErr == nil {
		return types.Estimated(call, gas)
	}

	e.log.Debug("Gas estimate failed, trying eth_call to extract error",
		zap.Stringer("call", call), zap.Error(gasErr))

	result, callErr := e.provider.CallContract(ctx, msg, nil)
	if callErr == nil {
		e.log.Debug("Unexpected successful call after failed estimate gas",
			zap.Stringer("call", call), zap.Error(gasErr), zap.String("result", hexutil.Encode(result)))
		return types.Failed(call, &InconsistentEstimationError{EstimateErr: gasErr})
	}

	e.log.Debug("Call threw error", zap.Stringer("call", call), zap.Error(callErr))
	if errors.Is(callErr, context.DeadlineExceeded) {
		// 模拟调用本身超时，拿不到 revert 原因
		return types.Failed(call, &EstimationError{Err: gasErr})
	}
	return types.Failed(call, &RevertError{Reason: RevertReason(callErr), Err: callErr})
}

func callMsg(from common.Address, call types.Call) ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From: from,
		To:   &call.Target,
		Data: call.Calldata,
	}
	if call.HasValue() {
		msg.Value = call.Value
	}
	return msg
}

// RevertReason 从 RPC 错误中还原 revert 原因。
// 节点返回 revert data 时按 Error(string) 解码，否则退回错误信息本身。
func RevertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason
		}
	}
	msg := err.Error()
	return strings.TrimPrefix(msg, "execution reverted: ")
}

func decodeRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}
