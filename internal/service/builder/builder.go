package builder

import (
	"errors"
	"fmt"
	"math/big"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// ErrAwaitingMarketData 意图本身完整，但依赖的行情/手续费数据还没加载完
var ErrAwaitingMarketData = errors.New("market data not loaded")

// PreconditionError 构造调用的前置条件不满足
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &PreconditionError{Field: field}
}

func invalid(field, reason string) error {
	return &PreconditionError{Field: field, Reason: reason}
}

// Validate 检查意图的前置条件；返回 nil 表示 Build 会产生非空候选列表
func Validate(intent Intent, ctx Context) error {
	_, err := lower(intent, ctx)
	return err
}

// Build 把意图转换为候选调用列表 (按优先级排列)。
// 前置条件不满足时返回空列表而不是错误。
func Build(intent Intent, ctx Context) []types.Call {
	calls, err := lower(intent, ctx)
	if err != nil {
		return nil
	}
	return calls
}

func lower(intent Intent, ctx Context) ([]types.Call, error) {
	if IsNil(intent) {
		return nil, missing("intent")
	}
	if ctx.Account == nil || *ctx.Account == (common.Address{}) {
		return nil, missing("account")
	}
	if ctx.ChainID == nil || *ctx.ChainID == 0 {
		return nil, missing("chain")
	}

	switch in := intent.(type) {
	case ApprovalIntent:
		return lowerApproval(in)
	case *ApprovalIntent:
		return lowerApproval(*in)
	case BuildIntent:
		return lowerBuild(in)
	case *BuildIntent:
		return lowerBuild(*in)
	case UnwindIntent:
		return lowerUnwind(in)
	case *UnwindIntent:
		return lowerUnwind(*in)
	case BridgeIntent:
		return lowerBridge(in, *ctx.Account)
	case *BridgeIntent:
		return lowerBridge(*in, *ctx.Account)
	default:
		return nil, invalid("intent", fmt.Sprintf("unsupported intent %T", intent))
	}
}

func lowerApproval(in ApprovalIntent) ([]types.Call, error) {
	if in.Token == (common.Address{}) {
		return nil, missing("token")
	}
	if in.Spender == (common.Address{}) {
		return nil, missing("spender")
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return nil, missing("amount")
	}

	amount := math.MaxBig256
	if in.Exact {
		amount = in.Amount
	}
	data, err := erc20ABI.Pack("approve", in.Spender, amount)
	if err != nil {
		return nil, invalid("approval", err.Error())
	}
	return []types.Call{types.NewCall(in.Token, data, nil)}, nil
}

func lowerBuild(in BuildIntent) ([]types.Call, error) {
	if in.Market == (common.Address{}) {
		return nil, missing("market")
	}
	collateral, ok := parseInput(in.TypedValue)
	if !ok || !collateral.IsPositive() {
		return nil, invalid("collateral", "expected a positive amount")
	}
	leverage, ok := parseInput(in.Leverage)
	if !ok || leverage.LessThan(decimal.NewFromInt(1)) {
		return nil, invalid("leverage", "expected a value >= 1")
	}
	slippage, err := parseSlippage(in.Slippage)
	if err != nil {
		return nil, err
	}
	if in.Prices == nil || in.Prices.Bid == nil || in.Prices.Ask == nil {
		return nil, ErrAwaitingMarketData
	}

	// 做多时按 ask 上浮，做空时按 bid 下浮
	var priceLimit *big.Int
	if in.IsLong {
		priceLimit = applySlippage(in.Prices.Ask, slippage, true)
	} else {
		priceLimit = applySlippage(in.Prices.Bid, slippage, false)
	}

	data, err := marketABI.Pack("build", parseUnits(collateral), parseUnits(leverage), in.IsLong, priceLimit)
	if err != nil {
		return nil, invalid("build", err.Error())
	}
	return []types.Call{types.NewCall(in.Market, data, nil)}, nil
}

func lowerUnwind(in UnwindIntent) ([]types.Call, error) {
	if in.Market == (common.Address{}) {
		return nil, missing("market")
	}
	if in.PositionID == nil {
		return nil, missing("positionId")
	}
	shares, ok := parseInput(in.UnwindValue)
	if !ok {
		return nil, invalid("unwindValue", "expected a percentage")
	}
	if !shares.IsPositive() || shares.GreaterThan(hundred) {
		return nil, invalid("unwindValue", "expected a percentage in (0, 100]")
	}
	if in.IsLong == nil {
		return nil, missing("isLong")
	}
	if in.PositionValue == nil {
		return nil, ErrAwaitingMarketData
	}
	slippage, err := parseSlippage(in.Slippage)
	if err != nil {
		return nil, err
	}
	if in.Prices == nil || in.Prices.Bid == nil || in.Prices.Ask == nil {
		return nil, ErrAwaitingMarketData
	}

	// 平多按 bid 下浮，平空按 ask 上浮
	var priceLimit *big.Int
	if *in.IsLong {
		priceLimit = applySlippage(in.Prices.Bid, slippage, false)
	} else {
		priceLimit = applySlippage(in.Prices.Ask, slippage, true)
	}
	fraction := parseUnits(shares.Div(hundred))

	data, err := marketABI.Pack("unwind", in.PositionID, fraction, priceLimit)
	if err != nil {
		return nil, invalid("unwind", err.Error())
	}
	return []types.Call{types.NewCall(in.Market, data, nil)}, nil
}

func lowerBridge(in BridgeIntent, account common.Address) ([]types.Call, error) {
	if in.Token == (common.Address{}) {
		return nil, missing("bridge")
	}
	if in.DstChainID == 0 {
		return nil, missing("destination chain")
	}
	amount, ok := parseInput(in.Amount)
	if !ok || !amount.IsPositive() {
		return nil, invalid("amount", "expected a positive amount")
	}
	if in.NativeFee == nil {
		return nil, ErrAwaitingMarketData
	}

	params := in.AdapterParams
	if params == nil {
		params = []byte{}
	}
	data, err := oftABI.Pack("sendFrom",
		account,
		in.DstChainID,
		account.Bytes(),
		parseUnits(amount),
		account,
		common.Address{},
		params,
	)
	if err != nil {
		return nil, invalid("bridge", err.Error())
	}
	return []types.Call{types.NewCall(in.Token, data, in.NativeFee)}, nil
}

func parseSlippage(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	slippage, ok := parseInput(s)
	if !ok || slippage.IsNegative() || slippage.GreaterThanOrEqual(hundred) {
		return decimal.Zero, invalid("slippage", "expected a percentage in [0, 100)")
	}
	return slippage, nil
}

// Info 生成写入账本的意图元数据
func Info(intent Intent, ctx Context) types.TransactionInfo {
	if IsNil(intent) {
		return nil
	}
	switch in := intent.(type) {
	case ApprovalIntent:
		return types.ApprovalInfo{TokenAddress: in.Token, Spender: in.Spender}
	case *ApprovalIntent:
		return Info(*in, ctx)
	case BuildIntent:
		return types.BuildInfo{Market: in.Market, Collateral: in.TypedValue, IsLong: in.IsLong, Leverage: in.Leverage}
	case *BuildIntent:
		return Info(*in, ctx)
	case UnwindIntent:
		return types.UnwindInfo{PositionID: types.BigString(in.PositionID), Shares: in.UnwindValue}
	case *UnwindIntent:
		return Info(*in, ctx)
	case BridgeIntent:
		info := types.BridgeInfo{Token: in.Token, DstChainID: in.DstChainID, Amount: in.Amount}
		if ctx.ChainID != nil {
			info.SrcChainID = *ctx.ChainID
		}
		return info
	case *BridgeIntent:
		return Info(*in, ctx)
	default:
		return nil
	}
}
