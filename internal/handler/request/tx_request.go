package request

import (
	"fmt"
	"math/big"

	"overlay-core/internal/service/builder"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// 数值字段都是十进制字符串: 数量类 (collateral / amount) 是带小数的 token 单位，
// id / price / fee 类是链上的整数原值

type PricesRequest struct {
	Bid string `json:"bid" binding:"required"`
	Ask string `json:"ask" binding:"required"`
}

type ApproveRequest struct {
	ChainID uint64 `json:"chain_id" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount"` // wei，空表示未知
	Exact   bool   `json:"exact"`
	Force   bool   `json:"force"` // 跳过额度与待确认检查
}

type BuildRequest struct {
	ChainID    uint64         `json:"chain_id" binding:"required"`
	Market     string         `json:"market" binding:"required"`
	Collateral string         `json:"collateral"`
	Leverage   string         `json:"leverage"`
	IsLong     bool           `json:"is_long"`
	Slippage   string         `json:"slippage"`
	Prices     *PricesRequest `json:"prices"`
}

type UnwindRequest struct {
	ChainID       uint64         `json:"chain_id" binding:"required"`
	Market        string         `json:"market" binding:"required"`
	PositionID    string         `json:"position_id"`
	UnwindValue   string         `json:"unwind_value"` // 百分比
	IsLong        *bool          `json:"is_long"`
	PositionValue string         `json:"position_value"`
	Slippage      string         `json:"slippage"`
	Prices        *PricesRequest `json:"prices"`
}

type BridgeRequest struct {
	ChainID       uint64 `json:"chain_id" binding:"required"`
	Token         string `json:"token" binding:"required"`
	DstChainID    uint16 `json:"dst_chain_id"`
	Amount        string `json:"amount"`
	NativeFee     string `json:"native_fee"`
	AdapterParams string `json:"adapter_params"` // 0x 前缀 hex
}

func (r ApproveRequest) Intent() (builder.ApprovalIntent, error) {
	var in builder.ApprovalIntent
	var err error
	if in.Token, err = parseAddress("token", r.Token); err != nil {
		return in, err
	}
	if in.Spender, err = parseAddress("spender", r.Spender); err != nil {
		return in, err
	}
	if in.Amount, err = parseInt("amount", r.Amount); err != nil {
		return in, err
	}
	in.Exact = r.Exact
	return in, nil
}

func (r BuildRequest) Intent() (builder.BuildIntent, error) {
	in := builder.BuildIntent{
		TypedValue: r.Collateral,
		Leverage:   r.Leverage,
		IsLong:     r.IsLong,
		Slippage:   r.Slippage,
	}
	var err error
	if in.Market, err = parseAddress("market", r.Market); err != nil {
		return in, err
	}
	in.Prices, err = r.Prices.toPrices()
	return in, err
}

func (r UnwindRequest) Intent() (builder.UnwindIntent, error) {
	in := builder.UnwindIntent{
		UnwindValue: r.UnwindValue,
		IsLong:      r.IsLong,
		Slippage:    r.Slippage,
	}
	var err error
	if in.Market, err = parseAddress("market", r.Market); err != nil {
		return in, err
	}
	if in.PositionID, err = parseInt("position_id", r.PositionID); err != nil {
		return in, err
	}
	if in.PositionValue, err = parseInt("position_value", r.PositionValue); err != nil {
		return in, err
	}
	in.Prices, err = r.Prices.toPrices()
	return in, err
}

func (r BridgeRequest) Intent() (builder.BridgeIntent, error) {
	in := builder.BridgeIntent{
		DstChainID: r.DstChainID,
		Amount:     r.Amount,
	}
	var err error
	if in.Token, err = parseAddress("token", r.Token); err != nil {
		return in, err
	}
	if in.NativeFee, err = parseInt("native_fee", r.NativeFee); err != nil {
		return in, err
	}
	if r.AdapterParams != "" {
		if in.AdapterParams, err = hexutil.Decode(r.AdapterParams); err != nil {
			return in, fmt.Errorf("adapter_params: %w", err)
		}
	}
	return in, nil
}

// 行情缺失时返回 nil，由 pipeline 报告 Loading
func (p *PricesRequest) toPrices() (*builder.MarketPrices, error) {
	if p == nil {
		return nil, nil
	}
	bid, err := parseInt("prices.bid", p.Bid)
	if err != nil {
		return nil, err
	}
	ask, err := parseInt("prices.ask", p.Ask)
	if err != nil {
		return nil, err
	}
	return &builder.MarketPrices{Bid: bid, Ask: ask}, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseInt 空字符串返回 nil
func parseInt(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, s)
	}
	return v, nil
}
