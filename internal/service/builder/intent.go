package builder

import (
	"math/big"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// Intent 用户层面的操作意图，仅限本包定义的四种
type Intent interface {
	Kind() types.TransactionType
	isIntent()
}

// MarketPrices 市场当前买卖价 (由外部行情模块提供)
type MarketPrices struct {
	Bid *big.Int
	Ask *big.Int
}

// ApprovalIntent 授权 spender 使用 token；Exact 为 false 时授权 MaxUint256
type ApprovalIntent struct {
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
	Exact   bool
}

// BuildIntent 开仓
type BuildIntent struct {
	Market     common.Address
	TypedValue string // 抵押品数量 (OVL, 18 位小数)
	Leverage   string
	IsLong     bool
	Slippage   string // 百分比
	Prices     *MarketPrices
}

// UnwindIntent 平仓；UnwindValue 为平掉的百分比
type UnwindIntent struct {
	Market        common.Address
	PositionID    *big.Int
	UnwindValue   string
	IsLong        *bool
	PositionValue *big.Int
	Slippage      string
	Prices        *MarketPrices
}

// BridgeIntent 通过 LayerZero OFT 跨链转账
type BridgeIntent struct {
	Token         common.Address // OFT 合约地址
	DstChainID    uint16         // LayerZero 链 ID
	Amount        string
	NativeFee     *big.Int // estimateSendFee 的结果
	AdapterParams []byte
}

func (ApprovalIntent) Kind() types.TransactionType { return types.TransactionTypeApproval }
func (BuildIntent) Kind() types.TransactionType    { return types.TransactionTypeBuild }
func (UnwindIntent) Kind() types.TransactionType   { return types.TransactionTypeUnwind }
func (BridgeIntent) Kind() types.TransactionType   { return types.TransactionTypeBridge }

func (ApprovalIntent) isIntent() {}
func (BuildIntent) isIntent()    {}
func (UnwindIntent) isIntent()   {}
func (BridgeIntent) isIntent()   {}

// Context 构造调用所需的账户与链信息
type Context struct {
	Account *common.Address
	ChainID *uint64
}

// IsNil 同时识别 nil 接口与 nil 指针意图
func IsNil(intent Intent) bool {
	switch in := intent.(type) {
	case nil:
		return true
	case *ApprovalIntent:
		return in == nil
	case *BuildIntent:
		return in == nil
	case *UnwindIntent:
		return in == nil
	case *BridgeIntent:
		return in == nil
	default:
		return false
	}
}
