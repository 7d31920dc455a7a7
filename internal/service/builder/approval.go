package builder

import (
	"fmt"
	"math/big"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovalState 授权状态
type ApprovalState string

const (
	ApprovalUnknown     ApprovalState = "UNKNOWN"
	ApprovalNotApproved ApprovalState = "NOT_APPROVED"
	ApprovalPending     ApprovalState = "PENDING"
	ApprovalApproved    ApprovalState = "APPROVED"
)

// ApprovalStateOf 根据额度和账本中是否有待确认的授权判断状态。
// amount 或 allowance 未知时无法判断。
func ApprovalStateOf(amount, allowance *big.Int, pending bool) ApprovalState {
	if amount == nil || allowance == nil {
		return ApprovalUnknown
	}
	if allowance.Cmp(amount) >= 0 {
		return ApprovalApproved
	}
	if pending {
		return ApprovalPending
	}
	return ApprovalNotApproved
}

// AllowanceCall ERC20 allowance(owner, spender) 的只读调用
func AllowanceCall(token, owner, spender common.Address) types.Call {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		panic(err) // 参数类型固定，不会失败
	}
	return types.NewCall(token, data, nil)
}

// DecodeAllowance 解析 allowance 的返回值
func DecodeAllowance(ret []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("allowance", ret)
	if err != nil {
		return nil, fmt.Errorf("decode allowance: %w", err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode allowance: unexpected type %T", out[0])
	}
	return v, nil
}
