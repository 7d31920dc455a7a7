package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call 一笔尚未发送、尚未估算 gas 的链上调用
type Call struct {
	Target   common.Address
	Calldata []byte
	Value    *big.Int
}

// NewCall 构造 Call，拷贝 calldata 与 value，构造后不再修改
func NewCall(target common.Address, calldata []byte, value *big.Int) Call {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return Call{
		Target:   target,
		Calldata: common.CopyBytes(calldata),
		Value:    v,
	}
}

// HasValue 是否需要附带原生币
func (c Call) HasValue() bool {
	return c.Value != nil && c.Value.Sign() > 0
}

func (c Call) String() string {
	return fmt.Sprintf("call{to=%s data=%s value=%s}", c.Target.Hex(), hexutil.Encode(c.Calldata), c.Value)
}

// EstimationOutcome 一个候选调用的估算结果: 要么 Estimated (GasEstimate 非空)，要么 Failed (Err 非空)
type EstimationOutcome struct {
	Call        Call
	GasEstimate *uint64
	Err         error
}

func Estimated(call Call, gas uint64) EstimationOutcome {
	return EstimationOutcome{Call: call, GasEstimate: &gas}
}

func Failed(call Call, err error) EstimationOutcome {
	return EstimationOutcome{Call: call, Err: err}
}

func (o EstimationOutcome) IsEstimated() bool {
	return o.GasEstimate != nil && o.Err == nil
}

// ChosenCall 选中提交的调用；GasLimit 为空时由钱包自行估算
type ChosenCall struct {
	Call     Call
	GasLimit *uint64
}
