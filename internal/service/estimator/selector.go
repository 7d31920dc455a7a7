package estimator

import (
	"math"
	"math/big"

	"overlay-core/internal/types"
)

// DefaultMarginBps 默认 gas 余量 20%
const DefaultMarginBps = 2000

// Select 从估算结果中选出要提交的调用。
//
// 规则: 选择最后一个 Estimated，且它之后的所有结果也都是 Estimated。
// 没有满足条件的结果时返回最后一个失败的错误；结果为空时返回 ErrNoOutcomes。
// 实际使用中候选列表长度几乎总是 1。
func Select(outcomes []types.EstimationOutcome, marginBps uint64) (types.ChosenCall, error) {
	if len(outcomes) == 0 {
		return types.ChosenCall{}, ErrNoOutcomes
	}

	// 从末尾倒序扫描，第一个命中的就是"最后一个"满足条件的结果
	chosen := -1
	restEstimated := true
	for i := len(outcomes) - 1; i >= 0; i-- {
		estimated := outcomes[i].IsEstimated()
		if estimated && restEstimated {
			chosen = i
			break
		}
		if !estimated {
			restEstimated = false
		}
	}

	if chosen >= 0 {
		o := outcomes[chosen]
		limit := MarginedGas(*o.GasEstimate, marginBps)
		return types.ChosenCall{Call: o.Call, GasLimit: &limit}, nil
	}

	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Err != nil {
			return types.ChosenCall{}, outcomes[i].Err
		}
	}

	// 既没有成功也没有错误的结果 (零值 outcome)，交给钱包自行估算
	return types.ChosenCall{Call: outcomes[len(outcomes)-1].Call}, nil
}

// MarginedGas gas * (10000 + marginBps) / 10000，超出 uint64 时取 MaxUint64
func MarginedGas(gas uint64, marginBps uint64) uint64 {
	v := new(big.Int).SetUint64(marginBps)
	v.Add(v, big.NewInt(10000))
	v.Mul(v, new(big.Int).SetUint64(gas))
	v.Quo(v, big.NewInt(10000))
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
