package estimator

import (
	"errors"
	"fmt"
)

// ErrNoOutcomes 没有任何估算结果可供选择，属于调用方的编程错误
var ErrNoOutcomes = errors.New("unexpected error: could not estimate gas for the transaction")

// EstimationError gas 估算 RPC 失败 (模拟调用之前的原始错误)
type EstimationError struct {
	Err error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("gas estimation failed: %v", e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// RevertError 模拟调用 revert，Reason 为解析出来的原因
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	return e.Reason
}

func (e *RevertError) Unwrap() error { return e.Err }

// InconsistentEstimationError gas 估算失败但模拟调用成功，通常是节点的临时问题
type InconsistentEstimationError struct {
	EstimateErr error
}

func (e *InconsistentEstimationError) Error() string {
	return "Unexpected issue with estimating the gas. Please try again."
}

func (e *InconsistentEstimationError) Unwrap() error { return e.EstimateErr }
