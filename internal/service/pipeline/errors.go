package pipeline

import (
	"errors"
	"fmt"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// UserRejectedCode EIP-1193 用户拒绝签名
const UserRejectedCode = 4001

// MissingDependencies session 缺少账户、链或签名器时的固定提示
const MissingDependencies = "Missing Dependencies"

// UserRejectedError 用户在钱包里拒绝了签名，不属于系统错误
type UserRejectedError struct {
	Err error
}

func (e *UserRejectedError) Error() string {
	return "Transaction rejected."
}

func (e *UserRejectedError) Unwrap() error { return e.Err }

// SubmissionError 除用户拒绝以外的广播失败，带上失败的调用用于排查
type SubmissionError struct {
	Call types.Call
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("Transaction failed: %v (%s)", e.Err, e.Call)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RegistrationError 交易已经广播，但账本登记失败。hash 依然有效。
type RegistrationError struct {
	Hash common.Hash
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("transaction %s submitted but ledger registration failed: %v", e.Hash.Hex(), e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// IsUserRejected 按 JSON-RPC 错误码 4001 判断
func IsUserRejected(err error) bool {
	var rej *UserRejectedError
	if errors.As(err, &rej) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == UserRejectedCode
}
