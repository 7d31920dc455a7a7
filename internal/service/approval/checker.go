package approval

import (
	"context"
	"math/big"

	"overlay-core/internal/service/builder"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PendingChecker *ledger.Ledger 满足
type PendingChecker interface {
	HasPendingApproval(chainID uint64, token, spender common.Address) bool
}

// Checker 链上 allowance + 账本中待确认的授权
type Checker struct {
	caller  ethereum.ContractCaller
	pending PendingChecker
	log     *zap.Logger
}

func NewChecker(caller ethereum.ContractCaller, pending PendingChecker, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{caller: caller, pending: pending, log: log}
}

// State allowance 查询失败时不报错，额度按未知处理
func (c *Checker) State(ctx context.Context, chainID uint64, owner common.Address, in builder.ApprovalIntent) builder.ApprovalState {
	call := builder.AllowanceCall(in.Token, owner, in.Spender)
	var allowance *big.Int
	ret, err := c.caller.CallContract(ctx, ethereum.CallMsg{From: owner, To: &call.Target, Data: call.Calldata}, nil)
	if err == nil {
		allowance, err = builder.DecodeAllowance(ret)
	}
	if err != nil {
		c.log.Debug("查询 allowance 失败", zap.String("token", in.Token.Hex()), zap.Error(err))
	}
	pending := c.pending.HasPendingApproval(chainID, in.Token, in.Spender)
	return builder.ApprovalStateOf(in.Amount, allowance, pending)
}
