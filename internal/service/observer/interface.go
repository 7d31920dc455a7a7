package observer

import (
	"context"
	"strconv"
	"time"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainObserver 定义了区块扫描器的通用行为
type ChainObserver interface {
	// Start 启动扫描器，ctx 用于控制优雅退出
	Start(ctx context.Context) error
	// Stop 等待 fetcher 与 worker 全部退出
	Stop() error
	// GetCurrentHeight 获取当前已处理到的区块高度
	GetCurrentHeight() uint64
}

// ChainReader 扫描所需的链上读取能力，*ethclient.Client 直接满足
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *ethtypes.Transaction, isPending bool, err error)
}

// Ledger *ledger.Ledger 满足
type Ledger interface {
	PendingFor(chainID uint64) []*types.TransactionRecord
	MarkChecked(chainID uint64, hash common.Hash, block uint64)
	Finalize(chainID uint64, hash common.Hash, receipt types.Receipt) bool
}

// RecordGetter 读取单条记录
type RecordGetter interface {
	Get(chainID uint64, hash common.Hash) (*types.TransactionRecord, bool)
}

// ShouldCheck 是否需要在 lastBlock 检查这笔交易的回执。
// pending 越久检查越稀疏: 超过 1 小时每 10 个块一次，超过 5 分钟每 3 个块一次，否则每个块。
func ShouldCheck(lastBlock uint64, rec *types.TransactionRecord, now time.Time) bool {
	if rec.Finalized() {
		return false
	}
	if rec.LastCheckedBlock == nil {
		return true
	}
	if lastBlock <= *rec.LastCheckedBlock {
		return false
	}
	blocksSinceCheck := lastBlock - *rec.LastCheckedBlock

	pending := now.Sub(rec.AddedTime)
	switch {
	case pending > time.Hour:
		return blocksSinceCheck > 9
	case pending > 5*time.Minute:
		return blocksSinceCheck > 2
	default:
		return true
	}
}

func chainIDString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
