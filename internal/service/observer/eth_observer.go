package observer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"overlay-core/internal/types"
	"overlay-core/pkg/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrNotTracked 等待的交易不在账本中 (从未登记或已被清空)
var ErrNotTracked = errors.New("transaction not tracked by ledger")

// checkTask 一次回执检查
type checkTask struct {
	record *types.TransactionRecord
	block  uint64
}

// EthObserver 推进账本的区块扫描器
// 1. Fetcher (生产者): 单线程，轮询最新区块高度，挑出需要检查的 pending 交易
// 2. Worker Pool (消费者): 多线程，并行查询回执并更新账本
type EthObserver struct {
	chainID uint64
	client  ChainReader
	ledger  Ledger
	log     *zap.Logger
	now     func() time.Time

	pollInterval time.Duration
	workerCount  int

	currentHeight atomic.Uint64
	wg            sync.WaitGroup

	// Fetcher -> tasks -> Workers
	tasks chan checkTask

	// 正在检查中的 hash，避免下一个块重复派发
	mu       sync.Mutex
	inFlight map[common.Hash]struct{}
}

func NewEthObserver(chainID uint64, client ChainReader, ledger Ledger, pollInterval time.Duration, workerCount int, log *zap.Logger) *EthObserver {
	if workerCount <= 0 {
		workerCount = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EthObserver{
		chainID:      chainID,
		client:       client,
		ledger:       ledger,
		log:          log,
		now:          time.Now,
		pollInterval: pollInterval,
		workerCount:  workerCount,
		// 带缓冲的 Channel，worker 处理不过来时 fetcher 阻塞 (背压)
		tasks:    make(chan checkTask, workerCount*2),
		inFlight: make(map[common.Hash]struct{}),
	}
}

// Start 启动 workers 与 fetcher，ctx 取消后全部退出
func (o *EthObserver) Start(ctx context.Context) error {
	o.log.Info("启动区块扫描器", zap.Uint64("chain_id", o.chainID),
		zap.Duration("poll_interval", o.pollInterval), zap.Int("workers", o.workerCount))

	for i := 0; i < o.workerCount; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.wg.Add(1)
	go o.fetcher(ctx)
	return nil
}

func (o *EthObserver) Stop() error {
	o.wg.Wait()
	return nil
}

func (o *EthObserver) GetCurrentHeight() uint64 {
	return o.currentHeight.Load()
}

func (o *EthObserver) fetcher(ctx context.Context) {
	defer o.wg.Done()
	// fetcher 退出时关闭 channel，通知 workers 下班
	defer close(o.tasks)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("Fetcher: 收到退出信号")
			return
		case <-ticker.C:
			if !o.poll(ctx) {
				return
			}
		}
	}
}

// poll 处理一次新高度；ctx 取消时返回 false
func (o *EthObserver) poll(ctx context.Context) bool {
	height, err := o.client.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		o.log.Warn("Fetcher: 获取区块高度失败", zap.Error(err))
		return true
	}
	if height <= o.currentHeight.Load() {
		return true
	}
	o.currentHeight.Store(height)

	pending := o.ledger.PendingFor(o.chainID)
	monitor.SetPending(chainIDString(o.chainID), len(pending))

	now := o.now()
	for _, rec := range pending {
		if !ShouldCheck(height, rec, now) || !o.claim(rec.Hash) {
			continue
		}
		select {
		case o.tasks <- checkTask{record: rec, block: height}:
		case <-ctx.Done():
			o.release(rec.Hash)
			return false
		}
	}
	return true
}

func (o *EthObserver) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	for task := range o.tasks {
		o.check(ctx, task)
		o.release(task.record.Hash)
	}
	o.log.Debug("Worker: 队列已关闭", zap.Int("worker", id))
}

// check 查询回执: 有回执则 Finalize，还没上链则记录检查高度
func (o *EthObserver) check(ctx context.Context, task checkTask) {
	hash := task.record.Hash
	receipt, err := o.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		o.ledger.MarkChecked(o.chainID, hash, task.block)
		return
	}
	if err != nil {
		// 下一个块重试
		o.log.Warn("Worker: 查询回执失败", zap.String("hash", hash.Hex()), zap.Error(err))
		return
	}

	var to *common.Address
	if tx, _, err := o.client.TransactionByHash(ctx, hash); err == nil {
		to = tx.To()
	}
	rc := types.ReceiptFrom(receipt, task.record.From, to)
	if o.ledger.Finalize(o.chainID, hash, rc) {
		status := "success"
		if !rc.Succeeded() {
			status = "reverted"
		}
		monitor.Finalized(chainIDString(o.chainID), status)
		o.log.Info("交易已确认", zap.String("hash", hash.Hex()),
			zap.Uint64("block", rc.BlockNumber), zap.String("status", status))
	}
}

func (o *EthObserver) claim(hash common.Hash) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[hash]; busy {
		return false
	}
	o.inFlight[hash] = struct{}{}
	return true
}

func (o *EthObserver) release(hash common.Hash) {
	o.mu.Lock()
	delete(o.inFlight, hash)
	o.mu.Unlock()
}

// WaitFinalized 轮询账本直到交易拿到回执
func WaitFinalized(ctx context.Context, ledger RecordGetter, chainID uint64, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, ok := ledger.Get(chainID, hash)
		if !ok {
			return nil, ErrNotTracked
		}
		if rec.Finalized() {
			return rec.Receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
