package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"overlay-core/internal/event"
	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PendingApprovalWindow 超过这个时间仍未确认的授权不再视为 pending
const PendingApprovalWindow = 24 * time.Hour

const persistTimeout = 5 * time.Second

// InvariantError 同一个 (chainId, hash) 被重复登记，属于调用方的编程错误
type InvariantError struct {
	ChainID uint64
	Hash    common.Hash
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated: transaction %s already recorded on chain %d", e.Hash.Hex(), e.ChainID)
}

// Listener 在每次状态变化提交后被调用 (锁外)
type Listener func(event.LedgerEvent)

// Ledger 进程内唯一的交易状态机: chainId -> hash -> record
// 所有修改都经过这里的方法，每个方法对自身的 key 是原子的。
type Ledger struct {
	mu     sync.RWMutex
	chains map[uint64]map[common.Hash]*types.TransactionRecord

	store     Store
	listeners []Listener
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Ledger)

// WithStore 持久化存储，每次修改后写穿
func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithListener(fn Listener) Option {
	return func(l *Ledger) { l.listeners = append(l.listeners, fn) }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		chains: make(map[uint64]map[common.Hash]*types.TransactionRecord),
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore 启动时从存储加载已持久化的记录，覆盖内存状态
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	chains, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.chains = make(map[uint64]map[common.Hash]*types.TransactionRecord, len(chains))
	total := 0
	for chainID, records := range chains {
		m := make(map[common.Hash]*types.TransactionRecord, len(records))
		for _, r := range records {
			m[r.Hash] = r
		}
		l.chains[chainID] = m
		total += len(records)
	}
	l.log.Info("Ledger restored", zap.Int("chains", len(chains)), zap.Int("records", total))
	return nil
}

// Record 登记一笔新提交的交易。已存在同一个 (chainId, hash) 时返回 *InvariantError，原记录不变。
// 持久化失败时内存中的记录保留，错误返回给调用方。
func (l *Ledger) Record(chainID uint64, hash common.Hash, from common.Address, info types.TransactionInfo) error {
	l.mu.Lock()
	chain := l.chains[chainID]
	if chain == nil {
		chain = make(map[common.Hash]*types.TransactionRecord)
		l.chains[chainID] = chain
	}
	if _, exists := chain[hash]; exists {
		l.mu.Unlock()
		return &InvariantError{ChainID: chainID, Hash: hash}
	}

	rec := &types.TransactionRecord{
		Hash:      hash,
		From:      from,
		Info:      info,
		AddedTime: l.now(),
	}
	chain[hash] = rec

	ev := event.LedgerEvent{
		Kind:    event.KindRecorded,
		ChainID: chainID,
		Hash:    hash.Hex(),
		From:    from.Hex(),
		Time:    rec.AddedTime,
	}
	if info != nil {
		ev.Type = string(info.Type())
	}
	err := l.persist(func(ctx context.Context) error {
		return l.store.Save(ctx, chainID, rec, &ev)
	})
	l.mu.Unlock()

	l.notify(ev)
	if err != nil {
		return fmt.Errorf("persist record %s: %w", hash.Hex(), err)
	}
	return nil
}

// MarkChecked 把 lastCheckedBlock 提升到 max(current, block)；记录不存在时什么也不做
func (l *Ledger) MarkChecked(chainID uint64, hash common.Hash, block uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.chains[chainID][hash]
	if !ok {
		return
	}
	if rec.LastCheckedBlock != nil && *rec.LastCheckedBlock >= block {
		return
	}
	b := block
	rec.LastCheckedBlock = &b

	if err := l.persist(func(ctx context.Context) error {
		return l.store.Save(ctx, chainID, rec, nil)
	}); err != nil {
		l.log.Warn("Persist checked block failed", zap.Uint64("chain_id", chainID),
			zap.String("hash", hash.Hex()), zap.Error(err))
	}
}

// Finalize 设置回执与确认时间，只生效一次。
// 返回 true 表示本次调用完成了状态迁移；记录不存在或已经 finalized 时返回 false。
func (l *Ledger) Finalize(chainID uint64, hash common.Hash, receipt types.Receipt) bool {
	l.mu.Lock()
	rec, ok := l.chains[chainID][hash]
	if !ok || rec.Finalized() {
		l.mu.Unlock()
		return false
	}

	rc := receipt
	now := l.now()
	rec.Receipt = &rc
	rec.ConfirmedTime = &now

	success := rc.Succeeded()
	ev := event.LedgerEvent{
		Kind:        event.KindFinalized,
		ChainID:     chainID,
		Hash:        hash.Hex(),
		From:        rec.From.Hex(),
		BlockNumber: rc.BlockNumber,
		Success:     &success,
		Time:        now,
	}
	if rec.Info != nil {
		ev.Type = string(rec.Info.Type())
	}
	if err := l.persist(func(ctx context.Context) error {
		return l.store.Save(ctx, chainID, rec, &ev)
	}); err != nil {
		l.log.Error("Persist finalized record failed", zap.Uint64("chain_id", chainID),
			zap.String("hash", hash.Hex()), zap.Error(err))
	}
	l.mu.Unlock()

	l.notify(ev)
	return true
}

// Clear 清空一条链上的全部记录 (用户手动 "clear pending")
func (l *Ledger) Clear(chainID uint64) {
	l.mu.Lock()
	n := len(l.chains[chainID])
	l.chains[chainID] = make(map[common.Hash]*types.TransactionRecord)

	ev := event.LedgerEvent{Kind: event.KindCleared, ChainID: chainID, Count: n, Time: l.now()}
	if err := l.persist(func(ctx context.Context) error {
		return l.store.DeleteChain(ctx, chainID, &ev)
	}); err != nil {
		l.log.Error("Persist clear failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	}
	l.mu.Unlock()

	l.notify(ev)
}

// Prune 删除确认时间早于 olderThan 的已 finalized 记录，pending 记录永远不会被清理
func (l *Ledger) Prune(chainID uint64, olderThan time.Duration) int {
	l.mu.Lock()
	cutoff := l.now().Add(-olderThan)
	var pruned []common.Hash
	for hash, rec := range l.chains[chainID] {
		if rec.Finalized() && rec.ConfirmedTime.Before(cutoff) {
			pruned = append(pruned, hash)
		}
	}
	if len(pruned) == 0 {
		l.mu.Unlock()
		return 0
	}
	for _, hash := range pruned {
		delete(l.chains[chainID], hash)
	}

	ev := event.LedgerEvent{Kind: event.KindPruned, ChainID: chainID, Count: len(pruned), Time: l.now()}
	if err := l.persist(func(ctx context.Context) error {
		return l.store.Delete(ctx, chainID, pruned, &ev)
	}); err != nil {
		l.log.Error("Persist prune failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	}
	l.mu.Unlock()

	l.notify(ev)
	return len(pruned)
}

// PendingFor 所有还没有回执的记录，按登记时间排序
func (l *Ledger) PendingFor(chainID uint64) []*types.TransactionRecord {
	return l.collect(chainID, func(r *types.TransactionRecord) bool { return !r.Finalized() })
}

// All 一条链上的全部记录，按登记时间排序
func (l *Ledger) All(chainID uint64) []*types.TransactionRecord {
	return l.collect(chainID, func(*types.TransactionRecord) bool { return true })
}

func (l *Ledger) Get(chainID uint64, hash common.Hash) (*types.TransactionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.chains[chainID][hash]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Chains 有记录的链
func (l *Ledger) Chains() []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]uint64, 0, len(l.chains))
	for id, m := range l.chains {
		if len(m) > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasPendingApproval token 对 spender 是否有 24 小时内提交、尚未确认的授权
func (l *Ledger) HasPendingApproval(chainID uint64, token, spender common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := l.now()
	for _, rec := range l.chains[chainID] {
		if rec.Finalized() || now.Sub(rec.AddedTime) > PendingApprovalWindow {
			continue
		}
		info, ok := rec.Info.(types.ApprovalInfo)
		if ok && info.TokenAddress == token && info.Spender == spender {
			return true
		}
	}
	return false
}

func (l *Ledger) collect(chainID uint64, keep func(*types.TransactionRecord) bool) []*types.TransactionRecord {
	l.mu.RLock()
	out := make([]*types.TransactionRecord, 0, len(l.chains[chainID]))
	for _, rec := range l.chains[chainID] {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedTime.Equal(out[j].AddedTime) {
			return out[i].AddedTime.Before(out[j].AddedTime)
		}
		return out[i].Hash.Hex() < out[j].Hash.Hex()
	})
	return out
}

// persist 必须在持有写锁时调用，保证同一个 key 的写入顺序与内存一致
func (l *Ledger) persist(fn func(ctx context.Context) error) error {
	if l.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return fn(ctx)
}

func (l *Ledger) notify(ev event.LedgerEvent) {
	for _, fn := range l.listeners {
		fn(ev)
	}
}
