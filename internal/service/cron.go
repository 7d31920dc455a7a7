package service

import (
	"context"
	"time"

	"overlay-core/pkg/lock"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const pruneLockKey = "cron:prune_ledger"

// Pruner *ledger.Ledger 满足
type Pruner interface {
	Chains() []uint64
	Prune(chainID uint64, olderThan time.Duration) int
}

type CronService struct {
	cron      *cron.Cron
	locker    lock.DistributedLock
	ledger    Pruner
	schedule  string
	retention time.Duration
	lockTTL   time.Duration
	log       *zap.Logger
}

func NewCronService(locker lock.DistributedLock, ledger Pruner, schedule string, retention time.Duration, log *zap.Logger) *CronService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CronService{
		cron:      cron.New(),
		locker:    locker,
		ledger:    ledger,
		schedule:  schedule,
		retention: retention,
		lockTTL:   time.Minute,
		log:       log,
	}
}

func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.PruneLedger(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("Cron Service started", zap.String("prune_schedule", s.schedule), zap.Duration("retention", s.retention))
	return nil
}

// Stop 等待正在执行的任务结束
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Cron Service stopped")
}

// PruneLedger 清理超过保留期的已确认记录，多实例下只有拿到锁的那个执行
func (s *CronService) PruneLedger(ctx context.Context) int {
	token, ok, err := s.locker.Acquire(ctx, pruneLockKey, s.lockTTL)
	if err != nil {
		s.log.Warn("PruneLedger: 获取锁失败", zap.Error(err))
		return 0
	}
	if !ok {
		s.log.Debug("PruneLedger: 已有实例在运行")
		return 0
	}
	defer func() {
		if err := s.locker.Release(ctx, pruneLockKey, token); err != nil {
			s.log.Warn("PruneLedger: 释放锁失败", zap.Error(err))
		}
	}()

	total := 0
	for _, chainID := range s.ledger.Chains() {
		n := s.ledger.Prune(chainID, s.retention)
		if n > 0 {
			s.log.Info("已清理过期交易记录", zap.Uint64("chain_id", chainID), zap.Int("count", n))
		}
		total += n
	}
	return total
}
