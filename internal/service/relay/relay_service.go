package relay

import (
	"context"
	"time"

	"overlay-core/internal/model"
	"overlay-core/internal/service/mq"
	"overlay-core/pkg/monitor"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outbox 本地消息表的读写
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, id uint64) error
}

// GormOutbox outbox_messages 表
type GormOutbox struct {
	db *gorm.DB
}

func NewGormOutbox(db *gorm.DB) *GormOutbox {
	return &GormOutbox{db: db}
}

func (o *GormOutbox) FetchPending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	var messages []model.OutboxMessage
	err := o.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (o *GormOutbox) MarkSent(ctx context.Context, id uint64) error {
	return o.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	outbox    Outbox
	producer  mq.Producer
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewRelayService(outbox Outbox, producer mq.Producer, interval time.Duration, log *zap.Logger) *RelayService {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayService{
		outbox:    outbox,
		producer:  producer,
		interval:  interval,
		batchSize: 50, // 每次取 50 条，避免内存爆炸
		log:       log,
	}
}

// Start 阻塞运行直到 ctx 取消
func (s *RelayService) Start(ctx context.Context) {
	s.log.Info("[Relay] 启动消息中继服务", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 投递一批 PENDING 消息，返回成功条数
func (s *RelayService) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.FetchPending(ctx, s.batchSize)
	if err != nil {
		s.log.Warn("[Relay] 查询消息失败", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}
	s.log.Debug("[Relay] 发现待发送消息", zap.Int("count", len(messages)))

	sent := 0
	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			s.log.Warn("[Relay] 发送消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			// 同一个 key 的后续消息不能越过它，整批留到下一轮
			return sent
		}

		// 发送成功才更新状态 => At-least-once，Consumer 需幂等
		if err := s.outbox.MarkSent(ctx, msg.ID); err != nil {
			s.log.Warn("[Relay] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			return sent
		}
		monitor.Relayed()
		sent++
	}
	return sent
}
