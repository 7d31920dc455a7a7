package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"overlay-core/internal/event"
	"overlay-core/internal/service/mq"
	"overlay-core/internal/service/popup"
	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RecordGetter *ledger.Ledger 满足
type RecordGetter interface {
	Get(chainID uint64, hash common.Hash) (*types.TransactionRecord, bool)
}

// PopupConsumer 消费账本事件，交易确认后给发送方弹窗
type PopupConsumer struct {
	consumer mq.Consumer
	topic    string
	records  RecordGetter
	sink     popup.Sink
	log      *zap.Logger
}

func NewPopupConsumer(consumer mq.Consumer, topic string, records RecordGetter, sink popup.Sink, log *zap.Logger) *PopupConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &PopupConsumer{consumer: consumer, topic: topic, records: records, sink: sink, log: log}
}

// Run 阻塞消费直到 ctx 取消
func (c *PopupConsumer) Run(ctx context.Context) error {
	return c.consumer.Subscribe(ctx, c.topic, c.Handle)
}

func (c *PopupConsumer) Handle(ctx context.Context, msg *mq.Message) error {
	var ev event.LedgerEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// 坏消息重投也没用，丢弃
		c.log.Warn("丢弃无法解析的账本事件", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if ev.Kind != event.KindFinalized || ev.Hash == "" {
		return nil
	}

	n := popup.Notification{
		Hash:    ev.Hash,
		Account: ev.From,
		ChainID: ev.ChainID,
		Success: ev.Success != nil && *ev.Success,
		Summary: summary(ev),
	}
	// 记录可能已被 prune，没有 info 也照样弹
	if rec, ok := c.records.Get(ev.ChainID, common.HexToHash(ev.Hash)); ok {
		n.Info = rec.Info
	}
	if err := c.sink.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", ev.Hash, err)
	}
	return nil
}

func summary(ev event.LedgerEvent) string {
	kind := strings.ToLower(strings.ReplaceAll(ev.Type, "_", " "))
	if kind == "" {
		kind = "transaction"
	}
	if ev.Success != nil && *ev.Success {
		return fmt.Sprintf("%s confirmed in block %d", kind, ev.BlockNumber)
	}
	return fmt.Sprintf("%s reverted in block %d", kind, ev.BlockNumber)
}
