package mq

import "context"

// Message 一条通用的队列消息
type Message struct {
	ID       string            // 消息ID (Redis Stream ID 或 Kafka partition/offset)
	Topic    string            // 主题 (例如 "overlay_ledger_events")
	Key      string            // 分区键，账本事件用交易 hash
	Payload  []byte            // 消息体 (JSON)
	Metadata map[string]string // 元数据
}

// Handler 返回 error 时消息不确认，由具体实现决定重投
type Handler func(ctx context.Context, msg *Message) error

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 分区键，同一个 key 的消息保持有序。传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 阻塞消费 topic 直到 ctx 取消
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
