package event

import (
	"strconv"
	"time"
)

// TopicLedgerEvents 账本事件主题，可通过 kafka.topic 覆盖
const TopicLedgerEvents = "overlay_ledger_events"

type Kind string

const (
	KindRecorded  Kind = "recorded"
	KindFinalized Kind = "finalized"
	KindCleared   Kind = "cleared"
	KindPruned    Kind = "pruned"
)

// LedgerEvent 账本状态变化事件
// Topic: overlay_ledger_events
type LedgerEvent struct {
	Kind        Kind      `json:"kind"`
	ChainID     uint64    `json:"chain_id"`
	Hash        string    `json:"hash,omitempty"` // cleared / pruned 为空
	From        string    `json:"from,omitempty"`
	Type        string    `json:"type,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Success     *bool     `json:"success,omitempty"` // 仅 finalized
	Count       int       `json:"count,omitempty"`   // 仅 cleared / pruned
	Time        time.Time `json:"time"`
}

// Key 分区键: 同一笔交易的事件保持有序
func (e LedgerEvent) Key() string {
	if e.Hash != "" {
		return e.Hash
	}
	return strconv.FormatUint(e.ChainID, 10)
}
