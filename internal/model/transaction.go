package model

import (
	"time"
)

// TransactionRecord 交易记录表，一行对应一个 (chain_id, hash)
// Info / Receipt 以 JSON 存储，结构由 internal/types 定义
type TransactionRecord struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChainID          uint64     `gorm:"not null;uniqueIndex:idx_chain_hash" json:"chain_id"`
	Hash             string     `gorm:"type:varchar(66);not null;uniqueIndex:idx_chain_hash" json:"hash"`
	From             string     `gorm:"column:from_address;type:varchar(42);not null;index" json:"from"`
	Type             string     `gorm:"type:varchar(32);not null" json:"type"` // APPROVAL, BUILD_OVL_POSITION, UNWIND_OVL_POSITION, BRIDGE_OVL
	Info             []byte     `gorm:"type:text;not null" json:"info"`
	AddedTime        time.Time  `gorm:"not null;index" json:"added_time"`
	LastCheckedBlock *uint64    `json:"last_checked_block,omitempty"`
	Receipt          []byte     `gorm:"type:text" json:"receipt,omitempty"`
	ConfirmedTime    *time.Time `json:"confirmed_time,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}
