package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"overlay-core/internal/event"
	"overlay-core/internal/model"
	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 账本的持久化后端。ev 非空时需与数据写入在同一事务中落地。
type Store interface {
	Load(ctx context.Context) (map[uint64][]*types.TransactionRecord, error)
	Save(ctx context.Context, chainID uint64, rec *types.TransactionRecord, ev *event.LedgerEvent) error
	Delete(ctx context.Context, chainID uint64, hashes []common.Hash, ev *event.LedgerEvent) error
	DeleteChain(ctx context.Context, chainID uint64, ev *event.LedgerEvent) error
}

// GormStore 基于 Postgres 的实现，事件通过 Transactional Outbox 写入 outbox_messages
type GormStore struct {
	db    *gorm.DB
	topic string
}

func NewGormStore(db *gorm.DB, topic string) *GormStore {
	if topic == "" {
		topic = event.TopicLedgerEvents
	}
	return &GormStore{db: db, topic: topic}
}

func (s *GormStore) Load(ctx context.Context) (map[uint64][]*types.TransactionRecord, error) {
	var rows []model.TransactionRecord
	if err := s.db.WithContext(ctx).Order("added_time asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询交易记录失败: %w", err)
	}

	out := make(map[uint64][]*types.TransactionRecord)
	for i := range rows {
		rec, err := toDomain(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("decode record %s: %w", rows[i].Hash, err)
		}
		out[rows[i].ChainID] = append(out[rows[i].ChainID], rec)
	}
	return out, nil
}

func (s *GormStore) Save(ctx context.Context, chainID uint64, rec *types.TransactionRecord, ev *event.LedgerEvent) error {
	row, err := fromDomain(chainID, rec)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A. upsert 交易记录
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain_id"}, {Name: "hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_checked_block", "receipt", "confirmed_time", "updated_at"}),
		}).Create(row).Error
		if err != nil {
			return err
		}
		// B. 写入 Outbox 消息 (同一个事务)
		return s.outbox(tx, ev)
	})
}

func (s *GormStore) Delete(ctx context.Context, chainID uint64, hashes []common.Hash, ev *event.LedgerEvent) error {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = h.Hex()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chain_id = ? AND hash IN ?", chainID, keys).
			Delete(&model.TransactionRecord{}).Error; err != nil {
			return err
		}
		return s.outbox(tx, ev)
	})
}

func (s *GormStore) DeleteChain(ctx context.Context, chainID uint64, ev *event.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chain_id = ?", chainID).Delete(&model.TransactionRecord{}).Error; err != nil {
			return err
		}
		return s.outbox(tx, ev)
	})
}

func (s *GormStore) outbox(tx *gorm.DB, ev *event.LedgerEvent) error {
	if ev == nil {
		return nil
	}
	return model.CreateOutboxMessage(tx, s.topic, ev.Key(), ev)
}

func fromDomain(chainID uint64, rec *types.TransactionRecord) (*model.TransactionRecord, error) {
	info, err := types.MarshalInfo(rec.Info)
	if err != nil {
		return nil, err
	}
	row := &model.TransactionRecord{
		ChainID:          chainID,
		Hash:             rec.Hash.Hex(),
		From:             rec.From.Hex(),
		Info:             info,
		AddedTime:        rec.AddedTime,
		LastCheckedBlock: rec.LastCheckedBlock,
		ConfirmedTime:    rec.ConfirmedTime,
	}
	if rec.Info != nil {
		row.Type = string(rec.Info.Type())
	}
	if rec.Receipt != nil {
		b, err := json.Marshal(rec.Receipt)
		if err != nil {
			return nil, err
		}
		row.Receipt = b
	}
	return row, nil
}

func toDomain(row *model.TransactionRecord) (*types.TransactionRecord, error) {
	info, err := types.UnmarshalInfo(row.Info)
	if err != nil {
		return nil, err
	}
	rec := &types.TransactionRecord{
		Hash:             common.HexToHash(row.Hash),
		From:             common.HexToAddress(row.From),
		Info:             info,
		AddedTime:        row.AddedTime,
		LastCheckedBlock: row.LastCheckedBlock,
		ConfirmedTime:    row.ConfirmedTime,
	}
	if len(row.Receipt) > 0 {
		var rc types.Receipt
		if err := json.Unmarshal(row.Receipt, &rc); err != nil {
			return nil, err
		}
		rec.Receipt = &rc
	}
	return rec, nil
}
