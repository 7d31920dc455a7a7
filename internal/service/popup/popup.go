package popup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"overlay-core/internal/types"
	"overlay-core/pkg/cache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Popup 一条给用户看的交易通知
type Popup struct {
	Key       string          `json:"key"`
	Hash      string          `json:"hash,omitempty"` // 被拒绝 / 未广播的交易没有 hash
	Account   string          `json:"account"`
	ChainID   uint64          `json:"chainId"`
	Success   bool            `json:"success"`
	Summary   string          `json:"summary,omitempty"`
	Info      json.RawMessage `json:"info,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Notification 弹窗的输入
type Notification struct {
	Hash    string
	Account string
	ChainID uint64
	Success bool
	Summary string
	Info    types.TransactionInfo
}

// Sink 通知接收方
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Service 基于缓存的弹窗存储，每个账户一个列表，单条弹窗到期后不再返回
type Service struct {
	mu    sync.Mutex
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

func NewService(c cache.Cache, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cache: c, ttl: ttl, now: time.Now, log: log}
}

func key(account string) string {
	return "popup:" + strings.ToLower(account)
}

func (s *Service) Notify(ctx context.Context, n Notification) error {
	p := Popup{
		Key:       n.Hash,
		Hash:      n.Hash,
		Account:   n.Account,
		ChainID:   n.ChainID,
		Success:   n.Success,
		Summary:   n.Summary,
		CreatedAt: s.now(),
	}
	if p.Key == "" {
		p.Key = uuid.NewString()
	}
	if n.Info != nil {
		raw, err := types.MarshalInfo(n.Info)
		if err != nil {
			return fmt.Errorf("encode popup info: %w", err)
		}
		p.Info = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, n.Account)
	if err != nil {
		return err
	}
	list = append(list, p)
	if err := s.cache.Set(ctx, key(n.Account), list, s.ttl); err != nil {
		return fmt.Errorf("save popups: %w", err)
	}
	s.log.Debug("Popup added", zap.String("account", n.Account), zap.String("key", p.Key), zap.Bool("success", p.Success))
	return nil
}

// List 账户当前未过期的弹窗，按时间先后
func (s *Service) List(ctx context.Context, account string) ([]Popup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, account)
}

// Dismiss 用户关闭一条弹窗
func (s *Service) Dismiss(ctx context.Context, account, popupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, account)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, p := range list {
		if p.Key != popupKey {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return s.cache.Delete(ctx, key(account))
	}
	return s.cache.Set(ctx, key(account), kept, s.ttl)
}

func (s *Service) load(ctx context.Context, account string) ([]Popup, error) {
	var list []Popup
	err := s.cache.Get(ctx, key(account), &list)
	if errors.Is(err, cache.ErrCacheMiss) {
		return []Popup{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load popups: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	active := list[:0]
	for _, p := range list {
		if p.CreatedAt.After(cutoff) {
			active = append(active, p)
		}
	}
	return active, nil
}
