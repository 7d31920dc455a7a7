package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionType 交易意图类型
type TransactionType string

const (
	TransactionTypeApproval TransactionType = "APPROVAL"
	TransactionTypeBuild    TransactionType = "BUILD_OVL_POSITION"
	TransactionTypeUnwind   TransactionType = "UNWIND_OVL_POSITION"
	TransactionTypeBridge   TransactionType = "BRIDGE_OVL"
)

// TransactionInfo 与交易关联的意图元数据，只有本包内的四种实现
type TransactionInfo interface {
	Type() TransactionType
	isTransactionInfo()
}

type ApprovalInfo struct {
	TokenAddress common.Address `json:"tokenAddress"`
	Spender      common.Address `json:"spender"`
}

type BuildInfo struct {
	Market     common.Address `json:"market"`
	Collateral string         `json:"collateral"`
	IsLong     bool           `json:"isLong"`
	Leverage   string         `json:"leverage"`
}

type UnwindInfo struct {
	PositionID string `json:"positionId"`
	Shares     string `json:"shares"`
}

type BridgeInfo struct {
	Token      common.Address `json:"token"`
	SrcChainID uint64         `json:"srcChainId"`
	DstChainID uint16         `json:"dstChainId"`
	Amount     string         `json:"amount"`
}

func (ApprovalInfo) Type() TransactionType { return TransactionTypeApproval }
func (BuildInfo) Type() TransactionType    { return TransactionTypeBuild }
func (UnwindInfo) Type() TransactionType   { return TransactionTypeUnwind }
func (BridgeInfo) Type() TransactionType   { return TransactionTypeBridge }

func (ApprovalInfo) isTransactionInfo() {}
func (BuildInfo) isTransactionInfo()    {}
func (UnwindInfo) isTransactionInfo()   {}
func (BridgeInfo) isTransactionInfo()   {}

type infoEnvelope struct {
	Type TransactionType `json:"type"`
	Info json.RawMessage `json:"info"`
}

// MarshalInfo 以 {type, info} 信封格式序列化，用于持久化与消息队列
func MarshalInfo(info TransactionInfo) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("nil transaction info")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return json.Marshal(infoEnvelope{Type: info.Type(), Info: raw})
}

// UnmarshalInfo 按 type 字段还原具体的 TransactionInfo
func UnmarshalInfo(data []byte) (TransactionInfo, error) {
	var env infoEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var info TransactionInfo
	var err error
	switch env.Type {
	case TransactionTypeApproval:
		var v ApprovalInfo
		err = json.Unmarshal(env.Info, &v)
		info = v
	case TransactionTypeBuild:
		var v BuildInfo
		err = json.Unmarshal(env.Info, &v)
		info = v
	case TransactionTypeUnwind:
		var v UnwindInfo
		err = json.Unmarshal(env.Info, &v)
		info = v
	case TransactionTypeBridge:
		var v BridgeInfo
		err = json.Unmarshal(env.Info, &v)
		info = v
	default:
		return nil, fmt.Errorf("unknown transaction type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s info: %w", env.Type, err)
	}
	return info, nil
}

// Receipt 可序列化的交易回执
type Receipt struct {
	To               *common.Address `json:"to,omitempty"`
	From             common.Address  `json:"from"`
	ContractAddress  *common.Address `json:"contractAddress,omitempty"`
	TransactionIndex uint            `json:"transactionIndex"`
	BlockHash        common.Hash     `json:"blockHash"`
	TransactionHash  common.Hash     `json:"transactionHash"`
	BlockNumber      uint64          `json:"blockNumber"`
	Status           uint64          `json:"status"`
}

// Succeeded 回执状态是否为成功
func (r Receipt) Succeeded() bool {
	return r.Status == ethtypes.ReceiptStatusSuccessful
}

// ReceiptFrom 由 go-ethereum 回执构造；to/from 回执本身不带，需要调用方从交易中补充
func ReceiptFrom(r *ethtypes.Receipt, from common.Address, to *common.Address) Receipt {
	out := Receipt{
		To:               to,
		From:             from,
		TransactionIndex: r.TransactionIndex,
		BlockHash:        r.BlockHash,
		TransactionHash:  r.TxHash,
		Status:           r.Status,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.ContractAddress != (common.Address{}) {
		addr := r.ContractAddress
		out.ContractAddress = &addr
	}
	return out
}

// TransactionRecord 账本里每个 (chainId, hash) 对应的一条记录
type TransactionRecord struct {
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	Info             TransactionInfo `json:"-"`
	AddedTime        time.Time       `json:"addedTime"`
	LastCheckedBlock *uint64         `json:"lastCheckedBlockNumber,omitempty"`
	Receipt          *Receipt        `json:"receipt,omitempty"`
	ConfirmedTime    *time.Time      `json:"confirmedTime,omitempty"`
}

// Finalized 是否已经拿到回执
func (r *TransactionRecord) Finalized() bool {
	return r.Receipt != nil
}

// Clone 深拷贝，账本对外只返回副本
func (r *TransactionRecord) Clone() *TransactionRecord {
	out := *r
	if r.LastCheckedBlock != nil {
		b := *r.LastCheckedBlock
		out.LastCheckedBlock = &b
	}
	if r.Receipt != nil {
		rc := *r.Receipt
		out.Receipt = &rc
	}
	if r.ConfirmedTime != nil {
		t := *r.ConfirmedTime
		out.ConfirmedTime = &t
	}
	return &out
}

// MarshalJSON 输出时把 info 平铺成 {type, ...}
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	type alias TransactionRecord
	var info json.RawMessage
	if r.Info != nil {
		raw, err := MarshalInfo(r.Info)
		if err != nil {
			return nil, err
		}
		info = raw
	}
	return json.Marshal(struct {
		alias
		Info json.RawMessage `json:"info,omitempty"`
	}{alias: alias(r), Info: info})
}

// BigString 把可能为空的 big.Int 转成十进制字符串
func BigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
