package handler

import (
	"overlay-core/internal/handler/request"
	"overlay-core/internal/handler/response"
	"overlay-core/internal/types"
	"overlay-core/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// LedgerReader *ledger.Ledger 满足
type LedgerReader interface {
	PendingFor(chainID uint64) []*types.TransactionRecord
	Get(chainID uint64, hash common.Hash) (*types.TransactionRecord, bool)
	Clear(chainID uint64)
}

type LedgerHandler struct {
	ledger LedgerReader
}

func NewLedgerHandler(l LedgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// Pending 待确认交易
// @Summary 待确认交易列表
// @Tags Ledger
// @Produce json
// @Param chain_id path int true "Chain ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{chain_id}/pending [get]
func (h *LedgerHandler) Pending(c *gin.Context) {
	var uri request.ChainURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	response.Success(c, h.ledger.PendingFor(uri.ChainID))
}

// Get 单笔交易
// @Summary 查询账本中的交易
// @Tags Ledger
// @Produce json
// @Param chain_id path int true "Chain ID"
// @Param hash path string true "Transaction hash"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{chain_id}/{hash} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	var uri request.TxURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	rec, ok := h.ledger.Get(uri.ChainID, common.HexToHash(uri.Hash))
	if !ok {
		response.Error(c, errno.ErrTxNotFound)
		return
	}
	response.Success(c, rec)
}

// Clear 清空一条链
// @Summary 清空一条链上的全部记录
// @Tags Ledger
// @Produce json
// @Param chain_id path int true "Chain ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{chain_id} [delete]
func (h *LedgerHandler) Clear(c *gin.Context) {
	var uri request.ChainURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	h.ledger.Clear(uri.ChainID)
	response.Success(c, nil)
}
