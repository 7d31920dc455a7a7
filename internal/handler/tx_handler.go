package handler

import (
	"context"
	"strconv"
	"time"

	"overlay-core/internal/handler/request"
	"overlay-core/internal/handler/response"
	"overlay-core/internal/service/builder"
	"overlay-core/internal/service/pipeline"
	"overlay-core/pkg/digest"
	"overlay-core/pkg/errno"
	"overlay-core/pkg/lock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Submitter *pipeline.Pipeline 满足
type Submitter interface {
	Callback(s pipeline.Session, intent builder.Intent) pipeline.Callback
}

// Wallet 服务端热钱包
type Wallet interface {
	pipeline.Signer
	Address() common.Address
}

// ApprovalChecker *approval.Checker 满足
type ApprovalChecker interface {
	State(ctx context.Context, chainID uint64, owner common.Address, in builder.ApprovalIntent) builder.ApprovalState
}

type TxHandler struct {
	pipeline  Submitter
	wallet    Wallet
	chainID   uint64
	locker    lock.DistributedLock
	lockTTL   time.Duration
	approvals ApprovalChecker
	log       *zap.Logger
}

type TxOption func(*TxHandler)

// WithApprovalChecker 授权前先查链上额度与待确认的授权
func WithApprovalChecker(c ApprovalChecker) TxOption {
	return func(h *TxHandler) { h.approvals = c }
}

func NewTxHandler(p Submitter, wallet Wallet, chainID uint64, locker lock.DistributedLock, lockTTL time.Duration, log *zap.Logger, opts ...TxOption) *TxHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &TxHandler{pipeline: p, wallet: wallet, chainID: chainID, locker: locker, lockTTL: lockTTL, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TxResponse 提交成功后的 hash
type TxResponse struct {
	Hash string `json:"hash"`
}

// Build 开仓
// @Summary 开仓
// @Description 构造 OverlayV1Market.build 调用，估算 gas 后签名广播并登记到账本
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.BuildRequest true "Build Request"
// @Success 200 {object} response.Response{data=TxResponse}
// @Router /api/v1/tx/build [post]
func (h *TxHandler) Build(c *gin.Context) {
	var req request.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	in, err := req.Intent()
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage(err.Error()))
		return
	}
	h.submit(c, req.ChainID, in, req)
}

// Unwind 平仓
// @Summary 平仓
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.UnwindRequest true "Unwind Request"
// @Success 200 {object} response.Response{data=TxResponse}
// @Router /api/v1/tx/unwind [post]
func (h *TxHandler) Unwind(c *gin.Context) {
	var req request.UnwindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	in, err := req.Intent()
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage(err.Error()))
		return
	}
	h.submit(c, req.ChainID, in, req)
}

// Bridge 跨链
// @Summary LayerZero OFT 跨链转账
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.BridgeRequest true "Bridge Request"
// @Success 200 {object} response.Response{data=TxResponse}
// @Router /api/v1/tx/bridge [post]
func (h *TxHandler) Bridge(c *gin.Context) {
	var req request.BridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	in, err := req.Intent()
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage(err.Error()))
		return
	}
	h.submit(c, req.ChainID, in, req)
}

// Approve 授权
// @Summary ERC20 授权
// @Description 额度已足够或已有待确认的同一授权时直接返回，force 为 true 时跳过检查
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.ApproveRequest true "Approve Request"
// @Success 200 {object} response.Response{data=TxResponse}
// @Router /api/v1/tx/approve [post]
func (h *TxHandler) Approve(c *gin.Context) {
	var req request.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	in, err := req.Intent()
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage(err.Error()))
		return
	}
	if h.approvals != nil && !req.Force && req.ChainID == h.chainID {
		switch h.approvals.State(c.Request.Context(), req.ChainID, h.wallet.Address(), in) {
		case builder.ApprovalApproved:
			response.Error(c, errno.ErrAlreadyApproved)
			return
		case builder.ApprovalPending:
			response.Error(c, errno.ErrApprovalPending)
			return
		}
	}
	h.submit(c, req.ChainID, in, req)
}

func (h *TxHandler) submit(c *gin.Context, chainID uint64, intent builder.Intent, req interface{}) {
	if chainID != h.chainID {
		response.Error(c, errno.ErrUnsupportedChain)
		return
	}
	account := h.wallet.Address()
	session := pipeline.Session{Account: &account, ChainID: &chainID, Signer: h.wallet}

	// 1. 状态检查
	cb := h.pipeline.Callback(session, intent)
	switch cb.State {
	case pipeline.StateLoading:
		response.Error(c, errno.ErrAwaitingMarketData)
		return
	case pipeline.StateInvalid:
		if cb.Error == pipeline.MissingDependencies {
			response.Error(c, errno.ErrMissingDependencies)
		} else {
			response.Error(c, errno.ErrInvalidIntent.WithMessage(cb.Error))
		}
		return
	}

	// 2. 相同请求正在提交中则拒绝，避免重复广播
	ctx := c.Request.Context()
	fp, err := digest.Fingerprint(string(intent.Kind()), strconv.FormatUint(chainID, 10), account.Hex(), req)
	if err != nil {
		response.Error(c, errno.InternalServerError)
		return
	}
	lockKey := "tx:" + fp
	token, ok, err := h.locker.Acquire(ctx, lockKey, h.lockTTL)
	if err != nil {
		h.log.Error("获取提交锁失败", zap.Error(err))
		response.Error(c, errno.ErrRedis)
		return
	}
	if !ok {
		response.Error(c, errno.ErrDuplicateSubmission)
		return
	}
	stop := h.keepAlive(ctx, lockKey, token)
	defer func() {
		stop()
		// 客户端断开后 request ctx 已取消，释放不能跟着失败
		if err := h.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			h.log.Warn("释放提交锁失败", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	// 3. 执行
	hash, err := cb.Run(ctx)
	if err != nil {
		e := toErrno(err)
		if hash != (common.Hash{}) {
			response.ErrorWithData(c, e, TxResponse{Hash: hash.Hex()})
			return
		}
		response.Error(c, e)
		return
	}
	response.Success(c, TxResponse{Hash: hash.Hex()})
}

// keepAlive 提交期间按 ttl/3 续期，返回的 stop 等续期协程退出后才返回
func (h *TxHandler) keepAlive(ctx context.Context, key, token string) (stop func()) {
	interval := h.lockTTL / 3
	if interval <= 0 {
		return func() {}
	}
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := h.locker.Refresh(ctx, key, token, h.lockTTL); err != nil {
					h.log.Warn("提交锁续期失败", zap.String("key", key), zap.Error(err))
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
