package handler

import (
	"context"

	"overlay-core/internal/handler/request"
	"overlay-core/internal/handler/response"
	"overlay-core/internal/service/popup"
	"overlay-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// PopupStore *popup.Service 满足
type PopupStore interface {
	List(ctx context.Context, account string) ([]popup.Popup, error)
	Dismiss(ctx context.Context, account, key string) error
}

type PopupHandler struct {
	popups PopupStore
}

func NewPopupHandler(s PopupStore) *PopupHandler {
	return &PopupHandler{popups: s}
}

// List 账户的弹窗
// @Summary 账户当前的交易通知
// @Tags Popup
// @Produce json
// @Param account path string true "Account"
// @Success 200 {object} response.Response
// @Router /api/v1/popups/{account} [get]
func (h *PopupHandler) List(c *gin.Context) {
	var uri request.PopupURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	list, err := h.popups.List(c.Request.Context(), uri.Account)
	if err != nil {
		response.Error(c, errno.ErrRedis)
		return
	}
	response.Success(c, list)
}

// Dismiss 关闭一条弹窗
// @Summary 关闭通知
// @Tags Popup
// @Produce json
// @Param account path string true "Account"
// @Param key path string true "Popup key"
// @Success 200 {object} response.Response
// @Router /api/v1/popups/{account}/{key} [delete]
func (h *PopupHandler) Dismiss(c *gin.Context) {
	var uri request.PopupURI
	if err := c.ShouldBindUri(&uri); err != nil || uri.Key == "" {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.popups.Dismiss(c.Request.Context(), uri.Account, uri.Key); err != nil {
		response.Error(c, errno.ErrRedis)
		return
	}
	response.Success(c, nil)
}
