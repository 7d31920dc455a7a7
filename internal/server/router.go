package server

import (
	"overlay-core/internal/handler"
	"overlay-core/internal/handler/response"
	"overlay-core/pkg/monitor"

	_ "overlay-core/docs/swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers HTTP 路由依赖的 handler
type Handlers struct {
	Tx     *handler.TxHandler
	Ledger *handler.LedgerHandler
	Popup  *handler.PopupHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		tx := api.Group("/tx")
		if h.Tx != nil {
			tx.POST("/build", h.Tx.Build)
			tx.POST("/unwind", h.Tx.Unwind)
			tx.POST("/bridge", h.Tx.Bridge)
			tx.POST("/approve", h.Tx.Approve)
		}
		if h.Ledger != nil {
			tx.GET("/:chain_id/pending", h.Ledger.Pending)
			tx.GET("/:chain_id/:hash", h.Ledger.Get)
			tx.DELETE("/:chain_id", h.Ledger.Clear)
		}

		if h.Popup != nil {
			popups := api.Group("/popups")
			popups.GET("/:account", h.Popup.List)
			popups.DELETE("/:account/:key", h.Popup.Dismiss)
		}
	}

	return r
}
