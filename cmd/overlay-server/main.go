package main

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"overlay-core/internal/event"
	"overlay-core/internal/handler"
	"overlay-core/internal/model"
	"overlay-core/internal/server"
	"overlay-core/internal/service"
	"overlay-core/internal/service/approval"
	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/ledger"
	"overlay-core/internal/service/mq"
	"overlay-core/internal/service/observer"
	"overlay-core/internal/service/pipeline"
	"overlay-core/internal/service/popup"
	"overlay-core/internal/service/relay"
	"overlay-core/internal/signer"
	"overlay-core/pkg/cache"
	"overlay-core/pkg/config"
	"overlay-core/pkg/database"
	"overlay-core/pkg/lock"
	"overlay-core/pkg/logger"
	"overlay-core/pkg/monitor"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title overlay-core API
// @version 1.0
// @description Overlay 交易提交与账本服务
// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger / 监控
	logger.Init(cfg.App.Env)
	defer logger.Sync()
	monitor.Init()

	ctx := context.Background()

	// 2. 连接节点
	client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
	if err != nil {
		logger.Fatal("RPC 连接失败", zap.String("rpc", cfg.Chain.RpcUrl), zap.Error(err))
	}
	defer client.Close()
	chainIDBig, err := client.ChainID(ctx)
	if err != nil {
		logger.Fatal("获取 ChainID 失败", zap.Error(err))
	}
	chainID := chainIDBig.Uint64()

	// 3. 热钱包签名器
	wallet, err := loadSigner(cfg.Wallet, chainIDBig, client)
	if err != nil {
		logger.Fatal("加载签名器失败", zap.Error(err))
	}
	logger.Info("热钱包已加载", zap.String("address", wallet.Address().Hex()), zap.Uint64("chain_id", chainID))

	// 4. Redis (可选): 缓存、分布式锁、Streams MQ
	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，退回单机实现", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	var locker lock.DistributedLock = lock.NewMemoryLock()
	var popupCache cache.Cache = cache.NewMemoryCache(cfg.Ledger.PopupTTL, time.Minute)
	if rdb != nil {
		locker = lock.NewRedisLock(rdb)
		popupCache = cache.NewMultiLevelCache(
			cache.NewMemoryCache(cfg.Ledger.PopupTTL, time.Minute),
			cache.NewRedisCache(rdb, "overlay:"),
		)
	}
	popups := popup.NewService(popupCache, cfg.Ledger.PopupTTL, logger.Named("popup"))

	// 5. 数据库 (可选): 账本持久化 + Outbox
	var db *gorm.DB
	ledgerOpts := []ledger.Option{ledger.WithLogger(logger.Named("ledger"))}
	if cfg.DB.Enabled {
		db, err = database.ConnectPostgres(database.DSN(cfg.DB), cfg.App.Env, logger.Named("db"))
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}
		if cfg.App.Env == "development" {
			logger.Info("开发环境: 自动迁移 Schema (GORM AutoMigrate)...")
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				logger.Fatal("数据库自动迁移失败", zap.Error(err))
			}
		}
		ledgerOpts = append(ledgerOpts, ledger.WithStore(ledger.NewGormStore(db, cfg.Kafka.Topic)))
	}

	// 6. 账本；没有 Outbox 时直接在进程内把确认事件转成弹窗
	var popupConsumer *relay.PopupConsumer
	if db == nil {
		ledgerOpts = append(ledgerOpts, ledger.WithListener(func(ev event.LedgerEvent) {
			payload, err := json.Marshal(ev)
			if err != nil {
				return
			}
			if err := popupConsumer.Handle(ctx, &mq.Message{Topic: cfg.Kafka.Topic, Key: ev.Key(), Payload: payload}); err != nil {
				logger.Warn("弹窗通知失败", zap.Error(err))
			}
		}))
	}
	l := ledger.New(ledgerOpts...)
	popupConsumer = relay.NewPopupConsumer(newConsumer(cfg, rdb), cfg.Kafka.Topic, l, popups, logger.Named("popup-consumer"))
	if err := l.Restore(ctx); err != nil {
		logger.Fatal("恢复账本失败", zap.Error(err))
	}

	// 7. 提交流水线
	est := estimator.New(client,
		estimator.WithTimeout(cfg.Pipeline.EstimateTimeout),
		estimator.WithLogger(logger.Named("estimator")))
	p := pipeline.New(est, l,
		pipeline.WithPopupSink(popups),
		pipeline.WithMarginBps(cfg.Pipeline.GasMarginBps),
		pipeline.WithSubmitTimeout(cfg.Pipeline.SubmitTimeout),
		pipeline.WithLogger(logger.Named("pipeline")))

	// 8. 后台任务
	obs := observer.NewEthObserver(chainID, client, l, cfg.Watcher.PollInterval, cfg.Watcher.Workers, logger.Named("observer"))
	cron := service.NewCronService(locker, l, cfg.Ledger.PruneSchedule, cfg.Ledger.Retention, logger.Named("cron"))
	workers := []server.Worker{
		{Name: "observer", Run: func(ctx context.Context) error {
			if err := obs.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return obs.Stop()
		}},
		{Name: "cron", Run: func(ctx context.Context) error {
			if err := cron.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			cron.Stop()
			return nil
		}},
	}
	if db != nil {
		producer := newProducer(cfg, rdb)
		if producer != nil {
			defer producer.Close()
			relaySvc := relay.NewRelayService(relay.NewGormOutbox(db), producer, 500*time.Millisecond, logger.Named("relay"))
			workers = append(workers,
				server.Worker{Name: "relay", Run: func(ctx context.Context) error {
					relaySvc.Start(ctx)
					return nil
				}},
				server.Worker{Name: "popup-consumer", Run: popupConsumer.Run},
			)
		}
	}

	// 9. HTTP + gRPC
	r := server.NewHTTPRouter(server.Handlers{
		Tx: handler.NewTxHandler(p, wallet, chainID, locker, cfg.Pipeline.LockTTL, logger.Named("tx"),
			handler.WithApprovalChecker(approval.NewChecker(client, l, logger.Named("approval")))),
		Ledger: handler.NewLedgerHandler(l),
		Popup:  handler.NewPopupHandler(popups),
	})
	grpcServer := server.NewGRPCServer(l, logger.Named("grpc"))

	app, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
	}, r, grpcServer, workers...)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞)
	app.Run()

	// 10. 退出后资源清理
	if db != nil {
		logger.Info("正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logger.Info("系统已退出")
}

func loadSigner(w config.WalletConfig, chainID *big.Int, client *ethclient.Client) (*signer.LocalSigner, error) {
	opt := signer.WithLogger(logger.Named("signer"))
	if w.Mnemonic != "" {
		return signer.FromMnemonic(w.Mnemonic, w.DerivationPath, chainID, client, opt)
	}
	return signer.FromKeystore(w.KeystorePath, w.Password, w.DerivationPath, chainID, client, opt)
}

// newProducer 按 redis.mq_type 选择 Kafka 或 Redis Streams；都不可用时返回 nil
func newProducer(cfg config.Config, rdb *redis.Client) mq.Producer {
	if cfg.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...", zap.Strings("brokers", cfg.Kafka.Brokers))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers, logger.Named("kafka"))
	}
	if rdb == nil {
		logger.Warn("Redis 不可用，账本事件只写入 Outbox，不做投递")
		return nil
	}
	logger.Info("使用 Redis Streams 作为消息队列...")
	return mq.NewRedisProducer(rdb, 100000)
}

func newConsumer(cfg config.Config, rdb *redis.Client) mq.Consumer {
	if cfg.Redis.MQType == "kafka" {
		return mq.NewKafkaConsumer(cfg.Kafka.Brokers, "overlay_popup_group", logger.Named("kafka"))
	}
	if rdb == nil {
		return nil
	}
	return mq.NewRedisConsumer(rdb, "overlay_popup", "popup-0", logger.Named("redis-mq"))
}
