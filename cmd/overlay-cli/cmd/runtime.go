package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"overlay-core/internal/service/approval"
	"overlay-core/internal/service/builder"
	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/ledger"
	"overlay-core/internal/service/observer"
	"overlay-core/internal/service/pipeline"
	"overlay-core/internal/signer"
	"overlay-core/pkg/config"
	"overlay-core/pkg/database"
	"overlay-core/pkg/logger"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// runtime 一次命令执行所需的节点连接、签名器、账本与流水线
type runtime struct {
	client    *ethclient.Client
	chainID   uint64
	signer    *signer.LocalSigner
	ledger    *ledger.Ledger
	pipeline  *pipeline.Pipeline
	db        *gorm.DB
	contracts config.ContractAddresses
}

func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	cfg := config.Global
	client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("RPC 连接失败: %w", err)
	}
	chainIDBig, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("获取 ChainID 失败: %w", err)
	}
	rt := &runtime{client: client, chainID: chainIDBig.Uint64()}
	rt.contracts, _ = cfg.Chain.ContractsFor(rt.chainID)

	skipConfirm, _ := cmd.Flags().GetBool("yes")
	opts := []signer.Option{signer.WithLogger(logger.Named("signer"))}
	if !skipConfirm {
		opts = append(opts, signer.WithConfirm(confirmPrompt(cmd.InOrStdin(), cmd.OutOrStdout())))
	}
	if rt.signer, err = loadSigner(cfg.Wallet, chainIDBig, client, opts...); err != nil {
		rt.Close()
		return nil, err
	}

	if rt.ledger, rt.db, err = openLedger(ctx, cfg); err != nil {
		rt.Close()
		return nil, err
	}

	est := estimator.New(client,
		estimator.WithTimeout(cfg.Pipeline.EstimateTimeout),
		estimator.WithLogger(logger.Named("estimator")))
	rt.pipeline = pipeline.New(est, rt.ledger,
		pipeline.WithMarginBps(cfg.Pipeline.GasMarginBps),
		pipeline.WithSubmitTimeout(cfg.Pipeline.SubmitTimeout),
		pipeline.WithLogger(logger.Named("pipeline")))
	return rt, nil
}

func (rt *runtime) Close() {
	closeDB(rt.db)
	rt.client.Close()
}

func (rt *runtime) session() pipeline.Session {
	account := rt.signer.Address()
	chainID := rt.chainID
	return pipeline.Session{Account: &account, ChainID: &chainID, Signer: rt.signer}
}

// submit 执行回调；--wait 时在进程内扫块直到交易确认
func (rt *runtime) submit(ctx context.Context, cmd *cobra.Command, cb pipeline.Callback) {
	switch cb.State {
	case pipeline.StateInvalid:
		fail("%s", cb.Error)
	case pipeline.StateLoading:
		fail("行情数据尚未就绪: %s", cb.Error)
	}

	hash, err := cb.Run(ctx)
	var regErr *pipeline.RegistrationError
	switch {
	case pipeline.IsUserRejected(err):
		fmt.Println("已取消")
		return
	case errors.As(err, &regErr):
		fmt.Printf("⚠️  交易已广播但账本登记失败: %v\n", regErr.Err)
	case err != nil:
		fail("%v", err)
	}
	fmt.Printf("交易已广播: %s\n", hash.Hex())

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait || regErr != nil {
		return
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w := config.Global.Watcher
	obs := observer.NewEthObserver(rt.chainID, rt.client, rt.ledger, w.PollInterval, 1, logger.Named("observer"))
	if err := obs.Start(wctx); err != nil {
		fail("启动扫块失败: %v", err)
	}
	fmt.Println("等待确认...")
	receipt, err := observer.WaitFinalized(wctx, rt.ledger, rt.chainID, hash, time.Second)
	cancel()
	_ = obs.Stop()
	if err != nil {
		fail("等待确认失败: %v", err)
	}
	if receipt.Succeeded() {
		fmt.Printf("✅ 已确认，区块 %d\n", receipt.BlockNumber)
	} else {
		fmt.Printf("❌ 交易失败 (reverted)，区块 %d\n", receipt.BlockNumber)
	}
}

// approvalState 链上额度 + 账本中的待确认授权
func (rt *runtime) approvalState(ctx context.Context, in builder.ApprovalIntent) builder.ApprovalState {
	return approval.NewChecker(rt.client, rt.ledger, logger.Named("approval")).State(ctx, rt.chainID, rt.signer.Address(), in)
}

func loadSigner(w config.WalletConfig, chainID *big.Int, client *ethclient.Client, opts ...signer.Option) (*signer.LocalSigner, error) {
	if w.Mnemonic != "" {
		return signer.FromMnemonic(w.Mnemonic, w.DerivationPath, chainID, client, opts...)
	}
	password, err := walletPassword()
	if err != nil {
		return nil, fmt.Errorf("读取密码失败: %w", err)
	}
	return signer.FromKeystore(w.KeystorePath, password, w.DerivationPath, chainID, client, opts...)
}

// openLedger db.enabled 时使用 Postgres 持久化并恢复；否则只在本进程内有效
func openLedger(ctx context.Context, cfg config.Config) (*ledger.Ledger, *gorm.DB, error) {
	opts := []ledger.Option{ledger.WithLogger(logger.Named("ledger"))}
	var db *gorm.DB
	if cfg.DB.Enabled {
		var err error
		db, err = database.ConnectPostgres(database.DSN(cfg.DB), cfg.App.Env, logger.Named("db"))
		if err != nil {
			return nil, nil, fmt.Errorf("数据库连接失败: %w", err)
		}
		opts = append(opts, ledger.WithStore(ledger.NewGormStore(db, cfg.Kafka.Topic)))
	}
	l := ledger.New(opts...)
	if err := l.Restore(ctx); err != nil {
		return nil, db, fmt.Errorf("恢复账本失败: %w", err)
	}
	if db == nil {
		logger.Debug("未启用数据库，账本仅保存在内存中")
	}
	return l, db, nil
}

// confirmPrompt 签名前打印交易摘要并等待 y/N
func confirmPrompt(in io.Reader, out io.Writer) signer.ConfirmFunc {
	r := bufio.NewReader(in)
	return func(ctx context.Context, tx pipeline.TxRequest) (bool, error) {
		fmt.Fprintf(out, "\nFrom:  %s\nTo:    %s\n", tx.From.Hex(), tx.To.Hex())
		if tx.Value != nil && tx.Value.Sign() > 0 {
			fmt.Fprintf(out, "Value: %s wei\n", tx.Value)
		}
		if tx.GasLimit != nil {
			fmt.Fprintf(out, "Gas:   %d\n", *tx.GasLimit)
		}
		fmt.Fprintf(out, "Data:  %d bytes\n", len(tx.Data))
		fmt.Fprint(out, "确认签名并广播? (y/N): ")
		return yes(r), nil
	}
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
