package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ledgergrpc "overlay-core/internal/handler/grpc"
	"overlay-core/pkg/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "列出账本中尚未确认的交易",
	Long: `db.enabled 时直接读取 Postgres 中的账本；
否则通过 gRPC 查询 overlay-server (--grpc)。`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		chainID := resolveChainID(ctx, cmd)

		if config.Global.DB.Enabled {
			l, db, err := openLedger(ctx, config.Global)
			if err != nil {
				fail("%v", err)
			}
			defer closeDB(db)
			printJSON(l.PendingFor(chainID))
			return
		}

		client, closeFn := dialLedger(cmd)
		defer closeFn()
		out, err := client.GetPending(ctx, chainID)
		if err != nil {
			fail("查询失败: %v", err)
		}
		printProto(out)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <hash>",
	Short: "查看一笔交易在账本中的状态",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		chainID := resolveChainID(ctx, cmd)

		if config.Global.DB.Enabled {
			l, db, err := openLedger(ctx, config.Global)
			if err != nil {
				fail("%v", err)
			}
			defer closeDB(db)
			rec, ok := l.Get(chainID, common.HexToHash(args[0]))
			if !ok {
				fail("交易 %s 不在账本中", args[0])
			}
			printJSON(rec)
			return
		}

		client, closeFn := dialLedger(cmd)
		defer closeFn()
		out, err := client.GetTransaction(ctx, chainID, args[0])
		if err != nil {
			fail("查询失败: %v", err)
		}
		printProto(out)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "清空一条链上的全部账本记录 (需要 db.enabled)",
	Run: func(cmd *cobra.Command, args []string) {
		if !config.Global.DB.Enabled {
			fail("clear 需要启用数据库 (db.enabled=true)")
		}
		ctx := context.Background()
		chainID := resolveChainID(ctx, cmd)

		l, db, err := openLedger(ctx, config.Global)
		if err != nil {
			fail("%v", err)
		}
		defer closeDB(db)
		n := len(l.All(chainID))
		l.Clear(chainID)
		fmt.Printf("已清空 chain %d 的 %d 条记录\n", chainID, n)
	},
}

func init() {
	for _, c := range []*cobra.Command{pendingCmd, statusCmd, clearCmd} {
		c.Flags().Uint64("chain-id", 0, "链 ID (默认从 RPC 获取)")
		rootCmd.AddCommand(c)
	}
	pendingCmd.Flags().String("grpc", "localhost:50051", "overlay-server gRPC 地址")
	statusCmd.Flags().String("grpc", "localhost:50051", "overlay-server gRPC 地址")
}

func resolveChainID(ctx context.Context, cmd *cobra.Command) uint64 {
	if id, _ := cmd.Flags().GetUint64("chain-id"); id != 0 {
		return id
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(ctx, config.Global.Chain.RpcUrl)
	if err != nil {
		fail("RPC 连接失败: %v", err)
	}
	defer client.Close()
	id, err := client.ChainID(ctx)
	if err != nil {
		fail("获取 ChainID 失败: %v", err)
	}
	return id.Uint64()
}

func dialLedger(cmd *cobra.Command) (*ledgergrpc.LedgerClient, func()) {
	addr, _ := cmd.Flags().GetString("grpc")
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fail("gRPC 连接失败: %v", err)
	}
	return ledgergrpc.NewLedgerClient(conn), func() { _ = conn.Close() }
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(string(b))
}

func printProto(m proto.Message) {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(string(b))
}
