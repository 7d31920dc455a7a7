package cmd

import (
	"fmt"
	"os"

	"overlay-core/pkg/config"
	"overlay-core/pkg/logger"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "overlay-cli",
	Short: "Overlay 交易命令行工具",
	Long: `使用本地 keystore 签名并提交 Overlay 交易: 授权、开仓、平仓、跨链。
也可以查看或清空本地/远端账本中的 pending 交易。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Printf("错误: "+format+"\n", args...)
	os.Exit(1)
}
