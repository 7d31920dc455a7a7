package cmd

import (
	"context"
	"fmt"
	"time"

	"overlay-core/internal/handler/request"
	"overlay-core/internal/service/builder"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "授权 spender 使用代币 (默认 OVL -> market)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := newRuntime(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}
		defer rt.Close()

		req := request.ApproveRequest{
			ChainID: rt.chainID,
			Token:   stringFlag(cmd, "token", firstNonEmpty(rt.contracts.Collateral, rt.contracts.Token)),
			Spender: stringFlag(cmd, "spender", rt.contracts.Market),
			Amount:  stringFlag(cmd, "amount", ""),
		}
		req.Exact, _ = cmd.Flags().GetBool("exact")
		in, err := req.Intent()
		if err != nil {
			fail("%v", err)
		}
		if force, _ := cmd.Flags().GetBool("force"); !force {
			switch rt.approvalState(ctx, in) {
			case builder.ApprovalApproved:
				fmt.Println("额度已足够，无需授权")
				return
			case builder.ApprovalPending:
				fmt.Println("已有待确认的授权交易")
				return
			}
		}
		rt.submit(ctx, cmd, rt.pipeline.ApproveCallback(rt.session(), in))
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "开仓",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := newRuntime(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}
		defer rt.Close()

		req := request.BuildRequest{
			ChainID:    rt.chainID,
			Market:     stringFlag(cmd, "market", rt.contracts.Market),
			Collateral: stringFlag(cmd, "collateral", ""),
			Leverage:   stringFlag(cmd, "leverage", ""),
			Slippage:   stringFlag(cmd, "slippage", ""),
			Prices:     pricesFlags(cmd),
		}
		req.IsLong, _ = cmd.Flags().GetBool("long")
		in, err := req.Intent()
		if err != nil {
			fail("%v", err)
		}
		rt.submit(ctx, cmd, rt.pipeline.BuildCallback(rt.session(), in))
	},
}

var unwindCmd = &cobra.Command{
	Use:   "unwind",
	Short: "平仓 (按百分比)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := newRuntime(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}
		defer rt.Close()

		req := request.UnwindRequest{
			ChainID:       rt.chainID,
			Market:        stringFlag(cmd, "market", rt.contracts.Market),
			PositionID:    stringFlag(cmd, "position-id", ""),
			UnwindValue:   stringFlag(cmd, "percent", ""),
			PositionValue: stringFlag(cmd, "position-value", ""),
			Slippage:      stringFlag(cmd, "slippage", ""),
			Prices:        pricesFlags(cmd),
		}
		if cmd.Flags().Changed("long") {
			isLong, _ := cmd.Flags().GetBool("long")
			req.IsLong = &isLong
		}
		in, err := req.Intent()
		if err != nil {
			fail("%v", err)
		}
		rt.submit(ctx, cmd, rt.pipeline.UnwindCallback(rt.session(), in))
	},
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "通过 LayerZero OFT 跨链转出 OVL",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := newRuntime(ctx, cmd)
		if err != nil {
			fail("%v", err)
		}
		defer rt.Close()

		req := request.BridgeRequest{
			ChainID:       rt.chainID,
			Token:         stringFlag(cmd, "token", rt.contracts.Bridge),
			Amount:        stringFlag(cmd, "amount", ""),
			NativeFee:     stringFlag(cmd, "native-fee", ""),
			AdapterParams: stringFlag(cmd, "adapter-params", ""),
		}
		req.DstChainID, _ = cmd.Flags().GetUint16("dst-lz-chain")
		in, err := req.Intent()
		if err != nil {
			fail("%v", err)
		}
		rt.submit(ctx, cmd, rt.pipeline.BridgeCallback(rt.session(), in))
	},
}

func init() {
	approveCmd.Flags().String("token", "", "代币地址 (默认配置中的 collateral/token)")
	approveCmd.Flags().String("spender", "", "被授权地址 (默认配置中的 market)")
	approveCmd.Flags().String("amount", "", "本次需要的数量 (wei)，MaxUint256 授权失败时按此精确授权")
	approveCmd.Flags().Bool("exact", false, "只授权 --amount 指定的数量")
	approveCmd.Flags().Bool("force", false, "不检查当前额度，直接发送授权")

	buildCmd.Flags().String("market", "", "市场合约 (默认配置中的 market)")
	buildCmd.Flags().String("collateral", "", "抵押 OVL 数量，例如 10.5")
	buildCmd.Flags().String("leverage", "1", "杠杆倍数")
	buildCmd.Flags().Bool("long", true, "做多 (--long=false 做空)")
	buildCmd.Flags().String("slippage", "1", "滑点百分比")
	addPriceFlags(buildCmd)

	unwindCmd.Flags().String("market", "", "市场合约 (默认配置中的 market)")
	unwindCmd.Flags().String("position-id", "", "仓位 ID")
	unwindCmd.Flags().String("percent", "100", "平仓百分比")
	unwindCmd.Flags().String("position-value", "", "仓位当前价值 (wei)")
	unwindCmd.Flags().Bool("long", true, "仓位方向")
	unwindCmd.Flags().String("slippage", "1", "滑点百分比")
	addPriceFlags(unwindCmd)

	bridgeCmd.Flags().String("token", "", "OFT 合约 (默认配置中的 bridge)")
	bridgeCmd.Flags().Uint16("dst-lz-chain", 0, "目标链的 LayerZero 链 ID")
	bridgeCmd.Flags().String("amount", "", "转出 OVL 数量，例如 25")
	bridgeCmd.Flags().String("native-fee", "", "estimateSendFee 返回的原生代币手续费 (wei)")
	bridgeCmd.Flags().String("adapter-params", "", "LayerZero adapterParams (0x hex)")

	for _, c := range []*cobra.Command{approveCmd, buildCmd, unwindCmd, bridgeCmd} {
		c.Flags().BoolP("yes", "y", false, "跳过签名确认")
		c.Flags().Bool("wait", false, "等待交易确认")
		c.Flags().Duration("timeout", 5*time.Minute, "--wait 的最长等待时间")
		rootCmd.AddCommand(c)
	}
}

func addPriceFlags(c *cobra.Command) {
	c.Flags().String("bid", "", "市场买价 (18 位小数的整数原值)")
	c.Flags().String("ask", "", "市场卖价 (18 位小数的整数原值)")
}

// pricesFlags 未同时给出 bid/ask 时返回 nil，流水线会报告 Loading
func pricesFlags(cmd *cobra.Command) *request.PricesRequest {
	bid, _ := cmd.Flags().GetString("bid")
	ask, _ := cmd.Flags().GetString("ask")
	if bid == "" || ask == "" {
		return nil
	}
	return &request.PricesRequest{Bid: bid, Ask: ask}
}

func stringFlag(cmd *cobra.Command, name, fallback string) string {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
