package builder

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const tokenDecimals = 18

var hundred = decimal.NewFromInt(100)

// parseInput 解析用户输入的数值；"" 与 "." 视为非法
func parseInput(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseUnits 等价于 ethers 的 parseUnits(value, 18)，超出精度部分截断
func parseUnits(d decimal.Decimal) *big.Int {
	return d.Shift(tokenDecimals).Truncate(0).BigInt()
}

// applySlippage price * (100 ± slippage) / 100
func applySlippage(price *big.Int, slippage decimal.Decimal, up bool) *big.Int {
	factor := hundred.Sub(slippage)
	if up {
		factor = hundred.Add(slippage)
	}
	return decimal.NewFromBigInt(price, 0).Mul(factor).Div(hundred).Truncate(0).BigInt()
}
