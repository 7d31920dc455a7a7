package builder

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// 只保留流水线需要的函数片段
const (
	erc20ABIJSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

	marketABIJSON = `[
	{"type":"function","name":"build","stateMutability":"nonpayable",
	 "inputs":[{"name":"collateral","type":"uint256"},{"name":"leverage","type":"uint256"},
	           {"name":"isLong","type":"bool"},{"name":"priceLimit","type":"uint256"}],
	 "outputs":[{"name":"positionId_","type":"uint256"}]},
	{"type":"function","name":"unwind","stateMutability":"nonpayable",
	 "inputs":[{"name":"positionId","type":"uint256"},{"name":"fraction","type":"uint256"},
	           {"name":"priceLimit","type":"uint256"}],
	 "outputs":[]}
]`

	oftABIJSON = `[
	{"type":"function","name":"sendFrom","stateMutability":"payable",
	 "inputs":[{"name":"_from","type":"address"},{"name":"_dstChainId","type":"uint16"},
	           {"name":"_toAddress","type":"bytes"},{"name":"_amount","type":"uint256"},
	           {"name":"_refundAddress","type":"address"},{"name":"_zroPaymentAddress","type":"address"},
	           {"name":"_adapterParams","type":"bytes"}],
	 "outputs":[]}
]`
)

var (
	erc20ABI  = mustParseABI(erc20ABIJSON)
	marketABI = mustParseABI(marketABIJSON)
	oftABI    = mustParseABI(oftABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
