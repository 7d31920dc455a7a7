package cmd

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"overlay-core/internal/service/pipeline"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmPrompt(t *testing.T) {
	gas := uint64(52000)
	tx := pipeline.TxRequest{
		From:     common.HexToAddress("0x01"),
		To:       common.HexToAddress("0x02"),
		Data:     []byte{0x01, 0x02, 0x03},
		Value:    big.NewInt(7),
		GasLimit: &gas,
	}

	var out bytes.Buffer
	confirm := confirmPrompt(strings.NewReader("y\nno\n\nYES\n"), &out)

	for _, want := range []bool{true, false, false, true} {
		ok, err := confirm(context.Background(), tx)
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.Contains(t, out.String(), "Gas:   52000")
	assert.Contains(t, out.String(), "Value: 7 wei")
	assert.Contains(t, out.String(), "Data:  3 bytes")
}

func TestPricesFlags(t *testing.T) {
	c := &cobra.Command{Use: "t"}
	addPriceFlags(c)
	assert.Nil(t, pricesFlags(c))

	require.NoError(t, c.Flags().Set("bid", "100"))
	assert.Nil(t, pricesFlags(c), "ask missing")

	require.NoError(t, c.Flags().Set("ask", "101"))
	p := pricesFlags(c)
	require.NotNil(t, p)
	assert.Equal(t, "100", p.Bid)
	assert.Equal(t, "101", p.Ask)
}

func TestStringFlagFallback(t *testing.T) {
	c := &cobra.Command{Use: "t"}
	c.Flags().String("market", "", "")
	assert.Equal(t, "0xdefault", stringFlag(c, "market", "0xdefault"))

	require.NoError(t, c.Flags().Set("market", "0xgiven"))
	assert.Equal(t, "0xgiven", stringFlag(c, "market", "0xdefault"))

	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
}

func TestSubmitCommandsRegistered(t *testing.T) {
	for _, name := range []string{"approve", "build", "unwind", "bridge", "pending", "status", "clear", "keystore"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	for _, name := range []string{"approve", "build", "unwind", "bridge"} {
		c, _, _ := rootCmd.Find([]string{name})
		assert.NotNil(t, c.Flags().Lookup("wait"), name)
		assert.NotNil(t, c.Flags().Lookup("yes"), name)
	}
}
