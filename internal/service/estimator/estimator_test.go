package estimator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 按目标地址返回预设结果
type fakeProvider struct {
	mu        sync.Mutex
	gas       map[common.Address]uint64
	gasErr    map[common.Address]error
	callErr   map[common.Address]error
	delay     time.Duration
	inFlight  int32
	maxFlight int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		gas:     map[common.Address]uint64{},
		gasErr:  map[common.Address]error{},
		callErr: map[common.Address]error{},
	}
}

func (p *fakeProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	n := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&p.maxFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&p.maxFlight, cur, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.gasErr[*msg.To]; ok {
		return 0, err
	}
	return p.gas[*msg.To], nil
}

func (p *fakeProvider) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.callErr[*msg.To]; ok {
		return nil, err
	}
	return []byte{0x01}, nil
}

// dataError 模拟 go-ethereum rpc.DataError
type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func call(n int64) types.Call {
	return types.NewCall(addr(n), []byte{byte(n)}, nil)
}

func TestEstimateSuccess(t *testing.T) {
	p := newFakeProvider()
	p.gas[addr(1)] = 21000

	out := New(p).Estimate(context.Background(), addr(99), []types.Call{call(1)})
	require.Len(t, out, 1)
	require.True(t, out[0].IsEstimated())
	assert.Equal(t, uint64(21000), *out[0].GasEstimate)
}

func TestEstimateFallsBackToSimulationRevert(t *testing.T) {
	p := newFakeProvider()
	p.gasErr[addr(1)] = errors.New("gas required exceeds allowance")
	p.callErr[addr(1)] = errors.New("execution reverted: INSUFFICIENT_COLLATERAL")

	out := New(p).Estimate(context.Background(), addr(99), []types.Call{call(1)})
	require.Len(t, out, 1)
	assert.False(t, out[0].IsEstimated())

	var revert *RevertError
	require.ErrorAs(t, out[0].Err, &revert)
	assert.Equal(t, "INSUFFICIENT_COLLATERAL", revert.Error())
}

func TestEstimateInconsistentWhenSimulationSucceeds(t *testing.T) {
	p := newFakeProvider()
	p.gasErr[addr(1)] = errors.New("node hiccup")

	out := New(p).Estimate(context.Background(), addr(99), []types.Call{call(1)})
	require.Len(t, out, 1)

	var inconsistent *InconsistentEstimationError
	require.ErrorAs(t, out[0].Err, &inconsistent)
	assert.Contains(t, out[0].Err.Error(), "Please try again")
}

func TestEstimatePreservesOrderAndRunsConcurrently(t *testing.T) {
	p := newFakeProvider()
	p.delay = 20 * time.Millisecond
	calls := make([]types.Call, 5)
	for i := range calls {
		calls[i] = call(int64(i + 1))
		p.gas[addr(int64(i+1))] = uint64(1000 * (i + 1))
	}
	p.gasErr[addr(3)] = errors.New("boom")
	p.callErr[addr(3)] = errors.New("execution reverted: NOPE")

	out := New(p).Estimate(context.Background(), addr(99), calls)
	require.Len(t, out, 5)
	for i, o := range out {
		assert.Equal(t, calls[i].Target, o.Call.Target)
		if i == 2 {
			assert.EqualError(t, o.Err, "NOPE")
			continue
		}
		assert.Equal(t, uint64(1000*(i+1)), *o.GasEstimate)
	}
	assert.Greater(t, atomic.LoadInt32(&p.maxFlight), int32(1))
}

func TestEstimateIgnoresCallerCancellation(t *testing.T) {
	p := newFakeProvider()
	p.gas[addr(1)] = 50000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(p).Estimate(ctx, addr(99), []types.Call{call(1)})
	require.True(t, out[0].IsEstimated())
}

func TestRevertReasonDecodesErrorData(t *testing.T) {
	// Error(string) selector + abi 编码的 "OVLV1:slippage>max"
	data := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000012" +
		"4f564c56313a736c6970706167653e6d61780000000000000000000000000000"
	err := &dataError{msg: "execution reverted", data: data}
	assert.Equal(t, "OVLV1:slippage>max", RevertReason(err))

	raw, _ := hexutil.Decode(data)
	assert.Equal(t, "OVLV1:slippage>max", RevertReason(&dataError{msg: "x", data: raw}))

	assert.Equal(t, "plain", RevertReason(errors.New("plain")))
	assert.Equal(t, "execution reverted", RevertReason(&dataError{msg: "execution reverted", data: "0xzz"}))
}
