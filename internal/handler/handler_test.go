package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"overlay-core/internal/handler/response"
	"overlay-core/internal/service/builder"
	"overlay-core/internal/service/estimator"
	"overlay-core/internal/service/ledger"
	"overlay-core/internal/service/pipeline"
	"overlay-core/internal/service/popup"
	"overlay-core/internal/types"
	"overlay-core/pkg/cache"
	"overlay-core/pkg/errno"
	"overlay-core/pkg/lock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainID = uint64(42161)

var (
	account = common.HexToAddress("0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e")
	txHash  = common.HexToHash("0x1234")
)

func init() {
	gin.SetMode(gin.TestMode)
}

type wallet struct{}

func (wallet) Address() common.Address { return account }
func (wallet) SendTransaction(context.Context, pipeline.TxRequest) (common.Hash, error) {
	return txHash, nil
}

// submitter 直接返回预设的回调
type submitter struct {
	mu      sync.Mutex
	cb      pipeline.Callback
	intents []builder.Intent
	session pipeline.Session
}

func (s *submitter) Callback(session pipeline.Session, intent builder.Intent) pipeline.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.intents = append(s.intents, intent)
	return s.cb
}

func valid(run func(ctx context.Context) (common.Hash, error)) pipeline.Callback {
	return pipeline.Callback{State: pipeline.StateValid, Run: run}
}

func newRouter(tx *TxHandler, l *LedgerHandler, p *PopupHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", HealthCheck)
	api := r.Group("/api/v1")
	if tx != nil {
		api.POST("/tx/build", tx.Build)
		api.POST("/tx/unwind", tx.Unwind)
		api.POST("/tx/bridge", tx.Bridge)
		api.POST("/tx/approve", tx.Approve)
	}
	if l != nil {
		api.GET("/tx/:chain_id/pending", l.Pending)
		api.GET("/tx/:chain_id/:hash", l.Get)
		api.DELETE("/tx/:chain_id", l.Clear)
	}
	if p != nil {
		api.GET("/popups/:account", p.List)
		api.DELETE("/popups/:account/:key", p.Dismiss)
	}
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) response.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataField(t *testing.T, resp response.Response, key string) interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m[key]
}

var buildBody = map[string]interface{}{
	"chain_id":   chainID,
	"market":     "0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01",
	"collateral": "10",
	"leverage":   "1",
	"is_long":    true,
	"slippage":   "1",
	"prices":     map[string]string{"bid": "100", "ask": "101"},
}

func TestSubmitBuild(t *testing.T) {
	s := &submitter{cb: valid(func(context.Context) (common.Hash, error) { return txHash, nil })}
	r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil), nil, nil)

	resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, txHash.Hex(), dataField(t, resp, "hash"))

	require.Len(t, s.intents, 1)
	in, ok := s.intents[0].(builder.BuildIntent)
	require.True(t, ok)
	assert.True(t, in.IsLong)
	require.NotNil(t, s.session.Account)
	assert.Equal(t, account, *s.session.Account)
	assert.Equal(t, chainID, *s.session.ChainID)
}

func TestSubmitCallbackStates(t *testing.T) {
	tests := []struct {
		name string
		cb   pipeline.Callback
		code int
	}{
		{"loading", pipeline.Callback{State: pipeline.StateLoading, Error: "market data not loaded"}, errno.ErrAwaitingMarketData.Code},
		{"missing deps", pipeline.Callback{State: pipeline.StateInvalid, Error: pipeline.MissingDependencies}, errno.ErrMissingDependencies.Code},
		{"precondition", pipeline.Callback{State: pipeline.StateInvalid, Error: "missing collateral"}, errno.ErrInvalidIntent.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &submitter{cb: tt.cb}
			r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil), nil, nil)
			resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestSubmitBindErrors(t *testing.T) {
	s := &submitter{cb: valid(func(context.Context) (common.Hash, error) { return txHash, nil })}
	r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil), nil, nil)

	// 缺少 chain_id
	resp := do(t, r, http.MethodPost, "/api/v1/tx/approve", map[string]string{"token": "0x01"})
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	resp = do(t, r, http.MethodPost, "/api/v1/tx/approve", map[string]interface{}{
		"chain_id": chainID, "token": "bad", "spender": "0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01",
	})
	assert.Equal(t, errno.ErrBind.Code, resp.Code)
	assert.Contains(t, resp.Message, "token")

	resp = do(t, r, http.MethodPost, "/api/v1/tx/unwind", map[string]interface{}{
		"chain_id": 1, "market": "0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01",
	})
	assert.Equal(t, errno.ErrUnsupportedChain.Code, resp.Code)
	assert.Empty(t, s.intents)
}

func TestSubmitErrorMapping(t *testing.T) {
	call := types.NewCall(common.HexToAddress("0x01"), nil, nil)
	tests := []struct {
		name     string
		err      error
		hash     common.Hash
		code     int
		withHash bool
	}{
		{"rejected", &pipeline.UserRejectedError{}, common.Hash{}, errno.ErrRejected.Code, false},
		{"submission", &pipeline.SubmissionError{Call: call, Err: errors.New("nonce too low")}, common.Hash{}, errno.ErrSubmission.Code, false},
		{"revert", &estimator.RevertError{Reason: "OVLV1:slippage>max"}, common.Hash{}, errno.ErrEstimation.Code, false},
		{"inconsistent", &estimator.InconsistentEstimationError{}, common.Hash{}, errno.ErrEstimation.Code, false},
		{"registration", &pipeline.RegistrationError{Hash: txHash, Err: errors.New("db")}, txHash, errno.ErrLedgerRegistration.Code, true},
		{"invariant", &pipeline.RegistrationError{Hash: txHash, Err: &ledger.InvariantError{ChainID: chainID, Hash: txHash}}, txHash, errno.ErrLedgerRegistration.Code, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &submitter{cb: valid(func(context.Context) (common.Hash, error) { return tt.hash, tt.err })}
			r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil), nil, nil)
			resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
			assert.Equal(t, tt.code, resp.Code)
			if tt.withHash {
				assert.Equal(t, txHash.Hex(), dataField(t, resp, "hash"))
			}
		})
	}
}

func TestDuplicateSubmissionIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := &submitter{cb: valid(func(context.Context) (common.Hash, error) {
		once.Do(func() { close(started) })
		<-release
		return txHash, nil
	})}
	r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil), nil, nil)

	first := make(chan response.Response, 1)
	go func() { first <- do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody) }()
	<-started

	resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
	assert.Equal(t, errno.ErrDuplicateSubmission.Code, resp.Code)

	close(release)
	assert.Equal(t, errno.OK.Code, (<-first).Code)

	// 第一笔完成后锁已释放
	resp = do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
	assert.Equal(t, errno.OK.Code, resp.Code)
}

func TestLedgerRoutes(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Record(chainID, txHash, account, types.ApprovalInfo{
		TokenAddress: common.HexToAddress("0x02"), Spender: common.HexToAddress("0x03"),
	}))
	r := newRouter(nil, NewLedgerHandler(l), nil)

	resp := do(t, r, http.MethodGet, "/api/v1/tx/42161/pending", nil)
	require.Equal(t, errno.OK.Code, resp.Code)
	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	rec := list[0].(map[string]interface{})
	assert.Equal(t, txHash.Hex(), rec["hash"])
	info := rec["info"].(map[string]interface{})
	assert.Equal(t, string(types.TransactionTypeApproval), info["type"])

	resp = do(t, r, http.MethodGet, "/api/v1/tx/42161/"+txHash.Hex(), nil)
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, txHash.Hex(), dataField(t, resp, "hash"))

	resp = do(t, r, http.MethodGet, "/api/v1/tx/1/"+txHash.Hex(), nil)
	assert.Equal(t, errno.ErrTxNotFound.Code, resp.Code)

	resp = do(t, r, http.MethodGet, "/api/v1/tx/abc/pending", nil)
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	resp = do(t, r, http.MethodDelete, "/api/v1/tx/42161", nil)
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Empty(t, l.PendingFor(chainID))
}

func TestPopupRoutes(t *testing.T) {
	svc := popup.NewService(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	require.NoError(t, svc.Notify(context.Background(), popup.Notification{
		Hash: txHash.Hex(), Account: account.Hex(), ChainID: chainID, Success: true,
	}))
	r := newRouter(nil, nil, NewPopupHandler(svc))

	resp := do(t, r, http.MethodGet, "/api/v1/popups/"+account.Hex(), nil)
	require.Equal(t, errno.OK.Code, resp.Code)
	list := resp.Data.([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, txHash.Hex(), list[0].(map[string]interface{})["key"])

	resp = do(t, r, http.MethodDelete, "/api/v1/popups/"+account.Hex()+"/"+txHash.Hex(), nil)
	assert.Equal(t, errno.OK.Code, resp.Code)

	resp = do(t, r, http.MethodGet, "/api/v1/popups/"+account.Hex(), nil)
	assert.Empty(t, resp.Data)
}

func TestHealth(t *testing.T) {
	resp := do(t, newRouter(nil, nil, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, "UP", dataField(t, resp, "status"))
}

func TestSubmitLockOutlivesTTL(t *testing.T) {
	started := make(chan struct{})
	var runs int
	var mu sync.Mutex
	s := &submitter{cb: valid(func(context.Context) (common.Hash, error) {
		mu.Lock()
		runs++
		first := runs == 1
		mu.Unlock()
		if first {
			close(started)
			time.Sleep(300 * time.Millisecond)
		}
		return txHash, nil
	})}
	// 一次提交比锁的 TTL 还长，续期保证锁不会中途过期
	r := newRouter(NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), 60*time.Millisecond, nil), nil, nil)

	first := make(chan response.Response, 1)
	go func() { first <- do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody) }()
	<-started
	time.Sleep(150 * time.Millisecond)

	resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
	assert.Equal(t, errno.ErrDuplicateSubmission.Code, resp.Code)
	assert.Equal(t, errno.OK.Code, (<-first).Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

// releaseLock 记录释放时 ctx 是否已取消
type releaseLock struct {
	*lock.MemoryLock
	releaseErr error
}

func (l *releaseLock) Release(ctx context.Context, key, token string) error {
	l.releaseErr = ctx.Err()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return l.MemoryLock.Release(ctx, key, token)
}

func TestSubmitReleasesLockAfterClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &submitter{cb: valid(func(context.Context) (common.Hash, error) {
		cancel() // 客户端在广播期间断开
		return txHash, nil
	})}
	locker := &releaseLock{MemoryLock: lock.NewMemoryLock()}
	r := newRouter(NewTxHandler(s, wallet{}, chainID, locker, time.Minute, nil), nil, nil)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(buildBody))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tx/build", &buf).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.NoError(t, locker.releaseErr)
	// 锁已释放，同样的请求可以立即再提交
	s.cb = valid(func(context.Context) (common.Hash, error) { return txHash, nil })
	resp := do(t, r, http.MethodPost, "/api/v1/tx/build", buildBody)
	assert.Equal(t, errno.OK.Code, resp.Code)
}

type approvals struct {
	state builder.ApprovalState
	asked []builder.ApprovalIntent
}

func (a *approvals) State(_ context.Context, _ uint64, owner common.Address, in builder.ApprovalIntent) builder.ApprovalState {
	a.asked = append(a.asked, in)
	return a.state
}

func TestApproveChecksExistingApproval(t *testing.T) {
	body := map[string]interface{}{
		"chain_id": chainID,
		"token":    "0x4305C4Bc521B052F17d389c2Fe9d37caBeB70d54",
		"spender":  "0x8b0d0D2D3e4a6E52D104bAF3e4E9E8cD8f1a2c01",
		"amount":   "1000",
	}
	tests := []struct {
		name  string
		state builder.ApprovalState
		force bool
		code  int
		runs  int
	}{
		{"approved", builder.ApprovalApproved, false, errno.ErrAlreadyApproved.Code, 0},
		{"pending", builder.ApprovalPending, false, errno.ErrApprovalPending.Code, 0},
		{"not approved", builder.ApprovalNotApproved, false, errno.OK.Code, 1},
		{"unknown", builder.ApprovalUnknown, false, errno.OK.Code, 1},
		{"forced", builder.ApprovalPending, true, errno.OK.Code, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &submitter{cb: valid(func(context.Context) (common.Hash, error) { return txHash, nil })}
			a := &approvals{state: tt.state}
			h := NewTxHandler(s, wallet{}, chainID, lock.NewMemoryLock(), time.Minute, nil, WithApprovalChecker(a))
			r := newRouter(h, nil, nil)

			req := map[string]interface{}{"force": tt.force}
			for k, v := range body {
				req[k] = v
			}
			resp := do(t, r, http.MethodPost, "/api/v1/tx/approve", req)
			assert.Equal(t, tt.code, resp.Code)
			assert.Len(t, s.intents, tt.runs)
			if !tt.force {
				require.Len(t, a.asked, 1)
				assert.Equal(t, 0, a.asked[0].Amount.Cmp(big.NewInt(1000)))
			}
		})
	}
}
