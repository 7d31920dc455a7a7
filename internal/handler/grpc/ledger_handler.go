package grpc

import (
	"context"
	"encoding/json"
	"math"

	"overlay-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	LedgerServiceName        = "overlay.v1.LedgerService"
	methodGetPending         = "/" + LedgerServiceName + "/GetPending"
	methodGetTransaction     = "/" + LedgerServiceName + "/GetTransaction"
	methodHasPendingApproval = "/" + LedgerServiceName + "/HasPendingApproval"
)

// LedgerServiceServer 账本只读接口。请求与响应都是 google.protobuf.Struct:
//
//	GetPending         {chain_id}                  -> {records: [...]}
//	GetTransaction     {chain_id, hash}            -> record
//	HasPendingApproval {chain_id, token, spender}  -> {pending: bool}
type LedgerServiceServer interface {
	GetPending(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	HasPendingApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// LedgerReader *ledger.Ledger 满足
type LedgerReader interface {
	PendingFor(chainID uint64) []*types.TransactionRecord
	Get(chainID uint64, hash common.Hash) (*types.TransactionRecord, bool)
	HasPendingApproval(chainID uint64, token, spender common.Address) bool
}

// LedgerHandler implements LedgerServiceServer
type LedgerHandler struct {
	ledger LedgerReader
	log    *zap.Logger
}

func NewLedgerHandler(l LedgerReader, log *zap.Logger) *LedgerHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerHandler{ledger: l, log: log}
}

func (h *LedgerHandler) GetPending(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	chainID, err := chainIDField(req)
	if err != nil {
		return nil, err
	}
	h.log.Debug("[gRPC] GetPending", zap.Uint64("chain_id", chainID))

	records := h.ledger.PendingFor(chainID)
	list, err := toValue(records)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode records: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"records": list}}, nil
}

func (h *LedgerHandler) GetTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	chainID, err := chainIDField(req)
	if err != nil {
		return nil, err
	}
	hash := req.GetFields()["hash"].GetStringValue()
	if hash == "" {
		return nil, status.Error(codes.InvalidArgument, "hash is required")
	}
	rec, ok := h.ledger.Get(chainID, common.HexToHash(hash))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transaction %s not tracked on chain %d", hash, chainID)
	}
	v, err := toValue(rec)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	return v.GetStructValue(), nil
}

func (h *LedgerHandler) HasPendingApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	chainID, err := chainIDField(req)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	token, spender := fields["token"].GetStringValue(), fields["spender"].GetStringValue()
	if !common.IsHexAddress(token) || !common.IsHexAddress(spender) {
		return nil, status.Error(codes.InvalidArgument, "token and spender must be addresses")
	}
	pending := h.ledger.HasPendingApproval(chainID, common.HexToAddress(token), common.HexToAddress(spender))
	return &structpb.Struct{Fields: map[string]*structpb.Value{"pending": structpb.NewBoolValue(pending)}}, nil
}

// chain_id 在 Struct 里是 double
func chainIDField(req *structpb.Struct) (uint64, error) {
	v, ok := req.GetFields()["chain_id"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "chain_id is required")
	}
	n := v.GetNumberValue()
	if n <= 0 || n != math.Trunc(n) || n > 1<<53 {
		return 0, status.Errorf(codes.InvalidArgument, "invalid chain_id %v", n)
	}
	return uint64(n), nil
}

// toValue 经由 JSON 转成 structpb.Value，保持与 HTTP 接口相同的字段
func toValue(v interface{}) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

// RegisterLedgerServiceServer 注册到 gRPC server
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPending", Handler: unary(methodGetPending, LedgerServiceServer.GetPending)},
		{MethodName: "GetTransaction", Handler: unary(methodGetTransaction, LedgerServiceServer.GetTransaction)},
		{MethodName: "HasPendingApproval", Handler: unary(methodHasPendingApproval, LedgerServiceServer.HasPendingApproval)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "overlay/v1/ledger.proto",
}

type structMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
