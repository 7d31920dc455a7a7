package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// LedgerClient LedgerService 的客户端
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) GetPending(ctx context.Context, chainID uint64) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetPending, map[string]interface{}{"chain_id": float64(chainID)})
}

func (c *LedgerClient) GetTransaction(ctx context.Context, chainID uint64, hash string) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetTransaction, map[string]interface{}{"chain_id": float64(chainID), "hash": hash})
}

func (c *LedgerClient) HasPendingApproval(ctx context.Context, chainID uint64, token, spender string) (bool, error) {
	out, err := c.invoke(ctx, methodHasPendingApproval, map[string]interface{}{
		"chain_id": float64(chainID), "token": token, "spender": spender,
	})
	if err != nil {
		return false, err
	}
	return out.GetFields()["pending"].GetBoolValue(), nil
}

func (c *LedgerClient) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
