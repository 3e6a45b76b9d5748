// Package greenlight is a thin client for the remote-signer node RPC surface.
package greenlight

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "/greenlight.Node/"

// NodeClient 远程签名节点 RPC 客户端
// Covers the subset of the greenlight Node service the relay uses.
type NodeClient interface {
	GetInfo(ctx context.Context, in *GetInfoRequest, opts ...grpc.CallOption) (*GetInfoResponse, error)
	Keysend(ctx context.Context, in *KeysendRequest, opts ...grpc.CallOption) (*Payment, error)
	Pay(ctx context.Context, in *PayRequest, opts ...grpc.CallOption) (*Payment, error)
	ListPeers(ctx context.Context, in *ListPeersRequest, opts ...grpc.CallOption) (*ListPeersResponse, error)
	ConnectPeer(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (*ConnectResponse, error)
	ListInvoices(ctx context.Context, in *ListInvoicesRequest, opts ...grpc.CallOption) (*ListInvoicesResponse, error)
	ListPayments(ctx context.Context, in *ListPaymentsRequest, opts ...grpc.CallOption) (*ListPaymentsResponse, error)
	CreateInvoice(ctx context.Context, in *InvoiceRequest, opts ...grpc.CallOption) (*Invoice, error)
}

type nodeClient struct {
	cc grpc.ClientConnInterface
}

// NewNodeClient 基于已建立的连接创建节点客户端
func NewNodeClient(cc grpc.ClientConnInterface) NodeClient {
	return &nodeClient{cc: cc}
}

func (c *nodeClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(WireCodec{})}, opts...)
	return c.cc.Invoke(ctx, serviceName+method, in, out, opts...)
}

func (c *nodeClient) GetInfo(ctx context.Context, in *GetInfoRequest, opts ...grpc.CallOption) (*GetInfoResponse, error) {
	out := new(GetInfoResponse)
	if err := c.invoke(ctx, "GetInfo", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Keysend(ctx context.Context, in *KeysendRequest, opts ...grpc.CallOption) (*Payment, error) {
	out := new(Payment)
	if err := c.invoke(ctx, "Keysend", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Pay(ctx context.Context, in *PayRequest, opts ...grpc.CallOption) (*Payment, error) {
	out := new(Payment)
	if err := c.invoke(ctx, "Pay", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ListPeers(ctx context.Context, in *ListPeersRequest, opts ...grpc.CallOption) (*ListPeersResponse, error) {
	out := new(ListPeersResponse)
	if err := c.invoke(ctx, "ListPeers", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ConnectPeer(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (*ConnectResponse, error) {
	out := new(ConnectResponse)
	if err := c.invoke(ctx, "ConnectPeer", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ListInvoices(ctx context.Context, in *ListInvoicesRequest, opts ...grpc.CallOption) (*ListInvoicesResponse, error) {
	out := new(ListInvoicesResponse)
	if err := c.invoke(ctx, "ListInvoices", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ListPayments(ctx context.Context, in *ListPaymentsRequest, opts ...grpc.CallOption) (*ListPaymentsResponse, error) {
	out := new(ListPaymentsResponse)
	if err := c.invoke(ctx, "ListPayments", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) CreateInvoice(ctx context.Context, in *InvoiceRequest, opts ...grpc.CallOption) (*Invoice, error) {
	out := new(Invoice)
	if err := c.invoke(ctx, "CreateInvoice", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
