package payments

import (
	"context"

	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/stretchr/testify/mock"
)

// MockNode is a mock implementation of lightning.Node
type MockNode struct {
	mock.Mock
	backend lightning.Backend
}

func (m *MockNode) Backend() lightning.Backend {
	return m.backend
}

func (m *MockNode) GetInfo(ctx context.Context) (*lightning.NodeInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.NodeInfo), args.Error(1)
}

func (m *MockNode) PayInvoice(ctx context.Context, bolt11 string, feeLimitSat int64) (*lightning.PaymentResult, error) {
	args := m.Called(ctx, bolt11, feeLimitSat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.PaymentResult), args.Error(1)
}

func (m *MockNode) Keysend(ctx context.Context, req *lightning.KeysendRequest) (*lightning.PaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.PaymentResult), args.Error(1)
}

func (m *MockNode) QueryRoute(ctx context.Context, pubkey string, amt int64, hint *lightning.RouteHint) (*lightning.Route, error) {
	args := m.Called(ctx, pubkey, amt, hint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.Route), args.Error(1)
}

func (m *MockNode) AddInvoice(ctx context.Context, memo string, amt int64) (*lightning.AddInvoiceResult, error) {
	args := m.Called(ctx, memo, amt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.AddInvoiceResult), args.Error(1)
}

func (m *MockNode) ListChannels(ctx context.Context) ([]lightning.Channel, error) {
	args := m.Called(ctx)
	return args.Get(0).([]lightning.Channel), args.Error(1)
}

func (m *MockNode) ListPeers(ctx context.Context) ([]lightning.Peer, error) {
	args := m.Called(ctx)
	return args.Get(0).([]lightning.Peer), args.Error(1)
}

func (m *MockNode) ChannelBalance(ctx context.Context) (*lightning.ChannelBalance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.ChannelBalance), args.Error(1)
}

func (m *MockNode) PendingChannels(ctx context.Context) ([]lightning.PendingChannel, error) {
	args := m.Called(ctx)
	return args.Get(0).([]lightning.PendingChannel), args.Error(1)
}

func (m *MockNode) ChannelInfo(ctx context.Context, chanID uint64) (*lightning.ChannelInfo, error) {
	args := m.Called(ctx, chanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.ChannelInfo), args.Error(1)
}

func (m *MockNode) ConnectPeer(ctx context.Context, pubkey, host string) error {
	args := m.Called(ctx, pubkey, host)
	return args.Error(0)
}

func (m *MockNode) OpenChannel(ctx context.Context, req *lightning.OpenChannelRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockNode) ListInvoicesPage(ctx context.Context, offset, limit uint64) (*lightning.InvoicePage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.InvoicePage), args.Error(1)
}

func (m *MockNode) ListPaymentsPage(ctx context.Context, offset, limit uint64) (*lightning.PaymentPage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.PaymentPage), args.Error(1)
}

func (m *MockNode) SignMessage(ctx context.Context, msg []byte) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockNode) VerifyMessage(ctx context.Context, msg []byte, sig string) (*lightning.VerifyResult, error) {
	args := m.Called(ctx, msg, sig)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.VerifyResult), args.Error(1)
}

// MockNodeSource is a mock implementation of NodeSource
type MockNodeSource struct {
	mock.Mock
}

func (m *MockNodeSource) Node(ctx context.Context, opts lightning.NodeOpts) (lightning.Node, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(lightning.Node), args.Error(1)
}
