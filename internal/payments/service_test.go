package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/greenlight"
	"github.com/kashguard/go-sphinx-relay/internal/greenlight/hsmd"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

const destHex = "02a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1"

func testConfig() config.Payments {
	return config.Payments{
		MinAmt:          3,
		FinalCltvDelta:  10,
		FeeLimitSat:     10,
		HistoryPageSize: 40,
	}
}

func newService(node lightning.Node) (*Service, *MockNodeSource) {
	src := new(MockNodeSource)
	src.On("Node", mock.Anything, mock.Anything).Return(node, nil)
	return NewService(src, testConfig()), src
}

func TestKeysendInvalidPubkeyNeverReachesNetwork(t *testing.T) {
	src := new(MockNodeSource)
	svc := NewService(src, testConfig())

	for _, dest := range []string{"", "02ab", destHex + "00", destHex[:65] + "z"} {
		_, err := svc.Keysend(context.Background(), KeysendOpts{Dest: dest, Amt: 10}, "")
		assert.ErrorIs(t, err, lightning.ErrInvalidPubkey, dest)
	}
	src.AssertNotCalled(t, "Node", mock.Anything, mock.Anything)
}

func TestKeysendBuildsRecords(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, src := newService(node)
	svc.random = bytes.NewReader(bytes.Repeat([]byte{0x42}, 32))

	var got *lightning.KeysendRequest
	node.On("Keysend", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*lightning.KeysendRequest) }).
		Return(&lightning.PaymentResult{Status: lightning.PaymentSucceeded}, nil)

	_, err := svc.Keysend(context.Background(), KeysendOpts{
		Dest:      destHex,
		Amt:       1,
		Data:      `{"type":0}`,
		RouteHint: "03ff:1234567",
		ExtraTLV: map[uint64][]byte{
			7:                               []byte("extra"),
			lightning.KeysendPreimageRecord: []byte("spoof"),
		},
	}, "02owner")
	require.NoError(t, err)
	src.AssertCalled(t, "Node", mock.Anything, lightning.NodeOpts{TryProxy: true, OwnerPubkey: "02owner"})

	require.NotNil(t, got)
	preimage := bytes.Repeat([]byte{0x42}, 32)
	hash := sha256.Sum256(preimage)
	assert.Equal(t, hash[:], got.PaymentHash)
	assert.Equal(t, preimage, got.Preimage)
	assert.Equal(t, preimage, got.Records[lightning.KeysendPreimageRecord])
	assert.Equal(t, []byte(`{"type":0}`), got.Records[lightning.PayloadRecord])
	assert.Equal(t, []byte("extra"), got.Records[7])
	assert.Equal(t, int64(3), got.Amt)
	assert.Equal(t, int32(10), got.FinalCltvDelta)
	assert.Equal(t, &lightning.RouteHint{NodeID: "03ff", ChanID: 1234567}, got.RouteHint)
	assert.Len(t, got.Dest, 33)
}

func TestKeysendFreshPreimageEachCall(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)

	var hashes [][]byte
	node.On("Keysend", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { hashes = append(hashes, args.Get(1).(*lightning.KeysendRequest).PaymentHash) }).
		Return(&lightning.PaymentResult{}, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.Keysend(context.Background(), KeysendOpts{Dest: destHex, Amt: 50}, "")
		require.NoError(t, err)
	}
	require.Len(t, hashes, 2)
	assert.NotEqual(t, hashes[0], hashes[1])
}

func TestKeysendBadRouteHint(t *testing.T) {
	src := new(MockNodeSource)
	svc := NewService(src, testConfig())

	for _, hint := range []string{"nocolon", ":123", "03ff:abc", "03ff:1:2"} {
		_, err := svc.Keysend(context.Background(), KeysendOpts{Dest: destHex, RouteHint: hint}, "")
		assert.ErrorIs(t, err, lightning.ErrInvalidRouteHint, hint)
	}
	src.AssertNotCalled(t, "Node", mock.Anything, mock.Anything)
}

func TestKeysendPropagatesRPCError(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)
	upstream := lightning.NewRPCError(lightning.BackendLND, "SendPaymentV2", errors.New("FAILED_NO_ROUTE"))
	node.On("Keysend", mock.Anything, mock.Anything).
		Return(&lightning.PaymentResult{Status: lightning.PaymentFailedNoRoute}, upstream)

	res, err := svc.Keysend(context.Background(), KeysendOpts{Dest: destHex, Amt: 5}, "")
	assert.ErrorIs(t, err, lightning.ErrRPC)
	require.NotNil(t, res)
	assert.Equal(t, lightning.PaymentFailedNoRoute, res.Status)
}

func invoicePage(n int, next uint64) *lightning.InvoicePage {
	return &lightning.InvoicePage{Invoices: make([]lightning.Invoice, n), FirstIndexOffset: next}
}

func TestListAllInvoicesWalksPages(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)
	node.On("ListInvoicesPage", mock.Anything, uint64(0), uint64(40)).Return(invoicePage(40, 13), nil).Once()
	node.On("ListInvoicesPage", mock.Anything, uint64(13), uint64(40)).Return(invoicePage(12, 0), nil).Once()

	invoices, err := svc.ListAllInvoices(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, invoices, 52)
	node.AssertExpectations(t)
}

func TestListAllInvoicesReturnsPartialOnError(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)
	node.On("ListInvoicesPage", mock.Anything, uint64(0), uint64(40)).Return(invoicePage(40, 13), nil).Once()
	node.On("ListInvoicesPage", mock.Anything, uint64(13), uint64(40)).Return(nil, errors.New("unavailable")).Once()

	invoices, err := svc.ListAllInvoices(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, invoices, 40)
}

func TestListAllPaymentsWalksPages(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)
	node.On("ListPaymentsPage", mock.Anything, uint64(0), uint64(40)).
		Return(&lightning.PaymentPage{Payments: make([]lightning.Payment, 40), FirstIndexOffset: 90}, nil).Once()
	node.On("ListPaymentsPage", mock.Anything, uint64(90), uint64(40)).
		Return(&lightning.PaymentPage{Payments: make([]lightning.Payment, 40), FirstIndexOffset: 50}, nil).Once()
	node.On("ListPaymentsPage", mock.Anything, uint64(50), uint64(40)).
		Return(nil, errors.New("deadline exceeded")).Once()

	payments, err := svc.ListAllPayments(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, payments, 80)
}

func TestListAllInvoicesNodeUnavailable(t *testing.T) {
	src := new(MockNodeSource)
	src.On("Node", mock.Anything, mock.Anything).Return(nil, lightning.ErrNoClientAvailable)
	svc := NewService(src, testConfig())

	_, err := svc.ListAllInvoices(context.Background(), "02owner")
	assert.ErrorIs(t, err, lightning.ErrNoClientAvailable)
}

func TestListInvoicesSinglePage(t *testing.T) {
	node := &MockNode{backend: lightning.BackendLND}
	svc, _ := newService(node)
	node.On("ListInvoicesPage", mock.Anything, uint64(0), uint64(100000)).Return(invoicePage(3, 99), nil).Once()

	invoices, err := svc.ListInvoices(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, invoices, 3)
	node.AssertExpectations(t)
}

func TestParseRouteHint(t *testing.T) {
	hint, err := ParseRouteHint("02abc:18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), hint.ChanID)
	assert.Equal(t, "02abc", hint.NodeID)
}

type emptyGreenlight struct {
	greenlight.NodeClient
}

func (emptyGreenlight) ListInvoices(ctx context.Context, in *greenlight.ListInvoicesRequest, opts ...grpc.CallOption) (*greenlight.ListInvoicesResponse, error) {
	return &greenlight.ListInvoicesResponse{Invoices: make([]greenlight.Invoice, 5)}, nil
}

func TestGreenlightUnsupportedOperations(t *testing.T) {
	daemon, err := hsmd.NewSoftDaemon(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	svc, _ := newService(lightning.NewGreenlightNode(emptyGreenlight{}, daemon))
	ctx := context.Background()

	point, err := svc.OpenChannel(ctx, &lightning.OpenChannelRequest{NodePubkey: destHex, LocalAmt: 20000}, "")
	assert.NoError(t, err)
	assert.Empty(t, point)

	balance, err := svc.ChannelBalance(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, balance)

	pending, err := svc.PendingChannels(ctx, "")
	assert.NoError(t, err)
	assert.Empty(t, pending)

	info, err := svc.ChannelInfo(ctx, 42, "")
	assert.NoError(t, err)
	assert.Nil(t, info)

	invoices, err := svc.ListAllInvoices(ctx, "")
	require.NoError(t, err)
	assert.Len(t, invoices, 5)
}
