package lightning

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeLightning overrides only the calls a test exercises; anything else panics
// through the nil embedded interface.
type fakeLightning struct {
	lnrpc.LightningClient

	sendSyncReq  *lnrpc.SendRequest
	sendSyncResp *lnrpc.SendResponse
	invoices     *lnrpc.ListInvoiceResponse
	invoicesReq  *lnrpc.ListInvoiceRequest
	signResp     *lnrpc.SignMessageResponse
	verifyResp   *lnrpc.VerifyMessageResponse
	openResp     *lnrpc.ChannelPoint
	err          error
}

func (f *fakeLightning) SendPaymentSync(ctx context.Context, in *lnrpc.SendRequest, opts ...grpc.CallOption) (*lnrpc.SendResponse, error) {
	f.sendSyncReq = in
	return f.sendSyncResp, f.err
}

func (f *fakeLightning) ListInvoices(ctx context.Context, in *lnrpc.ListInvoiceRequest, opts ...grpc.CallOption) (*lnrpc.ListInvoiceResponse, error) {
	f.invoicesReq = in
	return f.invoices, f.err
}

func (f *fakeLightning) SignMessage(ctx context.Context, in *lnrpc.SignMessageRequest, opts ...grpc.CallOption) (*lnrpc.SignMessageResponse, error) {
	return f.signResp, f.err
}

func (f *fakeLightning) VerifyMessage(ctx context.Context, in *lnrpc.VerifyMessageRequest, opts ...grpc.CallOption) (*lnrpc.VerifyMessageResponse, error) {
	return f.verifyResp, f.err
}

func (f *fakeLightning) OpenChannelSync(ctx context.Context, in *lnrpc.OpenChannelRequest, opts ...grpc.CallOption) (*lnrpc.ChannelPoint, error) {
	return f.openResp, f.err
}

type fakeRouter struct {
	routerrpc.RouterClient

	req     *routerrpc.SendPaymentRequest
	updates []*lnrpc.Payment
	err     error
}

func (f *fakeRouter) SendPaymentV2(ctx context.Context, in *routerrpc.SendPaymentRequest, opts ...grpc.CallOption) (routerrpc.Router_SendPaymentV2Client, error) {
	f.req = in
	if f.err != nil {
		return nil, f.err
	}
	return &fakePaymentStream{updates: f.updates}, nil
}

type fakePaymentStream struct {
	grpc.ClientStream
	updates []*lnrpc.Payment
}

func (s *fakePaymentStream) Recv() (*lnrpc.Payment, error) {
	if len(s.updates) == 0 {
		return nil, io.EOF
	}
	p := s.updates[0]
	s.updates = s.updates[1:]
	return p, nil
}

func routerFunc(r *fakeRouter) func(context.Context) (routerrpc.RouterClient, error) {
	return func(context.Context) (routerrpc.RouterClient, error) { return r, nil }
}

func keysendRequest() *KeysendRequest {
	return &KeysendRequest{
		Dest:        make([]byte, 33),
		Amt:         5,
		PaymentHash: []byte{0xaa},
		Records: map[uint64][]byte{
			KeysendPreimageRecord: {0x01},
			PayloadRecord:         []byte("hi"),
		},
		RouteHint:      &RouteHint{NodeID: "02ab", ChanID: 42},
		FinalCltvDelta: 10,
		FeeLimitSat:    10,
	}
}

func TestKeysendWaitsForTerminalState(t *testing.T) {
	router := &fakeRouter{updates: []*lnrpc.Payment{
		{PaymentHash: "aa", Status: lnrpc.Payment_IN_FLIGHT},
		{PaymentHash: "aa", Status: lnrpc.Payment_IN_FLIGHT},
		{PaymentHash: "aa", PaymentPreimage: "01", Status: lnrpc.Payment_SUCCEEDED, ValueSat: 5, FeeSat: 1},
	}}
	node := NewLNDNode(BackendLND, &fakeLightning{}, routerFunc(router), time.Minute)

	res, err := node.Keysend(context.Background(), keysendRequest())
	require.NoError(t, err)
	assert.Equal(t, PaymentSucceeded, res.Status)
	assert.Equal(t, "01", res.PaymentPreimage)
	assert.Equal(t, int64(1), res.FeeSat)

	require.NotNil(t, router.req)
	assert.Equal(t, []lnrpc.FeatureBit{lnrpc.FeatureBit_TLV_ONION_REQ}, router.req.DestFeatures)
	assert.Equal(t, []byte("hi"), router.req.DestCustomRecords[PayloadRecord])
	assert.Equal(t, int32(60), router.req.TimeoutSeconds)
	require.Len(t, router.req.RouteHints, 1)
	assert.Equal(t, uint64(42), router.req.RouteHints[0].HopHints[0].ChanId)
	assert.Equal(t, "02ab", router.req.RouteHints[0].HopHints[0].NodeId)
}

func TestKeysendNoRouteFailure(t *testing.T) {
	router := &fakeRouter{updates: []*lnrpc.Payment{
		{Status: lnrpc.Payment_FAILED, FailureReason: lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE},
	}}
	node := NewLNDNode(BackendLND, &fakeLightning{}, routerFunc(router), time.Minute)

	res, err := node.Keysend(context.Background(), keysendRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPC)
	require.NotNil(t, res)
	assert.Equal(t, PaymentFailedNoRoute, res.Status)
	assert.Equal(t, "FAILURE_REASON_NO_ROUTE", res.FailureReason)
}

func TestKeysendStreamClosedEarly(t *testing.T) {
	router := &fakeRouter{updates: []*lnrpc.Payment{{Status: lnrpc.Payment_IN_FLIGHT}}}
	node := NewLNDNode(BackendLND, &fakeLightning{}, routerFunc(router), time.Minute)

	_, err := node.Keysend(context.Background(), keysendRequest())
	assert.ErrorIs(t, err, ErrRPC)
	assert.Contains(t, err.Error(), "without terminal state")
}

func TestKeysendRouterUnavailable(t *testing.T) {
	node := NewLNDNode(BackendLND, &fakeLightning{}, nil, time.Minute)
	_, err := node.Keysend(context.Background(), keysendRequest())
	assert.ErrorIs(t, err, ErrNoClientAvailable)
}

func TestProxyKeysendUsesSyncPath(t *testing.T) {
	ln := &fakeLightning{sendSyncResp: &lnrpc.SendResponse{
		PaymentHash:     []byte{0xaa},
		PaymentPreimage: []byte{0x01},
		PaymentRoute:    &lnrpc.Route{TotalAmt: 6, TotalFees: 1},
	}}
	node := NewLNDNode(BackendProxy, ln, nil, time.Minute)

	res, err := node.Keysend(context.Background(), keysendRequest())
	require.NoError(t, err)
	assert.Equal(t, "aa", res.PaymentHash)
	assert.Equal(t, int64(5), res.ValueSat)
	require.NotNil(t, ln.sendSyncReq)
	assert.Equal(t, int32(10), ln.sendSyncReq.FinalCltvDelta)
	assert.Len(t, ln.sendSyncReq.DestCustomRecords, 2)
}

func TestProxyPaymentErrorIsRPCError(t *testing.T) {
	ln := &fakeLightning{sendSyncResp: &lnrpc.SendResponse{PaymentError: "unable to find a path"}}
	node := NewLNDNode(BackendProxy, ln, nil, time.Minute)

	_, err := node.PayInvoice(context.Background(), "lnbc1", 10)
	assert.ErrorIs(t, err, ErrRPC)
	assert.Contains(t, err.Error(), "unable to find a path")
}

func TestUpstreamErrorKeptVerbatim(t *testing.T) {
	upstream := errors.New("permission denied")
	node := NewLNDNode(BackendLND, &fakeLightning{err: upstream}, nil, time.Minute)

	_, err := node.ListInvoicesPage(context.Background(), 0, 40)
	assert.ErrorIs(t, err, ErrRPC)
	assert.ErrorIs(t, err, upstream)
}

func TestListInvoicesPageMergesHTLCRecords(t *testing.T) {
	ln := &fakeLightning{invoices: &lnrpc.ListInvoiceResponse{
		FirstIndexOffset: 7,
		Invoices: []*lnrpc.Invoice{{
			Memo:  "m",
			RHash: []byte{0xbe, 0xef},
			State: lnrpc.Invoice_SETTLED,
			Htlcs: []*lnrpc.InvoiceHTLC{
				{CustomRecords: map[uint64][]byte{PayloadRecord: []byte("x")}},
				{CustomRecords: map[uint64][]byte{1: []byte("y")}},
			},
		}},
	}}
	node := NewLNDNode(BackendLND, ln, nil, time.Minute)

	page, err := node.ListInvoicesPage(context.Background(), 12, 40)
	require.NoError(t, err)
	assert.True(t, ln.invoicesReq.Reversed)
	assert.Equal(t, uint64(12), ln.invoicesReq.IndexOffset)
	assert.Equal(t, uint64(40), ln.invoicesReq.NumMaxInvoices)
	assert.Equal(t, uint64(7), page.FirstIndexOffset)
	require.Len(t, page.Invoices, 1)
	inv := page.Invoices[0]
	assert.Equal(t, "beef", inv.PaymentHash)
	assert.True(t, inv.Settled)
	assert.Len(t, inv.CustomRecords, 2)
}

func TestSignMessageEmptySignature(t *testing.T) {
	node := NewLNDNode(BackendLND, &fakeLightning{signResp: &lnrpc.SignMessageResponse{}}, nil, time.Minute)
	_, err := node.SignMessage(context.Background(), []byte("hello"))
	assert.ErrorIs(t, err, ErrNoSignatureReturned)
}

func TestVerifyMessageNoPubkey(t *testing.T) {
	node := NewLNDNode(BackendLND, &fakeLightning{verifyResp: &lnrpc.VerifyMessageResponse{Valid: false}}, nil, time.Minute)
	_, err := node.VerifyMessage(context.Background(), []byte("hello"), "sig")
	assert.ErrorIs(t, err, ErrNoPubkeyRecovered)

	node = NewLNDNode(BackendLND, &fakeLightning{verifyResp: &lnrpc.VerifyMessageResponse{Valid: true, Pubkey: "02ab"}}, nil, time.Minute)
	res, err := node.VerifyMessage(context.Background(), []byte("hello"), "sig")
	require.NoError(t, err)
	assert.Equal(t, "02ab", res.Pubkey)
	assert.True(t, res.Valid)
}

func TestOpenChannelRendersChannelPoint(t *testing.T) {
	ln := &fakeLightning{openResp: &lnrpc.ChannelPoint{
		FundingTxid: &lnrpc.ChannelPoint_FundingTxidBytes{FundingTxidBytes: []byte{0x01, 0x02, 0x03}},
		OutputIndex: 1,
	}}
	node := NewLNDNode(BackendLND, ln, nil, time.Minute)

	point, err := node.OpenChannel(context.Background(), &OpenChannelRequest{NodePubkey: "02ab", LocalAmt: 20000})
	require.NoError(t, err)
	assert.Equal(t, "030201:1", point)

	_, err = node.OpenChannel(context.Background(), &OpenChannelRequest{NodePubkey: "zz"})
	assert.ErrorIs(t, err, ErrInvalidPubkey)
}
