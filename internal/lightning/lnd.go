package lightning

import (
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// lndNode speaks the full-node RPC surface. With proxy set it talks to the
// forwarding proxy, which exposes the same surface but only synchronous pay.
type lndNode struct {
	backend        Backend
	lightning      lnrpc.LightningClient
	router         func(ctx context.Context) (routerrpc.RouterClient, error)
	paymentTimeout time.Duration
}

// NewLNDNode 包装 lnrpc 客户端
// router may be nil for the proxy backend.
func NewLNDNode(backend Backend, lightning lnrpc.LightningClient, router func(ctx context.Context) (routerrpc.RouterClient, error), paymentTimeout time.Duration) Node {
	if paymentTimeout <= 0 {
		paymentTimeout = 60 * time.Second
	}
	return &lndNode{
		backend:        backend,
		lightning:      lightning,
		router:         router,
		paymentTimeout: paymentTimeout,
	}
}

func (n *lndNode) Backend() Backend {
	return n.backend
}

func (n *lndNode) rpcErr(method string, err error) error {
	return NewRPCError(n.backend, method, err)
}

func (n *lndNode) GetInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := n.lightning.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, n.rpcErr("GetInfo", err)
	}
	return &NodeInfo{
		IdentityPubkey:    resp.IdentityPubkey,
		Alias:             resp.Alias,
		NumActiveChannels: resp.NumActiveChannels,
		NumPeers:          resp.NumPeers,
		BlockHeight:       resp.BlockHeight,
		SyncedToChain:     resp.SyncedToChain,
	}, nil
}

func (n *lndNode) PayInvoice(ctx context.Context, bolt11 string, feeLimitSat int64) (*PaymentResult, error) {
	if n.backend == BackendProxy {
		return n.sendPaymentSync(ctx, &lnrpc.SendRequest{PaymentRequest: bolt11})
	}
	return n.sendPaymentV2(ctx, &routerrpc.SendPaymentRequest{
		PaymentRequest: bolt11,
		FeeLimitSat:    feeLimitSat,
		TimeoutSeconds: int32(n.paymentTimeout.Seconds()),
	})
}

func (n *lndNode) Keysend(ctx context.Context, req *KeysendRequest) (*PaymentResult, error) {
	if n.backend == BackendProxy {
		return n.sendPaymentSync(ctx, &lnrpc.SendRequest{
			Dest:              req.Dest,
			Amt:               req.Amt,
			PaymentHash:       req.PaymentHash,
			DestCustomRecords: req.Records,
			FinalCltvDelta:    req.FinalCltvDelta,
			DestFeatures:      []lnrpc.FeatureBit{lnrpc.FeatureBit_TLV_ONION_REQ},
		})
	}

	sendReq := &routerrpc.SendPaymentRequest{
		Dest:              req.Dest,
		Amt:               req.Amt,
		PaymentHash:       req.PaymentHash,
		DestCustomRecords: req.Records,
		FinalCltvDelta:    req.FinalCltvDelta,
		FeeLimitSat:       req.FeeLimitSat,
		TimeoutSeconds:    int32(n.paymentTimeout.Seconds()),
		DestFeatures:      []lnrpc.FeatureBit{lnrpc.FeatureBit_TLV_ONION_REQ},
	}
	if req.RouteHint != nil {
		sendReq.RouteHints = []*lnrpc.RouteHint{lndRouteHint(req.RouteHint)}
	}
	return n.sendPaymentV2(ctx, sendReq)
}

func lndRouteHint(h *RouteHint) *lnrpc.RouteHint {
	return &lnrpc.RouteHint{
		HopHints: []*lnrpc.HopHint{{
			NodeId: h.NodeID,
			ChanId: h.ChanID,
		}},
	}
}

func (n *lndNode) sendPaymentSync(ctx context.Context, req *lnrpc.SendRequest) (*PaymentResult, error) {
	resp, err := n.lightning.SendPaymentSync(ctx, req)
	if err != nil {
		return nil, n.rpcErr("SendPaymentSync", err)
	}
	if resp.PaymentError != "" {
		return nil, n.rpcErr("SendPaymentSync", errors.New(resp.PaymentError))
	}
	result := &PaymentResult{
		PaymentHash:     hex.EncodeToString(resp.PaymentHash),
		PaymentPreimage: hex.EncodeToString(resp.PaymentPreimage),
		Status:          PaymentSucceeded,
	}
	if resp.PaymentRoute != nil {
		result.ValueSat = resp.PaymentRoute.TotalAmt - resp.PaymentRoute.TotalFees
		result.FeeSat = resp.PaymentRoute.TotalFees
	}
	return result, nil
}

// sendPaymentV2 consumes the router stream until a terminal state arrives.
func (n *lndNode) sendPaymentV2(ctx context.Context, req *routerrpc.SendPaymentRequest) (*PaymentResult, error) {
	if n.router == nil {
		return nil, NewError(KindNoClientAvailable, "router client not configured", nil)
	}
	router, err := n.router(ctx)
	if err != nil {
		return nil, err
	}

	// The stream itself has no deadline upstream; bound it here.
	ctx, cancel := context.WithTimeout(ctx, n.paymentTimeout+10*time.Second)
	defer cancel()

	stream, err := router.SendPaymentV2(ctx, req)
	if err != nil {
		return nil, n.rpcErr("SendPaymentV2", err)
	}

	for {
		payment, err := stream.Recv()
		if err == io.EOF {
			return nil, n.rpcErr("SendPaymentV2", errors.New("payment stream closed without terminal state"))
		}
		if err != nil {
			return nil, n.rpcErr("SendPaymentV2", err)
		}

		status := normalizePaymentStatus(payment)
		log.Debug().
			Str("payment_hash", payment.PaymentHash).
			Str("status", string(status)).
			Msg("Payment stream update")

		switch status {
		case PaymentSucceeded:
			return paymentResultFromLND(payment, status), nil
		case PaymentFailed, PaymentFailedNoRoute:
			return paymentResultFromLND(payment, status), n.rpcErr("SendPaymentV2", errors.New(string(status)))
		}
	}
}

func normalizePaymentStatus(p *lnrpc.Payment) PaymentStatus {
	switch p.Status {
	case lnrpc.Payment_SUCCEEDED:
		return PaymentSucceeded
	case lnrpc.Payment_FAILED:
		if p.FailureReason == lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE {
			return PaymentFailedNoRoute
		}
		return PaymentFailed
	default:
		return PaymentInFlight
	}
}

func paymentResultFromLND(p *lnrpc.Payment, status PaymentStatus) *PaymentResult {
	result := &PaymentResult{
		PaymentHash:     p.PaymentHash,
		PaymentPreimage: p.PaymentPreimage,
		Status:          status,
		ValueSat:        p.ValueSat,
		FeeSat:          p.FeeSat,
	}
	if p.FailureReason != lnrpc.PaymentFailureReason_FAILURE_REASON_NONE {
		result.FailureReason = p.FailureReason.String()
	}
	return result
}

func (n *lndNode) QueryRoute(ctx context.Context, pubkey string, amt int64, hint *RouteHint) (*Route, error) {
	req := &lnrpc.QueryRoutesRequest{
		PubKey: pubkey,
		Amt:    amt,
	}
	if hint != nil {
		req.RouteHints = []*lnrpc.RouteHint{lndRouteHint(hint)}
	}
	resp, err := n.lightning.QueryRoutes(ctx, req)
	if err != nil {
		return nil, n.rpcErr("QueryRoutes", err)
	}
	if len(resp.Routes) == 0 {
		return nil, nil
	}
	r := resp.Routes[0]
	return &Route{
		TotalTimeLock: r.TotalTimeLock,
		TotalFeesMsat: r.TotalFeesMsat,
		TotalAmtMsat:  r.TotalAmtMsat,
		HopCount:      len(r.Hops),
		SuccessProb:   resp.SuccessProb,
	}, nil
}

func (n *lndNode) AddInvoice(ctx context.Context, memo string, amt int64) (*AddInvoiceResult, error) {
	resp, err := n.lightning.AddInvoice(ctx, &lnrpc.Invoice{Memo: memo, Value: amt})
	if err != nil {
		return nil, n.rpcErr("AddInvoice", err)
	}
	return &AddInvoiceResult{
		PaymentHash:    hex.EncodeToString(resp.RHash),
		PaymentRequest: resp.PaymentRequest,
		AddIndex:       resp.AddIndex,
	}, nil
}

func (n *lndNode) ListChannels(ctx context.Context) ([]Channel, error) {
	resp, err := n.lightning.ListChannels(ctx, &lnrpc.ListChannelsRequest{})
	if err != nil {
		return nil, n.rpcErr("ListChannels", err)
	}
	channels := make([]Channel, 0, len(resp.Channels))
	for _, c := range resp.Channels {
		channels = append(channels, Channel{
			ChanID:        c.ChanId,
			ChannelPoint:  c.ChannelPoint,
			RemotePubkey:  c.RemotePubkey,
			Active:        c.Active,
			Capacity:      c.Capacity,
			LocalBalance:  c.LocalBalance,
			RemoteBalance: c.RemoteBalance,
			Private:       c.Private,
		})
	}
	return channels, nil
}

func (n *lndNode) ListPeers(ctx context.Context) ([]Peer, error) {
	resp, err := n.lightning.ListPeers(ctx, &lnrpc.ListPeersRequest{})
	if err != nil {
		return nil, n.rpcErr("ListPeers", err)
	}
	peers := make([]Peer, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		peers = append(peers, Peer{Pubkey: p.PubKey, Address: p.Address})
	}
	return peers, nil
}

func (n *lndNode) ChannelBalance(ctx context.Context) (*ChannelBalance, error) {
	resp, err := n.lightning.ChannelBalance(ctx, &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return nil, n.rpcErr("ChannelBalance", err)
	}
	balance := &ChannelBalance{
		Balance:            resp.Balance,
		PendingOpenBalance: resp.PendingOpenBalance,
	}
	if resp.LocalBalance != nil {
		balance.LocalBalanceSat = resp.LocalBalance.Sat
	}
	if resp.RemoteBalance != nil {
		balance.RemoteBalanceSat = resp.RemoteBalance.Sat
	}
	return balance, nil
}

func (n *lndNode) PendingChannels(ctx context.Context) ([]PendingChannel, error) {
	resp, err := n.lightning.PendingChannels(ctx, &lnrpc.PendingChannelsRequest{})
	if err != nil {
		return nil, n.rpcErr("PendingChannels", err)
	}
	pending := make([]PendingChannel, 0, len(resp.PendingOpenChannels))
	for _, p := range resp.PendingOpenChannels {
		if p.Channel == nil {
			continue
		}
		pending = append(pending, PendingChannel{
			RemotePubkey:  p.Channel.RemoteNodePub,
			ChannelPoint:  p.Channel.ChannelPoint,
			Capacity:      p.Channel.Capacity,
			LocalBalance:  p.Channel.LocalBalance,
			RemoteBalance: p.Channel.RemoteBalance,
		})
	}
	return pending, nil
}

func (n *lndNode) ChannelInfo(ctx context.Context, chanID uint64) (*ChannelInfo, error) {
	resp, err := n.lightning.GetChanInfo(ctx, &lnrpc.ChanInfoRequest{ChanId: chanID})
	if err != nil {
		return nil, n.rpcErr("GetChanInfo", err)
	}
	return &ChannelInfo{
		ChanID:    resp.ChannelId,
		ChanPoint: resp.ChanPoint,
		Node1Pub:  resp.Node1Pub,
		Node2Pub:  resp.Node2Pub,
		Capacity:  resp.Capacity,
	}, nil
}

func (n *lndNode) ConnectPeer(ctx context.Context, pubkey, host string) error {
	_, err := n.lightning.ConnectPeer(ctx, &lnrpc.ConnectPeerRequest{
		Addr: &lnrpc.LightningAddress{Pubkey: pubkey, Host: host},
	})
	if err != nil {
		return n.rpcErr("ConnectPeer", err)
	}
	return nil
}

func (n *lndNode) OpenChannel(ctx context.Context, req *OpenChannelRequest) (string, error) {
	pubkey, err := hex.DecodeString(req.NodePubkey)
	if err != nil {
		return "", NewError(KindInvalidPubkey, "node pubkey is not hex", err)
	}
	point, err := n.lightning.OpenChannelSync(ctx, &lnrpc.OpenChannelRequest{
		NodePubkey:         pubkey,
		LocalFundingAmount: req.LocalAmt,
		PushSat:            req.PushAmt,
		SatPerVbyte:        req.SatPerVbyte,
		Private:            req.Private,
	})
	if err != nil {
		return "", n.rpcErr("OpenChannelSync", err)
	}
	return channelPointString(point), nil
}

// channelPointString renders txid:index with the txid in display (reversed) order.
func channelPointString(p *lnrpc.ChannelPoint) string {
	if p == nil {
		return ""
	}
	txid := p.GetFundingTxidStr()
	if txid == "" {
		raw := p.GetFundingTxidBytes()
		rev := make([]byte, len(raw))
		for i := range raw {
			rev[len(raw)-1-i] = raw[i]
		}
		txid = hex.EncodeToString(rev)
	}
	return txid + ":" + strconv.FormatUint(uint64(p.OutputIndex), 10)
}

func (n *lndNode) ListInvoicesPage(ctx context.Context, offset, limit uint64) (*InvoicePage, error) {
	resp, err := n.lightning.ListInvoices(ctx, &lnrpc.ListInvoiceRequest{
		IndexOffset:    offset,
		NumMaxInvoices: limit,
		Reversed:       true,
	})
	if err != nil {
		return nil, n.rpcErr("ListInvoices", err)
	}
	invoices := make([]Invoice, 0, len(resp.Invoices))
	for _, inv := range resp.Invoices {
		invoices = append(invoices, invoiceFromLND(inv))
	}
	return &InvoicePage{Invoices: invoices, FirstIndexOffset: resp.FirstIndexOffset}, nil
}

func invoiceFromLND(inv *lnrpc.Invoice) Invoice {
	out := Invoice{
		Memo:            inv.Memo,
		PaymentHash:     hex.EncodeToString(inv.RHash),
		PaymentPreimage: hex.EncodeToString(inv.RPreimage),
		PaymentRequest:  inv.PaymentRequest,
		ValueSat:        inv.Value,
		AmtPaidSat:      inv.AmtPaidSat,
		Settled:         inv.State == lnrpc.Invoice_SETTLED,
		CreationDate:    inv.CreationDate,
		SettleDate:      inv.SettleDate,
		AddIndex:        inv.AddIndex,
		IsKeysend:       inv.IsKeysend,
	}
	for _, htlc := range inv.Htlcs {
		if len(htlc.CustomRecords) == 0 {
			continue
		}
		if out.CustomRecords == nil {
			out.CustomRecords = make(map[uint64][]byte, len(htlc.CustomRecords))
		}
		for k, v := range htlc.CustomRecords {
			out.CustomRecords[k] = v
		}
	}
	return out
}

func (n *lndNode) ListPaymentsPage(ctx context.Context, offset, limit uint64) (*PaymentPage, error) {
	resp, err := n.lightning.ListPayments(ctx, &lnrpc.ListPaymentsRequest{
		IndexOffset: offset,
		MaxPayments: limit,
		Reversed:    true,
	})
	if err != nil {
		return nil, n.rpcErr("ListPayments", err)
	}
	payments := make([]Payment, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		payments = append(payments, Payment{
			PaymentHash:     p.PaymentHash,
			PaymentPreimage: p.PaymentPreimage,
			PaymentRequest:  p.PaymentRequest,
			ValueSat:        p.ValueSat,
			FeeSat:          p.FeeSat,
			Status:          normalizePaymentStatus(p),
			CreationDate:    p.CreationTimeNs / int64(time.Second),
			PaymentIndex:    p.PaymentIndex,
		})
	}
	return &PaymentPage{Payments: payments, FirstIndexOffset: resp.FirstIndexOffset}, nil
}

func (n *lndNode) SignMessage(ctx context.Context, msg []byte) (string, error) {
	resp, err := n.lightning.SignMessage(ctx, &lnrpc.SignMessageRequest{Msg: msg})
	if err != nil {
		return "", n.rpcErr("SignMessage", err)
	}
	if resp.Signature == "" {
		return "", &Error{Kind: KindNoSignatureReturned, Message: "SignMessage", Backend: n.backend}
	}
	return resp.Signature, nil
}

func (n *lndNode) VerifyMessage(ctx context.Context, msg []byte, sig string) (*VerifyResult, error) {
	resp, err := n.lightning.VerifyMessage(ctx, &lnrpc.VerifyMessageRequest{Msg: msg, Signature: sig})
	if err != nil {
		return nil, n.rpcErr("VerifyMessage", err)
	}
	if resp.Pubkey == "" {
		return nil, &Error{Kind: KindNoPubkeyRecovered, Message: "VerifyMessage", Backend: n.backend}
	}
	return &VerifyResult{Valid: resp.Valid, Pubkey: resp.Pubkey}, nil
}
