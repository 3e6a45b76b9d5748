package lightning

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kashguard/go-sphinx-relay/internal/greenlight"
	"github.com/kashguard/go-sphinx-relay/internal/greenlight/hsmd"
	"github.com/kashguard/go-sphinx-relay/internal/lightning/msgsig"
	"github.com/pkg/errors"
)

// greenlightNode delegates payments to the remote node and key operations to hsmd.
// It has no on-chain channel management.
type greenlightNode struct {
	node greenlight.NodeClient
	hsm  hsmd.Daemon
}

// NewGreenlightNode 创建远程签名后端节点
// It has no on-chain channel management.
func NewGreenlightNode(node greenlight.NodeClient, hsm hsmd.Daemon) Node {
	return &greenlightNode{node: node, hsm: hsm}
}

func (n *greenlightNode) Backend() Backend {
	return BackendGreenlight
}

func (n *greenlightNode) rpcErr(method string, err error) error {
	return NewRPCError(BackendGreenlight, method, err)
}

func (n *greenlightNode) GetInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := n.node.GetInfo(ctx, &greenlight.GetInfoRequest{})
	if err != nil {
		return nil, n.rpcErr("GetInfo", err)
	}
	return &NodeInfo{
		IdentityPubkey: hex.EncodeToString(resp.NodeID),
		Alias:          resp.Alias,
		NumPeers:       resp.NumPeers,
		BlockHeight:    resp.BlockHeight,
		SyncedToChain:  true,
	}, nil
}

func (n *greenlightNode) PayInvoice(ctx context.Context, bolt11 string, feeLimitSat int64) (*PaymentResult, error) {
	resp, err := n.node.Pay(ctx, &greenlight.PayRequest{Bolt11: bolt11})
	if err != nil {
		return nil, n.rpcErr("Pay", err)
	}
	return n.paymentResult("Pay", resp)
}

func (n *greenlightNode) Keysend(ctx context.Context, req *KeysendRequest) (*PaymentResult, error) {
	glReq := &greenlight.KeysendRequest{
		NodeID: req.Dest,
		Amount: greenlight.SatAmount(req.Amt),
	}

	// Greenlight attaches its own keysend preimage record.
	keys := make([]uint64, 0, len(req.Records))
	for k := range req.Records {
		if k == KeysendPreimageRecord {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		glReq.ExtraTlvs = append(glReq.ExtraTlvs, greenlight.TlvField{Type: k, Value: req.Records[k]})
	}

	if req.RouteHint != nil {
		nodeID, err := hex.DecodeString(req.RouteHint.NodeID)
		if err != nil {
			return nil, NewError(KindInvalidRouteHint, "route hint node id is not hex", err)
		}
		glReq.Routehints = []greenlight.Routehint{{
			Hops: []greenlight.RoutehintHop{{
				NodeID:         nodeID,
				ShortChannelID: ShortChannelIDString(req.RouteHint.ChanID),
			}},
		}}
	}

	resp, err := n.node.Keysend(ctx, glReq)
	if err != nil {
		return nil, n.rpcErr("Keysend", err)
	}
	return n.paymentResult("Keysend", resp)
}

func (n *greenlightNode) paymentResult(method string, p *greenlight.Payment) (*PaymentResult, error) {
	result := &PaymentResult{
		PaymentHash:     hex.EncodeToString(p.PaymentHash),
		PaymentPreimage: hex.EncodeToString(p.PaymentPreimage),
		Status:          greenlightPayStatus(p.Status),
		ValueSat:        p.Amount.Sat(),
	}
	if sent := p.AmountSent.Sat(); sent > result.ValueSat {
		result.FeeSat = sent - result.ValueSat
	}
	if result.Status == PaymentFailed {
		return result, n.rpcErr(method, errors.New(string(PaymentFailed)))
	}
	return result, nil
}

func greenlightPayStatus(s greenlight.PayStatus) PaymentStatus {
	switch s {
	case greenlight.PayStatusComplete:
		return PaymentSucceeded
	case greenlight.PayStatusFailed:
		return PaymentFailed
	default:
		return PaymentInFlight
	}
}

func (n *greenlightNode) QueryRoute(ctx context.Context, pubkey string, amt int64, hint *RouteHint) (*Route, error) {
	// Routing is delegated entirely to the remote node.
	return nil, nil
}

func (n *greenlightNode) AddInvoice(ctx context.Context, memo string, amt int64) (*AddInvoiceResult, error) {
	resp, err := n.node.CreateInvoice(ctx, &greenlight.InvoiceRequest{
		Amount:      greenlight.SatAmount(amt),
		Label:       memo,
		Description: memo,
	})
	if err != nil {
		return nil, n.rpcErr("CreateInvoice", err)
	}
	return &AddInvoiceResult{
		PaymentHash:    hex.EncodeToString(resp.PaymentHash),
		PaymentRequest: resp.Bolt11,
	}, nil
}

func (n *greenlightNode) ListChannels(ctx context.Context) ([]Channel, error) {
	resp, err := n.node.ListPeers(ctx, &greenlight.ListPeersRequest{})
	if err != nil {
		return nil, n.rpcErr("ListPeers", err)
	}
	var channels []Channel
	for _, p := range resp.Peers {
		for _, c := range p.Channels {
			local := msatString(c.Spendable) / 1000
			remote := msatString(c.Receivable) / 1000
			channels = append(channels, Channel{
				ChanID:        ParseShortChannelID(c.ShortChannelID),
				ChannelPoint:  c.FundingTxid,
				RemotePubkey:  hex.EncodeToString(p.ID),
				Active:        p.Connected && c.State == "CHANNELD_NORMAL",
				Capacity:      msatString(c.Total) / 1000,
				LocalBalance:  local,
				RemoteBalance: remote,
				Private:       c.Private,
			})
		}
	}
	return channels, nil
}

// msatString parses amounts like "1000msat"; malformed input yields zero.
func msatString(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSuffix(s, "msat"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (n *greenlightNode) ListPeers(ctx context.Context) ([]Peer, error) {
	resp, err := n.node.ListPeers(ctx, &greenlight.ListPeersRequest{})
	if err != nil {
		return nil, n.rpcErr("ListPeers", err)
	}
	peers := make([]Peer, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		peer := Peer{Pubkey: hex.EncodeToString(p.ID)}
		if len(p.Addresses) > 0 {
			peer.Address = fmt.Sprintf("%s:%d", p.Addresses[0].Addr, p.Addresses[0].Port)
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func (n *greenlightNode) ChannelBalance(ctx context.Context) (*ChannelBalance, error) {
	return nil, nil
}

func (n *greenlightNode) PendingChannels(ctx context.Context) ([]PendingChannel, error) {
	return nil, nil
}

func (n *greenlightNode) ChannelInfo(ctx context.Context, chanID uint64) (*ChannelInfo, error) {
	return nil, nil
}

func (n *greenlightNode) OpenChannel(ctx context.Context, req *OpenChannelRequest) (string, error) {
	return "", nil
}

func (n *greenlightNode) ConnectPeer(ctx context.Context, pubkey, host string) error {
	_, err := n.node.ConnectPeer(ctx, &greenlight.ConnectRequest{NodeID: pubkey, Addr: host})
	if err != nil {
		return n.rpcErr("ConnectPeer", err)
	}
	return nil
}

// ListInvoicesPage returns everything in one page; greenlight has no offsets.
func (n *greenlightNode) ListInvoicesPage(ctx context.Context, offset, limit uint64) (*InvoicePage, error) {
	resp, err := n.node.ListInvoices(ctx, &greenlight.ListInvoicesRequest{})
	if err != nil {
		return nil, n.rpcErr("ListInvoices", err)
	}
	invoices := make([]Invoice, 0, len(resp.Invoices))
	for _, inv := range resp.Invoices {
		invoices = append(invoices, Invoice{
			Memo:            inv.Description,
			PaymentHash:     hex.EncodeToString(inv.PaymentHash),
			PaymentPreimage: hex.EncodeToString(inv.PaymentPreimage),
			PaymentRequest:  inv.Bolt11,
			ValueSat:        inv.Amount.Sat(),
			AmtPaidSat:      inv.Received.Sat(),
			Settled:         inv.Status == greenlight.InvoiceStatusPaid,
			SettleDate:      int64(inv.PaymentTime),
		})
	}
	return &InvoicePage{Invoices: invoices}, nil
}

func (n *greenlightNode) ListPaymentsPage(ctx context.Context, offset, limit uint64) (*PaymentPage, error) {
	resp, err := n.node.ListPayments(ctx, &greenlight.ListPaymentsRequest{})
	if err != nil {
		return nil, n.rpcErr("ListPayments", err)
	}
	payments := make([]Payment, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		payments = append(payments, Payment{
			PaymentHash:     hex.EncodeToString(p.PaymentHash),
			PaymentPreimage: hex.EncodeToString(p.PaymentPreimage),
			PaymentRequest:  p.Bolt11,
			ValueSat:        p.Amount.Sat(),
			Status:          greenlightPayStatus(p.Status),
			CreationDate:    int64(p.CreatedAt),
		})
	}
	return &PaymentPage{Payments: payments}, nil
}

// SignMessage asks hsmd for {prefix}{R||S}{recid} and remaps the recid to the
// compressed-pubkey header convention.
func (n *greenlightNode) SignMessage(ctx context.Context, msg []byte) (string, error) {
	reply, err := n.hsm.Handle(ctx, hsmd.MsgSignMessage, 0, nil, msg)
	if err != nil {
		return "", n.rpcErr("hsmd.SignMessage", err)
	}
	if len(reply) != hsmd.SignMessageReplySize {
		return "", &Error{
			Kind:    KindNoSignatureReturned,
			Message: fmt.Sprintf("hsmd reply has %d bytes", len(reply)),
			Backend: BackendGreenlight,
		}
	}
	env, err := msgsig.Envelope(reply[66], reply[2:66])
	if err != nil {
		return "", &Error{Kind: KindNoSignatureReturned, Message: "malformed hsmd reply", Backend: BackendGreenlight, Original: err}
	}
	return msgsig.Encode(env), nil
}

// VerifyMessage recovers the signer locally.
func (n *greenlightNode) VerifyMessage(ctx context.Context, msg []byte, sig string) (*VerifyResult, error) {
	pubkey, err := msgsig.RecoverPubkey(msg, sig)
	if err != nil {
		return nil, &Error{Kind: KindInvalidSignature, Message: "VerifyMessage", Backend: BackendGreenlight, Original: err}
	}
	return &VerifyResult{Valid: true, Pubkey: pubkey}, nil
}

// ShortChannelIDString 将 uint64 通道 ID 渲染为 BxTxO 形式
func ShortChannelIDString(id uint64) string {
	return fmt.Sprintf("%dx%dx%d", id>>40, (id>>16)&0xffffff, id&0xffff)
}

// ParseShortChannelID 解析 "BxTxO" 或十进制通道 ID，非法输入返回零
func ParseShortChannelID(s string) uint64 {
	parts := strings.Split(s, "x")
	if len(parts) != 3 {
		v, _ := strconv.ParseUint(s, 10, 64)
		return v
	}
	block, err1 := strconv.ParseUint(parts[0], 10, 32)
	tx, err2 := strconv.ParseUint(parts[1], 10, 32)
	out, err3 := strconv.ParseUint(parts[2], 10, 16)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return block<<40 | tx<<16 | out
}
