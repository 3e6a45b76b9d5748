package lightning

import (
	"context"
	"strings"
)

// Backend 节点 RPC 后端类型
type Backend int

const (
	BackendUnknown Backend = iota
	BackendLND
	BackendGreenlight
	BackendProxy
)

func (b Backend) String() string {
	switch b {
	case BackendLND:
		return "lnd"
	case BackendGreenlight:
		return "greenlight"
	case BackendProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// ParseBackend 将配置的后端名映射为 Backend
// The proxy is never selected statically.
func ParseBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "greenlight", "gl":
		return BackendGreenlight
	case "", "lnd":
		return BackendLND
	default:
		return BackendUnknown
	}
}

const (
	// KeysendPreimageRecord marks a payment as keysend and carries its preimage.
	KeysendPreimageRecord uint64 = 5482373484
	// PayloadRecord carries the relay's free-form message payload.
	PayloadRecord uint64 = 133773310
)

// KeysendRequest 已准备好的 keysend
// Hash, preimage and records are all set.
type KeysendRequest struct {
	Dest           []byte
	Amt            int64
	PaymentHash    []byte
	Preimage       []byte
	Records        map[uint64][]byte
	RouteHint      *RouteHint
	FinalCltvDelta int32
	FeeLimitSat    int64
}

// RouteHint 单跳路由提示 "nodeId:chanId"
type RouteHint struct {
	NodeID string
	ChanID uint64
}

// PaymentStatus 归一化的支付终态
type PaymentStatus string

const (
	PaymentSucceeded     PaymentStatus = "SUCCEEDED"
	PaymentFailed        PaymentStatus = "FAILED"
	PaymentFailedNoRoute PaymentStatus = "FAILED_NO_ROUTE"
	PaymentInFlight      PaymentStatus = "IN_FLIGHT"
)

// PaymentResult 支付与 keysend 的归一化结果
type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	Status          PaymentStatus
	ValueSat        int64
	FeeSat          int64
	FailureReason   string
}

// Channel 通道
type Channel struct {
	ChanID        uint64
	ChannelPoint  string
	RemotePubkey  string
	Active        bool
	Capacity      int64
	LocalBalance  int64
	RemoteBalance int64
	Private       bool
}

// Peer 对等节点
type Peer struct {
	Pubkey  string
	Address string
}

// ChannelBalance 通道余额汇总，仅 lnd 提供
type ChannelBalance struct {
	Balance            int64
	PendingOpenBalance int64
	LocalBalanceSat    uint64
	RemoteBalanceSat   uint64
}

// PendingChannel 待确认通道
type PendingChannel struct {
	RemotePubkey  string
	ChannelPoint  string
	Capacity      int64
	LocalBalance  int64
	RemoteBalance int64
}

// ChannelInfo 通道详情
type ChannelInfo struct {
	ChanID    uint64
	ChanPoint string
	Node1Pub  string
	Node2Pub  string
	Capacity  int64
}

// Route 路由
type Route struct {
	TotalTimeLock uint32
	TotalFeesMsat int64
	TotalAmtMsat  int64
	HopCount      int
	SuccessProb   float64
}

// Invoice 发票
type Invoice struct {
	Memo            string
	PaymentHash     string
	PaymentPreimage string
	PaymentRequest  string
	ValueSat        int64
	AmtPaidSat      int64
	Settled         bool
	CreationDate    int64
	SettleDate      int64
	AddIndex        uint64
	IsKeysend       bool
	CustomRecords   map[uint64][]byte
}

// Payment 支付记录
type Payment struct {
	PaymentHash     string
	PaymentPreimage string
	PaymentRequest  string
	ValueSat        int64
	FeeSat          int64
	Status          PaymentStatus
	CreationDate    int64
	PaymentIndex    uint64
}

// InvoicePage 发票历史分页
// FirstIndexOffset is the cursor for the next (older) page when listing in
// reverse; zero means there is nothing left.
type InvoicePage struct {
	Invoices         []Invoice
	FirstIndexOffset uint64
}

// PaymentPage 支付历史分页
type PaymentPage struct {
	Payments         []Payment
	FirstIndexOffset uint64
}

// NodeInfo 节点信息
type NodeInfo struct {
	IdentityPubkey    string
	Alias             string
	NumActiveChannels uint32
	NumPeers          uint32
	BlockHeight       uint32
	SyncedToChain     bool
}

// AddInvoiceResult 创建发票结果
type AddInvoiceResult struct {
	PaymentHash    string
	PaymentRequest string
	AddIndex       uint64
}

// VerifyResult 签名验证结果
type VerifyResult struct {
	Valid  bool
	Pubkey string
}

// OpenChannelRequest 开通道请求
type OpenChannelRequest struct {
	NodePubkey  string
	LocalAmt    int64
	PushAmt     int64
	SatPerVbyte uint64
	Private     bool
}

// Node 单个后端的能力集合
// Operations a backend cannot perform return a zero value and a nil error;
// callers treat that as unsupported.
type Node interface {
	Backend() Backend

	GetInfo(ctx context.Context) (*NodeInfo, error)
	PayInvoice(ctx context.Context, bolt11 string, feeLimitSat int64) (*PaymentResult, error)
	Keysend(ctx context.Context, req *KeysendRequest) (*PaymentResult, error)
	QueryRoute(ctx context.Context, pubkey string, amt int64, hint *RouteHint) (*Route, error)
	AddInvoice(ctx context.Context, memo string, amt int64) (*AddInvoiceResult, error)

	ListChannels(ctx context.Context) ([]Channel, error)
	ListPeers(ctx context.Context) ([]Peer, error)
	ChannelBalance(ctx context.Context) (*ChannelBalance, error)
	PendingChannels(ctx context.Context) ([]PendingChannel, error)
	ChannelInfo(ctx context.Context, chanID uint64) (*ChannelInfo, error)
	ConnectPeer(ctx context.Context, pubkey, host string) error
	OpenChannel(ctx context.Context, req *OpenChannelRequest) (string, error)

	ListInvoicesPage(ctx context.Context, offset, limit uint64) (*InvoicePage, error)
	ListPaymentsPage(ctx context.Context, offset, limit uint64) (*PaymentPage, error)

	SignMessage(ctx context.Context, msg []byte) (string, error)
	VerifyMessage(ctx context.Context, msg []byte, sig string) (*VerifyResult, error)
}
