// Package payments is the backend-neutral payment surface of the relay.
package payments

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PubkeyHexLen 压缩公钥的十六进制长度
const PubkeyHexLen = 66

// NodeSource 节点句柄来源，*lightning.Clients 满足该接口
type NodeSource interface {
	Node(ctx context.Context, opts lightning.NodeOpts) (lightning.Node, error)
}

// KeysendOpts 单笔主动支付参数
type KeysendOpts struct {
	Dest      string
	Amt       int64
	Data      string
	RouteHint string
	ExtraTLV  map[uint64][]byte
}

// Service 支付服务
type Service struct {
	nodes  NodeSource
	cfg    config.Payments
	random io.Reader
}

// NewService 创建支付服务
func NewService(nodes NodeSource, cfg config.Payments) *Service {
	if cfg.HistoryPageSize == 0 {
		cfg.HistoryPageSize = 40
	}
	if cfg.InvoiceListPageSize == 0 {
		cfg.InvoiceListPageSize = 100000
	}
	return &Service{nodes: nodes, cfg: cfg, random: rand.Reader}
}

// MinAmt 返回配置的最小支付额
func (s *Service) MinAmt() int64 {
	return s.cfg.MinAmt
}

func (s *Service) node(ctx context.Context, owner string) (lightning.Node, error) {
	return s.nodes.Node(ctx, lightning.NodeOpts{TryProxy: true, OwnerPubkey: owner})
}

// ParseRouteHint 解析 "nodeId:chanId"，通道 ID 为十进制
func ParseRouteHint(s string) (*lightning.RouteHint, error) {
	nodeID, chanID, ok := strings.Cut(s, ":")
	if !ok || nodeID == "" || strings.Contains(chanID, ":") {
		return nil, lightning.NewError(lightning.KindInvalidRouteHint, fmt.Sprintf("route hint %q is not nodeId:chanId", s), nil)
	}
	id, err := strconv.ParseUint(chanID, 10, 64)
	if err != nil {
		return nil, lightning.NewError(lightning.KindInvalidRouteHint, fmt.Sprintf("route hint channel id %q", chanID), err)
	}
	return &lightning.RouteHint{NodeID: nodeID, ChanID: id}, nil
}

// Keysend 无发票支付
// Pays opts.Dest and carries opts.Data as payload.
func (s *Service) Keysend(ctx context.Context, opts KeysendOpts, owner string) (*lightning.PaymentResult, error) {
	if len(opts.Dest) != PubkeyHexLen {
		return nil, lightning.NewError(lightning.KindInvalidPubkey, fmt.Sprintf("destination has %d hex chars", len(opts.Dest)), nil)
	}
	dest, err := hex.DecodeString(opts.Dest)
	if err != nil {
		return nil, lightning.NewError(lightning.KindInvalidPubkey, "destination is not hex", err)
	}

	var hint *lightning.RouteHint
	if opts.RouteHint != "" {
		if hint, err = ParseRouteHint(opts.RouteHint); err != nil {
			return nil, err
		}
	}

	preimage := make([]byte, 32)
	if _, err := io.ReadFull(s.random, preimage); err != nil {
		return nil, errors.Wrap(err, "failed to generate preimage")
	}
	hash := sha256.Sum256(preimage)

	records := make(map[uint64][]byte, len(opts.ExtraTLV)+2)
	for k, v := range opts.ExtraTLV {
		records[k] = v
	}
	records[lightning.KeysendPreimageRecord] = preimage
	if opts.Data != "" {
		records[lightning.PayloadRecord] = []byte(opts.Data)
	}

	amt := opts.Amt
	if amt < s.cfg.MinAmt {
		amt = s.cfg.MinAmt
	}

	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	backend := node.Backend().String()

	start := time.Now()
	res, err := node.Keysend(ctx, &lightning.KeysendRequest{
		Dest:           dest,
		Amt:            amt,
		PaymentHash:    hash[:],
		Preimage:       preimage,
		Records:        records,
		RouteHint:      hint,
		FinalCltvDelta: s.cfg.FinalCltvDelta,
		FeeLimitSat:    s.cfg.FeeLimitSat,
	})
	metrics.ObserveRPC(backend, "Keysend", start)
	metrics.ObserveKeysend(backend, err)
	if err != nil {
		log.Debug().Err(err).Str("backend", backend).Str("dest", opts.Dest).Int64("amt", amt).Msg("Keysend failed")
		return res, err
	}
	log.Debug().Str("backend", backend).Str("dest", opts.Dest).Int64("amt", amt).Msg("Keysend succeeded")
	return res, nil
}

func (s *Service) PayInvoice(ctx context.Context, bolt11, owner string) (*lightning.PaymentResult, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := node.PayInvoice(ctx, bolt11, s.cfg.FeeLimitSat)
	metrics.ObserveRPC(node.Backend().String(), "PayInvoice", start)
	return res, err
}

// QueryRoute 查询路由
// Returns nil on backends that do not expose pathfinding.
func (s *Service) QueryRoute(ctx context.Context, pubkey string, amt int64, routeHint, owner string) (*lightning.Route, error) {
	var hint *lightning.RouteHint
	if routeHint != "" {
		var err error
		if hint, err = ParseRouteHint(routeHint); err != nil {
			return nil, err
		}
	}
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.QueryRoute(ctx, pubkey, amt, hint)
}

func (s *Service) GetInfo(ctx context.Context, owner string) (*lightning.NodeInfo, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.GetInfo(ctx)
}

func (s *Service) AddInvoice(ctx context.Context, memo string, amt int64, owner string) (*lightning.AddInvoiceResult, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.AddInvoice(ctx, memo, amt)
}

func (s *Service) ListChannels(ctx context.Context, owner string) ([]lightning.Channel, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.ListChannels(ctx)
}

func (s *Service) ListPeers(ctx context.Context, owner string) ([]lightning.Peer, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.ListPeers(ctx)
}

func (s *Service) ConnectPeer(ctx context.Context, pubkey, host, owner string) error {
	node, err := s.node(ctx, owner)
	if err != nil {
		return err
	}
	return node.ConnectPeer(ctx, pubkey, host)
}

// ChannelBalance, OpenChannel, PendingChannels and ChannelInfo return zero values
// on the remote-signer backend. Callers treat that as unsupported.

func (s *Service) ChannelBalance(ctx context.Context, owner string) (*lightning.ChannelBalance, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.ChannelBalance(ctx)
}

func (s *Service) OpenChannel(ctx context.Context, req *lightning.OpenChannelRequest, owner string) (string, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return "", err
	}
	return node.OpenChannel(ctx, req)
}

func (s *Service) PendingChannels(ctx context.Context, owner string) ([]lightning.PendingChannel, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.PendingChannels(ctx)
}

func (s *Service) ChannelInfo(ctx context.Context, chanID uint64, owner string) (*lightning.ChannelInfo, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	return node.ChannelInfo(ctx, chanID)
}
