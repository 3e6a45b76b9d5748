package lightning

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/greenlight"
	"github.com/kashguard/go-sphinx-relay/internal/greenlight/hsmd"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// NodeOpts 节点句柄选择参数
type NodeOpts struct {
	// TryProxy resolves a proxy-bound node for OwnerPubkey when a proxy is configured.
	TryProxy    bool
	OwnerPubkey string
	// NoCache forces a fresh handle that replaces the cached one.
	NoCache bool
}

// ProxyResolver 代理宏凭证解析接口
// Returns the hex macaroon the forwarding proxy issued for owner, or "" when
// the owner has none.
type ProxyResolver interface {
	ProxyMacaroon(ctx context.Context, owner string) (string, error)
}

// DirProxyResolver 从 "<dir>/<owner>.macaroon" 读取代理宏凭证
type DirProxyResolver struct {
	Dir string
}

func (r DirProxyResolver) ProxyMacaroon(ctx context.Context, owner string) (string, error) {
	if r.Dir == "" || owner == "" {
		return "", nil
	}
	path := filepath.Join(r.Dir, filepath.Base(owner)+".macaroon")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	return LoadMacaroon(path)
}

// Clients 客户端缓存
// Lazily builds and caches one handle per backend kind.
type Clients struct {
	mu  sync.RWMutex
	cfg config.Lightning

	backend        Backend
	paymentTimeout time.Duration

	node     Node
	conns    map[string]*grpc.ClientConn
	retired  []*grpc.ClientConn
	proxies  map[string]Node
	router   routerrpc.RouterClient
	unlocker lnrpc.WalletUnlockerClient

	hsm           hsmd.Daemon
	walletLock    WalletLock
	proxyResolver ProxyResolver
	insecure      bool
	dialOpts      []grpc.DialOption
}

// ClientsOption 客户端缓存选项
type ClientsOption func(*Clients)

// WithHSM 设置远程签名后端使用的签名守护进程
func WithHSM(d hsmd.Daemon) ClientsOption {
	return func(c *Clients) { c.hsm = d }
}

// WithWalletLock 设置钱包锁实现
func WithWalletLock(l WalletLock) ClientsOption {
	return func(c *Clients) { c.walletLock = l }
}

// WithProxyResolver 设置代理宏凭证解析器
func WithProxyResolver(r ProxyResolver) ClientsOption {
	return func(c *Clients) { c.proxyResolver = r }
}

// WithInsecureTransport 跳过 TLS，仅用于本地开发与测试
func WithInsecureTransport() ClientsOption {
	return func(c *Clients) { c.insecure = true }
}

// WithDialOptions 为每个连接追加 grpc 拨号选项
func WithDialOptions(opts ...grpc.DialOption) ClientsOption {
	return func(c *Clients) { c.dialOpts = append(c.dialOpts, opts...) }
}

// NewClients 创建客户端缓存
func NewClients(cfg config.Lightning, payments config.Payments, opts ...ClientsOption) (*Clients, error) {
	backend := ParseBackend(cfg.Backend)
	if backend == BackendUnknown {
		return nil, errors.Errorf("unknown lightning backend %q", cfg.Backend)
	}

	c := &Clients{
		cfg:            cfg,
		backend:        backend,
		paymentTimeout: payments.PaymentTimeout,
		conns:          make(map[string]*grpc.ClientConn),
		proxies:        make(map[string]Node),
		proxyResolver:  DirProxyResolver{Dir: cfg.ProxyMacaroonsDir},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.walletLock == nil {
		c.walletLock = NewMemoryWalletLock(time2.DefaultClock, cfg.WalletLockDuration)
	}
	return c, nil
}

// Backend 返回静态配置的后端
func (c *Clients) Backend() Backend {
	return c.backend
}

// WalletLock 返回钱包忙标志
func (c *Clients) WalletLock() WalletLock {
	return c.walletLock
}

// Node 获取节点句柄
// Follows the proxy, cache, construct order.
func (c *Clients) Node(ctx context.Context, opts NodeOpts) (Node, error) {
	if opts.TryProxy && c.cfg.ProxyEnabled() && opts.OwnerPubkey != "" {
		return c.proxyNode(ctx, opts.OwnerPubkey, opts.NoCache)
	}

	if !opts.NoCache {
		c.mu.RLock()
		node := c.node
		c.mu.RUnlock()
		if node != nil {
			return node, nil
		}
	}

	var (
		node Node
		conn *grpc.ClientConn
		err  error
	)
	switch c.backend {
	case BackendGreenlight:
		node, conn, err = c.newGreenlightNode()
	default:
		node, conn, err = c.newLNDNode()
	}
	if err != nil {
		log.Error().Err(err).Str("backend", c.backend.String()).Msg("Failed to build lightning client")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// double-checked: a concurrent build may have cached a handle first
	if c.node != nil && !opts.NoCache {
		_ = conn.Close()
		return c.node, nil
	}
	c.replaceConnLocked("node", conn)
	c.node = node
	return node, nil
}

// replaceConnLocked caches conn under key. A replaced connection may still
// back handles callers hold, so it stays open until Close.
func (c *Clients) replaceConnLocked(key string, conn *grpc.ClientConn) {
	if old, ok := c.conns[key]; ok && old != conn {
		log.Debug().Str("conn", key).Msg("Retiring replaced connection")
		c.retired = append(c.retired, old)
	}
	c.conns[key] = conn
}

func (c *Clients) proxyNode(ctx context.Context, owner string, noCache bool) (Node, error) {
	if !noCache {
		c.mu.RLock()
		node, ok := c.proxies[owner]
		c.mu.RUnlock()
		if ok {
			return node, nil
		}
	}

	mac, err := c.proxyResolver.ProxyMacaroon(ctx, owner)
	if err != nil {
		return nil, NewError(KindNoClientAvailable, fmt.Sprintf("failed to resolve proxy client for %s", owner), err)
	}
	if mac == "" {
		return nil, NewError(KindNoClientAvailable, fmt.Sprintf("no proxy client for %s", owner), nil)
	}

	target := net.JoinHostPort(c.cfg.ProxyHost, strconv.Itoa(c.cfg.ProxyPort))
	conn, err := c.dial(target, c.cfg.ProxyTLSCertPath, mac)
	if err != nil {
		return nil, err
	}
	node := NewLNDNode(BackendProxy, lnrpc.NewLightningClient(conn), nil, c.paymentTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.proxies[owner]; ok && !noCache {
		_ = conn.Close()
		return existing, nil
	}
	c.replaceConnLocked("proxy:"+owner, conn)
	c.proxies[owner] = node
	return node, nil
}

func (c *Clients) newLNDNode() (Node, *grpc.ClientConn, error) {
	mac, err := LoadMacaroon(c.cfg.MacaroonPath)
	if err != nil {
		return nil, nil, err
	}
	target := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := c.dial(target, c.cfg.TLSCertPath, mac)
	if err != nil {
		return nil, nil, err
	}
	return NewLNDNode(BackendLND, lnrpc.NewLightningClient(conn), c.Router, c.paymentTimeout), conn, nil
}

func (c *Clients) newGreenlightNode() (Node, *grpc.ClientConn, error) {
	hsm := c.hsm
	if hsm == nil {
		if c.cfg.HSMSecretPath == "" {
			return nil, nil, NewError(KindCredentialLoad, "greenlight backend requires an hsm secret", nil)
		}
		soft, err := hsmd.LoadSealedSoftDaemon(c.cfg.HSMSecretPath, c.cfg.HSMPassphrase)
		if err != nil {
			return nil, nil, NewError(KindCredentialLoad, "failed to load hsm secret", err)
		}
		hsm = soft
	}

	opts := c.baseDialOptions()
	if c.insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := LoadMutualTLSCredentials(c.cfg.GreenlightCertPath, c.cfg.GreenlightKeyPath, c.cfg.GreenlightCAPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}

	log.Debug().Str("target", c.cfg.GreenlightTarget).Msg("Dialing greenlight node")
	conn, err := grpc.NewClient(c.cfg.GreenlightTarget, opts...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to greenlight node at %s", c.cfg.GreenlightTarget)
	}
	return NewGreenlightNode(greenlight.NewNodeClient(conn), hsm), conn, nil
}

// Router 获取绑定路由宏凭证的缓存路由客户端
func (c *Clients) Router(ctx context.Context) (routerrpc.RouterClient, error) {
	c.mu.RLock()
	router := c.router
	c.mu.RUnlock()
	if router != nil {
		return router, nil
	}

	mac, err := LoadMacaroon(c.cfg.RouterMacaroonPath)
	if err != nil {
		return nil, err
	}
	port := c.cfg.RouterPort
	if port == 0 {
		port = c.cfg.Port
	}
	conn, err := c.dial(net.JoinHostPort(c.cfg.Host, strconv.Itoa(port)), c.cfg.TLSCertPath, mac)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.router != nil {
		_ = conn.Close()
		return c.router, nil
	}
	c.replaceConnLocked("router", conn)
	c.router = routerrpc.NewRouterClient(conn)
	return c.router, nil
}

// WalletUnlocker 获取缓存的钱包解锁客户端，仅 lnd 支持
func (c *Clients) WalletUnlocker(ctx context.Context) (lnrpc.WalletUnlockerClient, error) {
	if c.backend != BackendLND {
		return nil, NewError(KindUnsupported, "wallet unlocker is only available on lnd", nil)
	}

	c.mu.RLock()
	unlocker := c.unlocker
	c.mu.RUnlock()
	if unlocker != nil {
		return unlocker, nil
	}

	conn, err := c.dial(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port)), c.cfg.TLSCertPath, "")
	if err != nil {
		log.Error().Err(err).Msg("Failed to build wallet unlocker client")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unlocker != nil {
		_ = conn.Close()
		return c.unlocker, nil
	}
	c.replaceConnLocked("unlocker", conn)
	c.unlocker = lnrpc.NewWalletUnlockerClient(conn)
	return c.unlocker, nil
}

// UnlockWallet 解锁 lnd 钱包
// Refuses while another unlock is already in progress.
func (c *Clients) UnlockWallet(ctx context.Context, password []byte) error {
	locked, err := c.walletLock.Locked(ctx)
	if err != nil {
		return err
	}
	if locked {
		return NewError(KindWalletBusy, "wallet unlock already in progress", nil)
	}
	if err := c.walletLock.Lock(ctx); err != nil {
		return err
	}

	unlocker, err := c.WalletUnlocker(ctx)
	if err != nil {
		return err
	}
	if _, err := unlocker.UnlockWallet(ctx, &lnrpc.UnlockWalletRequest{WalletPassword: password}); err != nil {
		return NewRPCError(BackendLND, "UnlockWallet", err)
	}
	log.Info().Msg("Wallet unlocked")
	return nil
}

func (c *Clients) baseDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(50 * 1024 * 1024)),
	}
	if c.cfg.KeepAlive > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.cfg.KeepAlive,
			Timeout:             c.cfg.Timeout,
			PermitWithoutStream: true,
		}))
	}
	return append(opts, c.dialOpts...)
}

// dial opens an lnd-shaped connection; macaroonHex may be empty.
func (c *Clients) dial(target, certPath, macaroonHex string) (*grpc.ClientConn, error) {
	opts := c.baseDialOptions()

	var creds credentials.TransportCredentials
	if c.insecure {
		creds = insecure.NewCredentials()
	} else {
		var err error
		creds, err = LoadTLSCredentials(certPath)
		if err != nil {
			return nil, err
		}
		warnOnBadCertificate(certPath)
	}
	opts = append(opts, grpc.WithTransportCredentials(creds))

	if macaroonHex != "" {
		mac := NewMacaroonCredential(macaroonHex)
		mac.allowInsecure = c.insecure
		opts = append(opts, grpc.WithPerRPCCredentials(mac))
	}

	log.Debug().Str("target", target).Msg("Dialing lightning node")
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		log.Error().Err(err).Str("target", target).Msg("Failed to connect to lightning node")
		return nil, errors.Wrapf(err, "failed to connect to %s", target)
	}
	return conn, nil
}

// Invalidate 丢弃所有缓存句柄
// Connections stay open until Close since callers may still hold handles.
func (c *Clients) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.node = nil
	c.router = nil
	c.unlocker = nil
	c.proxies = make(map[string]Node)
}

// Close 关闭所有连接
func (c *Clients) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to close connection %s", key))
		}
	}
	for _, conn := range c.retired {
		if err := conn.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close retired connection"))
		}
	}

	c.conns = make(map[string]*grpc.ClientConn)
	c.retired = nil
	c.proxies = make(map[string]Node)
	c.node = nil
	c.router = nil
	c.unlocker = nil

	if len(errs) > 0 {
		return errors.Errorf("errors closing connections: %v", errs)
	}
	return nil
}
