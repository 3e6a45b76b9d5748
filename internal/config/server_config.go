package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Lightning 节点连接配置
type Lightning struct {
	// Backend is one of "lnd", "greenlight". Not mutable at runtime.
	Backend string `yaml:"backend"`

	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	RouterPort int    `yaml:"routerPort"`

	TLSCertPath        string `yaml:"tlsCertPath"`
	MacaroonPath       string `yaml:"macaroonPath"`
	RouterMacaroonPath string `yaml:"routerMacaroonPath"`

	// greenlight
	GreenlightTarget   string `yaml:"greenlightTarget"`
	GreenlightCAPath   string `yaml:"greenlightCaPath"`
	GreenlightKeyPath  string `yaml:"greenlightKeyPath"`
	GreenlightCertPath string `yaml:"greenlightCertPath"`
	HSMSecretPath      string `yaml:"hsmSecretPath"`
	HSMPassphrase      string `yaml:"hsmPassphrase"`

	// forwarding proxy
	ProxyHost         string `yaml:"proxyHost"`
	ProxyPort         int    `yaml:"proxyPort"`
	ProxyTLSCertPath  string `yaml:"proxyTlsCertPath"`
	ProxyMacaroonsDir string `yaml:"proxyMacaroonsDir"`

	KeepAlive time.Duration `yaml:"keepAlive"`
	Timeout   time.Duration `yaml:"timeout"`

	WalletLockDuration time.Duration `yaml:"walletLockDuration"`
}

// ProxyEnabled 是否配置了转发代理
func (l Lightning) ProxyEnabled() bool {
	return l.ProxyHost != ""
}

// Payments 支付参数
type Payments struct {
	MinAmt              int64         `yaml:"minAmt"`
	FinalCltvDelta      int32         `yaml:"finalCltvDelta"`
	FeeLimitSat         int64         `yaml:"feeLimitSat"`
	PaymentTimeout      time.Duration `yaml:"paymentTimeout"`
	WeaveChunkSize      int           `yaml:"weaveChunkSize"`
	WeaveChunkPause     time.Duration `yaml:"weaveChunkPause"`
	HistoryPageSize     uint64        `yaml:"historyPageSize"`
	InvoiceListPageSize uint64        `yaml:"invoiceListPageSize"`
}

// Media 媒体令牌配置
type Media struct {
	Host string `yaml:"host"`
}

// Redis 共享钱包锁配置
type Redis struct {
	// Addr enables the shared wallet lock when non-empty.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Logger 日志配置
type Logger struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Metrics 指标配置
// ListenAddr serves long-running processes, PushURL receives the counters of
// one-shot commands.
type Metrics struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
	PushURL    string `yaml:"pushUrl"`
}

// Server 服务配置
type Server struct {
	Lightning Lightning `yaml:"lightning"`
	Payments  Payments  `yaml:"payments"`
	Media     Media     `yaml:"media"`
	Redis     Redis     `yaml:"redis"`
	Logger    Logger    `yaml:"logger"`
	Metrics   Metrics   `yaml:"metrics"`
}

// DefaultServiceConfigFromEnv 从环境变量构建默认配置
func DefaultServiceConfigFromEnv() Server {
	cfg := defaults()
	ApplyEnvOverrides(&cfg)
	return cfg
}

func defaults() Server {
	return Server{
		Lightning: Lightning{
			Backend:            "lnd",
			Host:               "localhost",
			Port:               10009,
			RouterPort:         10009,
			TLSCertPath:        "creds/tls.cert",
			MacaroonPath:       "creds/admin.macaroon",
			RouterMacaroonPath: "creds/router.macaroon",
			KeepAlive:          2 * time.Minute,
			Timeout:            20 * time.Second,
			WalletLockDuration: 2 * time.Minute,
		},
		Payments: Payments{
			MinAmt:              3,
			FinalCltvDelta:      10,
			FeeLimitSat:         10,
			PaymentTimeout:      60 * time.Second,
			WeaveChunkSize:      972,
			WeaveChunkPause:     432 * time.Millisecond,
			HistoryPageSize:     40,
			InvoiceListPageSize: 100000,
		},
		Media: Media{
			Host: "memes.sphinx.chat",
		},
		Logger: Logger{
			Level: "info",
		},
		Metrics: Metrics{
			ListenAddr: ":9090",
		},
	}
}

// LoadFromPath 加载 YAML 配置
// The file is read on top of the defaults, then env overrides apply. A missing
// file is not an error.
func LoadFromPath(path string) (Server, error) {
	cfg := defaults()
	if path == "" {
		ApplyEnvOverrides(&cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Server{}, errors.Wrapf(err, "failed to read config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Server{}, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// ApplyEnvOverrides 用已设置的环境变量覆盖配置
func ApplyEnvOverrides(cfg *Server) {
	l := &cfg.Lightning
	l.Backend = GetEnv("RELAY_LIGHTNING_BACKEND", l.Backend)
	l.Host = GetEnv("RELAY_NODE_IP", l.Host)
	l.Port = GetEnvAsInt("RELAY_NODE_PORT", l.Port)
	l.RouterPort = GetEnvAsInt("RELAY_ROUTER_PORT", l.RouterPort)
	l.TLSCertPath = GetEnv("RELAY_TLS_LOCATION", l.TLSCertPath)
	l.MacaroonPath = GetEnv("RELAY_MACAROON_LOCATION", l.MacaroonPath)
	l.RouterMacaroonPath = GetEnv("RELAY_ROUTER_MACAROON_LOCATION", l.RouterMacaroonPath)
	l.GreenlightTarget = GetEnv("RELAY_GREENLIGHT_TARGET", l.GreenlightTarget)
	l.GreenlightCAPath = GetEnv("RELAY_GREENLIGHT_CA_LOCATION", l.GreenlightCAPath)
	l.GreenlightKeyPath = GetEnv("RELAY_GREENLIGHT_KEY_LOCATION", l.GreenlightKeyPath)
	l.GreenlightCertPath = GetEnv("RELAY_GREENLIGHT_CERT_LOCATION", l.GreenlightCertPath)
	l.HSMSecretPath = GetEnv("RELAY_HSM_SECRET_LOCATION", l.HSMSecretPath)
	l.HSMPassphrase = GetEnv("RELAY_HSM_PASSPHRASE", l.HSMPassphrase)
	l.ProxyHost = GetEnv("RELAY_PROXY_LND_IP", l.ProxyHost)
	l.ProxyPort = GetEnvAsInt("RELAY_PROXY_LND_PORT", l.ProxyPort)
	l.ProxyTLSCertPath = GetEnv("RELAY_PROXY_TLS_LOCATION", l.ProxyTLSCertPath)
	l.ProxyMacaroonsDir = GetEnv("RELAY_PROXY_MACAROONS_DIR", l.ProxyMacaroonsDir)
	l.KeepAlive = GetEnvAsDuration("RELAY_GRPC_KEEPALIVE", l.KeepAlive)
	l.Timeout = GetEnvAsDuration("RELAY_GRPC_TIMEOUT", l.Timeout)
	l.WalletLockDuration = GetEnvAsDuration("RELAY_WALLET_LOCK_DURATION", l.WalletLockDuration)

	p := &cfg.Payments
	p.MinAmt = GetEnvAsInt64("RELAY_MIN_SATS", p.MinAmt)
	p.FinalCltvDelta = int32(GetEnvAsInt("RELAY_FINAL_CLTV_DELTA", int(p.FinalCltvDelta)))
	p.FeeLimitSat = GetEnvAsInt64("RELAY_FEE_LIMIT_SAT", p.FeeLimitSat)
	p.PaymentTimeout = GetEnvAsDuration("RELAY_PAYMENT_TIMEOUT", p.PaymentTimeout)

	cfg.Media.Host = GetEnv("RELAY_MEDIA_HOST", cfg.Media.Host)

	cfg.Redis.Addr = GetEnv("RELAY_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = GetEnv("RELAY_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetEnvAsInt("RELAY_REDIS_DB", cfg.Redis.DB)

	cfg.Logger.Level = GetEnv("RELAY_LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Pretty = GetEnvAsBool("RELAY_LOG_PRETTY", cfg.Logger.Pretty)

	cfg.Metrics.Enabled = GetEnvAsBool("RELAY_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = GetEnv("RELAY_METRICS_LISTEN", cfg.Metrics.ListenAddr)
	cfg.Metrics.PushURL = GetEnv("RELAY_METRICS_PUSH_URL", cfg.Metrics.PushURL)
}
