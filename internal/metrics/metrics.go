// Package metrics holds the relay's prometheus collectors.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	metricsOnce     sync.Once
	keysendTotal    *prometheus.CounterVec
	weaveChunkTotal *prometheus.CounterVec
	weaveTotal      *prometheus.CounterVec
	signatureTotal  *prometheus.CounterVec
	rpcDurationHist *prometheus.HistogramVec
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		keysendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "payments",
			Name:      "keysend_total",
			Help:      "Keysend attempts by backend and outcome",
		}, []string{"backend", "outcome"})
		weaveChunkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "weave",
			Name:      "chunks_total",
			Help:      "Woven message chunks by outcome",
		}, []string{"outcome"})
		weaveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "weave",
			Name:      "messages_total",
			Help:      "Woven messages by aggregate outcome",
		}, []string{"outcome"})
		signatureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "signer",
			Name:      "operations_total",
			Help:      "Sign and verify operations by backend",
		}, []string{"backend", "op", "outcome"})
		rpcDurationHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "lightning",
			Name:      "rpc_duration_seconds",
			Help:      "Latency of node RPCs issued by payment operations",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"backend", "method"})
	})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveKeysend 记录 keysend 结果
func ObserveKeysend(backend string, err error) {
	ensureMetrics()
	keysendTotal.WithLabelValues(backend, outcome(err)).Inc()
}

// ObserveWeaveChunk 记录分片发送结果
func ObserveWeaveChunk(err error) {
	ensureMetrics()
	weaveChunkTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveWeave 记录分片消息的整体结果
func ObserveWeave(err error) {
	ensureMetrics()
	weaveTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveSignature 记录签名与验签操作
func ObserveSignature(backend, op string, err error) {
	ensureMetrics()
	signatureTotal.WithLabelValues(backend, op, outcome(err)).Inc()
}

// ObserveRPC 记录一次节点调用的耗时
func ObserveRPC(backend, method string, start time.Time) {
	ensureMetrics()
	rpcDurationHist.WithLabelValues(backend, method).Observe(time.Since(start).Seconds())
}

// Handler 暴露默认注册表
func Handler() http.Handler {
	ensureMetrics()
	return promhttp.Handler()
}

// Server 进程内指标 HTTP 服务
type Server struct {
	srv *http.Server
	lis net.Listener
}

// Listen 在 addr 上后台提供 /metrics，直到 Shutdown
func Listen(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", s.Addr()).Msg("Serving metrics")
	return s, nil
}

// Addr 返回实际绑定地址，监听端口 0 时有用
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Shutdown 停止指标服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to shut down metrics server")
	}
	return nil
}

// Push 推送默认注册表到 Pushgateway
// Replaces the group identified by job and command.
func Push(ctx context.Context, url, job, command string) error {
	ensureMetrics()
	err := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("command", command).
		PushContext(ctx)
	return errors.Wrap(err, "failed to push metrics")
}
