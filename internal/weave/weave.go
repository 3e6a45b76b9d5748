// Package weave sends payloads larger than one keysend can carry as a
// sequence of paid chunks.
package weave

import (
	"context"
	"fmt"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/metrics"
	"github.com/kashguard/go-sphinx-relay/internal/payments"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChunkSize  = 972
	DefaultChunkPause = 432 * time.Millisecond
)

// Keysender 发送分片所用的支付原语
type Keysender interface {
	Keysend(ctx context.Context, opts payments.KeysendOpts, owner string) (*lightning.PaymentResult, error)
	MinAmt() int64
}

// Weaver 大消息分片发送器
type Weaver struct {
	payments  Keysender
	clock     time2.Clock
	chunkSize int
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewWeaver 创建分片发送器
func NewWeaver(p Keysender, cfg config.Payments, clock time2.Clock) *Weaver {
	if clock == nil {
		clock = time2.DefaultClock
	}
	w := &Weaver{
		payments:  p,
		clock:     clock,
		chunkSize: cfg.WeaveChunkSize,
		pause:     cfg.WeaveChunkPause,
		sleep:     sleepContext,
	}
	if w.chunkSize <= 0 {
		w.chunkSize = DefaultChunkSize
	}
	if w.pause <= 0 {
		w.pause = DefaultChunkPause
	}
	return w
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// KeysendMessage 发送消息，过长时分片
// Data that fits goes out as one keysend. Longer data is split into
// ceil(len/chunkSize) equal-width chunks sharing one timestamp, where only the
// last chunk may be shorter. Chunks go out strictly in order; a failed chunk is
// logged and skipped. The weave succeeds only when at least one chunk succeeded
// and none failed, returning the last result.
func (w *Weaver) KeysendMessage(ctx context.Context, opts payments.KeysendOpts, owner string) (*lightning.PaymentResult, error) {
	data := []byte(opts.Data)
	if len(data) < w.chunkSize {
		return w.payments.Keysend(ctx, opts, owner)
	}

	n := (len(data) + w.chunkSize - 1) / w.chunkSize
	width := (len(data) + n - 1) / n
	ts := w.clock.Now().UnixMilli()
	logger := log.With().Str("weave_id", uuid.NewString()).Str("dest", opts.Dest).Int("chunks", n).Logger()
	logger.Debug().Int64("ts", ts).Msg("Weaving message")

	var (
		last      *lightning.PaymentResult
		successes int
		failures  int
	)
	for i := 0; i < n; i++ {
		start := min(i*width, len(data))
		end := min(start+width, len(data))

		chunkOpts := opts
		chunkOpts.Data = Header(ts, i, n, string(data[start:end]))
		if i < n-1 {
			chunkOpts.Amt = w.payments.MinAmt()
		}

		res, err := w.payments.Keysend(ctx, chunkOpts, owner)
		metrics.ObserveWeaveChunk(err)
		if err != nil {
			failures++
			logger.Warn().Err(err).Int("chunk", i).Msg("Weave chunk failed")
			continue
		}
		successes++
		last = res

		if i < n-1 {
			if err := w.sleep(ctx, w.pause); err != nil {
				failures += n - 1 - i
				logger.Warn().Err(err).Int("chunk", i).Msg("Weave interrupted")
				break
			}
		}
	}

	if successes > 0 && failures == 0 {
		metrics.ObserveWeave(nil)
		return last, nil
	}
	err := lightning.NewError(lightning.KindWeaveIncomplete,
		fmt.Sprintf("%d of %d chunks failed", failures, n), ctx.Err())
	metrics.ObserveWeave(err)
	return nil, err
}
