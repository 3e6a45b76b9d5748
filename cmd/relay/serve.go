package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/kashguard/go-sphinx-relay/internal/ldat"
	"github.com/kashguard/go-sphinx-relay/internal/metrics"
	"github.com/kashguard/go-sphinx-relay/internal/payments"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// request is one line of the serve protocol.
type request struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	Owner     string `json:"owner,omitempty"`
	Text      string `json:"text,omitempty"`
	Sig       string `json:"sig,omitempty"`
	Token     string `json:"token,omitempty"`
	Bolt11    string `json:"bolt11,omitempty"`
	Dest      string `json:"dest,omitempty"`
	Amt       int64  `json:"amt,omitempty"`
	Data      string `json:"data,omitempty"`
	RouteHint string `json:"routeHint,omitempty"`
	MediaID   string `json:"mediaId,omitempty"`
	Pubkey    string `json:"pubkey,omitempty"`
	TTL       int64  `json:"ttl,omitempty"`
	Host      string `json:"host,omitempty"`

	Meta map[string]interface{} `json:"meta,omitempty"`
}

type response struct {
	ID     string      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type handlerFunc func(ctx context.Context, req request) (interface{}, error)

func newServeCmd(withDaemon runner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer JSON requests read line by line from stdin, exposing metrics while running",
		RunE: withDaemon(func(ctx context.Context, a *app, args []string) error {
			if a.cfg.Metrics.Enabled {
				srv, err := metrics.Listen(a.cfg.Metrics.ListenAddr)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						log.Warn().Err(err).Msg("Failed to stop metrics server")
					}
				}()
			}
			return serveRequests(ctx, os.Stdin, os.Stdout, a.requestTimeout, a.handle)
		}),
	}
}

// serveRequests answers each request line in order with one response line.
// It returns when in is exhausted or ctx is done.
func serveRequests(ctx context.Context, in io.Reader, out io.Writer, timeout time.Duration, handle handlerFunc) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping request loop")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return errors.Wrap(err, "failed to read requests")
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			if err := enc.Encode(answer(ctx, line, timeout, handle)); err != nil {
				return errors.Wrap(err, "failed to write response")
			}
		}
	}
}

func answer(ctx context.Context, line []byte, timeout time.Duration, handle handlerFunc) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{Error: errors.Wrap(err, "malformed request").Error()}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := handle(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("id", req.ID).Str("op", req.Op).Msg("Request failed")
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: res}
}

func (a *app) handle(ctx context.Context, req request) (interface{}, error) {
	switch req.Op {
	case "sign":
		sig, err := a.signer.SignASCII(ctx, req.Text, req.Owner)
		if err != nil {
			return nil, err
		}
		return map[string]string{"sig": sig}, nil
	case "verify":
		return a.signer.VerifyASCII(ctx, req.Text, req.Sig)
	case "keysend":
		return a.weaver.KeysendMessage(ctx, payments.KeysendOpts{
			Dest:      req.Dest,
			Amt:       req.Amt,
			Data:      req.Data,
			RouteHint: req.RouteHint,
		}, req.Owner)
	case "pay":
		return a.payments.PayInvoice(ctx, req.Bolt11, req.Owner)
	case "info":
		return a.payments.GetInfo(ctx, req.Owner)
	case "token.build":
		token, err := a.tokens.Build(ctx, ldat.Terms{
			Host:    req.Host,
			MediaID: req.MediaID,
			Pubkey:  req.Pubkey,
			TTL:     req.TTL,
			Meta:    req.Meta,
		}, req.Owner)
		if err != nil {
			return nil, err
		}
		return map[string]string{"token": token}, nil
	case "token.parse":
		return ldat.Parse(req.Token)
	case "token.verify":
		return a.tokens.Verify(ctx, req.Token)
	}
	return nil, errors.Errorf("unknown op %q", req.Op)
}
