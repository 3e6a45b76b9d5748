// Package signer produces and checks message signatures with whichever node
// holds the identity key.
package signer

import (
	"context"
	"encoding/hex"

	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NodeSource 节点句柄来源，*lightning.Clients 满足该接口
type NodeSource interface {
	Node(ctx context.Context, opts lightning.NodeOpts) (lightning.Node, error)
}

// Engine 签名引擎
// Signs with the owner's node, trying the proxy first.
type Engine struct {
	nodes NodeSource
}

// New 创建签名引擎
func New(nodes NodeSource) *Engine {
	return &Engine{nodes: nodes}
}

// Sign 返回 msg 的 zbase32 签名信封
func (e *Engine) Sign(ctx context.Context, msg []byte, owner string) (string, error) {
	node, err := e.nodes.Node(ctx, lightning.NodeOpts{TryProxy: true, OwnerPubkey: owner})
	if err != nil {
		return "", err
	}
	sig, err := node.SignMessage(ctx, msg)
	metrics.ObserveSignature(node.Backend().String(), "sign", err)
	if err != nil {
		log.Debug().Err(err).Str("backend", node.Backend().String()).Str("owner", owner).Msg("Failed to sign message")
		return "", err
	}
	return sig, nil
}

// Verify 恢复 msg 的签名者
func (e *Engine) Verify(ctx context.Context, msg []byte, sig string) (*lightning.VerifyResult, error) {
	node, err := e.nodes.Node(ctx, lightning.NodeOpts{TryProxy: true})
	if err != nil {
		return nil, err
	}
	res, err := node.VerifyMessage(ctx, msg, sig)
	metrics.ObserveSignature(node.Backend().String(), "verify", err)
	return res, err
}

func (e *Engine) SignHex(ctx context.Context, hexMsg, owner string) (string, error) {
	msg, err := hex.DecodeString(hexMsg)
	if err != nil {
		return "", errors.Wrap(err, "message is not hex")
	}
	return e.Sign(ctx, msg, owner)
}

func (e *Engine) VerifyHex(ctx context.Context, hexMsg, sig string) (*lightning.VerifyResult, error) {
	msg, err := hex.DecodeString(hexMsg)
	if err != nil {
		return nil, errors.Wrap(err, "message is not hex")
	}
	return e.Verify(ctx, msg, sig)
}

// SignASCII 经十六进制形式对 ASCII 字符串签名
// Remote verifiers reproduce the same transcoding, so it must not change.
func (e *Engine) SignASCII(ctx context.Context, text, owner string) (string, error) {
	return e.SignHex(ctx, ASCIIToHex(text), owner)
}

func (e *Engine) VerifyASCII(ctx context.Context, text, sig string) (*lightning.VerifyResult, error) {
	return e.VerifyHex(ctx, ASCIIToHex(text), sig)
}

// ASCIIToHex 每字节写两位小写十六进制，无分隔符
func ASCIIToHex(text string) string {
	return hex.EncodeToString([]byte(text))
}
