// Package hsmd defines the embedded signing daemon used by the remote-signer
// backend and an in-process secp256k1 implementation of it.
package hsmd

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/kashguard/go-sphinx-relay/internal/lightning/msgsig"
	"github.com/pkg/errors"
)

const (
	// MsgSignMessage asks the daemon to sign an arbitrary message.
	MsgSignMessage uint16 = 1024
	// MsgSignMessageReply prefixes the reply frame.
	MsgSignMessageReply uint16 = 1124

	// SignMessageReplySize is {2 byte prefix}{64 byte R||S}{1 byte recid}.
	SignMessageReplySize = 67
)

// Daemon 签名守护进程接口
// Handles a single framed request. dbid and peerID are reserved and are passed
// as zero values by the relay.
type Daemon interface {
	Handle(ctx context.Context, msgType uint16, dbid uint64, peerID []byte, payload []byte) ([]byte, error)
}

// SoftDaemon 本地私钥签名守护进程
type SoftDaemon struct {
	mu   sync.Mutex
	priv *btcec.PrivateKey
}

// NewSoftDaemon 用 32 字节密钥创建守护进程
func NewSoftDaemon(secret []byte) (*SoftDaemon, error) {
	if len(secret) != 32 {
		return nil, errors.Errorf("hsm secret must be 32 bytes, got %d", len(secret))
	}
	priv, _ := btcec.PrivKeyFromBytes(secret)
	return &SoftDaemon{priv: priv}, nil
}

// LoadSoftDaemon 从文件加载十六进制或原始 32 字节密钥
func LoadSoftDaemon(path string) (*SoftDaemon, error) {
	return LoadSealedSoftDaemon(path, "")
}

// LoadSealedSoftDaemon 加载可能已加密的密钥文件
// Plain files ignore the passphrase.
func LoadSealedSoftDaemon(path, passphrase string) (*SoftDaemon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read hsm secret %s", path)
	}
	if IsSealed(data) {
		if data, err = OpenSecret(data, passphrase); err != nil {
			return nil, err
		}
	} else if len(data) != 32 {
		decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, errors.Wrap(err, "hsm secret is neither raw nor hex")
		}
		data = decoded
	}
	return NewSoftDaemon(data)
}

// PubKey 返回十六进制压缩节点公钥
func (d *SoftDaemon) PubKey() string {
	return hex.EncodeToString(d.priv.PubKey().SerializeCompressed())
}

// Handle 处理一条签名请求
func (d *SoftDaemon) Handle(ctx context.Context, msgType uint16, dbid uint64, peerID []byte, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch msgType {
	case MsgSignMessage:
		return d.signMessage(payload)
	default:
		return nil, errors.Errorf("unsupported hsmd message type %d", msgType)
	}
}

func (d *SoftDaemon) signMessage(msg []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	compact, err := ecdsa.SignCompact(d.priv, msgsig.Digest(msg), true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}

	// compact = {27+4+recid}{R||S}; the wire reply carries the raw recid last.
	reply := make([]byte, SignMessageReplySize)
	binary.BigEndian.PutUint16(reply[:2], MsgSignMessageReply)
	copy(reply[2:66], compact[1:])
	reply[66] = compact[0] - 27 - 4
	return reply, nil
}
