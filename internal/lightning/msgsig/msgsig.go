// Package msgsig implements the Lightning signed-message envelope: a 65 byte
// {recid+31}{R||S} compact signature over
// sha256d("Lightning Signed Message:" || msg), transported as zbase32.
package msgsig

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"github.com/tv42/zbase32"
)

const (
	// SignedMsgPrefix is prepended to every message before hashing.
	SignedMsgPrefix = "Lightning Signed Message:"

	// RecIDOffset maps a raw recovery id (0..3) to the compressed-pubkey header byte.
	RecIDOffset = 31

	EnvelopeSize = 65
)

// Digest 计算 sha256d(prefix || msg)
func Digest(msg []byte) []byte {
	buf := make([]byte, 0, len(SignedMsgPrefix)+len(msg))
	buf = append(buf, SignedMsgPrefix...)
	buf = append(buf, msg...)
	return chainhash.DoubleHashB(buf)
}

// Envelope 由原始恢复 ID 和 64 字节签名组装 {recid+31}{R||S}
func Envelope(rawRecID byte, rs []byte) ([]byte, error) {
	if len(rs) != 64 {
		return nil, errors.Errorf("signature must be 64 bytes, got %d", len(rs))
	}
	if rawRecID > 3 {
		return nil, errors.Errorf("invalid recovery id %d", rawRecID)
	}
	env := make([]byte, 0, EnvelopeSize)
	env = append(env, rawRecID+RecIDOffset)
	env = append(env, rs...)
	return env, nil
}

// Encode 返回签名信封的 zbase32 文本
func Encode(env []byte) string {
	return zbase32.EncodeToString(env)
}

// Decode 将 zbase32 文本解析为 65 字节信封
func Decode(sig string) ([]byte, error) {
	env, err := zbase32.DecodeString(sig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode zbase32 signature")
	}
	if len(env) != EnvelopeSize {
		return nil, errors.Errorf("signature envelope must be %d bytes, got %d", EnvelopeSize, len(env))
	}
	return env, nil
}

// Split 拆分信封为原始恢复 ID 与 R||S
func Split(env []byte) (byte, []byte, error) {
	if len(env) != EnvelopeSize {
		return 0, nil, errors.Errorf("signature envelope must be %d bytes, got %d", EnvelopeSize, len(env))
	}
	if env[0] < RecIDOffset || env[0] > RecIDOffset+3 {
		return 0, nil, errors.Errorf("invalid recovery header byte %d", env[0])
	}
	return env[0] - RecIDOffset, env[1:], nil
}

// Sign 用 priv 在本地生成 zbase32 签名信封
func Sign(priv *btcec.PrivateKey, msg []byte) (string, error) {
	compact, err := ecdsa.SignCompact(priv, Digest(msg), true)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign message")
	}
	// SignCompact already emits 27+4+recid as its header byte.
	return Encode(compact), nil
}

// RecoverPubkey 从消息与 zbase32 签名恢复压缩公钥（十六进制）
// No network access.
func RecoverPubkey(msg []byte, sig string) (string, error) {
	env, err := Decode(sig)
	if err != nil {
		return "", err
	}
	recID, rs, err := Split(env)
	if err != nil {
		return "", err
	}

	compact := make([]byte, 0, EnvelopeSize)
	compact = append(compact, 27+4+recID)
	compact = append(compact, rs...)

	pub, _, err := ecdsa.RecoverCompact(compact, Digest(msg))
	if err != nil {
		return "", errors.Wrap(err, "failed to recover public key")
	}
	return hex.EncodeToString(pub.SerializeCompressed()), nil
}
