// Package ldat encodes and decodes LDAT media access tokens.
//
// A token is five dot-joined URL-safe base64 fields (host, media id, pubkey,
// expiry, metadata) and an optional sixth signature field. The signature covers
// the raw bytes of the first five fields concatenated in order.
package ldat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/lightning/msgsig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	fieldHost = iota
	fieldMediaID
	fieldPubkey
	fieldExpiry
	fieldMeta
	fieldSig
	fieldCount
)

// expiryWindow is applied whenever a TTL is requested, regardless of its value.
const expiryWindow = 365 * 24 * time.Hour

var (
	ErrNotSigned      = errors.New("token is not signed")
	ErrExpired        = errors.New("token expired")
	ErrPubkeyMismatch = errors.New("token signed by a different key")
)

// Signer 令牌签名所需的签名能力
type Signer interface {
	Sign(ctx context.Context, msg []byte, owner string) (string, error)
	Verify(ctx context.Context, msg []byte, sig string) (*lightning.VerifyResult, error)
}

// Terms 令牌输入条款
type Terms struct {
	Host    string
	MediaID string
	Pubkey  string
	// TTL > 0 requests an expiry; see Builder.Build.
	TTL  int64
	Meta map[string]interface{}
}

// Token 解析后的令牌
// Fields missing from a truncated token stay zero.
type Token struct {
	Host      string
	// MediaID is always padded URL-safe base64, whatever form Build received.
	MediaID   string
	Pubkey    string
	Expiry    int64
	Meta      map[string]interface{}
	Signature string

	// signed holds the raw bytes the signature covers.
	signed []byte
}

// Expired 令牌是否带有早于 now 的过期时间
func (t *Token) Expired(now time.Time) bool {
	return t.Expiry > 0 && now.Unix() > t.Expiry
}

func (t *Token) IsSigned() bool {
	return t.Signature != ""
}

// Builder 令牌构建器
type Builder struct {
	signer    Signer
	clock     time2.Clock
	mediaHost string
}

// NewBuilder 创建令牌构建器
func NewBuilder(signer Signer, clock time2.Clock, mediaHost string) *Builder {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Builder{signer: signer, clock: clock, mediaHost: mediaHost}
}

// Build 编码条款，设置了 Pubkey 时用 owner 的节点签名
//
// NOTE: any positive TTL yields an expiry exactly one year from now; the TTL
// value itself is not used.
func (b *Builder) Build(ctx context.Context, terms Terms, owner string) (string, error) {
	host := terms.Host
	if host == "" {
		host = b.mediaHost
	}
	var expiry int64
	if terms.TTL > 0 {
		expiry = b.clock.Now().Add(expiryWindow).Unix()
	}

	fields, err := encodeFields(host, terms.MediaID, terms.Pubkey, expiry, terms.Meta)
	if err != nil {
		return "", err
	}
	token := joinFields(fields)
	if terms.Pubkey == "" {
		return token, nil
	}

	sig, err := b.signer.Sign(ctx, bytes.Join(fields, nil), owner)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	raw, err := msgsig.Decode(sig)
	if err != nil {
		return "", errors.Wrap(err, "signer returned a malformed signature")
	}
	log.Debug().Str("owner", owner).Str("media_id", terms.MediaID).Msg("Built signed token")
	return token + "." + encodeField(raw), nil
}

// Verify 校验令牌签名与过期时间
// The signature must recover to the token's own pubkey field.
func (b *Builder) Verify(ctx context.Context, token string) (*Token, error) {
	t, err := Parse(token)
	if err != nil {
		return nil, err
	}
	if !t.IsSigned() {
		return t, ErrNotSigned
	}
	res, err := b.signer.Verify(ctx, t.signed, t.Signature)
	if err != nil {
		return t, err
	}
	if !res.Valid || !strings.EqualFold(res.Pubkey, t.Pubkey) {
		return t, ErrPubkeyMismatch
	}
	if t.Expired(b.clock.Now()) {
		return t, ErrExpired
	}
	return t, nil
}

// Parse 解析令牌中已有的字段
// The media id comes back in canonical padded URL-safe base64.
func Parse(token string) (*Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) > fieldCount {
		parts = parts[:fieldCount]
	}

	t := &Token{}
	var signed [][]byte
	for i, part := range parts {
		raw, err := decodeField(part)
		if err != nil {
			return nil, errors.Wrapf(err, "token field %d is not base64", i)
		}
		if i < fieldSig {
			signed = append(signed, raw)
		}
		if len(raw) == 0 {
			continue
		}
		switch i {
		case fieldHost:
			t.Host = string(raw)
		case fieldMediaID:
			t.MediaID = base64.URLEncoding.EncodeToString(raw)
		case fieldPubkey:
			t.Pubkey = hex.EncodeToString(raw)
		case fieldExpiry:
			t.Expiry = new(big.Int).SetBytes(raw).Int64()
		case fieldMeta:
			t.Meta = DeserializeMeta(string(raw))
		case fieldSig:
			t.Signature = msgsig.Encode(raw)
		}
	}
	t.signed = bytes.Join(signed, nil)
	return t, nil
}

func encodeFields(host, mediaID, pubkey string, expiry int64, meta map[string]interface{}) ([][]byte, error) {
	muid, err := decodeField(mediaID)
	if err != nil {
		return nil, errors.Wrap(err, "media id is not base64")
	}
	pub, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, lightning.NewError(lightning.KindInvalidPubkey, "token pubkey is not hex", err)
	}
	return [][]byte{
		[]byte(host),
		muid,
		pub,
		expiryBytes(expiry),
		[]byte(SerializeMeta(meta)),
	}, nil
}

// expiryBytes is the minimal big-endian encoding; zero is empty.
func expiryBytes(expiry int64) []byte {
	if expiry <= 0 {
		return nil
	}
	return big.NewInt(expiry).Bytes()
}

func joinFields(fields [][]byte) string {
	encoded := make([]string, len(fields))
	for i, f := range fields {
		encoded[i] = encodeField(f)
	}
	return strings.Join(encoded, ".")
}

func encodeField(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// decodeField accepts padded or unpadded input in either base64 alphabet.
func decodeField(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
