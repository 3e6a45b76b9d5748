package hsmd

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// sealedMagic prefixes a passphrase-sealed hsm secret file.
var sealedMagic = []byte("relay-hsm-sealed-v1\n")

const (
	sealSaltSize = 16
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
)

var ErrPassphraseRequired = errors.New("hsm secret is sealed and no passphrase was given")

// IsSealed 判断数据是否为加密密钥
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealedMagic)
}

// SealSecret 用口令加密密钥
// Output is magic || salt || nonce || AES-256-GCM ciphertext, keyed by scrypt
// over the passphrase and a random salt.
func SealSecret(secret []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	gcm, err := sealCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	out := make([]byte, 0, len(sealedMagic)+len(salt)+len(nonce)+len(secret)+gcm.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, secret, sealedMagic), nil
}

// OpenSecret 解密 SealSecret 的输出
func OpenSecret(data []byte, passphrase string) ([]byte, error) {
	if !IsSealed(data) {
		return nil, errors.New("hsm secret is not sealed")
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	body := data[len(sealedMagic):]
	if len(body) < sealSaltSize {
		return nil, errors.New("sealed hsm secret too short")
	}
	salt, body := body[:sealSaltSize], body[sealSaltSize:]

	gcm, err := sealCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(body) < gcm.NonceSize() {
		return nil, errors.New("sealed hsm secret too short")
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]

	secret, err := gcm.Open(nil, nonce, ciphertext, sealedMagic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sealed hsm secret")
	}
	return secret, nil
}

func sealCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}
