package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/credentials"
)

// MacaroonCredential 宏凭证
// Attaches a hex macaroon to every call as "macaroon" metadata.
type MacaroonCredential struct {
	hex           string
	allowInsecure bool
}

// NewMacaroonCredential 包装已十六进制编码的宏凭证
func NewMacaroonCredential(macaroonHex string) MacaroonCredential {
	return MacaroonCredential{hex: macaroonHex}
}

func (m MacaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.hex}, nil
}

func (m MacaroonCredential) RequireTransportSecurity() bool {
	return !m.allowInsecure
}

// LoadMacaroon 读取二进制宏凭证文件并返回十六进制
func LoadMacaroon(path string) (string, error) {
	if path == "" {
		return "", NewError(KindCredentialLoad, "macaroon path is empty", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewError(KindCredentialLoad, fmt.Sprintf("failed to read macaroon %s", path), err)
	}
	return hex.EncodeToString(data), nil
}

// LoadTLSCredentials 将节点自签名证书固定为唯一根证书
func LoadTLSCredentials(certPath string) (credentials.TransportCredentials, error) {
	pemBytes, err := os.ReadFile(certPath)
	if err != nil {
		return nil, NewError(KindCredentialLoad, fmt.Sprintf("failed to read tls cert %s", certPath), err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, NewError(KindCredentialLoad, fmt.Sprintf("no certificate found in %s", certPath), nil)
	}
	return credentials.NewTLS(&tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}), nil
}

// LoadMutualTLSCredentials 为远程签名后端构建双向 TLS
func LoadMutualTLSCredentials(certPath, keyPath, caPath string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, NewError(KindCredentialLoad, "failed to load client certificate key pair", err)
	}
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, NewError(KindCredentialLoad, fmt.Sprintf("failed to read CA certificate %s", caPath), err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, NewError(KindCredentialLoad, "failed to parse CA certificate", nil)
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// VerifyCertificate 检查 PEM 证书是否处于有效期内
func VerifyCertificate(certPath string, now time.Time) error {
	if _, err := os.Stat(certPath); err != nil {
		return errors.Wrapf(err, "certificate file not found: %s", certPath)
	}
	data, err := os.ReadFile(certPath)
	if err != nil {
		return errors.Wrap(err, "failed to read certificate")
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return errors.New("no certificate found in file")
	}
	x509Cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return errors.Wrap(err, "failed to parse certificate")
	}
	if now.After(x509Cert.NotAfter) {
		return errors.Errorf("certificate expired at %s", x509Cert.NotAfter)
	}
	if now.Before(x509Cert.NotBefore) {
		return errors.Errorf("certificate not valid until %s", x509Cert.NotBefore)
	}
	return nil
}

func warnOnBadCertificate(certPath string) {
	if err := VerifyCertificate(certPath, time.Now()); err != nil {
		log.Warn().Err(err).Str("path", certPath).Msg("TLS certificate failed validation")
	}
}
