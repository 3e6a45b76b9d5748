package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/kashguard/go-sphinx-relay/internal/greenlight/hsmd"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// New 创建开发证书生成命令
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Node credential tools",
	}

	cmd.AddCommand(newGenCmd())
	cmd.AddCommand(newCheckCmd())
	return cmd
}

func newGenCmd() *cobra.Command {
	var outDir string
	var hostnames []string
	var passphrase string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate development credentials (CA, node TLS, device mTLS, hsm secret)",
		Run: func(cmd *cobra.Command, args []string) {
			if err := GenerateDevCredentials(outDir, hostnames, passphrase); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate credentials")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "creds", "Output directory for credentials")
	cmd.Flags().StringSliceVar(&hostnames, "host", []string{"localhost", "127.0.0.1", "lnd", "greenlight"}, "Hostnames/IPs for the node certificate")
	cmd.Flags().StringVar(&passphrase, "passphrase", os.Getenv("RELAY_HSM_PASSPHRASE"), "Seal hsm_secret with this passphrase")

	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <cert.pem>...",
		Short: "Check that certificates parse and are inside their validity window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			for _, path := range args {
				if err := lightning.VerifyCertificate(path, now); err != nil {
					return errors.Wrapf(err, "%s", path)
				}
				log.Info().Str("path", path).Msg("Certificate OK")
			}
			return nil
		},
	}
}

// GenerateDevCredentials 生成开发环境凭据
// Writes a CA, a node server certificate (tls.cert), a device client
// certificate for mTLS and a 32-byte hsm secret into outDir. A non-empty
// passphrase seals the hsm secret.
func GenerateDevCredentials(outDir string, hostnames []string, passphrase string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	// 1. CA 根证书
	log.Info().Msg("Generating CA certificate...")
	caPriv, caCert, caPEM, err := generateCA()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "ca.pem"), caPEM, 0644); err != nil {
		return err
	}

	// 2. 节点证书 (lnd tls.cert / greenlight server)
	log.Info().Strs("hosts", hostnames).Msg("Generating node certificate...")
	nodePEM, nodeKeyPEM, err := generateEntityCert("relay-dev-node", hostnames, caCert, caPriv, true)
	if err != nil {
		return err
	}
	if err := writePair(outDir, "tls", nodePEM, nodeKeyPEM); err != nil {
		return err
	}

	// 3. 设备证书 (greenlight mTLS client)
	log.Info().Msg("Generating device certificate...")
	devicePEM, deviceKeyPEM, err := generateEntityCert("relay-dev-device", nil, caCert, caPriv, false)
	if err != nil {
		return err
	}
	if err := writePair(outDir, "device", devicePEM, deviceKeyPEM); err != nil {
		return err
	}

	// 4. 进程内签名器的 hsm secret
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	if passphrase != "" {
		if secret, err = hsmd.SealSecret(secret, passphrase); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(outDir, "hsm_secret"), secret, 0600); err != nil {
		return err
	}

	log.Info().Str("dir", outDir).Msg("Credentials generated successfully")
	return nil
}

func writePair(dir, name string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name+".cert"), certPEM, 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".key"), keyPEM, 0600)
}

func generateCA() (*ecdsa.PrivateKey, *x509.Certificate, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Sphinx Relay Dev"},
			CommonName:   "Sphinx Relay Dev Root CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour * 10), // 10 years
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	return priv, template, certPEM, nil
}

func generateEntityCert(cn string, hosts []string, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, isServer bool) ([]byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Sphinx Relay Dev"},
			CommonName:   cn,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	if isServer {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	} else {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, caCert, &priv.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
