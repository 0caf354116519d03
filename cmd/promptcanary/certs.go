package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/cli"
)

var certsFlags struct {
	hosts    string
	org      string
	validity int
	keyType  string
	output   string
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "TLS certificate utilities",
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed certificate",
	Long: `Generate a self-signed certificate and key for server.tls.

Self-signed certificates are for development and testing. In production use
certificates from a trusted CA; the server re-reads renewed files every
server.tls.reload_interval.

Examples:
  promptcanary certs generate --host "localhost,127.0.0.1"
  promptcanary certs generate --host canary.internal --key-type rsa --validity 30 --output-dir /etc/promptcanary`,
	Args: cobra.NoArgs,
	RunE: generateCertificate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsGenerateCmd)

	certsGenerateCmd.Flags().StringVar(&certsFlags.hosts, "host", "localhost", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&certsFlags.org, "org", "promptcanary", "organization name")
	certsGenerateCmd.Flags().IntVar(&certsFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().StringVar(&certsFlags.keyType, "key-type", "ecdsa", "key type: ecdsa (P-256) or rsa (2048)")
	certsGenerateCmd.Flags().StringVar(&certsFlags.output, "output-dir", "certs", "output directory")
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	if certsFlags.validity < 1 {
		return cli.NewConfigError("validity", fmt.Sprintf("must be at least 1 day, got %d", certsFlags.validity))
	}

	var dnsNames []string
	var ips []net.IP
	for _, h := range strings.Split(certsFlags.hosts, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, h)
		}
	}
	if len(dnsNames) == 0 && len(ips) == 0 {
		return cli.NewConfigError("host", "at least one hostname or IP is required")
	}

	signer, keyBlock, err := newPrivateKey(certsFlags.keyType)
	if err != nil {
		return err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to generate serial number: %w", err))
	}

	var commonName string
	if len(dnsNames) > 0 {
		commonName = dnsNames[0]
	} else {
		commonName = ips[0].String()
	}
	notBefore := time.Now()
	notAfter := notBefore.AddDate(0, 0, certsFlags.validity)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{certsFlags.org}, CommonName: commonName},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, signer.Public(), signer)
	if err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to create certificate: %w", err))
	}

	if err := os.MkdirAll(certsFlags.output, 0o750); err != nil {
		return cli.NewCommandError("certs generate", fmt.Errorf("failed to create output directory: %w", err))
	}
	certPath := filepath.Join(certsFlags.output, "tls.crt")
	keyPath := filepath.Join(certsFlags.output, "tls.key")
	// #nosec G306 - the certificate is public
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return cli.NewCommandError("certs generate", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(keyBlock), 0o600); err != nil {
		return cli.NewCommandError("certs generate", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Certificate: %s (CN=%s, expires %s)\n", certPath, commonName, notAfter.Format("2006-01-02"))
	fmt.Fprintf(out, "✓ Private key: %s\n", keyPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Self-signed certificates are for testing only.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  tls:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    cert_file: %q\n", certPath)
	fmt.Fprintf(out, "    key_file: %q\n", keyPath)
	return nil
}

func newPrivateKey(keyType string) (crypto.Signer, *pem.Block, error) {
	switch keyType {
	case "ecdsa":
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, cli.NewCommandError("certs generate", err)
		}
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, nil, cli.NewCommandError("certs generate", err)
		}
		return key, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}, nil
	case "rsa":
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, cli.NewCommandError("certs generate", err)
		}
		return key, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}, nil
	default:
		return nil, nil, cli.NewConfigError("key-type", fmt.Sprintf("must be ecdsa or rsa, got %q", keyType))
	}
}
