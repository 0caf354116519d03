package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/promptcanary/pkg/config"
)

// writeCert writes a self-signed certificate for cn valid until notAfter.
func writeCert(t *testing.T, dir, cn string, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "canary.local", time.Now().Add(90*24*time.Hour))

	t.Run("disabled", func(t *testing.T) {
		cfg, reloader, err := ServerConfig(&config.TLSConfig{})
		if cfg != nil || reloader != nil || err != nil {
			t.Errorf("ServerConfig() = %v, %v, %v; want all nil", cfg, reloader, err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg, reloader, err := ServerConfig(&config.TLSConfig{
			Enabled:    true,
			CertFile:   certFile,
			KeyFile:    keyFile,
			MinVersion: "1.2",
		})
		if err != nil {
			t.Fatalf("ServerConfig() error = %v", err)
		}
		if cfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
		}
		cert, err := cfg.GetCertificate(nil)
		if err != nil || cert == nil {
			t.Fatalf("GetCertificate() = %v, %v", cert, err)
		}
		if cert.Leaf.Subject.CommonName != "canary.local" {
			t.Errorf("CommonName = %q", cert.Leaf.Subject.CommonName)
		}
		if reloader.GetCertificate() != cert {
			t.Error("reloader and config serve different certificates")
		}
	})

	tests := []struct {
		name string
		cfg  config.TLSConfig
	}{
		{"missing files", config.TLSConfig{Enabled: true}},
		{"bad version", config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.1"}},
		{"nonexistent cert", config.TLSConfig{Enabled: true, CertFile: filepath.Join(dir, "nope.crt"), KeyFile: keyFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ServerConfig(&tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServerConfig_ExpiredCertificate(t *testing.T) {
	certFile, keyFile := writeCert(t, t.TempDir(), "old", time.Now().Add(-time.Minute))

	_, _, err := ServerConfig(&config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	if err == nil {
		t.Fatal("expected error for expired certificate")
	}
}

func TestCertificateReloader_PicksUpRenewal(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first", time.Now().Add(time.Hour))

	r := NewCertificateReloader(certFile, keyFile, 0)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if r.needsReload() {
		t.Fatal("needsReload() = true right after load")
	}

	writeCert(t, dir, "second", time.Now().Add(time.Hour))
	// Force a distinct mtime on filesystems with coarse timestamps.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(certFile, future, future); err != nil {
		t.Fatal(err)
	}

	if !r.needsReload() {
		t.Fatal("needsReload() = false after files changed")
	}
	if err := r.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}
	if cn := r.GetCertificate().Leaf.Subject.CommonName; cn != "second" {
		t.Errorf("CommonName after reload = %q, want second", cn)
	}
}

func TestExpiresSoon(t *testing.T) {
	now := time.Now()
	if !expiresSoon(&x509.Certificate{NotAfter: now.Add(24 * time.Hour)}, now) {
		t.Error("certificate expiring tomorrow not flagged")
	}
	if expiresSoon(&x509.Certificate{NotAfter: now.Add(60 * 24 * time.Hour)}, now) {
		t.Error("certificate valid for 60 days flagged")
	}
}
