package main

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/config"
	tlsconfig "mercator-hq/promptcanary/pkg/security/tls"
)

func TestKeysGenerate(t *testing.T) {
	out, err := execute(t, "keys", "generate", "--name", "grafana", "--read-only")
	if err != nil {
		t.Fatalf("keys generate error = %v\n%s", err, out)
	}

	m := regexp.MustCompile(`API key: (pc_[A-Za-z0-9_-]+)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no key in output:\n%s", out)
	}
	// 32 random bytes, unpadded base64url.
	if got := len(strings.TrimPrefix(m[1], apiKeyPrefix)); got != 43 {
		t.Errorf("encoded key length = %d, want 43", got)
	}
	for _, want := range []string{`name: "grafana"`, `key: "` + m[1] + `"`, "read_only: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("snippet missing %q:\n%s", want, out)
		}
	}

	a, _ := newAPIKey(16)
	b, _ := newAPIKey(16)
	if a == b {
		t.Error("generated keys are not random")
	}

	keysFlags.readOnly = false
	_, err = execute(t, "keys", "generate", "--name", "short", "--bytes", "8")
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("--bytes 8 exit code = %d, want %d", code, cli.ExitConfig)
	}
	keysFlags.bytes = 32
}

func TestCertsGenerate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "certs", "generate", "--host", "canary.internal,127.0.0.1", "--output-dir", dir)
	if err != nil {
		t.Fatalf("certs generate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "CN=canary.internal") {
		t.Errorf("output = %s", out)
	}

	tlsCfg, reloader, err := tlsconfig.ServerConfig(&config.TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, "tls.crt"),
		KeyFile:  filepath.Join(dir, "tls.key"),
	})
	if err != nil {
		t.Fatalf("generated files rejected: %v", err)
	}
	leaf := reloader.GetCertificate().Leaf
	if len(leaf.DNSNames) != 1 || len(leaf.IPAddresses) != 1 {
		t.Errorf("SANs = %v %v", leaf.DNSNames, leaf.IPAddresses)
	}
	if tlsCfg.GetCertificate == nil {
		t.Error("GetCertificate not set")
	}

	_, err = execute(t, "certs", "generate", "--key-type", "dsa", "--output-dir", dir)
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("--key-type dsa exit code = %d, want %d", code, cli.ExitConfig)
	}
	certsFlags.keyType = "ecdsa"
}
