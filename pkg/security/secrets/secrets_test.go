package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), mode); err != nil {
		t.Fatal(err)
	}
	// WriteFile is subject to umask.
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("PROMPTCANARY_SECRET_WEBHOOK_TOKEN", "tok-123")
	p := NewEnvProvider("")

	got, err := p.GetSecret(context.Background(), "webhook-token")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "tok-123" {
		t.Errorf("GetSecret() = %q, want tok-123", got)
	}

	_, err = p.GetSecret(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSecret(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "deploy-key", "pc_abc\n", 0o600)
	writeSecret(t, dir, "read-only", "pc_ro", 0o400)
	writeSecret(t, dir, "loose", "pc_loose", 0o644)
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		secret  string
		want    string
		wantErr string
	}{
		{name: "trims whitespace", secret: "deploy-key", want: "pc_abc"},
		{name: "read-only mode", secret: "read-only", want: "pc_ro"},
		{name: "insecure permissions", secret: "loose", wantErr: "insecure permissions"},
		{name: "directory", secret: "nested", wantErr: "not a regular file"},
		{name: "traversal", secret: "../outside", wantErr: "invalid secret name"},
		{name: "missing", secret: "nope", wantErr: ErrNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(ctx, tt.secret)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("GetSecret() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSecret() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := NewFileProvider(filepath.Join(dir, "deploy-key")); err == nil {
		t.Error("NewFileProvider() on a file: expected error")
	}
}

func TestResolver(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "webhook-token", "from-file", 0o600)
	writeSecret(t, dir, "loose", "x", 0o644)
	t.Setenv("PROMPTCANARY_SECRET_WEBHOOK_TOKEN", "from-env")
	t.Setenv("PROMPTCANARY_SECRET_DEPLOY_KEY", "pc_deploy")

	files, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(files, NewEnvProvider(""))
	ctx := context.Background()

	got, err := r.Resolve(ctx, "https://hooks.example.com/c?token=${secret:webhook-token}&k=${secret:deploy-key}")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := "https://hooks.example.com/c?token=from-file&k=pc_deploy"; got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	plain, err := r.Resolve(ctx, "no references")
	if err != nil || plain != "no references" {
		t.Errorf("Resolve(plain) = %q, %v", plain, err)
	}

	out, err := r.Resolve(ctx, "${secret:absent}")
	if err == nil {
		t.Fatal("Resolve(absent) expected error")
	}
	if out != "${secret:absent}" {
		t.Errorf("unresolved reference rewritten to %q", out)
	}

	// A broken file is reported rather than silently falling back to env.
	if _, err := r.GetSecret(ctx, "loose"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("GetSecret(loose) error = %v, want permission error", err)
	}
}

func TestHasReference(t *testing.T) {
	if !HasReference("${secret:a}") {
		t.Error("HasReference() = false for a reference")
	}
	if HasReference("$secret:a") || HasReference("https://example.com") {
		t.Error("HasReference() = true for plain text")
	}
}
