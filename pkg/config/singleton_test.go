package config

import (
	"os"
	"sync"
	"testing"
)

func resetSingleton() {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = nil
	globalPath = ""
	initOnce = sync.Once{}
}

func TestInitialize(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	path := writeConfig(t, "canary:\n  min_samples: 12\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Canary.MinSamples != 12 {
		t.Errorf("expected min samples 12, got %d", cfg.Canary.MinSamples)
	}

	// Subsequent calls are ignored.
	if err := Initialize(writeConfig(t, "canary:\n  min_samples: 99\n")); err != nil {
		t.Fatalf("second Initialize returned error: %v", err)
	}
	if GetConfig().Canary.MinSamples != 12 {
		t.Error("expected second Initialize to be ignored")
	}
}

func TestInitialize_InvalidConfig(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	if err := Initialize(writeConfig(t, "storage:\n  backend: tape\n")); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if GetConfig() != nil {
		t.Error("expected nil config after failed initialization")
	}
}

func TestReloadConfig(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	path := writeConfig(t, "canary:\n  threshold: 0.6\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	if err := os.WriteFile(path, []byte("canary:\n  threshold: 0.8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReloadConfig()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Canary.Threshold != 0.8 || GetConfig().Canary.Threshold != 0.8 {
		t.Errorf("expected reloaded threshold 0.8, got %v", GetConfig().Canary.Threshold)
	}

	// A broken file leaves the previous configuration in place.
	if err := os.WriteFile(path, []byte("canary:\n  threshold: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig().Canary.Threshold != 0.8 {
		t.Errorf("expected previous threshold to remain, got %v", GetConfig().Canary.Threshold)
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when config is not initialized")
		}
	}()
	MustGetConfig()
}

func TestSetConfig(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	cfg := Default()
	SetConfig(cfg)
	if MustGetConfig() != cfg {
		t.Error("expected SetConfig to replace the global config")
	}
}
