package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/monsterxx03/godump/pkg/minidump"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "godump.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxStackBytes != minidump.DefaultMaxStackBytes || cfg.LogLevel != "info" {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg, err = loadConfig(writeConfig(t, `
max_stack_bytes: 65536
max_rescans: 1
compress: true
log_level: debug
app_memory:
  - address: 0x1000
    length: 64
skip_streams: [linux_environ, linux_dso_debug]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxStackBytes != 65536 || cfg.MaxRescans != 1 || !cfg.Compress || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.IPContextBytes != minidump.DefaultIPContextBytes {
		t.Errorf("ip context = %d", cfg.IPContextBytes)
	}
	if len(cfg.AppMemory) != 1 || cfg.AppMemory[0] != (minidump.Region{Address: 0x1000, Length: 64}) {
		t.Errorf("app memory = %+v", cfg.AppMemory)
	}
	if len(cfg.SkipStreams) != 2 {
		t.Errorf("skip = %v", cfg.SkipStreams)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"malformed", func(t *testing.T) string { return writeConfig(t, "max_rescans: [1") }},
		{"wrong type", func(t *testing.T) string { return writeConfig(t, "max_stack_bytes: lots") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.path(t)); err == nil {
				t.Error("expected error")
			}
		})
	}

	cfg, err := loadConfig(writeConfig(t, "skip_streams: [thread_list]"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("skipping a required stream validated")
	}
}
