package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/feedherald/internal/config"
)

func TestInitWritesLoadableConfig(t *testing.T) {
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = filepath.Join(t.TempDir(), ".feedherald")

	cmd, out := testCommand("")
	if err := initAction(cmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out.String(), "created:")

	cfg, err := config.Load(configDir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Sources) != 3 {
		t.Errorf("sources = %d, want 3", len(cfg.Sources))
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].Kind != "stdout" {
		t.Errorf("channels = %+v", cfg.Channels)
	}

	cmd, out = testCommand("")
	if err := initAction(cmd, nil); err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out.String(), "already initialized")
}

func TestWriteIfNotExistsKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd, _ := testCommand("")
	wrote, err := writeIfNotExists(cmd.OutOrStdout(), path, []byte("theirs"))
	if err != nil {
		t.Fatalf("writeIfNotExists: %v", err)
	}
	if wrote {
		t.Error("existing file reported as written")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "mine" {
		t.Errorf("file = %q, want untouched", data)
	}
}
