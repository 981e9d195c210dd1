package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "feedherald dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"check", "doctor", "init", "loop", "post", "queue", "reports", "review", "version"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}
