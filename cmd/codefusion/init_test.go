package main

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/lukas-holzner/codefusion-hackathon/internal/defaults"
)

// clearUmask makes permission assertions deterministic.
func clearUmask(t *testing.T) {
	t.Helper()
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })
}

func TestRunInit_FreshDirectory(t *testing.T) {
	clearUmask(t)
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "db"))
	if err != nil || !info.IsDir() {
		t.Errorf("db directory not created: %v", err)
	}

	cfgInfo, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if got := cfgInfo.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml permissions = %o, want 0600", got)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if !bytes.Equal(got, defaults.ConfigYAML) {
		t.Error("config.yaml does not match the embedded example")
	}
	if !bytes.Contains(buf.Bytes(), []byte("config.yaml")) {
		t.Errorf("output does not mention config.yaml: %q", buf.String())
	}
}

func TestRunInit_PreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	custom := []byte("listen:\n  port: 9999\n")
	if err := os.WriteFile(path, custom, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := runInit(&bytes.Buffer{}, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, custom) {
		t.Errorf("config.yaml overwritten: %q", got)
	}
}
