package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lukas-holzner/codefusion-hackathon/internal/defaults"
)

// runInit prepares a working directory: a db/ directory and an example
// config.yaml. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing codefusion in %s\n", dir)

	dbDir := filepath.Join(dir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dbDir, err)
	}

	// The config carries API keys once filled in.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set OPENAI_API_KEY (or edit config.yaml) and run: codefusion serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, perm)
}
