// Package testutil provides utilities for testing promctl in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Root      string
	ConfigDir string
	BinDir    string
	TmpDir    string
	DataDir   string
}

// SetupTestEnv creates isolated directories for one test and points the
// PROMCTL_* environment variables at them, so tests never touch a real
// binary cache or user configuration. Cleanup is handled by t.TempDir.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	root := t.TempDir()
	env := &Env{
		Root:      root,
		ConfigDir: filepath.Join(root, "config"),
		BinDir:    filepath.Join(root, "binaries"),
		TmpDir:    filepath.Join(root, "tmp"),
		DataDir:   filepath.Join(root, "data"),
	}

	t.Setenv("PROMCTL_CONFIG", filepath.Join(env.ConfigDir, "promctl.lua"))
	t.Setenv("XDG_CONFIG_HOME", env.ConfigDir)
	t.Setenv("PROMCTL_TEST_MODE", "1")

	for _, dir := range []string{env.ConfigDir, env.BinDir, env.TmpDir, env.DataDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
