package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetupTestEnv(t *testing.T) {
	env := SetupTestEnv(t)

	for _, dir := range []string{env.ConfigDir, env.BinDir, env.TmpDir, env.DataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	if got := os.Getenv("PROMCTL_CONFIG"); got != filepath.Join(env.ConfigDir, "promctl.lua") {
		t.Errorf("PROMCTL_CONFIG = %q", got)
	}
	if os.Getenv("PROMCTL_TEST_MODE") != "1" {
		t.Error("PROMCTL_TEST_MODE not set")
	}
}
