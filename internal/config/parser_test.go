package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/promctl/internal/platform"
	"github.com/ZebulonRouseFrantzich/promctl/internal/testutil"
)

func linuxDetector() platform.Detector {
	return platform.Static{Info: platform.Info{OS: "linux", Arch: "amd64", ArchRaw: "amd64", Platform: "ubuntu", Family: "debian", Version: "22.04"}}
}

func darwinDetector() platform.Detector {
	return platform.Static{Info: platform.Info{OS: "darwin", Arch: "arm64", ArchRaw: "arm64"}}
}

func TestParseString_EmptyTableKeepsDefaults(t *testing.T) {
	cfg, err := NewParser(nil).ParseString(context.Background(), `promctl = {}`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	want := Default()
	if cfg.Prometheus != want.Prometheus {
		t.Errorf("Prometheus = %+v, want %+v", cfg.Prometheus, want.Prometheus)
	}
	if cfg.Retention != want.Retention {
		t.Errorf("Retention = %+v, want %+v", cfg.Retention, want.Retention)
	}
	if cfg.Readiness != want.Readiness {
		t.Errorf("Readiness = %+v, want %+v", cfg.Readiness, want.Readiness)
	}
	if cfg.Session.Port != DefaultPort || cfg.Session.Owner != DefaultOwner {
		t.Errorf("Session = %+v", cfg.Session)
	}
}

func TestParseString_Overrides(t *testing.T) {
	lua := `
promctl = {
  prometheus = {
    version = "v2.10.0",
    release_host = "http://mirror.local/prometheus",
    verify = "none",
    download_timeout = 90,
    retries = 2,
  },
  session = {
    owner = "minikube",
    port = 9091,
    api_url = "https://192.168.49.2:8443",
    inherit_env = { "PATH", "KUBECONFIG" },
    env = { GOMAXPROCS = 2, DEBUG = true, NAME = "x" },
    stop_grace = "3s",
  },
  retention = { time = "6h", size = "1GB" },
  readiness = { poll_interval = "250ms", timeout = "30s", probe = "socket" },
}
`
	cfg, err := NewParser(linuxDetector()).ParseString(context.Background(), lua)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.Prometheus.Version != "v2.10.0" {
		t.Errorf("Version = %q", cfg.Prometheus.Version)
	}
	if cfg.Prometheus.ReleaseHost != "http://mirror.local/prometheus" {
		t.Errorf("ReleaseHost = %q", cfg.Prometheus.ReleaseHost)
	}
	if cfg.Prometheus.DownloadTimeout != 90*time.Second {
		t.Errorf("DownloadTimeout = %v", cfg.Prometheus.DownloadTimeout)
	}
	if cfg.Prometheus.Retries != 2 {
		t.Errorf("Retries = %d", cfg.Prometheus.Retries)
	}
	if cfg.Session.Port != 9091 || cfg.Session.Owner != "minikube" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if got := strings.Join(cfg.Session.InheritEnv, ","); got != "PATH,KUBECONFIG" {
		t.Errorf("InheritEnv = %q", got)
	}
	if cfg.Session.Env["GOMAXPROCS"] != "2" || cfg.Session.Env["DEBUG"] != "true" || cfg.Session.Env["NAME"] != "x" {
		t.Errorf("Env = %v", cfg.Session.Env)
	}
	if cfg.Session.StopGrace != 3*time.Second {
		t.Errorf("StopGrace = %v", cfg.Session.StopGrace)
	}
	if cfg.Retention.Time != "6h" || cfg.Retention.Size != "1GB" || cfg.Retention.MinBlockDuration != "2h" {
		t.Errorf("Retention = %+v", cfg.Retention)
	}
	if cfg.Readiness.PollInterval != 250*time.Millisecond || cfg.Readiness.Timeout != 30*time.Second || cfg.Readiness.Probe != "socket" {
		t.Errorf("Readiness = %+v", cfg.Readiness)
	}
}

func TestParseString_PlatformConditionals(t *testing.T) {
	lua := `
promctl = {
  session = {
    port = platform.is_macos and 9091 or 9090,
    inherit_env = {
      "PATH",
      platform.is_linux and "XDG_RUNTIME_DIR" or nil,
    },
  },
}
`
	tests := []struct {
		name     string
		detector platform.Detector
		port     int
		env      string
	}{
		{name: "linux", detector: linuxDetector(), port: 9090, env: "PATH,XDG_RUNTIME_DIR"},
		{name: "darwin", detector: darwinDetector(), port: 9091, env: "PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewParser(tt.detector).ParseString(context.Background(), lua)
			if err != nil {
				t.Fatalf("ParseString() error = %v", err)
			}
			if cfg.Session.Port != tt.port {
				t.Errorf("Port = %d, want %d", cfg.Session.Port, tt.port)
			}
			if got := strings.Join(cfg.Session.InheritEnv, ","); got != tt.env {
				t.Errorf("InheritEnv = %q, want %q", got, tt.env)
			}
		})
	}
}

func TestParseString_Errors(t *testing.T) {
	tests := []struct {
		name      string
		lua       string
		wantParse bool
		wantField string
	}{
		{name: "syntax", lua: `promctl = {`, wantParse: true},
		{name: "no_table", lua: `x = 1`, wantParse: true},
		{name: "table_is_string", lua: `promctl = "yes"`, wantParse: true},
		{name: "section_wrong_type", lua: `promctl = { session = 5 }`, wantField: "session"},
		{name: "port_string", lua: `promctl = { session = { port = "9090" } }`, wantField: "session.port"},
		{name: "port_fraction", lua: `promctl = { session = { port = 90.5 } }`, wantField: "session.port"},
		{name: "bad_duration", lua: `promctl = { readiness = { timeout = "soon" } }`, wantField: "readiness.timeout"},
		{name: "list_of_numbers", lua: `promctl = { session = { inherit_env = { 1, 2 } } }`, wantField: "session.inherit_env"},
		{name: "env_table_value", lua: `promctl = { session = { env = { A = {} } } }`, wantField: "session.env"},
		{name: "invalid_after_parse", lua: `promctl = { session = { port = 0 } }`, wantField: "session.port"},
		{name: "bad_verify", lua: `promctl = { prometheus = { verify = "md5" } }`, wantField: "prometheus.verify"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.lua)
			if err == nil {
				t.Fatal("expected error")
			}

			var parseErr *ParseError
			var valErr *ValidationError
			switch {
			case tt.wantParse:
				if !errors.As(err, &parseErr) {
					t.Errorf("expected *ParseError, got %T: %v", err, err)
				}
			default:
				if !errors.As(err, &valErr) {
					t.Fatalf("expected *ValidationError, got %T: %v", err, err)
				}
				if valErr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", valErr.Field, tt.wantField)
				}
			}
		})
	}
}

func TestParseString_UnknownKeysWarn(t *testing.T) {
	logger := &testutil.Logger{}
	_, err := NewParser(nil).WithLogger(logger).ParseString(context.Background(),
		`promctl = { sesion = {}, readiness = { probe = "dial", timout = "1s" } }`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	var keys []string
	for _, e := range logger.ByLevel("WARN") {
		if e.Msg == "unknown config key" {
			keys = append(keys, e.KV["key"].(string))
		}
	}
	if got := strings.Join(keys, ","); got != "sesion,readiness.timout" {
		t.Errorf("warned keys = %q", got)
	}
}

func TestParseString_CredentialWarning(t *testing.T) {
	logger := &testutil.Logger{}
	lua := "promctl = {\n  session = {\n    env = { AUTH_TOKEN = \"abcdefghijklmnopqrstuvwxyz\" },\n  },\n}\n"

	if _, err := NewParser(nil).WithLogger(logger).ParseString(context.Background(), lua); err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	warns := logger.ByLevel("WARN")
	if len(warns) != 1 || warns[0].KV["line"] != 3 {
		t.Errorf("expected one credential warning on line 3, got %v", warns)
	}
}

func TestParseString_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewParser(nil).ParseString(ctx, `while true do end`)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("infinite loop was not interrupted promptly")
	}
}

func TestParseString_TooLarge(t *testing.T) {
	big := "promctl = {}\n--" + strings.Repeat("x", MaxConfigSize)
	_, err := NewParser(nil).ParseString(context.Background(), big)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(`promctl = { session = { owner = "kind" } }`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewParser(linuxDetector()).ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if cfg.Session.Owner != "kind" {
		t.Errorf("Owner = %q", cfg.Session.Owner)
	}

	_, err = NewParser(nil).ParseFile(context.Background(), filepath.Join(dir, "absent.lua"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "<string>:1: unexpected EOF\nstack traceback:\n\t[G]: ?"}

	if got := FormatError(err, false); got != "Lua syntax error: <string>:1: unexpected EOF" {
		t.Errorf("FormatError(false) = %q", got)
	}
	if got := FormatError(err, true); !strings.Contains(got, "stack traceback") {
		t.Errorf("FormatError(true) = %q", got)
	}
	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
