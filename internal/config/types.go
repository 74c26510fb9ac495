package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/ZebulonRouseFrantzich/promctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/promctl/internal/readiness"
)

// Config represents the complete promctl configuration.
type Config struct {
	Prometheus PrometheusConfig `json:"prometheus"`
	Session    SessionConfig    `json:"session"`
	Retention  RetentionConfig  `json:"retention"`
	Readiness  ReadinessConfig  `json:"readiness"`
}

// PrometheusConfig selects and provisions the Prometheus binary.
type PrometheusConfig struct {
	Version         string        `json:"version"`
	ReleaseHost     string        `json:"release_host"`
	BaseDir         string        `json:"base_dir"` // cache root, one subdirectory per version
	Verify          string        `json:"verify"`
	Keyring         string        `json:"keyring,omitempty"`
	DownloadTimeout time.Duration `json:"download_timeout"`
	Retries         int           `json:"retries"`
}

// SessionConfig describes the Prometheus session started by `promctl run`.
type SessionConfig struct {
	Owner      string            `json:"owner"`
	Port       int               `json:"port"`
	APIURL     string            `json:"api_url"`
	Template   string            `json:"template"`
	ConfigDir  string            `json:"config_dir"`
	DataDir    string            `json:"data_dir"`
	InheritEnv []string          `json:"inherit_env,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	StopGrace  time.Duration     `json:"stop_grace"`
}

// RetentionConfig holds TSDB flags, in Prometheus syntax.
type RetentionConfig struct {
	Time             string `json:"time"`
	Size             string `json:"size"`
	MinBlockDuration string `json:"min_block_duration"`
	MaxBlockDuration string `json:"max_block_duration"`
}

// ReadinessConfig tunes the readiness gate.
type ReadinessConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
	Probe        string        `json:"probe"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	tmp := filepath.Join(os.TempDir(), "promctl")

	return &Config{
		Prometheus: PrometheusConfig{
			Version:         DefaultPrometheusVersion,
			ReleaseHost:     binary.DefaultReleaseHost,
			BaseDir:         DefaultBaseDir(),
			Verify:          DefaultVerify,
			DownloadTimeout: binary.DefaultTimeout,
			Retries:         binary.DefaultRetries,
		},
		Session: SessionConfig{
			Owner:      DefaultOwner,
			Port:       DefaultPort,
			Template:   filepath.Join(DefaultConfigDir(), TemplateFileName),
			ConfigDir:  tmp,
			DataDir:    filepath.Join(tmp, "data"),
			InheritEnv: []string{"PATH", "HOME", "HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY"},
		},
		Retention: RetentionConfig{
			Time:             "2h",
			Size:             "100MB",
			MinBlockDuration: "2h",
			MaxBlockDuration: "2h",
		},
		Readiness: ReadinessConfig{
			PollInterval: readiness.DefaultInterval,
			Timeout:      readiness.DefaultTimeout,
			Probe:        DefaultProbe,
		},
	}
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	versionPattern = regexp.MustCompile(`^v?[0-9]+\.[0-9]+\.[0-9]+(-[0-9A-Za-z.-]+)?$`)
	// Prometheus durations: one or more number+unit pairs, largest unit first.
	promDurationPattern = regexp.MustCompile(`^([0-9]+(y|w|d|h|ms|m|s))+$`)
	promSizePattern     = regexp.MustCompile(`^[0-9]+(B|KB|MB|GB|TB|PB|EB)$`)
	envNamePattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type field struct {
	name  string
	value string
}

// Validate checks every field. The first problem found is returned as a
// *ValidationError.
func (c *Config) Validate() error {
	p := c.Prometheus
	if !versionPattern.MatchString(p.Version) {
		return &ValidationError{Field: "prometheus.version", Message: fmt.Sprintf("invalid version %q (expected MAJOR.MINOR.PATCH)", p.Version)}
	}
	if err := validateURL(p.ReleaseHost); err != nil {
		return &ValidationError{Field: "prometheus.release_host", Message: err.Error()}
	}
	if p.BaseDir == "" {
		return &ValidationError{Field: "prometheus.base_dir", Message: "cannot be empty"}
	}
	method, err := binary.ParseVerificationMethod(p.Verify)
	if err != nil {
		return &ValidationError{Field: "prometheus.verify", Message: err.Error()}
	}
	if method == binary.VerificationGPG && p.Keyring == "" {
		return &ValidationError{Field: "prometheus.keyring", Message: "required when verify is \"gpg\""}
	}
	if p.DownloadTimeout <= 0 {
		return &ValidationError{Field: "prometheus.download_timeout", Message: "must be positive"}
	}
	if p.Retries < 0 || p.Retries > MaxRetries {
		return &ValidationError{Field: "prometheus.retries", Message: fmt.Sprintf("must be between 0 and %d", MaxRetries)}
	}

	s := c.Session
	if s.Owner == "" {
		return &ValidationError{Field: "session.owner", Message: "cannot be empty"}
	}
	if s.Port < 1 || s.Port > 65535 {
		return &ValidationError{Field: "session.port", Message: fmt.Sprintf("port %d out of range 1-65535", s.Port)}
	}
	if s.APIURL != "" {
		if err := validateURL(s.APIURL); err != nil {
			return &ValidationError{Field: "session.api_url", Message: err.Error()}
		}
	}
	for _, f := range []field{
		{"session.template", s.Template},
		{"session.config_dir", s.ConfigDir},
		{"session.data_dir", s.DataDir},
	} {
		if f.value == "" {
			return &ValidationError{Field: f.name, Message: "cannot be empty"}
		}
	}
	for i, name := range s.InheritEnv {
		if !envNamePattern.MatchString(name) {
			return &ValidationError{Field: fmt.Sprintf("session.inherit_env[%d]", i+1), Message: fmt.Sprintf("invalid variable name %q", name)}
		}
	}
	for name := range s.Env {
		if !envNamePattern.MatchString(name) {
			return &ValidationError{Field: "session.env", Message: fmt.Sprintf("invalid variable name %q", name)}
		}
	}
	if s.StopGrace < 0 {
		return &ValidationError{Field: "session.stop_grace", Message: "cannot be negative"}
	}

	r := c.Retention
	for _, f := range []field{
		{"retention.time", r.Time},
		{"retention.min_block_duration", r.MinBlockDuration},
		{"retention.max_block_duration", r.MaxBlockDuration},
	} {
		if !promDurationPattern.MatchString(f.value) {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("invalid duration %q (e.g. \"2h\", \"15d\")", f.value)}
		}
	}
	if !promSizePattern.MatchString(r.Size) {
		return &ValidationError{Field: "retention.size", Message: fmt.Sprintf("invalid size %q (e.g. \"100MB\")", r.Size)}
	}

	rd := c.Readiness
	if rd.PollInterval <= 0 {
		return &ValidationError{Field: "readiness.poll_interval", Message: "must be positive"}
	}
	if rd.Timeout < rd.PollInterval {
		return &ValidationError{Field: "readiness.timeout", Message: "must not be shorter than poll_interval"}
	}
	if _, err := readiness.NewProber(rd.Probe, 0); err != nil {
		return &ValidationError{Field: "readiness.probe", Message: err.Error()}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

// ChildEnv builds the complete environment for the Prometheus child: the
// inherited variables that are set, then Env, sorted by name. Env wins over
// an inherited variable of the same name.
func (s *SessionConfig) ChildEnv(lookup func(string) (string, bool)) []string {
	vars := make(map[string]string, len(s.InheritEnv)+len(s.Env))
	for _, name := range s.InheritEnv {
		if v, ok := lookup(name); ok {
			vars[name] = v
		}
	}
	for k, v := range s.Env {
		vars[k] = v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// VerificationMethod returns the parsed prometheus.verify value.
func (p *PrometheusConfig) VerificationMethod() binary.VerificationMethod {
	m, _ := binary.ParseVerificationMethod(p.Verify)
	return m
}
