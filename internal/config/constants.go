package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalPromctl = "promctl"

	luaSectionPrometheus = "prometheus"
	luaSectionSession    = "session"
	luaSectionRetention  = "retention"
	luaSectionReadiness  = "readiness"

	luaFieldVersion         = "version"
	luaFieldReleaseHost     = "release_host"
	luaFieldBaseDir         = "base_dir"
	luaFieldVerify          = "verify"
	luaFieldKeyring         = "keyring"
	luaFieldDownloadTimeout = "download_timeout"
	luaFieldRetries         = "retries"

	luaFieldOwner      = "owner"
	luaFieldPort       = "port"
	luaFieldAPIURL     = "api_url"
	luaFieldTemplate   = "template"
	luaFieldConfigDir  = "config_dir"
	luaFieldDataDir    = "data_dir"
	luaFieldInheritEnv = "inherit_env"
	luaFieldEnv        = "env"
	luaFieldStopGrace  = "stop_grace"

	luaFieldTime             = "time"
	luaFieldSize             = "size"
	luaFieldMinBlockDuration = "min_block_duration"
	luaFieldMaxBlockDuration = "max_block_duration"

	luaFieldPollInterval = "poll_interval"
	luaFieldTimeout      = "timeout"
	luaFieldProbe        = "probe"
)

// Resource limits for config parsing.
const (
	// MaxConfigSize is the largest config file ParseFile accepts.
	MaxConfigSize = 1 << 20
	// DefaultParseTimeout bounds Lua execution when ctx has no deadline.
	DefaultParseTimeout = 5 * time.Second
	// MaxRetries caps prometheus.retries.
	MaxRetries = 10

	luaCallStackSize = 256
	luaRegistrySize  = 8 * 1024
)

// Defaults.
const (
	DefaultPrometheusVersion = "2.53.1"
	DefaultOwner             = "local"
	DefaultPort              = 9090
	DefaultVerify            = "sha256"
	DefaultProbe             = "dial"

	// ConfigFileName is the config file inside the promctl config directory.
	ConfigFileName = "promctl.lua"
	// TemplateFileName is the session template written next to it by init.
	TemplateFileName = "prometheus.yaml.tmpl"
)
