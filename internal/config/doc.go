// Package config loads promctl's Lua configuration.
//
// A config file assigns a global promctl table. Every field is optional;
// omitted fields keep the values from Default. The file runs in a sandboxed
// gopher-lua VM with the os, io, debug and module loading functions removed,
// and with a read-only platform table describing the host:
//
//	promctl = {
//	  prometheus = {
//	    version = "2.53.1",
//	    verify = "sha256",             -- "none", "sha256" or "gpg"
//	  },
//	  session = {
//	    owner = "minikube",
//	    port = platform.is_macos and 9091 or 9090,
//	    api_url = "https://192.168.49.2:8443",
//	    inherit_env = { "PATH", "HOME", "KUBECONFIG" },
//	    env = { GOMAXPROCS = "2" },
//	  },
//	  retention = { time = "6h", size = "512MB" },
//	  readiness = { timeout = "30s", probe = "socket" },
//	}
//
// Durations are Go duration strings ("500ms", "5m") or numbers of seconds.
// Retention values use Prometheus' own duration and size syntax and are
// passed to the server verbatim.
//
// Parsing is bounded by the caller's context, or DefaultParseTimeout when the
// context has no deadline.
package config
