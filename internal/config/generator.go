package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Generator generates Lua configuration code from Go structs.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
		now:    time.Now,
	}
}

// Generate renders config as a commented promctl.lua that parses back to
// the same values.
func (g *Generator) Generate(config *Config) string {
	var buf bytes.Buffer

	buf.WriteString("-- promctl configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().UTC().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- The read-only `platform` table (platform.os, platform.arch,\n")
	buf.WriteString("-- platform.is_linux, ...) is available for conditionals.\n\n")

	buf.WriteString("promctl = {\n")

	p := config.Prometheus
	g.open(&buf, luaSectionPrometheus, "Which Prometheus to run and where to keep it.")
	g.field(&buf, luaFieldVersion, g.quoteLuaString(p.Version), "")
	g.field(&buf, luaFieldReleaseHost, g.quoteLuaString(p.ReleaseHost), "")
	g.field(&buf, luaFieldBaseDir, g.quoteLuaString(p.BaseDir), "")
	g.field(&buf, luaFieldVerify, g.quoteLuaString(p.Verify), `"none", "sha256" or "gpg"`)
	if p.Keyring != "" {
		g.field(&buf, luaFieldKeyring, g.quoteLuaString(p.Keyring), "armored OpenPGP public keys")
	}
	g.field(&buf, luaFieldDownloadTimeout, g.quoteLuaString(formatDuration(p.DownloadTimeout)), "")
	g.field(&buf, luaFieldRetries, fmt.Sprintf("%d", p.Retries), "extra download attempts")
	g.close(&buf)

	s := config.Session
	g.open(&buf, luaSectionSession, "The session started by `promctl run`.")
	g.field(&buf, luaFieldOwner, g.quoteLuaString(s.Owner), "shown in logs")
	g.field(&buf, luaFieldPort, fmt.Sprintf("%d", s.Port), "bound on 127.0.0.1")
	g.field(&buf, luaFieldAPIURL, g.quoteLuaString(s.APIURL), "{{apiUrl}} in the template")
	g.field(&buf, luaFieldTemplate, g.quoteLuaString(s.Template), "")
	g.field(&buf, luaFieldConfigDir, g.quoteLuaString(s.ConfigDir), "rendered configs")
	g.field(&buf, luaFieldDataDir, g.quoteLuaString(s.DataDir), "TSDB")
	g.field(&buf, luaFieldInheritEnv, g.luaList(s.InheritEnv), "copied from the calling environment")
	g.field(&buf, luaFieldEnv, g.luaDict(s.Env), "")
	g.field(&buf, luaFieldStopGrace, g.quoteLuaString(formatDuration(s.StopGrace)), `SIGKILL after SIGTERM, "0s" never`)
	g.close(&buf)

	r := config.Retention
	g.open(&buf, luaSectionRetention, "Passed to Prometheus verbatim.")
	g.field(&buf, luaFieldTime, g.quoteLuaString(r.Time), "")
	g.field(&buf, luaFieldSize, g.quoteLuaString(r.Size), "")
	g.field(&buf, luaFieldMinBlockDuration, g.quoteLuaString(r.MinBlockDuration), "")
	g.field(&buf, luaFieldMaxBlockDuration, g.quoteLuaString(r.MaxBlockDuration), "")
	g.close(&buf)

	rd := config.Readiness
	g.open(&buf, luaSectionReadiness, "How `promctl run` decides Prometheus is up.")
	g.field(&buf, luaFieldPollInterval, g.quoteLuaString(formatDuration(rd.PollInterval)), "")
	g.field(&buf, luaFieldTimeout, g.quoteLuaString(formatDuration(rd.Timeout)), "")
	g.field(&buf, luaFieldProbe, g.quoteLuaString(rd.Probe), `"dial" or "socket"`)
	g.close(&buf)

	buf.WriteString("}\n")

	return buf.String()
}

func (g *Generator) open(buf *bytes.Buffer, name, comment string) {
	buf.WriteString(g.indent)
	buf.WriteString("-- ")
	buf.WriteString(comment)
	buf.WriteString("\n")
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = {\n")
}

func (g *Generator) close(buf *bytes.Buffer) {
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

func (g *Generator) field(buf *bytes.Buffer, name, value, comment string) {
	buf.WriteString(g.indent)
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = ")
	buf.WriteString(value)
	buf.WriteString(",")
	if comment != "" {
		buf.WriteString(" -- ")
		buf.WriteString(comment)
	}
	buf.WriteString("\n")
}

func (g *Generator) luaList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = g.quoteLuaString(s)
	}
	return "{ " + strings.Join(quoted, ", ") + " }"
}

func (g *Generator) luaDict(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("[%s] = %s", g.quoteLuaString(k), g.quoteLuaString(m[k]))
	}
	return "{ " + strings.Join(pairs, ", ") + " }"
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}

// formatDuration drops zero trailing units: 5m0s becomes 5m.
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// DefaultTemplate is the session template written by `promctl init`. It
// scrapes Prometheus itself and discovers nodes through the Kubernetes API
// at {{apiUrl}}.
const DefaultTemplate = `global:
  scrape_interval: 15s
  evaluation_interval: 15s

scrape_configs:
  - job_name: prometheus
    static_configs:
      - targets: ["127.0.0.1:{{port}}"]

  - job_name: kubernetes-nodes
    scheme: https
    tls_config:
      insecure_skip_verify: true
    kubernetes_sd_configs:
      - role: node
        api_server: {{apiUrl}}
    relabel_configs:
      - action: labelmap
        regex: __meta_kubernetes_node_label_(.+)
      - target_label: owner
        replacement: {{owner}}
`
