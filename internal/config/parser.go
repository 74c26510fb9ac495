package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/promctl/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Nop()}
}

// WithLogger sets the logger used for warnings about the config content.
func (p *Parser) WithLogger(logger logging.Logger) *Parser {
	p.logger = logging.OrNop(logger)
	return p
}

// ParseFile reads and parses the config at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxConfigSize),
		}
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	p.logger.Debug("parsing config", "path", path)
	return p.ParseString(ctx, string(code))
}

// ParseString parses a Lua config from a string.
// This is useful for testing and in-memory config generation.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxConfigSize),
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	for _, f := range ScanCredentials(luaCode) {
		p.logger.Warn("config may contain a credential", "kind", f.Kind, "line", f.Line)
	}

	cfg, err := p.extractConfig(L)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig overlays the global promctl table onto Default.
func (p *Parser) extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobalPromctl)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'promctl' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}

	cfg := Default()
	r := &tableReader{t: root.(*lua.LTable), logger: p.logger}
	r.known(luaSectionPrometheus, luaSectionSession, luaSectionRetention, luaSectionReadiness)

	if t := r.table(luaSectionPrometheus); t != nil {
		t.known(luaFieldVersion, luaFieldReleaseHost, luaFieldBaseDir, luaFieldVerify,
			luaFieldKeyring, luaFieldDownloadTimeout, luaFieldRetries)
		pc := &cfg.Prometheus
		t.str(luaFieldVersion, &pc.Version)
		t.str(luaFieldReleaseHost, &pc.ReleaseHost)
		t.str(luaFieldBaseDir, &pc.BaseDir)
		t.str(luaFieldVerify, &pc.Verify)
		t.str(luaFieldKeyring, &pc.Keyring)
		t.duration(luaFieldDownloadTimeout, &pc.DownloadTimeout)
		t.integer(luaFieldRetries, &pc.Retries)
	}

	if t := r.table(luaSectionSession); t != nil {
		t.known(luaFieldOwner, luaFieldPort, luaFieldAPIURL, luaFieldTemplate, luaFieldConfigDir,
			luaFieldDataDir, luaFieldInheritEnv, luaFieldEnv, luaFieldStopGrace)
		sc := &cfg.Session
		t.str(luaFieldOwner, &sc.Owner)
		t.integer(luaFieldPort, &sc.Port)
		t.str(luaFieldAPIURL, &sc.APIURL)
		t.str(luaFieldTemplate, &sc.Template)
		t.str(luaFieldConfigDir, &sc.ConfigDir)
		t.str(luaFieldDataDir, &sc.DataDir)
		t.list(luaFieldInheritEnv, &sc.InheritEnv)
		t.dict(luaFieldEnv, &sc.Env)
		t.duration(luaFieldStopGrace, &sc.StopGrace)
	}

	if t := r.table(luaSectionRetention); t != nil {
		t.known(luaFieldTime, luaFieldSize, luaFieldMinBlockDuration, luaFieldMaxBlockDuration)
		rc := &cfg.Retention
		t.str(luaFieldTime, &rc.Time)
		t.str(luaFieldSize, &rc.Size)
		t.str(luaFieldMinBlockDuration, &rc.MinBlockDuration)
		t.str(luaFieldMaxBlockDuration, &rc.MaxBlockDuration)
	}

	if t := r.table(luaSectionReadiness); t != nil {
		t.known(luaFieldPollInterval, luaFieldTimeout, luaFieldProbe)
		rc := &cfg.Readiness
		t.duration(luaFieldPollInterval, &rc.PollInterval)
		t.duration(luaFieldTimeout, &rc.Timeout)
		t.str(luaFieldProbe, &rc.Probe)
	}

	if err := r.firstErr(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// tableReader copies typed fields out of a Lua table. Absent or nil fields
// leave the destination untouched; the first type mismatch is kept and
// every later read becomes a no-op.
type tableReader struct {
	t      *lua.LTable
	path   string
	logger logging.Logger
	err    *error
}

func (r *tableReader) firstErr() error {
	if r.err == nil {
		return nil
	}
	return *r.err
}

func (r *tableReader) field(key string) string {
	if r.path == "" {
		return key
	}
	return r.path + "." + key
}

func (r *tableReader) fail(key, format string, args ...interface{}) {
	if r.err == nil {
		r.err = new(error)
	}
	if *r.err == nil {
		*r.err = &ValidationError{Field: r.field(key), Message: fmt.Sprintf(format, args...)}
	}
}

func (r *tableReader) get(key string) (lua.LValue, bool) {
	if r.firstErr() != nil {
		return nil, false
	}
	v := r.t.RawGetString(key)
	return v, v.Type() != lua.LTNil
}

// known warns about keys outside names; they are usually typos.
func (r *tableReader) known(names ...string) {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}

	var unknown []string
	r.t.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok && !allowed[string(s)] {
			unknown = append(unknown, string(s))
		}
	})
	sort.Strings(unknown)
	for _, k := range unknown {
		r.logger.Warn("unknown config key", "key", r.field(k))
	}
}

func (r *tableReader) table(key string) *tableReader {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	t, isTable := v.(*lua.LTable)
	if !isTable {
		r.fail(key, "expected table, got %s", v.Type())
		return nil
	}
	if r.err == nil {
		r.err = new(error)
	}
	return &tableReader{t: t, path: r.field(key), logger: r.logger, err: r.err}
}

func (r *tableReader) str(key string, dst *string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	s, isString := v.(lua.LString)
	if !isString {
		r.fail(key, "expected string, got %s", v.Type())
		return
	}
	*dst = string(s)
}

func (r *tableReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, isNumber := v.(lua.LNumber)
	if !isNumber || float64(n) != float64(int(n)) {
		r.fail(key, "expected integer, got %s", v.String())
		return
	}
	*dst = int(n)
}

// duration accepts a Go duration string or a number of seconds.
func (r *tableReader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	switch x := v.(type) {
	case lua.LNumber:
		*dst = time.Duration(float64(x) * float64(time.Second))
	case lua.LString:
		d, err := time.ParseDuration(strings.TrimSpace(string(x)))
		if err != nil {
			r.fail(key, "invalid duration %q", string(x))
			return
		}
		*dst = d
	default:
		r.fail(key, "expected duration, got %s", v.Type())
	}
}

// list reads an array of strings. Nil holes from platform conditionals
// such as `platform.is_linux and "X" or nil` are skipped.
func (r *tableReader) list(key string, dst *[]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	t, isTable := v.(*lua.LTable)
	if !isTable {
		r.fail(key, "expected list of strings, got %s", v.Type())
		return
	}

	var out []string
	var bad error
	t.ForEach(func(k, item lua.LValue) {
		if _, isIndex := k.(lua.LNumber); !isIndex {
			bad = errors.New("expected list, found key " + k.String())
			return
		}
		s, isString := item.(lua.LString)
		if !isString {
			bad = fmt.Errorf("expected string at [%s], got %s", k.String(), item.Type())
			return
		}
		out = append(out, string(s))
	})
	if bad != nil {
		r.fail(key, "%v", bad)
		return
	}
	*dst = out
}

// dict reads a table of string keys to scalar values. Numbers and booleans
// are converted to their Lua string form.
func (r *tableReader) dict(key string, dst *map[string]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	t, isTable := v.(*lua.LTable)
	if !isTable {
		r.fail(key, "expected table, got %s", v.Type())
		return
	}

	out := make(map[string]string)
	var bad error
	t.ForEach(func(k, item lua.LValue) {
		name, isString := k.(lua.LString)
		if !isString {
			bad = fmt.Errorf("expected string key, got %s", k.Type())
			return
		}
		switch item.Type() {
		case lua.LTString, lua.LTNumber, lua.LTBool:
			out[string(name)] = item.String()
		default:
			bad = fmt.Errorf("value of %s must be a string, got %s", name, item.Type())
		}
	})
	if bad != nil {
		r.fail(key, "%v", bad)
		return
	}
	*dst = out
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		// Extract the most relevant part of the error
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
