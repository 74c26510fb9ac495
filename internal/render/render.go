// Package render turns a configuration template into a uniquely named
// session config file.
//
// Templates use {{name}} placeholders, optionally padded with whitespace
// inside the braces; the handlebars triple-stash {{{name}}} is accepted too.
// Names not present in the value map render as the empty string. There are
// no conditionals, loops or escaping.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
)

// DefaultOutputName is appended to the random prefix of every rendered file.
const DefaultOutputName = "prometheus.yaml"

// placeholder matches {{name}} and the triple-stash {{{name}}}. Both insert
// the value verbatim.
var placeholder = regexp.MustCompile(`\{\{\{\s*([A-Za-z0-9_.]+)\s*\}\}\}|\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// SessionConfig is a rendered config file. The caller owns it and is
// responsible for deleting it.
type SessionConfig struct {
	Path       string
	RenderedAt time.Time
}

// Remove deletes the file. A file that is already gone is not an error.
func (c *SessionConfig) Remove() error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Config configures a Renderer.
type Config struct {
	// Dir receives rendered files. Created with mode 0700 if missing.
	Dir string
	// OutputName is the file name suffix (default: DefaultOutputName).
	OutputName string

	Logger logging.Logger
	// Now stamps SessionConfig.RenderedAt (default: time.Now).
	Now func() time.Time
}

// Renderer writes rendered templates into a directory.
type Renderer struct {
	dir        string
	outputName string
	logger     logging.Logger
	now        func() time.Time
}

// NewRenderer creates a Renderer. The directory is not touched until the
// first Render.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("render dir is required")
	}

	outputName := cfg.OutputName
	if outputName == "" {
		outputName = DefaultOutputName
	}
	if filepath.Base(outputName) != outputName {
		return nil, fmt.Errorf("output name %q must not contain a path separator", outputName)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Renderer{
		dir:        cfg.Dir,
		outputName: outputName,
		logger:     logging.OrNop(cfg.Logger),
		now:        now,
	}, nil
}

// Dir returns the output directory.
func (r *Renderer) Dir() string {
	return r.dir
}

// Render reads templatePath, substitutes values and writes the result to a
// new file named {uuid}-{outputName}. Two calls never return the same path.
func (r *Renderer) Render(templatePath string, values map[string]string) (*SessionConfig, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, &TemplateReadError{Path: templatePath, Err: err}
	}

	rendered := Execute(string(raw), values)

	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return nil, &ConfigWriteError{Path: r.dir, Err: err}
	}

	path := filepath.Join(r.dir, uuid.NewString()+"-"+r.outputName)
	if err := writeExclusive(path, []byte(rendered)); err != nil {
		return nil, &ConfigWriteError{Path: path, Err: err}
	}

	r.logger.Debug("session config rendered", "template", templatePath, "path", path)

	return &SessionConfig{
		Path:       path,
		RenderedAt: r.now(),
	}, nil
}

// Execute substitutes every placeholder in tmpl.
func Execute(tmpl string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if sub[1] != "" {
			return values[sub[1]]
		}
		return values[sub[2]]
	})
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
