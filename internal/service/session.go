// Package service provides the session control flow for promctl: render a
// config, start Prometheus, wait for it to listen, and tear it down.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/promctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/promctl/internal/journal"
	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/promctl/internal/readiness"
	"github.com/ZebulonRouseFrantzich/promctl/internal/render"
	"github.com/ZebulonRouseFrantzich/promctl/internal/supervisor"
)

// ErrExitedBeforeReady is returned by Run when the child died while the
// readiness gate was still waiting.
var ErrExitedBeforeReady = errors.New("prometheus exited before it was ready")

// ErrStoppedBeforeReady is returned by Run when Exit ended the session while
// the readiness gate was still waiting.
var ErrStoppedBeforeReady = errors.New("session stopped before prometheus was ready")

// ConfigRenderer renders the session config template.
type ConfigRenderer interface {
	Render(templatePath string, values map[string]string) (*render.SessionConfig, error)
}

// SessionRequest describes one Prometheus session.
type SessionRequest struct {
	// Owner names the session (a cluster or context name) in logs.
	Owner      string
	Descriptor binary.Descriptor
	Port       int
	// APIURL is exposed to the template as {{apiUrl}}.
	APIURL       string
	TemplatePath string
	DataDir      string
	Env          []string
	Retention    supervisor.RetentionPolicy
	StopGrace    time.Duration

	ReadyInterval time.Duration
	ReadyTimeout  time.Duration
	// Probe selects the readiness probe: "dial" (default) or "socket".
	Probe string
}

// SessionService runs a single session. The config is rendered by
// NewSessionService; Exit deletes it.
type SessionService struct {
	req    SessionRequest
	config *render.SessionConfig
	sup    *supervisor.Supervisor
	logger logging.Logger

	mu        sync.Mutex
	lastError string
}

// NewSessionService renders the session config and prepares, but does not
// start, the supervisor.
func NewSessionService(
	resolver supervisor.BinaryResolver,
	renderer ConfigRenderer,
	req SessionRequest,
	logger logging.Logger,
	journaler journal.Journaler,
) (*SessionService, error) {
	logger = logging.OrNop(logger)

	if _, err := readiness.NewProber(req.Probe, 0); err != nil {
		return nil, err
	}

	logger.Debug("rendering session config", "owner", req.Owner, "template", req.TemplatePath, "apiUrl", req.APIURL)
	cfg, err := renderer.Render(req.TemplatePath, TemplateValues(req))
	if err != nil {
		return nil, err
	}

	sup, err := supervisor.New(supervisor.Options{
		Resolver:        resolver,
		Descriptor:      req.Descriptor,
		Owner:           req.Owner,
		Port:            req.Port,
		ConfigPath:      cfg.Path,
		DataDir:         req.DataDir,
		Env:             req.Env,
		Retention:       req.Retention,
		StopGracePeriod: req.StopGrace,
		Logger:          logger,
		Journal:         journaler,
	})
	if err != nil {
		if rmErr := cfg.Remove(); rmErr != nil {
			logger.Warn("failed to delete session config", "path", cfg.Path, "error", rmErr)
		}
		return nil, fmt.Errorf("create supervisor: %w", err)
	}

	return &SessionService{
		req:    req,
		config: cfg,
		sup:    sup,
		logger: logger,
	}, nil
}

// TemplateValues returns the placeholders available to session templates.
func TemplateValues(req SessionRequest) map[string]string {
	return map[string]string{
		"apiUrl":  req.APIURL,
		"owner":   req.Owner,
		"port":    strconv.Itoa(req.Port),
		"dataDir": req.DataDir,
	}
}

// Run starts Prometheus and blocks until it listens on its port. Calling Run
// on a running session only repeats the readiness check.
//
// On a readiness timeout the child keeps running; the caller decides whether
// to Exit.
func (s *SessionService) Run(ctx context.Context) error {
	if err := s.sup.Start(ctx); err != nil {
		s.setLastError(err)
		return err
	}

	prober, err := readiness.NewProber(s.req.Probe, int32(s.sup.PID()))
	if err != nil {
		s.setLastError(err)
		return err
	}

	// Stop or an early exit abandons the wait.
	readyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.sup.Done():
			cancel()
		case <-readyCtx.Done():
		}
	}()

	gate := &readiness.Gate{
		Prober:   prober,
		Interval: s.req.ReadyInterval,
		Timeout:  s.req.ReadyTimeout,
	}
	if err := gate.WaitUntilReady(readyCtx, s.req.Port); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.Canceled) {
			switch exitErr := s.sup.Err(); {
			case s.sup.Stopped():
				err = ErrStoppedBeforeReady
			case exitErr != nil:
				err = fmt.Errorf("%w: %v", ErrExitedBeforeReady, exitErr)
			default:
				err = ErrExitedBeforeReady
			}
		}
		s.setLastError(err)
		return err
	}

	s.logger.Info("prometheus ready", "owner", s.req.Owner, "address", s.sup.ListenAddress())
	return nil
}

// Exit stops Prometheus and deletes the session config. It never fails and
// is safe to call more than once.
func (s *SessionService) Exit() {
	s.logger.Debug("stopping local prometheus", "owner", s.req.Owner)
	s.sup.Stop()
}

// Done is closed when the session ends, by Exit or by the child exiting.
func (s *SessionService) Done() <-chan struct{} {
	return s.sup.Done()
}

// Supervisor returns the underlying supervisor.
func (s *SessionService) Supervisor() *supervisor.Supervisor {
	return s.sup
}

// ConfigPath returns the rendered session config.
func (s *SessionService) ConfigPath() string {
	return s.config.Path
}

// Address returns the URL Prometheus serves on.
func (s *SessionService) Address() string {
	return "http://" + s.sup.ListenAddress()
}

// LastError returns the message of the most recent Run failure, or "".
func (s *SessionService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *SessionService) setLastError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()

	s.logger.Error("prometheus session failed", "owner", s.req.Owner, "error", err)
}
