package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/promctl/internal/render"
	"github.com/ZebulonRouseFrantzich/promctl/internal/service"
	"github.com/ZebulonRouseFrantzich/promctl/internal/supervisor"
)

// reapTimeout bounds how long run waits for the child after Exit, on top of
// the stop grace period.
const reapTimeout = 5 * time.Second

func newRunCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run Prometheus until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, cmd, opts)
		},
	}
}

// runSession blocks until ctx is done or Prometheus exits on its own.
func runSession(ctx context.Context, cmd *cobra.Command, opts *globalOptions) error {
	a, err := loadApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.descriptor()
	if err != nil {
		return err
	}
	prov, err := a.provisioner(d)
	if err != nil {
		return err
	}

	s := a.cfg.Session
	if err := os.MkdirAll(s.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	renderer, err := render.NewRenderer(render.Config{Dir: s.ConfigDir, Logger: a.logger})
	if err != nil {
		return err
	}

	r := a.cfg.Retention
	svc, err := service.NewSessionService(prov, renderer, service.SessionRequest{
		Owner:        s.Owner,
		Descriptor:   d,
		Port:         s.Port,
		APIURL:       s.APIURL,
		TemplatePath: s.Template,
		DataDir:      s.DataDir,
		Env:          s.ChildEnv(os.LookupEnv),
		Retention: supervisor.RetentionPolicy{
			Time:             r.Time,
			Size:             r.Size,
			MinBlockDuration: r.MinBlockDuration,
			MaxBlockDuration: r.MaxBlockDuration,
		},
		StopGrace:     s.StopGrace,
		ReadyInterval: a.cfg.Readiness.PollInterval,
		ReadyTimeout:  a.cfg.Readiness.Timeout,
		Probe:         a.cfg.Readiness.Probe,
	}, a.logger, a.journal)
	if err != nil {
		return err
	}
	defer shutdown(svc, s.StopGrace)

	if err := svc.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Prometheus (%s) listening on %s\n", s.Owner, svc.Address())

	select {
	case <-ctx.Done():
		return nil
	case <-svc.Done():
		return fmt.Errorf("prometheus exited with code %d", svc.Supervisor().ExitCode())
	}
}

// shutdown stops the session and gives the child a bounded time to go away
// so that the data directory is not in use when promctl returns.
func shutdown(svc *service.SessionService, grace time.Duration) {
	svc.Exit()

	sup := svc.Supervisor()
	if sup.PID() == 0 {
		return
	}
	select {
	case <-sup.Reaped():
	case <-time.After(grace + reapTimeout):
	}
}
