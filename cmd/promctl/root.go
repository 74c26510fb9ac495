package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/promctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/promctl/internal/config"
	"github.com/ZebulonRouseFrantzich/promctl/internal/journal"
	"github.com/ZebulonRouseFrantzich/promctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/promctl/internal/platform"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	logLevel    string
	journalPath string
}

func (o *globalOptions) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultConfigPath()
}

func newRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "promctl",
		Short: "Provision and supervise a local Prometheus",
		Long: `promctl downloads a pinned Prometheus release for this platform, renders a
session config from a template, and runs Prometheus on a loopback port until
interrupted.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			binary.DefaultUserAgent = "promctl/" + version
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $PROMCTL_CONFIG or $XDG_CONFIG_HOME/promctl/promctl.lua)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&opts.journalPath, "journal", "", "append lifecycle events as JSON lines to this file")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newPathsCommand(opts),
		newInstallCommand(opts),
		newRunCommand(opts),
		newVersionCommand(version),
	)

	return rootCmd
}

// app holds what a command needs once the config is loaded.
type app struct {
	cfg      *config.Config
	platform *platform.Info
	logger   logging.Logger
	journal  journal.Journaler
	closers  []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		c.Close()
	}
}

// loadApp detects the platform, parses the config file and sets up logging
// and the journal. A missing config file means defaults.
func loadApp(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*app, error) {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logging.New(cmd.ErrOrStderr(), level)}

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}
	a.platform = info

	path := opts.resolvedConfigPath()
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) && opts.configPath == "" {
		a.logger.Debug("no config file, using defaults", "path", path)
		a.cfg = config.Default()
	} else {
		a.cfg, err = config.NewParser(platform.Static{Info: *info}).WithLogger(a.logger).ParseFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %s", path, config.FormatError(err, opts.logLevel == "debug"))
		}
	}

	a.journal = journal.Discard()
	if opts.journalPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.journalPath), 0755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		f, err := os.OpenFile(opts.journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = journal.NewWriterJournaler(f)
		a.closers = append(a.closers, f)
	}

	return a, nil
}

func (a *app) descriptor() (binary.Descriptor, error) {
	return binary.NewDescriptor(binary.Prometheus, a.cfg.Prometheus.Version, a.platform)
}

// installDir is the per-version directory under prometheus.base_dir, so a
// version bump never finds the previous binary at its install path.
func (a *app) installDir(d binary.Descriptor) string {
	return binary.VersionDir(a.cfg.Prometheus.BaseDir, d)
}

func (a *app) provisioner(d binary.Descriptor) (*binary.Provisioner, error) {
	p := a.cfg.Prometheus
	return binary.NewProvisioner(binary.Config{
		BaseDir:     a.installDir(d),
		ReleaseHost: p.ReleaseHost,
		Verify:      p.VerificationMethod(),
		KeyringPath: p.Keyring,
		Timeout:     p.DownloadTimeout,
		Retries:     p.Retries,
		Logger:      a.logger,
		Journal:     a.journal,
	})
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the promctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "promctl %s\n", version)
		},
	}
}
