package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/promctl/internal/config"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and session template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts.resolvedConfigPath(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

// runInit writes promctl.lua and prometheus.yaml.tmpl side by side. The
// generated config points its template at the written file.
func runInit(cmd *cobra.Command, configPath string, force bool) error {
	dir := filepath.Dir(configPath)
	templatePath := filepath.Join(dir, config.TemplateFileName)

	if !force {
		for _, p := range []string{configPath, templatePath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	cfg := config.Default()
	cfg.Session.Template = templatePath

	if err := os.WriteFile(configPath, []byte(config.NewGenerator().Generate(cfg)), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.WriteFile(templatePath, []byte(config.DefaultTemplate), 0644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Wrote %s\n", configPath)
	fmt.Fprintf(out, "✓ Wrote %s\n", templatePath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Set session.api_url in the config")
	fmt.Fprintln(out, "  2. promctl run")

	return nil
}
