package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Download the configured Prometheus release if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), cmd, opts)
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

			installed := prov.IsInstalled(d)
			path, err := prov.EnsureBinary(cmd.Context(), d)
			if err != nil {
				return fmt.Errorf("install %s: %w", d, err)
			}

			if installed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s already installed at %s\n", d, path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Installed %s at %s\n", d, path)
			}
			return nil
		},
	}
}
