package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPathsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where promctl reads and writes files",
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

			p := a.cfg.Prometheus
			s := a.cfg.Session
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "config\t%s\n", opts.resolvedConfigPath())
			fmt.Fprintf(w, "template\t%s\n", s.Template)
			fmt.Fprintf(w, "platform\t%s\n", a.platform.Target())
			fmt.Fprintf(w, "archive\t%s\n", d.DownloadURL(p.ReleaseHost))
			fmt.Fprintf(w, "binary\t%s\n", d.InstallPath(a.installDir(d)))
			fmt.Fprintf(w, "session configs\t%s\n", s.ConfigDir)
			fmt.Fprintf(w, "data\t%s\n", s.DataDir)
			return w.Flush()
		},
	}
}
