package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/internal/recon"
	"github.com/Rasmus-Riis/OfficeRecon/internal/report"
)

var watchOpts struct {
	scanFlags
	debounce time.Duration
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Scan documents as they are written to watched folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := watchOpts.config(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := openCollaborators(ctx)
		if err != nil {
			return err
		}
		defer c.Close(ctx)

		scanner, err := newScanner(cfg, c)
		if err != nil {
			return err
		}

		r := report.NewRenderer(cmd.OutOrStdout(), !watchOpts.noColor && !color.NoColor)
		w := recon.NewWatcher(scanner, args, watchOpts.debounce, func(b *recon.Batch) {
			for _, rec := range b.Records {
				r.Line(*rec)
			}
			r.Relations(b.Relations)
		}, logger)
		return w.Run(ctx)
	},
}

func init() {
	watchOpts.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchOpts.debounce, "debounce", recon.DefaultDebounce, "quiet period before changed files are scanned")
	watchCmd.Flags().BoolVar(&watchOpts.noColor, "no-color", false, "disable colored output")
}
