package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/report"
)

var scanOpts struct {
	scanFlags
	export       string
	output       string
	noColor      bool
	summaryOnly  bool
	completeDeep bool
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Analyze documents, folders and zip archives",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanOpts.register(scanCmd)
	scanCmd.Flags().StringVarP(&scanOpts.export, "export", "e", "", "export format: csv or json")
	scanCmd.Flags().StringVarP(&scanOpts.output, "output", "o", "", "export file (default officerecon_<run>.<format>)")
	scanCmd.Flags().BoolVar(&scanOpts.noColor, "no-color", false, "disable colored output")
	scanCmd.Flags().BoolVar(&scanOpts.summaryOnly, "summary", false, "print one line per file instead of full dossiers")
	scanCmd.Flags().BoolVar(&scanOpts.completeDeep, "complete-deep", false, "after the batch, deep scan every file that was not deep scanned")
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func runScan(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(scanOpts.export)
	if format != "" && format != "csv" && format != "json" {
		return fmt.Errorf("unsupported export format %q", scanOpts.export)
	}

	cfg, err := scanOpts.config(cmd)
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

	batch, err := scanner.Scan(ctx, args)
	if err != nil {
		return err
	}
	if scanOpts.completeDeep && !cfg.DeepScan {
		n := scanner.CompleteDeepScans(ctx, batch.Records)
		logger.WithField("completed", n).Info("Deep scans completed")
	}

	out := cmd.OutOrStdout()
	r := report.NewRenderer(out, !scanOpts.noColor && !color.NoColor)
	for _, rec := range batch.Records {
		if scanOpts.summaryOnly {
			r.Line(*rec)
		} else {
			r.Dossier(*rec)
		}
	}
	r.Relations(batch.Relations)
	r.Summary(batch.Summary)

	if format == "" {
		return nil
	}
	path := scanOpts.output
	if path == "" {
		path = report.SafeFilename(fmt.Sprintf("officerecon_%s.%s", batch.RunID, format))
	}
	if err := exportRecords(path, format, batch.Records); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d records to %s\n", len(batch.Records), path)
	return nil
}

func exportRecords(path, format string, records []*models.FileRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	recs := make([]models.FileRecord, len(records))
	for i, rec := range records {
		recs[i] = *rec
	}

	var write func(io.Writer, []report.Column, []models.FileRecord) error
	switch format {
	case "csv":
		write = report.WriteCSV
	default:
		write = report.WriteJSON
	}
	if err := write(f, report.Columns, recs); err != nil {
		f.Close()
		return fmt.Errorf("failed to export records: %w", err)
	}
	return f.Close()
}
