// CLAUDE:SUMMARY linksheet CLI: scan, process and classify course links in a local .xlsx workbook, optionally re-hosting through Google Drive.
// Command linksheet runs the link pipeline over a local workbook.
//
//	linksheet scan course.xlsx --sheet Sheet1
//	linksheet process course.xlsx --config coursesync.yaml
//	linksheet classify https://drive.google.com/file/d/ID/view
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/coursesync/coursesync"
	"github.com/hazyhaar/coursesync/linkproc"
	"github.com/hazyhaar/coursesync/rehost"
	"github.com/hazyhaar/coursesync/sheetsvc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	sheet      string
	course     string
	configPath string
	pretty     bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:          "linksheet",
		Short:        "Inspect and re-host the course links of an Excel workbook",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&o.pretty, "pretty", false, "pretty-print JSON output")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logs on stderr")

	scan := &cobra.Command{
		Use:   "scan <input.xlsx>",
		Short: "List the link groups the pipeline would process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], o)
		},
	}
	scan.Flags().StringVar(&o.sheet, "sheet", "", "tab name (default: first tab)")

	process := &cobra.Command{
		Use:   "process <input.xlsx>",
		Short: "Re-host every unprocessed link and save the workbook in place",
		Long: `process runs the full pipeline over the workbook. Without Google
credentials in the config file or GOOGLE_APPLICATION_CREDENTIALS, classification
is offline and every link is kept unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], o)
		},
	}
	process.Flags().StringVar(&o.sheet, "sheet", "", "tab name (default: first tab)")
	process.Flags().StringVar(&o.course, "course", "", "course name used in destination folder names")
	process.Flags().StringVar(&o.configPath, "config", "", "coursesync.yaml for pipeline and Google settings")

	classify := &cobra.Command{
		Use:   "classify <url>",
		Short: "Classify a single link offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := linkproc.ClassifyURL(cmd.Context(), linkproc.NewClassifier(nil, newLogger(cmd.ErrOrStderr(), o.verbose)), args[0])
			return writeOutput(cmd.OutOrStdout(), info, o.pretty)
		},
	}

	root.AddCommand(scan, process, classify)
	return root
}

func runScan(ctx context.Context, out, errOut io.Writer, path string, o *options) error {
	x, err := sheetsvc.OpenXLSX(path)
	if err != nil {
		return err
	}
	defer x.Close()

	p, err := linkproc.New(linkproc.Config{}, linkproc.Deps{Sheets: x, Logger: newLogger(errOut, o.verbose)})
	if err != nil {
		return err
	}
	res, err := p.Scan(ctx, linkproc.SheetRef{SheetName: o.sheet})
	if err != nil {
		return err
	}
	return writeOutput(out, res, o.pretty)
}

func runProcess(ctx context.Context, out, errOut io.Writer, path string, o *options) error {
	logger := newLogger(errOut, o.verbose)
	cfg := &coursesync.Config{}
	if o.configPath != "" {
		loaded, err := coursesync.LoadConfigFile(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if f := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); f != "" && cfg.Google.File == "" {
		cfg.Google.File = f
	}

	x, err := sheetsvc.OpenXLSX(path)
	if err != nil {
		return err
	}
	defer x.Close()

	deps := linkproc.Deps{Sheets: x, Logger: logger}
	backends, err := coursesync.GoogleBackends(ctx, cfg.Google, logger)
	switch {
	case errors.Is(err, coursesync.ErrNoCredentials):
		logger.Warn("linksheet: no Google credentials, links are kept unchanged")
	case err != nil:
		return err
	default:
		router := coursesync.NewRouter(cfg.Resilience, nil, logger, cfg.TransportOptions()...)
		defer router.Close()
		var ropts []rehost.Option
		if cfg.MaxFileSize > 0 {
			ropts = append(ropts, rehost.WithMaxFileSize(cfg.MaxFileSize))
		}
		rehost.New(backends.Files, logger, ropts...).RegisterConnectivity(router)
		deps.Metadata, deps.Folders, deps.Services = backends.Metadata, backends.Folders, router
	}

	p, err := linkproc.New(cfg.Pipeline, deps)
	if err != nil {
		return err
	}
	report, err := p.Run(ctx, linkproc.SheetRef{SheetName: o.sheet}, linkproc.RunOptions{CourseName: o.course})
	if err != nil {
		return err
	}
	if err := x.Save(); err != nil {
		return err
	}
	logger.Info("linksheet: workbook saved", "path", path, "processed", report.Processed, "failed", report.Failed)
	return writeOutput(out, report, o.pretty)
}

func writeOutput(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
