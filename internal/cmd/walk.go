package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goforbroke1006/argwait"
	"github.com/goforbroke1006/argwait/internal/config"
	"github.com/goforbroke1006/argwait/internal/logging"
	"github.com/goforbroke1006/argwait/internal/walk"
)

var walkCmd = &cobra.Command{
	Use:   "walk [dir]",
	Short: "List every file below a directory",
	Long: `Walk enumerates the files below dir (default ".") and prints one record
per file followed by a summary.

Filters match base names with glob patterns; an excluded directory is not
descended into.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWalk,
}

func init() {
	walkCmd.Flags().StringSlice("include", nil, "glob patterns a file name must match")
	walkCmd.Flags().StringSlice("exclude", nil, "glob patterns of skipped files and directories")
	walkCmd.Flags().Int("max-depth", 0, "directory levels to list, 0 for unlimited")
	walkCmd.Flags().String("format", "", "output format: text, json, yaml")
	walkCmd.Flags().Int("workers", 0, "concurrent filesystem calls")

	_ = viper.BindPFlag("walk.include", walkCmd.Flags().Lookup("include"))
	_ = viper.BindPFlag("walk.exclude", walkCmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("walk.max_depth", walkCmd.Flags().Lookup("max-depth"))
	_ = viper.BindPFlag("output.format", walkCmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("loop.workers", walkCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(walkCmd)
}

func runWalk(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	report, err := collect(cmd.Context(), afero.NewOsFs(), root, cfg, logger)
	if err != nil {
		return err
	}

	if err := render(cmd.OutOrStdout(), cfg.Output.Format, report); err != nil {
		return err
	}
	if report.Summary.Err != nil {
		return fmt.Errorf("walk %s: %w", root, report.Summary.Err)
	}
	return nil
}

// collect walks root on a fresh loop and gathers every file into a Report.
// The returned error is a loop failure; an aborted walk is reported through
// Report.Summary.Err.
func collect(ctx context.Context, fsys afero.Fs, root string, cfg *config.Config, logger *slog.Logger) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	loop := argwait.NewLoop(
		argwait.WithWorkers(cfg.Loop.Workers),
		argwait.WithLoopLogger(logger),
	)
	defer func() { _ = loop.Close() }()

	w, err := walk.New(loop, fsys,
		walk.WithInclude(cfg.Walk.Include...),
		walk.WithExclude(cfg.Walk.Exclude...),
		walk.WithMaxDepth(cfg.Walk.MaxDepth),
		walk.WithErrorPolicy(argwait.ErrorPolicy(cfg.Errors.Policy)),
		walk.WithLogger(logger),
	)
	if err != nil {
		return Report{}, err
	}

	var report Report
	w.Walk(root, func(path string, info fs.FileInfo, done *argwait.Handle) {
		report.Entries = append(report.Entries, Entry{Path: path, Size: info.Size()})
		done.Resolve(nil)
	}, func(sum walk.Summary) error {
		report.Summary = sum
		if sum.Err != nil {
			report.Error = sum.Err.Error()
		}
		return nil
	})

	if err := loop.Run(ctx); err != nil {
		return Report{}, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Path < report.Entries[j].Path
	})
	return report, nil
}
