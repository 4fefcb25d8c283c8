package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/staging"
	"storyreel/internal/store"
	"storyreel/internal/workflow"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var orphans bool
	var list bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staged files no session references",
		Long: `Remove staged files no session references.

By default, prunes the current session's staging directory of clips and
narration left behind by regeneration or invalidation. With --orphans, also
removes staging directories whose session no longer exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if list {
				return listStaging(cmd, ctx, cfg.Paths.StagingDir)
			}

			var total staging.CleanResult
			err = ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				result, err := mgr.PruneAssets(c)
				if err != nil {
					return err
				}
				total = result
				return nil
			})
			if err != nil && !(orphans && errors.Is(err, workflow.ErrNoSession)) {
				return err
			}

			if orphans {
				logger, err := ctx.logger(cfg)
				if err != nil {
					return err
				}
				err = ctx.withStore(func(st *store.Store) error {
					sums, err := st.ListSessions(commandCtx(cmd))
					if err != nil {
						return err
					}
					active := make(map[string]struct{}, len(sums))
					for _, sum := range sums {
						active[sum.ID] = struct{}{}
					}
					result := staging.CleanOrphaned(commandCtx(cmd), cfg.Paths.StagingDir, active, logger)
					total.Removed = append(total.Removed, result.Removed...)
					total.Errors = append(total.Errors, result.Errors...)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return printCleanResult(cmd, ctx, total)
		},
	}

	cmd.Flags().BoolVar(&orphans, "orphans", false, "Also remove staging directories of deleted sessions")
	cmd.Flags().BoolVar(&list, "list", false, "List staging directories instead of cleaning")
	return cmd
}

func listStaging(cmd *cobra.Command, ctx *commandContext, stagingDir string) error {
	dirs, err := staging.ListDirectories(stagingDir)
	if err != nil {
		return fmt.Errorf("list staging directories: %w", err)
	}
	if ctx.JSONMode() {
		if dirs == nil {
			dirs = []staging.DirInfo{}
		}
		return writeJSON(cmd, dirs)
	}
	out := cmd.OutOrStdout()
	if len(dirs) == 0 {
		fmt.Fprintln(out, "No staging directories found")
		return nil
	}
	var totalSize int64
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		totalSize += dir.Size
		rows = append(rows, []string{dir.Name, formatAge(time.Since(dir.ModTime)), humanBytes(dir.Size)})
	}
	fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)
	fmt.Fprintln(out, renderTable(
		[]string{"Session", "Age", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
	fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), humanBytes(totalSize))
	return nil
}

func printCleanResult(cmd *cobra.Command, ctx *commandContext, result staging.CleanResult) error {
	if ctx.JSONMode() {
		errs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
		}
		removed := result.Removed
		if removed == nil {
			removed = []string{}
		}
		return writeJSON(cmd, map[string]any{"removed": removed, "errors": errs})
	}
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "Nothing to clean")
		return nil
	}
	fmt.Fprintf(out, "Removed %d paths\n", len(result.Removed))
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  failed %s: %v\n", e.Path, e.Error)
	}
	return nil
}
