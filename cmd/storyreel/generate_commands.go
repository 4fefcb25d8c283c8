package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/workflow"
)

func newImageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "image",
		Short: "Generate the reference image for the current story and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.GenerateReferenceImage(c)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate video and narration for every scene that is not completed",
		Long: `Generate video and narration for every scene that is not completed.

Scenes run one at a time in order. A failing scene is marked error and the
batch continues; retry it with ` + "`storyreel regenerate <scene>`" + `. Interrupting
the command leaves unfinished scenes pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, report, err := mgr.GenerateVideos(c)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"session":   sess,
						"completed": report.Completed,
						"failed":    report.Failed,
						"skipped":   report.Skipped,
						"elapsed":   report.Elapsed.String(),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Generated %d scenes (%d failed, %d already complete) in %s\n\n",
					report.Completed, report.Failed, report.Skipped, report.Elapsed.Round(time.Second))
				writeSession(out, sess, shouldColorize(out))
				return nil
			})
		},
	}
}

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <scene>",
		Short: "Regenerate one scene whatever its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseSceneNumber(args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.RegenerateScene(c, index)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Compose every completed scene into one captioned movie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				errOut := cmd.ErrOrStderr()
				path, err := mgr.Export(c, func(percent int) {
					if !ctx.JSONMode() {
						fmt.Fprintf(errOut, "Exporting... %d%%\n", percent)
					}
				})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]string{"file": path})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
				return nil
			})
		},
	}
}
