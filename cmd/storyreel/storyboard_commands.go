package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/storyboard"
	"storyreel/internal/workflow"
)

func newStoryboardCommand(ctx *commandContext) *cobra.Command {
	boardCmd := &cobra.Command{
		Use:   "storyboard",
		Short: "Export or import the story and scenes as editable YAML",
	}
	boardCmd.AddCommand(newStoryboardExportCommand(ctx))
	boardCmd.AddCommand(newStoryboardImportCommand(ctx))
	return boardCmd
}

func newStoryboardExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the current session's storyboard (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.Snapshot(c)
				if err != nil {
					return err
				}
				doc, err := storyboard.FromSession(sess)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return storyboard.Encode(cmd.OutOrStdout(), doc)
				}
				path, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}
				if err := storyboard.Save(path, doc); err != nil {
					return fmt.Errorf("write storyboard: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote storyboard with %d scenes to %s\n", len(doc.Scenes), path)
				return nil
			})
		},
	}
}

func newStoryboardImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Start a new session from a storyboard file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			doc, err := storyboard.Load(path)
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.ImportSession(c, doc.Story, doc.Scenes, doc.Settings)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}
