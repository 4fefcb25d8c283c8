package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"storyreel/internal/session"
	"storyreel/internal/store"
	"storyreel/internal/workflow"
)

func newNewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "new <book title>",
		Short: "Start a session by adapting a book into scenes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.CreateStory(c, title)
				if err != nil {
					if sess.ID != "" && !ctx.JSONMode() {
						fmt.Fprintf(cmd.ErrOrStderr(), "Session %s kept at step %s; see `storyreel log -s %s`\n", sess.ID, sess.Step, sess.ID)
					}
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.Snapshot(c)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				sums, err := st.ListSessions(commandCtx(cmd))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if sums == nil {
						sums = []store.Summary{}
					}
					return writeJSON(cmd, sums)
				}
				out := cmd.OutOrStdout()
				if len(sums) == 0 {
					fmt.Fprintln(out, "No sessions yet; start one with `storyreel new <title>`")
					return nil
				}
				rows := make([][]string, 0, len(sums))
				for _, sum := range sums {
					rows = append(rows, []string{
						sum.ID,
						truncate(sum.Title, 40),
						sum.Step.String(),
						strconv.Itoa(sum.Scenes),
						sum.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Session", "Title", "Step", "Scenes", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.AddCommand(newSessionsDeleteCommand(ctx))
	return cmd
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete a session, its event log, and its staged assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return workflow.ErrLocked
			}
			defer func() { _ = lock.Unlock() }()

			err = ctx.withStore(func(st *store.Store) error {
				return st.DeleteSession(commandCtx(cmd), id)
			})
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("session %s not found", id)
			}
			if err != nil {
				return err
			}
			if err := os.RemoveAll(cfg.SessionStagingDir(id)); err != nil {
				return fmt.Errorf("remove staged assets: %w", err)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]string{"deleted": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
			return nil
		},
	}
}

func newStoryCommand(ctx *commandContext) *cobra.Command {
	storyCmd := &cobra.Command{
		Use:   "story",
		Short: "Edit the adapted story",
	}
	storyCmd.AddCommand(&cobra.Command{
		Use:   "set <title|summary|visualStyle|characterDescription> <value>",
		Short: "Set a story field; style and character edits clear the reference image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := session.ParseStoryField(args[0])
			if err != nil {
				return err
			}
			value := strings.Join(args[1:], " ")
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.EditStoryField(c, field, value)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})
	return storyCmd
}

func newSceneCommand(ctx *commandContext) *cobra.Command {
	sceneCmd := &cobra.Command{
		Use:   "scene",
		Short: "Edit, add, delete, or select scenes",
	}

	sceneCmd.AddCommand(&cobra.Command{
		Use:   "set <scene> <textEn|textZh|visualPrompt|voiceMood> <value>",
		Short: "Set a scene field; a changed value resets the scene to pending",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseSceneNumber(args[0])
			if err != nil {
				return err
			}
			field, err := session.ParseSceneField(args[1])
			if err != nil {
				return err
			}
			value := strings.Join(args[2:], " ")
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.EditSceneField(c, index, field, value)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})

	sceneCmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Append an empty scene and select it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.AddScene(c)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})

	sceneCmd.AddCommand(&cobra.Command{
		Use:   "delete <scene>",
		Short: "Delete a scene and renumber the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseSceneNumber(args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.DeleteScene(c, index)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})

	sceneCmd.AddCommand(&cobra.Command{
		Use:   "select <scene>",
		Short: "Make a scene the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseSceneNumber(args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.SelectScene(c, index)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})

	return sceneCmd
}

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Change video settings",
	}
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <resolution|aspectRatio> <value>",
		Short: "Change a setting; resets every scene and clears the reference image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := session.ParseSettingsField(args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.ChangeSettings(c, field, args[1])
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	})
	return settingsCmd
}

func newStepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "step <input|story-gen|ref-image-gen|video-gen|finished>",
		Short: "Move the pipeline to a step",
		Long: `Move the pipeline to a step.

Moving backward always succeeds. Moving forward needs the step's
prerequisite: a story for story-gen and ref-image-gen, a reference image
for video-gen and finished.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := session.ParseStep(args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(cmd, func(c context.Context, mgr *workflow.Manager) error {
				sess, err := mgr.JumpTo(c, target)
				if err != nil {
					return err
				}
				return printSession(cmd, ctx, sess)
			})
		},
	}
}

// parseSceneNumber turns a 1-based scene number into an index.
func parseSceneNumber(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid scene number %q (scenes are numbered from 1)", arg)
	}
	return n - 1, nil
}
