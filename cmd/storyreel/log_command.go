package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/eventlog"
	"storyreel/internal/logs"
	"storyreel/internal/store"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the session's event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				c := commandCtx(cmd)
				id, err := resolveSessionID(c, st, ctx.sessionID())
				if err != nil {
					return err
				}
				entries, err := st.Events(c, id, lines)
				if err != nil {
					return err
				}
				if follow {
					return followLog(cmd, ctx, st, id, entries)
				}
				if ctx.JSONMode() {
					if entries == nil {
						entries = []eventlog.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No log entries available")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, logRow(e, colorize))
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Time", "Level", "Scene", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of most recent entries to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries until interrupted")
	return cmd
}

// followLog prints the backlog as plain lines, then polls for new entries
// until the command context is cancelled.
func followLog(cmd *cobra.Command, ctx *commandContext, st *store.Store, id string, backlog []eventlog.Entry) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	emit := func(entries []eventlog.Entry) error {
		for _, e := range entries {
			if ctx.JSONMode() {
				if err := writeJSON(cmd, e); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, strings.Join(logRow(e, colorize), "  "))
		}
		return nil
	}
	if err := emit(backlog); err != nil {
		return err
	}
	var after int64
	if len(backlog) > 0 {
		after = backlog[len(backlog)-1].Seq
	}

	c := commandCtx(cmd)
	for {
		res, err := logs.Follow(c, st, id, logs.FollowOptions{After: after, Wait: 5 * time.Second})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := emit(res.Entries); err != nil {
			return err
		}
		after = res.After
	}
}

func logRow(e eventlog.Entry, colorize bool) []string {
	scene := ""
	if n := e.Scene(); n > 0 {
		scene = strconv.Itoa(n)
	}
	return []string{
		e.Time.Local().Format("15:04:05"),
		paint(string(e.Level), statusKindColor(levelKind(e.Level)), colorize),
		scene,
		e.Message,
	}
}

func resolveSessionID(ctx context.Context, st *store.Store, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	sess, err := st.LatestSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}
