package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/deps"
	"storyreel/internal/preflight"
	"storyreel/internal/store"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories, and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c := commandCtx(cmd)
			results := append(preflight.RunAll(c, cfg), checkDatabase(c, ctx))
			if online {
				checkCtx, cancel := context.WithTimeout(c, 30*time.Second)
				results = append(results,
					preflight.CheckOpenAI(checkCtx, "Story backend", cfg.Story.BaseURL, cfg.Story.APIKey),
					preflight.CheckOpenAI(checkCtx, "Image backend", cfg.Image.BaseURL, cfg.Image.APIKey),
					preflight.CheckOpenAI(checkCtx, "Speech backend", cfg.Speech.BaseURL, cfg.Speech.APIKey),
					preflight.CheckVideoBackend(checkCtx, cfg.Video.BaseURL, cfg.Video.Model, cfg.Video.APIKey),
				)
				cancel()
			}
			binaries := preflight.CheckSystemDeps(c, cfg)

			failed := len(preflight.Failed(results)) + deps.MissingRequired(binaries)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{"checks": results, "binaries": binaries}); err != nil {
					return err
				}
			} else {
				writeDoctorReport(cmd, results, binaries)
			}
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&online, "online", false, "Also contact each backend to verify credentials")
	return cmd
}

func checkDatabase(c context.Context, ctx *commandContext) preflight.Result {
	result := preflight.Result{Name: "Session database"}
	err := ctx.withStore(func(st *store.Store) error {
		result.Detail = st.Path()
		return st.Ping(c)
	})
	if err != nil {
		result.Detail = fmt.Sprintf("%s (error: %v)", result.Detail, err)
		return result
	}
	result.Passed = true
	return result
}

func writeDoctorReport(cmd *cobra.Command, results []preflight.Result, binaries []deps.Status) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, "Configuration")
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Binaries")
	for _, b := range binaries {
		kind := statusOK
		detail := b.Description
		switch {
		case !b.Available && b.Optional:
			kind, detail = statusWarn, b.Detail
		case !b.Available:
			kind, detail = statusError, b.Detail
		}
		fmt.Fprintln(out, renderStatusLine(b.Name, kind, detail, colorize))
	}
}
