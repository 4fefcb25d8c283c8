package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyreel/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, "ntfy topic not configured; set notifications.ntfy_topic in config.toml")
				return nil
			}
			notifier := notifications.NewService(cfg)
			if err := notifier.Publish(commandCtx(cmd), notifications.EventTest, notifications.Payload{"source": "storyreel test-notify"}); err != nil {
				return fmt.Errorf("send notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
