package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"storyreel/internal/session"
	"storyreel/internal/textutil"
)

func printSession(cmd *cobra.Command, ctx *commandContext, sess session.Session) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, sess)
	}
	out := cmd.OutOrStdout()
	writeSession(out, sess, shouldColorize(out))
	return nil
}

func writeSession(out io.Writer, sess session.Session, colorize bool) {
	fmt.Fprintf(out, "Session %s\n", sess.ID)
	fmt.Fprintln(out, renderStatusLine("Step", statusInfo, textutil.Label(sess.Step.String()), colorize))
	fmt.Fprintln(out, renderStatusLine("Settings", statusInfo,
		fmt.Sprintf("%s %s", sess.Settings.Resolution, sess.Settings.AspectRatio), colorize))

	if sess.Story == nil {
		fmt.Fprintln(out, renderStatusLine("Story", statusWarn, "none yet (run `storyreel new <title>`)", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Title", statusInfo, sess.Story.Title, colorize))
	fmt.Fprintln(out, renderStatusLine("Visual style", statusInfo, truncate(sess.Story.VisualStyle, 70), colorize))
	fmt.Fprintln(out, renderStatusLine("Character", statusInfo, truncate(sess.Story.CharacterDescription, 70), colorize))
	if sess.ReferenceImage != nil {
		fmt.Fprintln(out, renderStatusLine("Reference image", statusOK, sess.ReferenceImage.Path, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Reference image", statusWarn, "missing (run `storyreel image`)", colorize))
	}
	counts := sess.StatusCounts()
	fmt.Fprintln(out, renderStatusLine("Scenes", statusInfo, fmt.Sprintf("%d total, %d completed, %d pending, %d error",
		len(sess.Scenes), counts[session.StatusCompleted], counts[session.StatusPending], counts[session.StatusError]), colorize))
	if len(sess.Scenes) == 0 {
		return
	}

	rows := make([][]string, 0, len(sess.Scenes))
	for i, scene := range sess.Scenes {
		marker := ""
		if i == sess.ActiveScene {
			marker = "*"
		}
		duration := ""
		if scene.AudioDuration > 0 {
			duration = strconv.FormatFloat(scene.AudioDuration, 'f', 1, 64) + "s"
		}
		rows = append(rows, []string{
			marker + strconv.Itoa(scene.ID),
			paint(string(scene.Status), statusKindColor(sceneStatusKind(scene.Status)), colorize),
			duration,
			scene.VoiceMood,
			truncate(scene.TextEn, 50),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Status", "Audio", "Mood", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(v)/float64(div), "KMGTPEZY"[exp])
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
