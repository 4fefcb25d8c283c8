package deps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExportRequirements lists the binaries the compositor needs.
func ExportRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpegBinary, Description: "Renders scene segments and concatenates the export"},
		{Name: "FFprobe", Command: ffprobeBinary, Description: "Reads clip dimensions and verifies scene videos decode"},
	}
}

// CheckDrawtext reports whether ffmpeg was built with the drawtext filter,
// which caption rendering depends on.
func CheckDrawtext(ctx context.Context, ffmpegBinary string) Status {
	status := Status{
		Name:        "FFmpeg drawtext",
		Command:     ffmpegBinary,
		Description: "Burns bilingual captions into the export",
	}
	if strings.TrimSpace(ffmpegBinary) == "" {
		status.Detail = "command not configured"
		return status
	}
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegBinary, "-hide_banner", "-filters") // #nosec G204
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		status.Detail = fmt.Sprintf("list filters: %v", err)
		return status
	}
	if !hasFilter(stdout.String(), "drawtext") {
		status.Detail = "ffmpeg built without libfreetype (drawtext missing)"
		return status
	}
	status.Available = true
	return status
}

func hasFilter(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
