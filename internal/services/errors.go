package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInput marks generated content that could not be parsed into the
	// required shape. The current step aborts without state changes.
	ErrInput = errors.New("input error")
	// ErrGeneration marks a per-asset generation failure isolated to one scene.
	ErrGeneration = errors.New("generation error")
	// ErrPrecondition marks an operation invoked without its upstream asset.
	ErrPrecondition = errors.New("precondition failed")
	// ErrExport marks a decode or capture failure that aborted an export.
	ErrExport = errors.New("export error")
	// ErrBusy marks a request rejected because a long-running operation holds
	// the session.
	ErrBusy = errors.New("session busy")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var kinds = []struct {
	marker error
	label  string
}{
	{ErrInput, "input"},
	{ErrPrecondition, "precondition"},
	{ErrExport, "export"},
	{ErrBusy, "busy"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrExternalTool, "external_tool"},
	{ErrGeneration, "generation"},
	{ErrTransient, "transient"},
}

// Kind classifies an error into its taxonomy label for logs and the event
// log. The first matching marker wins; unmarked errors are "internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.label
		}
	}
	return "internal"
}

// Hint returns a short operator hint for an error's kind.
func Hint(err error) string {
	switch Kind(err) {
	case "input":
		return "the generated content was malformed; retry the step or adjust the input"
	case "precondition":
		return "generate the missing upstream asset first"
	case "export":
		return "check that every scene's video and narration decode with ffprobe"
	case "busy":
		return "wait for the running generation or export to finish"
	case "validation":
		return "check the supplied value"
	case "configuration":
		return "run storyreel config validate and storyreel doctor"
	case "timeout":
		return "the backend did not finish in time; retry or raise the configured wait"
	case "external_tool":
		return "check that ffmpeg and ffprobe are installed and working"
	case "generation", "transient":
		return "retry the scene; inspect storyreel log for the backend error"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
