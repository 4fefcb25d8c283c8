// Package deps reports on the external binaries storyreel shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one binary and what it is used for.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional binaries only degrade a feature when missing.
	Optional bool
}

// Status is the outcome of looking a Requirement up on PATH.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	// Path is the resolved executable when Available.
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Check resolves one requirement.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}

// MissingRequired counts unavailable binaries that are not optional.
func MissingRequired(statuses []Status) int {
	n := 0
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			n++
		}
	}
	return n
}
