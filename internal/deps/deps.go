package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/stage"
)

// Requirement defines an external program reelforge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Satisfied reports whether the dependency is usable or may be missing.
func (s Status) Satisfied() bool { return s.Available || s.Optional }

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Requirements lists ffprobe plus the program of every collaborator
// command. Only the b-roll fetcher is optional, matching its stage.
func Requirements(cfg *config.Config) []Requirement {
	program := func(argv []string) string {
		if len(argv) == 0 {
			return ""
		}
		return argv[0]
	}
	cmds := cfg.Commands
	reqs := []Requirement{{
		Name:        "ffprobe",
		Command:     cfg.Media.FFprobeBinary,
		Description: "Reads video metadata when jobs are added",
	}}
	for _, entry := range []struct {
		id   stage.ID
		argv []string
		desc string
	}{
		{stage.AutoEditing, cmds.AutoEdit, "Removes silence from uploads"},
		{stage.Transcribing, cmds.Transcribe, "Transcribes speech"},
		{stage.DetectingHighlights, cmds.DetectHighlights, "Finds highlight moments"},
		{stage.GeneratingPlan, cmds.GeneratePlan, "Writes the editing plan"},
		{stage.AcquiringBroll, cmds.AcquireBroll, "Fetches b-roll footage"},
		{stage.Rendering, cmds.Render, "Renders the final video"},
		{stage.Uploading, cmds.Publish, "Publishes the final video"},
	} {
		def, _ := stage.Default().Lookup(entry.id)
		reqs = append(reqs, Requirement{
			Name:        stage.Label(entry.id),
			Command:     program(entry.argv),
			Description: entry.desc,
			Optional:    !def.Required,
		})
	}
	return reqs
}

// DisplayCommand shortens absolute command paths for tables.
func DisplayCommand(s Status) string {
	if s.Command == "" {
		return "-"
	}
	if filepath.IsAbs(s.Command) {
		return filepath.Base(s.Command)
	}
	return s.Command
}
