package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/goforbroke1006/argwait/internal/walk"
)

// Entry is one listed file.
type Entry struct {
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// Report is the full outcome of the walk command.
type Report struct {
	Summary walk.Summary `json:"summary" yaml:"summary"`
	Entries []Entry      `json:"entries" yaml:"entries"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
}

var (
	summaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func render(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case "", "text":
		renderText(w, r)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(w io.Writer, r Report) {
	for _, e := range r.Entries {
		writeLine(w, "%s : %d", e.Path, e.Size)
	}

	line := fmt.Sprintf("%d files, %d dirs, %d bytes, %d skipped in %s",
		r.Summary.Files, r.Summary.Dirs, r.Summary.Bytes, r.Summary.Skipped, r.Summary.Root)
	if r.Error != "" {
		writeLine(w, "%s", failedStyle.Render("aborted: "+r.Error))
	}
	writeLine(w, "%s", summaryStyle.Render(line))
}

// writeLine ignores write errors the same way fmt.Println does.
func writeLine(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", a...)
}
