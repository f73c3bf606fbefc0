package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func paintStatus(s string) string {
	switch s {
	case string(domain.StatusCompleted):
		return green(s)
	case string(domain.StatusRetrying), string(domain.ProjectStatusBlocked):
		return yellow(s)
	case string(domain.StatusFailed):
		return red(s)
	case string(domain.StatusRunning):
		return cyan(s)
	}
	return s
}

// Printer writes a line per orchestrator event. It is the event publisher of
// the local run command.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer { return &Printer{w: w} }

func (p *Printer) Publish(_ context.Context, ev domain.Event) error {
	var line string
	switch ev.Type {
	case domain.EventRoundPersisted:
		line = faint(fmt.Sprintf("round %d saved, project %s", ev.Round, ev.OverallStatus))
	case domain.EventProjectFinished:
		line = fmt.Sprintf("project %s", paintStatus(string(ev.OverallStatus)))
	default:
		line = fmt.Sprintf("%-10s %-14s %s", ev.TaskID, "("+ev.Role+")", paintStatus(string(ev.TaskStatus)))
		if ev.Reason != "" && ev.TaskStatus != domain.StatusCompleted {
			line += " " + faint(ev.Reason)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s %s\n", faint(fmt.Sprintf("[r%d]", ev.Round)), line)
	return err
}

// PrintSummary writes the final task table and counts.
func PrintSummary(w io.Writer, sum domain.Summary) {
	fmt.Fprintf(w, "\n%s %s\n", bold("Project"), sum.ProjectID)
	if sum.Title != "" {
		fmt.Fprintf(w, "%s\n", sum.Title)
	}
	fmt.Fprintf(w, "status: %s after %d round(s)\n\n", paintStatus(string(sum.OverallStatus)), sum.Round)

	for _, t := range sum.Tasks {
		deps := "-"
		if len(t.Dependencies) > 0 {
			deps = strings.Join(t.Dependencies, ",")
		}
		fmt.Fprintf(w, "  %-14s %-14s %-20s retries=%d deps=%s\n", t.ID, t.Role, paintStatus(string(t.Status)), t.RetryCount, deps)
		if t.LastError != "" && t.Status != domain.StatusCompleted {
			fmt.Fprintf(w, "  %s\n", faint("    "+t.LastError))
		}
	}

	c := sum.Counts()
	fmt.Fprintf(w, "\n%d total, %s completed, %s failed, %d pending\n",
		c.Total, green(c.Completed), red(c.Failed), c.Pending+c.Retrying)
}
