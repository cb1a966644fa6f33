package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// RenderPlan renders the plan as an indented tree with one status icon per
// task. Commands are listed under their task when verbose is set.
func RenderPlan(plan *task.Plan, s Styles, verbose bool) string {
	if plan == nil || len(plan.Tasks) == 0 {
		return s.Muted.Render("No tasks in plan")
	}

	var b strings.Builder
	plan.Walk(func(t *task.Task, depth int) bool {
		indent := strings.Repeat("  ", depth)
		icon, style := taskIcon(t, s)

		line := fmt.Sprintf("%d. %s", t.ID, t.Description)
		if !t.IsAtomic {
			line += s.Muted.Render(" (compound)")
		}
		b.WriteString(indent + style.Render(icon) + " " + line + "\n")

		if verbose {
			for _, command := range t.Commands {
				b.WriteString(indent + "    " + s.Key.Render("$") + " " + s.Muted.Render(command) + "\n")
			}
		}
		return true
	})
	return strings.TrimRight(b.String(), "\n")
}

func taskIcon(t *task.Task, s Styles) (string, lipgloss.Style) {
	switch {
	case t.Completed:
		return "✓", s.Success
	case t.InProgress:
		return "⟳", s.Status
	default:
		return "○", s.Muted
	}
}

// RenderSummary renders the outcome of a run in a bordered box.
func RenderSummary(out *auto.RunOutput, s Styles) string {
	var status string
	switch out.Status {
	case auto.StatusCompleted:
		status = s.Success.Render("✓ Completed")
	case auto.StatusPartial:
		status = s.Warning.Render("◐ Partially completed")
	default:
		status = s.Error.Render("✗ Failed")
	}

	m := out.Metrics
	lines := []string{
		s.Title.Render("Stepwise run") + "  " + status,
		"",
		fmt.Sprintf("Goal:      %s", out.Goal),
	}
	if out.PlanID != "" {
		lines = append(lines, fmt.Sprintf("Plan:      %s", out.PlanID))
	}
	lines = append(lines,
		fmt.Sprintf("Tasks:     %d/%d completed", m.CompletedTasks, m.TotalTasks),
		fmt.Sprintf("Steps:     %d", m.Steps),
		fmt.Sprintf("Commands:  %d", m.Commands),
		fmt.Sprintf("Failures:  %d", m.Failures),
		fmt.Sprintf("Repairs:   %d", m.Repairs),
		fmt.Sprintf("Elapsed:   %s", s.Muted.Render(formatDuration(m.Duration))),
	)
	if out.Error != "" {
		lines = append(lines, "", s.Error.Render("Error: ")+out.Error)
	}
	return s.Border.Render(strings.Join(lines, "\n"))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
