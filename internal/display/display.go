// Package display provides terminal formatting for mailpilot output.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mkarlin/mailpilot/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	HighStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	MediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	LowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// PriorityDot returns a colored dot for a priority level.
func PriorityDot(priority string) string {
	switch priority {
	case "high":
		return HighStyle.Render("●")
	case "medium":
		return MediumStyle.Render("○")
	case "low":
		return LowStyle.Render("○")
	default:
		return Dim.Render("·")
	}
}

// PriorityLabel returns a styled priority label.
func PriorityLabel(priority string) string {
	label := fmt.Sprintf("%-6s", strings.ToUpper(priority))
	switch priority {
	case "high":
		return HighStyle.Render(label)
	case "medium":
		return MediumStyle.Render(label)
	case "low":
		return LowStyle.Render(label)
	default:
		return label
	}
}

// TimeAgo formats a timestamp as a relative time.
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	fmt.Println(Success.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// Result prints one processed email with its analysis and dispatched actions.
func Result(r *types.Result) {
	if r.Email == nil {
		return
	}

	dot := PriorityDot(priorityOf(r))
	subject := Bold.Render(Truncate(r.Email.Subject, 60))
	fmt.Printf("%s %s  %s\n", dot, subject, Dim.Render(r.Email.Sender))

	if r.Err != "" {
		fmt.Printf("  %s %s\n", ErrStyle.Render("✗"), r.Err)
		return
	}

	if r.Analysis != nil {
		fmt.Printf("  %s %s\n", PriorityLabel(r.Analysis.Priority), Truncate(r.Analysis.Summary, 70))
		if r.Analysis.Fallback() {
			fmt.Printf("  %s\n", Dim.Render("analysis unavailable, defaults applied"))
		}
	}

	for _, item := range r.ActionItems {
		line := "• " + Truncate(item.Description, 70)
		if item.Deadline != "" {
			line += Dim.Render(" (due " + item.Deadline + ")")
		}
		fmt.Printf("  %s\n", line)
	}

	for _, ev := range r.Events {
		fmt.Printf("  %s %s %s\n", Muted.Render("⧉"), Truncate(ev.Description, 50), Dim.Render(ev.Date+" "+ev.StartTime))
	}

	if r.Reply != nil {
		status := "held for review"
		if r.Reply.ShouldSend {
			status = "marked safe to send"
		}
		fmt.Printf("  %s reply drafted, %s\n", Muted.Render("↩"), status)
	}
}

// Slots prints computed free slots grouped by day.
func Slots(slots []types.FreeSlot) {
	if len(slots) == 0 {
		fmt.Println(Dim.Render("no free slots in range"))
		return
	}

	day := ""
	for _, s := range slots {
		if d := s.Start.Format("Mon Jan 2"); d != day {
			day = d
			fmt.Println(Bold.Render(day))
		}
		fmt.Printf("  %s – %s %s\n",
			s.Start.Format("15:04"),
			s.End.Format("15:04"),
			Dim.Render(fmt.Sprintf("(%dm)", s.DurationMinutes)),
		)
	}
}

// Actions prints the audit trail for one email.
func Actions(records []*types.ActionRecord) {
	for _, rec := range records {
		mark := Success.Render("✓")
		if !rec.IsSuccess {
			mark = ErrStyle.Render("✗")
		}
		fmt.Printf("%s %-10s %s", mark, rec.ActionType, Dim.Render(TimeAgo(rec.PerformedAt)))
		if rec.ErrorMessage != "" {
			fmt.Printf("  %s", ErrStyle.Render(rec.ErrorMessage))
		}
		fmt.Println()
	}
}

func priorityOf(r *types.Result) string {
	if r.Analysis == nil {
		return ""
	}
	return r.Analysis.Priority
}
