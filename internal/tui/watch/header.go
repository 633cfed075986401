package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks service health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Store         string
	StoredArms    int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, catalog string, pulse Pulse, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	status := theme.Success.Render("HEALTHY")
	switch {
	case !health.Connected:
		status = theme.Failure.Render("CONNECTING")
	case health.Status != "ok" && health.Status != "":
		status = theme.Failure.Render(strings.ToUpper(health.Status))
	}

	clock := theme.Dim.Render(now.Format("15:04:05"))
	title := " ARMSD WATCH"
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	if len(catalog) > 12 {
		catalog = catalog[:12]
	}
	statsLine := fmt.Sprintf(" %s  up %s  store: %s (%d arms)  catalog: %s",
		status,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.Store,
		health.StoredArms,
		theme.Highlight.Render(catalog),
	)

	last := "never"
	if !pulse.Last().IsZero() {
		last = fmt.Sprintf("%s ago", now.Sub(pulse.Last()).Round(time.Second))
	}
	activityLine := fmt.Sprintf(" Last event: %s %s", last, pulse.Render(theme))

	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
