package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/armsd/internal/events"
)

const eventLogSize = 50

func renderEventStream(eventLog []events.Event, theme Theme, width, rows int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for samples and rewards..."),
		))
	}

	var lines []string
	for i, e := range eventLog {
		if i >= rows {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	))
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	style, desc := describeEvent(e, theme)
	return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-16s", e.Type)), desc)
}

func describeEvent(e events.Event, theme Theme) (lipgloss.Style, string) {
	switch e.Type {
	case events.TypeArmSampled:
		var p events.ArmSampled
		if json.Unmarshal(e.Data, &p) == nil {
			return theme.Sampled, fmt.Sprintf("%s draw=%.3f", p.Arm, p.Draw)
		}
	case events.TypeRewardRecorded:
		var p events.RewardRecorded
		if json.Unmarshal(e.Data, &p) == nil {
			style, verdict := theme.Failure, "failure"
			if p.Success {
				style, verdict = theme.Success, "success"
			}
			desc := fmt.Sprintf("%s reward=%g %s", p.Arm, p.Reward, verdict)
			if p.Source != "" {
				desc += " via " + p.Source
			}
			return style, desc
		}
	case events.TypeArmsPruned:
		var p events.ArmsPruned
		if json.Unmarshal(e.Data, &p) == nil {
			return theme.Pruned, strings.Join(p.Arms, ", ")
		}
	}

	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return theme.Dim, raw
}
