package cmd

import (
	"fmt"
	"time"

	"quantplane/internal/orchestrator"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state orchestrator.State) string {
	switch state {
	case orchestrator.StateSucceeded:
		return colorGreen + "✓" + colorReset
	case orchestrator.StateFailed:
		return colorRed + "✗" + colorReset
	case orchestrator.StateTerminatedEarly:
		return colorRed + "☠" + colorReset
	case orchestrator.StateTimedOut:
		return colorYellow + "⏳" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state orchestrator.State) string {
	icon := stateIcon(state)
	switch state {
	case orchestrator.StateSucceeded:
		return icon + " " + colorGreen + string(state) + colorReset
	case orchestrator.StateFailed, orchestrator.StateTerminatedEarly:
		return icon + " " + colorRed + string(state) + colorReset
	case orchestrator.StateTimedOut:
		return icon + " " + colorYellow + string(state) + colorReset
	default:
		return string(state)
	}
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
