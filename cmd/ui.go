package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}

	styleTitle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Underline(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleKey     = lipgloss.NewStyle().Foreground(colorPrimary).Width(14)
)

func formatSuccess(msg string) string {
	return styleSuccess.Render("✔ " + msg)
}

func formatError(msg string) string {
	return styleError.Render("✘ " + msg)
}

func formatWarning(msg string) string {
	return styleWarning.Render("⚠ " + msg)
}

func formatMuted(msg string) string {
	return styleMuted.Render(msg)
}

func renderKeyValue(key string, value any) string {
	return styleKey.Render(key) + fmt.Sprint(value)
}
