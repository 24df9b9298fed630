package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
)

// Theme colors (Catppuccin Mocha inspired), shared with the log output.
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	colorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
)

// outputStyles styles the result summaries printed to stdout.
type outputStyles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

var styles = outputStyles{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
}

func (s outputStyles) hostStatus(status execution.HostStatus) string {
	switch status {
	case execution.HostStatusSuccess:
		return s.Success.Render(string(status))
	case execution.HostStatusFailed:
		return s.Error.Render(string(status))
	default:
		return s.Warning.Render(string(status))
	}
}

func (s outputStyles) stepStatus(sr execution.StepResult) string {
	switch {
	case sr.Error != nil:
		return s.Error.Render("failed")
	case sr.Applied:
		return s.Success.Render("applied")
	case sr.Status == execution.StepStatusSatisfied:
		return s.Muted.Render("ok")
	case sr.Status == execution.StepStatusSkipped:
		return s.Muted.Render("skipped")
	default:
		return s.Warning.Render(string(sr.Status))
	}
}
