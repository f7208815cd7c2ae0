package main

import (
	"fmt"
	"strings"
	"time"

	styles "github.com/charmbracelet/lipgloss"
)

func (m *model) View() string {
	available := max(4, m.height-m.bottomLines())
	innerH := max(2, available-2)

	var left string
	switch m.mode {
	case modeEdit:
		left = m.formView()
	default:
		left = m.table.View()
	}
	left = paneStyle.Width(max(1, m.leftPaneWidth-2)).Height(innerH).Render(
		styles.NewStyle().MaxWidth(max(1, m.leftPaneWidth-2)).Render(left),
	)

	rightW := max(1, m.rightPaneWidth-2)
	chartH := max(3, innerH/2)
	chart := renderChart(m.store.Chart(), rightW, chartH)
	right := paneStyle.Width(rightW).Height(innerH).Render(
		styles.NewStyle().MaxWidth(rightW).Render(
			styles.JoinVertical(styles.Left, chart, "", m.activity.view(rightW)),
		),
	)

	view := styles.JoinHorizontal(styles.Top, left, right)
	lines := []string{view}
	if config.StatsEnable {
		lines = append(lines, m.statsLine())
	}
	lines = append(lines, m.statusLine())
	if m.mode == modeBrowse {
		lines = append(lines, m.help.View(keys))
	} else {
		lines = append(lines, m.help.View(formKeys))
	}
	return styles.JoinVertical(styles.Left, lines...)
}

func (m *model) formView() string {
	id, _ := m.store.Editing()
	rows := []string{selectedFg.Render("EDIT " + id), ""}
	for _, f := range m.fields {
		rows = append(rows, f.View())
	}
	return strings.Join(rows, "\n")
}

func (m *model) statusLine() string {
	parts := []string{m.generatingLabel(), fmt.Sprintf("%d records", m.store.Len())}
	switch m.mode {
	case modeAddColumn, modeUpload:
		parts = append(parts, m.prompt.View())
	default:
		if m.pending > 0 {
			parts = append(parts, m.spinner.View()+" loading")
		}
		if m.status != "" {
			parts = append(parts, m.status)
		}
	}
	return strings.Join(parts, borderFg.Render(" │ "))
}

func (m *model) statsLine() string {
	snap := m.metrics.snapshot()
	failed := fmt.Sprintf("%d", snap.failures)
	if snap.lastFailureOp != "" {
		failed += " (last: " + snap.lastFailureOp + ")"
	}
	stats := []string{
		fmt.Sprintf("requests: %d", snap.requests),
		"failed: " + failed,
		fmt.Sprintf("latency last/avg/max: %s/%s/%s",
			formatMetricDuration(snap.latency.last),
			formatMetricDuration(snap.latency.avg),
			formatMetricDuration(snap.latency.max)),
		fmt.Sprintf("live: %d msg, %d bad, %d msg/s", snap.liveMessages, snap.liveBad, snap.liveRps),
	}
	statsStyle := styles.NewStyle().Foreground(styles.AdaptiveColor{Light: "1", Dark: "9"})
	return statsStyle.MaxWidth(max(1, m.width)).Render(strings.Join(stats, "  "))
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
