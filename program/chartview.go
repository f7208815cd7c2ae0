package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	styles "github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/keilerkonzept/sheetdash/internal/charts"
)

const maxChartLabel = 16

// renderChart draws series into a w×h block of terminal cells.
func renderChart(series charts.Series, w, h int) string {
	if series == nil {
		return borderFg.Render("no chart selected (b: bar, p: pie, s: scatter)")
	}
	title := selectedFg.Render(series.Title())
	if series.Len() == 0 {
		return styles.JoinVertical(styles.Left, title, borderFg.Render("no data"))
	}
	w = max(10, w)
	h = max(3, h-1)
	var body string
	switch s := series.(type) {
	case charts.BarSeries:
		body = renderBars(s, w, h)
	case charts.PieSeries:
		body = renderPie(s, w, h)
	case charts.ScatterSeries:
		body = renderScatter(s, w, h)
	}
	return styles.JoinVertical(styles.Left, title, body)
}

func renderBars(s charts.BarSeries, w, h int) string {
	labelW := 0
	for _, l := range s.Labels {
		labelW = max(labelW, ansi.StringWidth(l))
	}
	labelW = min(labelW, maxChartLabel)

	values := make([]string, len(s.Data))
	valueW := 0
	maxV := 0.0
	for i, v := range s.Data {
		values[i] = formatNumber(v)
		valueW = max(valueW, len(values[i]))
		maxV = math.Max(maxV, v)
	}
	barW := max(1, w-labelW-valueW-2)

	barStyle := styles.NewStyle().Foreground(styles.Color("#4BC0C0"))
	var lines []string
	for i, v := range s.Data {
		if len(lines) == h {
			lines = append(lines[:h-1], borderFg.Render(fmt.Sprintf("… %d more", len(s.Data)-h+1)))
			break
		}
		n := 0
		if maxV > 0 && v > 0 {
			n = int(math.Round(v / maxV * float64(barW)))
		}
		label := padRight(ansi.Truncate(s.Labels[i], labelW, "…"), labelW)
		lines = append(lines, label+" "+barStyle.Render(strings.Repeat("█", n))+" "+values[i])
	}
	return strings.Join(lines, "\n")
}

func renderPie(s charts.PieSeries, w, h int) string {
	total := s.Total()
	if total <= 0 {
		return borderFg.Render("all slices are empty")
	}
	var strip strings.Builder
	used := 0
	for i, v := range s.Data {
		n := int(math.Round(v / total * float64(w)))
		if i == len(s.Data)-1 {
			n = w - used
		}
		n = max(0, min(n, w-used))
		used += n
		strip.WriteString(styles.NewStyle().Foreground(styles.Color(s.Colors[i])).Render(strings.Repeat("█", n)))
	}

	lines := []string{strip.String()}
	for i, v := range s.Data {
		if len(lines) == h {
			lines = append(lines[:h-1], borderFg.Render(fmt.Sprintf("… %d more", len(s.Data)-i+1)))
			break
		}
		swatch := styles.NewStyle().Foreground(styles.Color(s.Colors[i])).Render("■")
		label := ansi.Truncate(s.Labels[i], maxChartLabel, "…")
		lines = append(lines, fmt.Sprintf("%s %s %s (%.1f%%)", swatch, label, formatNumber(v), v/total*100))
	}
	return strings.Join(lines, "\n")
}

// Braille cells hold a 2×4 dot matrix.
var brailleDots = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

func renderScatter(s charts.ScatterSeries, w, h int) string {
	plotH := max(1, h-1)
	minX, maxX, minY, maxY := bounds(s.Points)
	dotsW, dotsH := w*2, plotH*4
	cells := make([][]rune, plotH)
	for i := range cells {
		cells[i] = make([]rune, w)
	}
	for _, p := range s.Points {
		dx := scale(p.X, minX, maxX, dotsW)
		dy := dotsH - 1 - scale(p.Y, minY, maxY, dotsH)
		cells[dy/4][dx/2] |= brailleDots[dy%4][dx%2]
	}

	dotStyle := styles.NewStyle().Foreground(styles.Color("#9966FF"))
	lines := make([]string, 0, plotH+1)
	for _, row := range cells {
		var b strings.Builder
		for _, c := range row {
			b.WriteRune(0x2800 + c)
		}
		lines = append(lines, dotStyle.Render(b.String()))
	}
	lines = append(lines, borderFg.Render(fmt.Sprintf("x %s…%s  y %s…%s",
		formatNumber(minX), formatNumber(maxX), formatNumber(minY), formatNumber(maxY))))
	return strings.Join(lines, "\n")
}

func bounds(pts []charts.Point) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return minX, maxX, minY, maxY
}

// scale maps v in [lo,hi] onto [0,n-1]. A degenerate range maps to the middle.
func scale(v, lo, hi float64, n int) int {
	if hi <= lo || math.IsNaN(v) {
		return n / 2
	}
	i := int(math.Round((v - lo) / (hi - lo) * float64(n-1)))
	return max(0, min(n-1, i))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func padRight(s string, w int) string {
	if d := w - ansi.StringWidth(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}
