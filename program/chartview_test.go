package main

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/sheetdash/internal/charts"
)

func TestRenderChartEmpty(t *testing.T) {
	assert.Contains(t, renderChart(nil, 40, 10), "no chart selected")

	out := renderChart(charts.Bar(nil), 40, 10)
	assert.Contains(t, out, charts.BarTitle)
	assert.Contains(t, out, "no data")
}

func TestRenderBarsScalesToLargest(t *testing.T) {
	s := charts.Bar([]charts.RevenueRow{{Name: "Acme", Revenue: 20000}, {Name: "Globex", Revenue: 10000}})
	out := ansi.Strip(renderBars(s, 40, 10))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)

	full := strings.Count(lines[0], "█")
	half := strings.Count(lines[1], "█")
	assert.Positive(t, full)
	assert.InDelta(t, full/2, half, 1)
	assert.True(t, strings.HasSuffix(lines[0], "20000"))
	assert.True(t, strings.HasPrefix(lines[1], "Globex"))
}

func TestRenderBarsTruncatesOverflow(t *testing.T) {
	rows := make([]charts.RevenueRow, 10)
	for i := range rows {
		rows[i] = charts.RevenueRow{Name: "n", Revenue: float64(i + 1)}
	}
	out := ansi.Strip(renderBars(charts.Bar(rows), 40, 4))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], "7 more")
}

func TestRenderPieLegend(t *testing.T) {
	s := charts.Pie([]charts.CountryRow{{Country: "DE", Count: 3}, {Country: "FR", Count: 1}})
	out := ansi.Strip(renderPie(s, 20, 10))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, 20, ansi.StringWidth(lines[0]))
	assert.Contains(t, lines[1], "DE 3 (75.0%)")
	assert.Contains(t, lines[2], "FR 1 (25.0%)")
}

func TestRenderPieAllZero(t *testing.T) {
	s := charts.Pie([]charts.CountryRow{{Country: "DE", Count: 0}})
	assert.Contains(t, renderPie(s, 20, 10), "all slices are empty")
}

func TestRenderScatterPlacesCorners(t *testing.T) {
	s := charts.Scatter([]charts.DynamicRow{{Employees: 0, Profit: 0}, {Employees: 100, Profit: 50}})
	out := ansi.Strip(renderScatter(s, 10, 4))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)

	// Lowest point lands bottom-left, highest top-right.
	assert.Equal(t, '⡀', []rune(lines[2])[0])
	assert.Equal(t, '⠈', []rune(lines[0])[9])
	assert.Contains(t, lines[3], "x 0…100")
	assert.Contains(t, lines[3], "y 0…50")
}

func TestRenderScatterSinglePoint(t *testing.T) {
	s := charts.Scatter([]charts.DynamicRow{{Employees: 5, Profit: 5}})
	out := ansi.Strip(renderScatter(s, 4, 2))
	assert.NotEmpty(t, strings.Trim(strings.Split(out, "\n")[0], "⠀"))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "15000", formatNumber(15000))
	assert.Equal(t, "-3", formatNumber(-3))
	assert.Equal(t, "1.50", formatNumber(1.5))
}
