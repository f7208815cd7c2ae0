package main

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/keilerkonzept/sheetdash/internal/charts"
)

const (
	exportWidth  = 1024
	exportHeight = 512
)

var errNothingToExport = errors.New("no chart data to export")

// exportChart renders series as a PNG into dir and returns the file path.
func exportChart(series charts.Series, dir string, now time.Time) (string, error) {
	if series == nil || series.Len() == 0 {
		return "", errNothingToExport
	}
	var buf bytes.Buffer
	if err := renderPNG(series, &buf); err != nil {
		return "", fmt.Errorf("render %s chart: %w", series.Kind(), err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", series.Kind(), now.Format("20060102-150405")))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func renderPNG(series charts.Series, buf *bytes.Buffer) error {
	background := chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
	switch s := series.(type) {
	case charts.BarSeries:
		bars := make([]chart.Value, len(s.Data))
		lo, hi := 0.0, 0.0
		for i, v := range s.Data {
			bars[i] = chart.Value{
				Label: s.Labels[i],
				Value: v,
				Style: chart.Style{FillColor: drawing.ColorFromHex("4BC0C0"), StrokeColor: drawing.ColorFromHex("4BC0C0")},
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		lo, hi = padRange(lo, hi)
		// Bars plus spacing must fit inside the canvas, so wide series get a
		// wider image.
		width := max(exportWidth, len(bars)*12+200)
		slot := (width - 200) / len(bars)
		bc := chart.BarChart{
			Title:      s.Title(),
			Width:      width,
			Height:     exportHeight,
			Background: background,
			BarWidth:   max(8, slot*2/3),
			BarSpacing: max(4, slot/3),
			YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: lo, Max: hi}},
			Bars:       bars,
		}
		return bc.Render(chart.PNG, buf)
	case charts.PieSeries:
		values := make([]chart.Value, 0, len(s.Data))
		for i, v := range s.Data {
			if v <= 0 {
				continue
			}
			values = append(values, chart.Value{
				Label: s.Labels[i],
				Value: v,
				Style: chart.Style{FillColor: drawing.ColorFromHex(s.Colors[i])},
			})
		}
		if len(values) == 0 {
			return errNothingToExport
		}
		pc := chart.PieChart{
			Title:      s.Title(),
			Width:      exportHeight,
			Height:     exportHeight,
			Background: background,
			Values:     values,
		}
		return pc.Render(chart.PNG, buf)
	case charts.ScatterSeries:
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, p := range s.Points {
			xs[i], ys[i] = p.X, p.Y
		}
		minX, maxX, minY, maxY := bounds(s.Points)
		minX, maxX = padRange(minX, maxX)
		minY, maxY = padRange(minY, maxY)
		dot := drawing.ColorFromHex("9966FF")
		ch := chart.Chart{
			Title:      s.Title(),
			Width:      exportWidth,
			Height:     exportHeight,
			Background: background,
			XAxis:      chart.XAxis{Name: "Employees", Range: &chart.ContinuousRange{Min: minX, Max: maxX}},
			YAxis:      chart.YAxis{Name: "Profit", Range: &chart.ContinuousRange{Min: minY, Max: maxY}},
			Series: []chart.Series{
				chart.ContinuousSeries{
					Name:    s.Title(),
					Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: dot},
					XValues: xs,
					YValues: ys,
				},
			},
		}
		return ch.Render(chart.PNG, buf)
	default:
		return fmt.Errorf("unsupported chart %T", series)
	}
}

// padRange widens a degenerate range so go-chart has a non-zero domain.
func padRange(lo, hi float64) (float64, float64) {
	if hi > lo {
		return lo, hi
	}
	d := math.Max(1, math.Abs(lo)*0.1)
	return lo - d, hi + d
}
