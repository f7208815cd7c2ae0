package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"
	"github.com/keilerkonzept/topk"
	"github.com/keilerkonzept/topk/heap"
	"github.com/keilerkonzept/topk/sliding"

	"github.com/keilerkonzept/sheetdash/internal/records"
)

// activity ranks the values of one field across streamed records over a
// sliding window and plots the per-tick counts of the leaders.
type activity struct {
	field string
	k     int

	sketch     *sliding.Sketch
	items      []heap.Item
	latestTick time.Time
	observed   uint64
	skipped    uint64

	list       list.Model
	plot       *plot.Canvas
	plotData   [][]float64
	lineColors []plot.Color
}

func newActivity(field string, k int, window, tick time.Duration) *activity {
	const (
		defaultWidth  = 40
		defaultHeight = 8
	)
	sketch := sliding.New(k,
		int(window/tick),
		sliding.WithWidth(1024),
		sliding.WithDepth(3),
	)

	d := list.NewDefaultDelegate()
	d.Styles.NormalTitle = d.Styles.NormalTitle.Padding(0, 0, 0, 1)
	d.Styles.NormalDesc = d.Styles.NormalDesc.Foreground(borderColor).Padding(0, 0, 0, 1)
	d.SetSpacing(0)
	l := list.New(make([]list.Item, 0), d, defaultWidth/2, defaultHeight)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.Styles.NoItems = l.Styles.NoItems.Padding(0, 1)

	p := plot.NewCanvas(defaultWidth/2, defaultHeight)
	p.NumDataPoints = sketch.BucketHistoryLength
	p.ShowAxis = false
	p.LineColors = make([]plot.Color, k)

	a := &activity{
		field:      field,
		k:          k,
		sketch:     sketch,
		list:       l,
		plot:       &p,
		plotData:   make([][]float64, k),
		lineColors: make([]plot.Color, k),
	}
	for i := range a.plotData {
		a.plotData[i] = make([]float64, sketch.BucketHistoryLength)
	}
	return a
}

type activityTickMsg time.Time

func doActivityTick() tui.Cmd {
	return tui.Every(config.ActivityTick, func(t time.Time) tui.Msg {
		return activityTickMsg(t)
	})
}

// observe counts rec's value of the tracked field. Records without the field
// are skipped.
func (a *activity) observe(rec records.Record) bool {
	v := strings.TrimSpace(rec.String(a.field))
	if v == "" {
		a.skipped++
		return false
	}
	a.sketch.Incr(v)
	a.observed++
	return true
}

// tick advances the window by one bucket and re-ranks.
func (a *activity) tick(t time.Time) {
	a.sketch.Ticks(1)
	a.latestTick = t
	a.refresh()
}

func (a *activity) refresh() {
	items := a.sketch.SortedSlice()
	if len(items) > a.k {
		items = items[:a.k]
	}
	out := make([]heap.Item, 0, len(items))
	for _, it := range items {
		if it.Count > 0 {
			out = append(out, it)
		}
	}
	a.items = out

	numDecimals := 1 + int(math.Ceil(math.Log10(float64(a.k+1))))
	rankFormat := "#%-" + fmt.Sprint(numDecimals) + "d"
	listItems := make([]list.Item, len(a.items))
	for i, it := range a.items {
		listItems[i] = activityItem{rank: fmt.Sprintf(rankFormat, i+1), Item: it}
	}
	a.list.SetItems(listItems)
	a.fillPlot()
}

func (a *activity) fillPlot() {
	if len(a.items) == 0 {
		return
	}
	highlight, dim := plot.Red, plot.DimGray
	if !styles.DefaultRenderer().HasDarkBackground() {
		highlight, dim = plot.Black, plot.LightGray
	}
	for i, it := range a.items {
		a.fillSeries(it, a.plotData[i])
		a.lineColors[i] = dim
	}
	a.lineColors[0] = highlight
	a.plot.LineColors = a.lineColors
	a.plot.Fill(a.plotData[:len(a.items)])
}

// fillSeries copies the bucket history of item, newest last.
func (a *activity) fillSeries(item heap.Item, series []float64) {
	bucketIdx := make([]int, 0, a.sketch.Depth)
	for k := 0; k < a.sketch.Depth; k++ {
		idx := topk.BucketIndex(item.Item, k, a.sketch.Width)
		b := a.sketch.Buckets[idx]
		if b.Fingerprint == item.Fingerprint && len(b.Counts) > 0 {
			bucketIdx = append(bucketIdx, idx)
		}
	}
	if len(bucketIdx) == 0 {
		for j := range series {
			series[j] = 0
		}
		return
	}
	for j := range series {
		var maxCount uint32
		for _, idx := range bucketIdx {
			b := a.sketch.Buckets[idx]
			maxCount = max(maxCount, b.Counts[(int(b.First)+j)%len(b.Counts)])
		}
		series[len(series)-1-j] = float64(maxCount)
	}
}

func (a *activity) resize(w, h int) {
	listW := max(1, w*2/5)
	plotW := max(1, w-listW-2)
	a.list.SetSize(listW, max(1, h))
	p := plot.NewCanvas(plotW, max(1, h))
	p.NumDataPoints = a.plot.NumDataPoints
	p.ShowAxis = a.plot.ShowAxis
	p.LineColors = a.plot.LineColors
	a.plot = &p
	a.fillPlot()
}

func (a *activity) view(w int) string {
	title := fmt.Sprintf("LIVE %s (top %d)", strings.ToUpper(a.field), a.k)
	if a.observed == 0 {
		return styles.JoinVertical(styles.Left, borderFg.Render(title), borderFg.Render("  no live records yet"))
	}
	graph := a.plot.String()
	body := styles.JoinHorizontal(styles.Top, a.list.View(), " ", graph)
	footer := fmt.Sprintf("counted %d, skipped %d", a.observed, a.skipped)
	if !a.latestTick.IsZero() {
		footer += "  @ " + a.latestTick.Format("15:04:05")
	}
	return styles.NewStyle().MaxWidth(w).Render(
		styles.JoinVertical(styles.Left, selectedFg.Render(title), body, borderFg.Render(footer)),
	)
}

type activityItem struct {
	rank string
	heap.Item
}

func (i activityItem) Title() string       { return fmt.Sprintf("%s %s", i.rank, i.Item.Item) }
func (i activityItem) Description() string { return fmt.Sprintf("%d in window", i.Count) }
func (i activityItem) FilterValue() string { return i.Item.Item }
