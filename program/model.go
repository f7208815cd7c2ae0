package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/sirupsen/logrus"

	"github.com/keilerkonzept/sheetdash/internal/api"
	"github.com/keilerkonzept/sheetdash/internal/charts"
	"github.com/keilerkonzept/sheetdash/internal/live"
	"github.com/keilerkonzept/sheetdash/internal/records"
)

// backend is the part of *api.Client the dashboard drives.
type backend interface {
	List(ctx context.Context) ([]records.Record, error)
	Upload(ctx context.Context, filename string, r io.Reader) error
	Update(ctx context.Context, id string, rec records.Record) error
	Delete(ctx context.Context, id string) error
	RevenueChart(ctx context.Context) ([]charts.RevenueRow, error)
	CountryChart(ctx context.Context) ([]charts.CountryRow, error)
	DynamicChart(ctx context.Context) ([]charts.DynamicRow, error)
}

// generator is the part of *live.Subscriber the dashboard drives.
type generator interface {
	Start(ctx context.Context) (<-chan live.Event, error)
	Stop(ctx context.Context) error
	State() live.State
}

type mode int

const (
	modeBrowse mode = iota
	modeEdit
	modeAddColumn
	modeUpload
)

// Request kinds whose in-flight call is cancelled when a new one is issued.
const (
	kindList  = "list"
	kindChart = "chart"
)

type model struct {
	ctx context.Context

	width, height  int
	leftPaneWidth  int
	rightPaneWidth int

	store    *records.Store
	client   backend
	sub      generator
	metrics  *dashboardMetrics
	activity *activity
	log      logrus.FieldLogger

	liveEvents <-chan live.Event
	inflight   map[string]context.CancelFunc
	pending    int
	status     string

	mode      mode
	table     table.Model
	prompt    textinput.Model
	fields    []textinput.Model
	fieldKeys []string
	focus     int
	help      help.Model
	spinner   spinner.Model
}

func newModel(ctx context.Context, client backend, sub generator, metrics *dashboardMetrics, log logrus.FieldLogger) *model {
	const (
		defaultWidth  = 80
		defaultHeight = 20
	)

	t := table.New(table.WithFocused(true), table.WithHeight(defaultHeight))
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(styles.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Bold(false)
	ts.Selected = ts.Selected.Foreground(selectedColor).Bold(false)
	t.SetStyles(ts)

	prompt := textinput.New()
	prompt.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedFg

	m := &model{
		ctx:      ctx,
		store:    records.NewStore(),
		client:   client,
		sub:      sub,
		metrics:  metrics,
		activity: newActivity(config.ActivityField, config.ActivityK, config.ActivityWindow, config.ActivityTick),
		log:      log,
		inflight: make(map[string]context.CancelFunc),
		table:    t,
		prompt:   prompt,
		help:     help.New(),
		spinner:  sp,
	}
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(defaultWidth, config.ViewSplit)
	return m
}

type (
	// doneMsg wraps the result of a backend request.
	doneMsg struct{ inner tui.Msg }

	recordsLoadedMsg struct {
		token   uint64
		records []records.Record
	}
	// mutatedMsg reports a successful upload, update or delete.
	mutatedMsg struct {
		op string
		id string
	}
	chartLoadedMsg struct{ series charts.Series }
	exportedMsg    struct{ path string }
	failedMsg      struct {
		op  string
		err error
	}

	liveEventMsg struct {
		ev     live.Event
		events <-chan live.Event
	}
	liveClosedMsg  struct{ events <-chan live.Event }
	liveStoppedMsg struct{ err error }
)

func (m *model) Init() tui.Cmd {
	cmds := []tui.Cmd{m.refresh(), doActivityTick(), m.spinner.Tick}
	if config.Upload != "" {
		cmds = append(cmds, m.upload(config.Upload))
	}
	return tui.Batch(cmds...)
}

// request runs fn as a command. For a non-empty kind, an in-flight request of
// the same kind is cancelled first.
func (m *model) request(kind string, timeout time.Duration, fn func(ctx context.Context) tui.Msg) tui.Cmd {
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	if kind != "" {
		if prev, ok := m.inflight[kind]; ok {
			prev()
		}
		m.inflight[kind] = cancel
	}
	m.pending++
	return func() tui.Msg {
		defer cancel()
		return doneMsg{inner: fn(ctx)}
	}
}

func (m *model) refresh() tui.Cmd {
	token := m.store.BeginRefresh()
	return m.request(kindList, config.Timeout, func(ctx context.Context) tui.Msg {
		recs, err := m.client.List(ctx)
		if err != nil {
			return failedMsg{op: api.OpList, err: err}
		}
		return recordsLoadedMsg{token: token, records: recs}
	})
}

func (m *model) upload(path string) tui.Cmd {
	return m.request("", config.Timeout, func(ctx context.Context) tui.Msg {
		r, name, err := openUpload(path)
		if err != nil {
			return failedMsg{op: api.OpUpload, err: err}
		}
		defer func() { _ = r.Close() }()
		if err := m.client.Upload(ctx, name, r); err != nil {
			return failedMsg{op: api.OpUpload, err: err}
		}
		return mutatedMsg{op: api.OpUpload}
	})
}

func openUpload(path string) (io.ReadCloser, string, error) {
	if path == "-" {
		if term.IsTerminal(os.Stdin.Fd()) {
			return nil, "", errors.New("stdin is a terminal, nothing to upload")
		}
		return io.NopCloser(os.Stdin), "stdin.xlsx", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(path), nil
}

func (m *model) save(id string, rec records.Record) tui.Cmd {
	return m.request("", config.Timeout, func(ctx context.Context) tui.Msg {
		if err := m.client.Update(ctx, id, rec); err != nil {
			return failedMsg{op: api.OpUpdate, err: err}
		}
		return mutatedMsg{op: api.OpUpdate, id: id}
	})
}

func (m *model) remove(id string) tui.Cmd {
	return m.request("", config.Timeout, func(ctx context.Context) tui.Msg {
		if err := m.client.Delete(ctx, id); err != nil {
			return failedMsg{op: api.OpDelete, err: err}
		}
		return mutatedMsg{op: api.OpDelete, id: id}
	})
}

func (m *model) fetchChart(kind charts.Kind) tui.Cmd {
	return m.request(kindChart, config.Timeout, func(ctx context.Context) tui.Msg {
		switch kind {
		case charts.KindBar:
			rows, err := m.client.RevenueChart(ctx)
			if err != nil {
				return failedMsg{op: api.OpRevenueChart, err: err}
			}
			return chartLoadedMsg{series: charts.Bar(rows)}
		case charts.KindPie:
			rows, err := m.client.CountryChart(ctx)
			if err != nil {
				return failedMsg{op: api.OpCountryChart, err: err}
			}
			return chartLoadedMsg{series: charts.Pie(rows)}
		default:
			rows, err := m.client.DynamicChart(ctx)
			if err != nil {
				return failedMsg{op: api.OpDynamicChart, err: err}
			}
			return chartLoadedMsg{series: charts.Scatter(rows)}
		}
	})
}

func (m *model) export() tui.Cmd {
	series := m.store.Chart()
	if series == nil {
		return nil
	}
	dir := config.ExportDir
	return func() tui.Msg {
		path, err := exportChart(series, dir, time.Now())
		if err != nil {
			return failedMsg{op: "export", err: err}
		}
		return exportedMsg{path: path}
	}
}

func (m *model) toggleGenerating() tui.Cmd {
	if m.sub.State() == live.Idle {
		events, err := m.sub.Start(m.ctx)
		if err != nil {
			m.log.WithError(err).Warn("start generating")
			return nil
		}
		m.liveEvents = events
		m.store.SetGenerating(true)
		return waitForLive(events)
	}
	m.liveEvents = nil
	return m.request("", config.Timeout, func(ctx context.Context) tui.Msg {
		return liveStoppedMsg{err: m.sub.Stop(ctx)}
	})
}

func waitForLive(events <-chan live.Event) tui.Cmd {
	return func() tui.Msg {
		ev, ok := <-events
		if !ok {
			return liveClosedMsg{events: events}
		}
		return liveEventMsg{ev: ev, events: events}
	}
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.pending = max(0, m.pending-1)
		return m.Update(msg.inner)

	case recordsLoadedMsg:
		if !m.store.ApplyRefresh(msg.token, msg.records) {
			m.log.WithField("token", msg.token).Debug("dropped stale refresh")
			return m, nil
		}
		delete(m.inflight, kindList)
		m.syncTable()
		return m, nil

	case mutatedMsg:
		m.log.WithFields(logrus.Fields{"op": msg.op, "id": msg.id}).Info("backend accepted change")
		if msg.op == api.OpUpdate {
			m.store.FinishEdit(msg.id)
			if _, editing := m.store.Editing(); !editing && m.mode == modeEdit {
				m.leaveForm()
			}
		}
		return m, m.refresh()

	case chartLoadedMsg:
		delete(m.inflight, kindChart)
		m.store.SetChart(msg.series)
		m.status = ""
		return m, nil

	case exportedMsg:
		m.log.WithField("path", msg.path).Info("chart exported")
		m.status = "saved " + msg.path
		return m, nil

	case failedMsg:
		if errors.Is(msg.err, context.Canceled) {
			m.log.WithField("op", msg.op).Debug("request superseded")
			return m, nil
		}
		m.log.WithError(msg.err).WithField("op", msg.op).Error("request failed")
		return m, nil

	case liveEventMsg:
		return m, m.handleLive(msg)

	case liveClosedMsg:
		return m, nil

	case liveStoppedMsg:
		if errors.Is(msg.err, live.ErrNotStreaming) {
			return m, nil
		}
		if msg.err != nil {
			m.log.WithError(msg.err).WithField("op", api.OpStopGeneration).Error("request failed")
		}
		m.liveEvents = nil
		m.store.SetGenerating(false)
		return m, m.refresh()

	case activityTickMsg:
		m.activity.tick(time.Time(msg))
		return m, doActivityTick()

	case spinner.TickMsg:
		var cmd tui.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tui.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tui.KeyMsg:
		if m.mode != modeBrowse {
			return m, m.updateForm(msg)
		}
		return m, m.updateBrowse(msg)
	}
	return m, nil
}

func (m *model) handleLive(msg liveEventMsg) tui.Cmd {
	current := msg.events == m.liveEvents
	switch msg.ev.Kind {
	case live.EventOpen:
		m.log.Debug("generation started")
	case live.EventRecord:
		if current {
			m.store.Append(msg.ev.Record)
			m.activity.observe(msg.ev.Record)
			m.syncTable()
		}
	case live.EventError:
		if current {
			m.log.WithError(msg.ev.Err).Warn("generation stopped by connection failure")
			m.liveEvents = nil
			m.store.SetGenerating(false)
		}
		return nil
	}
	return waitForLive(msg.events)
}

func (m *model) updateBrowse(msg tui.KeyMsg) tui.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		return tui.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
	case key.Matches(msg, keys.Up):
		m.table.MoveUp(1)
	case key.Matches(msg, keys.Down):
		m.table.MoveDown(1)
	case key.Matches(msg, keys.Edit):
		return m.startEdit()
	case key.Matches(msg, keys.Delete):
		if rec, ok := m.store.At(m.table.Cursor()); ok {
			return m.remove(rec.ID)
		}
	case key.Matches(msg, keys.AddColumn):
		return m.openPrompt(modeAddColumn, "new column name")
	case key.Matches(msg, keys.Upload):
		return m.openPrompt(modeUpload, "path to spreadsheet (- for stdin)")
	case key.Matches(msg, keys.Refresh):
		return m.refresh()
	case key.Matches(msg, keys.Generate):
		return m.toggleGenerating()
	case key.Matches(msg, keys.Bar):
		return m.fetchChart(charts.KindBar)
	case key.Matches(msg, keys.Pie):
		return m.fetchChart(charts.KindPie)
	case key.Matches(msg, keys.Scatter):
		return m.fetchChart(charts.KindScatter)
	case key.Matches(msg, keys.Export):
		return m.export()
	}
	return nil
}

func (m *model) openPrompt(md mode, placeholder string) tui.Cmd {
	m.mode = md
	m.prompt.Reset()
	m.prompt.Placeholder = placeholder
	return m.prompt.Focus()
}

func (m *model) startEdit() tui.Cmd {
	rec, ok := m.store.At(m.table.Cursor())
	if !ok {
		return nil
	}
	if err := m.store.StartEdit(rec.ID); err != nil {
		m.log.WithError(err).Warn("start edit")
		return nil
	}
	m.fieldKeys = m.store.Columns()
	m.fields = make([]textinput.Model, len(m.fieldKeys))
	for i, k := range m.fieldKeys {
		in := textinput.New()
		in.Prompt = padRight(k, 12) + " "
		in.CharLimit = 1024
		in.SetValue(rec.String(k))
		m.fields[i] = in
	}
	m.focus = 0
	m.mode = modeEdit
	m.syncTable()
	if len(m.fields) == 0 {
		return nil
	}
	return m.fields[0].Focus()
}

func (m *model) leaveForm() {
	m.mode = modeBrowse
	m.prompt.Blur()
	m.fields = nil
	m.fieldKeys = nil
	m.syncTable()
}

func (m *model) updateForm(msg tui.KeyMsg) tui.Cmd {
	if key.Matches(msg, keys.Quit) && msg.String() == "ctrl+c" {
		return tui.Quit
	}
	switch m.mode {
	case modeAddColumn, modeUpload:
		switch {
		case key.Matches(msg, formKeys.Cancel):
			m.leaveForm()
			return nil
		case key.Matches(msg, formKeys.Save):
			value := m.prompt.Value()
			md := m.mode
			m.leaveForm()
			if md == modeAddColumn {
				if m.store.AddColumn(value) {
					m.syncTable()
				}
				return nil
			}
			if value == "" {
				return nil
			}
			return m.upload(value)
		}
		var cmd tui.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return cmd

	case modeEdit:
		id, ok := m.store.Editing()
		switch {
		case !ok || key.Matches(msg, formKeys.Cancel):
			m.store.CancelEdit()
			m.leaveForm()
			return nil
		case key.Matches(msg, formKeys.Save):
			rec, err := m.store.CommitEdit(id)
			if err != nil {
				m.log.WithError(err).Warn("commit edit")
				return nil
			}
			return m.save(id, rec)
		case key.Matches(msg, formKeys.Next):
			return m.focusField(m.focus + 1)
		case key.Matches(msg, formKeys.Prev):
			return m.focusField(m.focus - 1)
		}
		if len(m.fields) == 0 {
			return nil
		}
		var cmd tui.Cmd
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
		if err := m.store.SetField(id, m.fieldKeys[m.focus], m.fields[m.focus].Value()); err != nil {
			m.log.WithError(err).Warn("edit field")
		}
		m.syncTable()
		return cmd
	}
	return nil
}

func (m *model) focusField(i int) tui.Cmd {
	if len(m.fields) == 0 {
		return nil
	}
	m.fields[m.focus].Blur()
	m.focus = (i + len(m.fields)) % len(m.fields)
	return m.fields[m.focus].Focus()
}

// syncTable rebuilds the table from the store.
func (m *model) syncTable() {
	cols := m.store.Columns()
	editing, isEditing := m.store.Editing()

	// Leading columns: edit marker, identifier.
	const lead = 2
	widths := make([]int, len(cols)+lead)
	widths[1] = len(records.IDKey)
	for i, c := range cols {
		widths[i+lead] = len(c)
	}
	rows := make([]table.Row, m.store.Len())
	for r, rec := range m.store.Records() {
		row := make(table.Row, len(cols)+lead)
		if isEditing && rec.ID == editing {
			row[0] = "✎"
		}
		row[1] = rec.ID
		for i, c := range cols {
			row[i+lead] = rec.String(c)
		}
		for i := 1; i < len(row); i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
		rows[r] = row
	}
	columns := make([]table.Column, len(cols)+lead)
	columns[0] = table.Column{Title: "", Width: 1}
	columns[1] = table.Column{Title: records.IDKey, Width: max(2, min(widths[1], 12))}
	for i, c := range cols {
		columns[i+lead] = table.Column{Title: c, Width: max(4, min(widths[i+lead], 24))}
	}

	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(columns)
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(max(0, min(cursor, len(rows)-1)))
	}
}

func (m *model) resize(w, h int) {
	m.width, m.height = w, h
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(m.width, config.ViewSplit)
	available := max(4, m.height-m.bottomLines())
	m.table.SetWidth(max(1, m.leftPaneWidth-2))
	m.table.SetHeight(max(2, available-2))
	m.activity.resize(max(1, m.rightPaneWidth-2), max(1, available/2-4))
	m.help.Width = m.width
}

func (m *model) bottomLines() int {
	n := 2 // status + help
	if m.help.ShowAll {
		n += 3
	}
	if config.StatsEnable {
		n++
	}
	return n
}

func (m *model) generatingLabel() string {
	if m.store.Generating() {
		return fmt.Sprintf("%s generating", m.spinner.View())
	}
	return "idle"
}
