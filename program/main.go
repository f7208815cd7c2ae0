package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/keilerkonzept/sheetdash/internal/api"
	"github.com/keilerkonzept/sheetdash/internal/live"
)

type Config struct {
	// backend
	Backend string
	Timeout time.Duration
	Upload  string

	// live stream
	LiveBuffer int

	// logging & metrics
	LogFile     string
	LogLevel    string
	MetricsAddr string
	StatsEnable bool
	StatsWindow int

	// live activity
	ActivityField  string
	ActivityK      int
	ActivityWindow time.Duration
	ActivityTick   time.Duration

	// render
	ViewSplit int
	ExportDir string
	AltScreen bool
}

var config = Config{
	Backend: "http://localhost:8000/",
	Timeout: 30 * time.Second,
	Upload:  "",

	LiveBuffer: 64,

	LogFile:     "sheetdash.log",
	LogLevel:    "info",
	MetricsAddr: "",
	StatsEnable: true,
	StatsWindow: 256,

	ActivityField:  "country",
	ActivityK:      5,
	ActivityWindow: 30 * time.Second,
	ActivityTick:   time.Second,

	ViewSplit: 60,
	ExportDir: ".",
	AltScreen: true,
}

var (
	selectedColor = styles.AdaptiveColor{Light: "0", Dark: "9"}
	borderColor   = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	selectedFg    = styles.NewStyle().Foreground(selectedColor)
	borderFg      = styles.NewStyle().Foreground(borderColor)
	paneStyle     = styles.NewStyle().
			BorderStyle(styles.NormalBorder()).
			BorderForeground(borderColor)
)

func main() {
	flag.StringVar(&config.Backend, "backend", config.Backend, "Backend base URL")
	flag.DurationVar(&config.Timeout, "timeout", config.Timeout, "Per-request timeout for REST calls (the live stream has none)")
	flag.StringVar(&config.Upload, "upload", config.Upload, "Upload this spreadsheet on startup (- reads stdin)")
	flag.IntVar(&config.LiveBuffer, "live-buffer", config.LiveBuffer, "Live events buffered while the view is busy")
	flag.StringVar(&config.LogFile, "log-file", config.LogFile, "Write diagnostics to this file (- for stderr)")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&config.MetricsAddr, "metrics-addr", config.MetricsAddr, "Serve Prometheus metrics on this address (empty disables)")
	flag.BoolVar(&config.StatsEnable, "stats", config.StatsEnable, "Show request and live stream stats")
	flag.IntVar(&config.StatsWindow, "stats-window", config.StatsWindow, "Number of recent request latencies kept")
	flag.StringVar(&config.ActivityField, "activity-field", config.ActivityField, "Record field ranked in the live activity panel")
	flag.IntVar(&config.ActivityK, "activity-k", config.ActivityK, "Number of top values shown in the live activity panel")
	flag.DurationVar(&config.ActivityWindow, "activity-window", config.ActivityWindow, "Live activity window size")
	flag.DurationVar(&config.ActivityTick, "activity-tick", config.ActivityTick, "Live activity tick size (time bucket precision)")
	flag.IntVar(&config.ViewSplit, "view-split", config.ViewSplit, "Split the view at this % of the total screen width [20,80]")
	flag.StringVar(&config.ExportDir, "export-dir", config.ExportDir, "Directory for exported chart images")
	flag.BoolVar(&config.AltScreen, "alt-screen", config.AltScreen, "Use the terminal alternate screen buffer")
	flag.Parse()

	if err := validateAndNormalizeConfig(); err != nil {
		log.Fatal(err)
	}

	logger, closeLog, err := newLogger(config.LogFile, config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	metrics := newDashboardMetrics(config.StatsWindow)
	metrics.setEnabled(config.StatsEnable)
	stopMetrics := serveMetrics(config.MetricsAddr, metrics, logger)
	defer stopMetrics()

	client, err := api.New(config.Backend,
		api.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
		api.WithLogger(logger.WithField("component", "api")),
		api.WithObserver(metrics),
	)
	if err != nil {
		log.Fatal(err)
	}
	sub := live.New(client.GenerateURL(), client.StopGeneration,
		live.WithLogger(logger.WithField("component", "live")),
		live.WithObserver(metrics),
		live.WithBuffer(config.LiveBuffer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	m := newModel(ctx, client, sub, metrics, logger.WithField("component", "view"))
	opts := []tui.ProgramOption{tui.WithInputTTY()}
	if config.AltScreen {
		opts = append(opts, tui.WithAltScreen())
	}
	_, runErr := tui.NewProgram(m, opts...).Run()

	// Quitting while generating goes through the same stop path as the
	// stop key so the backend stops producing.
	shutdownCtx, done := context.WithTimeout(context.Background(), config.Timeout)
	if err := sub.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("stop generation on exit")
	}
	done()
	cancel()

	if runErr != nil {
		logger.WithError(runErr).Error("dashboard exited")
		log.Fatal(runErr)
	}
}

func validateAndNormalizeConfig() error {
	if config.Backend == "" {
		return fmt.Errorf("-backend must be set")
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("-timeout must be > 0")
	}
	if _, err := logrus.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("-log-level: %w", err)
	}
	if config.LiveBuffer < 0 {
		return fmt.Errorf("-live-buffer must be >= 0")
	}
	if config.StatsWindow < 1 {
		return fmt.Errorf("-stats-window must be >= 1")
	}
	if config.ActivityField == "" {
		return fmt.Errorf("-activity-field must be set")
	}
	if config.ActivityK < 1 {
		return fmt.Errorf("-activity-k must be >= 1")
	}
	if config.ActivityTick <= 0 {
		return fmt.Errorf("-activity-tick must be > 0")
	}
	if config.ActivityWindow < config.ActivityTick {
		return fmt.Errorf("-activity-window must be >= -activity-tick")
	}
	if config.ActivityWindow%config.ActivityTick != 0 {
		return fmt.Errorf("-activity-window must be a multiple of -activity-tick (got window=%s tick=%s)", config.ActivityWindow, config.ActivityTick)
	}
	if config.ExportDir == "" {
		return fmt.Errorf("-export-dir must be set")
	}
	config.ViewSplit = max(20, config.ViewSplit)
	config.ViewSplit = min(80, config.ViewSplit)
	if config.StatsWindow < 16 {
		config.StatsWindow = 16
	}
	return nil
}

// newLogger writes to path, or stderr for "-". The terminal belongs to the
// dashboard, so the default is a file.
func newLogger(path, level string) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	if path == "-" {
		logger.SetOutput(os.Stderr)
		return logger, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, m *dashboardMetrics, logger logrus.FieldLogger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server")
		}
	}()
	logger.WithField("addr", addr).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func computePaneWidths(totalWidth int, splitPercent int) (left, right int) {
	if totalWidth <= 1 {
		return 1, 1
	}
	left = totalWidth * splitPercent / 100
	left = max(1, min(left, totalWidth-1))
	right = totalWidth - left

	// Keep panes readable when the terminal is wide enough.
	const minPane = 24
	if totalWidth >= minPane*2 {
		if left < minPane {
			left = minPane
			right = totalWidth - left
		}
		if right < minPane {
			right = minPane
			left = totalWidth - right
		}
	}
	return max(1, left), max(1, right)
}
