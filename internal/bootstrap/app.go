package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"stream-clipper/internal/buffer"
	"stream-clipper/internal/capture"
	"stream-clipper/internal/clip"
	"stream-clipper/internal/config"
	"stream-clipper/internal/delivery"
	"stream-clipper/internal/diagnostics"
	"stream-clipper/internal/domain"
	"stream-clipper/internal/extract"
	"stream-clipper/internal/platform/logger"
	"stream-clipper/internal/platform/metrics"
	"stream-clipper/internal/session"
	"stream-clipper/internal/transcode"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	captureEventName      = "capture:event"
	maxEventHistory       = 1000
	maxExportHistory      = 50
	deliveryShutdownGrace = 5 * time.Second
)

var clipDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "MP4 video",
		Pattern:     "*.mp4",
	},
}

// captureService is the supervisor surface the App drives.
type captureService interface {
	Start(ctx context.Context, sourceURL string) (domain.Session, error)
	Stop() error
	Shutdown()
	Current() domain.Session
}

// clipExtractor isolates the extraction engine behind an interface.
type clipExtractor interface {
	Extract(ctx context.Context, req domain.ClipRequest, inputURL, dest string) (string, error)
}

// App wires configuration, capture, extraction, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Sessions    *session.Manager
	Capture     captureService
	Extractor   clipExtractor
	Delivery    *delivery.Server
	Metrics     *metrics.Metrics
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	installer   *toolInstaller
	log         *slog.Logger

	marks clip.Marks

	mu         sync.Mutex
	events     *session.EventBus
	runtimeCtx context.Context
	history    []domain.ExportRecord

	saveDialog func(ctx context.Context, opts wailsruntime.SaveDialogOptions) (string, error)
	reveal     func(path string) error
	now        func() time.Time
}

// New builds the application with persisted settings and startup diagnostics.
func New(log *slog.Logger) (*App, error) {
	return NewWithAssets(nil, log)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, log *slog.Logger) (*App, error) {
	if log == nil {
		log = logger.New("info", "text")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		log.Warn("local tool directory unavailable", "error", err)
	}

	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	met := metrics.New()
	events := session.NewEventBus(maxEventHistory)
	sessions := session.NewManager(events)
	registry := delivery.NewRegistry()
	server := delivery.NewServer(delivery.DefaultHost, settings.DeliveryPort, registry, log, met)
	runner := transcode.NewExecRunner()

	supervisor := capture.NewSupervisor(
		captureConfig(settings, server.ManifestURL()),
		runner,
		buffer.NewManager(settings.BufferRoot, log),
		registry,
		sessions,
		log,
		met,
	)
	engine := extract.NewEngine(extractConfig(settings), runner, log, met)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Failed() {
		log.Warn("startup check failed", "check", item.ID, "message", item.Message)
	}

	app := &App{
		Settings:    settings,
		Store:       store,
		Sessions:    sessions,
		Capture:     supervisor,
		Extractor:   engine,
		Delivery:    server,
		Metrics:     met,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		log:         log,
		events:      events,
	}
	events.OnPublish(app.emitEvent)
	return app, nil
}

// captureConfig maps settings onto the supervisor's tunables.
func captureConfig(settings domain.Settings, deliveryURL string) capture.Config {
	return capture.Config{
		FFmpegPath: settings.FFmpegPath,
		Window: buffer.Window{
			SegmentDuration: time.Duration(settings.SegmentSeconds) * time.Second,
			Retained:        time.Duration(settings.RetainedMinutes) * time.Minute,
		},
		StartupTimeout: time.Duration(settings.StartupTimeoutSeconds) * time.Second,
		DeliveryURL:    deliveryURL,
	}
}

// extractConfig maps settings onto encoder settings.
func extractConfig(settings domain.Settings) extract.Config {
	return extract.Config{
		FFmpegPath:    settings.FFmpegPath,
		Threads:       settings.ExtractThreads,
		MaxConcurrent: settings.MaxConcurrentExtractions,
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Stream Clipper",
		Width:       1280,
		Height:      820,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.Shutdown()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and binds the
// delivery server for the lifetime of the application.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	if a.Delivery == nil {
		return
	}
	if err := a.Delivery.Start(); err != nil {
		a.logger().Error("delivery server failed to start", "error", err)
		a.publishEvent(session.Event{
			Type:    session.EventTypeError,
			Message: err.Error(),
		})
	}
}

// Shutdown stops the capture and drains the delivery server.
func (a *App) Shutdown() {
	if a.Capture != nil {
		a.Capture.Shutdown()
	}
	if a.Delivery != nil {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryShutdownGrace)
		defer cancel()
		if err := a.Delivery.Shutdown(ctx); err != nil {
			a.logger().Warn("delivery server shutdown", "error", err)
		}
	}
}

// StartCapture begins ingesting sourceURL and returns the local playlist URL
// once the first manifest exists.
func (a *App) StartCapture(sourceURL string) (string, error) {
	sess, err := a.Capture.Start(context.Background(), sourceURL)
	if err != nil {
		var startErr *capture.StartError
		if errors.As(err, &startErr) && startErr.Stderr != "" {
			a.publishEvent(session.Event{
				SessionID: sess.ID,
				Type:      session.EventTypeLog,
				Message:   "Transcoder output",
				ExitCode:  startErr.ExitCode,
				Stderr:    startErr.Stderr,
			})
		}
		return "", err
	}

	a.marks.Reset()
	a.rememberSource(sourceURL)
	return sess.DeliveryURL, nil
}

// StopCapture ends ingestion. The buffer stays available for extraction.
func (a *App) StopCapture() (bool, error) {
	if err := a.Capture.Stop(); err != nil {
		return false, err
	}
	return true, nil
}

// CaptureStatus returns the current session snapshot.
func (a *App) CaptureStatus() domain.Session {
	return a.Capture.Current()
}

// CaptureEvents returns all events with sequence greater than sinceSeq.
func (a *App) CaptureEvents(sinceSeq int64) []session.Event {
	return a.events.Since(sinceSeq)
}

// ExtractClip asks where to save the clip and exports it there. A dismissed
// dialog is not an error and returns an empty path.
func (a *App) ExtractClip(req domain.ClipRequest) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	settings := a.currentSettings()
	name := strings.TrimSpace(req.OutputName)
	if name == "" {
		name = clip.OutputName(settings.ClipNamePrefix, a.clock())
	}

	dialog := a.saveDialog
	if dialog == nil {
		dialog = wailsruntime.SaveFileDialog
	}
	dest, err := dialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Export clip",
		DefaultDirectory: settings.ExportDir,
		DefaultFilename:  clip.FileName(name),
		Filters:          clipDialogFilter,
	})
	if err != nil {
		return "", err
	}

	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", nil
	}
	if filepath.Ext(dest) == "" {
		dest += ".mp4"
	}
	return a.ExtractClipTo(req, dest)
}

// ExtractClipTo exports req from the current buffer into dest. It works
// while capturing and after the capture has been stopped.
func (a *App) ExtractClipTo(req domain.ClipRequest, dest string) (string, error) {
	sess := a.Capture.Current()
	if sess.DeliveryURL == "" {
		return "", fmt.Errorf("%w: no buffer has been captured yet", extract.ErrInvalidClip)
	}

	out, err := a.Extractor.Extract(context.Background(), req, sess.DeliveryURL, dest)
	if err != nil {
		a.publishEvent(session.Event{
			SessionID: sess.ID,
			Type:      session.EventTypeError,
			Message:   err.Error(),
			Path:      dest,
		})

		var encErr *extract.EncodeError
		if errors.As(err, &encErr) && encErr.CommandLog.Command != "" {
			a.publishEvent(session.Event{
				SessionID: sess.ID,
				Type:      session.EventTypeLog,
				Message:   "Failed command",
				Command:   encErr.CommandLog.Command,
				Args:      encErr.CommandLog.Args,
				ExitCode:  encErr.CommandLog.ExitCode,
				Stderr:    encErr.CommandLog.Stderr,
			})
		}
		return "", err
	}

	record := domain.ExportRecord{
		Path:            out,
		CreatedAt:       a.clock().UTC(),
		StartSeconds:    req.StartSeconds,
		DurationSeconds: req.DurationSeconds,
	}
	a.mu.Lock()
	a.history = append([]domain.ExportRecord{record}, a.history...)
	if len(a.history) > maxExportHistory {
		a.history = a.history[:maxExportHistory]
	}
	a.mu.Unlock()

	a.publishEvent(session.Event{
		SessionID: sess.ID,
		Type:      session.EventTypeExport,
		Message:   "Clip exported",
		Path:      out,
	})
	return out, nil
}

// MarkIn sets the clip in-point in seconds from the oldest retained segment.
func (a *App) MarkIn(seconds float64) (clip.Range, error) {
	err := a.marks.MarkIn(seconds)
	return a.marks.Range(), err
}

// MarkOut sets the clip out-point.
func (a *App) MarkOut(seconds float64) (clip.Range, error) {
	err := a.marks.MarkOut(seconds)
	return a.marks.Range(), err
}

// ClipMarks returns the current in/out points.
func (a *App) ClipMarks() clip.Range {
	return a.marks.Range()
}

// ExportMarkedClip exports the marked range through the save dialog and
// clears the marks on success.
func (a *App) ExportMarkedClip() (string, error) {
	name := clip.OutputName(a.currentSettings().ClipNamePrefix, a.clock())
	req, err := a.marks.Request(name)
	if err != nil {
		return "", err
	}

	defer a.marks.Reset()
	return a.ExtractClip(req)
}

// ExportHistory returns clips exported in this session, most recent first.
func (a *App) ExportHistory() []domain.ExportRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ExportRecord(nil), a.history...)
}

// RecentURLs returns remembered sources, most recent first.
func (a *App) RecentURLs() []string {
	settings, err := a.Store.Load()
	if err != nil {
		return a.currentSettings().RecentURLs
	}
	return settings.RecentURLs
}

// RevealOutputFile shows path in the platform file manager. Missing paths
// are ignored and failures are only logged.
func (a *App) RevealOutputFile(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	reveal := a.reveal
	if reveal == nil {
		reveal = revealInFileManager
	}
	if err := reveal(path); err != nil {
		a.logger().Warn("reveal output file", "path", path, "error", err)
	}
}

// OpenExportFolder opens the given path (or configured export dir) in file manager.
func (a *App) OpenExportFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().ExportDir
	}
	if target == "" {
		return fmt.Errorf("export path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// PickExportDirectory opens a native directory picker for clip exports.
func (a *App) PickExportDirectory() (string, error) {
	return a.pickDirectory("Select export directory")
}

// PickBufferDirectory opens a native directory picker for the rolling buffer.
func (a *App) PickBufferDirectory() (string, error) {
	return a.pickDirectory("Select buffer directory")
}

func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(config.ApplyEnv(settings)), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// Capture and delivery settings apply from the next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// rememberSource records a successfully started source in the recent list.
func (a *App) rememberSource(sourceURL string) {
	settings, err := a.Store.Load()
	if err != nil {
		a.logger().Warn("load settings for recent sources", "error", err)
		return
	}
	settings.RecentURLs = config.PushRecent(settings.RecentURLs, sourceURL)
	if err := a.Store.Save(settings); err != nil {
		a.logger().Warn("save recent sources", "error", err)
		return
	}

	a.mu.Lock()
	a.Settings.RecentURLs = settings.RecentURLs
	a.mu.Unlock()
}

// publishEvent stores event history. Push delivery happens in emitEvent.
func (a *App) publishEvent(event session.Event) {
	if a.events == nil {
		return
	}
	if event.SessionID == "" && a.Capture != nil {
		event.SessionID = a.Capture.Current().ID
	}
	a.events.Publish(event)
}

// emitEvent forwards a stored event to the frontend.
func (a *App) emitEvent(event session.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, captureEventName, event)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

func (a *App) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *App) logger() *slog.Logger {
	if a.log == nil {
		return slog.Default()
	}
	return a.log
}

// normalizeSettings trims user inputs and fills defaults.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.ExportDir = strings.TrimSpace(settings.ExportDir)
	settings.BufferRoot = strings.TrimSpace(settings.BufferRoot)
	settings.ClipNamePrefix = strings.TrimSpace(settings.ClipNamePrefix)
	settings.RecentURLs = lo.Map(settings.RecentURLs, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return config.Normalize(settings)
}

// revealInFileManager opens the containing folder with path selected where
// the platform supports it.
func revealInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,", filepath.Clean(path))
	default:
		return openInFileManager(filepath.Dir(path))
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
