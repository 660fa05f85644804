package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/samber/lo"

	"stream-clipper/internal/config"
	"stream-clipper/internal/diagnostics"
	"stream-clipper/internal/domain"
	"stream-clipper/internal/transcode"
)

const (
	installCommandTimeout = 45 * time.Minute
	downloadToolTimeout   = 30 * time.Minute
	maxInstallOutput      = 500
)

type installOption struct {
	manager  string
	commands [][]string
}

// ffmpegInstallers lists package manager recipes per GOOS, tried in order.
// Platforms without an entry use the linux list.
var ffmpegInstallers = map[string][]installOption{
	"windows": {
		{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
		{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
		{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
	},
	"darwin": {
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
	"linux": {
		{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
		{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
		{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
		{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
}

// toolInstaller installs ffmpeg with whatever the host provides. Commands go
// through a transcode.Runner so tests never touch the real system.
type toolInstaller struct {
	runner     transcode.Runner
	lookPath   func(string) (string, error)
	goos       string
	homeDir    string
	client     *http.Client
	releaseURL string
	log        *slog.Logger
}

func newToolInstaller(homeDir string, log *slog.Logger) *toolInstaller {
	if log == nil {
		log = slog.Default()
	}
	return &toolInstaller{
		runner:     transcode.NewExecRunner(),
		lookPath:   exec.LookPath,
		goos:       goruntime.GOOS,
		homeDir:    homeDir,
		client:     &http.Client{Timeout: downloadToolTimeout},
		releaseURL: ffmpegReleaseURL,
		log:        log,
	}
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.IDToolFFmpeg:
		installer, err := a.toolInstaller()
		if err != nil {
			return domain.DiagnosticReport{}, err
		}
		var path string
		path, fixErr = installer.InstallFFmpeg(context.Background())
		if fixErr == nil && path != settings.FFmpegPath {
			settings.FFmpegPath = path
			settingsChanged = true
		}
	case diagnostics.IDBufferRoot:
		settings.BufferRoot, settingsChanged, fixErr = installOrFixDir(settings.BufferRoot, config.DefaultSettings().BufferRoot)
	case diagnostics.IDExportDir:
		settings.ExportDir, settingsChanged, fixErr = installOrFixDir(settings.ExportDir, config.DefaultSettings().ExportDir)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	return report, fixErr
}

func (a *App) toolInstaller() (*toolInstaller, error) {
	if a.installer != nil {
		return a.installer, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	return newToolInstaller(homeDir, a.logger()), nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// InstallFFmpeg returns the ffmpeg path to store in settings: "ffmpeg" when
// it resolves on PATH after the install, otherwise the binary extracted by
// the Windows release fallback.
func (i *toolInstaller) InstallFFmpeg(ctx context.Context) (string, error) {
	installErr := i.runFirstAvailable(ctx, i.options())
	if installErr == nil {
		if i.has("ffmpeg") {
			return "ffmpeg", nil
		}
		installErr = errors.New("ffmpeg is still missing on PATH after install")
	}

	if i.goos != "windows" {
		return "", fmt.Errorf("install ffmpeg: %w", installErr)
	}

	path, err := i.installFromRelease(ctx)
	if err != nil {
		return "", fmt.Errorf("install ffmpeg: %w", errors.Join(installErr, fmt.Errorf("release fallback: %w", err)))
	}
	if i.has("ffmpeg") {
		return "ffmpeg", nil
	}
	return path, nil
}

func (i *toolInstaller) options() []installOption {
	if options, ok := ffmpegInstallers[i.goos]; ok {
		return options
	}
	return ffmpegInstallers["linux"]
}

// runFirstAvailable stops at the first installed manager whose recipe succeeds.
func (i *toolInstaller) runFirstAvailable(ctx context.Context, options []installOption) error {
	available := lo.Filter(options, func(option installOption, _ int) bool {
		return i.has(option.manager)
	})
	if len(available) == 0 {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}

	var failures []error
	for _, option := range available {
		err := i.runRecipe(ctx, option.commands)
		if err == nil {
			return nil
		}
		i.log.Warn("package manager install failed", "manager", option.manager, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", option.manager, err))
	}
	return errors.Join(failures...)
}

func (i *toolInstaller) runRecipe(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := i.runWithElevation(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

// runWithElevation retries system package managers under pkexec, then
// non-interactive sudo.
func (i *toolInstaller) runWithElevation(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	attempts := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.has("pkexec") {
			attempts = append(attempts, append([]string{"pkexec"}, command...))
		}
		if i.has("sudo") {
			attempts = append(attempts, append([]string{"sudo", "-n"}, command...))
		}
	}

	var failures []error
	for _, attempt := range attempts {
		err := i.run(ctx, attempt)
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

func (i *toolInstaller) run(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	line := strings.Join(argv, " ")
	i.log.Info("running installer", "command", line)
	res, err := i.runner.Run(ctx, argv[0], argv[1:]...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", line, installCommandTimeout)
	}

	output := strings.TrimSpace(res.Stderr)
	if output == "" {
		output = strings.TrimSpace(res.Stdout)
	}
	if len(output) > maxInstallOutput {
		output = output[:maxInstallOutput] + "..."
	}
	if output == "" {
		return fmt.Errorf("%s failed: %w", line, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", line, err, output)
}

func (i *toolInstaller) has(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func requiresElevation(manager string) bool {
	return lo.Contains([]string{"apt-get", "dnf", "pacman", "zypper"}, manager)
}

// ensureLocalBinOnPATH makes tools installed into ~/.stream-clipper/bin
// resolve by bare name for this process and the ffmpeg it spawns.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	if lo.ContainsBy(filepath.SplitList(current), func(entry string) bool {
		return filepath.Clean(entry) == filepath.Clean(binDir)
	}) {
		return nil
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, config.AppDirName, "bin")
}

// installOrFixDir creates dir, falling back to fallback when dir is empty.
// It returns the directory to persist and whether it differs from dir.
func installOrFixDir(dir string, fallback string) (string, bool, error) {
	dir = strings.TrimSpace(dir)
	changed := false
	if dir == "" {
		dir = fallback
		changed = true
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir, changed, fmt.Errorf("create directory %s: %w", dir, err)
	}

	return dir, changed, nil
}
