package bootstrap

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"stream-clipper/internal/domain"
	"stream-clipper/internal/platform/logger"
	"stream-clipper/internal/transcode"
	"stream-clipper/internal/transcode/transcodetest"
)

// lookPathFor resolves only the listed tools.
func lookPathFor(tools ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, tool := range tools {
			if tool == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func newTestInstaller(t *testing.T, goos string, runner *transcodetest.Runner, tools ...string) *toolInstaller {
	t.Helper()
	return &toolInstaller{
		runner:   runner,
		lookPath: lookPathFor(tools...),
		goos:     goos,
		homeDir:  t.TempDir(),
		client:   http.DefaultClient,
		log:      logger.Discard(),
	}
}

func commandLines(calls []transcodetest.Call) []string {
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		lines = append(lines, strings.Join(append([]string{call.Name}, call.Args...), " "))
	}
	return lines
}

// TestInstallFFmpegSkipsMissingManagers checks only installed managers are tried.
func TestInstallFFmpegSkipsMissingManagers(t *testing.T) {
	runner := &transcodetest.Runner{}
	installer := newTestInstaller(t, "linux", runner, "dnf", "ffmpeg")

	path, err := installer.InstallFFmpeg(context.Background())
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if path != "ffmpeg" {
		t.Fatalf("path = %s, want ffmpeg", path)
	}

	got := commandLines(runner.Runs())
	if len(got) != 1 || got[0] != "dnf install -y ffmpeg" {
		t.Fatalf("runs = %v, want [dnf install -y ffmpeg]", got)
	}
}

// TestInstallFFmpegRetriesWithSudo checks elevation fallback for system managers.
func TestInstallFFmpegRetriesWithSudo(t *testing.T) {
	runner := &transcodetest.Runner{OnRun: func(_ context.Context, name string, _ ...string) (transcode.Result, error) {
		if name == "apt-get" {
			return transcode.Result{ExitCode: 100, Stderr: "Permission denied"}, errors.New("exit status 100")
		}
		return transcode.Result{}, nil
	}}
	installer := newTestInstaller(t, "linux", runner, "apt-get", "sudo", "ffmpeg")

	if _, err := installer.InstallFFmpeg(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}

	want := []string{
		"apt-get update",
		"sudo -n apt-get update",
		"apt-get install -y ffmpeg",
		"sudo -n apt-get install -y ffmpeg",
	}
	got := commandLines(runner.Runs())
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("runs = %v, want %v", got, want)
	}
}

// TestInstallFFmpegReportsEveryFailedManager checks error aggregation.
func TestInstallFFmpegReportsEveryFailedManager(t *testing.T) {
	runner := &transcodetest.Runner{OnRun: func(_ context.Context, name string, _ ...string) (transcode.Result, error) {
		return transcode.Result{ExitCode: 1, Stderr: name + " broke"}, errors.New("exit status 1")
	}}
	installer := newTestInstaller(t, "darwin", runner, "brew")

	_, err := installer.InstallFFmpeg(context.Background())
	if err == nil {
		t.Fatal("expected install error")
	}
	if !strings.Contains(err.Error(), "brew: brew install ffmpeg failed") || !strings.Contains(err.Error(), "brew broke") {
		t.Fatalf("error = %v, want manager, command and output", err)
	}
}

// TestInstallFFmpegWithoutManagers checks the no-manager error on non-Windows hosts.
func TestInstallFFmpegWithoutManagers(t *testing.T) {
	runner := &transcodetest.Runner{}
	installer := newTestInstaller(t, "freebsd", runner)

	_, err := installer.InstallFFmpeg(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("error = %v, want no supported package manager", err)
	}
	if len(runner.Runs()) != 0 {
		t.Fatal("expected no commands to run")
	}
}

// TestInstallFFmpegFallsBackToReleaseOnWindows checks the static build download.
func TestInstallFFmpegFallsBackToReleaseOnWindows(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"ffmpeg-master-latest-win64-gpl/bin/ffmpeg.exe":  "MZ-ffmpeg",
		"ffmpeg-master-latest-win64-gpl/bin/ffprobe.exe": "MZ-ffprobe",
	})

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/release", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(githubRelease{
			TagName: "latest",
			Assets: []githubAsset{
				{Name: "ffmpeg-master-latest-win64-gpl-shared.zip", URL: srv.URL + "/missing"},
				{Name: "ffmpeg-master-latest-win64-gpl.zip", URL: srv.URL + "/static.zip"},
			},
		})
	})
	mux.HandleFunc("/static.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	installer := newTestInstaller(t, "windows", &transcodetest.Runner{})
	installer.releaseURL = srv.URL + "/release"

	path, err := installer.InstallFFmpeg(context.Background())
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	want := filepath.Join(localBinDir(installer.homeDir), "ffmpeg.exe")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ffmpeg.exe: %v", err)
	}
	if string(body) != "MZ-ffmpeg" {
		t.Fatalf("ffmpeg.exe = %q", body)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read bin dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("bin dir has %d entries, want only ffmpeg.exe", len(entries))
	}
}

// TestInstallFFmpegPrefersBareNameOnPATH checks that a release install the
// local bin dir exposes on PATH is stored as plain "ffmpeg".
func TestInstallFFmpegPrefersBareNameOnPATH(t *testing.T) {
	archive := zipBytes(t, map[string]string{"bin/ffmpeg.exe": "MZ-ffmpeg"})

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/release", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(githubRelease{
			TagName: "latest",
			Assets:  []githubAsset{{Name: "ffmpeg-master-latest-win64-gpl.zip", URL: srv.URL + "/static.zip"}},
		})
	})
	mux.HandleFunc("/static.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	installer := newTestInstaller(t, "windows", &transcodetest.Runner{})
	installer.releaseURL = srv.URL + "/release"
	binary := filepath.Join(localBinDir(installer.homeDir), "ffmpeg.exe")
	installer.lookPath = func(name string) (string, error) {
		if name == "ffmpeg" {
			if _, err := os.Stat(binary); err == nil {
				return binary, nil
			}
		}
		return "", exec.ErrNotFound
	}

	path, err := installer.InstallFFmpeg(context.Background())
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if path != "ffmpeg" {
		t.Fatalf("path = %q, want ffmpeg", path)
	}
	if _, err := os.Stat(binary); err != nil {
		t.Fatalf("ffmpeg.exe not in bin dir: %v", err)
	}
}

// TestInstallOrFixDirCreatesDirectory ensures a configured dir is created as-is.
func TestInstallOrFixDirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	exportDir := filepath.Join(root, "nested", "clips")

	dir, changed, err := installOrFixDir(exportDir, filepath.Join(root, "fallback"))
	if err != nil {
		t.Fatalf("fix export dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if dir != exportDir {
		t.Fatalf("dir = %s, want %s", dir, exportDir)
	}
	if _, err := os.Stat(exportDir); err != nil {
		t.Fatalf("stat export dir: %v", err)
	}
}

// TestInstallOrFixDirFallsBackWhenEmpty ensures empty settings are reset.
func TestInstallOrFixDirFallsBackWhenEmpty(t *testing.T) {
	fallback := filepath.Join(t.TempDir(), "buffer")

	dir, changed, err := installOrFixDir("  ", fallback)
	if err != nil {
		t.Fatalf("fix buffer dir: %v", err)
	}
	if !changed {
		t.Fatal("expected settings change")
	}
	if dir != fallback {
		t.Fatalf("dir = %s, want %s", dir, fallback)
	}
	if _, err := os.Stat(fallback); err != nil {
		t.Fatalf("stat fallback dir: %v", err)
	}
}

// TestInstallOrFixDiagnosticCreatesExportDir checks the export dir fix end to end.
func TestInstallOrFixDiagnosticCreatesExportDir(t *testing.T) {
	root := t.TempDir()
	exportDir := filepath.Join(root, "clips")
	app := &App{Store: &fakeStore{settings: domain.Settings{
		ExportDir:  exportDir,
		BufferRoot: root,
	}}}

	if _, err := app.InstallOrFixDiagnostic("export_dir"); err != nil {
		t.Fatalf("fix export dir: %v", err)
	}
	if _, err := os.Stat(exportDir); err != nil {
		t.Fatalf("stat export dir: %v", err)
	}
	if got := app.currentSettings().ExportDir; got != exportDir {
		t.Fatalf("ExportDir = %s, want %s", got, exportDir)
	}
}

// TestInstallOrFixDiagnosticStoresInstalledFFmpeg checks the ffmpeg fix updates settings.
func TestInstallOrFixDiagnosticStoresInstalledFFmpeg(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{FFmpegPath: "/missing/ffmpeg"}}
	app := &App{
		Store:     store,
		installer: newTestInstaller(t, "darwin", &transcodetest.Runner{}, "brew", "ffmpeg"),
	}

	if _, err := app.InstallOrFixDiagnostic("tool_ffmpeg"); err != nil {
		t.Fatalf("fix ffmpeg: %v", err)
	}
	saved, _ := store.Load()
	if saved.FFmpegPath != "ffmpeg" {
		t.Fatalf("FFmpegPath = %s, want ffmpeg", saved.FFmpegPath)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownID checks unsupported items.
func TestInstallOrFixDiagnosticRejectsUnknownID(t *testing.T) {
	app := &App{Store: &fakeStore{}}

	if _, err := app.InstallOrFixDiagnostic("model_path"); err == nil {
		t.Fatal("expected error for unsupported id")
	}
	if _, err := app.InstallOrFixDiagnostic(" "); err == nil {
		t.Fatal("expected error for empty id")
	}
}

// TestSelectFFmpegWindowsAssetPrefersStaticMasterBuild validates preferred asset matching.
func TestSelectFFmpegWindowsAssetPrefersStaticMasterBuild(t *testing.T) {
	release := githubRelease{
		TagName: "latest",
		Assets: []githubAsset{
			{Name: "ffmpeg-master-latest-linux64-gpl.tar.xz", URL: "https://example.com/linux.tar.xz"},
			{Name: "ffmpeg-master-latest-win64-gpl-shared.zip", URL: "https://example.com/shared.zip"},
			{Name: "ffmpeg-n7.1-latest-win64-gpl-7.1.zip", URL: "https://example.com/n71.zip"},
			{Name: "ffmpeg-master-latest-win64-gpl.zip", URL: "https://example.com/master.zip"},
		},
	}

	asset, err := selectFFmpegWindowsAsset(release)
	if err != nil {
		t.Fatalf("select asset: %v", err)
	}
	if asset.URL != "https://example.com/master.zip" {
		t.Fatalf("url = %s, want master static asset", asset.URL)
	}
}

// TestSelectFFmpegWindowsAssetFallsBackToVersionedBuild validates fallback matching.
func TestSelectFFmpegWindowsAssetFallsBackToVersionedBuild(t *testing.T) {
	release := githubRelease{
		TagName: "latest",
		Assets: []githubAsset{
			{Name: "ffmpeg-n7.1-latest-win64-gpl-shared-7.1.zip", URL: "https://example.com/shared.zip"},
			{Name: "ffmpeg-n7.1-latest-win64-gpl-7.1.zip", URL: "https://example.com/n71.zip"},
		},
	}

	asset, err := selectFFmpegWindowsAsset(release)
	if err != nil {
		t.Fatalf("select asset: %v", err)
	}
	if asset.URL != "https://example.com/n71.zip" {
		t.Fatalf("url = %s, want versioned static asset", asset.URL)
	}
}

// TestSelectFFmpegWindowsAssetRejectsSharedOnly ensures DLL builds are never picked.
func TestSelectFFmpegWindowsAssetRejectsSharedOnly(t *testing.T) {
	release := githubRelease{
		TagName: "latest",
		Assets: []githubAsset{
			{Name: "ffmpeg-master-latest-win64-gpl-shared.zip", URL: "https://example.com/shared.zip"},
		},
	}

	if _, err := selectFFmpegWindowsAsset(release); err == nil {
		t.Fatal("expected error when only shared builds exist")
	}
}

// TestExtractExecutableRequiresEntry checks archives without the binary fail.
func TestExtractExecutableRequiresEntry(t *testing.T) {
	root := t.TempDir()
	zipPath := filepath.Join(root, "docs.zip")
	if err := os.WriteFile(zipPath, zipBytes(t, map[string]string{"README.txt": "docs"}), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}

	if _, err := extractExecutable(zipPath, root, ffmpegExecutable); err == nil {
		t.Fatal("expected error for archive without ffmpeg.exe")
	}
}

// TestEnsureLocalBinOnPATHPrependsOnce checks PATH is only extended once.
func TestEnsureLocalBinOnPATHPrependsOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("second call: %v", err)
	}

	binDir := localBinDir(home)
	entries := filepath.SplitList(os.Getenv("PATH"))
	if len(entries) != 2 || entries[0] != binDir {
		t.Fatalf("PATH entries = %v, want [%s /usr/bin]", entries, binDir)
	}
	if _, err := os.Stat(binDir); err != nil {
		t.Fatalf("stat bin dir: %v", err)
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}
