package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stream-clipper/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		FFmpegPath: "ffmpeg",
		BufferRoot: filepath.Join(root, "buffer"),
		ExportDir:  filepath.Join(root, "clips"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("failed items = %+v", report.Failed())
	}
	if _, err := os.Stat(filepath.Join(root, "clips")); err != nil {
		t.Fatalf("export dir should be created: %v", err)
	}
}

// TestCheckerRunMissingToolAndPaths validates failure reporting.
func TestCheckerRunMissingToolAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, IDToolFFmpeg, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDBufferRoot, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDExportDir, domain.DiagnosticStatusFail)
	if !itemByID(t, report, IDBufferRoot).Fixable {
		t.Fatal("expected empty buffer dir to be fixable")
	}
	if len(report.Failed()) != 3 {
		t.Fatalf("failed items = %d, want 3", len(report.Failed()))
	}
	if !itemByID(t, report, IDToolFFmpeg).Fixable {
		t.Fatal("missing ffmpeg on PATH should be fixable")
	}
}

// TestCheckerConfiguredFFmpegPath validates explicit binary paths.
func TestCheckerConfiguredFFmpegPath(t *testing.T) {
	root := t.TempDir()
	binary := filepath.Join(root, "ffmpeg")
	if err := os.WriteFile(binary, []byte("stub"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	lookups := 0
	checker := NewCheckerForTests(
		func(string) (string, error) { lookups++; return "", errors.New("not found") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{FFmpegPath: binary, BufferRoot: root, ExportDir: root})
	assertStatusByID(t, report, IDToolFFmpeg, domain.DiagnosticStatusPass)
	if lookups != 0 {
		t.Fatalf("PATH lookups = %d, want 0 for explicit path", lookups)
	}

	report = checker.Run(domain.Settings{FFmpegPath: filepath.Join(root, "missing"), BufferRoot: root, ExportDir: root})
	assertStatusByID(t, report, IDToolFFmpeg, domain.DiagnosticStatusFail)
	if itemByID(t, report, IDToolFFmpeg).Fixable {
		t.Fatal("a wrong explicit path is a settings problem, not installable")
	}
}

// TestCheckerUnwritableDirectory validates write probe failures.
func TestCheckerUnwritableDirectory(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)

	report := checker.Run(domain.Settings{BufferRoot: "/ro", ExportDir: "/ro"})

	assertStatusByID(t, report, IDBufferRoot, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDExportDir, domain.DiagnosticStatusFail)
	if !itemByID(t, report, IDExportDir).Fixable {
		t.Fatal("unwritable export dir should be fixable")
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	if got := itemByID(t, report, id).Status; got != want {
		t.Fatalf("item %s: got %s, want %s", id, got, want)
	}
}

func itemByID(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
	return domain.DiagnosticItem{}
}
