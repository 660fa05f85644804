package bootstrap

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

const (
	ffmpegReleaseURL = "https://api.github.com/repos/BtbN/FFmpeg-Builds/releases/latest"
	ffmpegExecutable = "ffmpeg.exe"
	userAgent        = "stream-clipper"
)

type githubAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

// installFromRelease downloads the static win64 build and keeps only
// ffmpeg.exe in ~/.stream-clipper/bin, which is on PATH for this process.
func (i *toolInstaller) installFromRelease(ctx context.Context) (string, error) {
	release, err := i.fetchRelease(ctx)
	if err != nil {
		return "", err
	}

	asset, err := selectFFmpegWindowsAsset(release)
	if err != nil {
		return "", err
	}

	binDir := localBinDir(i.homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create tool directory: %w", err)
	}

	archive, err := i.download(ctx, asset.URL, binDir)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", asset.Name, err)
	}
	defer os.Remove(archive)

	path, err := extractExecutable(archive, binDir, ffmpegExecutable)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", asset.Name, err)
	}
	i.log.Info("ffmpeg installed from release", "tag", release.TagName, "path", path)
	return path, nil
}

func (i *toolInstaller) fetchRelease(ctx context.Context) (githubRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.releaseURL, nil)
	if err != nil {
		return githubRelease{}, fmt.Errorf("build release metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return githubRelease{}, fmt.Errorf("request release metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return githubRelease{}, fmt.Errorf("release metadata request returned %s", resp.Status)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return githubRelease{}, fmt.Errorf("decode release metadata: %w", err)
	}
	if strings.TrimSpace(release.TagName) == "" {
		return githubRelease{}, fmt.Errorf("release metadata did not include a tag name")
	}
	return release, nil
}

// selectFFmpegWindowsAsset picks a static GPL win64 zip, preferring the
// master build over versioned branches. Shared (DLL) builds are skipped.
func selectFFmpegWindowsAsset(release githubRelease) (githubAsset, error) {
	static := lo.Filter(release.Assets, func(asset githubAsset, _ int) bool {
		name := strings.ToLower(strings.TrimSpace(asset.Name))
		return strings.TrimSpace(asset.URL) != "" &&
			strings.HasSuffix(name, ".zip") &&
			strings.Contains(name, "win64-gpl") &&
			!strings.Contains(name, "shared")
	})
	if len(static) == 0 {
		return githubAsset{}, fmt.Errorf("release %s does not contain a static Windows x64 zip asset", release.TagName)
	}

	if master, ok := lo.Find(static, func(asset githubAsset) bool {
		return strings.Contains(strings.ToLower(asset.Name), "master")
	}); ok {
		return master, nil
	}
	return static[0], nil
}

// download streams sourceURL into a temp file inside dir and returns its path.
func (i *toolInstaller) download(ctx context.Context, sourceURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.CreateTemp(dir, "ffmpeg-*.zip.download")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(file.Name())
		if copyErr != nil {
			return "", fmt.Errorf("write archive: %w", copyErr)
		}
		return "", fmt.Errorf("close archive: %w", closeErr)
	}
	return file.Name(), nil
}

// extractExecutable copies the first entry named name (in any folder of the
// archive) to dir/name. Nothing else is unpacked.
func extractExecutable(zipPath, dir, name string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	entry, ok := lo.Find(reader.File, func(f *zip.File) bool {
		return f != nil && !f.FileInfo().IsDir() && strings.EqualFold(filepath.Base(filepath.Clean(f.Name)), name)
	})
	if !ok {
		return "", fmt.Errorf("archive does not contain %s", name)
	}

	src, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	target := filepath.Join(dir, name)
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return target, nil
}
