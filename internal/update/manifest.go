package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ReleaseManifest installs one GitHub release over the running binary
type ReleaseManifest struct {
	Info UpdateInfo

	binaryName string
	binaryPath string
	downloader Downloader
	replacer   Replacer
}

// Version returns the release version without a "v" prefix
func (m *ReleaseManifest) Version() string {
	return m.Info.LatestVersion
}

// DownloadAndInstall downloads the release binary next to the running one,
// verifies its checksum when the release publishes one, then swaps it in.
// The new binary takes effect on the next launch.
func (m *ReleaseManifest) DownloadAndInstall(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	// Stage in the binary's directory so the final rename stays on one filesystem
	tmpDir, err := os.MkdirTemp(filepath.Dir(m.binaryPath), ".hoist-update-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	staged := filepath.Join(tmpDir, m.binaryName)
	if err := m.downloader.Download(ctx, m.Info.AssetURL, staged, onEvent); err != nil {
		return fmt.Errorf("failed to download %s: %w", m.Info.LatestVersion, err)
	}

	if m.Info.ChecksumURL != "" {
		if err := m.downloader.VerifyChecksum(ctx, staged, m.Info.ChecksumURL); err != nil {
			return err
		}
	}

	if err := m.replacer.Replace(staged); err != nil {
		return fmt.Errorf("failed to install %s: %w", m.Info.LatestVersion, err)
	}

	return nil
}
