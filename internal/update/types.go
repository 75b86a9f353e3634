package update

import "context"

// EventKind identifies a download/install progress event
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventFinished
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "Started"
	case EventProgress:
		return "Progress"
	case EventFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Event is emitted while a manifest downloads and installs
type Event struct {
	Kind          EventKind
	ContentLength *int64 // Started only; nil when the server did not report a length
	ChunkLength   int64  // Progress only
}

// Manifest is a pending native update. It is created per check and
// discarded after install or decline.
type Manifest interface {
	Version() string
	DownloadAndInstall(ctx context.Context, onEvent func(Event)) error
}

// UpdateInfo describes an available update
type UpdateInfo struct {
	Available      bool   // Whether an update is available
	CurrentVersion string // Currently installed version
	LatestVersion  string // Latest available version
	ReleaseURL     string // URL to the release page
	ReleaseNotes   string // Release notes/changelog
	AssetURL       string // Direct download URL for the binary
	ChecksumURL    string // URL to checksums file
}

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (darwin, linux)
	Arch string // Architecture (amd64, arm64)
}

// Checker checks for available updates
type Checker interface {
	Check(ctx context.Context) (Manifest, error)
}

// Downloader downloads and verifies binaries
type Downloader interface {
	Download(ctx context.Context, url, dst string, onEvent func(Event)) error
	VerifyChecksum(ctx context.Context, file, checksumURL string) error
}

// Replacer safely replaces the binary with rollback support
type Replacer interface {
	Replace(newBinary string) error
	Rollback() error
}
