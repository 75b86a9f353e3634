package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// GitHubChecker checks for updates via GitHub API
type GitHubChecker struct {
	currentVersion string
	githubToken    string // Optional, for rate limiting
	owner          string // Repository owner
	repo           string // Repository name
	client         *http.Client
	baseURL        string // Base URL for GitHub API (for testing)
	platform       Platform
	binaryPath     string // Binary replaced on install; defaults to os.Executable
	downloader     Downloader
	replacer       Replacer
}

// GitHubRelease represents a GitHub release response
type GitHubRelease struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	HTMLURL    string `json:"html_url"`
	Prerelease bool   `json:"prerelease"`
	Assets     []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// NewGitHubChecker creates a new GitHub checker
func NewGitHubChecker(currentVersion, owner, repo string) *GitHubChecker {
	return &GitHubChecker{
		currentVersion: currentVersion,
		owner:          owner,
		repo:           repo,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  "https://api.github.com",
		platform: Detect(),
	}
}

// WithToken sets an optional GitHub token for authentication
func (c *GitHubChecker) WithToken(token string) *GitHubChecker {
	c.githubToken = token
	return c
}

// WithBaseURL points the checker at a different API host
func (c *GitHubChecker) WithBaseURL(baseURL string) *GitHubChecker {
	c.baseURL = baseURL
	return c
}

// WithPlatform overrides the detected platform
func (c *GitHubChecker) WithPlatform(p Platform) *GitHubChecker {
	c.platform = p
	return c
}

// WithBinaryPath sets the binary that an install replaces
func (c *GitHubChecker) WithBinaryPath(path string) *GitHubChecker {
	c.binaryPath = path
	return c
}

// WithInstaller overrides how manifests download and replace the binary
func (c *GitHubChecker) WithInstaller(d Downloader, r Replacer) *GitHubChecker {
	c.downloader = d
	c.replacer = r
	return c
}

// Check returns a manifest for the latest release, or nil when the
// running version is already current.
func (c *GitHubChecker) Check(ctx context.Context) (Manifest, error) {
	info, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if !info.Available {
		return nil, nil
	}
	if err := c.platform.Validate(); err != nil {
		return nil, err
	}
	if info.AssetURL == "" {
		return nil, fmt.Errorf("release %s has no binary for %s", info.LatestVersion, c.platform)
	}

	binaryPath := c.binaryPath
	if binaryPath == "" {
		binaryPath, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate running binary: %w", err)
		}
	}

	downloader := c.downloader
	if downloader == nil {
		downloader = NewHTTPDownloader()
	}
	replacer := c.replacer
	if replacer == nil {
		replacer = NewBinaryReplacer(binaryPath)
	}

	return &ReleaseManifest{
		Info:       *info,
		binaryName: c.platform.BinaryName(),
		binaryPath: binaryPath,
		downloader: downloader,
		replacer:   replacer,
	}, nil
}

// Latest reports the latest release regardless of whether it is newer
func (c *GitHubChecker) Latest(ctx context.Context) (*UpdateInfo, error) {
	// Get latest release from GitHub
	release, err := c.getLatestRelease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest release: %w", err)
	}

	// Parse versions
	currentVer, err := ParseVersion(c.currentVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid current version: %w", err)
	}

	latestVer, err := ParseVersion(release.TagName)
	if err != nil {
		return nil, fmt.Errorf("invalid latest version: %w", err)
	}

	// Get asset URLs for current platform
	assetURL, checksumURL := c.findAssetURLs(release, c.platform)

	info := &UpdateInfo{
		Available:      latestVer.IsGreaterThan(currentVer),
		CurrentVersion: NormalizeVersion(c.currentVersion),
		LatestVersion:  NormalizeVersion(release.TagName),
		ReleaseURL:     release.HTMLURL,
		ReleaseNotes:   release.Body,
		AssetURL:       assetURL,
		ChecksumURL:    checksumURL,
	}

	return info, nil
}

// getLatestRelease fetches the latest release from GitHub API
func (c *GitHubChecker) getLatestRelease(ctx context.Context) (*GitHubRelease, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	// Set headers
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &release, nil
}

// findAssetURLs finds the binary and checksum URLs for the current platform
func (c *GitHubChecker) findAssetURLs(release *GitHubRelease, platform Platform) (string, string) {
	binaryName := platform.BinaryName()
	var assetURL, checksumURL string

	for _, asset := range release.Assets {
		if asset.Name == binaryName {
			assetURL = asset.BrowserDownloadURL
		}
		if asset.Name == "checksums.txt" {
			checksumURL = asset.BrowserDownloadURL
		}
	}

	return assetURL, checksumURL
}
