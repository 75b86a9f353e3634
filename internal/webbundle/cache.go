// Package webbundle implements the web bundle update channel: a JSON
// manifest announces the latest build, bundles are staged into a
// quota-limited on-disk cache and activated by switching a marker file.
package webbundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/adamancini/hoist/internal/fsutil"
	"github.com/adamancini/hoist/internal/update"
)

const (
	activeFile   = "active.json"
	bundleFile   = "bundle"
	metadataFile = "bundle.json"
)

// Bundle is the metadata recorded next to a staged bundle.
type Bundle struct {
	Version  string    `json:"version"`
	StagedAt time.Time `json:"staged_at"`
	SHA256   string    `json:"sha256"`
	Size     int64     `json:"size"`
	Source   string    `json:"source,omitempty"`
}

// BundleInfo summarises a cached bundle for listing.
type BundleInfo struct {
	Version  string    `json:"version" yaml:"version"`
	StagedAt time.Time `json:"staged_at" yaml:"staged_at"`
	Size     int64     `json:"size" yaml:"size"`
	Active   bool      `json:"active" yaml:"active"`
}

type activeMarker struct {
	Version     string    `json:"version"`
	ActivatedAt time.Time `json:"activated_at"`
}

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []BundleInfo `json:"deleted" yaml:"deleted"`
	Kept    int          `json:"kept" yaml:"kept"`
}

// Cache stores bundles under dir/<version>/ and tracks the active one in
// dir/active.json. A zero quota means unlimited.
type Cache struct {
	dir   string
	quota uint64
	clock clock.Clock
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string, quota uint64, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Cache{dir: dir, quota: quota, clock: clk}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Quota returns the configured quota in bytes.
func (c *Cache) Quota() uint64 {
	return c.quota
}

// Stage copies body into the cache as the bundle for m.Version, enforcing
// the quota and verifying size and checksum when the manifest carries them.
// A failed stage leaves nothing behind.
func (c *Cache) Stage(m BundleManifest, body io.Reader) (*Bundle, error) {
	if _, err := update.ParseVersion(m.Version); err != nil {
		return nil, errors.NotValidf("bundle version %q", m.Version)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, errors.Annotate(err, "creating bundle cache")
	}

	usage, err := c.Usage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	available := c.available(usage)
	if c.quota > 0 && m.Size > 0 && uint64(m.Size) > available {
		return nil, c.quotaError(m.Version, uint64(m.Size), available)
	}

	tmpDir, err := os.MkdirTemp(c.dir, ".staging-*")
	if err != nil {
		return nil, errors.Annotate(err, "creating staging directory")
	}
	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	f, err := os.Create(filepath.Join(tmpDir, bundleFile))
	if err != nil {
		return nil, errors.Annotate(err, "creating bundle file")
	}
	hash := sha256.New()
	src := body
	if c.quota > 0 {
		// one byte past the limit is enough to detect an overrun
		src = io.LimitReader(body, int64(available)+1)
	}
	n, err := io.Copy(io.MultiWriter(f, hash), src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, errors.Annotatef(err, "writing bundle %s", m.Version)
	}
	if c.quota > 0 && uint64(n) > available {
		return nil, c.quotaError(m.Version, uint64(n), available)
	}
	if m.Size > 0 && n != m.Size {
		return nil, errors.Errorf("bundle %s size mismatch: got %d bytes, want %d", m.Version, n, m.Size)
	}
	sum := hex.EncodeToString(hash.Sum(nil))
	if m.SHA256 != "" && !strings.EqualFold(sum, m.SHA256) {
		return nil, errors.Errorf("bundle %s checksum mismatch: got %s, want %s", m.Version, sum, m.SHA256)
	}

	bundle := &Bundle{
		Version:  m.Version,
		StagedAt: c.clock.Now().UTC(),
		SHA256:   sum,
		Size:     n,
		Source:   m.BundleURL,
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, errors.Annotate(err, "marshalling bundle metadata")
	}
	if err := os.WriteFile(filepath.Join(tmpDir, metadataFile), data, 0644); err != nil {
		return nil, errors.Annotate(err, "writing bundle metadata")
	}

	final := filepath.Join(c.dir, m.Version)
	if err := os.RemoveAll(final); err != nil {
		return nil, errors.Annotatef(err, "replacing bundle %s", m.Version)
	}
	if err := fsutil.RenameAndSync(tmpDir, final); err != nil {
		return nil, errors.Annotatef(err, "moving bundle %s into place", m.Version)
	}

	success = true
	return bundle, nil
}

func (c *Cache) available(usage uint64) uint64 {
	if usage >= c.quota {
		return 0
	}
	return c.quota - usage
}

func (c *Cache) quotaError(version string, need, available uint64) error {
	return errors.Annotatef(ErrQuotaExceeded, "bundle %s needs %s, %s of %s free",
		version, humanize.Bytes(need), humanize.Bytes(available), humanize.Bytes(c.quota))
}

// Get returns the metadata for a staged version.
func (c *Cache) Get(version string) (*Bundle, error) {
	if version == "" || version != filepath.Base(version) || strings.HasPrefix(version, ".") {
		return nil, errors.NotFoundf("bundle %q", version)
	}
	data, err := os.ReadFile(filepath.Join(c.dir, version, metadataFile))
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("bundle %s", version)
	} else if err != nil {
		return nil, errors.Annotatef(err, "reading bundle %s", version)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, errors.Annotatef(err, "parsing bundle %s", version)
	}
	return &bundle, nil
}

// Has reports whether a bundle for version is staged.
func (c *Cache) Has(version string) bool {
	_, err := c.Get(version)
	return err == nil
}

// List returns all staged bundles sorted by staging time (newest first).
func (c *Cache) List() ([]BundleInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BundleInfo{}, nil
		}
		return nil, errors.Annotate(err, "reading bundle cache")
	}

	active, err := c.Active()
	if err != nil {
		return nil, errors.Trace(err)
	}

	bundles := []BundleInfo{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		bundle, err := c.Get(entry.Name())
		if err != nil {
			continue
		}
		bundles = append(bundles, BundleInfo{
			Version:  bundle.Version,
			StagedAt: bundle.StagedAt,
			Size:     bundle.Size,
			Active:   bundle.Version == active,
		})
	}

	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].StagedAt.After(bundles[j].StagedAt)
	})

	return bundles, nil
}

// Usage returns the total size of all staged bundles.
func (c *Cache) Usage() (uint64, error) {
	bundles, err := c.List()
	if err != nil {
		return 0, errors.Trace(err)
	}
	var total uint64
	for _, b := range bundles {
		total += uint64(b.Size)
	}
	return total, nil
}

// Active returns the active version, or "" when none is active.
func (c *Cache) Active() (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, activeFile))
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Annotate(err, "reading active bundle marker")
	}

	var marker activeMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return "", errors.Annotate(err, "parsing active bundle marker")
	}
	return marker.Version, nil
}

// Activate marks a staged version as active.
func (c *Cache) Activate(version string) error {
	if !c.Has(version) {
		return errors.NotFoundf("bundle %s", version)
	}
	data, err := json.MarshalIndent(activeMarker{
		Version:     version,
		ActivatedAt: c.clock.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	if err := fsutil.AtomicWrite(filepath.Join(c.dir, activeFile), data, 0644); err != nil {
		return errors.Annotatef(err, "activating bundle %s", version)
	}
	return nil
}

// Delete removes a staged bundle. The active bundle cannot be deleted.
func (c *Cache) Delete(version string) error {
	if !c.Has(version) {
		return errors.NotFoundf("bundle %s", version)
	}
	active, err := c.Active()
	if err != nil {
		return errors.Trace(err)
	}
	if version == active {
		return errors.Errorf("bundle %s is active", version)
	}
	if err := os.RemoveAll(filepath.Join(c.dir, version)); err != nil {
		return errors.Annotatef(err, "deleting bundle %s", version)
	}
	return nil
}

// Prune removes old bundles, keeping the most recent keep bundles. The
// active bundle is always kept and does not count towards keep.
func (c *Cache) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, errors.NotValidf("negative keep count %d", keep)
	}

	bundles, err := c.List()
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := &PruneResult{}
	retained := 0
	for _, b := range bundles {
		if b.Active {
			result.Kept++
			continue
		}
		if retained < keep {
			retained++
			result.Kept++
			continue
		}
		if err := c.Delete(b.Version); err != nil {
			return nil, errors.Annotatef(err, "pruning bundle %s", b.Version)
		}
		result.Deleted = append(result.Deleted, b)
	}

	return result, nil
}

// Clear removes every bundle and the active marker.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Annotate(err, "clearing bundle cache")
	}
	return nil
}
