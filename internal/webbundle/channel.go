package webbundle

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hoist/internal/update"
)

// DefaultEventBuffer is the lifecycle event buffer size.
const DefaultEventBuffer = 32

var logger = loggo.GetLogger("hoist.webbundle")

// BundleManifest is the JSON document served at the manifest URL.
type BundleManifest struct {
	Version   string `json:"version"`
	BundleURL string `json:"bundle_url"`
	SHA256    string `json:"sha256,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	ManifestURL string
	Cache       *Cache
	Client      *http.Client // defaults to a client with a 30s timeout
	EventBuffer int          // defaults to DefaultEventBuffer
}

// Channel checks the manifest, stages newer bundles into the cache and
// activates them on request. Lifecycle events are published on Events.
type Channel struct {
	manifestURL string
	cache       *Cache
	client      *http.Client
	events      chan LifecycleEvent

	mu     sync.Mutex
	staged string
}

// NewChannel returns a channel for the given manifest and cache.
func NewChannel(cfg ChannelConfig) *Channel {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Channel{
		manifestURL: cfg.ManifestURL,
		cache:       cfg.Cache,
		client:      client,
		events:      make(chan LifecycleEvent, buffer),
	}
}

// Events returns the lifecycle event stream. It is never closed.
func (c *Channel) Events() <-chan LifecycleEvent {
	return c.events
}

// Cache returns the underlying bundle cache.
func (c *Channel) Cache() *Cache {
	return c.cache
}

// ActiveVersion returns the version of the active bundle, or "".
func (c *Channel) ActiveVersion() (string, error) {
	return c.cache.Active()
}

// StagedVersion returns the version waiting for activation, or "".
func (c *Channel) StagedVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged
}

// CheckForUpdate fetches the manifest and, when it names a newer version
// than the active bundle, stages that bundle. It returns true once a newer
// bundle is staged and ready for ActivateUpdate.
func (c *Channel) CheckForUpdate(ctx context.Context) (bool, error) {
	if c.manifestURL == "" {
		return false, errors.NotValidf("empty manifest url")
	}

	manifest, err := c.fetchManifest(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}

	active, err := c.cache.Active()
	if err != nil {
		return false, errors.Trace(err)
	}
	if active != "" {
		cmp, err := update.CompareVersions(manifest.Version, active)
		if err != nil {
			return false, errors.Annotate(err, "comparing bundle versions")
		}
		if cmp <= 0 {
			return false, nil
		}
	}

	c.emit(Detected{Version: manifest.Version})

	if c.cache.Has(manifest.Version) {
		logger.Debugf("bundle %s already staged", manifest.Version)
	} else if err := c.download(ctx, manifest); err != nil {
		c.emit(InstallationFailed{Version: manifest.Version, Error: err.Error()})
		return false, errors.Trace(err)
	}

	c.mu.Lock()
	c.staged = manifest.Version
	c.mu.Unlock()
	return true, nil
}

// ActivateUpdate promotes the staged bundle and emits Ready. It returns
// false when nothing is staged.
func (c *Channel) ActivateUpdate(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staged == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, errors.Trace(err)
	}

	previous, err := c.cache.Active()
	if err != nil {
		return false, errors.Trace(err)
	}
	if err := c.cache.Activate(c.staged); err != nil {
		return false, errors.Trace(err)
	}

	logger.Infof("activated bundle %s (was %q)", c.staged, previous)
	c.emit(Ready{CurrentVersion: previous, LatestVersion: c.staged})
	c.staged = ""
	return true, nil
}

// ClearCaches removes every cached bundle and forgets any staged version.
func (c *Channel) ClearCaches(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.staged = ""
	return errors.Trace(c.cache.Clear())
}

func (c *Channel) fetchManifest(ctx context.Context) (*BundleManifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifestURL, nil)
	if err != nil {
		return nil, errors.Annotate(err, "building manifest request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "fetching manifest")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("manifest returned status %d", resp.StatusCode)
	}

	var manifest BundleManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, errors.Annotate(err, "decoding manifest")
	}
	if manifest.BundleURL == "" {
		return nil, errors.NotValidf("manifest without bundle_url")
	}
	if _, err := update.ParseVersion(manifest.Version); err != nil {
		return nil, errors.NotValidf("manifest version %q", manifest.Version)
	}
	manifest.Version = update.NormalizeVersion(manifest.Version)
	return &manifest, nil
}

func (c *Channel) download(ctx context.Context, manifest *BundleManifest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifest.BundleURL, nil)
	if err != nil {
		return errors.Annotate(err, "building bundle request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "downloading bundle %s", manifest.Version)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("bundle %s returned status %d", manifest.Version, resp.StatusCode)
	}

	bundle, err := c.cache.Stage(*manifest, resp.Body)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("staged bundle %s (%d bytes)", bundle.Version, bundle.Size)
	return nil
}

// emit never blocks; a full buffer drops the event.
func (c *Channel) emit(event LifecycleEvent) {
	select {
	case c.events <- event:
	default:
		logger.Warningf("lifecycle event buffer full, dropping %s event", event.Kind())
	}
}
