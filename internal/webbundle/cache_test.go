package webbundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestCache(t *testing.T, quota uint64) (*Cache, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewCache(filepath.Join(t.TempDir(), "bundles"), quota, clk), clk
}

func stage(t *testing.T, c *Cache, clk *testclock.Clock, version string, payload []byte) {
	t.Helper()
	_, err := c.Stage(BundleManifest{Version: version, SHA256: sha(payload), Size: int64(len(payload))}, bytes.NewReader(payload))
	require.NoError(t, err)
	clk.Advance(time.Minute)
}

func TestCacheStage(t *testing.T) {
	c, _ := newTestCache(t, 0)
	payload := []byte("console.log('v1.2.0')")

	bundle, err := c.Stage(BundleManifest{
		Version:   "1.2.0",
		BundleURL: "https://app.example.com/bundles/1.2.0.tar.gz",
		SHA256:    strings.ToUpper(sha(payload)),
		Size:      int64(len(payload)),
	}, bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", bundle.Version)
	assert.Equal(t, int64(len(payload)), bundle.Size)
	assert.Equal(t, sha(payload), bundle.SHA256)
	assert.Equal(t, "https://app.example.com/bundles/1.2.0.tar.gz", bundle.Source)

	content, err := os.ReadFile(filepath.Join(c.Dir(), "1.2.0", bundleFile))
	require.NoError(t, err)
	assert.Equal(t, payload, content)

	got, err := c.Get("1.2.0")
	require.NoError(t, err)
	assert.Equal(t, bundle.SHA256, got.SHA256)
	assert.True(t, c.Has("1.2.0"))
}

func TestCacheStageRejects(t *testing.T) {
	payload := []byte("bundle body")

	tests := []struct {
		name        string
		quota       uint64
		manifest    BundleManifest
		errContains string
		quotaErr    bool
	}{
		{
			name:        "checksum mismatch",
			manifest:    BundleManifest{Version: "1.0.0", SHA256: sha([]byte("other"))},
			errContains: "checksum mismatch",
		},
		{
			name:        "size mismatch",
			manifest:    BundleManifest{Version: "1.0.0", Size: 3},
			errContains: "size mismatch",
		},
		{
			name:        "declared size over quota",
			quota:       4,
			manifest:    BundleManifest{Version: "1.0.0", Size: int64(len(payload))},
			errContains: "too large to store",
			quotaErr:    true,
		},
		{
			name:        "undeclared size over quota",
			quota:       4,
			manifest:    BundleManifest{Version: "1.0.0"},
			errContains: "QuotaExceededError",
			quotaErr:    true,
		},
		{
			name:        "invalid version",
			manifest:    BundleManifest{Version: "../escape"},
			errContains: "not valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(t, tt.quota)

			_, err := c.Stage(tt.manifest, bytes.NewReader(payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
			assert.Equal(t, tt.quotaErr, errors.Is(err, ErrQuotaExceeded))

			bundles, err := c.List()
			require.NoError(t, err)
			assert.Empty(t, bundles)

			// no staging directories left behind
			entries, _ := os.ReadDir(c.Dir())
			for _, e := range entries {
				assert.False(t, strings.HasPrefix(e.Name(), ".staging-"), "leftover %s", e.Name())
			}
		})
	}
}

func TestCacheQuotaCountsExistingBundles(t *testing.T) {
	c, clk := newTestCache(t, 10)
	stage(t, c, clk, "1.0.0", []byte("123456"))

	_, err := c.Stage(BundleManifest{Version: "1.1.0"}, bytes.NewReader([]byte("12345")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.True(t, IsQuotaError(err.Error()))

	_, err = c.Stage(BundleManifest{Version: "1.1.0"}, bytes.NewReader([]byte("1234")))
	assert.NoError(t, err)

	usage, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), usage)
}

func TestCacheListNewestFirst(t *testing.T) {
	c, clk := newTestCache(t, 0)
	stage(t, c, clk, "1.0.0", []byte("a"))
	stage(t, c, clk, "1.1.0", []byte("bb"))
	stage(t, c, clk, "1.2.0", []byte("ccc"))
	require.NoError(t, c.Activate("1.1.0"))

	bundles, err := c.List()
	require.NoError(t, err)
	require.Len(t, bundles, 3)

	assert.Equal(t, "1.2.0", bundles[0].Version)
	assert.Equal(t, "1.1.0", bundles[1].Version)
	assert.Equal(t, "1.0.0", bundles[2].Version)
	assert.True(t, bundles[1].Active)
	assert.False(t, bundles[0].Active)
}

func TestCacheActivate(t *testing.T) {
	c, clk := newTestCache(t, 0)

	active, err := c.Active()
	require.NoError(t, err)
	assert.Empty(t, active)

	err = c.Activate("9.9.9")
	assert.True(t, errors.Is(err, errors.NotFound))

	stage(t, c, clk, "2.0.0", []byte("x"))
	require.NoError(t, c.Activate("2.0.0"))

	active, err = c.Active()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", active)
}

func TestCacheDelete(t *testing.T) {
	c, clk := newTestCache(t, 0)
	stage(t, c, clk, "1.0.0", []byte("a"))
	stage(t, c, clk, "1.1.0", []byte("b"))
	require.NoError(t, c.Activate("1.1.0"))

	assert.Error(t, c.Delete("1.1.0"), "active bundle must not be deleted")
	assert.True(t, errors.Is(c.Delete("3.0.0"), errors.NotFound))
	assert.True(t, errors.Is(c.Delete("../.."), errors.NotFound))

	require.NoError(t, c.Delete("1.0.0"))
	assert.False(t, c.Has("1.0.0"))
}

func TestCachePrune(t *testing.T) {
	c, clk := newTestCache(t, 0)
	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0", "1.4.0"} {
		stage(t, c, clk, v, []byte(v))
	}
	// oldest bundle is the active one
	require.NoError(t, c.Activate("1.0.0"))

	result, err := c.Prune(2)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Kept)
	require.Len(t, result.Deleted, 2)
	assert.Equal(t, "1.2.0", result.Deleted[0].Version)
	assert.Equal(t, "1.1.0", result.Deleted[1].Version)

	bundles, err := c.List()
	require.NoError(t, err)
	var versions []string
	for _, b := range bundles {
		versions = append(versions, b.Version)
	}
	assert.Equal(t, []string{"1.4.0", "1.3.0", "1.0.0"}, versions)
}

func TestCachePruneNoOp(t *testing.T) {
	c, clk := newTestCache(t, 0)
	stage(t, c, clk, "1.0.0", []byte("a"))
	stage(t, c, clk, "1.1.0", []byte("b"))

	result, err := c.Prune(5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Kept)
	assert.Empty(t, result.Deleted)

	_, err = c.Prune(-1)
	assert.Error(t, err)
}

func TestCacheClear(t *testing.T) {
	c, clk := newTestCache(t, 0)
	stage(t, c, clk, "1.0.0", []byte("a"))
	require.NoError(t, c.Activate("1.0.0"))

	require.NoError(t, c.Clear())

	bundles, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, bundles)

	active, err := c.Active()
	require.NoError(t, err)
	assert.Empty(t, active)

	// clearing an empty cache is fine
	assert.NoError(t, c.Clear())
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"Operation too large to store", true},
		{"QuotaExceededError: operation too large to store", true},
		{"DOMException: The quota has been exceeded.", true},
		{"write /var/cache/hoist: no space left on device", true},
		{"Storage full", true},
		{"network error", false},
		{"checksum mismatch", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaError(tt.message))
		})
	}
}
