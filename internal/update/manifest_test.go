package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeDownloader struct {
	content     []byte
	downloadErr error
	verifyErr   error
	verified    string
}

func (f *fakeDownloader) Download(ctx context.Context, url, dst string, onEvent func(Event)) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	length := int64(len(f.content))
	onEvent(Event{Kind: EventStarted, ContentLength: &length})
	onEvent(Event{Kind: EventProgress, ChunkLength: length})
	onEvent(Event{Kind: EventFinished})
	return os.WriteFile(dst, f.content, 0755)
}

func (f *fakeDownloader) VerifyChecksum(ctx context.Context, file, checksumURL string) error {
	f.verified = file
	return f.verifyErr
}

type fakeReplacer struct {
	replaced []byte
	err      error
}

func (f *fakeReplacer) Replace(newBinary string) error {
	if f.err != nil {
		return f.err
	}
	content, err := os.ReadFile(newBinary)
	if err != nil {
		return err
	}
	f.replaced = content
	return nil
}

func (f *fakeReplacer) Rollback() error { return nil }

func newTestManifest(t *testing.T, d Downloader, r Replacer, checksumURL string) *ReleaseManifest {
	t.Helper()
	return &ReleaseManifest{
		Info: UpdateInfo{
			Available:     true,
			LatestVersion: "0.9.0",
			AssetURL:      "https://example.invalid/hoist-linux-amd64",
			ChecksumURL:   checksumURL,
		},
		binaryName: "hoist-linux-amd64",
		binaryPath: filepath.Join(t.TempDir(), "hoist"),
		downloader: d,
		replacer:   r,
	}
}

func TestReleaseManifestDownloadAndInstall(t *testing.T) {
	d := &fakeDownloader{content: []byte("new binary")}
	r := &fakeReplacer{}
	m := newTestManifest(t, d, r, "https://example.invalid/checksums.txt")

	var kinds []EventKind
	if err := m.DownloadAndInstall(context.Background(), func(e Event) { kinds = append(kinds, e.Kind) }); err != nil {
		t.Fatalf("DownloadAndInstall() error = %v", err)
	}

	if string(r.replaced) != "new binary" {
		t.Errorf("replaced content = %q", r.replaced)
	}
	if filepath.Base(d.verified) != "hoist-linux-amd64" {
		t.Errorf("verified %q, want file named after the release asset", d.verified)
	}
	want := []EventKind{EventStarted, EventProgress, EventFinished}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	// staging directory is cleaned up
	entries, err := os.ReadDir(filepath.Dir(m.binaryPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging left behind: %v", entries)
	}
}

func TestReleaseManifestSkipsChecksumWhenUnpublished(t *testing.T) {
	d := &fakeDownloader{content: []byte("x")}
	m := newTestManifest(t, d, &fakeReplacer{}, "")

	if err := m.DownloadAndInstall(context.Background(), nil); err != nil {
		t.Fatalf("DownloadAndInstall() error = %v", err)
	}
	if d.verified != "" {
		t.Errorf("VerifyChecksum called for release without checksums")
	}
}

func TestReleaseManifestErrors(t *testing.T) {
	tests := []struct {
		name        string
		d           *fakeDownloader
		r           *fakeReplacer
		errContains string
	}{
		{
			name:        "download fails",
			d:           &fakeDownloader{downloadErr: errors.New("connection reset")},
			r:           &fakeReplacer{},
			errContains: "failed to download 0.9.0",
		},
		{
			name:        "checksum mismatch",
			d:           &fakeDownloader{content: []byte("x"), verifyErr: errors.New("checksum mismatch")},
			r:           &fakeReplacer{},
			errContains: "checksum mismatch",
		},
		{
			name:        "replace fails",
			d:           &fakeDownloader{content: []byte("x")},
			r:           &fakeReplacer{err: errors.New("read-only file system")},
			errContains: "failed to install 0.9.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManifest(t, tt.d, tt.r, "https://example.invalid/checksums.txt")
			err := m.DownloadAndInstall(context.Background(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestCheckThenInstallEndToEnd(t *testing.T) {
	newBinary := []byte("#!/bin/sh\necho hoist 0.9.0\n")
	sum := sha256.Sum256(newBinary)

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/adamancini/hoist/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"tag_name": "v0.9.0", "assets": [
			{"name": "hoist-linux-amd64", "browser_download_url": "%[1]s/dl/hoist-linux-amd64"},
			{"name": "checksums.txt", "browser_download_url": "%[1]s/dl/checksums.txt"}]}`, srv.URL)
	})
	mux.HandleFunc("/dl/hoist-linux-amd64", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(newBinary)
	})
	mux.HandleFunc("/dl/checksums.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "%s  hoist-linux-amd64\n", hex.EncodeToString(sum[:]))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	binaryPath := filepath.Join(t.TempDir(), "hoist")
	if err := os.WriteFile(binaryPath, []byte("old"), 0755); err != nil {
		t.Fatal(err)
	}

	replacer := NewBinaryReplacer(binaryPath).WithVerifier(func(string) error { return nil })
	checker := NewGitHubChecker("0.8.2", "adamancini", "hoist").
		WithBaseURL(srv.URL).
		WithPlatform(Platform{OS: "linux", Arch: "amd64"}).
		WithBinaryPath(binaryPath).
		WithInstaller(NewHTTPDownloader(), replacer)

	manifest, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if manifest == nil {
		t.Fatal("expected manifest")
	}

	var downloaded int64
	err = manifest.DownloadAndInstall(context.Background(), func(e Event) {
		if e.Kind == EventProgress {
			downloaded += e.ChunkLength
		}
	})
	if err != nil {
		t.Fatalf("DownloadAndInstall() error = %v", err)
	}

	if downloaded != int64(len(newBinary)) {
		t.Errorf("downloaded = %d, want %d", downloaded, len(newBinary))
	}
	content, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != string(newBinary) {
		t.Errorf("binary not replaced: %q", content)
	}
}
