package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamancini/hoist/internal/update"
)

var testPlatform = update.Platform{OS: "linux", Arch: "amd64"}

// latestRelease serves tag as the latest adamancini/hoist release.
func latestRelease(t *testing.T, tag string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/adamancini/hoist/releases/latest" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name": tag,
			"html_url": "https://github.com/adamancini/hoist/releases/" + tag,
			"body":     "Fixes the reload prompt.",
			"assets": []map[string]string{{
				"name":                 testPlatform.BinaryName(),
				"browser_download_url": srv.URL + "/download/" + testPlatform.BinaryName(),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, url, dst string, onEvent func(update.Event)) error {
	payload := []byte("#!/bin/sh\necho new\n")
	n := int64(len(payload))
	onEvent(update.Event{Kind: update.EventStarted, ContentLength: &n})
	onEvent(update.Event{Kind: update.EventProgress, ChunkLength: n})
	onEvent(update.Event{Kind: update.EventFinished})
	return os.WriteFile(dst, payload, 0755)
}

func (fakeDownloader) VerifyChecksum(ctx context.Context, file, checksumURL string) error {
	return nil
}

type fakeReplacer struct {
	replaced string
}

func (r *fakeReplacer) Replace(newBinary string) error {
	r.replaced = newBinary
	return nil
}

func (r *fakeReplacer) Rollback() error { return nil }

func setUpdateFlags(t *testing.T, check, install bool) {
	t.Helper()
	prevCheck, prevUpdate := checkOnly, doUpdate
	checkOnly, doUpdate = check, install
	t.Cleanup(func() { checkOnly, doUpdate = prevCheck, prevUpdate })
}

func TestRunVersion_UpToDate(t *testing.T) {
	setUpdateFlags(t, true, false)
	srv := latestRelease(t, "v1.0.0")
	checker := update.NewGitHubChecker("1.0.0", "adamancini", "hoist").WithBaseURL(srv.URL)

	var stdout bytes.Buffer
	if err := runVersion(context.Background(), &stdout, checker); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}

	if !strings.Contains(stdout.String(), "Already running latest version") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunVersion_CheckOnly(t *testing.T) {
	setUpdateFlags(t, true, false)
	srv := latestRelease(t, "v1.1.0")
	checker := update.NewGitHubChecker("1.0.0", "adamancini", "hoist").WithBaseURL(srv.URL)

	var stdout bytes.Buffer
	if err := runVersion(context.Background(), &stdout, checker); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{
		"Current version: 1.0.0",
		"Latest version: 1.1.0 available",
		"Fixes the reload prompt.",
		"hoist version --update",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestRunVersion_Update(t *testing.T) {
	setUpdateFlags(t, false, true)
	srv := latestRelease(t, "v1.1.0")
	replacer := &fakeReplacer{}
	checker := update.NewGitHubChecker("1.0.0", "adamancini", "hoist").
		WithBaseURL(srv.URL).
		WithPlatform(testPlatform).
		WithBinaryPath(filepath.Join(t.TempDir(), "hoist")).
		WithInstaller(fakeDownloader{}, replacer)

	var stdout bytes.Buffer
	if err := runVersion(context.Background(), &stdout, checker); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{"Downloading 1.1.0", "✓ Downloaded 19 B", "Successfully updated to v1.1.0!"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if filepath.Base(replacer.replaced) != testPlatform.BinaryName() {
		t.Errorf("replaced with %q, want staged %s", replacer.replaced, testPlatform.BinaryName())
	}
}

func TestRunVersion_APIError(t *testing.T) {
	setUpdateFlags(t, true, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	checker := update.NewGitHubChecker("1.0.0", "adamancini", "hoist").WithBaseURL(srv.URL)

	var stdout bytes.Buffer
	err := runVersion(context.Background(), &stdout, checker)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "failed to check for updates") {
		t.Errorf("error = %v", err)
	}
}
