package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/coordinator"
	"github.com/adamancini/hoist/internal/ledger"
	"github.com/adamancini/hoist/internal/types"
)

func statusConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = types.EnvironmentProduction
	cfg.Web.ManifestURL = "https://updates.example.com/manifest.json"
	cfg.Web.CacheDir = t.TempDir()
	cfg.Session.Dir = t.TempDir()
	return cfg
}

// freeAddr returns a local address nothing listens on.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRunStatus_Text(t *testing.T) {
	setOutputFormat(t, "text")
	cfg := statusConfig(t)

	for _, name := range []string{"a.json", "b.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(cfg.Session.Dir, name), []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	var stdout bytes.Buffer
	if err := runStatus(context.Background(), &stdout, cfg); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{
		"Environment: production",
		"Manifest:    https://updates.example.com/manifest.json",
		"Active:      none",
		"Cache:       0 bundle(s), 0 B of 50 MB",
		"Sessions:    2",
		"Native:      disabled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Running client") {
		t.Errorf("no live status expected without metrics.addr:\n%s", out)
	}
}

func TestRunStatus_Live(t *testing.T) {
	setOutputFormat(t, "json")
	cfg := statusConfig(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(coordinator.Status{
			Environment: types.EnvironmentProduction,
			Phase:       coordinator.PhaseWaitingForReady,
			Versions:    ledger.Snapshot{Current: "1.0.0", Latest: "1.1.0", Diff: "minor"},
		})
	}))
	t.Cleanup(srv.Close)
	cfg.Metrics.Addr = strings.TrimPrefix(srv.URL, "http://")

	var stdout bytes.Buffer
	if err := runStatus(context.Background(), &stdout, cfg); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}

	var report statusReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if report.Live == nil {
		t.Fatal("live status missing")
	}
	if report.Live.Phase != coordinator.PhaseWaitingForReady {
		t.Errorf("phase = %s, want waiting-for-ready", report.Live.Phase)
	}
	if report.Live.Versions.Latest != "1.1.0" {
		t.Errorf("latest = %q, want 1.1.0", report.Live.Versions.Latest)
	}
}

func TestRunStatus_LiveUnreachable(t *testing.T) {
	setOutputFormat(t, "json")
	cfg := statusConfig(t)
	cfg.Metrics.Addr = freeAddr(t)

	var stdout bytes.Buffer
	if err := runStatus(context.Background(), &stdout, cfg); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}

	var report statusReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.Live != nil {
		t.Errorf("live = %+v, want nil", report.Live)
	}
}

func TestCountSessions_MissingDir(t *testing.T) {
	if n := countSessions(filepath.Join(t.TempDir(), "missing")); n != 0 {
		t.Errorf("countSessions = %d, want 0", n)
	}
}
