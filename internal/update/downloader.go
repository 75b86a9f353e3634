package update

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const chunkSize = 32 * 1024

// HTTPDownloader downloads binaries over HTTP
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTP downloader
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{},
	}
}

// Download streams url into dst, reporting Started, one Progress per chunk,
// then Finished. A failed download leaves no file at dst.
func (d *HTTPDownloader) Download(ctx context.Context, url, dst string, onEvent func(Event)) error {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	started := Event{Kind: EventStarted}
	if resp.ContentLength >= 0 {
		length := resp.ContentLength
		started.ContentLength = &length
	}
	onEvent(started)

	if err := copyWithProgress(out, resp.Body, onEvent); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("download interrupted: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	onEvent(Event{Kind: EventFinished})
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, onEvent func(Event)) error {
	buf := make([]byte, chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			onEvent(Event{Kind: EventProgress, ChunkLength: int64(n)})
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// VerifyChecksum compares the file's SHA256 against its entry in the
// checksums file at checksumURL
func (d *HTTPDownloader) VerifyChecksum(ctx context.Context, file, checksumURL string) error {
	checksums, err := d.downloadChecksums(ctx, checksumURL)
	if err != nil {
		return fmt.Errorf("failed to download checksums: %w", err)
	}

	name := getFilename(file)
	expected, ok := checksums[name]
	if !ok {
		return fmt.Errorf("checksum for %s not found", name)
	}

	actual, err := calculateSHA256(file)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", name, err)
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", name, actual, expected)
	}

	return nil
}

// downloadChecksums parses a sha256sum-style file into name -> hash
func (d *HTTPDownloader) downloadChecksums(ctx context.Context, url string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checksums returned status %d", resp.StatusCode)
	}

	result := make(map[string]string)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		// sha256sum marks binary mode with a leading '*'
		result[strings.TrimPrefix(fields[1], "*")] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// calculateSHA256 returns the hex SHA256 of a file
func calculateSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func getFilename(path string) string {
	return filepath.Base(path)
}
