package update

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

const verifyTimeout = 10 * time.Second

// BinaryReplacer safely replaces the binary with rollback support
type BinaryReplacer struct {
	currentPath string
	backupPath  string
	verify      func(path string) error
}

// NewBinaryReplacer creates a new binary replacer
func NewBinaryReplacer(currentPath string) *BinaryReplacer {
	r := &BinaryReplacer{
		currentPath: currentPath,
		backupPath:  currentPath + ".backup",
	}
	r.verify = r.verifyBinary
	return r
}

// WithVerifier replaces the default "--version" smoke test
func (r *BinaryReplacer) WithVerifier(verify func(path string) error) *BinaryReplacer {
	r.verify = verify
	return r
}

// Replace replaces the current binary with the new one
func (r *BinaryReplacer) Replace(newBinary string) error {
	// 1. Create backup of current binary
	if err := r.createBackup(); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	// 2. Replace with new binary (atomic rename)
	if err := os.Rename(newBinary, r.currentPath); err != nil {
		_ = r.Rollback()
		return fmt.Errorf("failed to replace binary: %w", err)
	}

	// 3. Set executable permissions
	if err := os.Chmod(r.currentPath, 0755); err != nil {
		_ = r.Rollback()
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// 4. Verify new binary works
	if err := r.verify(r.currentPath); err != nil {
		_ = r.Rollback()
		return fmt.Errorf("new binary verification failed: %w", err)
	}

	// 5. Remove backup on success
	_ = os.Remove(r.backupPath)

	return nil
}

// Rollback restores the backup if update fails
func (r *BinaryReplacer) Rollback() error {
	if _, err := os.Stat(r.backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", r.backupPath)
	}

	if err := os.Rename(r.backupPath, r.currentPath); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}

	if err := os.Chmod(r.currentPath, 0755); err != nil {
		return fmt.Errorf("failed to set permissions on restored binary: %w", err)
	}

	if err := r.verify(r.currentPath); err != nil {
		return fmt.Errorf("restored binary verification failed: %w", err)
	}

	return nil
}

// createBackup copies the current binary, preserving its mode
func (r *BinaryReplacer) createBackup() error {
	src, err := os.Open(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to open current binary: %w", err)
	}
	defer func() { _ = src.Close() }()

	srcInfo, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat current binary: %w", err)
	}

	dst, err := os.OpenFile(r.backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(r.backupPath)
		return fmt.Errorf("failed to copy binary to backup: %w", err)
	}

	return nil
}

// verifyBinary runs "<path> --version" and expects a zero exit
func (r *BinaryReplacer) verifyBinary(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("binary verification failed: %w", err)
	}
	return nil
}
