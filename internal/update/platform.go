package update

import (
	"fmt"
	"runtime"
	"slices"
)

// releaseTargets lists the architectures published per OS.
var releaseTargets = map[string][]string{
	"darwin": {"amd64", "arm64"},
	"linux":  {"amd64", "arm64"},
}

// Detect returns the platform of the running binary.
func Detect() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// String returns "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// BinaryName returns the release asset name, e.g. "hoist-darwin-arm64".
func (p Platform) BinaryName() string {
	return fmt.Sprintf("hoist-%s-%s", p.OS, p.Arch)
}

// IsSupported reports whether releases are published for p.
func (p Platform) IsSupported() bool {
	return slices.Contains(releaseTargets[p.OS], p.Arch)
}

// Validate returns an error naming p when no release is published for it.
func (p Platform) Validate() error {
	if !p.IsSupported() {
		return fmt.Errorf("native updates are not published for %s", p)
	}
	return nil
}
