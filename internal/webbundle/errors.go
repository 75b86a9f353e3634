package webbundle

import (
	"strings"

	"github.com/juju/errors"
)

// ErrQuotaExceeded is returned when staging a bundle would exceed the cache quota.
const ErrQuotaExceeded = errors.ConstError("QuotaExceededError: operation too large to store")

var quotaPhrases = []string{
	"quota",
	"too large to store",
	"no space left on device",
	"storage full",
}

// IsQuotaError reports whether an installation failure message indicates
// storage exhaustion. Matching is on text because failures arrive as
// strings in InstallationFailed events.
func IsQuotaError(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range quotaPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
