// Package instanceid resolves a stable identifier for this controller process (§4.3), used to tell this
// instance's resources apart from another controller's when arbitrating ownership (§3 "is ours").
package instanceid

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Resolve returns the configured override if set, otherwise the process's hostname, falling back to a
// random UUID if the hostname can't be determined (e.g. in a minimal container without /etc/hostname).
func Resolve(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}

	slog.Warn("Could not determine hostname for instance id; generating a random one.", "error", err)
	return uuid.NewString()
}
