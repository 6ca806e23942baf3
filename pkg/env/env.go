// Package env reads process settings that must be known before config.Load
// runs, such as the log format of the bootstrap logger.
package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of the first key that is set, or fallback.
func Get(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
