package instance

import (
	"os"

	"github.com/angelmondragon/quotehub-backend/pkg/env"
)

const fallbackID = "quotehub-0"

// GetID identifies this process in lock owners and logs. QUOTEHUB_INSTANCE_ID
// wins over the hostname.
func GetID() string {
	if id := env.Get("", "QUOTEHUB_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
