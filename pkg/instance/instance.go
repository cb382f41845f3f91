package instance

import (
	"os"
	"strings"
)

const envInstanceID = "TIPSPLIT_INSTANCE_ID"

// GetID returns an identifier for this process, used as a log field. It prefers
// an explicit id, then the platform dyno name, then the hostname.
func GetID(service string) string {
	for _, key := range []string{envInstanceID, "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if service == "" {
		service = "tipsplit"
	}
	return service + "-0"
}
