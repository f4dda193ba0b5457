package instance

import (
	"os"
	"strings"
)

const envWorkerID = "SETTLEZ_WORKER_ID"

// GetID returns the worker instance identifier: SETTLEZ_WORKER_ID when set,
// else the hostname, else "worker-0".
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(envWorkerID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
