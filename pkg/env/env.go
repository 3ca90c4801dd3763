package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// InstanceID names the running replica in logs. Heroku sets DYNO; other
// platforms can set WORKER_ID.
func InstanceID() string {
	return Get("DYNO", Get("WORKER_ID", "local"))
}

// Port is the HTTP listen port, preferring the platform provided PORT.
func Port(fallback string) string {
	return Get("PORT", fallback)
}
