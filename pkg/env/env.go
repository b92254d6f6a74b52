package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Instance identifies the running process in logs (container hostname when set).
func Instance() string {
	return Get("HOSTNAME", "local")
}
