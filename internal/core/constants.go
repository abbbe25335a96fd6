// Package core provides shared constants and date utilities for fincache.
package core

import (
	"os"
	"path/filepath"
)

// Date formats
const (
	DateFmt     = "2006-01-02"
	DatetimeFmt = "2006-01-02 15:04:05"
)

// Refresh coordinator defaults
const (
	DefaultMaxRefreshesPerSession = 10
	DefaultMinRefreshInterval     = 2000 // milliseconds
)

// Fetch parallelism
const (
	DefaultFetchWorkers = 3 // Max parallel workers for missing-range fetches
)

// DataRoot returns the fincache data directory path.
func DataRoot() string {
	if root := os.Getenv("FINCACHE_HOME"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".fincache")
}

// CacheRoot returns the default cache directory path.
func CacheRoot() string {
	return filepath.Join(DataRoot(), "cache")
}

// Version is the current fincache version.
const Version = "0.3.0"
