//go:build !linux

package shm

import "os"

// DefaultDir returns the directory used to back shared segments. Platforms
// without a tmpfs shm mount fall back to the temp directory; a file-backed
// MAP_SHARED mapping carries the same cross-process semantics.
func DefaultDir() string { return os.TempDir() }
