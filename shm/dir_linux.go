package shm

// DefaultDir returns the directory backing POSIX shared-memory objects.
// glibc's shm_open maps /name onto this tmpfs mount.
func DefaultDir() string { return "/dev/shm" }
