// Package shm manages named, fixed-size shared-memory segments visible to
// multiple processes. Exactly one producer creates a segment; any number of
// readers open it. The creator owns the OS-level object and is the only party
// that removes it on close.
package shm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// namePrefix namespaces itk segments inside the platform shared-memory
// directory, matching the POSIX convention of /itk_<name> objects.
const namePrefix = "itk_"

// ErrCreateFailed is wrapped into errors returned when a segment cannot be
// created even after removing stale leftovers of the same name.
var ErrCreateFailed = errors.New("shm: create failed")

// ErrInvalidName is returned for segment names that could escape the
// shared-memory namespace.
var ErrInvalidName = errors.New("shm: invalid segment name")

// SizeMismatchError reports an existing segment smaller than the size the
// opener requires. Opening such a segment would permit out-of-bounds reads.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("shm: segment size mismatch: expected at least %d bytes, found %d", e.Expected, e.Actual)
}

// Segment is a named block of memory mapped into this process's address
// space. The mapping is established once at Create/Open time; per-frame
// access is plain memory access via Bytes.
type Segment struct {
	name  string
	path  string
	size  int
	owner bool
	data  []byte
}

// sanitizeName validates a logical segment name. Only a flat identifier is
// accepted: untrusted names must not escape the shared-memory namespace.
func sanitizeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func objectPath(dir, name string) string {
	return filepath.Join(dir, namePrefix+name)
}

// Create creates a new shared-memory segment of the given size and maps it
// read/write. Any stale object left by an unclean previous shutdown is
// removed first; creation itself is exclusive, so two live producers cannot
// share a name. The returned Segment owns the OS object.
func Create(name string, size int) (*Segment, error) {
	return createIn(DefaultDir(), name, size)
}

// Open maps an existing segment created by a producer. It fails with a
// *SizeMismatchError if the object's real size is smaller than size, and
// with the underlying unix error (typically unix.ENOENT) when no producer
// has created the segment yet.
func Open(name string, size int) (*Segment, error) {
	return openIn(DefaultDir(), name, size)
}

func createIn(dir, name string, size int) (*Segment, error) {
	if err := sanitizeName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: non-positive size %d", ErrCreateFailed, size)
	}

	path := objectPath(dir, name)

	// A previous producer may have crashed without unlinking. Removal is
	// best-effort; the exclusive create below is the real gate.
	_ = unix.Unlink(path)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCreateFailed, path, err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("%w: ftruncate %s to %d: %v", ErrCreateFailed, path, size, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrCreateFailed, path, err)
	}

	return &Segment{name: name, path: path, size: size, owner: true, data: data}, nil
}

func openIn(dir, name string, size int) (*Segment, error) {
	if err := sanitizeName(name); err != nil {
		return nil, err
	}

	path := objectPath(dir, name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	if st.Size < int64(size) {
		return nil, &SizeMismatchError{Expected: int64(size), Actual: st.Size}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &Segment{name: name, path: path, size: size, owner: false, data: data}, nil
}

// Name returns the logical segment name.
func (s *Segment) Name() string { return s.name }

// Size returns the mapped size in bytes.
func (s *Segment) Size() int { return s.size }

// Owner reports whether this instance created the OS object.
func (s *Segment) Owner() bool { return s.owner }

// Bytes returns the mapped region. The slice stays valid until Close.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the segment. The owning producer additionally unlinks the
// OS object; readers closing never destroy the segment out from under the
// producer or other readers.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil

	if s.owner {
		if uerr := unix.Unlink(s.path); uerr != nil && err == nil {
			err = uerr
		}
	}
	if err != nil {
		return fmt.Errorf("shm: close %s: %w", s.name, err)
	}
	return nil
}
