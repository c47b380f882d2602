// Package frame implements the shared-memory frame buffer: the binary layout
// written into a segment and the lock-free protocol a single Writer and many
// Readers use to agree on "is this frame new and complete".
//
// The layout is a small header followed by one RGBA payload slot. Only the
// latest frame is retained; there is no queue and no history. The header is
// the only state a reader consults to decide whether to copy the payload.
package frame

import (
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Header field offsets inside the segment. All fields are 8-byte aligned
// (the mapping itself is page aligned) so they can be accessed atomically.
//
//	off 0  sequence  uint64  odd while a write is in flight (seqlock)
//	off 8  pts       int64   presentation timestamp, milliseconds
//	off 16 hash      uint64  content-identity hash
//	off 24 duration  int64   total duration, milliseconds (0 = unknown/live)
const (
	offSeq      = 0
	offPTS      = 8
	offHash     = 16
	offDuration = 24

	// HeaderSize is the fixed number of bytes before the pixel payload.
	HeaderSize = 32
)

// BytesPerPixel is fixed: the payload is always RGBA.
const BytesPerPixel = 4

// BufferSize returns the payload size for the given output dimensions.
func BufferSize(width, height int) int {
	return width * height * BytesPerPixel
}

// SegmentSize returns the total shared-memory size for the given dimensions.
func SegmentSize(width, height int) int {
	return HeaderSize + BufferSize(width, height)
}

// ContentHash derives the 64-bit content-identity hash from a content
// identifier string. It changes only when the loaded source changes, letting
// readers distinguish "new content, same timestamp" from "no update".
func ContentHash(id string) uint64 {
	return xxhash.Sum64String(id)
}

// Atomic header accessors. The writer publishes payload bytes first and
// header fields last; the acquire/release pairing on these loads and stores
// is what lets an unsynchronized reader trust the header it sees.

func loadU64(b []byte, off int) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[off])))
}

func storeU64(b []byte, off int, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b[off])), v)
}

func loadI64(b []byte, off int) int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&b[off])))
}

func storeI64(b []byte, off int, v int64) {
	atomic.StoreInt64((*int64)(unsafe.Pointer(&b[off])), v)
}
