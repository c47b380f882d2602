package frame

import (
	"fmt"
	"sync/atomic"

	"github.com/itklabs/itk/shm"
)

// ErrInvalidFrame is returned when a payload's length does not match the
// declared output dimensions. The frame is dropped; nothing is written.
var ErrInvalidFrame = fmt.Errorf("frame: payload size does not match width*height*4")

// Writer is the producer-facing side of the frame buffer. It owns the
// shared-memory segment and is, by construction, the only party that mutates
// it. SetContent and WriteFrame must be called from a single goroutine; the
// accessors are safe to call concurrently with them.
type Writer struct {
	seg    *shm.Segment
	width  int
	height int

	lastPTS    atomic.Int64
	hash       atomic.Uint64
	durationMs int64
}

// NewWriter creates the named segment sized for width x height RGBA frames
// and returns a Writer that publishes into it. Closing the Writer destroys
// the segment.
func NewWriter(name string, width, height int) (*Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", width, height)
	}
	seg, err := shm.Create(name, SegmentSize(width, height))
	if err != nil {
		return nil, err
	}
	return &Writer{seg: seg, width: width, height: height}, nil
}

// SetContent declares the identity and duration of newly loaded content.
// The identity string is hashed once; the hash and duration reach the shared
// header together with the first WriteFrame of the new content, so readers
// never see a new identity paired with the previous video's payload. The
// frame-skip state is reset so that a first frame sharing a timestamp with
// the previous content is still published.
func (w *Writer) SetContent(id string, durationMs int64) {
	w.hash.Store(ContentHash(id))
	w.durationMs = durationMs
	w.lastPTS.Store(0)
}

// WriteFrame publishes an RGBA payload with its presentation timestamp.
// It returns false when the write was skipped because ptsMs equals the last
// published timestamp (nonzero), which keeps paused or idle video from
// re-copying megabytes into shared memory every tick.
//
// Write order is payload first, header last, bracketed by the sequence
// counter, so a reader that observes an even, unchanged sequence has seen a
// payload consistent with the header.
func (w *Writer) WriteFrame(pix []byte, ptsMs int64) (bool, error) {
	if len(pix) != BufferSize(w.width, w.height) {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrame, len(pix), BufferSize(w.width, w.height))
	}
	if ptsMs != 0 && ptsMs == w.lastPTS.Load() {
		return false, nil
	}

	b := w.seg.Bytes()
	seq := loadU64(b, offSeq)
	storeU64(b, offSeq, seq+1)

	copy(b[HeaderSize:], pix)

	storeI64(b, offDuration, w.durationMs)
	storeU64(b, offHash, w.hash.Load())
	storeI64(b, offPTS, ptsMs)
	storeU64(b, offSeq, seq+2)

	w.lastPTS.Store(ptsMs)
	return true, nil
}

// LastPTS returns the timestamp of the most recent physical write.
func (w *Writer) LastPTS() int64 { return w.lastPTS.Load() }

// ContentHash returns the hash applied to header writes since the last
// SetContent call.
func (w *Writer) ContentHash() uint64 { return w.hash.Load() }

// Width returns the declared output width.
func (w *Writer) Width() int { return w.width }

// Height returns the declared output height.
func (w *Writer) Height() int { return w.height }

// Close unmaps and destroys the segment.
func (w *Writer) Close() error {
	if w.seg == nil {
		return nil
	}
	err := w.seg.Close()
	w.seg = nil
	return err
}
