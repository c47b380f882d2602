package frame

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/itklabs/itk/shm"
)

// ErrNoChange reports that the buffer holds no frame newer than the one the
// reader already returned. No payload copy was performed.
var ErrNoChange = errors.New("frame: no new frame")

// ErrNotConnected reports that the producer has not created the segment yet
// (or created it with a different geometry). The reader retries the open on
// every subsequent ReadFrame call.
var ErrNotConnected = errors.New("frame: producer not connected")

// Reader is the consumer-facing side of the frame buffer. It polls a named
// segment and copies the payload out only when the header announces new
// content. Reader is not safe for concurrent use; it is designed to be
// driven by a single redraw loop.
type Reader struct {
	name   string
	width  int
	height int

	seg        *shm.Segment
	buf        []byte // reused payload copy, len == BufferSize
	lastPTS    int64
	lastHash   uint64
	durationMs int64
	haveFrame  bool
}

// NewReader prepares a reader for the named segment with the producer's
// declared dimensions. The segment does not need to exist yet; connection is
// attempted lazily on each ReadFrame.
func NewReader(name string, width, height int) (*Reader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", width, height)
	}
	return &Reader{
		name:   name,
		width:  width,
		height: height,
		buf:    make([]byte, BufferSize(width, height)),
	}, nil
}

// connect opens the segment if it is not mapped yet. A missing object is the
// normal "producer not started" case; a size mismatch is a hard error the
// caller must surface rather than retry.
func (r *Reader) connect() error {
	if r.seg != nil {
		return nil
	}
	seg, err := shm.Open(r.name, SegmentSize(r.width, r.height))
	if err != nil {
		var sm *shm.SizeMismatchError
		if errors.As(err, &sm) {
			return err
		}
		if errors.Is(err, unix.ENOENT) {
			return ErrNotConnected
		}
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	r.seg = seg
	return nil
}

// ReadFrame polls the buffer once. It returns the newest presentation
// timestamp and a reference to the reader's internally reused pixel buffer
// when the header differs from the last observed (timestamp, content-hash)
// pair; ErrNoChange when nothing new is available; ErrNotConnected while the
// producer is absent. The call never blocks and performs at most one bounded
// payload copy.
func (r *Reader) ReadFrame() (int64, []byte, error) {
	if err := r.connect(); err != nil {
		return 0, nil, err
	}
	b := r.seg.Bytes()

	// Two attempts: a write racing the first copy is re-tried once, then
	// the reader keeps its previous frame until the next poll.
	for attempt := 0; attempt < 2; attempt++ {
		seq := loadU64(b, offSeq)
		if seq%2 != 0 {
			continue // writer mid-publish
		}
		pts := loadI64(b, offPTS)
		hash := loadU64(b, offHash)
		dur := loadI64(b, offDuration)

		if seq == 0 && pts == 0 && hash == 0 {
			return 0, nil, ErrNoChange // fresh segment, nothing published yet
		}
		if pts == r.lastPTS && hash == r.lastHash && r.haveFrame {
			return 0, nil, ErrNoChange
		}

		copy(r.buf, b[HeaderSize:])

		if loadU64(b, offSeq) != seq {
			continue // torn copy, retry
		}

		r.lastPTS = pts
		r.lastHash = hash
		r.durationMs = dur
		r.haveFrame = true
		return pts, r.buf, nil
	}
	return 0, nil, ErrNoChange
}

// LastPTS returns the timestamp of the most recently copied frame.
func (r *Reader) LastPTS() int64 { return r.lastPTS }

// DurationMs returns the duration field of the most recently copied header,
// 0 when unknown or live.
func (r *Reader) DurationMs() int64 { return r.durationMs }

// Width returns the expected frame width.
func (r *Reader) Width() int { return r.width }

// Height returns the expected frame height.
func (r *Reader) Height() int { return r.height }

// Frame returns a read-only view of the most recently copied frame, or nil
// if no frame has been copied yet. Callers that redraw without waiting for a
// new frame use this instead of forcing another ReadFrame.
func (r *Reader) Frame() []byte {
	if !r.haveFrame {
		return nil
	}
	return r.buf
}

// Close unmaps the segment. The underlying object survives for the producer
// and any other readers.
func (r *Reader) Close() error {
	if r.seg == nil {
		return nil
	}
	err := r.seg.Close()
	r.seg = nil
	return err
}
