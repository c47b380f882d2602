package frame

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/itklabs/itk/shm"
)

// segName returns a per-process unique segment name so parallel test runs
// cannot collide in the real shared-memory namespace.
func segName(t *testing.T, suffix string) string {
	t.Helper()
	return fmt.Sprintf("t%d_%s", os.Getpid(), suffix)
}

func newTestWriter(t *testing.T, suffix string, w, h int) *Writer {
	t.Helper()
	wr, err := NewWriter(segName(t, suffix), w, h)
	if err != nil {
		t.Skipf("shared memory not available: %v", err)
	}
	t.Cleanup(func() { wr.Close() })
	return wr
}

func fill(w, h int, v byte) []byte {
	pix := make([]byte, BufferSize(w, h))
	for i := range pix {
		pix[i] = v
	}
	return pix
}

func TestBufferSize(t *testing.T) {
	t.Parallel()

	if got := BufferSize(1280, 720); got != 3_686_400 {
		t.Errorf("BufferSize(1280, 720): got %d, want 3686400", got)
	}
	if got := SegmentSize(1280, 720); got != 3_686_400+HeaderSize {
		t.Errorf("SegmentSize(1280, 720): got %d, want %d", got, 3_686_400+HeaderSize)
	}
	if got := BufferSize(4, 2); got != 32 {
		t.Errorf("BufferSize(4, 2): got %d, want 32", got)
	}
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	a1 := ContentHash("video_a.mp4")
	a2 := ContentHash("video_a.mp4")
	b := ContentHash("video_b.mp4")

	if a1 != a2 {
		t.Errorf("hash not stable: %#x vs %#x", a1, a2)
	}
	if a1 == b {
		t.Errorf("distinct ids hashed equal: %#x", a1)
	}
	if a1 == 0 {
		t.Error("hash of a real id should not be zero")
	}
}

func TestWriteFrameValidatesLength(t *testing.T) {
	t.Parallel()
	wr := newTestWriter(t, "val", 4, 2)

	_, err := wr.WriteFrame(make([]byte, 31), 100)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("short payload: got %v, want ErrInvalidFrame", err)
	}
	_, err = wr.WriteFrame(make([]byte, 33), 100)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("long payload: got %v, want ErrInvalidFrame", err)
	}
	if wr.LastPTS() != 0 {
		t.Error("invalid frames must not advance LastPTS")
	}
}

func TestWriteFrameSkipsDuplicatePTS(t *testing.T) {
	t.Parallel()
	wr := newTestWriter(t, "skip", 4, 2)

	written, err := wr.WriteFrame(fill(4, 2, 1), 1000)
	if err != nil || !written {
		t.Fatalf("first write: written=%v err=%v", written, err)
	}
	written, err = wr.WriteFrame(fill(4, 2, 2), 1000)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if written {
		t.Error("second write with same nonzero pts should be skipped")
	}
	if wr.LastPTS() != 1000 {
		t.Errorf("LastPTS: got %d, want 1000", wr.LastPTS())
	}
}

func TestWriteFrameZeroPTSNeverSkipped(t *testing.T) {
	t.Parallel()
	wr := newTestWriter(t, "zero", 4, 2)

	for i := 0; i < 2; i++ {
		written, err := wr.WriteFrame(fill(4, 2, byte(i)), 0)
		if err != nil || !written {
			t.Fatalf("write %d at pts 0: written=%v err=%v", i, written, err)
		}
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()
	name := segName(t, "trip")
	wr := newTestWriter(t, "trip", 4, 2)

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	want := fill(4, 2, 0x7F)
	if _, err := wr.WriteFrame(want, 1000); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	pts, pix, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if pts != 1000 {
		t.Errorf("pts: got %d, want 1000", pts)
	}
	if !bytes.Equal(pix, want) {
		t.Error("payload mismatch")
	}

	// No intervening write: unchanged.
	if _, _, err := rd.ReadFrame(); !errors.Is(err, ErrNoChange) {
		t.Errorf("second read: got %v, want ErrNoChange", err)
	}
	if rd.LastPTS() != 1000 {
		t.Errorf("LastPTS: got %d, want 1000", rd.LastPTS())
	}
	if !bytes.Equal(rd.Frame(), want) {
		t.Error("Frame() should keep the last copy")
	}
}

func TestReaderObservesOnlyLatest(t *testing.T) {
	t.Parallel()
	name := segName(t, "latest")
	wr := newTestWriter(t, "latest", 4, 2)

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	if _, err := wr.WriteFrame(fill(4, 2, 1), 40); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := wr.WriteFrame(fill(4, 2, 2), 80); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	pts, pix, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if pts != 80 {
		t.Errorf("pts: got %d, want 80", pts)
	}
	if pix[0] != 2 {
		t.Errorf("payload: got %d, want the latest write", pix[0])
	}
}

func TestReaderDetectsContentChangeAtSamePTS(t *testing.T) {
	t.Parallel()
	name := segName(t, "content")
	wr := newTestWriter(t, "content", 4, 2)

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	wr.SetContent("video_a.mp4", 60_000)
	if _, err := wr.WriteFrame(fill(4, 2, 1), 500); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, _, err := rd.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if rd.DurationMs() != 60_000 {
		t.Errorf("DurationMs: got %d, want 60000", rd.DurationMs())
	}

	// New video, same timestamp. SetContent resets the writer's frame-skip
	// state, and the reader must see the hash change as a new frame.
	wr.SetContent("video_b.mp4", 90_000)
	written, err := wr.WriteFrame(fill(4, 2, 2), 500)
	if err != nil {
		t.Fatalf("WriteFrame after content change: %v", err)
	}
	if !written {
		t.Fatal("write after content change must not be skipped")
	}

	pts, pix, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame after content change: %v", err)
	}
	if pts != 500 {
		t.Errorf("pts: got %d, want 500", pts)
	}
	if pix[0] != 2 {
		t.Error("payload should be the new content's frame")
	}
	if rd.DurationMs() != 90_000 {
		t.Errorf("DurationMs: got %d, want 90000", rd.DurationMs())
	}
}

func TestReaderBeforeProducer(t *testing.T) {
	t.Parallel()
	name := segName(t, "early")

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	for i := 0; i < 3; i++ {
		if _, _, err := rd.ReadFrame(); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("poll %d without producer: got %v, want ErrNotConnected", i, err)
		}
	}

	wr, err := NewWriter(name, 4, 2)
	if err != nil {
		t.Skipf("shared memory not available: %v", err)
	}
	defer wr.Close()

	// Segment exists but is empty: connected, nothing to show yet.
	if _, _, err := rd.ReadFrame(); !errors.Is(err, ErrNoChange) {
		t.Fatalf("poll on empty segment: got %v, want ErrNoChange", err)
	}

	if _, err := wr.WriteFrame(fill(4, 2, 9), 250); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	pts, _, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("poll after producer appeared: %v", err)
	}
	if pts != 250 {
		t.Errorf("pts: got %d, want 250", pts)
	}
}

func TestReaderSizeMismatch(t *testing.T) {
	t.Parallel()
	name := segName(t, "short")

	// A segment too small for the reader's declared geometry.
	seg, err := shm.Create(name, HeaderSize+8)
	if err != nil {
		t.Skipf("shared memory not available: %v", err)
	}
	defer seg.Close()

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	_, _, err = rd.ReadFrame()
	var sm *shm.SizeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("got %v, want *shm.SizeMismatchError", err)
	}
}

func TestSetContentAloneIsNotAChange(t *testing.T) {
	t.Parallel()
	name := segName(t, "pending")
	wr := newTestWriter(t, "pending", 4, 2)

	rd, err := NewReader(name, 4, 2)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	// Declaring content on a fresh segment publishes nothing; a reader
	// polling before the first frame must not see a phantom update.
	wr.SetContent("video_a.mp4", 60_000)
	if _, _, err := rd.ReadFrame(); !errors.Is(err, ErrNoChange) {
		t.Fatalf("ReadFrame before first frame: got %v, want ErrNoChange", err)
	}

	if _, err := wr.WriteFrame(fill(4, 2, 1), 100); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, _, err := rd.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	// Same between two videos: after SetContent but before the new video's
	// first frame, the last frame of the old video must not be re-delivered
	// under the new identity.
	wr.SetContent("video_b.mp4", 90_000)
	if _, _, err := rd.ReadFrame(); !errors.Is(err, ErrNoChange) {
		t.Fatalf("ReadFrame in content-change window: got %v, want ErrNoChange", err)
	}
	if rd.DurationMs() != 60_000 {
		t.Errorf("DurationMs in content-change window: got %d, want the old 60000", rd.DurationMs())
	}

	if _, err := wr.WriteFrame(fill(4, 2, 2), 100); err != nil {
		t.Fatalf("WriteFrame after content change: %v", err)
	}
	pts, pix, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame after content change: %v", err)
	}
	if pts != 100 || pix[0] != 2 {
		t.Errorf("got pts=%d pix[0]=%d, want the new video's first frame", pts, pix[0])
	}
	if rd.DurationMs() != 90_000 {
		t.Errorf("DurationMs: got %d, want 90000", rd.DurationMs())
	}
}

func TestWriterAccessorsConcurrentWithWrites(t *testing.T) {
	t.Parallel()
	wr := newTestWriter(t, "hot", 4, 2)

	// LastPTS and ContentHash are polled from other goroutines (the status
	// API) while the producer keeps writing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		pix := fill(4, 2, 1)
		for pts := int64(1); pts <= 1000; pts++ {
			if _, err := wr.WriteFrame(pix, pts); err != nil {
				t.Errorf("WriteFrame: %v", err)
				return
			}
		}
	}()

	var last int64
	for {
		select {
		case <-done:
			if got := wr.LastPTS(); got != 1000 {
				t.Errorf("LastPTS after writes: got %d, want 1000", got)
			}
			return
		default:
		}
		got := wr.LastPTS()
		if got < last {
			t.Fatalf("LastPTS went backwards: %d after %d", got, last)
		}
		last = got
		_ = wr.ContentHash()
	}
}
