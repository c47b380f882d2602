package scale

import "testing"

func TestAccessors(t *testing.T) {
	t.Parallel()

	s := New(1280, 720)
	defer s.Close()

	if s.Width() != 1280 || s.Height() != 720 {
		t.Errorf("geometry: got %dx%d, want 1280x720", s.Width(), s.Height())
	}
	if got := s.BufferSize(); got != 1280*720*4 {
		t.Errorf("BufferSize: got %d, want %d", got, 1280*720*4)
	}
}

func TestBufferSizeTracksGeometry(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ w, h int }{{320, 240}, {1920, 1080}, {2, 2}} {
		s := New(tc.w, tc.h)
		if got := s.BufferSize(); got != tc.w*tc.h*4 {
			t.Errorf("BufferSize(%dx%d): got %d, want %d", tc.w, tc.h, got, tc.w*tc.h*4)
		}
		s.Close()
	}
}

func TestOutputStoragePreallocated(t *testing.T) {
	t.Parallel()

	// The destination image is sized once at construction; Scale fills it
	// in place rather than allocating a fresh payload per frame.
	s := New(640, 360)
	defer s.Close()

	if s.img == nil {
		t.Fatal("output image not preallocated")
	}
	if got := len(s.img.Pix); got != s.BufferSize() {
		t.Errorf("output storage: got %d bytes, want %d", got, s.BufferSize())
	}
	if s.img.Stride != 640*4 {
		t.Errorf("stride: got %d, want %d", s.img.Stride, 640*4)
	}
	if b := s.img.Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Errorf("bounds: got %dx%d, want 640x360", b.Dx(), b.Dy())
	}
}
