// Package scale converts decoded frames of arbitrary resolution and pixel
// format into the fixed RGBA geometry the shared-memory frame buffer expects.
package scale

import (
	"fmt"
	"image"

	"github.com/asticode/go-astiav"

	"github.com/itklabs/itk/frame"
)

// Scaler converts frames to a fixed output size in RGBA. The conversion
// context is built lazily and rebuilt only when the source geometry or pixel
// format changes; the output storage is allocated once and reused, so the
// steady-state path performs no per-frame heap allocation of its own.
// Scaler is owned by a single goroutine.
type Scaler struct {
	width  int
	height int
	img    *image.RGBA // reused output storage

	ctx *astiav.SoftwareScaleContext
	dst *astiav.Frame

	srcW  int
	srcH  int
	srcPF astiav.PixelFormat
}

// New returns a scaler producing width x height RGBA frames. No FFmpeg
// state is touched until the first Scale call.
func New(width, height int) *Scaler {
	return &Scaler{
		width:  width,
		height: height,
		img: &image.RGBA{
			Pix:    make([]byte, frame.BufferSize(width, height)),
			Stride: width * frame.BytesPerPixel,
			Rect:   image.Rect(0, 0, width, height),
		},
	}
}

// Scale converts src into the scaler's output geometry and returns the
// packed RGBA bytes. The returned slice is the scaler's reused buffer and is
// valid until the next Scale call. Source row padding (stride beyond the
// logical row width) is handled when the pixels are copied out.
func (s *Scaler) Scale(src *astiav.Frame) ([]byte, error) {
	if src.Width() <= 0 || src.Height() <= 0 {
		return nil, fmt.Errorf("scale: invalid source %dx%d", src.Width(), src.Height())
	}

	if s.ctx == nil || src.Width() != s.srcW || src.Height() != s.srcH || src.PixelFormat() != s.srcPF {
		if s.ctx != nil {
			s.ctx.Free()
			s.ctx = nil
		}
		ctx, err := astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			s.width, s.height, astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, fmt.Errorf("scale: create context for %dx%d %s: %w", src.Width(), src.Height(), src.PixelFormat(), err)
		}
		s.ctx = ctx
		s.srcW = src.Width()
		s.srcH = src.Height()
		s.srcPF = src.PixelFormat()
	}

	if s.dst == nil {
		s.dst = astiav.AllocFrame()
	}
	s.dst.Unref()
	if err := s.ctx.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("scale: scale frame: %w", err)
	}

	// ToImage copies the scaled pixels into the reused image storage,
	// re-packing rows when the destination stride exceeds the logical row
	// width.
	if err := s.dst.Data().ToImage(s.img); err != nil {
		return nil, fmt.Errorf("scale: read scaled pixels: %w", err)
	}
	if want := frame.BufferSize(s.width, s.height); len(s.img.Pix) != want {
		return nil, fmt.Errorf("scale: scaled output is %d bytes, want %d", len(s.img.Pix), want)
	}
	return s.img.Pix, nil
}

// Width returns the output width.
func (s *Scaler) Width() int { return s.width }

// Height returns the output height.
func (s *Scaler) Height() int { return s.height }

// BufferSize returns the output payload size, width * height * 4.
func (s *Scaler) BufferSize() int { return frame.BufferSize(s.width, s.height) }

// Close frees the conversion context and the reused destination frame.
func (s *Scaler) Close() {
	if s.ctx != nil {
		s.ctx.Free()
		s.ctx = nil
	}
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
}
