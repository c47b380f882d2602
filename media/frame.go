// Package media defines the core frame and stream-description types that flow
// through the itk producer pipeline, from decoding through shared-memory
// publication.
package media

// Frame is a single decoded video picture in a packed pixel format, ready for
// scaling or publication. It is an ephemeral value: each frame passes through
// the pipeline exactly once and is never retained.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // packed pixel bytes, no row padding
	PTSms  int64  // presentation timestamp in milliseconds
}

// VideoInfo describes a loaded source. ContentID identifies "which video"
// (as opposed to "what time in the video") and is the input to the
// content-identity hash written into every frame header.
type VideoInfo struct {
	ContentID  string
	Width      int
	Height     int
	DurationMs int64 // 0 when unknown (live streams)
	FPS        float64
	Codec      string
	Live       bool
	Title      string
	Rate       float64
	Volume     float64
}
