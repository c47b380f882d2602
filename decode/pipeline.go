// Package decode turns a compressed video source into timestamped pixel
// frames using FFmpeg via go-astiav. It opportunistically decodes on the GPU
// and transparently transfers GPU-resident frames to system memory, so
// callers always receive CPU-readable pixels; correctness never depends on
// hardware acceleration being present.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/itklabs/itk/media"
)

// Pipeline decodes one video stream from an opened source. It is not safe
// for concurrent use; the producer drives it from a single decode loop.
type Pipeline struct {
	log *slog.Logger

	fc        *astiav.FormatContext
	cc        *astiav.CodecContext
	streamIdx int
	tbNum     int // stream time base numerator
	tbDen     int // stream time base denominator

	hw              *hwContext
	onTransferError func()

	pkt     *astiav.Packet
	frame   *astiav.Frame
	swFrame *astiav.Frame // transfer target for GPU-resident frames
	flushed bool

	info media.VideoInfo
}

// Open opens source (a local path or a directly decodable URL), finds its
// video stream, and prepares a decoder. Hardware acceleration is attempted
// once here; failure to acquire it is silent and leaves the pipeline on the
// software path. If log is nil, slog.Default() is used.
func Open(source string, log *slog.Logger) (p *Pipeline, err error) {
	if log == nil {
		log = slog.Default()
	}
	p = &Pipeline{log: log.With("component", "decode")}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	if p.fc = astiav.AllocFormatContext(); p.fc == nil {
		return nil, errors.New("decode: alloc format context")
	}
	if err := p.fc.OpenInput(source, nil, nil); err != nil {
		return nil, fmt.Errorf("decode: open %s: %w", source, err)
	}
	if err := p.fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("decode: find stream info: %w", err)
	}

	var st *astiav.Stream
	for _, s := range p.fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			st = s
			break
		}
	}
	if st == nil {
		return nil, fmt.Errorf("decode: no video stream in %s", source)
	}
	p.streamIdx = st.Index()
	p.tbNum = st.TimeBase().Num()
	p.tbDen = st.TimeBase().Den()

	cp := st.CodecParameters()
	codec := astiav.FindDecoder(cp.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("decode: no decoder for codec id %d", cp.CodecID())
	}

	if p.cc = astiav.AllocCodecContext(codec); p.cc == nil {
		return nil, errors.New("decode: alloc codec context")
	}
	if err := cp.ToCodecContext(p.cc); err != nil {
		return nil, fmt.Errorf("decode: apply codec parameters: %w", err)
	}

	// Best-effort only: a missing GPU or driver leaves p.hw nil and the
	// decoder on the software path, invisible to callers.
	if p.hw = newHardwareContext(codec, p.log); p.hw != nil {
		p.cc.SetHardwareDeviceContext(p.hw.device)
		hwPF := p.hw.pixelFormat
		p.cc.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
			for _, pf := range pfs {
				if pf == hwPF {
					return pf
				}
			}
			return astiav.PixelFormatNone
		})
		p.log.Info("hardware decoding enabled", "device", p.hw.name)
	}

	if err := p.cc.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("decode: open codec %s: %w", codec.Name(), err)
	}

	p.pkt = astiav.AllocPacket()
	p.frame = astiav.AllocFrame()
	p.swFrame = astiav.AllocFrame()

	fps := 0.0
	if r := st.AvgFrameRate(); r.Den() != 0 {
		fps = float64(r.Num()) / float64(r.Den())
	}
	durationMs := int64(0)
	if d := p.fc.Duration(); d > 0 {
		durationMs = d / 1000 // AV_TIME_BASE (µs) → ms
	}
	p.info = media.VideoInfo{
		ContentID:  source,
		Width:      cp.Width(),
		Height:     cp.Height(),
		DurationMs: durationMs,
		FPS:        fps,
		Codec:      codec.Name(),
		Live:       durationMs == 0,
		Rate:       1.0,
		Volume:     1.0,
	}

	return p, nil
}

// Info describes the opened stream.
func (p *Pipeline) Info() media.VideoInfo { return p.info }

// OnTransferError registers a callback invoked each time a GPU-to-system
// frame transfer fails. Used to bridge transfer failures into a counter.
func (p *Pipeline) OnTransferError(fn func()) {
	p.onTransferError = fn
}

// transferFailed records a failed hardware frame transfer. The frame is
// skipped; the stream continues.
func (p *Pipeline) transferFailed(err error) {
	p.log.Warn("hardware frame transfer failed, skipping frame", "error", err)
	if p.onTransferError != nil {
		p.onTransferError()
	}
}

// HardwareName reports the hardware decode device in use, "" when decoding
// in software.
func (p *Pipeline) HardwareName() string {
	if p.hw == nil {
		return ""
	}
	return p.hw.name
}

// ReadFrame blocks until the next frame is decoded and returns it together
// with its presentation timestamp in milliseconds. GPU-resident frames are
// transferred to system memory first; a failed transfer logs and skips that
// frame rather than terminating the stream. The returned frame is owned by
// the pipeline and is valid until the next ReadFrame call. io.EOF marks the
// end of the stream.
func (p *Pipeline) ReadFrame(ctx context.Context) (*astiav.Frame, int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		if err := p.cc.ReceiveFrame(p.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return nil, 0, io.EOF
			}
			if errors.Is(err, astiav.ErrEagain) {
				if err := p.feedPacket(); err != nil {
					if errors.Is(err, io.EOF) {
						return nil, 0, io.EOF
					}
					return nil, 0, err
				}
				continue
			}
			return nil, 0, fmt.Errorf("decode: receive frame: %w", err)
		}

		out := p.frame
		if p.hw != nil && p.frame.PixelFormat() == p.hw.pixelFormat {
			p.swFrame.Unref()
			if err := p.frame.TransferHardwareData(p.swFrame); err != nil {
				p.transferFailed(err)
				p.frame.Unref()
				continue
			}
			p.swFrame.SetPts(p.frame.Pts())
			p.swFrame.SetPktDts(p.frame.PktDts())
			p.frame.Unref()
			out = p.swFrame
		}

		pts := out.Pts()
		if pts == astiav.NoPtsValue {
			pts = out.PktDts()
		}
		return out, ptsToMs(pts, p.tbNum, p.tbDen), nil
	}
}

// feedPacket pushes the next packet of the video stream into the decoder,
// flushing it at end of input. io.EOF means the decoder has been given
// everything; the receive side will drain remaining frames and then report
// EOF itself.
func (p *Pipeline) feedPacket() error {
	for {
		if err := p.fc.ReadFrame(p.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				if p.flushed {
					return io.EOF
				}
				p.flushed = true
				if err := p.cc.SendPacket(nil); err != nil {
					return fmt.Errorf("decode: flush decoder: %w", err)
				}
				return nil
			}
			return fmt.Errorf("decode: read packet: %w", err)
		}
		if p.pkt.StreamIndex() != p.streamIdx {
			p.pkt.Unref()
			continue
		}
		err := p.cc.SendPacket(p.pkt)
		p.pkt.Unref()
		if err != nil {
			return fmt.Errorf("decode: send packet: %w", err)
		}
		return nil
	}
}

// Seek jumps to posMs, best effort: the demuxer lands on the preceding
// keyframe and the decoder is flushed, so the next decoded frame may precede
// the target slightly.
func (p *Pipeline) Seek(posMs int64) error {
	ts := msToPTS(posMs, p.tbNum, p.tbDen)
	if err := p.fc.SeekFrame(p.streamIdx, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("decode: seek to %dms: %w", posMs, err)
	}
	p.cc.FlushBuffers()
	p.flushed = false
	return nil
}

// Close releases every FFmpeg context the pipeline holds.
func (p *Pipeline) Close() error {
	if p.swFrame != nil {
		p.swFrame.Free()
		p.swFrame = nil
	}
	if p.frame != nil {
		p.frame.Free()
		p.frame = nil
	}
	if p.pkt != nil {
		p.pkt.Free()
		p.pkt = nil
	}
	if p.cc != nil {
		p.cc.Free()
		p.cc = nil
	}
	if p.hw != nil {
		p.hw.close()
		p.hw = nil
	}
	if p.fc != nil {
		p.fc.CloseInput()
		p.fc.Free()
		p.fc = nil
	}
	return nil
}
