// Package producer runs the decode loop of the itk daemon: it applies
// playback commands to the state machine, pulls decoded frames from the
// source, paces them against the wall clock, and publishes them into the
// shared-memory frame buffer.
package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itklabs/itk/control"
	"github.com/itklabs/itk/frame"
	"github.com/itklabs/itk/media"
	"github.com/itklabs/itk/metrics"
	"github.com/itklabs/itk/playback"
)

// maxFrameDelay caps how long the loop sleeps waiting for a frame's
// presentation time, bounding the damage of a wild timestamp.
const maxFrameDelay = 2 * time.Second

// Source yields decoded frames already scaled to the publisher's output
// geometry. The production implementation wraps the FFmpeg pipeline and the
// scaler; tests substitute stubs.
type Source interface {
	Info() media.VideoInfo
	Next(ctx context.Context) (*media.Frame, error)
	Seek(posMs int64) error
	Close() error
}

// OpenFunc opens a decodable source string. The string is a local path or a
// direct URL; resolution of anything fancier happened before the Load
// command arrived.
type OpenFunc func(source string) (Source, error)

// Publisher is the subset of frame.Writer the producer uses. Accepting an
// interface keeps the loop testable without shared memory.
type Publisher interface {
	SetContent(id string, durationMs int64)
	WriteFrame(pix []byte, ptsMs int64) (bool, error)
}

// Producer drives frames from a Source into a Publisher under the control
// of the playback state machine. Commands arrive asynchronously via Submit;
// everything else runs on the single Run goroutine.
type Producer struct {
	log    *slog.Logger
	open   OpenFunc
	pub    Publisher
	player *playback.Player
	met    *metrics.Metrics
	cmds   chan control.Command

	src Source

	framesDecoded   atomic.Int64
	framesPublished atomic.Int64
	framesSkipped   atomic.Int64
}

// New creates a producer. met may be nil. If log is nil, slog.Default() is
// used.
func New(open OpenFunc, pub Publisher, met *metrics.Metrics, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		log:    log.With("component", "producer"),
		open:   open,
		pub:    pub,
		player: playback.NewPlayer(),
		met:    met,
		cmds:   make(chan control.Command, 16),
	}
}

// Player exposes the state machine for status reporting.
func (p *Producer) Player() *playback.Player { return p.player }

// Submit queues a command for the run loop. When the queue is full the
// command is dropped with a warning; control traffic is human-scale and a
// full queue means the loop is wedged anyway.
func (p *Producer) Submit(cmd control.Command) {
	select {
	case p.cmds <- cmd:
	default:
		p.log.Warn("command queue full, dropping", "type", cmd.Type)
	}
}

// Stats returns the loop's lifetime counters: decoded, published, skipped.
func (p *Producer) Stats() (decoded, published, skipped int64) {
	return p.framesDecoded.Load(), p.framesPublished.Load(), p.framesSkipped.Load()
}

// Run executes the decode loop until ctx is cancelled. Frames advance only
// in the Playing and Buffering states; otherwise the loop parks on the
// command channel.
func (p *Producer) Run(ctx context.Context) error {
	defer p.closeSource()

	for {
		if !p.active() {
			select {
			case <-ctx.Done():
				return nil
			case cmd := <-p.cmds:
				p.apply(cmd)
			}
			continue
		}

		// Active: drain pending commands without blocking, then step.
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-p.cmds:
			p.apply(cmd)
			continue
		default:
		}

		if err := p.step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// active reports whether the loop should be decoding right now.
func (p *Producer) active() bool {
	if p.src == nil {
		return false
	}
	switch p.player.State() {
	case playback.StatePlaying, playback.StateBuffering:
		return true
	}
	return false
}

func (p *Producer) apply(cmd control.Command) {
	switch cmd.Type {
	case control.CmdLoad:
		p.load(cmd)
	case control.CmdPlay:
		p.player.Play()
	case control.CmdPause:
		p.player.Pause()
	case control.CmdSeek:
		p.seek(cmd.PositionMs)
	case control.CmdSetRate:
		p.player.SetRate(cmd.Rate)
	case control.CmdSetVolume:
		p.player.SetVolume(cmd.Volume)
	case control.CmdStop:
		p.closeSource()
		p.player.Stop()
	default:
		p.log.Warn("unknown command", "type", cmd.Type)
	}
	p.met.SetPlaybackState(p.player.State().String())
}

func (p *Producer) load(cmd control.Command) {
	p.closeSource()
	p.player.BeginLoad(cmd.Source)

	src, err := p.open(cmd.Source)
	if err != nil {
		p.log.Error("load failed", "source", cmd.Source, "error", err)
		p.met.IncDecodeErrors()
		p.player.Fail(err.Error())
		return
	}
	p.src = src

	info := src.Info()
	p.pub.SetContent(info.ContentID, info.DurationMs)

	startMs := cmd.PositionMs
	if startMs > 0 {
		if err := src.Seek(startMs); err != nil {
			p.log.Warn("initial seek failed, starting from zero", "position_ms", startMs, "error", err)
			startMs = 0
		}
	}

	p.player.LoadSucceeded(info, startMs, cmd.Autoplay)
	p.log.Info("loaded",
		"source", cmd.Source,
		"size", info.Width*info.Height,
		"duration_ms", info.DurationMs,
		"codec", info.Codec,
		"live", info.Live,
		"autoplay", cmd.Autoplay,
	)
}

func (p *Producer) seek(posMs int64) {
	if p.src == nil {
		return
	}
	p.player.BeginSeek(posMs)
	target, ok := p.player.SeekTarget()
	if !ok {
		return // seek was invalid in the current state
	}
	if err := p.src.Seek(target); err != nil {
		p.log.Warn("seek failed", "position_ms", target, "error", err)
		p.player.SeekReady(p.player.PositionMs())
	}
}

// step decodes one frame and publishes it according to the current state.
func (p *Producer) step(ctx context.Context) error {
	f, err := p.src.Next(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, io.EOF):
			p.log.Info("end of stream", "position_ms", p.player.PositionMs())
			if _, buffering := p.player.SeekTarget(); buffering {
				// Seek target past the last frame; settle where we are.
				p.player.SeekReady(p.player.PositionMs())
			}
			p.player.Pause()
			p.met.SetPlaybackState(p.player.State().String())
			return nil
		default:
			p.log.Error("decode failed", "error", err)
			p.met.IncDecodeErrors()
			p.closeSource()
			p.player.Fail(err.Error())
			p.met.SetPlaybackState(p.player.State().String())
			return nil
		}
	}
	p.framesDecoded.Add(1)
	p.met.IncFramesDecoded()

	if target, buffering := p.player.SeekTarget(); buffering {
		if f.PTSms < target {
			return nil // discard frames preceding the seek target
		}
		p.publish(f)
		p.player.SeekReady(f.PTSms)
		p.met.SetPlaybackState(p.player.State().String())
		return nil
	}

	if err := p.pace(ctx, f.PTSms); err != nil {
		return nil // cancelled mid-wait; next iteration exits
	}
	p.publish(f)
	return nil
}

// pace sleeps until the player's position reaches the frame's presentation
// time. The player's position already advances with the playback rate, so
// the wall-clock wait shrinks as the rate grows.
func (p *Producer) pace(ctx context.Context, ptsMs int64) error {
	ahead := ptsMs - p.player.PositionMs()
	if ahead <= 0 {
		return nil
	}
	rate := 1.0
	if info, ok := p.player.VideoInfo(); ok && info.Rate > 0 {
		rate = info.Rate
	}
	d := time.Duration(float64(ahead)/rate) * time.Millisecond
	if d > maxFrameDelay {
		d = maxFrameDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Producer) publish(f *media.Frame) {
	written, err := p.pub.WriteFrame(f.Pix, f.PTSms)
	switch {
	case errors.Is(err, frame.ErrInvalidFrame):
		// Caller error on this one frame; drop it, stream continues.
		p.log.Warn("invalid frame dropped", "pts_ms", f.PTSms, "bytes", len(f.Pix))
	case err != nil:
		p.log.Error("publish failed", "pts_ms", f.PTSms, "error", err)
	case written:
		p.framesPublished.Add(1)
		p.met.IncFramesPublished()
		p.met.SetLastPTS(f.PTSms)
	default:
		p.framesSkipped.Add(1)
		p.met.IncFramesSkipped()
	}
}

func (p *Producer) closeSource() {
	if p.src == nil {
		return
	}
	if err := p.src.Close(); err != nil {
		p.log.Warn("source close failed", "error", err)
	}
	p.src = nil
}
