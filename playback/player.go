// Package playback owns what is currently loaded, playing, or paused, and
// decides which decoded frames reach the shared-memory writer. It is a plain
// mutex-guarded state machine; the decode loop and the control channel mutate
// it from their own goroutines.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/itklabs/itk/media"
)

// State identifies the playback lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateBuffering
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a point-in-time copy of player state, suitable for JSON
// serialization on the status API.
type Snapshot struct {
	State      string           `json:"state"`
	Source     string           `json:"source,omitempty"`
	PositionMs int64            `json:"position_ms"`
	Error      string           `json:"error,omitempty"`
	Video      *media.VideoInfo `json:"video,omitempty"`
}

// Player is the playback state machine. All methods are safe for concurrent
// use. While playing, the externally visible position is derived from the
// wall clock rather than updated every tick, avoiding drift from timer
// granularity.
type Player struct {
	mu        sync.Mutex
	state     State
	source    string // Loading only
	info      media.VideoInfo
	position  int64     // ms; base position for Playing, exact for Paused
	startedAt time.Time // Playing only
	targetMs  int64     // Buffering only: seek target
	errMsg    string    // Error only
	wasPaused bool      // Buffering only: state to return to when ready
}

// NewPlayer returns a player in the Idle state.
func NewPlayer() *Player {
	return &Player{state: StateIdle}
}

// resetLocked clears all content-dependent fields and enters state.
// Callers must hold p.mu.
func (p *Player) resetLocked(state State) {
	p.state = state
	p.source = ""
	p.info = media.VideoInfo{}
	p.position = 0
	p.startedAt = time.Time{}
	p.targetMs = 0
	p.errMsg = ""
	p.wasPaused = false
}

// BeginLoad moves to Loading for the given source. Valid from any state;
// loading new content is also how the Error state is left.
func (p *Player) BeginLoad(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(StateLoading)
	p.source = source
}

// LoadSucceeded installs the decoded stream's info and enters Playing (or
// Paused when autoplay is off) at startMs.
func (p *Player) LoadSucceeded(info media.VideoInfo, startMs int64, autoplay bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
	if p.info.Rate == 0 {
		p.info.Rate = 1.0
	}
	p.source = ""
	p.position = startMs
	if autoplay {
		p.state = StatePlaying
		p.startedAt = time.Now()
	} else {
		p.state = StatePaused
	}
}

// Fail enters the Error state. The message is user visible; the state only
// exits via Stop or a new Load.
func (p *Player) Fail(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(StateError)
	p.errMsg = msg
}

// Play resumes from Paused. In any other state it is a no-op.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return
	}
	p.state = StatePlaying
	p.startedAt = time.Now()
}

// Pause freezes the position. Only meaningful while Playing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return
	}
	p.position = p.positionLocked()
	p.state = StatePaused
}

// BeginSeek enters Buffering targeting posMs. Valid from Playing, Paused,
// and Buffering; whether playback resumes after the seek is remembered.
func (p *Player) BeginSeek(posMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StatePlaying:
		p.wasPaused = false
	case StatePaused:
		p.wasPaused = true
	case StateBuffering:
		// keep the original resume intent
	default:
		return
	}
	if posMs < 0 {
		posMs = 0
	}
	if p.info.DurationMs > 0 && posMs > p.info.DurationMs {
		posMs = p.info.DurationMs
	}
	p.state = StateBuffering
	p.targetMs = posMs
	p.position = posMs
}

// SeekReady leaves Buffering once the pipeline has produced a frame at (or
// past) the target, returning to Playing or Paused at actualMs.
func (p *Player) SeekReady(actualMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateBuffering {
		return
	}
	p.position = actualMs
	if p.wasPaused {
		p.state = StatePaused
	} else {
		p.state = StatePlaying
		p.startedAt = time.Now()
	}
}

// Stop unloads everything and returns to Idle, from any state.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(StateIdle)
}

// SetRate updates the playback rate in place, without a state transition.
// The playing position base is re-anchored so elapsed time already played is
// not rescaled retroactively.
func (p *Player) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate <= 0 || !p.hasVideoLocked() {
		return
	}
	if p.state == StatePlaying {
		p.position = p.positionLocked()
		p.startedAt = time.Now()
	}
	p.info.Rate = rate
}

// SetVolume updates the volume in place, without a state transition.
func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasVideoLocked() {
		return
	}
	if volume < 0 {
		volume = 0
	}
	p.info.Volume = volume
}

// State returns the current lifecycle phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPlaying reports whether frames should be advancing.
func (p *Player) IsPlaying() bool { return p.State() == StatePlaying }

// IsPaused reports whether content is loaded but frozen.
func (p *Player) IsPaused() bool { return p.State() == StatePaused }

// HasVideo reports whether any content is loaded (Playing, Paused, or
// Buffering).
func (p *Player) HasVideo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasVideoLocked()
}

func (p *Player) hasVideoLocked() bool {
	switch p.state {
	case StatePlaying, StatePaused, StateBuffering:
		return true
	}
	return false
}

// VideoInfo returns the loaded video's info and whether one is loaded.
func (p *Player) VideoInfo() (media.VideoInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info, p.hasVideoLocked()
}

// PositionMs returns the externally visible playback position.
func (p *Player) PositionMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() int64 {
	if p.state == StatePlaying {
		rate := p.info.Rate
		if rate <= 0 {
			rate = 1.0
		}
		elapsed := float64(time.Since(p.startedAt).Milliseconds()) * rate
		return p.position + int64(elapsed)
	}
	return p.position
}

// Err returns the error message while in the Error state.
func (p *Player) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

// SeekTarget returns the pending seek position while Buffering.
func (p *Player) SeekTarget() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetMs, p.state == StateBuffering
}

// Snapshot returns a copy of the visible state for the status API.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		State:      p.state.String(),
		Source:     p.source,
		PositionMs: p.positionLocked(),
		Error:      p.errMsg,
	}
	if p.hasVideoLocked() {
		info := p.info
		s.Video = &info
	}
	return s
}
