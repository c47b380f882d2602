package playback

import (
	"testing"
	"time"

	"github.com/itklabs/itk/media"
)

func loadedPlayer(autoplay bool) *Player {
	p := NewPlayer()
	p.BeginLoad("video_a.mp4")
	p.LoadSucceeded(media.VideoInfo{
		ContentID:  "video_a.mp4",
		Width:      1280,
		Height:     720,
		DurationMs: 60_000,
		Codec:      "h264",
		Rate:       1.0,
		Volume:     1.0,
	}, 0, autoplay)
	return p
}

func TestLoadTransitions(t *testing.T) {
	t.Parallel()
	p := NewPlayer()

	if p.State() != StateIdle {
		t.Fatalf("initial state: got %v, want idle", p.State())
	}
	if p.HasVideo() {
		t.Error("idle player should not have video")
	}

	p.BeginLoad("video_a.mp4")
	if p.State() != StateLoading {
		t.Errorf("after BeginLoad: got %v, want loading", p.State())
	}
	if p.HasVideo() {
		t.Error("loading player should not report video yet")
	}

	p.LoadSucceeded(media.VideoInfo{ContentID: "video_a.mp4"}, 0, true)
	if !p.IsPlaying() {
		t.Errorf("after autoplay load: got %v, want playing", p.State())
	}
	if !p.HasVideo() {
		t.Error("playing player should have video")
	}
}

func TestLoadWithoutAutoplayPauses(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(false)

	if !p.IsPaused() {
		t.Errorf("got %v, want paused", p.State())
	}
	if got := p.PositionMs(); got != 0 {
		t.Errorf("position: got %d, want 0", got)
	}
}

func TestLoadFailureEntersError(t *testing.T) {
	t.Parallel()
	p := NewPlayer()
	p.BeginLoad("broken.mp4")
	p.Fail("decode: no video stream")

	if p.State() != StateError {
		t.Fatalf("got %v, want error", p.State())
	}
	if p.Err() != "decode: no video stream" {
		t.Errorf("message: got %q", p.Err())
	}
	if p.HasVideo() {
		t.Error("error state should not report video")
	}

	// Play/Pause/Seek must not leave Error.
	p.Play()
	p.Pause()
	p.BeginSeek(1000)
	if p.State() != StateError {
		t.Errorf("error state left via %v", p.State())
	}

	// Only Stop and Load exit.
	p.Stop()
	if p.State() != StateIdle {
		t.Errorf("after Stop: got %v, want idle", p.State())
	}
}

func TestPlayPauseCycle(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(true)

	p.Pause()
	if !p.IsPaused() {
		t.Fatalf("got %v, want paused", p.State())
	}
	frozen := p.PositionMs()
	time.Sleep(15 * time.Millisecond)
	if got := p.PositionMs(); got != frozen {
		t.Errorf("paused position moved: %d -> %d", frozen, got)
	}

	p.Play()
	if !p.IsPlaying() {
		t.Fatalf("got %v, want playing", p.State())
	}

	// Play from a non-paused state is a no-op.
	p.Play()
	if !p.IsPlaying() {
		t.Errorf("redundant Play changed state to %v", p.State())
	}
}

func TestPositionAdvancesWithWallClock(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(true)

	start := p.PositionMs()
	time.Sleep(30 * time.Millisecond)
	if got := p.PositionMs(); got < start+20 {
		t.Errorf("position barely moved while playing: %d -> %d", start, got)
	}
}

func TestSeekBuffersAndResumes(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(true)

	p.BeginSeek(30_000)
	if p.State() != StateBuffering {
		t.Fatalf("got %v, want buffering", p.State())
	}
	if target, ok := p.SeekTarget(); !ok || target != 30_000 {
		t.Errorf("seek target: got %d,%v", target, ok)
	}
	if !p.HasVideo() {
		t.Error("buffering player should still have video")
	}

	p.SeekReady(30_040)
	if !p.IsPlaying() {
		t.Errorf("after seek from playing: got %v, want playing", p.State())
	}
	if got := p.PositionMs(); got < 30_040 {
		t.Errorf("position: got %d, want >= 30040", got)
	}
}

func TestSeekFromPausedStaysPaused(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(false)

	p.BeginSeek(10_000)
	p.SeekReady(10_000)
	if !p.IsPaused() {
		t.Errorf("after seek from paused: got %v, want paused", p.State())
	}
	if got := p.PositionMs(); got != 10_000 {
		t.Errorf("position: got %d, want 10000", got)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(true)

	p.BeginSeek(999_999)
	if target, _ := p.SeekTarget(); target != 60_000 {
		t.Errorf("target past end: got %d, want 60000", target)
	}

	p.SeekReady(60_000)
	p.BeginSeek(-5)
	if target, _ := p.SeekTarget(); target != 0 {
		t.Errorf("negative target: got %d, want 0", target)
	}
}

func TestSetRateAndVolumeMutateInPlace(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(true)

	p.SetRate(2.0)
	p.SetVolume(0.5)
	if !p.IsPlaying() {
		t.Errorf("SetRate/SetVolume changed state to %v", p.State())
	}
	info, ok := p.VideoInfo()
	if !ok {
		t.Fatal("VideoInfo: not available")
	}
	if info.Rate != 2.0 {
		t.Errorf("rate: got %v, want 2.0", info.Rate)
	}
	if info.Volume != 0.5 {
		t.Errorf("volume: got %v, want 0.5", info.Volume)
	}

	// Invalid values are ignored.
	p.SetRate(0)
	if info, _ := p.VideoInfo(); info.Rate != 2.0 {
		t.Errorf("rate after SetRate(0): got %v, want 2.0", info.Rate)
	}
}

func TestStopFromAnyState(t *testing.T) {
	t.Parallel()

	for _, prep := range []func() *Player{
		func() *Player { return NewPlayer() },
		func() *Player { p := NewPlayer(); p.BeginLoad("x"); return p },
		func() *Player { return loadedPlayer(true) },
		func() *Player { return loadedPlayer(false) },
		func() *Player { p := loadedPlayer(true); p.BeginSeek(5); return p },
		func() *Player { p := NewPlayer(); p.Fail("boom"); return p },
	} {
		p := prep()
		p.Stop()
		if p.State() != StateIdle {
			t.Errorf("Stop: got %v, want idle", p.State())
		}
		if got := p.PositionMs(); got != 0 {
			t.Errorf("position after Stop: got %d, want 0", got)
		}
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	p := loadedPlayer(false)

	s := p.Snapshot()
	if s.State != "paused" {
		t.Errorf("state: got %q, want paused", s.State)
	}
	if s.Video == nil || s.Video.ContentID != "video_a.mp4" {
		t.Error("snapshot should carry video info")
	}

	p.Stop()
	s = p.Snapshot()
	if s.State != "idle" || s.Video != nil {
		t.Errorf("idle snapshot: %+v", s)
	}
}
