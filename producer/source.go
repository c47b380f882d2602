package producer

import (
	"context"
	"log/slog"

	"github.com/itklabs/itk/decode"
	"github.com/itklabs/itk/media"
	"github.com/itklabs/itk/metrics"
	"github.com/itklabs/itk/scale"
)

// OpenVideo returns the production OpenFunc: FFmpeg decoding with best-effort
// hardware acceleration, scaled to width x height RGBA. met may be nil.
func OpenVideo(width, height int, met *metrics.Metrics, log *slog.Logger) OpenFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(source string) (Source, error) {
		p, err := decode.Open(source, log)
		if err != nil {
			return nil, err
		}
		p.OnTransferError(met.IncHWTransferErrors)
		return &videoSource{
			log: log.With("component", "source"),
			p:   p,
			sc:  scale.New(width, height),
		}, nil
	}
}

type videoSource struct {
	log *slog.Logger
	p   *decode.Pipeline
	sc  *scale.Scaler
}

func (v *videoSource) Info() media.VideoInfo { return v.p.Info() }

func (v *videoSource) Next(ctx context.Context) (*media.Frame, error) {
	for {
		f, ptsMs, err := v.p.ReadFrame(ctx)
		if err != nil {
			return nil, err
		}
		pix, err := v.sc.Scale(f)
		if err != nil {
			// One bad frame; the next one usually scales fine.
			v.log.Warn("scale failed, skipping frame", "pts_ms", ptsMs, "error", err)
			continue
		}
		return &media.Frame{
			Width:  v.sc.Width(),
			Height: v.sc.Height(),
			Pix:    pix,
			PTSms:  ptsMs,
		}, nil
	}
}

func (v *videoSource) Seek(posMs int64) error { return v.p.Seek(posMs) }

func (v *videoSource) Close() error {
	v.sc.Close()
	return v.p.Close()
}
