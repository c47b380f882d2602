package decode

import (
	"log/slog"

	"github.com/asticode/go-astiav"
)

// hardwarePreference is the device-type probe order. The first type the
// codec supports and whose device context materializes wins.
var hardwarePreference = []string{"cuda", "vaapi", "videotoolbox", "qsv"}

// hwContext pairs a hardware device context with the pixel format that marks
// frames as GPU-resident, requiring a transfer before CPU-side use.
type hwContext struct {
	device      *astiav.HardwareDeviceContext
	pixelFormat astiav.PixelFormat
	name        string
}

// newHardwareContext tries to create a hardware decode context for codec.
// Every failure path returns nil: no compatible GPU or missing driver is not
// an error, just absence, and the caller continues with software decoding.
func newHardwareContext(codec *astiav.Codec, log *slog.Logger) *hwContext {
	for _, name := range hardwarePreference {
		ht := astiav.FindHardwareDeviceTypeByName(name)
		if ht == astiav.HardwareDeviceTypeNone {
			continue
		}

		pf := astiav.PixelFormatNone
		for _, cfg := range codec.HardwareConfigs() {
			if cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) && cfg.HardwareDeviceType() == ht {
				pf = cfg.PixelFormat()
				break
			}
		}
		if pf == astiav.PixelFormatNone {
			continue
		}

		device, err := astiav.CreateHardwareDeviceContext(ht, "", nil, 0)
		if err != nil {
			log.Debug("hardware device unavailable", "device", name, "error", err)
			continue
		}
		return &hwContext{device: device, pixelFormat: pf, name: name}
	}
	return nil
}

func (h *hwContext) close() {
	h.device.Free()
}
