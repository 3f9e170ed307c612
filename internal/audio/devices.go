package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Prober counts capture devices through PortAudio.
type Prober struct {
	devices func() ([]*portaudio.DeviceInfo, error)
}

func NewProber() *Prober {
	return &Prober{devices: portaudio.Devices}
}

// CountInputDevices returns how many devices expose at least one input
// channel. PortAudio must already be initialized (see Init).
func (p *Prober) CountInputDevices(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	devices, err := p.devices()
	if err != nil {
		return 0, fmt.Errorf("enumerate audio devices: %w", err)
	}

	count := 0
	for _, d := range devices {
		if d != nil && d.MaxInputChannels > 0 {
			count++
		}
	}
	return count, nil
}

// Init initializes PortAudio. The returned function terminates it.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return func() {}, fmt.Errorf("initialize portaudio: %w", err)
	}
	return func() { _ = portaudio.Terminate() }, nil
}
