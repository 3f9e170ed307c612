package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestProberCountsInputCapableDevices(t *testing.T) {
	p := &Prober{devices: func() ([]*portaudio.DeviceInfo, error) {
		return []*portaudio.DeviceInfo{
			{Name: "Built-in Microphone", MaxInputChannels: 1},
			{Name: "Speakers", MaxOutputChannels: 2},
			nil,
			{Name: "USB Headset", MaxInputChannels: 2, MaxOutputChannels: 2},
		}, nil
	}}

	n, err := p.CountInputDevices(context.Background())
	if err != nil {
		t.Fatalf("CountInputDevices failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 input devices, got %d", n)
	}
}

func TestProberNoInputDevices(t *testing.T) {
	p := &Prober{devices: func() ([]*portaudio.DeviceInfo, error) {
		return []*portaudio.DeviceInfo{{Name: "HDMI", MaxOutputChannels: 8}}, nil
	}}

	n, err := p.CountInputDevices(context.Background())
	if err != nil {
		t.Fatalf("CountInputDevices failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 input devices, got %d", n)
	}
}

func TestProberPropagatesEnumerationError(t *testing.T) {
	p := &Prober{devices: func() ([]*portaudio.DeviceInfo, error) {
		return nil, errors.New("host api unavailable")
	}}

	if _, err := p.CountInputDevices(context.Background()); err == nil {
		t.Fatal("expected enumeration error")
	}
}

func TestProberHonorsCanceledContext(t *testing.T) {
	called := false
	p := &Prober{devices: func() ([]*portaudio.DeviceInfo, error) {
		called = true
		return nil, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.CountInputDevices(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("device enumeration should not run with a canceled context")
	}
}
