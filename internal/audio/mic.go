package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

var ErrMicClosed = errors.New("microphone stream closed")

// Mic captures mono PCM16 from the default input device. While muted it
// keeps streaming silence so the transcription socket stays open.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
	muted  atomic.Bool
	closed atomic.Bool
}

// NewMic opens a PortAudio capture stream with the given sample rate and buffer size (in frames).
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }

func (m *Mic) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	return errors.Join(stopErr, closeErr)
}

func (m *Mic) SetMuted(muted bool) error {
	if m.closed.Load() {
		return ErrMicClosed
	}
	m.muted.Store(muted)
	return nil
}

func (m *Mic) IsMuted() bool { return m.muted.Load() }

// Stream reads from the mic and writes PCM16-LE to w until an error or Close.
func (m *Mic) Stream(w io.Writer) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2)
	silence := make([]int16, len(m.buf))
	for {
		if m.closed.Load() {
			return nil
		}
		if err := m.stream.Read(); err != nil {
			if m.closed.Load() {
				return nil
			}
			return err
		}
		frame := m.buf
		if m.muted.Load() {
			frame = silence
		}
		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, frame); err != nil {
			return err
		}
		if _, err := w.Write(out.Bytes()); err != nil {
			return err
		}
	}
}
