package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

// Recorder keeps a copy of the user's side of each call. Audio is spooled
// to <dir>/<call id>.pcm and encoded when the call ends.
type Recorder struct {
	dir string

	mu         sync.Mutex
	callID     string
	rawPath    string
	rawFile    *os.File
	sampleRate int

	encode func(rawPath, callID string, sampleRate int) (string, error)
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "recordings")
	}
	r := &Recorder{dir: dir, sampleRate: defaultSampleRate}
	r.encode = r.encodeBest
	return r
}

func (r *Recorder) SetSampleRate(sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
}

// Tee returns a writer that forwards to dst and records what was written.
func (r *Recorder) Tee(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

func (r *Recorder) StartCall(callID string) error {
	if callID == "" {
		return errors.New("call id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create recordings directory: %w", err)
	}
	if r.rawFile != nil {
		_ = r.rawFile.Close()
	}

	rawPath := filepath.Join(r.dir, callID+".pcm")
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	r.callID = callID
	r.rawPath = rawPath
	r.rawFile = rawFile
	return nil
}

// EndCall closes the spool file and returns the encoded recording path.
// It returns "" when no call is being recorded.
func (r *Recorder) EndCall() (string, error) {
	r.mu.Lock()
	if r.rawFile == nil {
		r.mu.Unlock()
		return "", nil
	}
	callID, rawPath, rawFile, rate := r.callID, r.rawPath, r.rawFile, r.sampleRate
	r.callID, r.rawPath, r.rawFile = "", "", nil
	r.mu.Unlock()

	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}

	out, err := r.encode(rawPath, callID, rate)
	if err != nil {
		return "", err
	}
	_ = os.Remove(rawPath)
	return out, nil
}

func (r *Recorder) writePCM(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawFile == nil {
		return nil
	}
	if _, err := r.rawFile.Write(data); err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

// encodeBest tries ffmpeg, then lame, and falls back to a plain wav file.
func (r *Recorder) encodeBest(rawPath, callID string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	mp3Path := filepath.Join(r.dir, callID+".mp3")
	encoders := []struct {
		name string
		cmd  *exec.Cmd
	}{
		{"ffmpeg", exec.Command("ffmpeg", "-y", "-f", "s16le", "-ar", strconv.Itoa(sampleRate), "-ac", "1", "-i", rawPath, mp3Path)},
		{"lame", exec.Command("lame", "-r", "-s", strconv.FormatFloat(float64(sampleRate)/1000.0, 'f', -1, 64), "--bitwidth", "16", "-m", "m", rawPath, mp3Path)},
	}
	for _, enc := range encoders {
		if err := enc.cmd.Run(); err != nil {
			slog.Debug("recording encoder unavailable", "encoder", enc.name, "error", err)
			continue
		}
		return mp3Path, nil
	}

	wavPath := filepath.Join(r.dir, callID+".wav")
	if err := pcmToWav(rawPath, wavPath, sampleRate); err != nil {
		return "", fmt.Errorf("encode wav fallback: %w", err)
	}
	return wavPath, nil
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	pcm, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw pcm data: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	writeWavHeader(&buf, len(pcm), sampleRate, pcmChannels, pcmBitDepth)
	buf.Write(pcm)

	if err := os.WriteFile(wavPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write wav output: %w", err)
	}
	return nil
}

// writeWavHeader writes a canonical 44 byte PCM RIFF header.
func writeWavHeader(buf *bytes.Buffer, dataSize, sampleRate, channels, bitDepth int) {
	le := binary.LittleEndian
	blockAlign := channels * bitDepth / 8

	buf.WriteString("RIFF")
	buf.Write(le.AppendUint32(nil, uint32(36+dataSize)))
	buf.WriteString("WAVEfmt ")
	buf.Write(le.AppendUint32(nil, 16))
	buf.Write(le.AppendUint16(nil, 1))
	buf.Write(le.AppendUint16(nil, uint16(channels)))
	buf.Write(le.AppendUint32(nil, uint32(sampleRate)))
	buf.Write(le.AppendUint32(nil, uint32(sampleRate*blockAlign)))
	buf.Write(le.AppendUint16(nil, uint16(blockAlign)))
	buf.Write(le.AppendUint16(nil, uint16(bitDepth)))
	buf.WriteString("data")
	buf.Write(le.AppendUint32(nil, uint32(dataSize)))
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.recorder.writePCM(p[:n]); err != nil {
		return n, err
	}
	return n, nil
}
