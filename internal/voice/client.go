package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/ghost-tutor/internal/audio"
	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/transcribe"
)

var (
	ErrNotStreaming   = errors.New("voice client is not streaming")
	ErrAlreadyStarted = errors.New("voice client already started")
)

// Source is the local audio capture.
type Source interface {
	Start() error
	Stream(w io.Writer) error
	SetMuted(muted bool) error
	IsMuted() bool
	Close() error
}

// Transport is the live transcription socket.
type Transport interface {
	Connect() bool
	Stop()
	Write(p []byte) (int, error)
}

// Replier produces the companion's turns.
type Replier interface {
	Greeting() string
	Reply(ctx context.Context, turns []call.TranscriptEntry) (string, error)
}

type CallRecorder interface {
	SetSampleRate(sampleRate int)
	Tee(dst io.Writer) io.Writer
	StartCall(callID string) error
	EndCall() (string, error)
}

type Options struct {
	APIKey          string
	Model           string
	Language        string
	SampleRate      int
	FramesPerBuffer int

	// NewReplier builds the companion for a call. Without it the client only
	// transcribes the user.
	NewReplier func(params call.SessionParameters, ov call.Overrides) Replier
	Recorder   CallRecorder
	Logger     *slog.Logger

	openSource func(sampleRate, framesPerBuffer int) (Source, error)
	dial       func(ctx context.Context, opts *interfaces.LiveTranscriptionOptions, cb api.LiveMessageCallback) (Transport, error)
	wait       func(time.Duration)
}

// Client implements call.VoiceClient with local capture and Deepgram live
// transcription.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(call.Event)
	nextID   int
	current  *stream
}

type stream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	source    Source
	transport Transport
	replier   Replier
	callID    string
	recording bool

	opened atomic.Bool
	ended  atomic.Bool

	mu     sync.Mutex
	buffer *transcribe.UtteranceBuffer
	turns  []call.TranscriptEntry

	replyMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 1024
	}
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.openSource == nil {
		opts.openSource = func(rate, frames int) (Source, error) {
			return audio.NewMic(rate, frames)
		}
	}
	if opts.dial == nil {
		apiKey := opts.APIKey
		opts.dial = func(ctx context.Context, tOptions *interfaces.LiveTranscriptionOptions, cb api.LiveMessageCallback) (Transport, error) {
			cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
			dg, err := client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, cb)
			if err != nil {
				return nil, err
			}
			return dg, nil
		}
	}
	if opts.wait == nil {
		opts.wait = time.Sleep
	}
	return &Client{
		opts:     opts,
		logger:   opts.Logger.With("component", "voice"),
		handlers: make(map[int]func(call.Event)),
	}
}

// Init sets up the Deepgram library. Call once per process.
func Init() {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
}

func (c *Client) Subscribe(handler func(call.Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) Start(ctx context.Context, params call.SessionParameters, ov call.Overrides) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{ctx: streamCtx, cancel: cancel, callID: ov.CallID, buffer: transcribe.NewUtteranceBuffer()}
	if s.callID == "" {
		s.callID = time.Now().UTC().Format("20060102150405")
	}
	if c.opts.NewReplier != nil {
		s.replier = c.opts.NewReplier(params, ov)
	}
	c.current = s
	c.mu.Unlock()

	if err := c.connect(s); err != nil {
		c.teardown(s)
		return err
	}
	if err := ctx.Err(); err != nil {
		c.teardown(s)
		return err
	}

	c.logger.Info("voice stream started", "subject", ov.Subject, "topic", ov.Topic, "sample_rate", c.opts.SampleRate)
	c.opened(s)
	return nil
}

func (c *Client) connect(s *stream) error {
	source, err := c.opts.openSource(c.opts.SampleRate, c.opts.FramesPerBuffer)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	s.source = source

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          c.opts.Model,
		Language:       c.opts.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		SampleRate:     c.opts.SampleRate,
		Channels:       1,
	}
	transport, err := c.opts.dial(s.ctx, tOptions, &callback{client: c, stream: s})
	if err != nil {
		return fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := transport.Connect(); !ok {
		return errors.New("deepgram connect failed")
	}
	s.transport = transport

	if err := source.Start(); err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}

	var w io.Writer = transport
	if rec := c.opts.Recorder; rec != nil {
		rec.SetSampleRate(c.opts.SampleRate)
		if err := rec.StartCall(s.callID); err != nil {
			c.logger.Warn("call recording disabled", "error", err)
		} else {
			s.recording = true
			w = rec.Tee(transport)
		}
	}
	go c.pump(s, w)
	return nil
}

// pump streams microphone audio until the stream ends, restarting after
// input overflows.
func (c *Client) pump(s *stream, w io.Writer) {
	for {
		if s.ctx.Err() != nil {
			return
		}
		err := s.source.Stream(w)
		if err == nil || s.ctx.Err() != nil {
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			c.logger.Warn("mic input overflow, restarting stream")
			c.opts.wait(250 * time.Millisecond)
			continue
		}
		c.logger.Error("mic stream failed", "error", err)
		c.emit(call.Failure{Kind: call.ErrorKindTransport, Message: "audio stream failed: " + err.Error()})
		return
	}
}

// Stop ends the current stream and emits call-end once.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.finish(s)
}

func (c *Client) IsMuted() bool {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || s.source == nil {
		return false
	}
	return s.source.IsMuted()
}

func (c *Client) SetMuted(_ context.Context, muted bool) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || s.source == nil || !s.opened.Load() {
		return ErrNotStreaming
	}
	if err := s.source.SetMuted(muted); err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	return nil
}

// opened emits call-start and the companion's greeting once per stream,
// after the socket is connected and audio is flowing.
func (c *Client) opened(s *stream) {
	if s.ended.Load() || s.opened.Swap(true) {
		return
	}
	c.emit(call.CallStarted{})
	if s.replier == nil {
		return
	}
	greeting := s.replier.Greeting()
	if greeting == "" {
		return
	}
	s.mu.Lock()
	s.turns = append(s.turns, call.TranscriptEntry{Role: call.RoleAssistant, Content: greeting})
	s.mu.Unlock()
	c.emit(call.Transcript{Role: call.RoleAssistant, Text: greeting, Final: true})
}

// finish tears the stream down and emits call-end if the stream had opened.
func (c *Client) finish(s *stream) {
	if s.ended.Swap(true) {
		return
	}
	c.teardown(s)
	if s.opened.Load() {
		c.emit(call.CallEnded{})
	}
}

func (c *Client) teardown(s *stream) {
	s.ended.Store(true)
	s.cancel()

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			c.logger.Warn("close microphone failed", "error", err)
		}
	}
	if s.transport != nil {
		s.transport.Stop()
	}
	if s.recording {
		path, err := c.opts.Recorder.EndCall()
		if err != nil {
			c.logger.Warn("finish call recording failed", "error", err)
		} else {
			c.logger.Info("call recording saved", "path", path)
		}
	}
}

func (c *Client) emit(ev call.Event) {
	c.mu.Lock()
	handlers := make([]func(call.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// flush emits the buffered user utterance and asks the companion to answer.
func (c *Client) flush(s *stream) {
	s.mu.Lock()
	text := s.buffer.Flush()
	if text != "" {
		s.turns = append(s.turns, call.TranscriptEntry{Role: call.RoleUser, Content: text})
	}
	s.mu.Unlock()
	if text == "" {
		return
	}

	c.emit(call.Transcript{Role: call.RoleUser, Text: text, Final: true})
	if s.replier != nil {
		go c.respond(s)
	}
}

func (c *Client) respond(s *stream) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	turns := append([]call.TranscriptEntry(nil), s.turns...)
	s.mu.Unlock()
	if len(turns) == 0 || turns[len(turns)-1].Role != call.RoleUser {
		// Already answered by an earlier reply.
		return
	}

	reply, err := s.replier.Reply(s.ctx, turns)
	if s.ctx.Err() != nil || s.ended.Load() {
		return
	}
	if err != nil {
		c.logger.Warn("tutor reply failed", "error", err)
		c.emit(call.Failure{Kind: call.ErrorKindOther, Message: "tutor reply failed: " + err.Error()})
		return
	}
	if reply == "" {
		return
	}

	s.mu.Lock()
	s.turns = append(s.turns, call.TranscriptEntry{Role: call.RoleAssistant, Content: reply})
	s.mu.Unlock()
	c.emit(call.Transcript{Role: call.RoleAssistant, Text: reply, Final: true})
}
