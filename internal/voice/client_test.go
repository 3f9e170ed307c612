package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

type sourceMock struct {
	mu       sync.Mutex
	muted    bool
	closed   bool
	started  bool
	startErr error
	done     chan struct{}
}

func newSourceMock() *sourceMock {
	return &sourceMock{done: make(chan struct{})}
}

func (s *sourceMock) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.startErr
}

func (s *sourceMock) Stream(w io.Writer) error {
	_, _ = w.Write([]byte{0, 0})
	<-s.done
	return nil
}

func (s *sourceMock) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.muted = muted
	return nil
}

func (s *sourceMock) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *sourceMock) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

type transportMock struct {
	mu        sync.Mutex
	connectOK bool
	stopped   int
	written   int
	onConnect func()
}

func (t *transportMock) Connect() bool {
	if t.onConnect != nil {
		t.onConnect()
	}
	return t.connectOK
}

func (t *transportMock) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
}

func (t *transportMock) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written += len(p)
	return len(p), nil
}

type replierMock struct {
	mu    sync.Mutex
	reply string
	err   error
	turns [][]call.TranscriptEntry
}

func (r *replierMock) Greeting() string { return "Hello, let's start the session." }

func (r *replierMock) Reply(_ context.Context, turns []call.TranscriptEntry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turns)
	return r.reply, r.err
}

type recorderMock struct {
	mu      sync.Mutex
	rate    int
	started int
	ended   int
	callIDs []string
}

func (r *recorderMock) SetSampleRate(rate int)      { r.rate = rate }
func (r *recorderMock) Tee(dst io.Writer) io.Writer { return dst }
func (r *recorderMock) StartCall(callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.callIDs = append(r.callIDs, callID)
	return nil
}
func (r *recorderMock) EndCall() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
	return "data/recordings/x.wav", nil
}

type eventLog struct {
	mu     sync.Mutex
	events []call.Event
}

func (l *eventLog) add(ev call.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []call.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]call.Event(nil), l.events...)
}

func (l *eventLog) count(name string) int {
	n := 0
	for _, ev := range l.snapshot() {
		if call.EventName(ev) == name {
			n++
		}
	}
	return n
}

func (l *eventLog) finals() []call.Transcript {
	var out []call.Transcript
	for _, ev := range l.snapshot() {
		if t, ok := ev.(call.Transcript); ok && t.Final {
			out = append(out, t)
		}
	}
	return out
}

type harness struct {
	client    *Client
	source    *sourceMock
	transport *transportMock
	replier   *replierMock
	recorder  *recorderMock
	log       *eventLog
	cb        api.LiveMessageCallback
	tOptions  *interfaces.LiveTranscriptionOptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:    newSourceMock(),
		transport: &transportMock{connectOK: true},
		replier:   &replierMock{reply: "A fraction is part of a whole."},
		recorder:  &recorderMock{},
		log:       &eventLog{},
	}
	h.client = New(Options{
		Model:      "nova-3",
		SampleRate: 16000,
		Recorder:   h.recorder,
		NewReplier: func(call.SessionParameters, call.Overrides) Replier { return h.replier },
		openSource: func(int, int) (Source, error) { return h.source, nil },
		dial: func(_ context.Context, opts *interfaces.LiveTranscriptionOptions, cb api.LiveMessageCallback) (Transport, error) {
			h.cb = cb
			h.tOptions = opts
			return h.transport, nil
		},
		wait: func(time.Duration) {},
	})
	unsubscribe := h.client.Subscribe(h.log.add)
	t.Cleanup(func() {
		unsubscribe()
		h.client.Stop()
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.client.Start(context.Background(), call.SessionParameters{Subject: "maths"}, call.Overrides{CallID: "call-42", Topic: "Fractions"}))
}

func message(t *testing.T, raw string) *api.MessageResponse {
	t.Helper()
	var msg api.MessageResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return &msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartEmitsCallStartAndGreeting(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.Equal(t, 1, h.log.count("call-start"))
	finals := h.log.finals()
	require.Len(t, finals, 1)
	assert.Equal(t, call.RoleAssistant, finals[0].Role)
	assert.Equal(t, "Hello, let's start the session.", finals[0].Text)

	assert.Equal(t, "nova-3", h.tOptions.Model)
	assert.Equal(t, "linear16", h.tOptions.Encoding)
	assert.True(t, h.tOptions.InterimResults)
	assert.Equal(t, 16000, h.recorder.rate)
	assert.Equal(t, 1, h.recorder.started)
	assert.Equal(t, []string{"call-42"}, h.recorder.callIDs)
	waitFor(t, func() bool {
		h.transport.mu.Lock()
		defer h.transport.mu.Unlock()
		return h.transport.written > 0
	})
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	err := h.client.Start(context.Background(), call.SessionParameters{}, call.Overrides{})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestConnectFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.transport.connectOK = false

	err := h.client.Start(context.Background(), call.SessionParameters{}, call.Overrides{})
	require.Error(t, err)
	assert.Equal(t, 0, h.log.count("call-start"))
	assert.True(t, h.source.closed)

	h.transport.connectOK = true
	h.source = newSourceMock()
	h.start(t)
}

func TestCancelledContextAbortsStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.transport.onConnect = cancel

	err := h.client.Start(ctx, call.SessionParameters{}, call.Overrides{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.log.count("call-start"))
	assert.Equal(t, 0, h.log.count("call-end"))
	assert.Equal(t, 1, h.recorder.ended)
}

func TestStopEmitsCallEndOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.client.Stop()
	h.client.Stop()
	require.NoError(t, h.cb.Close(&api.CloseResponse{}))

	assert.Equal(t, 1, h.log.count("call-end"))
	assert.Equal(t, 1, h.transport.stopped)
	assert.Equal(t, 1, h.recorder.ended)
	assert.True(t, h.source.closed)
}

func TestRemoteCloseEndsCall(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.cb.Close(&api.CloseResponse{}))
	assert.Equal(t, 1, h.log.count("call-end"))
	assert.ErrorIs(t, h.client.SetMuted(context.Background(), true), ErrNotStreaming)
}

func TestMute(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.client.SetMuted(context.Background(), true), ErrNotStreaming)
	assert.False(t, h.client.IsMuted())

	h.start(t)
	require.NoError(t, h.client.SetMuted(context.Background(), true))
	assert.True(t, h.client.IsMuted())
	require.NoError(t, h.client.SetMuted(context.Background(), false))
	assert.False(t, h.client.IsMuted())
}

func TestInterimAndFinalTranscripts(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.cb.Message(message(t, `{
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "what is"}]}
	}`)))
	require.NoError(t, h.cb.Message(message(t, `{
		"is_final": true,
		"speech_final": false,
		"channel": {"alternatives": [{
			"transcript": "what is a",
			"words": [
				{"speaker": 0, "punctuated_word": "What", "start": 0, "end": 0.2},
				{"speaker": 0, "punctuated_word": "is", "start": 0.2, "end": 0.4},
				{"speaker": 0, "punctuated_word": "a", "start": 0.4, "end": 0.5}
			]
		}]}
	}`)))
	require.NoError(t, h.cb.Message(message(t, `{
		"is_final": true,
		"speech_final": true,
		"channel": {"alternatives": [{
			"transcript": "fraction?",
			"words": [{"speaker": 0, "punctuated_word": "fraction?", "start": 0.5, "end": 1.0}]
		}]}
	}`)))

	waitFor(t, func() bool { return len(h.log.finals()) == 3 })
	finals := h.log.finals()
	assert.Equal(t, call.Transcript{Role: call.RoleUser, Text: "What is a fraction?", Final: true}, finals[1])
	assert.Equal(t, call.Transcript{Role: call.RoleAssistant, Text: "A fraction is part of a whole.", Final: true}, finals[2])

	h.replier.mu.Lock()
	defer h.replier.mu.Unlock()
	require.Len(t, h.replier.turns, 1)
	turns := h.replier.turns[0]
	require.Len(t, turns, 2)
	assert.Equal(t, call.RoleAssistant, turns[0].Role)
	assert.Equal(t, "What is a fraction?", turns[1].Content)
}

func TestUtteranceEndFlushes(t *testing.T) {
	h := newHarness(t)
	h.replier.reply = ""
	h.start(t)

	require.NoError(t, h.cb.SpeechStarted(&api.SpeechStartedResponse{}))
	require.NoError(t, h.cb.Message(message(t, `{
		"is_final": true,
		"channel": {"alternatives": [{"transcript": "tell me more"}]}
	}`)))
	require.NoError(t, h.cb.UtteranceEnd(&api.UtteranceEndResponse{}))

	assert.Equal(t, 1, h.log.count("speech-start"))
	assert.Equal(t, 1, h.log.count("speech-end"))
	finals := h.log.finals()
	require.Len(t, finals, 2)
	assert.Equal(t, "tell me more", finals[1].Text)
}

func TestReplyFailureIsNonTerminating(t *testing.T) {
	h := newHarness(t)
	h.replier.err = errors.New("rate limited")
	h.start(t)

	require.NoError(t, h.cb.Message(message(t, `{
		"is_final": true,
		"speech_final": true,
		"channel": {"alternatives": [{"transcript": "hello"}]}
	}`)))

	waitFor(t, func() bool { return h.log.count("error") == 1 })
	for _, ev := range h.log.snapshot() {
		if f, ok := ev.(call.Failure); ok {
			assert.False(t, call.IsTerminating(f))
		}
	}
}

func TestErrorEventsAreClassified(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.cb.Error(&api.ErrorResponse{ErrCode: "NET-0001", Description: "timeout waiting for data"}))
	var failure call.Failure
	for _, ev := range h.log.snapshot() {
		if f, ok := ev.(call.Failure); ok {
			failure = f
		}
	}
	assert.Equal(t, call.ErrorKindMeetingEnded, failure.Kind)
	assert.True(t, call.IsTerminating(failure))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code, description string
		want              call.ErrorKind
	}{
		{"NET-0001", "", call.ErrorKindMeetingEnded},
		{"", "websocket: close 1006 (abnormal closure)", call.ErrorKindTransport},
		{"", "dial tcp: lookup api.deepgram.com: no such host", call.ErrorKindConnection},
		{"401", "Unauthorized", call.ErrorKindEjected},
		{"DATA-0000", "could not process audio", call.ErrorKindOther},
		{"", "something odd", call.ErrorKindUnknown},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, classify(tc.code, tc.description), "%s %s", tc.code, tc.description)
	}
}

func TestEventsAfterStopAreDropped(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.client.Stop()
	before := len(h.log.snapshot())

	require.NoError(t, h.cb.SpeechStarted(&api.SpeechStartedResponse{}))
	require.NoError(t, h.cb.Error(&api.ErrorResponse{Description: "connection reset"}))
	assert.Len(t, h.log.snapshot(), before)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t)
	other := &eventLog{}
	unsubscribe := h.client.Subscribe(other.add)
	unsubscribe()
	unsubscribe()

	h.start(t)
	assert.Empty(t, other.snapshot())
	assert.Equal(t, 1, h.log.count("call-start"))
}
