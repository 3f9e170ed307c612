package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const historyTimeout = 5 * time.Second

type Options struct {
	Voice    VoiceClient
	Devices  DeviceProber
	History  HistoryRecorder
	Observer Observer
	Logger   *slog.Logger

	// IdleTimeout ends an active call after this much silence. Zero disables it.
	IdleTimeout time.Duration

	newCallID func() string
	now       func() time.Time
}

// Controller owns the lifecycle of one companion call. Voice client events
// enter through Handle, user requests through Dispatch.
type Controller struct {
	params   SessionParameters
	voice    VoiceClient
	devices  DeviceProber
	history  HistoryRecorder
	observer Observer
	logger   *slog.Logger
	idle     *idleTimer

	newCallID func() string
	now       func() time.Time

	mu           sync.Mutex
	status       Status
	speaking     bool
	muted        bool
	initializing bool
	transcript   []TranscriptEntry
	current      *callState
	closed       bool
	unsubscribe  func()

	// pending snapshots are queued under mu in state order and delivered by
	// whichever caller holds the notifying role.
	pending   []Snapshot
	notifying bool
}

type callState struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	cancelled bool
	recorded  bool
}

// effects are side effects collected under the lock and run after it is
// released, since the voice client may call back into Handle synchronously.
type effects struct {
	stopVoice bool
	cancel    context.CancelFunc
	record    *HistoryRecord
}

func NewController(params SessionParameters, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newCallID := opts.newCallID
	if newCallID == nil {
		newCallID = uuid.NewString
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		params:    params,
		voice:     opts.Voice,
		devices:   opts.Devices,
		history:   opts.History,
		observer:  opts.Observer,
		logger:    logger.With("companion_id", params.CompanionID),
		newCallID: newCallID,
		now:       now,
		status:    StatusInactive,
	}
	c.idle = newIdleTimer(opts.IdleTimeout, func() {
		c.logger.Info("call idle timeout reached, ending call")
		c.Dispatch(context.Background(), ActionEndCall)
	})
	return c
}

// Attach subscribes the controller to its voice client. Call Close to
// unsubscribe.
func (c *Controller) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil || c.closed {
		return
	}
	c.unsubscribe = c.voice.Subscribe(c.Handle)
}

// Close unsubscribes from the voice client. Events delivered afterwards are
// dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	var cancel context.CancelFunc
	if c.current != nil && c.status == StatusConnecting {
		c.current.cancelled = true
		cancel = c.current.cancel
	}
	c.mu.Unlock()

	c.idle.stop()
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) Params() SessionParameters {
	return c.params
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Dispatch runs a user action. It blocks until the action settles: for
// ActionStartCall that is until the voice client accepted or rejected the
// start.
func (c *Controller) Dispatch(ctx context.Context, action Action) {
	switch action {
	case ActionStartCall:
		c.startCall(ctx)
	case ActionEndCall:
		c.endCall()
	case ActionToggleMute:
		c.toggleMute(ctx)
	default:
		c.logger.Warn("unknown call action", "action", int(action))
	}
}

// Handle applies a voice client event to the state machine.
func (c *Controller) Handle(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var fx effects
	switch e := ev.(type) {
	case CallStarted:
		fx = c.onCallStarted()
	case CallEnded:
		fx = c.onCallEnded()
	case Transcript:
		c.onTranscript(e)
	case SpeechStarted:
		c.speaking = true
		c.idle.speechStarted()
	case SpeechEnded:
		c.speaking = false
		if c.status == StatusActive {
			c.idle.speechEnded()
		}
	case Failure:
		fx = c.onFailure(e)
	default:
		c.logger.Debug("ignoring unknown call event", "event", EventName(ev))
	}

	c.publishLocked()
	c.mu.Unlock()

	c.apply(fx)
	c.notify()
}

func (c *Controller) startCall(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("start requested on closed controller")
		return
	}
	if c.status.InCall() || c.initializing {
		status := c.status
		c.mu.Unlock()
		c.logger.Info("start ignored, call already in progress", "status", status)
		return
	}

	startCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &callState{id: c.newCallID(), startedAt: c.now(), cancel: cancel}
	c.current = call
	c.status = StatusConnecting
	c.initializing = true
	c.muted = false
	c.speaking = false
	c.transcript = nil
	c.publishLocked()
	c.mu.Unlock()
	c.notify()

	logger := c.logger.With("call_id", call.id)

	n, err := c.devices.CountInputDevices(startCtx)
	if err == nil && n == 0 {
		err = ErrNoInputDevice
	}
	if err != nil {
		logger.Warn("call start aborted: audio input probe failed", "error", err)
		c.failStart(call)
		return
	}

	overrides := Overrides{CallID: call.id, Subject: c.params.Subject, Topic: c.params.Topic, Style: c.params.Style}
	if err := c.voice.Start(startCtx, c.params, overrides); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("call start cancelled")
		} else {
			logger.Error("voice client start failed", "error", err)
		}
		c.failStart(call)
		return
	}

	c.mu.Lock()
	cancelled := call.cancelled
	c.mu.Unlock()
	if cancelled {
		// The call was ended while the client was still starting.
		c.voice.Stop()
		return
	}
	logger.Info("voice client started", "subject", c.params.Subject, "topic", c.params.Topic)
}

func (c *Controller) failStart(call *callState) {
	c.mu.Lock()
	if c.current != call {
		c.mu.Unlock()
		call.cancel()
		return
	}
	if c.status == StatusConnecting {
		c.status = StatusInactive
	}
	c.initializing = false
	c.publishLocked()
	c.mu.Unlock()

	call.cancel()
	c.notify()
}

func (c *Controller) endCall() {
	c.mu.Lock()
	var fx effects
	switch c.status {
	case StatusActive:
		// History is recorded when the client confirms with CallEnded.
		c.status = StatusFinished
		c.muted = false
		c.speaking = false
		c.idle.stop()
		fx.stopVoice = true
	case StatusConnecting:
		c.current.cancelled = true
		c.status = StatusInactive
		c.initializing = false
		fx.stopVoice = true
		fx.cancel = c.current.cancel
	default:
		status := c.status
		c.mu.Unlock()
		c.logger.Info("end ignored, no call in progress", "status", status)
		return
	}
	c.publishLocked()
	c.mu.Unlock()

	c.apply(fx)
	c.notify()
}

func (c *Controller) toggleMute(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusActive || c.initializing {
		status := c.status
		c.mu.Unlock()
		c.logger.Debug("mute toggle ignored", "status", status)
		return
	}
	call := c.current
	c.mu.Unlock()

	target := !c.voice.IsMuted()
	err := c.voice.SetMuted(ctx, target)

	c.mu.Lock()
	if c.current != call || c.status != StatusActive {
		c.mu.Unlock()
		return
	}
	var fx effects
	if err != nil {
		c.logger.Error("mute toggle failed, dropping call", "call_id", call.id, "error", err)
		c.status = StatusInactive
		c.muted = false
		c.speaking = false
		c.idle.stop()
		fx.stopVoice = true
		fx.cancel = call.cancel
	} else {
		c.muted = target
	}
	c.publishLocked()
	c.mu.Unlock()

	c.apply(fx)
	c.notify()
}

func (c *Controller) onCallStarted() effects {
	if c.current == nil || c.current.cancelled {
		c.logger.Info("call-start after cancellation, stopping client")
		return effects{stopVoice: true}
	}
	if c.status != StatusConnecting {
		c.logger.Debug("call-start ignored", "status", c.status)
		return effects{}
	}
	c.status = StatusActive
	c.muted = false
	c.initializing = false
	c.logger.Info("call active", "call_id", c.current.id)
	return effects{}
}

func (c *Controller) onCallEnded() effects {
	var fx effects
	switch c.status {
	case StatusActive, StatusConnecting:
		c.status = StatusFinished
		fx = c.concludeLocked()
	case StatusFinished:
		fx = c.concludeLocked()
	default:
		c.logger.Debug("call-end ignored", "status", c.status)
		return fx
	}
	c.muted = false
	c.speaking = false
	c.initializing = false
	c.idle.stop()
	return fx
}

func (c *Controller) onFailure(f Failure) effects {
	if !IsTerminating(f) {
		c.logger.Warn("voice client error", "kind", string(f.Kind), "message", f.Message)
		return effects{}
	}
	if !c.status.InCall() {
		c.logger.Info("terminating error outside a call", "status", c.status, "message", f.Message)
		return effects{}
	}

	c.logger.Error("call terminated by voice client error", "kind", string(f.Kind), "message", f.Message)
	c.status = StatusFinished
	c.muted = false
	c.speaking = false
	c.initializing = false
	c.idle.stop()
	fx := c.concludeLocked()
	fx.stopVoice = true
	return fx
}

func (c *Controller) onTranscript(t Transcript) {
	if !t.Final {
		return
	}
	content := strings.TrimSpace(t.Text)
	if content == "" {
		return
	}
	if c.status != StatusActive {
		c.logger.Debug("transcript dropped outside active call", "status", c.status)
		return
	}
	entry := TranscriptEntry{Role: t.Role, Content: content}
	c.transcript = append([]TranscriptEntry{entry}, c.transcript...)
}

// concludeLocked marks the current call recorded and returns the history
// effect, or nothing when the call was already recorded.
func (c *Controller) concludeLocked() effects {
	call := c.current
	if call == nil || call.recorded {
		return effects{}
	}
	call.recorded = true
	return effects{
		cancel: call.cancel,
		record: &HistoryRecord{
			CallID:      call.id,
			CompanionID: c.params.CompanionID,
			UserName:    c.params.UserName,
			StartedAt:   call.startedAt,
			EndedAt:     c.now(),
			Transcript:  append([]TranscriptEntry(nil), c.transcript...),
		},
	}
}

func (c *Controller) apply(fx effects) {
	if fx.stopVoice {
		c.voice.Stop()
	}
	if fx.cancel != nil {
		fx.cancel()
	}
	if fx.record != nil && c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := c.history.AddToSessionHistory(ctx, *fx.record); err != nil {
			c.logger.Error("add to session history failed", "call_id", fx.record.CallID, "error", err)
		}
	}
}

func (c *Controller) publishLocked() {
	if c.observer != nil {
		c.pending = append(c.pending, c.snapshotLocked())
	}
}

// notify delivers queued snapshots in the order they were taken. A caller
// that finds another delivery in progress leaves its snapshots to it, so
// the observer never sees an older state after a newer one.
func (c *Controller) notify() {
	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, snap := range batch {
			c.observer.CallStateChanged(snap)
		}
		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		CompanionID:  c.params.CompanionID,
		Status:       c.status,
		Speaking:     c.speaking,
		Muted:        c.muted,
		Initializing: c.initializing,
		Transcript:   append([]TranscriptEntry{}, c.transcript...),
	}
	if c.current != nil {
		snap.CallID = c.current.id
	}
	return snap
}
