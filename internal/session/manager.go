package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/storage"
	"github.com/sjawhar/ghost-tutor/internal/transcribe"
)

const recapTimeout = 2 * time.Minute

type Options struct {
	Store    Store
	Exporter Exporter
	Recapper Recapper
	Hub      EventBroadcaster
	Voice    call.VoiceClient
	Devices  call.DeviceProber
	Logger   *slog.Logger

	IdleTimeout time.Duration
}

// Manager owns the single call of this daemon. It replaces the controller
// for each new call and records concluded calls.
type Manager struct {
	store       Store
	exporter    Exporter
	recapper    Recapper
	hub         EventBroadcaster
	voice       call.VoiceClient
	devices     call.DeviceProber
	logger      *slog.Logger
	idleTimeout time.Duration

	startMu sync.Mutex

	mu          sync.Mutex
	current     *call.Controller
	unsubscribe func()

	recaps sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:       opts.Store,
		exporter:    opts.Exporter,
		recapper:    opts.Recapper,
		hub:         opts.Hub,
		voice:       opts.Voice,
		devices:     opts.Devices,
		logger:      logger.With("component", "session"),
		idleTimeout: opts.IdleTimeout,
	}
	if m.voice != nil {
		m.unsubscribe = m.voice.Subscribe(m.onVoiceEvent)
	}
	return m
}

// StartCall starts a call with the given companion. It returns once the
// voice client accepted or rejected the start.
func (m *Manager) StartCall(ctx context.Context, companionID string, user User) (call.Snapshot, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	comp, err := m.store.GetCompanion(ctx, companionID)
	if errors.Is(err, sql.ErrNoRows) {
		return call.Snapshot{}, fmt.Errorf("%w: %s", ErrCompanionMissing, companionID)
	}
	if err != nil {
		return call.Snapshot{}, fmt.Errorf("load companion: %w", err)
	}

	m.mu.Lock()
	if m.current != nil {
		if snap := m.current.Snapshot(); snap.Status.InCall() {
			m.mu.Unlock()
			return snap, ErrCallInProgress
		}
		m.current.Close()
	}
	params := call.SessionParameters{
		CompanionID:   comp.ID,
		Subject:       comp.Subject,
		Topic:         comp.Topic,
		Voice:         comp.Voice,
		Style:         comp.Style,
		PresenterName: comp.Name,
		UserName:      user.Name,
		UserAvatar:    user.Avatar,
	}
	ctrl := call.NewController(params, call.Options{
		Voice:       m.voice,
		Devices:     m.devices,
		History:     m,
		Observer:    m,
		Logger:      m.logger,
		IdleTimeout: m.idleTimeout,
	})
	ctrl.Attach()
	m.current = ctrl
	m.mu.Unlock()

	m.logger.Info("starting call", "companion_id", comp.ID, "subject", comp.Subject, "topic", comp.Topic)
	ctrl.Dispatch(ctx, call.ActionStartCall)
	return ctrl.Snapshot(), nil
}

func (m *Manager) EndCall(ctx context.Context) error {
	ctrl := m.controller()
	if ctrl == nil || !ctrl.Snapshot().Status.InCall() {
		return ErrNoActiveCall
	}
	ctrl.Dispatch(ctx, call.ActionEndCall)
	return nil
}

func (m *Manager) ToggleMute(ctx context.Context) (call.Snapshot, error) {
	ctrl := m.controller()
	if ctrl == nil || ctrl.Snapshot().Status != call.StatusActive {
		return call.Snapshot{}, ErrNoActiveCall
	}
	ctrl.Dispatch(ctx, call.ActionToggleMute)
	return ctrl.Snapshot(), nil
}

// Snapshot returns the current call state, or an inactive snapshot when no
// call was ever started.
func (m *Manager) Snapshot() call.Snapshot {
	ctrl := m.controller()
	if ctrl == nil {
		return call.Snapshot{Status: call.StatusInactive, Transcript: []call.TranscriptEntry{}}
	}
	return ctrl.Snapshot()
}

// Shutdown ends a live call and waits for pending recaps.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.EndCall(ctx); err != nil && !errors.Is(err, ErrNoActiveCall) {
		return err
	}

	m.mu.Lock()
	if m.current != nil {
		m.current.Close()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.recaps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for recaps: %w", ctx.Err())
	}
}

// CallStateChanged forwards controller snapshots to the UI.
func (m *Manager) CallStateChanged(snap call.Snapshot) {
	if m.hub != nil {
		m.hub.BroadcastCallState(snap)
	}
}

// AddToSessionHistory persists a concluded call, exports its transcript and
// schedules its recap.
func (m *Manager) AddToSessionHistory(ctx context.Context, rec call.HistoryRecord) error {
	inserted, err := m.store.AddToSessionHistory(ctx, rec)
	if err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	if !inserted {
		m.logger.Debug("call already recorded", "call_id", rec.CallID)
		return nil
	}

	var comp storage.Companion
	if c, err := m.store.GetCompanion(ctx, rec.CompanionID); err == nil {
		comp = c
	} else {
		m.logger.Warn("companion lookup for export failed", "companion_id", rec.CompanionID, "error", err)
	}

	if m.exporter != nil {
		if path, err := m.exporter.AppendCall(rec, comp.Name); err != nil {
			m.logger.Error("transcript export failed", "call_id", rec.CallID, "error", err)
		} else {
			m.logger.Info("transcript exported", "call_id", rec.CallID, "path", path)
		}
	}

	if m.hub != nil {
		m.hub.BroadcastCallRecorded(rec.CallID, rec.CompanionID)
	}

	m.recaps.Add(1)
	go func() {
		defer m.recaps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recapTimeout)
		defer cancel()
		m.generateRecap(ctx, rec, comp)
	}()
	return nil
}

func (m *Manager) generateRecap(ctx context.Context, rec call.HistoryRecord, comp storage.Companion) {
	if m.recapper == nil {
		m.updateRecap(ctx, rec.CallID, "", storage.RecapCompleted)
		return
	}
	m.updateRecap(ctx, rec.CallID, "", storage.RecapRunning)

	var b strings.Builder
	for _, line := range transcribe.Lines(rec.Transcript, comp.Name, rec.UserName) {
		b.WriteString(line.Speaker)
		b.WriteString(": ")
		b.WriteString(line.Content)
		b.WriteString("\n")
	}

	recap, err := m.recapper.Recap(ctx, rec.CallID, comp.Topic, b.String())
	if err != nil {
		m.logger.Error("recap generation failed", "call_id", rec.CallID, "error", err)
		m.updateRecap(ctx, rec.CallID, "", storage.RecapFailed)
		m.broadcastRecap(rec.CallID, "", storage.RecapFailed)
		return
	}

	if !m.updateRecap(ctx, rec.CallID, recap, storage.RecapCompleted) {
		m.updateRecap(ctx, rec.CallID, "", storage.RecapFailed)
		m.broadcastRecap(rec.CallID, "", storage.RecapFailed)
		return
	}
	m.broadcastRecap(rec.CallID, recap, storage.RecapCompleted)
}

func (m *Manager) updateRecap(ctx context.Context, callID, recap, status string) bool {
	if err := m.store.UpdateRecap(ctx, callID, recap, status); err != nil {
		m.logger.Error("update recap failed", "call_id", callID, "status", status, "error", err)
		return false
	}
	return true
}

func (m *Manager) broadcastRecap(callID, recap, status string) {
	if m.hub != nil {
		m.hub.BroadcastRecapReady(callID, recap, status)
	}
}

// onVoiceEvent relays interim user speech, which the controller does not keep.
func (m *Manager) onVoiceEvent(ev call.Event) {
	t, ok := ev.(call.Transcript)
	if !ok || t.Final || t.Role != call.RoleUser || m.hub == nil {
		return
	}
	m.hub.BroadcastInterimTranscript(m.Snapshot().CallID, t.Text)
}

func (m *Manager) controller() *call.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
