package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	apperrors "ringlink/pkg/errors"
	"ringlink/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Event kinds pushed to clients through the gateway.
const (
	EventIncomingCall     = "incoming_call"
	EventCallStarted      = "call_started"
	EventCallActive       = "call_active"
	EventCallEnded        = "call_ended"
	EventCallMissed       = "call_missed"
	EventCallDeclined     = "call_declined"
	EventCallTick         = "call_tick"
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
)

// Sound cues. The caller hears ringback, the callee a ringtone.
const (
	cueRingback = "ringback"
	cueRingtone = "ringtone"
)

// CallMetrics receives lifecycle observations; a nil implementation
// disables metrics.
type CallMetrics interface {
	RecordCallStarted(callType domain.CallType)
	RecordCallAnswered(ringDuration time.Duration)
	RecordCallFinished(status domain.CallStatus, talkDuration time.Duration)
	RecordRecordingStarted()
	RecordRecordingStopped()
}

// peerCall is one side's live view of a call. The session is nil on the
// callee side until Answer acquires media.
type peerCall struct {
	userID domain.UserID
	state  domain.CallState

	session      ports.MediaSession
	channel      ports.SignalingChannel
	pendingOffer *webrtc.SessionDescription

	ringTimer  *time.Timer
	tickStop   chan struct{}
	tickOnce   sync.Once
	createdAt  time.Time
	answeredAt time.Time
}

// CallManager implements ports.CallService. It keeps one peerCall per
// registered user and refuses to start or deliver a second call while one
// exists.
type CallManager struct {
	calls      ports.CallRepository
	membership ports.MembershipRepository
	bus        ports.SignalingBus
	newSession ports.MediaSessionFactory
	recorder   ports.Recorder
	sounds     ports.SoundPlayer
	events     ports.EventSink
	metrics    CallMetrics

	ringTimeout  time.Duration
	tickInterval time.Duration
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	registered map[domain.UserID]struct{}
	active     map[domain.UserID]*peerCall
}

func NewCallManager(
	calls ports.CallRepository,
	membership ports.MembershipRepository,
	bus ports.SignalingBus,
	newSession ports.MediaSessionFactory,
	recorder ports.Recorder,
	sounds ports.SoundPlayer,
	events ports.EventSink,
	metrics CallMetrics,
	ringTimeout time.Duration,
	tickInterval time.Duration,
	logger *zap.SugaredLogger,
) *CallManager {
	if sounds == nil {
		sounds = noopSounds{}
	}
	return &CallManager{
		calls:        calls,
		membership:   membership,
		bus:          bus,
		newSession:   newSession,
		recorder:     recorder,
		sounds:       sounds,
		events:       events,
		metrics:      metrics,
		ringTimeout:  ringTimeout,
		tickInterval: tickInterval,
		logger:       logger,
		registered:   make(map[domain.UserID]struct{}),
		active:       make(map[domain.UserID]*peerCall),
	}
}

// Start subscribes to call record events so registered peers observe
// incoming calls and remote status transitions.
func (m *CallManager) Start(ctx context.Context) error {
	return m.calls.Subscribe(ctx, ports.CallObserver{
		OnInsert: m.onCallInsert,
		OnUpdate: m.onCallUpdate,
	})
}

func (m *CallManager) RegisterPeer(userID domain.UserID) {
	m.mu.Lock()
	m.registered[userID] = struct{}{}
	m.mu.Unlock()
}

func (m *CallManager) UnregisterPeer(userID domain.UserID) {
	m.mu.Lock()
	delete(m.registered, userID)
	m.mu.Unlock()
}

func (m *CallManager) StartCall(ctx context.Context, callerID domain.UserID, conversationID domain.ConversationID, callType domain.CallType) (*domain.CallState, error) {
	if !callType.Valid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown call type: %s", callType))
	}

	m.mu.Lock()
	if _, busy := m.active[callerID]; busy {
		m.mu.Unlock()
		return nil, domain.ErrCallInProgress
	}
	m.mu.Unlock()

	ok, err := m.membership.IsMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, domain.ErrNotMember
	}

	// Media first. A denied permission aborts setup before anything is
	// written, so denial leaves zero record rows behind.
	session := m.newSession(callerID)
	if err := session.AcquireLocalMedia(ctx, callType); err != nil {
		return nil, err
	}

	callID := domain.CallID(utils.GenerateCallID())
	now := time.Now()

	channel, err := m.bus.Open(ctx, callID)
	if err != nil {
		session.Teardown()
		return nil, fmt.Errorf("failed to open signaling channel: %w", err)
	}

	pc := &peerCall{
		userID: callerID,
		state: domain.CallState{
			CallID:         callID,
			ConversationID: conversationID,
			CallerID:       callerID,
			Type:           callType,
			Status:         domain.CallStatusRinging,
			Outgoing:       true,
		},
		session:   session,
		channel:   channel,
		createdAt: now,
		tickStop:  make(chan struct{}),
	}
	channel.OnMessage(m.signalHandler(callerID, callID))
	session.AttachChannel(channel)
	session.SetOnDegraded(func() { m.onDegraded(callerID, callID) })

	if err := session.CreatePeerConnection(); err != nil {
		channel.Close()
		session.Teardown()
		return nil, err
	}

	m.mu.Lock()
	if _, busy := m.active[callerID]; busy {
		m.mu.Unlock()
		channel.Close()
		session.Teardown()
		return nil, domain.ErrCallInProgress
	}
	m.active[callerID] = pc
	state := pc.state
	m.mu.Unlock()

	// The insert reaches callee observers before the offer goes out, so
	// an in-process callee is already subscribed when the offer arrives.
	record := &domain.CallRecord{
		ID:             callID,
		ConversationID: conversationID,
		CallerID:       callerID,
		Type:           callType,
		Status:         domain.CallStatusRinging,
		CreatedAt:      now,
	}
	if err := m.calls.Insert(ctx, record); err != nil {
		m.abortLocal(callerID, callID)
		return nil, fmt.Errorf("failed to insert call record: %w", err)
	}

	offer, err := session.CreateOffer(ctx)
	if err != nil {
		m.finish(context.Background(), callerID, callID, domain.CallStatusEnded, EventCallEnded)
		return nil, err
	}
	if err := channel.Send(ctx, domain.SignalMessage{
		Kind:     domain.SignalOffer,
		SDP:      &offer,
		SenderID: callerID,
	}); err != nil {
		// Lost offers are not re-sent; the ring timeout resolves the call.
		m.logger.Warnw("failed to send offer", "call_id", callID, "error", err)
	}

	m.mu.Lock()
	if m.active[callerID] == pc {
		pc.ringTimer = time.AfterFunc(m.ringTimeout, func() { m.onRingTimeout(callerID, callID) })
	}
	m.mu.Unlock()

	m.sounds.Play(callerID, cueRingback)
	if m.metrics != nil {
		m.metrics.RecordCallStarted(callType)
	}

	m.logger.Infow("call started",
		"call_id", callID,
		"conversation_id", conversationID,
		"caller_id", callerID,
		"call_type", callType,
	)
	m.emit(callerID, EventCallStarted, &state)
	return &state, nil
}

func (m *CallManager) Answer(ctx context.Context, userID domain.UserID) (*domain.CallState, error) {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil {
		m.mu.Unlock()
		return nil, domain.ErrNoActiveCall
	}
	if pc.state.Outgoing || pc.state.Status != domain.CallStatusRinging || pc.session != nil {
		m.mu.Unlock()
		return nil, domain.ErrNotRinging
	}
	callID := pc.state.CallID
	callType := pc.state.Type
	m.mu.Unlock()

	session := m.newSession(userID)
	if err := session.AcquireLocalMedia(ctx, callType); err != nil {
		if errors.Is(err, domain.ErrMediaAccessDenied) {
			// The record stays untouched; the caller's ring timer moves it
			// to missed.
			m.abortLocal(userID, callID)
		}
		return nil, err
	}
	session.SetOnDegraded(func() { m.onDegraded(userID, callID) })

	m.mu.Lock()
	if m.active[userID] != pc || pc.state.Status != domain.CallStatusRinging {
		// The call went terminal while the permission prompt was pending.
		m.mu.Unlock()
		session.Teardown()
		return nil, domain.ErrNotRinging
	}
	pc.session = session
	session.AttachChannel(pc.channel)
	pendingOffer := pc.pendingOffer
	m.mu.Unlock()

	if err := session.CreatePeerConnection(); err != nil {
		m.abortLocal(userID, callID)
		return nil, err
	}
	if pendingOffer == nil {
		// The offer was broadcast before this peer subscribed and is gone.
		m.abortLocal(userID, callID)
		return nil, fmt.Errorf("no offer received for call %s", callID)
	}
	if err := session.SetRemoteDescription(*pendingOffer); err != nil {
		m.abortLocal(userID, callID)
		return nil, fmt.Errorf("failed to apply offer: %w", err)
	}

	answer, err := session.CreateAnswer(ctx)
	if err != nil {
		m.abortLocal(userID, callID)
		return nil, err
	}
	if err := pc.channel.Send(ctx, domain.SignalMessage{
		Kind:     domain.SignalAnswer,
		SDP:      &answer,
		SenderID: userID,
	}); err != nil {
		m.logger.Warnw("failed to send answer", "call_id", callID, "error", err)
	}

	now := time.Now()
	m.mu.Lock()
	pc.state.Status = domain.CallStatusActive
	pc.answeredAt = now
	state := pc.state
	m.mu.Unlock()

	m.sounds.Stop(userID)
	m.startTicker(pc)

	status := domain.CallStatusActive
	if _, err := m.calls.Update(ctx, callID, domain.CallUpdate{Status: &status, StartedAt: &now}); err != nil {
		if errors.Is(err, domain.ErrCallTerminal) {
			// The caller gave up while the prompt was pending.
			m.abortLocal(userID, callID)
			return nil, domain.ErrCallTerminal
		}
		m.logger.Warnw("failed to mark call active", "call_id", callID, "error", err)
	}

	if m.metrics != nil {
		m.metrics.RecordCallAnswered(now.Sub(pc.createdAt))
	}
	m.logger.Infow("call answered", "call_id", callID, "user_id", userID)
	m.emit(userID, EventCallActive, &state)
	return &state, nil
}

func (m *CallManager) Decline(ctx context.Context, userID domain.UserID) error {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if pc.state.Outgoing || pc.state.Status != domain.CallStatusRinging {
		m.mu.Unlock()
		return domain.ErrNotRinging
	}
	callID := pc.state.CallID
	m.mu.Unlock()
	return m.finish(ctx, userID, callID, domain.CallStatusDeclined, EventCallDeclined)
}

func (m *CallManager) Hangup(ctx context.Context, userID domain.UserID) error {
	return m.finish(ctx, userID, "", domain.CallStatusEnded, EventCallEnded)
}

func (m *CallManager) ToggleMute(ctx context.Context, userID domain.UserID) (bool, error) {
	session, _, err := m.sessionFor(userID)
	if err != nil {
		return false, err
	}
	return session.ToggleMute()
}

func (m *CallManager) ToggleVideo(ctx context.Context, userID domain.UserID) (bool, error) {
	session, _, err := m.sessionFor(userID)
	if err != nil {
		return false, err
	}
	return session.ToggleVideo()
}

func (m *CallManager) ToggleScreenShare(ctx context.Context, userID domain.UserID) (bool, error) {
	session, callID, err := m.sessionFor(userID)
	if err != nil {
		return false, err
	}
	active, err := session.ToggleScreenShare(ctx)
	if err != nil {
		return false, err
	}
	m.logger.Infow("screen share toggled", "call_id", callID, "active", active)
	return active, nil
}

func (m *CallManager) StartRecording(ctx context.Context, userID domain.UserID) error {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil || pc.session == nil || pc.state.Status != domain.CallStatusActive {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	session := pc.session
	callID := pc.state.CallID
	callerID := pc.state.CallerID
	video := pc.state.Type == domain.CallTypeVideo
	state := pc.state
	m.mu.Unlock()

	if m.recorder == nil {
		return domain.ErrNoRecording
	}

	var remoteVideo *webrtc.TrackRemote
	if video {
		remoteVideo = session.RemoteVideo()
	}
	if err := m.recorder.Start(callID, callerID, session.LocalAudio(), session.RemoteAudio(), remoteVideo); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordRecordingStarted()
	}
	m.emit(userID, EventRecordingStarted, &state)
	return nil
}

func (m *CallManager) StopRecording(ctx context.Context, userID domain.UserID) error {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	callID := pc.state.CallID
	state := pc.state
	m.mu.Unlock()

	if m.recorder == nil {
		return domain.ErrNoRecording
	}
	if err := m.recorder.Stop(ctx, callID); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordRecordingStopped()
	}
	m.emit(userID, EventRecordingStopped, &state)
	return nil
}

func (m *CallManager) CurrentCall(userID domain.UserID) (*domain.CallState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc := m.active[userID]
	if pc == nil {
		return nil, false
	}
	state := pc.state
	return &state, true
}

// finish writes the terminal status, broadcasts call-ended and tears the
// local side down. An empty callID matches whatever call the user has.
func (m *CallManager) finish(ctx context.Context, userID domain.UserID, callID domain.CallID, status domain.CallStatus, eventKind string) error {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil || (callID != "" && pc.state.CallID != callID) {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	delete(m.active, userID)
	pc.state.Status = status
	state := pc.state
	answeredAt := pc.answeredAt
	m.mu.Unlock()

	// Flush the recording before the terminal write so the URL patch can
	// still land on a non-terminal record.
	m.flushRecording(ctx, state.CallID)

	if pc.channel != nil {
		if err := pc.channel.Send(ctx, domain.SignalMessage{
			Kind:     domain.SignalCallEnded,
			SenderID: userID,
		}); err != nil {
			m.logger.Warnw("failed to broadcast call-ended", "call_id", state.CallID, "error", err)
		}
	}

	now := time.Now()
	st := status
	if _, err := m.calls.Update(ctx, state.CallID, domain.CallUpdate{Status: &st, EndedAt: &now}); err != nil {
		// ErrCallTerminal means the remote peer finalized first; both
		// writes carry equivalent terminal fields, so losing the race is
		// harmless.
		if !errors.Is(err, domain.ErrCallTerminal) {
			m.logger.Warnw("failed to write terminal status", "call_id", state.CallID, "error", err)
		}
	}

	m.teardownPeer(pc)

	if m.metrics != nil {
		var talk time.Duration
		if !answeredAt.IsZero() {
			talk = now.Sub(answeredAt)
		}
		m.metrics.RecordCallFinished(status, talk)
	}
	m.logger.Infow("call finished",
		"call_id", state.CallID,
		"user_id", userID,
		"status", status,
	)
	m.emit(userID, eventKind, &state)
	return nil
}

// abortLocal tears down the local side without touching the record.
func (m *CallManager) abortLocal(userID domain.UserID, callID domain.CallID) {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil || pc.state.CallID != callID {
		m.mu.Unlock()
		return
	}
	delete(m.active, userID)
	state := pc.state
	m.mu.Unlock()

	m.teardownPeer(pc)
	m.emit(userID, EventCallEnded, &state)
}

// onRingTimeout fires once per outgoing call. The live state decides; a
// call answered a millisecond before the timer fires is not missed.
func (m *CallManager) onRingTimeout(callerID domain.UserID, callID domain.CallID) {
	m.mu.Lock()
	pc := m.active[callerID]
	if pc == nil || pc.state.CallID != callID || pc.state.Status != domain.CallStatusRinging {
		m.mu.Unlock()
		return
	}
	delete(m.active, callerID)
	pc.state.Status = domain.CallStatusMissed
	state := pc.state
	m.mu.Unlock()

	now := time.Now()
	status := domain.CallStatusMissed
	if _, err := m.calls.Update(context.Background(), callID, domain.CallUpdate{Status: &status, EndedAt: &now}); err != nil {
		if !errors.Is(err, domain.ErrCallTerminal) {
			m.logger.Warnw("failed to mark call missed", "call_id", callID, "error", err)
		}
	}

	m.teardownPeer(pc)
	if m.metrics != nil {
		m.metrics.RecordCallFinished(domain.CallStatusMissed, 0)
	}
	m.logger.Infow("call rang out", "call_id", callID)
	m.emit(callerID, EventCallMissed, &state)
}

func (m *CallManager) onDegraded(userID domain.UserID, callID domain.CallID) {
	m.logger.Warnw("peer connection degraded", "call_id", callID, "user_id", userID)
	if err := m.finish(context.Background(), userID, callID, domain.CallStatusEnded, EventCallEnded); err != nil && !errors.Is(err, domain.ErrNoActiveCall) {
		m.logger.Warnw("failed to finish degraded call", "call_id", callID, "error", err)
	}
}

// onCallInsert delivers ringing state to every registered conversation
// member except the caller.
func (m *CallManager) onCallInsert(record *domain.CallRecord) {
	if record.Status != domain.CallStatusRinging {
		return
	}

	m.mu.Lock()
	candidates := make([]domain.UserID, 0, len(m.registered))
	for userID := range m.registered {
		if userID == record.CallerID {
			continue
		}
		if _, busy := m.active[userID]; busy {
			continue
		}
		candidates = append(candidates, userID)
	}
	m.mu.Unlock()

	for _, userID := range candidates {
		ok, err := m.membership.IsMember(context.Background(), record.ConversationID, userID)
		if err != nil {
			m.logger.Warnw("membership check failed",
				"conversation_id", record.ConversationID,
				"user_id", userID,
				"error", err,
			)
			continue
		}
		if !ok {
			continue
		}
		m.deliverIncoming(userID, record)
	}
}

func (m *CallManager) deliverIncoming(userID domain.UserID, record *domain.CallRecord) {
	channel, err := m.bus.Open(context.Background(), record.ID)
	if err != nil {
		m.logger.Warnw("failed to subscribe to call topic", "call_id", record.ID, "error", err)
		return
	}

	pc := &peerCall{
		userID: userID,
		state: domain.CallState{
			CallID:         record.ID,
			ConversationID: record.ConversationID,
			CallerID:       record.CallerID,
			CallerName:     string(record.CallerID),
			Type:           record.Type,
			Status:         domain.CallStatusRinging,
			Outgoing:       false,
		},
		channel:   channel,
		createdAt: time.Now(),
		tickStop:  make(chan struct{}),
	}
	// The handler buffers the offer until Answer builds the session.
	channel.OnMessage(m.signalHandler(userID, record.ID))

	m.mu.Lock()
	if _, busy := m.active[userID]; busy {
		m.mu.Unlock()
		channel.Close()
		return
	}
	m.active[userID] = pc
	state := pc.state
	m.mu.Unlock()

	m.sounds.Play(userID, cueRingtone)
	m.logger.Infow("incoming call delivered", "call_id", record.ID, "user_id", userID)
	m.emit(userID, EventIncomingCall, &state)
}

// onCallUpdate mirrors remote transitions: ringing peers activate when the
// record turns active, and any peer tears down on a terminal status
// without re-writing the record.
func (m *CallManager) onCallUpdate(record *domain.CallRecord) {
	var activated []*peerCall
	var activatedStates []domain.CallState
	var mirrored []*peerCall
	var mirroredStates []domain.CallState

	m.mu.Lock()
	for userID, pc := range m.active {
		if pc.state.CallID != record.ID {
			continue
		}
		switch {
		case record.Status == domain.CallStatusActive && pc.state.Status == domain.CallStatusRinging:
			pc.state.Status = domain.CallStatusActive
			pc.answeredAt = time.Now()
			if pc.ringTimer != nil {
				pc.ringTimer.Stop()
			}
			activated = append(activated, pc)
			activatedStates = append(activatedStates, pc.state)
		case record.Status.Terminal():
			delete(m.active, userID)
			pc.state.Status = record.Status
			mirrored = append(mirrored, pc)
			mirroredStates = append(mirroredStates, pc.state)
		}
	}
	m.mu.Unlock()

	for i, pc := range activated {
		m.sounds.Stop(pc.userID)
		m.startTicker(pc)
		m.emit(pc.userID, EventCallActive, &activatedStates[i])
	}
	for i, pc := range mirrored {
		m.teardownPeer(pc)
		if m.metrics != nil {
			m.metrics.RecordCallFinished(record.Status, 0)
		}
		m.emit(pc.userID, EventCallEnded, &mirroredStates[i])
	}
}

// signalHandler consumes the call's broadcast topic for one peer. Own
// messages are discarded by sender id.
func (m *CallManager) signalHandler(userID domain.UserID, callID domain.CallID) func(msg domain.SignalMessage) {
	return func(msg domain.SignalMessage) {
		if msg.SenderID == userID {
			return
		}

		m.mu.Lock()
		pc := m.active[userID]
		if pc == nil || pc.state.CallID != callID {
			m.mu.Unlock()
			return
		}
		session := pc.session
		if msg.Kind == domain.SignalOffer && session == nil {
			if msg.SDP != nil {
				sdp := *msg.SDP
				pc.pendingOffer = &sdp
			}
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		switch msg.Kind {
		case domain.SignalOffer:
			if msg.SDP != nil {
				if err := session.SetRemoteDescription(*msg.SDP); err != nil {
					m.logger.Warnw("failed to apply offer", "call_id", callID, "error", err)
				}
			}
		case domain.SignalAnswer:
			if session != nil && msg.SDP != nil {
				if err := session.SetRemoteDescription(*msg.SDP); err != nil {
					m.logger.Warnw("failed to apply answer", "call_id", callID, "error", err)
				}
			}
		case domain.SignalICECandidate:
			if session != nil && msg.Candidate != nil {
				if err := session.AddICECandidate(*msg.Candidate); err != nil {
					m.logger.Debugw("failed to add ICE candidate", "call_id", callID, "error", err)
				}
			}
		case domain.SignalCallEnded:
			m.mirrorEnded(userID, callID)
		}
	}
}

// mirrorEnded handles the remote call-ended broadcast: local teardown, no
// record write. The record update carries the authoritative status.
func (m *CallManager) mirrorEnded(userID domain.UserID, callID domain.CallID) {
	m.mu.Lock()
	pc := m.active[userID]
	if pc == nil || pc.state.CallID != callID {
		m.mu.Unlock()
		return
	}
	delete(m.active, userID)
	pc.state.Status = domain.CallStatusEnded
	state := pc.state
	m.mu.Unlock()

	m.teardownPeer(pc)
	if m.metrics != nil {
		m.metrics.RecordCallFinished(domain.CallStatusEnded, 0)
	}
	m.emit(userID, EventCallEnded, &state)
}

func (m *CallManager) sessionFor(userID domain.UserID) (ports.MediaSession, domain.CallID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc := m.active[userID]
	if pc == nil || pc.session == nil {
		return nil, "", domain.ErrNoActiveCall
	}
	return pc.session, pc.state.CallID, nil
}

func (m *CallManager) startTicker(pc *peerCall) {
	go func() {
		ticker := time.NewTicker(m.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pc.tickStop:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.active[pc.userID] != pc {
					m.mu.Unlock()
					return
				}
				pc.state.DurationSeconds++
				state := pc.state
				m.mu.Unlock()
				m.emit(pc.userID, EventCallTick, &state)
			}
		}
	}()
}

// teardownPeer releases everything the peer holds. Callers must have
// removed pc from the active map first; map removal is the single gate
// that makes teardown run once.
func (m *CallManager) teardownPeer(pc *peerCall) {
	if pc.ringTimer != nil {
		pc.ringTimer.Stop()
	}
	pc.tickOnce.Do(func() { close(pc.tickStop) })
	m.sounds.Stop(pc.userID)
	m.flushRecording(context.Background(), pc.state.CallID)
	if pc.channel != nil {
		if err := pc.channel.Close(); err != nil {
			m.logger.Warnw("failed to close signaling channel", "call_id", pc.state.CallID, "error", err)
		}
	}
	if pc.session != nil {
		pc.session.Teardown()
	}
}

func (m *CallManager) flushRecording(ctx context.Context, callID domain.CallID) {
	if m.recorder == nil || !m.recorder.Active(callID) {
		return
	}
	if err := m.recorder.Stop(ctx, callID); err != nil && !errors.Is(err, domain.ErrNoRecording) {
		m.logger.Warnw("failed to flush recording", "call_id", callID, "error", err)
	} else if m.metrics != nil {
		m.metrics.RecordRecordingStopped()
	}
}

func (m *CallManager) emit(userID domain.UserID, kind string, state *domain.CallState) {
	if m.events == nil {
		return
	}
	m.events(userID, ports.CallEvent{Kind: kind, State: state})
}

type noopSounds struct{}

func (noopSounds) Play(domain.UserID, string) {}
func (noopSounds) Stop(domain.UserID)         {}

var _ ports.CallService = (*CallManager)(nil)
