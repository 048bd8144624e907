package domain

import (
	"time"
)

type CallID string
type ConversationID string
type UserID string

// CallType distinguishes audio-only calls from calls that carry video.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus is the lifecycle state of a call record. Values are stable
// because they are shared between peers through the record store.
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusActive   CallStatus = "active"
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
	CallStatusDeclined CallStatus = "declined"
)

// Terminal reports whether the status is absorbing. A record never leaves
// a terminal status.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusDeclined:
		return true
	}
	return false
}

// CallRecord is the persisted row shared by both peers. It is the single
// arbiter of terminal state; concurrent terminal writes are last-write-wins.
type CallRecord struct {
	ID             CallID         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	CallerID       UserID         `json:"caller_id"`
	Type           CallType       `json:"call_type"`
	Status         CallStatus     `json:"status"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	RecordingURL   string         `json:"recording_url,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CallUpdate is a partial update applied to a call record. Nil fields are
// left untouched.
type CallUpdate struct {
	Status       *CallStatus
	StartedAt    *time.Time
	EndedAt      *time.Time
	RecordingURL *string
}

// RecordingOnly reports whether the update patches the recording URL and
// nothing else. It is the one write allowed on a terminal record: the
// recording flush lands after the record went terminal whenever the other
// peer ends the call first.
func (u CallUpdate) RecordingOnly() bool {
	return u.RecordingURL != nil && u.Status == nil && u.StartedAt == nil && u.EndedAt == nil
}

// CallState is the per-peer, in-memory view of a call. It is created when
// a call is initiated or an incoming call is observed and destroyed on
// teardown; it is never persisted.
type CallState struct {
	CallID          CallID         `json:"call_id"`
	ConversationID  ConversationID `json:"conversation_id"`
	CallerID        UserID         `json:"caller_id"`
	CallerName      string         `json:"caller_name,omitempty"`
	Type            CallType       `json:"call_type"`
	Status          CallStatus     `json:"status"`
	Outgoing        bool           `json:"is_outgoing"`
	DurationSeconds int64          `json:"duration_seconds"`
}
