package domain

import "errors"

var (
	ErrCallNotFound         = errors.New("call not found")
	ErrCallTerminal         = errors.New("call already in a terminal state")
	ErrCallInProgress       = errors.New("another call is already in progress")
	ErrNoActiveCall         = errors.New("no active call")
	ErrNotRinging           = errors.New("call is not ringing")
	ErrMediaAccessDenied    = errors.New("media device access denied")
	ErrScreenShareCancelled = errors.New("screen capture cancelled")
	ErrRecordingActive      = errors.New("recording already in progress")
	ErrNoRecording          = errors.New("no recording in progress")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotMember            = errors.New("user is not a member of the conversation")
)
