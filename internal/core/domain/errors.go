package domain

import "errors"

var (
	ErrNotStreaming        = errors.New("agent is not streaming")
	ErrChannelClosed       = errors.New("channel is closed")
	ErrAlreadyConnected    = errors.New("agent already has an active session")
	ErrRegistrationTimeout = errors.New("session registration acknowledgment timed out")
)
