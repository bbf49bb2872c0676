package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewTransportError("discovery probe failed")
	assert.Equal(t, "TRANSPORT_ERROR: discovery probe failed", err.Error())

	wrapped := WrapError(errors.New("connection refused"), ErrCodeTransport, "discovery probe failed")
	assert.Contains(t, wrapped.Error(), "caused by: connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := WrapError(cause, ErrCodeTimeout, "registration wait expired")

	assert.ErrorIs(t, err, cause)
}

func TestAppError_Reason(t *testing.T) {
	err := NewTransportError("http registration failed").WithReason("http_registration_failed")
	assert.Equal(t, "http_registration_failed", err.Reason())

	assert.Equal(t, "", NewStateError("no session").Reason())
}

func TestGetAppError(t *testing.T) {
	appErr := NewProtocolError("unexpected ack shape")
	chained := fmt.Errorf("handling event: %w", appErr)

	got := GetAppError(chained)
	assert.NotNil(t, got)
	assert.Equal(t, ErrCodeProtocol, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport error", NewTransportError("channel lost"), true},
		{"timeout", NewTimeoutError("registration ack"), true},
		{"protocol error", NewProtocolError("bad payload"), false},
		{"state error", NewStateError("emit before streaming"), false},
		{"invalid input", NewInvalidInputError("agent count"), false},
		{"unwrapped error", errors.New("read: connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
