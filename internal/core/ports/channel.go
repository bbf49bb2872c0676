package ports

import (
	"context"
	"encoding/json"

	"skyfleet/internal/core/domain"
)

// EventHandler consumes one inbound event payload. Handlers are registered
// in an explicit dispatch table owned by the agent, so routing is
// inspectable and testable without a live channel.
type EventHandler func(payload json.RawMessage)

// Channel is an opaque bidirectional message channel to the control server.
// Emit and EmitBinary are safe to call concurrently from multiple stream
// producers; implementations serialize writes.
type Channel interface {
	Emit(event string, payload interface{}) error
	EmitBinary(event string, metadata interface{}, data []byte) error
	Close() error
}

// Dialer opens a Channel and wires inbound events into the given dispatch
// table. onDisconnect fires exactly once when the channel is lost for any
// reason other than a local Close.
type Dialer interface {
	Dial(ctx context.Context, routes map[string]EventHandler, onDisconnect func(error)) (Channel, error)
}

// RegistrationClient performs server discovery and HTTP registration.
type RegistrationClient interface {
	Discover(ctx context.Context) error
	Register(ctx context.Context, req domain.HTTPRegisterRequest) (domain.SessionToken, error)
}
