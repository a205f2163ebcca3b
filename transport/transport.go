package transport

import "encoding/json"

// Event is one wire frame: a name and its JSON payload.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler processes the payload of one inbound event.
type Handler func(data json.RawMessage)

// Transport is the connection used by the session layer. Implementations
// must be safe for concurrent Emit calls and must invoke handlers and
// lifecycle callbacks from a single reader goroutine.
type Transport interface {
	// Connect establishes the connection and starts dispatching events.
	Connect() error
	// Emit sends one event with a JSON-serializable payload.
	Emit(event string, payload any) error
	// RegisterHandler sets the handler for an event name. One handler per
	// name; registering again replaces the previous handler.
	RegisterHandler(event string, handler Handler)
	// OnConnect is invoked after every successful connect or reconnect.
	OnConnect(fn func())
	// OnDisconnect is invoked whenever the connection drops, with the
	// reason, before any reconnection attempt.
	OnDisconnect(fn func(reason error))
	// Connected reports whether the connection is currently established.
	Connected() bool
	// Close tears the connection down and disables reconnection.
	Close() error
}
