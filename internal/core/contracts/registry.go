package contracts

import (
	"context"

	"civicstream/internal/core/domain"
)

// Registry is the gateway's room membership layer: it tracks which
// physical connections participate in which broadcast scopes and fans
// envelopes out to them.
type Registry interface {
	// Register adds a connection and auto-joins its personal user room.
	Register(c Client)
	// Unregister removes the connection from every room it joined.
	Unregister(c Client)
	// Join adds the connection to a room; idempotent.
	Join(c Client, room domain.Room)
	// Leave removes the connection from a room; idempotent.
	Leave(c Client, room domain.Room)
	// Broadcast delivers an envelope to every member of a room. When
	// exceptUser is non-empty, connections owned by that user are skipped.
	Broadcast(ctx context.Context, room domain.Room, env domain.Envelope, exceptUser string)
	// BroadcastAll delivers an envelope to every connected client.
	BroadcastAll(ctx context.Context, env domain.Envelope)
}

// Client is the minimal surface the Registry needs to talk to one
// websocket connection.
type Client interface {
	ID() string
	UserID() string
	Send(ctx context.Context, data []byte) error
	Close()
}
