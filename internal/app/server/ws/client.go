package ws

import (
	"context"
	"errors"
	"sync"
)

// RuntimeClient pairs one websocket with a buffered outbound queue so a
// slow reader cannot block room broadcasts.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	id     string
	userID string
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, ws *WebSocket, id, userID string) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		id:     id,
		userID: userID,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() string     { return c.id }
func (c *RuntimeClient) UserID() string { return c.userID }

// Send queues data for the write loop. The out channel is never closed,
// only abandoned via ctx, so Send can race Close without panicking.
func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return errors.New("client closed")
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return errors.New("client closed")
	}
}

func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
