package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// State is the channel connectivity state. It is the only legal way to
// observe connectivity; no consumer may infer it from side channels.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectBaseDelay   = time.Second
)

// ErrAuthRejected marks a handshake the server refused for auth
// reasons. It is never retried; the session must re-authenticate.
var ErrAuthRejected = errors.New("server rejected credentials")

// Conn is one physical channel. Production uses the gorilla-backed
// dialer; tests inject an in-memory pipe.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes a Conn against the gateway.
type Dialer func(ctx context.Context, rawURL, authToken string) (Conn, error)

type Config struct {
	// URL is the gateway websocket endpoint, e.g. ws://host:8080/ws.
	URL string
	// APIBaseURL is the gateway REST base, e.g. http://host:8080.
	APIBaseURL string

	// MaxReconnectAttempts bounds the retry budget (default 5).
	MaxReconnectAttempts int
	// ReconnectBaseDelay is multiplied by the attempt number (default 1s).
	ReconnectBaseDelay time.Duration

	// Dialer overrides the websocket dialer; nil means gorilla.
	Dialer Dialer
	// API overrides the REST collaborator; nil builds a RESTClient
	// from APIBaseURL and the session token at connect time.
	API NotificationAPI

	Logger *slog.Logger
	Alerts AlertSink
	// OnStateChange observes state transitions. Called outside the
	// client's lock; must not call back into the client synchronously.
	OnStateChange func(State)
}

// Client owns the persistent channel for one authenticated session:
// establishing it, authenticating it, detecting loss, reconnecting,
// and fanning inbound events out to the store and the bus. Exactly one
// channel exists per session; nothing else may write the notification
// store or the online-users snapshot.
type Client struct {
	cfg    Config
	log    *slog.Logger
	alerts AlertSink
	bus    *Bus
	store  *NotificationStore

	mu          sync.Mutex
	state       State
	session     domain.Session
	conn        Conn
	gen         uint64
	cancel      context.CancelFunc
	rooms       map[domain.Room]struct{}
	onlineUsers []domain.OnlineUser
}

func New(cfg Config) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	alerts := cfg.Alerts
	if alerts == nil {
		alerts = logSink{log: log}
	}
	c := &Client{
		cfg:    cfg,
		log:    log,
		alerts: alerts,
		bus:    NewBus(),
		rooms:  make(map[domain.Room]struct{}),
	}
	c.store = newNotificationStore(log, alerts)
	return c
}

// Bus returns the cross-component pub/sub registry. It survives
// reconnects and teardowns.
func (c *Client) Bus() *Bus { return c.bus }

// Notifications returns the store/reconciler owned by this client.
func (c *Client) Notifications() *NotificationStore { return c.store }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnlineUsers returns a copy of the latest presence snapshot.
func (c *Client) OnlineUsers() []domain.OnlineUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.OnlineUser(nil), c.onlineUsers...)
}

// Connect constructs the channel for the session. It is a no-op when a
// live channel already exists for the same user and token, and stays
// silently Disconnected for anonymous sessions (the layer is inert for
// them). Transport failures do not surface here: they enter the bounded
// reconnect policy and are observable through State.
func (c *Client) Connect(ctx context.Context, session domain.Session) error {
	c.mu.Lock()
	if c.state != StateDisconnected &&
		c.session.UserID == session.UserID && c.session.AuthToken == session.AuthToken {
		c.mu.Unlock()
		c.log.Debug("realtime - connect - channel already live", logging.User(session.UserID))
		return nil
	}
	if c.state != StateDisconnected {
		// session changed under a live channel: tear down and recreate
		c.teardownLocked()
	}
	c.session = session
	if session.Anonymous() {
		c.mu.Unlock()
		c.log.Warn("realtime - connect - anonymous session, channel stays down")
		return nil
	}
	if tokenExpired(session.AuthToken) {
		c.mu.Unlock()
		c.log.Warn("realtime - connect - auth token expired, channel stays down",
			logging.User(session.UserID))
		return nil
	}
	if c.cancel != nil {
		// abandoned channel left its context behind
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	c.store.bind(c.apiFor(session))
	go c.store.Initialize(runCtx)

	conn, err := c.cfg.Dialer(runCtx, c.cfg.URL, session.AuthToken)
	if err != nil {
		if errors.Is(err, ErrAuthRejected) {
			c.log.Warn("realtime - connect - credentials rejected, channel stays down",
				logging.User(session.UserID))
			c.abandon(gen)
			return nil
		}
		c.log.Warn("realtime - connect - dial failed, entering reconnect",
			logging.User(session.UserID), logging.Err(err))
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return nil
		}
		c.state = StateReconnecting
		c.mu.Unlock()
		c.notifyState(StateReconnecting)
		go c.reconnectLoop(runCtx, gen)
		return nil
	}
	c.establish(runCtx, conn, gen)
	return nil
}

// Disconnect idempotently tears the channel down: room intents and the
// presence snapshot are cleared, handlers are invalidated so no late
// event can mutate state owned by a subsequent session, and the store
// is emptied. Call it synchronously on logout.
func (c *Client) Disconnect() {
	c.mu.Lock()
	changed := c.state != StateDisconnected
	c.teardownLocked()
	c.mu.Unlock()
	c.store.teardown()
	if changed {
		c.notifyState(StateDisconnected)
		c.log.Info("realtime - disconnect - channel torn down")
	}
}

// Emit sends an outbound signal when Connected; otherwise the message
// is dropped with a diagnostic log. Outbound messages are never queued
// across disconnects: callers needing reliability use REST.
func (c *Client) Emit(eventType string, payload any) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		c.log.Warn("realtime - emit - dropped, channel not connected", logging.Event(eventType))
		return
	}
	c.emitOn(conn, eventType, payload)
}

func (c *Client) emitOn(conn Conn, eventType string, payload any) {
	env, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		c.log.Error("realtime - emit - payload marshal failed", logging.Event(eventType), logging.Err(err))
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("realtime - emit - envelope marshal failed", logging.Event(eventType), logging.Err(err))
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		c.log.Warn("realtime - emit - write failed", logging.Event(eventType), logging.Err(err))
	}
}

// establish installs a freshly dialed conn, announces identity, replays
// room intents and starts the read loop.
func (c *Client) establish(ctx context.Context, conn Conn, gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		// torn down while dialing
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	session := c.session
	intents := make([]domain.Room, 0, len(c.rooms))
	for room := range c.rooms {
		intents = append(intents, room)
	}
	c.mu.Unlock()
	c.notifyState(StateConnected)

	// identity first: the server depends on the personal room join
	// preceding any other signal
	c.emitOn(conn, domain.SignalJoinUserRoom, domain.UserRefPayload{UserID: session.UserID})
	for _, room := range intents {
		signal, payload := joinSignal(room)
		c.emitOn(conn, signal, payload)
	}
	go c.readLoop(ctx, conn, gen)
}

func (c *Client) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleLoss(ctx, conn, gen, err)
			return
		}
		c.handleInbound(conn, gen, data)
	}
}

func (c *Client) handleLoss(ctx context.Context, conn Conn, gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn != conn {
		// a teardown or newer channel already superseded this one
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()
	c.notifyState(StateReconnecting)
	c.log.Warn("realtime - channel lost, reconnecting", logging.Err(err))
	c.reconnectLoop(ctx, gen)
}

// reconnectLoop retries with a linearly increasing delay until the
// attempt budget is exhausted, then abandons into Disconnected. The
// explicit bounded counter avoids timer leakage across repeated
// connect/disconnect cycles.
func (c *Client) reconnectLoop(ctx context.Context, gen uint64) {
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * c.cfg.ReconnectBaseDelay):
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		session := c.session
		c.mu.Unlock()

		c.log.Info("realtime - reconnect - dialing", logging.Attempt(attempt))
		conn, err := c.cfg.Dialer(ctx, c.cfg.URL, session.AuthToken)
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				c.log.Warn("realtime - reconnect - credentials rejected, giving up",
					logging.Attempt(attempt))
				c.abandon(gen)
				return
			}
			c.log.Warn("realtime - reconnect - dial failed", logging.Attempt(attempt), logging.Err(err))
			continue
		}
		c.establish(ctx, conn, gen)
		return
	}

	c.log.Error("realtime - reconnect - attempt budget exhausted, giving up")
	if c.abandon(gen) {
		c.alerts.Show(Alert{
			Severity: SeverityError,
			Message:  "realtime connection lost",
			Duration: urgentAlertDuration,
		})
	}
}

// abandon drops the channel into Disconnected without tearing down the
// session state. Reports whether this generation was still current.
func (c *Client) abandon(gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.notifyState(StateDisconnected)
	return true
}

func (c *Client) handleInbound(conn Conn, gen uint64, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("realtime - inbound - malformed envelope dropped")
		return
	}
	c.mu.Lock()
	stale := c.gen != gen || c.conn != conn
	c.mu.Unlock()
	if stale {
		// late event on a torn-down channel: must not reach the store
		return
	}
	c.dispatch(env, gen)
}

func (c *Client) teardownLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.rooms = make(map[domain.Room]struct{})
	c.onlineUsers = nil
	c.state = StateDisconnected
}

func (c *Client) notifyState(s State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

func (c *Client) apiFor(session domain.Session) NotificationAPI {
	if c.cfg.API != nil {
		return c.cfg.API
	}
	return NewRESTClient(c.cfg.APIBaseURL, session.AuthToken)
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; verification is the server's job. Opaque (non-JWT) tokens
// pass through and are judged by the server at handshake.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.conn.ReadMessage()
	return data, err
}

func (g *gorillaConn) WriteMessage(data []byte) error {
	g.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return g.conn.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}

func gorillaDialer(ctx context.Context, rawURL, authToken string) (Conn, error) {
	u := rawURL
	if authToken != "" {
		u += "?token=" + url.QueryEscape(authToken)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: HTTP %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, err
	}
	conn.SetReadLimit(512 * 1024)
	return &gorillaConn{conn: conn}, nil
}
