// Package transport maintains the duplex realtime channel to the match
// service. It demultiplexes inbound push events into store mutations
// plus subscriber fan-out, emits outbound actions fire-and-forget, and
// reconnects automatically within a bounded number of attempts.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/odxplay/triviasync/internal/trivia"
	"github.com/odxplay/triviasync/internal/trivia/store"
)

// ErrConnectFailed is returned once the bounded reconnection attempts
// are exhausted.
var ErrConnectFailed = errors.New("transport: failed to connect after maximum attempts")

// ErrNotConnected is returned when an action is emitted without an
// established channel.
var ErrNotConnected = errors.New("transport: not connected")

// Handler receives a raw inbound event after the store mutation for
// that event has been applied.
type Handler func(env trivia.Envelope)

// Config holds transport configuration.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws/match.
	URL   string
	Token string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration

	// Reconnection is bounded: MaxAttempts tries with a fixed
	// ReconnectDelay between them, never an unbounded retry storm.
	MaxAttempts    int
	ReconnectDelay time.Duration
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig(wsURL string) Config {
	return Config{
		URL:              wsURL,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxAttempts:      5,
		ReconnectDelay:   time.Second,
	}
}

// connectAttempt lets concurrent Connect calls wait on a single
// in-flight dial instead of opening a second channel.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client is a reconnecting websocket client bound to one match session.
type Client struct {
	config Config
	store  *store.Store
	clock  clockwork.Clock

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	matchID   string
	attempt   *connectAttempt

	handlers  map[trivia.EventType]map[int]Handler
	handlerID int

	onReconnect func()
	onStatus    func(connected bool)
}

// NewClient creates a transport client that applies inbound events to
// the given store.
func NewClient(config Config, st *store.Store) *Client {
	return NewClientWithClock(config, st, clockwork.NewRealClock())
}

// NewClientWithClock creates a transport client with an injectable
// clock for tests.
func NewClientWithClock(config Config, st *store.Store, clock clockwork.Clock) *Client {
	return &Client{
		config:   config,
		store:    st,
		clock:    clock,
		handlers: make(map[trivia.EventType]map[int]Handler),
	}
}

// OnReconnect registers a hook invoked after an automatic reconnection
// succeeds. The consumer is expected to re-fetch a snapshot there:
// delivery across the reconnect gap is not guaranteed.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

// OnStatusChange registers a connectivity signal callback.
func (c *Client) OnStatusChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Connected reports whether the channel is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the channel, retrying up to the configured number
// of attempts with a fixed delay. Concurrent calls while an attempt is
// underway wait on that single attempt.
func (c *Client) Connect(ctx context.Context, matchID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.attempt != nil {
		attempt := c.attempt
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	c.attempt = attempt
	c.matchID = matchID
	c.mu.Unlock()

	err := c.dialLoop(ctx, matchID)

	c.mu.Lock()
	attempt.err = err
	c.attempt = nil
	c.mu.Unlock()
	close(attempt.done)
	return err
}

func (c *Client) dialLoop(ctx context.Context, matchID string) error {
	var lastErr error
	for i := 1; i <= c.config.MaxAttempts; i++ {
		conn, err := c.dial(ctx, matchID)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.connected = true
			status := c.onStatus
			c.mu.Unlock()

			go c.readPump(conn)
			go c.pingLoop(conn)

			if status != nil {
				status(true)
			}
			log.Info().Str("match_id", matchID).Int("attempt", i).Msg("realtime channel established")
			return nil
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", i).Int("max_attempts", c.config.MaxAttempts).Msg("connect attempt failed")

		if i == c.config.MaxAttempts {
			break
		}
		select {
		case <-c.clock.After(c.config.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
}

func (c *Client) dial(ctx context.Context, matchID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	if matchID != "" {
		q := u.Query()
		q.Set("matchId", matchID)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u.String(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// Disconnect tears down the channel and discards all registered
// listeners. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.handlers = make(map[trivia.EventType]map[int]Handler)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	log.Info().Msg("realtime channel closed")
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer c.handleDisconnect(conn)

	conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("realtime channel read error")
			}
			return
		}

		var env trivia.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Error().Err(err).Msg("malformed event envelope dropped")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		<-ticker.Chan()
		c.mu.Lock()
		current := c.conn
		c.mu.Unlock()
		if current != conn {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

// handleDisconnect marks the channel down and, unless Disconnect was
// called, starts a bounded automatic reconnection.
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	matchID := c.matchID
	status := c.onStatus
	c.mu.Unlock()

	if status != nil {
		status(false)
	}
	if closed {
		return
	}

	log.Warn().Str("match_id", matchID).Msg("realtime channel dropped, reconnecting")
	go func() {
		if err := c.Connect(context.Background(), matchID); err != nil {
			log.Error().Err(err).Msg("automatic reconnection failed")
			return
		}
		c.mu.Lock()
		hook := c.onReconnect
		c.mu.Unlock()
		if hook != nil {
			hook()
		}
	}()
}

// dispatch applies the event to the store, then fans it out to the
// registered listeners. Each inbound event triggers exactly one store
// mutation; duplicates are absorbed by the store's idempotence guards.
func (c *Client) dispatch(env trivia.Envelope) {
	payload, err := trivia.ParseEventPayload(&env)
	if err != nil {
		log.Error().Err(err).Str("event", string(env.Event)).Msg("malformed event payload dropped")
		return
	}

	switch p := payload.(type) {
	case trivia.PlayerJoinedPayload:
		c.store.ApplyPlayerJoined(p.Player)
	case trivia.PlayerLeftPayload:
		c.store.ApplyPlayerLeft(p.PlayerID)
	case trivia.TeamAssignedPayload:
		c.store.ApplyTeamAssignment(p.PlayerID, p.Team)
	case trivia.MatchStatePayload:
		c.store.ReplaceFromSnapshot(p.Match)
	case trivia.TimerPayload:
		c.store.UpdateTimer(p.Timer)
	case trivia.CategorySelectedPayload:
		c.store.ApplyCategorySelected(p.CategoryID, p.Team)
	case trivia.QuestionNewPayload:
		c.store.ApplyNewQuestion(p.Question, p.Category)
	case trivia.AnswerSubmittedPayload:
		c.store.ApplyAnswerResult(p.PlayerID, p.QuestionID, p.IsCorrect, p.Points)
	case trivia.PowerUpUsedPayload:
		c.store.ApplyPowerUpUsed(p.Team, p.PowerUp.ID)
	case trivia.MatchEndedPayload:
		c.store.ApplyMatchEnded(trivia.MatchResult{
			Match:       p.Match,
			Winner:      p.Winner,
			FinalScores: p.FinalScores,
		})
	case trivia.ErrorPayload:
		log.Warn().Str("message", p.Message).Msg("server error event")
	case nil:
		log.Debug().Str("event", string(env.Event)).Msg("unknown event type skipped")
		return
	}

	c.fanOut(env)
}

func (c *Client) fanOut(env trivia.Envelope) {
	c.mu.Lock()
	var targets []Handler
	for _, h := range c.handlers[env.Event] {
		targets = append(targets, h)
	}
	c.mu.Unlock()

	for _, h := range targets {
		h(env)
	}
}

// Subscribe registers a listener for an event type and returns a token
// for Unsubscribe. Listener lifecycle is tied to component teardown to
// avoid leaked handlers.
func (c *Client) Subscribe(event trivia.EventType, h func(env trivia.Envelope)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlerID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][c.handlerID] = Handler(h)
	return c.handlerID
}

// Unsubscribe removes a previously registered listener.
func (c *Client) Unsubscribe(event trivia.EventType, token int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[event], token)
}

// emit sends an outbound action frame. Delivery is fire-and-forget:
// the caller treats any optimistic local change as provisional until an
// authoritative event confirms it.
func (c *Client) emit(event trivia.EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := trivia.Envelope{
		ID:        uuid.NewString(),
		Event:     event,
		MatchID:   c.matchID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// JoinLobby announces the local player in the match lobby.
func (c *Client) JoinLobby(matchID string) error {
	return c.emit(trivia.ActionLobbyJoin, trivia.LobbyActionPayload{MatchID: matchID})
}

// LeaveLobby pairs with JoinLobby on teardown so the server does not
// keep an orphaned subscription.
func (c *Client) LeaveLobby(matchID string) error {
	return c.emit(trivia.ActionLobbyLeave, trivia.LobbyActionPayload{MatchID: matchID})
}

// SelectCategory requests a category pick for the acting team.
func (c *Client) SelectCategory(matchID, categoryID string) error {
	return c.emit(trivia.ActionCategorySelect, trivia.CategorySelectPayload{
		MatchID:    matchID,
		CategoryID: categoryID,
	})
}

// SubmitAnswer submits an answer over the realtime channel.
func (c *Client) SubmitAnswer(matchID, questionID, answer string) error {
	return c.emit(trivia.ActionMatchAnswer, trivia.MatchAnswerPayload{
		MatchID:    matchID,
		QuestionID: questionID,
		Answer:     answer,
	})
}

// UsePowerUp requests a power-up activation.
func (c *Client) UsePowerUp(matchID, powerUpID string, targetTeam trivia.TeamID) error {
	return c.emit(trivia.ActionPowerUpUse, trivia.PowerUpUsePayload{
		MatchID:    matchID,
		PowerUpID:  powerUpID,
		TargetTeam: targetTeam,
	})
}

// AssignTeam asks the server to move a player onto a team. Host only;
// authorization is enforced server-side.
func (c *Client) AssignTeam(matchID, playerID string, team trivia.TeamID) error {
	return c.emit(trivia.ActionTeamAssign, trivia.TeamAssignPayload{
		MatchID:  matchID,
		PlayerID: playerID,
		Team:     team,
	})
}
