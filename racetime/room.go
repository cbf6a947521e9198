package racetime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/midoshouse/racebot"
)

const (
	// outgoingBuffer bounds queued chat actions; the queue survives a
	// reconnect so a burst of messages is not lost with the socket.
	outgoingBuffer = 64

	pingInterval     = 30 * time.Second
	handshakeTimeout = 30 * time.Second

	reconnectBase = time.Second
	reconnectMax  = time.Minute
	// A connection that stayed up this long resets the backoff.
	reconnectStable = time.Minute
)

// RaceData is the race service's view of a room, delivered on connect
// and after every change.
type RaceData struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	URL     string `json:"url"`
	Goal    Goal   `json:"goal"`
	Status  Status `json:"status"`
	InfoBot string `json:"info_bot"`

	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	Entrants []Entrant `json:"entrants"`
	Monitors []User    `json:"monitors"`
	OpenedBy *User     `json:"opened_by"`
}

// Goal is a race goal reference.
type Goal struct {
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

// Status wraps the race status value.
type Status struct {
	Value racebot.RaceStatus `json:"value"`
}

// User is a race service user.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Entrant is a user entered in the race.
type Entrant struct {
	User   User   `json:"user"`
	Status Status `json:"status"`
}

// ChatMessage is one inbound chat line.
type ChatMessage struct {
	ID           string `json:"id"`
	User         *User  `json:"user"`
	Bot          string `json:"bot"`
	Message      string `json:"message"`
	MessagePlain string `json:"message_plain"`
	IsSystem     bool   `json:"is_system"`
}

// Event is one inbound websocket frame. Exactly one field is set.
type Event struct {
	Race *RaceData
	Chat *ChatMessage
}

type action struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// Room is the websocket connection to one open race room. Run keeps
// it connected until the context is cancelled, redialling with
// exponential backoff when the socket drops. Outbound actions queue
// across reconnects.
type Room struct {
	client *Client
	path   string
	logger *slog.Logger

	events   chan Event
	outgoing chan action
}

// Room prepares a connection to the room at the given websocket path
// (the "websocket_bot_url" of the race data, e.g.
// "/ws/o/bot/adequate-kirby-5023"). Call Run to connect.
func (c *Client) Room(path string) *Room {
	return &Room{
		client:   c,
		path:     path,
		logger:   c.logger.With("room", path),
		events:   make(chan Event, 16),
		outgoing: make(chan action, outgoingBuffer),
	}
}

// Events delivers race data and chat messages. The channel is closed
// when Run returns.
func (r *Room) Events() <-chan Event {
	return r.events
}

// Run connects and pumps the room until ctx is cancelled. The only
// error it returns is ctx.Err(): dial and read failures are retried
// with exponential backoff.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.events)

	backoff := reconnectBase
	for {
		connectedAt := r.client.now()
		err := r.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.client.now().Sub(connectedAt) >= reconnectStable {
			backoff = reconnectBase
		}
		r.logger.Warn("room connection lost", "err", err, "retry_in", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// runConn dials once and pumps until the connection fails or ctx is
// cancelled.
func (r *Room) runConn(ctx context.Context) error {
	token, err := r.client.Token(ctx)
	if err != nil {
		return err
	}

	wsScheme := "wss"
	if r.client.cfg.Scheme == "http" {
		wsScheme = "ws"
	}
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsScheme+"://"+r.client.cfg.Host+r.path, http.Header{
		"Authorization": {"Bearer " + token},
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dialing room: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dialing room: %w", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- r.writePump(connCtx, conn)
	}()

	readErr := make(chan error, 1)
	go func() {
		readErr <- r.readPump(connCtx, conn)
	}()

	select {
	case err := <-readErr:
		return err
	case err := <-writeErr:
		return err
	case <-ctx.Done():
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), r.client.now().Add(time.Second))
		return ctx.Err()
	}
}

func (r *Room) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame struct {
			Type    string          `json:"type"`
			Race    json.RawMessage `json:"race"`
			Message json.RawMessage `json:"message"`
			Errors  []string        `json:"errors"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Type {
		case "race.data":
			var race RaceData
			if err := json.Unmarshal(frame.Race, &race); err != nil {
				r.logger.Error("decoding race data", "err", err)
				continue
			}
			r.deliver(ctx, Event{Race: &race})
		case "chat.message":
			var msg ChatMessage
			if err := json.Unmarshal(frame.Message, &msg); err != nil {
				r.logger.Error("decoding chat message", "err", err)
				continue
			}
			r.deliver(ctx, Event{Chat: &msg})
		case "error":
			r.logger.Error("race service error", "errors", frame.Errors)
		case "pong":
		}
	}
}

func (r *Room) deliver(ctx context.Context, ev Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *Room) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case act := <-r.outgoing:
			if err := conn.WriteJSON(act); err != nil {
				// Requeue so the action goes out after reconnecting.
				select {
				case r.outgoing <- act:
				default:
				}
				return err
			}
		case <-ticker.C:
			if err := conn.WriteJSON(action{Action: "ping"}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Room) enqueue(ctx context.Context, act action) error {
	select {
	case r.outgoing <- act:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Say posts a chat message. The guid lets the service deduplicate
// retries after a reconnect.
func (r *Room) Say(ctx context.Context, msg string) error {
	return r.enqueue(ctx, action{Action: "message", Data: map[string]string{
		"message": msg,
		"guid":    uuid.NewString(),
	}})
}

// SetRaceInfo sets the bot-controlled part of the room info.
func (r *Room) SetRaceInfo(ctx context.Context, info string) error {
	return r.enqueue(ctx, action{Action: "setinfo", Data: map[string]string{"info_bot": info}})
}

// AcceptRequest lets a user into an invitational room.
func (r *Room) AcceptRequest(ctx context.Context, userID string) error {
	return r.enqueue(ctx, action{Action: "accept_request", Data: map[string]string{"user": userID}})
}

// InviteUser invites a user to the room.
func (r *Room) InviteUser(ctx context.Context, userID string) error {
	return r.enqueue(ctx, action{Action: "invite", Data: map[string]string{"user": userID}})
}

// AddMonitor promotes an entrant to race monitor.
func (r *Room) AddMonitor(ctx context.Context, userID string) error {
	return r.enqueue(ctx, action{Action: "add_monitor", Data: map[string]string{"user": userID}})
}

// RemoveEntrant removes a user from the race.
func (r *Room) RemoveEntrant(ctx context.Context, userID string) error {
	return r.enqueue(ctx, action{Action: "remove_entrant", Data: map[string]string{"user": userID}})
}

// MakeInvitational switches the room to invitational.
func (r *Room) MakeInvitational(ctx context.Context) error {
	return r.enqueue(ctx, action{Action: "make_invitational"})
}
