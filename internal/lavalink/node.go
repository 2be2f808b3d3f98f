package lavalink

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cadenza/internal/track"
)

// Status is the liveness state of a node connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusReady
	StatusDegraded
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusDegraded:
		return "degraded"
	case StatusDead:
		return "dead"
	}
	return "unknown"
}

var ErrNodeNotConnected = errors.New("node is not connected")

// Endpoint holds the connection settings for one audio node.
type Endpoint struct {
	Name     string
	Host     string
	Port     int
	Password string
	Secure   bool
}

func (e Endpoint) wsURL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, e.Host, e.Port)
}

func (e Endpoint) restURL(path string) string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, e.Host, e.Port, path)
}

// writeWait bounds every control write; a peer that stops reading turns
// into a write error instead of a wedged goroutine.
const writeWait = 10 * time.Second

// Conn is the slice of the websocket connection the node uses. Tests stub it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the event-plane connection to a node.
type Dialer func(url string, header http.Header) (Conn, error)

func defaultDialer(url string, header http.Header) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Node is one logical connection to an external audio node: the control
// plane (ops sent over the socket, lookups over REST) plus the event plane
// (the read loop fanning node events into the shared channel).
type Node struct {
	cfg    Endpoint
	userID string
	dial   Dialer
	events chan<- Event
	onDown func(n *Node, err error)

	mu       sync.Mutex
	conn     Conn
	status   Status
	guilds   map[string]struct{}
	lastSeen time.Time

	// wmu serializes socket writes. Network I/O never runs under mu, so
	// Status/Load/markDown stay non-blocking while a write is in flight.
	wmu sync.Mutex

	httpc *http.Client
	log   zerolog.Logger
}

func newNode(cfg Endpoint, userID string, dial Dialer, events chan<- Event, onDown func(*Node, error), log zerolog.Logger) *Node {
	if dial == nil {
		dial = defaultDialer
	}
	return &Node{
		cfg:    cfg,
		userID: userID,
		dial:   dial,
		events: events,
		onDown: onDown,
		status: StatusConnecting,
		guilds: make(map[string]struct{}),
		httpc:  &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("comp", "node").Str("node", cfg.Name).Logger(),
	}
}

func (n *Node) ID() string { return n.cfg.Name }

// Connect performs the authenticate handshake and starts the read loop.
func (n *Node) Connect() error {
	n.mu.Lock()
	if n.status == StatusReady {
		n.mu.Unlock()
		return nil
	}
	n.status = StatusConnecting
	n.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("User-Id", n.userID)
	header.Set("Client-Name", "cadenza/1.0")

	conn, err := n.dial(n.cfg.wsURL(), header)
	if err != nil {
		n.mu.Lock()
		n.status = StatusDegraded
		n.mu.Unlock()
		return fmt.Errorf("dial %s: %w", n.cfg.Name, err)
	}

	n.mu.Lock()
	n.conn = conn
	n.status = StatusReady
	n.lastSeen = time.Now()
	n.mu.Unlock()

	n.log.Info().Str("url", n.cfg.wsURL()).Msg("node connected")
	go n.readLoop(conn)
	return nil
}

// readLoop drains the socket until it fails, decoding frames into events.
func (n *Node) readLoop(conn Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			n.markDown(err)
			return
		}
		n.mu.Lock()
		n.lastSeen = time.Now()
		n.mu.Unlock()
		n.handleFrame(msg)
	}
}

type wsFrame struct {
	Op       string          `json:"op"`
	Type     EventType       `json:"type"`
	GuildID  string          `json:"guildId"`
	Reason   string          `json:"reason"`
	Code     int             `json:"code"`
	ByRemote bool            `json:"byRemote"`
	Track    json.RawMessage `json:"track"`
	State    struct {
		Position int64 `json:"position"`
	} `json:"state"`
	Exception struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
}

func (n *Node) handleFrame(msg []byte) {
	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		n.log.Debug().Err(err).Msg("dropping undecodable frame")
		return
	}

	switch frame.Op {
	case "ready":
		n.log.Info().Msg("node reported ready")
	case "stats":
		// Stats frames double as liveness; lastSeen already refreshed.
	case "playerUpdate":
		n.emit(Event{
			Node:     n.cfg.Name,
			Type:     EventPlayerUpdate,
			GuildID:  frame.GuildID,
			Position: frame.State.Position,
		})
	case "event":
		ev := Event{
			Node:     n.cfg.Name,
			Type:     frame.Type,
			GuildID:  frame.GuildID,
			Reason:   frame.Reason,
			Error:    frame.Exception.Message,
			Code:     frame.Code,
			ByRemote: frame.ByRemote,
		}
		if t, ok := decodeTrack(frame.Track); ok {
			ev.Track = &t
		}
		n.emit(ev)
	default:
		n.log.Debug().Str("op", frame.Op).Msg("unhandled node op")
	}
}

func (n *Node) emit(ev Event) {
	select {
	case n.events <- ev:
	default:
		n.log.Warn().Str("type", string(ev.Type)).Str("guild", ev.GuildID).Msg("event channel full, dropping")
	}
}

// markDown flags the connection degraded exactly once per outage and tells
// the manager so failover can start.
func (n *Node) markDown(err error) {
	n.mu.Lock()
	if n.status != StatusReady && n.status != StatusConnecting {
		n.mu.Unlock()
		return
	}
	n.status = StatusDegraded
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.mu.Unlock()

	n.log.Warn().Err(err).Msg("node connection lost")
	if n.onDown != nil {
		n.onDown(n, err)
	}
}

// Close tears the socket down without triggering failover.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.status = StatusDead
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) setStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// --- guild assignment bookkeeping ---

func (n *Node) AssignGuild(guildID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.guilds[guildID] = struct{}{}
}

func (n *Node) ReleaseGuild(guildID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.guilds, guildID)
}

// AssignedGuilds returns the guilds currently bound to this node.
func (n *Node) AssignedGuilds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.guilds))
	for g := range n.guilds {
		out = append(out, g)
	}
	return out
}

// Load is the number of assigned guilds; SelectNode prefers the smallest.
func (n *Node) Load() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.guilds)
}

// --- control requests ---

// send writes one op frame. The state mutex only snapshots the connection;
// the write itself runs under the dedicated write lock with a deadline
// (gorilla websocket allows a single concurrent writer). A stalled peer
// fails the write after writeWait and the staleness sweep takes the node
// down.
func (n *Node) send(v any) error {
	n.mu.Lock()
	conn := n.conn
	ready := n.status == StatusReady
	n.mu.Unlock()
	if conn == nil || !ready {
		return ErrNodeNotConnected
	}

	n.wmu.Lock()
	defer n.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write to %s: %w", n.cfg.Name, err)
	}
	return nil
}

// Play asks the node to start rendering a track for the guild.
func (n *Node) Play(guildID string, t track.Track, volume int) error {
	return n.send(map[string]any{
		"op":      "play",
		"guildId": guildID,
		"track":   t.Encoded,
		"volume":  volume,
	})
}

func (n *Node) Stop(guildID string) error {
	return n.send(map[string]any{"op": "stop", "guildId": guildID})
}

func (n *Node) Pause(guildID string, paused bool) error {
	return n.send(map[string]any{"op": "pause", "guildId": guildID, "pause": paused})
}

func (n *Node) SetVolume(guildID string, volume int) error {
	return n.send(map[string]any{"op": "volume", "guildId": guildID, "volume": volume})
}

func (n *Node) Seek(guildID string, positionMS int64) error {
	return n.send(map[string]any{"op": "seek", "guildId": guildID, "position": positionMS})
}

// Destroy releases the guild's session on the node and drops the local
// assignment.
func (n *Node) Destroy(guildID string) error {
	n.ReleaseGuild(guildID)
	return n.send(map[string]any{"op": "destroy", "guildId": guildID})
}

// VoiceUpdate forwards the chat platform's voice credentials so the node can
// attach to the guild's voice server.
func (n *Node) VoiceUpdate(guildID, sessionID string, event any) error {
	return n.send(map[string]any{
		"op":        "voiceUpdate",
		"guildId":   guildID,
		"sessionId": sessionID,
		"event":     event,
	})
}
