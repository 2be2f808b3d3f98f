package lavalink

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cadenza/pkg/backoff"
	"cadenza/pkg/jobmgr"
)

var ErrNoAvailableNode = errors.New("no audio node is available")

var errNodeStale = errors.New("node stopped sending frames")

// FailoverHook receives the node id and the guilds bound to it when the
// node's availability changes.
type FailoverHook func(nodeID string, guilds []string)

// Config tunes the manager's reconnect and health behavior.
type Config struct {
	// Reconnect bounds the backoff schedule; when the attempt budget is
	// exhausted the node is marked permanently dead and its guilds are lost.
	Reconnect backoff.Policy

	// StaleAfter is how long a ready node may go silent before it is treated
	// as degraded. Nodes push stats frames periodically, so silence means a
	// wedged transport even when the socket has not errored yet.
	StaleAfter time.Duration

	// HealthInterval is the staleness sweep period.
	HealthInterval time.Duration

	// Dialer overrides the websocket dialer. Tests only.
	Dialer Dialer
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 90 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 15 * time.Second
	}
	return c
}

// Manager owns the pool of node connections: it brings them up, watches
// their health, reconnects with backoff and picks a node for new sessions.
type Manager struct {
	cfg    Config
	nodes  map[string]*Node
	order  []string
	events chan Event
	jobs   *jobmgr.Manager

	onDown FailoverHook
	onUp   FailoverHook
	onLost FailoverHook

	log zerolog.Logger
}

// NewManager builds the pool. Nothing connects until Connect is called.
func NewManager(ctx context.Context, endpoints []Endpoint, cfg Config, log zerolog.Logger) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		nodes:  make(map[string]*Node),
		events: make(chan Event, 256),
		log:    log.With().Str("comp", "nodemgr").Logger(),
	}
	m.jobs = jobmgr.New(ctx, func(name string, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Debug().Str("job", name).Err(err).Msg("job finished")
		}
	})
	for _, ep := range endpoints {
		n := newNode(ep, "", cfg.Dialer, m.events, m.nodeDown, log)
		m.nodes[ep.Name] = n
		m.order = append(m.order, ep.Name)
	}
	return m
}

// SetFailoverHooks wires the orchestrator's failover handlers. Must be
// called before Connect.
func (m *Manager) SetFailoverHooks(onDown, onUp, onLost FailoverHook) {
	m.onDown = onDown
	m.onUp = onUp
	m.onLost = onLost
}

// SetUserID records the bot user id used in the node handshake. Must be
// called before Connect.
func (m *Manager) SetUserID(userID string) {
	for _, n := range m.nodes {
		n.mu.Lock()
		n.userID = userID
		n.mu.Unlock()
	}
}

// Events exposes the shared node event stream. A single dispatcher should
// drain it.
func (m *Manager) Events() <-chan Event { return m.events }

// Connect starts bringing every configured node toward ready, plus the
// periodic staleness sweep. Connection failures enter the same
// reconnect-with-backoff path as mid-session drops.
func (m *Manager) Connect() {
	for _, name := range m.order {
		m.startReconnect(m.nodes[name])
	}
	_ = m.jobs.Start("node-health", m.healthLoop)
}

func (m *Manager) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, name := range m.order {
				n := m.nodes[name]
				n.mu.Lock()
				stale := n.status == StatusReady && time.Since(n.lastSeen) > m.cfg.StaleAfter
				n.mu.Unlock()
				if stale {
					n.markDown(errNodeStale)
					continue
				}
				// A degraded node can miss its reconnect window when the
				// previous reconnect job was still unwinding; pick it up here.
				if n.Status() == StatusDegraded && !m.jobs.Has("reconnect:"+n.ID()) {
					m.startReconnect(n)
				}
			}
		}
	}
}

// nodeDown is invoked by a node's read loop (or the health sweep) when its
// transport fails. Bound guilds are surfaced for failover and a reconnect
// job starts.
func (m *Manager) nodeDown(n *Node, err error) {
	guilds := n.AssignedGuilds()
	m.log.Warn().Str("node", n.ID()).Int("guilds", len(guilds)).Err(err).Msg("node down, starting failover")
	if m.onDown != nil && len(guilds) > 0 {
		m.onDown(n.ID(), guilds)
	}
	m.startReconnect(n)
}

func (m *Manager) startReconnect(n *Node) {
	name := "reconnect:" + n.ID()
	err := m.jobs.Start(name, func(ctx context.Context) error {
		rerr := backoff.Retry(ctx, m.cfg.Reconnect, func(attempt int) error {
			m.log.Info().Str("node", n.ID()).Int("attempt", attempt).Msg("connecting to node")
			return n.Connect()
		})
		if rerr != nil {
			if ctx.Err() != nil {
				return rerr
			}
			n.setStatus(StatusDead)
			affected := n.AssignedGuilds()
			for _, g := range affected {
				n.ReleaseGuild(g)
			}
			m.log.Error().Str("node", n.ID()).Int("guilds", len(affected)).Msg("retry budget exhausted, node is dead")
			if m.onLost != nil && len(affected) > 0 {
				m.onLost(n.ID(), affected)
			}
			return rerr
		}
		if m.onUp != nil {
			if recovered := n.AssignedGuilds(); len(recovered) > 0 {
				m.onUp(n.ID(), recovered)
			}
		}
		return nil
	})
	if err != nil {
		// A reconnect for this node is already in flight.
		m.log.Debug().Str("node", n.ID()).Msg("reconnect already running")
	}
}

// SelectNode returns the ready node with the fewest assigned guilds.
func (m *Manager) SelectNode() (*Node, error) {
	var best *Node
	for _, name := range m.order {
		n := m.nodes[name]
		if n.Status() != StatusReady {
			continue
		}
		if best == nil || n.Load() < best.Load() {
			best = n
		}
	}
	if best == nil {
		return nil, ErrNoAvailableNode
	}
	return best, nil
}

// Node looks a node up by id.
func (m *Manager) Node(id string) (*Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Nodes returns every configured node in declaration order.
func (m *Manager) Nodes() []*Node {
	out := make([]*Node, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.nodes[name])
	}
	return out
}

// Shutdown stops reconnect jobs and closes every connection.
func (m *Manager) Shutdown() {
	m.jobs.StopAll()
	for _, n := range m.nodes {
		n.Close()
	}
}
