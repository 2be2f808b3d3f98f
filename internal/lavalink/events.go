package lavalink

import "cadenza/internal/track"

// EventType identifies an asynchronous notification pushed by an audio node.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
	EventPlayerUpdate    EventType = "PlayerUpdate"
)

// Event is one node-originated notification, keyed by guild. Events are
// produced by the node read loops onto the manager's shared channel and
// drained by a single dispatcher, so guild logic never runs on a transport
// goroutine.
type Event struct {
	Node    string
	Type    EventType
	GuildID string

	// Track is the subject of track lifecycle events, when the node included
	// a payload that decoded cleanly.
	Track *track.Track

	// Reason is the node's end reason for EventTrackEnd ("finished",
	// "loadFailed", "stopped", "replaced", "cleanup").
	Reason string

	// Error carries the failure message for EventTrackException.
	Error string

	// Code/ByRemote describe EventWebSocketClosed.
	Code     int
	ByRemote bool

	// Position is the playback position in ms for EventPlayerUpdate.
	Position int64
}

// Track end reasons that mean "the node finished with this track on its own".
// Ends we caused ourselves (stop, replace) must not advance the queue again.
const (
	EndReasonFinished   = "finished"
	EndReasonLoadFailed = "loadFailed"
	EndReasonStopped    = "stopped"
	EndReasonReplaced   = "replaced"
	EndReasonCleanup    = "cleanup"
)
