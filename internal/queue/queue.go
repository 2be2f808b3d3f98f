package queue

import (
	"errors"
	"math/rand"
	"slices"

	"cadenza/internal/track"
)

var (
	ErrEmpty      = errors.New("no tracks in queue")
	ErrOutOfRange = errors.New("queue position out of range")
)

// Queue is the ordered list of pending tracks for one guild session.
// Insertion order is playback order. The queue is not internally
// synchronized: the owning player's lock guards every call.
type Queue struct {
	items []track.Track
	rng   *rand.Rand
}

func New() *Queue {
	return &Queue{}
}

// SetRandSource overrides the randomness used by Shuffle. Tests only.
func (q *Queue) SetRandSource(rng *rand.Rand) {
	q.rng = rng
}

// Enqueue appends tracks to the tail. Never fails.
func (q *Queue) Enqueue(tracks ...track.Track) {
	q.items = append(q.items, tracks...)
}

// EnqueueHead inserts a track in front of everything else. Used by the
// track loop mode to replay the finished track.
func (q *Queue) EnqueueHead(t track.Track) {
	q.items = append([]track.Track{t}, q.items...)
}

// Dequeue removes and returns the head of the queue.
func (q *Queue) Dequeue() (track.Track, error) {
	if len(q.items) == 0 {
		return track.Track{}, ErrEmpty
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, nil
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (track.Track, error) {
	if len(q.items) == 0 {
		return track.Track{}, ErrEmpty
	}
	return q.items[0], nil
}

// RemoveAt removes and returns the track at the given zero-based position.
func (q *Queue) RemoveAt(pos int) (track.Track, error) {
	if pos < 0 || pos >= len(q.items) {
		return track.Track{}, ErrOutOfRange
	}
	t := q.items[pos]
	q.items = slices.Delete(q.items, pos, pos+1)
	return t, nil
}

// Clear empties the queue. The currently playing track lives on the player,
// not here, so it is unaffected.
func (q *Queue) Clear() int {
	n := len(q.items)
	q.items = nil
	return n
}

// Shuffle randomizes the order of the remaining entries in place using a
// uniform Fisher-Yates permutation.
func (q *Queue) Shuffle() {
	swap := func(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
	if q.rng != nil {
		q.rng.Shuffle(len(q.items), swap)
		return
	}
	rand.Shuffle(len(q.items), swap)
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Tracks returns a snapshot copy safe to render while playback continues.
func (q *Queue) Tracks() []track.Track {
	return slices.Clone(q.items)
}
