package track

import (
	"fmt"
	"time"
)

// Track describes one playable item. The Encoded blob is the audio node's
// opaque playback handle; everything else is display metadata. Tracks are
// immutable once constructed and owned by whichever queue holds them.
type Track struct {
	Encoded    string `json:"encoded"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // milliseconds, 0 when unknown
	IsStream   bool   `json:"isStream"`
	URI        string `json:"uri"`
	Source     string `json:"sourceName"`
	ArtworkURL string `json:"artworkUrl"`

	// Requester is the user id that asked for this track. Not part of the
	// node payload.
	Requester string `json:"-"`
}

// DurationString renders the track length as mm:ss (or h:mm:ss), "LIVE" for
// streams and "?" when the length is unknown.
func (t Track) DurationString() string {
	if t.IsStream {
		return "LIVE"
	}
	if t.Length <= 0 {
		return "?"
	}
	d := time.Duration(t.Length) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func (t Track) String() string {
	if t.Author == "" {
		return t.Title
	}
	return fmt.Sprintf("%s — %s", t.Title, t.Author)
}
