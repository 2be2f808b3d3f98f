package lavalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"cadenza/internal/track"
)

// Load types returned by the node's track resolver.
const (
	LoadTypeTrack    = "track"
	LoadTypePlaylist = "playlist"
	LoadTypeSearch   = "search"
	LoadTypeEmpty    = "empty"
	LoadTypeError    = "error"
)

type trackPayload struct {
	Encoded string      `json:"encoded"`
	Info    track.Track `json:"info"`
}

func (p trackPayload) toTrack() track.Track {
	t := p.Info
	t.Encoded = p.Encoded
	return t
}

func decodeTrack(raw json.RawMessage) (track.Track, bool) {
	if len(raw) == 0 {
		return track.Track{}, false
	}
	var p trackPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Encoded == "" {
		return track.Track{}, false
	}
	return p.toTrack(), true
}

// LoadResult is the node's answer to a loadtracks lookup.
type LoadResult struct {
	LoadType     string         `json:"loadType"`
	Tracks       []trackPayload `json:"tracks"`
	PlaylistInfo struct {
		Name string `json:"name"`
	} `json:"playlistInfo"`
	Exception *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
}

// LoadedTracks flattens the payload into engine tracks.
func (r *LoadResult) LoadedTracks() []track.Track {
	out := make([]track.Track, 0, len(r.Tracks))
	for _, p := range r.Tracks {
		out = append(out, p.toTrack())
	}
	return out
}

// LoadTracks resolves a search identifier (free text with a search prefix, or
// a direct URI) against this node's REST catalog endpoint.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	u := n.cfg.restURL("/v4/loadtracks") + "?identifier=" + url.QueryEscape(identifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// The request id travels with the lookup on both sides: the node logs it,
	// and every failure here carries it so the two can be matched up.
	reqID := uuid.NewString()
	req.Header.Set("Authorization", n.cfg.Password)
	req.Header.Set("X-Request-Id", reqID)

	resp, err := n.httpc.Do(req)
	if err != nil {
		n.log.Debug().Str("request_id", reqID).Err(err).Msg("loadtracks request failed")
		return nil, fmt.Errorf("loadtracks on %s (request %s): %w", n.cfg.Name, reqID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Debug().Str("request_id", reqID).Int("status", resp.StatusCode).Msg("loadtracks lookup rejected")
		return nil, fmt.Errorf("loadtracks on %s (request %s): unexpected status %d", n.cfg.Name, reqID, resp.StatusCode)
	}

	var result LoadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("loadtracks on %s (request %s): decode: %w", n.cfg.Name, reqID, err)
	}
	return &result, nil
}
