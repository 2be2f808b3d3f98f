package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"cadenza/internal/lavalink"
	"cadenza/internal/track"
	"cadenza/pkg/backoff"
)

// Result is what a query resolved to. Zero tracks means "no results", which
// is not an error.
type Result struct {
	Tracks       []track.Track
	PlaylistName string
}

// Resolver turns a free-text query or direct URI into playable tracks.
type Resolver interface {
	Resolve(ctx context.Context, query, requester string) (Result, error)
}

// Identifier maps a user query to a node lookup identifier: URIs pass
// through, anything else becomes a catalog search.
func Identifier(query string) string {
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		return query
	}
	return "ytsearch:" + query
}

// NodeResolver resolves queries through a healthy audio node's catalog REST
// endpoint, throttled by an adaptive limiter so a flood of play commands
// cannot hammer the node.
type NodeResolver struct {
	mgr *lavalink.Manager
	lim *backoff.AdaptiveLimiter
	log zerolog.Logger
}

func NewNodeResolver(mgr *lavalink.Manager, log zerolog.Logger) *NodeResolver {
	return &NodeResolver{
		mgr: mgr,
		lim: backoff.NewAdaptiveLimiter(5, 1, 20),
		log: log.With().Str("comp", "search").Logger(),
	}
}

func (r *NodeResolver) Resolve(ctx context.Context, query, requester string) (Result, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return Result{}, err
	}

	node, err := r.mgr.SelectNode()
	if err != nil {
		return Result{}, err
	}

	res, err := node.LoadTracks(ctx, Identifier(query))
	if err != nil {
		r.lim.Backpressure()
		return Result{}, err
	}
	r.lim.Success()

	switch res.LoadType {
	case lavalink.LoadTypeEmpty, lavalink.LoadTypeError:
		// Malformed or unsupported lookups are zero results, not failures.
		if res.Exception != nil {
			r.log.Debug().Str("query", query).Str("cause", res.Exception.Message).Msg("lookup failed on node")
		}
		return Result{}, nil
	case lavalink.LoadTypeSearch:
		tracks := res.LoadedTracks()
		if len(tracks) == 0 {
			return Result{}, nil
		}
		// Search results are ranked; take the best match.
		tracks = tracks[:1]
		return Result{Tracks: withRequester(tracks, requester)}, nil
	case lavalink.LoadTypeTrack, lavalink.LoadTypePlaylist:
		return Result{
			Tracks:       withRequester(res.LoadedTracks(), requester),
			PlaylistName: res.PlaylistInfo.Name,
		}, nil
	default:
		r.log.Debug().Str("load_type", res.LoadType).Msg("unknown load type, treating as no results")
		return Result{}, nil
	}
}

func withRequester(tracks []track.Track, requester string) []track.Track {
	for i := range tracks {
		tracks[i].Requester = requester
	}
	return tracks
}
