package topology

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/core"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/rs/zerolog/log"
)

// Topology turns transport lifecycle callbacks into matchmaking state
// changes. It holds no state of its own.
type Topology struct {
	State  *app.ServerState
	Policy app.Policy
	Sink   core.MatchSink
}

// ParseRequestedRoom reads the room id from the request path and the
// threshold from the "next" query parameter. A missing or malformed next
// leaves the default threshold in place.
func ParseRequestedRoom(path string, query url.Values) domain.RequestedRoom {
	req := domain.RequestedRoom{ID: domain.RoomID(strings.TrimPrefix(path, "/"))}
	if raw := query.Get("next"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			req.Next = &n
		}
	}
	return req
}

// OnConnectionRequest registers the requested room for origin and returns
// whether the connection is admitted.
func (t *Topology) OnConnectionRequest(origin domain.Origin, path string, query url.Values) bool {
	req := ParseRequestedRoom(path, query)
	if t.Policy != nil && !t.Policy.Admit(origin, req) {
		log.Info().Str("module", "topology").Str("origin", string(origin)).Str("room", string(req.ID)).Msg("connection rejected")
		return false
	}
	t.State.AddWaitingClient(origin, req)
	return true
}

// OnConnectionAbandoned drops the pending request of a connection that
// went away before it got a peer id.
func (t *Topology) OnConnectionAbandoned(origin domain.Origin) {
	if t.State.RemoveWaitingClient(origin) {
		log.Info().Str("module", "topology").Str("origin", string(origin)).Msg("pending request abandoned")
	}
}
