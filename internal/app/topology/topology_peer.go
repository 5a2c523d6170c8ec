package topology

import (
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnIDAssignment places the peer in the room its origin asked for. When the
// room is ready the match reaches the sink before this returns.
func (t *Topology) OnIDAssignment(origin domain.Origin, peer domain.PeerID) {
	log.Info().Str("module", "topology").Str("origin", string(origin)).Str("peer", string(peer)).Msg("client connected")

	match, ready := t.State.AssignIDToWaitingClient(origin, peer)
	if !ready {
		return
	}
	if t.Sink == nil {
		return
	}
	t.Sink.OnMatch(match)
}

func (t *Topology) OnDisconnect(peer domain.PeerID) {
	if room, ok := t.State.RoomOf(peer); ok {
		log.Info().Str("module", "topology").Str("peer", string(peer)).Str("room", string(room)).Msg("removing peer")
	}
	t.State.RemovePeer(peer)
	if t.Sink != nil {
		t.Sink.OnPeerLeft(peer)
	}
}
