package core

import "github.com/dkeye/matchbox-server/internal/domain"

// Match is a room that reached its threshold together with every peer
// currently in it, in join order.
type Match struct {
	Room  domain.RoomID   `json:"room"`
	Peers []domain.PeerID `json:"peers"`
}

// MatchSink is the transport side of matchmaking. OnMatch is called
// synchronously with the id assignment that made the room ready, so the
// transport reacts before the next event for that room.
type MatchSink interface {
	OnMatch(m Match)
	OnPeerLeft(peer domain.PeerID)
}
