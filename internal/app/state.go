package app

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/matchbox-server/internal/core"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/rs/zerolog/log"
)

type pendingEntry struct {
	room domain.RequestedRoom
	at   time.Time
}

// ServerState correlates connection origins, requested rooms and assigned
// peer ids. A single mutex guards all three tables: an id assignment
// touches pending, rooms and peerRoom together.
type ServerState struct {
	mu       sync.Mutex
	pending  map[domain.Origin]pendingEntry
	rooms    map[domain.RoomID]map[domain.PeerID]uint64
	peerRoom map[domain.PeerID]domain.RoomID
	seq      uint64

	now func() time.Time
}

func NewServerState() *ServerState {
	return &ServerState{
		pending:  make(map[domain.Origin]pendingEntry),
		rooms:    make(map[domain.RoomID]map[domain.PeerID]uint64),
		peerRoom: make(map[domain.PeerID]domain.RoomID),
		now:      time.Now,
	}
}

// AddWaitingClient registers a room request for origin. A second request
// from the same origin replaces the first.
func (s *ServerState) AddWaitingClient(origin domain.Origin, room domain.RequestedRoom) {
	s.mu.Lock()
	_, replaced := s.pending[origin]
	s.pending[origin] = pendingEntry{room: room, at: s.now()}
	s.mu.Unlock()

	log.Debug().
		Str("module", "app.state").
		Str("origin", string(origin)).
		Str("room", string(room.ID)).
		Int("threshold", room.Threshold()).
		Bool("replaced", replaced).
		Msg("waiting client added")
}

// AssignIDToWaitingClient moves the pending request of origin into its room
// under peer. It reports the room's full member set when the room size
// meets the requested threshold, on every such insertion. Without a pending
// request for origin it does nothing.
func (s *ServerState) AssignIDToWaitingClient(origin domain.Origin, peer domain.PeerID) (core.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[origin]
	if !ok {
		return core.Match{}, false
	}
	delete(s.pending, origin)

	if _, placed := s.peerRoom[peer]; placed {
		log.Warn().Str("module", "app.state").Str("peer", string(peer)).Msg("peer already in a room")
		return core.Match{}, false
	}

	id := entry.room.ID
	members, ok := s.rooms[id]
	if !ok {
		members = make(map[domain.PeerID]uint64)
		s.rooms[id] = members
	}
	s.seq++
	members[peer] = s.seq
	s.peerRoom[peer] = id

	if len(members) < entry.room.Threshold() {
		return core.Match{}, false
	}
	return core.Match{Room: id, Peers: sortedMembers(members)}, true
}

// RemovePeer drops peer from its room and deletes the room once empty.
// Unknown peers are ignored.
func (s *ServerState) RemovePeer(peer domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.peerRoom[peer]
	if !ok {
		return false
	}
	delete(s.peerRoom, peer)
	if members, ok := s.rooms[id]; ok {
		delete(members, peer)
		if len(members) == 0 {
			delete(s.rooms, id)
		}
	}
	return true
}

// RemoveWaitingClient forgets a request whose connection was abandoned
// before an id was assigned.
func (s *ServerState) RemoveWaitingClient(origin domain.Origin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[origin]
	delete(s.pending, origin)
	return ok
}

// EvictStalePending removes requests older than ttl and returns how many
// were dropped.
func (s *ServerState) EvictStalePending(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	n := 0
	for origin, e := range s.pending {
		if e.at.Before(cutoff) {
			delete(s.pending, origin)
			n++
		}
	}
	return n
}

func (s *ServerState) RoomOf(peer domain.PeerID) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.peerRoom[peer]
	return id, ok
}

// RoomPeers returns the members of a room in join order.
func (s *ServerState) RoomPeers(id domain.RoomID) []domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[id]
	if !ok {
		return nil
	}
	return sortedMembers(members)
}

func (s *ServerState) IsWaiting(origin domain.Origin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[origin]
	return ok
}

type Stats struct {
	Rooms   int `json:"rooms"`
	Peers   int `json:"peers"`
	Pending int `json:"pending"`
}

func (s *ServerState) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Rooms:   len(s.rooms),
		Peers:   len(s.peerRoom),
		Pending: len(s.pending),
	}
}

func sortedMembers(members map[domain.PeerID]uint64) []domain.PeerID {
	out := make([]domain.PeerID, 0, len(members))
	for p := range members {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.PeerID) int {
		return cmp.Compare(members[a], members[b])
	})
	return out
}
