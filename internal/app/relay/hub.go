package relay

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/core"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/dkeye/matchbox-server/internal/protocol"
	"github.com/rs/zerolog/log"
)

var _ core.MatchSink = (*Hub)(nil)

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrNotLinked   = errors.New("peers are not matched")
)

type peerEntry struct {
	conn  core.SignalConnection
	links map[domain.PeerID]struct{}
}

// Hub owns the live signaling connections and the set of peer pairs that
// were matched together. Signals are relayed only along those pairs.
type Hub struct {
	mu     sync.RWMutex
	peers  map[domain.PeerID]*peerEntry
	policy app.Policy
}

func NewHub(policy app.Policy) *Hub {
	return &Hub{
		peers:  make(map[domain.PeerID]*peerEntry),
		policy: policy,
	}
}

type delivery struct {
	peer  domain.PeerID
	conn  core.SignalConnection
	event protocol.PeerEvent
}

// Register binds a peer id to its connection. It must happen before the
// peer can take part in a match.
func (h *Hub) Register(peer domain.PeerID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.peers[peer]; ok {
		old.conn = conn
		return
	}
	h.peers[peer] = &peerEntry{conn: conn, links: make(map[domain.PeerID]struct{})}
	log.Debug().Str("module", "relay").Str("peer", string(peer)).Msg("registered")
}

// Send delivers a single event to peer.
func (h *Hub) Send(peer domain.PeerID, event protocol.PeerEvent) error {
	h.mu.RLock()
	e, ok := h.peers[peer]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}
	h.deliver([]delivery{{peer: peer, conn: e.conn, event: event}})
	return nil
}

// OnMatch introduces every pair in the match that has not met yet. The
// earlier peer receives NewPeer for the later one and starts negotiation.
// Repeated readiness for the same members sends nothing.
func (h *Hub) OnMatch(m core.Match) {
	var out []delivery

	h.mu.Lock()
	for i, a := range m.Peers {
		ea, ok := h.peers[a]
		if !ok {
			continue
		}
		for _, b := range m.Peers[i+1:] {
			eb, ok := h.peers[b]
			if !ok {
				continue
			}
			if _, linked := ea.links[b]; linked {
				continue
			}
			ea.links[b] = struct{}{}
			eb.links[a] = struct{}{}
			out = append(out, delivery{peer: a, conn: ea.conn, event: protocol.NewPeer(b)})
		}
	}
	h.mu.Unlock()

	log.Info().
		Str("module", "relay").
		Str("room", string(m.Room)).
		Int("members", len(m.Peers)).
		Int("introductions", len(out)).
		Msg("room ready")
	h.deliver(out)
}

// OnPeerLeft forgets peer and tells everyone it was matched with.
func (h *Hub) OnPeerLeft(peer domain.PeerID) {
	var out []delivery

	h.mu.Lock()
	e, ok := h.peers[peer]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, peer)
	for other := range e.links {
		eo, ok := h.peers[other]
		if !ok {
			continue
		}
		delete(eo.links, peer)
		out = append(out, delivery{peer: other, conn: eo.conn, event: protocol.PeerLeft(peer)})
	}
	h.mu.Unlock()

	log.Debug().Str("module", "relay").Str("peer", string(peer)).Int("notified", len(out)).Msg("peer left")
	h.deliver(out)
}

// Relay forwards a signal from one matched peer to another.
func (h *Hub) Relay(from, to domain.PeerID, data json.RawMessage) error {
	h.mu.RLock()
	src, ok := h.peers[from]
	if !ok {
		h.mu.RUnlock()
		return ErrUnknownPeer
	}
	dst, ok := h.peers[to]
	if !ok {
		h.mu.RUnlock()
		return ErrUnknownPeer
	}
	if _, linked := src.links[to]; !linked {
		h.mu.RUnlock()
		return ErrNotLinked
	}
	conn := dst.conn
	h.mu.RUnlock()

	h.deliver([]delivery{{peer: to, conn: conn, event: protocol.Signal(from, data)}})
	return nil
}

// Linked reports whether a and b were introduced to each other.
func (h *Hub) Linked(a, b domain.PeerID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.peers[a]
	if !ok {
		return false
	}
	_, linked := e.links[b]
	return linked
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// deliver runs outside h.mu: a kicked connection closes and its read loop
// comes back through OnPeerLeft.
func (h *Hub) deliver(out []delivery) {
	for _, d := range out {
		frame, err := protocol.Encode(d.event)
		if err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("encode event")
			continue
		}
		err = d.conn.TrySend(frame)
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrConnectionClosed) {
			continue
		}
		h.onBackPressure(d, err)
	}
}

func (h *Hub) onBackPressure(d delivery, err error) {
	action := app.DropFrame
	if h.policy != nil {
		action = h.policy.OnBackPressure(d.peer)
	}
	logger := log.Warn().Err(err).Str("module", "relay").Str("peer", string(d.peer)).Str("event", string(d.event.Type))
	switch action {
	case app.KickMember:
		logger.Msg("send failed, kicking peer")
		d.conn.Close()
	case app.DropFrame, app.NoAction:
		logger.Msg("send failed, frame dropped")
	}
}
