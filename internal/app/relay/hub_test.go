package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/core"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/dkeye/matchbox-server/internal/protocol"
)

type mockConn struct {
	mu       sync.Mutex
	received []protocol.PeerEvent
	closed   bool
	sendErr  error
}

func (m *mockConn) TrySend(f core.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrConnectionClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	var e protocol.PeerEvent
	if err := json.Unmarshal(f, &e); err != nil {
		return err
	}
	m.received = append(m.received, e)
	return nil
}

func (m *mockConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) events() []protocol.PeerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.PeerEvent(nil), m.received...)
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fixedPolicy struct{ action app.BackpressureAction }

func (fixedPolicy) Admit(domain.Origin, domain.RequestedRoom) bool { return true }
func (p fixedPolicy) OnBackPressure(domain.PeerID) app.BackpressureAction {
	return p.action
}

func newHubWith(t *testing.T, policy app.Policy, peers ...domain.PeerID) (*Hub, map[domain.PeerID]*mockConn) {
	t.Helper()
	h := NewHub(policy)
	conns := make(map[domain.PeerID]*mockConn, len(peers))
	for _, p := range peers {
		c := &mockConn{}
		conns[p] = c
		h.Register(p, c)
	}
	return h, conns
}

func TestHub_OnMatchIntroducesPairs(t *testing.T) {
	tests := []struct {
		name  string
		peers []domain.PeerID
		want  map[domain.PeerID][]protocol.PeerEvent
	}{
		{
			name:  "pair",
			peers: []domain.PeerID{"p1", "p2"},
			want: map[domain.PeerID][]protocol.PeerEvent{
				"p1": {protocol.NewPeer("p2")},
				"p2": nil,
			},
		},
		{
			name:  "trio",
			peers: []domain.PeerID{"p1", "p2", "p3"},
			want: map[domain.PeerID][]protocol.PeerEvent{
				"p1": {protocol.NewPeer("p2"), protocol.NewPeer("p3")},
				"p2": {protocol.NewPeer("p3")},
				"p3": nil,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, conns := newHubWith(t, app.SimplePolicy{}, tt.peers...)
			h.OnMatch(core.Match{Room: "r", Peers: tt.peers})

			for p, want := range tt.want {
				assert.Equal(t, want, conns[p].events(), "peer %s", p)
			}
			for i, a := range tt.peers {
				for _, b := range tt.peers[i+1:] {
					assert.True(t, h.Linked(a, b))
					assert.True(t, h.Linked(b, a))
				}
			}
		})
	}
}

func TestHub_OnMatchIsIdempotent(t *testing.T) {
	h, conns := newHubWith(t, app.SimplePolicy{}, "p1", "p2", "p3")
	h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "p2"}})
	h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "p2", "p3"}})

	assert.Equal(t, []protocol.PeerEvent{protocol.NewPeer("p2"), protocol.NewPeer("p3")}, conns["p1"].events())
	assert.Equal(t, []protocol.PeerEvent{protocol.NewPeer("p3")}, conns["p2"].events())
	assert.Empty(t, conns["p3"].events())
}

func TestHub_OnMatchSkipsUnregistered(t *testing.T) {
	h, conns := newHubWith(t, app.SimplePolicy{}, "p1")
	h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "ghost"}})

	assert.Empty(t, conns["p1"].events())
	assert.False(t, h.Linked("p1", "ghost"))
}

func TestHub_Relay(t *testing.T) {
	h, conns := newHubWith(t, app.SimplePolicy{}, "p1", "p2", "p3")
	h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "p2"}})

	data := json.RawMessage(`{"Offer":"sdp"}`)
	require.NoError(t, h.Relay("p1", "p2", data))
	events := conns["p2"].events()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventSignal, events[0].Type)
	assert.Equal(t, domain.PeerID("p1"), events[0].Peer)
	assert.JSONEq(t, string(data), string(events[0].Data))

	assert.ErrorIs(t, h.Relay("p1", "p3", data), ErrNotLinked)
	assert.ErrorIs(t, h.Relay("p1", "nobody", data), ErrUnknownPeer)
	assert.ErrorIs(t, h.Relay("nobody", "p1", data), ErrUnknownPeer)
	assert.Empty(t, conns["p3"].events())
}

func TestHub_OnPeerLeftNotifiesLinks(t *testing.T) {
	h, conns := newHubWith(t, app.SimplePolicy{}, "p1", "p2", "p3")
	h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "p2"}})

	h.OnPeerLeft("p2")

	assert.Equal(t, []protocol.PeerEvent{protocol.NewPeer("p2"), protocol.PeerLeft("p2")}, conns["p1"].events())
	assert.Empty(t, conns["p3"].events())
	assert.False(t, h.Linked("p1", "p2"))
	assert.Equal(t, 2, h.Count())

	h.OnPeerLeft("p2")
	assert.Equal(t, 2, h.Count())
}

func TestHub_BackPressure(t *testing.T) {
	tests := []struct {
		name       string
		action     app.BackpressureAction
		wantClosed bool
	}{
		{name: "kick", action: app.KickMember, wantClosed: true},
		{name: "drop", action: app.DropFrame, wantClosed: false},
		{name: "no action", action: app.NoAction, wantClosed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, conns := newHubWith(t, fixedPolicy{action: tt.action}, "p1", "p2")
			conns["p1"].sendErr = core.ErrBackpressure

			h.OnMatch(core.Match{Room: "r", Peers: []domain.PeerID{"p1", "p2"}})
			assert.Equal(t, tt.wantClosed, conns["p1"].isClosed())
		})
	}
}

func TestHub_ClosedConnectionIsNotKicked(t *testing.T) {
	h, conns := newHubWith(t, fixedPolicy{action: app.KickMember}, "p1")
	conns["p1"].Close()
	require.NoError(t, h.Send("p1", protocol.IDAssigned("p1")))
	assert.Empty(t, conns["p1"].events())
	assert.ErrorIs(t, h.Send("ghost", protocol.IDAssigned("ghost")), ErrUnknownPeer)
}
