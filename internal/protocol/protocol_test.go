package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		event PeerEvent
		want  string
	}{
		{name: "id assigned", event: IDAssigned("p1"), want: `{"IdAssigned":"p1"}`},
		{name: "new peer", event: NewPeer("p2"), want: `{"NewPeer":"p2"}`},
		{name: "peer left", event: PeerLeft("p3"), want: `{"PeerLeft":"p3"}`},
		{
			name:  "signal",
			event: Signal("p1", json.RawMessage(`{"Offer":"v=0"}`)),
			want:  `{"Signal":{"sender":"p1","data":{"Offer":"v=0"}}}`,
		},
		{name: "signal without data", event: Signal("p1", nil), want: `{"Signal":{"sender":"p1","data":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := Encode(PeerEvent{Type: "Bogus", Peer: "p"})
	assert.Error(t, err)
}

func TestPeerEvent_Unmarshal(t *testing.T) {
	var e PeerEvent
	require.NoError(t, json.Unmarshal([]byte(`{"Signal":{"sender":"p9","data":{"IceCandidate":"c"}}}`), &e))
	assert.Equal(t, EventSignal, e.Type)
	assert.Equal(t, "p9", string(e.Peer))
	assert.JSONEq(t, `{"IceCandidate":"c"}`, string(e.Data))

	require.NoError(t, json.Unmarshal([]byte(`{"NewPeer":"p2"}`), &e))
	assert.Equal(t, NewPeer("p2"), e)

	assert.Error(t, json.Unmarshal([]byte(`{"NewPeer":"a","PeerLeft":"b"}`), &e))
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"Bogus":"a"}`), &e), ErrUnknownRequest)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    PeerRequest
		wantErr bool
	}{
		{name: "keepalive", in: `"KeepAlive"`, want: PeerRequest{KeepAlive: true}},
		{name: "keepalive with spaces", in: " \"KeepAlive\"\n", want: PeerRequest{KeepAlive: true}},
		{
			name: "signal",
			in:   `{"Signal":{"receiver":"p2","data":{"Answer":"sdp"}}}`,
			want: PeerRequest{Signal: &SignalRequest{Receiver: "p2", Data: json.RawMessage(`{"Answer":"sdp"}`)}},
		},
		{name: "unknown string", in: `"Ping"`, wantErr: true},
		{name: "unknown object", in: `{"Join":{}}`, wantErr: true},
		{name: "missing receiver", in: `{"Signal":{"data":1}}`, wantErr: true},
		{name: "not json", in: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeerRequest_Marshal(t *testing.T) {
	b, err := json.Marshal(PeerRequest{KeepAlive: true})
	require.NoError(t, err)
	assert.Equal(t, `"KeepAlive"`, string(b))

	b, err = json.Marshal(PeerRequest{Signal: &SignalRequest{Receiver: "p2", Data: json.RawMessage(`"x"`)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Signal":{"receiver":"p2","data":"x"}}`, string(b))

	_, err = json.Marshal(PeerRequest{})
	assert.Error(t, err)
}
