// Package protocol implements the JSON text frames exchanged with
// signaling clients. Events and requests are externally tagged objects,
// e.g. {"NewPeer":"<id>"} or {"Signal":{"receiver":"<id>","data":{...}}};
// a keepalive request is the bare string "KeepAlive".
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/matchbox-server/internal/domain"
)

type EventType string

const (
	EventIDAssigned EventType = "IdAssigned"
	EventNewPeer    EventType = "NewPeer"
	EventPeerLeft   EventType = "PeerLeft"
	EventSignal     EventType = "Signal"
)

var ErrUnknownRequest = errors.New("unknown request")

// PeerEvent is a server to client message.
type PeerEvent struct {
	Type EventType
	// Peer is the subject of the event; the sender for Signal.
	Peer domain.PeerID
	Data json.RawMessage
}

type signalEvent struct {
	Sender domain.PeerID   `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

func IDAssigned(p domain.PeerID) PeerEvent { return PeerEvent{Type: EventIDAssigned, Peer: p} }
func NewPeer(p domain.PeerID) PeerEvent    { return PeerEvent{Type: EventNewPeer, Peer: p} }
func PeerLeft(p domain.PeerID) PeerEvent   { return PeerEvent{Type: EventPeerLeft, Peer: p} }

func Signal(sender domain.PeerID, data json.RawMessage) PeerEvent {
	return PeerEvent{Type: EventSignal, Peer: sender, Data: data}
}

func (e PeerEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventIDAssigned, EventNewPeer, EventPeerLeft:
		return json.Marshal(map[EventType]domain.PeerID{e.Type: e.Peer})
	case EventSignal:
		data := e.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(map[EventType]signalEvent{e.Type: {Sender: e.Peer, Data: data}})
	default:
		return nil, fmt.Errorf("marshal event %q: unknown type", e.Type)
	}
}

func (e *PeerEvent) UnmarshalJSON(b []byte) error {
	var raw map[EventType]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("event must have exactly one tag, got %d", len(raw))
	}
	for typ, body := range raw {
		switch typ {
		case EventIDAssigned, EventNewPeer, EventPeerLeft:
			var p domain.PeerID
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("decode %s: %w", typ, err)
			}
			*e = PeerEvent{Type: typ, Peer: p}
		case EventSignal:
			var s signalEvent
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("decode %s: %w", typ, err)
			}
			*e = PeerEvent{Type: typ, Peer: s.Sender, Data: s.Data}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownRequest, typ)
		}
	}
	return nil
}

// SignalRequest asks the server to relay data to receiver.
type SignalRequest struct {
	Receiver domain.PeerID   `json:"receiver"`
	Data     json.RawMessage `json:"data"`
}

// PeerRequest is a client to server message: either a keepalive or a
// signal to relay.
type PeerRequest struct {
	KeepAlive bool
	Signal    *SignalRequest
}

const keepAliveTag = "KeepAlive"

func ParseRequest(data []byte) (PeerRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return PeerRequest{}, err
		}
		if tag != keepAliveTag {
			return PeerRequest{}, fmt.Errorf("%w: %q", ErrUnknownRequest, tag)
		}
		return PeerRequest{KeepAlive: true}, nil
	}

	var env struct {
		Signal *SignalRequest `json:"Signal"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return PeerRequest{}, err
	}
	if env.Signal == nil {
		return PeerRequest{}, ErrUnknownRequest
	}
	if env.Signal.Receiver == "" {
		return PeerRequest{}, errors.New("signal without receiver")
	}
	return PeerRequest{Signal: env.Signal}, nil
}

func (r PeerRequest) MarshalJSON() ([]byte, error) {
	if r.KeepAlive {
		return json.Marshal(keepAliveTag)
	}
	if r.Signal == nil {
		return nil, ErrUnknownRequest
	}
	return json.Marshal(map[string]*SignalRequest{"Signal": r.Signal})
}

func Encode(e PeerEvent) ([]byte, error) {
	return json.Marshal(e)
}
