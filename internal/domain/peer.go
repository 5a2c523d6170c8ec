// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// PeerID is assigned by the transport once a connection is established.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}
