package app

import "github.com/dkeye/matchbox-server/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy holds the transport decisions the core leaves open: whether a
// connection request is admitted and what happens to a peer whose send
// queue is full.
type Policy interface {
	Admit(origin domain.Origin, room domain.RequestedRoom) bool
	OnBackPressure(peer domain.PeerID) BackpressureAction
}

// SimplePolicy admits everyone and disconnects slow peers.
type SimplePolicy struct{}

func (SimplePolicy) Admit(domain.Origin, domain.RequestedRoom) bool { return true }

func (SimplePolicy) OnBackPressure(domain.PeerID) BackpressureAction {
	return KickMember
}
