package domain

type (
	RoomID string
	// Origin identifies one client connection before it has a peer id.
	Origin string
)

// DefaultThreshold is the room size that triggers matchmaking when a
// request carries no explicit "next" value: the first pairwise match.
const DefaultThreshold = 2

// RequestedRoom is a client's join request. Next, when set, is the number
// of peers (the new one included) that must be waiting before the room is
// ready.
type RequestedRoom struct {
	ID   RoomID
	Next *int
}

func (r RequestedRoom) Threshold() int {
	if r.Next != nil && *r.Next > 0 {
		return *r.Next
	}
	return DefaultThreshold
}
