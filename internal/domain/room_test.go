package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestRequestedRoom_Threshold(t *testing.T) {
	tests := []struct {
		name string
		next *int
		want int
	}{
		{name: "no next uses default", next: nil, want: DefaultThreshold},
		{name: "explicit next", next: intPtr(5), want: 5},
		{name: "next of one", next: intPtr(1), want: 1},
		{name: "zero falls back", next: intPtr(0), want: DefaultThreshold},
		{name: "negative falls back", next: intPtr(-3), want: DefaultThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestedRoom{ID: "r", Next: tt.next}.Threshold())
		})
	}
}

func TestNewPeerID_Unique(t *testing.T) {
	a, b := NewPeerID(), NewPeerID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
