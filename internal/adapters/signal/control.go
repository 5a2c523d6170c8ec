package signal

import (
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleKeepAlive exists for browsers, which cannot send ping frames.
func (ctl *SignalWSController) handleKeepAlive(peer domain.PeerID, c *WsSignalConn) {
	ctl.extendDeadline(c)
	log.Trace().Str("module", "signal").Str("peer", string(peer)).Msg("keepalive")
}
