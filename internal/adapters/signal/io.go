package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/matchbox-server/internal/app/relay"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/dkeye/matchbox-server/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, peer domain.PeerID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Limiter.Forget(peer)
		ctl.Topology.OnDisconnect(peer)
	}()

	ctl.extendDeadline(c)
	c.conn.SetPongHandler(func(string) error {
		ctl.extendDeadline(c)
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("readPump read error")
			}
			return
		}
		ctl.extendDeadline(c)
		ctl.handleMessage(peer, c, data)
	}
}

func (ctl *SignalWSController) extendDeadline(c *WsSignalConn) {
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
}

func (ctl *SignalWSController) handleMessage(peer domain.PeerID, c *WsSignalConn, data []byte) {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("bad request")
		return
	}

	switch {
	case req.KeepAlive:
		ctl.handleKeepAlive(peer, c)
	case req.Signal != nil:
		ctl.handleSignal(peer, req.Signal)
	}
}

func (ctl *SignalWSController) handleSignal(peer domain.PeerID, req *protocol.SignalRequest) {
	if !ctl.Limiter.Allow(peer) {
		log.Warn().Str("module", "signal").Str("peer", string(peer)).Msg("signal rate limited")
		return
	}
	err := ctl.Hub.Relay(peer, req.Receiver, req.Data)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNotLinked), errors.Is(err, relay.ErrUnknownPeer):
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peer)).Str("receiver", string(req.Receiver)).Msg("signal dropped")
	default:
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("relay")
	}
}
