package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/matchbox-server/internal/app/relay"
	"github.com/dkeye/matchbox-server/internal/app/topology"
	"github.com/dkeye/matchbox-server/internal/config"
	"github.com/dkeye/matchbox-server/internal/core"
	"github.com/dkeye/matchbox-server/internal/domain"
	"github.com/dkeye/matchbox-server/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultReadLimit  = 64 << 10
	defaultPingPeriod = 54 * time.Second
	defaultWriteWait  = 10 * time.Second
	defaultSendBuffer = 32
)

type SignalWSController struct {
	Topology *topology.Topology
	Hub      *relay.Hub
	Limiter  *PeerRateLimiter

	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
	sendBuffer int
	upgrader   websocket.Upgrader
}

func NewSignalWSController(topo *topology.Topology, hub *relay.Hub, cfg *config.Config) *SignalWSController {
	ctl := &SignalWSController{
		Topology:   topo,
		Hub:        hub,
		readLimit:  defaultReadLimit,
		pingPeriod: defaultPingPeriod,
		writeWait:  defaultWriteWait,
		sendBuffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if cfg != nil {
		if cfg.ReadLimit > 0 {
			ctl.readLimit = cfg.ReadLimit
		}
		if cfg.PingPeriod > 0 {
			ctl.pingPeriod = cfg.PingPeriod
		}
		if cfg.WriteWait > 0 {
			ctl.writeWait = cfg.WriteWait
		}
		if cfg.SendBuffer > 0 {
			ctl.sendBuffer = cfg.SendBuffer
		}
		ctl.Limiter = NewPeerRateLimiter(cfg.SignalRateLimit, cfg.SignalRateInterval)
	} else {
		ctl.Limiter = NewPeerRateLimiter(0, 0)
	}
	// peers must answer a ping before the next one is due
	ctl.pongWait = ctl.pingPeriod * 10 / 9
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades a request whose path names the room to join. The
// peer gets its id first; introductions to room mates follow once the room
// is ready.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	origin := domain.Origin(c.Request.RemoteAddr)
	path := c.Request.URL.Path
	log.Info().Str("module", "signal").Str("origin", string(origin)).Str("path", path).Msg("new WS connection")

	if !ctl.Topology.OnConnectionRequest(origin, path, c.Request.URL.Query()) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("origin", string(origin)).Msg("ws upgrade")
		ctl.Topology.OnConnectionAbandoned(origin)
		return
	}
	ws.SetReadLimit(ctl.readLimit)

	conn := newWsSignalConn(ws, ctl.sendBuffer)
	peer := domain.NewPeerID()
	ctl.Hub.Register(peer, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if err := ctl.Hub.Send(peer, protocol.IDAssigned(peer)); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("send id")
	}
	ctl.Topology.OnIDAssignment(origin, peer)

	go ctl.readPump(ctx, cancel, peer, conn)
}
