package http

import (
	"context"
	"time"

	"github.com/dkeye/matchbox-server/internal/adapters/signal"
	"github.com/dkeye/matchbox-server/internal/config"
	handlers "github.com/dkeye/matchbox-server/internal/transport/http"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie. It only correlates log lines; peer ids are per connection.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.GetString(clientTokenKey)).
			Msg("request")
	}
}

func corsConfig(origins []string) cors.Config {
	cc := cors.DefaultConfig()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	cc.AllowOrigins = origins
	return cc
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, h *handlers.Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MatchboxSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(RequestLogger())

	r.GET("/health", h.Health)
	r.GET("/attestation", h.Attestation)
	r.GET("/stats", h.Stats)
	r.GET("/ice-servers", h.ICEServers)

	// Every other path is a room id.
	r.NoRoute(func(c *gin.Context) {
		if !websocket.IsWebSocketUpgrade(c.Request) {
			c.Status(404)
			return
		}
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Str("path", c.Request.URL.Path).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Strs("cors", cfg.CORSOrigins).Msg("router setup")
	return r
}
