package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/agencore/internal/auth"
	"github.com/suPer8Hu/agencore/internal/logging"
)

type ServerConfig struct {
	MaxMessageBytes int64
	PendingRequests int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	AllowedOrigins  []string
	// JWTSecret verifies the optional token query parameter or bearer header.
	JWTSecret string
	// RequireAuth rejects connections without a valid token.
	RequireAuth bool
}

// Server upgrades HTTP requests to chat channels. Each connection gets a
// reader and a processor goroutine; requests on one connection run one at
// a time in arrival order.
type Server struct {
	core     *Core
	reg      *Registry
	cfg      ServerConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(core *Core, reg *Registry, cfg ServerConfig) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 * 1024
	}
	if cfg.PendingRequests <= 0 {
		cfg.PendingRequests = 4
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		core:     core,
		reg:      reg,
		cfg:      cfg,
		upgrader: makeUpgrader(cfg.AllowedOrigins),
		log:      logging.Component("ws"),
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return "", !s.cfg.RequireAuth
	}
	claims, err := auth.ParseJWT(token, s.cfg.JWTSecret)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	sess := newSession(uuid.NewString(), userID, conn, s.cfg.WriteTimeout)
	s.reg.Register(sess)
	l := s.log.With().Str("session_id", sess.ID).Str("user_id", userID).Logger()
	l.Info().Int("open", s.reg.Count()).Msg("channel opened")

	defer func() {
		s.reg.Unregister(sess.ID)
		_ = sess.Close()
		l.Info().Int("open", s.reg.Count()).Msg("channel closed")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if userID != "" {
		ctx = WithUser(ctx, userID)
	}

	pending := make(chan Request, s.cfg.PendingRequests)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for req := range pending {
			if err := s.core.HandleRequest(gctx, sess, req); err != nil {
				l.Debug().Err(err).Msg("request ended with error")
			}
		}
		return nil
	})
	g.Go(func() error {
		return s.keepAlive(gctx, sess)
	})

	s.readLoop(ctx, sess, pending, l)

	// Reader is done: the client is gone. Stop any in-flight generation.
	cancel()
	close(pending)
	_ = g.Wait()
}

func (s *Server) readLoop(ctx context.Context, sess *Session, pending chan<- Request, l zerolog.Logger) {
	conn := sess.conn
	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				l.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if sess.Closed() {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = sess.Send(ctx, rejection(msgInvalidFormat))
			continue
		}
		select {
		case pending <- req:
		default:
			_ = sess.Send(ctx, rejection(msgTooManyPending))
		}
	}
}

func (s *Server) keepAlive(ctx context.Context, sess *Session) error {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := sess.ping(); err != nil {
				return nil
			}
		}
	}
}
