package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/aide/internal/agent"
	"github.com/soyeahso/aide/internal/cloudsync"
	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/conversation"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/hooks"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/soyeahso/aide/internal/store"
	"github.com/soyeahso/aide/internal/version"
	"github.com/soyeahso/aide/internal/voice"
)

const handshakeTimeout = 10 * time.Second

// Server exposes the assistant to apps over HTTP and a WebSocket RPC.
type Server struct {
	cfg      config.Config
	auth     authenticator
	log      *logging.Logger
	clients  *clientSet
	routes   map[string]route
	version  string
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	// Optional services. A method whose service is nil answers unavailable.
	runner     *agent.Runner
	dispatcher *agent.Dispatcher
	memory     *conversation.Memory
	prefs      *store.KV
	syncer     *cloudsync.Syncer
	hooks      *hooks.Manager

	persona  atomic.Pointer[domain.Persona]
	detector atomic.Pointer[voice.Detector]

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	limiter    *failureLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map served by config.get and config.set.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

// WithDispatcher enables the agents.* methods.
func WithDispatcher(d *agent.Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithMemory enables the conversation.* methods.
func WithMemory(m *conversation.Memory) ServerOption {
	return func(s *Server) { s.memory = m }
}

// WithPrefs enables the prefs.* methods.
func WithPrefs(kv *store.KV) ServerOption {
	return func(s *Server) { s.prefs = kv }
}

// WithSyncer enables sync.push.
func WithSyncer(sy *cloudsync.Syncer) ServerOption {
	return func(s *Server) { s.syncer = sy }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithRunner enables chat.send and voice commands that send.
func WithRunner(r *agent.Runner) ServerOption {
	return func(s *Server) { s.runner = r }
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      newAuthenticator(cfg.Gateway.Auth),
		log:       log.Sub("gateway"),
		clients:   newClientSet(log.Sub("clients")),
		routes:    make(map[string]route),
		version:   version.Version,
		configRaw: make(map[string]any),
		limiter:   newFailureLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOr(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	p := cfg.Persona.AsPersona()
	if s.runner != nil {
		p = s.runner.Persona()
	}
	s.persona.Store(&p)
	s.setDetector(p.Wake())
	s.registerRPC()
	return s
}

// sameOriginOr admits non-browser clients, which send no Origin, and the
// listed browser origins.
func sameOriginOr(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(origin, allowed)
	}
}

// setDetector rebuilds the wake-word detector. An unusable wake word
// disables voice commands until a valid one is set.
func (s *Server) setDetector(wakeWord string) {
	d, err := voice.NewDetector(wakeWord, s.cfg.Voice.Match, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("voice commands disabled")
		s.detector.Store(nil)
		return
	}
	s.detector.Store(d)
}

func (s *Server) currentPersona() domain.Persona {
	return *s.persona.Load()
}

// SetPersona switches the persona used for chat and voice, and tells
// connected clients.
func (s *Server) SetPersona(ctx context.Context, p domain.Persona) {
	if s.runner != nil {
		s.runner.SetPersona(p)
	}
	s.persona.Store(&p)
	s.setDetector(p.Wake())

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventPersonaChanged, map[string]any{"name": p.Name})
	}
	s.clients.broadcast(EventPersonaChanged, p, s.eventSeq.Add(1))
}

// WatchConfig applies persona edits made to the config file while the
// gateway runs. It blocks until ctx is done.
func (s *Server) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, s.log, func(cfg config.Config) {
		s.SetPersona(ctx, cfg.Persona.AsPersona())
	})
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.httpHandler(mux),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled; the gateway secret travels in cleartext")
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("auth", s.auth.mode).
		Strs("methods", s.Methods()).
		Msg("gateway ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.closeAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.fail(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.add(client)
	defer func() {
		s.clients.remove(client.ConnID)
		client.Close()
	}()
	s.readLoop(conn, client)
}

// handshake sends a challenge, then expects a connect request carrying the
// shared secret, and answers it with HelloOK.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		refuse(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect, got %s %q", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		refuse(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("connect params: %w", err)
	}
	if !params.supportsProtocol() {
		refuse(conn, frame.ID, CodeProtocol, fmt.Sprintf("server speaks protocol %d", ProtocolVersion))
		return nil, fmt.Errorf("protocol %d..%d unsupported", params.MinProtocol, params.MaxProtocol)
	}
	if err := s.auth.check(params.Auth); err != nil {
		refuse(conn, frame.ID, CodeUnauthorized, err.Error())
		return nil, err
	}

	conn.SetReadDeadline(time.Time{})
	client := newClient(conn, params.Client, s.auth.mode)

	p := s.currentPersona()
	hello := HelloOK{
		Protocol:  ProtocolVersion,
		Server:    ServerInfo{Version: s.version, Commit: version.Commit, ConnID: client.ConnID},
		Assistant: AssistantInfo{Name: p.Name},
		Features: Features{
			Methods:  s.Methods(),
			Events:   serverEvents,
			Services: s.Services(),
		},
		MaxPayload: maxPayload,
	}
	if d := s.detector.Load(); d != nil {
		hello.Assistant.WakeWord = d.WakeWord()
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("client", params.Client.Name).
		Str("clientVersion", params.Client.Version).
		Str("platform", params.Client.Platform).
		Msg("client authenticated")
	return client, nil
}

// readLoop serves requests until the connection drops. A frame that does
// not parse is answered and skipped.
func (s *Server) readLoop(conn *websocket.Conn, client *Client) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read failed")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			client.RespondError("", CodeProtocol, "malformed frame")
			continue
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(client, frame)
	}
}

// refuse answers the connect request with an error and closes politely.
func refuse(conn *websocket.Conn, id, code, message string) {
	conn.WriteJSON(NewErrorResponse(id, code, message))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
