package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/pagelens/internal/bridge"
	"github.com/ent0n29/pagelens/internal/config"
	"github.com/ent0n29/pagelens/internal/coordinator"
	"github.com/ent0n29/pagelens/internal/observability"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/reliability"
)

const (
	maxMessageBytes = 2 << 20
	wsWriteTimeout  = 10 * time.Second
	wsReadTimeout   = 120 * time.Second
	wsPingInterval  = 50 * time.Second
)

type Server struct {
	cfg         config.Config
	coordinator *coordinator.Coordinator
	scanners    *bridge.ScannerBridge
	popups      *bridge.PopupHub
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader

	// readTimeout must exceed pingInterval; each pong extends the deadline.
	readTimeout  time.Duration
	pingInterval time.Duration
}

func New(cfg config.Config, coord *coordinator.Coordinator, scanners *bridge.ScannerBridge, popups *bridge.PopupHub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		coordinator:  coord,
		scanners:     scanners,
		popups:       popups,
		metrics:      metrics,
		readTimeout:  wsReadTimeout,
		pingInterval: wsPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return allowOrigin(cfg.AllowAnyOrigin, r)
			},
		},
	}
}

// allowOrigin accepts same-origin pages and extension pages. Clients that send
// no Origin are not browsers and are let through.
func allowOrigin(allowAny bool, r *http.Request) bool {
	if allowAny {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension":
		return u.Host != ""
	case "http", "https":
		return strings.EqualFold(u.Host, r.Host)
	default:
		return false
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/messages", s.handleMessage)
	r.Post("/v1/events/{kind}", s.handleEvent)
	r.Get("/v1/scanner/ws", s.handleScannerWS)
	r.Get("/v1/popup/ws", s.handlePopupWS)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"scanners": s.scanners.ConnectedCount(),
		"popups":   s.popups.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.coordinator.Status(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"store_mode":         status.StoreMode,
		"credential_backend": status.CredentialBackend,
	})
}

// handleMessage answers one command. Command failures are reported in the
// body with a 200 status, the same way the popup receives them over a socket.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		respondBodyError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.coordinator.Handle(r.Context(), raw))
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	kind := protocol.EventKind(chi.URLParam(r, "kind"))
	raw, err := readBody(w, r)
	if err != nil {
		respondBodyError(w, err)
		return
	}
	if err := s.coordinator.HandleEvent(r.Context(), kind, raw); err != nil {
		switch {
		case errors.Is(err, protocol.ErrUnsupportedType):
			respondError(w, http.StatusNotFound, "unknown_event", err.Error())
		case reliability.Classify(err) == reliability.ClassInvalidRequest:
			respondError(w, http.StatusBadRequest, string(reliability.ClassInvalidRequest), err.Error())
		default:
			respondError(w, http.StatusInternalServerError, string(reliability.Classify(err)), err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScannerWS(w http.ResponseWriter, r *http.Request) {
	tabID := strings.TrimSpace(r.URL.Query().Get("tab_id"))
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "missing_tab_id", "query parameter tab_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	peer := bridge.NewWSConn(conn, wsWriteTimeout)
	defer peer.Close()

	detach := s.scanners.Attach(tabID, peer)
	defer detach()
	s.metrics.PeerConnected("scanner", 1)
	defer s.metrics.PeerConnected("scanner", -1)

	s.serveSocket(r.Context(), conn, peer, func(ctx context.Context, data []byte) {
		frame, err := protocol.ParseScannerFrame(data)
		if err != nil {
			log.Printf("scanner frame rejected tab=%s: %v", tabID, err)
			_ = peer.WriteJSON(protocol.Fail(string(reliability.ClassInvalidRequest), "Invalid message format"))
			return
		}
		switch f := frame.(type) {
		case protocol.ScanResult:
			s.scanners.Deliver(f)
		case protocol.Command:
			resp := s.coordinator.Dispatch(ctx, coordinator.Request{Command: f, SourceTab: tabID})
			if err := peer.WriteJSON(resp); err != nil {
				log.Printf("scanner write failed tab=%s: %v", tabID, err)
			}
		}
	})
}

// handlePopupWS subscribes the popup to notifications and answers commands
// sent over the same socket.
func (s *Server) handlePopupWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	peer := bridge.NewWSConn(conn, wsWriteTimeout)
	defer peer.Close()

	unsubscribe := s.popups.Subscribe(peer)
	defer unsubscribe()
	s.metrics.PeerConnected("popup", 1)
	defer s.metrics.PeerConnected("popup", -1)

	s.serveSocket(r.Context(), conn, peer, func(ctx context.Context, data []byte) {
		if err := peer.WriteJSON(s.coordinator.Handle(ctx, data)); err != nil {
			log.Printf("popup write failed: %v", err)
		}
	})
}

// serveSocket keeps conn alive with pings and runs handle for every text
// frame in its own goroutine, so a slow command does not hold up the next
// one. It returns once the peer is gone and in-flight frames have finished;
// their context is cancelled on disconnect.
func (s *Server) serveSocket(parent context.Context, conn *websocket.Conn, peer *bridge.WSConn, handle func(context.Context, []byte)) {
	ctx, cancel := context.WithCancel(parent)
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
	}()

	go peer.KeepAlive(ctx, s.pingInterval)

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			handle(ctx, data)
		}()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errBodyTooLarge = errors.New("request body too large")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return raw, nil
}

func respondBodyError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	respondError(w, status, string(reliability.ClassInvalidRequest), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
