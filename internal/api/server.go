// Package api serves the bridge over HTTP: one POST route per method, a
// websocket for status subscriptions, metrics and recent logs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/shazow/wifibridge/internal/bridge"
	wifilog "github.com/shazow/wifibridge/internal/log"
)

// DefaultListen is the default address of the local API.
const DefaultListen = "127.0.0.1:8642"

const (
	writeTimeout  = 10 * time.Second
	maxBodyLength = 1 << 16
)

type Config struct {
	Bridge *bridge.Bridge
	Logger *slog.Logger
	// Logs is served at /debug/logs when set.
	Logs *wifilog.Ring
}

type Server struct {
	bridge   *bridge.Bridge
	log      *slog.Logger
	logs     *wifilog.Ring
	router   *mux.Router
	upgrader websocket.Upgrader
	methods  map[string]method
}

// method handles one API call. It returns the reply payload or an error.
type method func(ctx context.Context, body []byte) (any, error)

func NewServer(cfg Config) *Server {
	s := &Server{
		bridge: cfg.Bridge,
		log:    cfg.Logger,
		logs:   cfg.Logs,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.methods = map[string]method{
		"getstatus":              s.getStatus,
		"setstate":               s.setState,
		"findnetworks":           s.findNetworks,
		"connect":                s.connect,
		"getprofile":             s.getProfile,
		"getprofilelist":         s.getProfileList,
		"deleteprofile":          s.deleteProfile,
		"getinfo":                s.getInfo,
		"manager/getproperties":  s.getProperties,
		"manager/checkavailable": s.checkAvailable,
	}

	s.router.HandleFunc("/api/v1/getstatus", s.handleSubscribe).
		Methods(http.MethodGet).
		MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return websocket.IsWebSocketUpgrade(r)
		})
	s.router.HandleFunc("/api/v1/{method:.+}", s.handleCall).Methods(http.MethodPost)
	s.router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/logs", s.handleLogs).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["method"]
	m, ok := s.methods[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`wifibridge_api_requests_total{method=%q}`, name)).Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyLength))
	if err != nil {
		s.reply(w, name, nil, badRequest(err))
		return
	}
	out, err := m(r.Context(), body)
	s.reply(w, name, out, err)
}

// reply writes a luna style payload. Failures are reported in the payload,
// never through the HTTP status.
func (s *Server) reply(w http.ResponseWriter, name string, out any, err error) {
	if err != nil {
		s.log.Debug("call failed", "method", name, "error", err)
		out = errorReply(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warn("failed to write reply", "method", name, "error", err)
	}
}

// ErrorReply is the payload of a failed call.
type ErrorReply struct {
	ReturnValue bool   `json:"returnValue"`
	ErrorCode   int    `json:"errorCode"`
	ErrorText   string `json:"errorText"`
}

func errorReply(err error) ErrorReply {
	var e *bridge.Error
	if !errors.As(err, &e) {
		e = &bridge.Error{Code: bridge.ErrorCode(err), Text: err.Error()}
	}
	return ErrorReply{ErrorCode: int(e.Code), ErrorText: e.Text}
}

func badRequest(err error) error {
	return &bridge.Error{Code: bridge.InvalidRequest, Text: fmt.Sprintf("malformed request: %v", err)}
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest(err)
	}
	return nil
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := []wifilog.Entry{}
	if s.logs != nil {
		entries = s.logs.Entries()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.log.Warn("failed to write logs", "error", err)
	}
}

// handleSubscribe streams status pushes over a websocket. The first frame is
// the getstatus reply.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := s.log.With("subscriber", id)

	st, sub, err := s.bridge.GetStatus(r.Context(), true)
	if err != nil {
		s.writeFrame(conn, errorReply(err))
		s.closeFrame(conn, websocket.CloseNormalClosure, "")
		return
	}
	defer sub.Cancel()
	log.Debug("websocket subscriber connected")

	if err := s.writeFrame(conn, st); err != nil {
		return
	}

	// Drain incoming frames to notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st, ok := <-sub.C:
			if !ok {
				s.closeFrame(conn, websocket.CloseGoingAway, "wifi service stopped")
				return
			}
			if err := s.writeFrame(conn, st); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		case <-gone:
			log.Debug("websocket subscriber disconnected")
			return
		case <-r.Context().Done():
			s.closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (s *Server) closeFrame(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
