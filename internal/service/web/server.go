package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"pong_nexus/internal/shared/logger"
	"pong_nexus/internal/shared/types"
)

// loggingListener logs accepted connections at debug level.
type loggingListener struct {
	net.Listener
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		logger.Debug().Msgf("[WebServer] Connection accepted from: %s", conn.RemoteAddr())
	}
	return conn, err
}

// basicAuthMiddleware 在配置了 web_user 和 web_password 时强制 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Server is the optional status web service.
type Server struct {
	addr       string
	httpServer *http.Server
	listener   net.Listener
}

// NewMux builds the routes of the status service.
func NewMux(cfg types.WebConf, provider StatusProvider, hub *Hub) *http.ServeMux {
	handler := NewHandler(provider)
	mux := http.NewServeMux()

	mux.Handle("/api/status", basicAuthMiddleware(http.HandlerFunc(handler.HandleStatus), cfg.WebUser, cfg.WebPassword))

	// --- WebSocket Endpoint (公开，无需认证) ---
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	return mux
}

func NewServer(addr string, cfg types.WebConf, provider StatusProvider, hub *Hub) *Server {
	return &Server{
		addr:       addr,
		httpServer: &http.Server{Handler: NewMux(cfg, provider, hub)},
	}
}

// Addr returns the configured listen address of the web service.
func (s *Server) Addr() string { return s.addr }

// Listen binds the web port and returns the bound address.
func (s *Server) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web server failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	logger.Info().Msgf("Status web service is listening on http://%s", listener.Addr())
	return listener.Addr(), nil
}

// Serve blocks until Shutdown is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("web: Serve called before Listen")
	}
	err := s.httpServer.Serve(loggingListener{Listener: s.listener})
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info().Msg("Web server stopped.")
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
