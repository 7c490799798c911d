// Package listener owns the bound TCP socket and runs one responder goroutine
// per accepted client.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pong_nexus/internal/core/responder"
	"pong_nexus/internal/core/stats"
	"pong_nexus/internal/shared"
	"pong_nexus/internal/shared/logger"
	"pong_nexus/internal/shared/types"
	"pong_nexus/internal/sys/sockopt"
)

const maxAcceptDelay = time.Second

// Config holds the startup parameters of a Listener.
type Config struct {
	Host        string
	Port        int
	BufferSize  int
	ReuseAddr   bool
	IdleTimeout time.Duration
}

// ConfigFrom converts the ini server section into a listener Config.
func ConfigFrom(c types.ServerConf) Config {
	return Config{
		Host:        c.Host,
		Port:        c.Port,
		BufferSize:  c.BufferSize,
		ReuseAddr:   c.ReuseAddr,
		IdleTimeout: time.Duration(c.IdleTimeout) * time.Second,
	}
}

type handlerFunc func(conn net.Conn) (responder.Result, error)

// Listener owns the bound TCP socket and runs one worker goroutine per client.
type Listener struct {
	cfg          Config
	listener     net.Listener
	listenerInfo *types.ListenerInfo
	counters     *stats.Counters
	events       types.EventSink
	handle       handlerFunc
	log          zerolog.Logger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	waitGroup sync.WaitGroup
}

type Option func(*Listener)

func WithCounters(c *stats.Counters) Option {
	return func(l *Listener) { l.counters = c }
}

// WithEventSink publishes connected/closed events to sink.
func WithEventSink(sink types.EventSink) Option {
	return func(l *Listener) { l.events = sink }
}

func New(cfg Config, opts ...Option) *Listener {
	l := &Listener{
		cfg:   cfg,
		conns: make(map[net.Conn]struct{}),
		log:   logger.WithComponent("listener"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.counters == nil {
		l.counters = stats.New()
	}
	r := responder.New(cfg.BufferSize,
		responder.WithIdleTimeout(cfg.IdleTimeout),
		responder.WithObserver(l.counters),
	)
	l.handle = func(conn net.Conn) (responder.Result, error) {
		return r.Handle(conn)
	}
	return l
}

// InitializeListener binds the socket without blocking and returns the actual port.
// Port 0 picks an ephemeral port.
func (l *Listener) InitializeListener() (int, error) {
	listenAddr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	lc := sockopt.ListenConfig(sockopt.Options{ReuseAddr: l.cfg.ReuseAddr})
	ln, err := lc.Listen(context.Background(), "tcp4", listenAddr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	l.listener = ln

	tcpAddr := ln.Addr().(*net.TCPAddr)
	l.listenerInfo = &types.ListenerInfo{
		Address: tcpAddr.IP.String(),
		Port:    tcpAddr.Port,
	}
	l.log.Info().Str("listen_addr", ln.Addr().String()).Msgf("Server listening on port %d", tcpAddr.Port)

	return tcpAddr.Port, nil
}

// Serve 启动阻塞的 accept 循环，必须在 InitializeListener 之后调用。
// It returns once the listener has been closed.
func (l *Listener) Serve() error {
	if l.listener == nil {
		return errors.New("listener: Serve called before InitializeListener")
	}
	if l.closing.Load() {
		return net.ErrClosed
	}
	l.waitGroup.Add(1)
	l.acceptLoop()
	return nil
}

// Start binds and serves in one call.
func (l *Listener) Start() error {
	if _, err := l.InitializeListener(); err != nil {
		return err
	}
	return l.Serve()
}

func (l *Listener) GetListenerInfo() *types.ListenerInfo {
	return l.listenerInfo
}

func (l *Listener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) Counters() *stats.Counters {
	return l.counters
}

func (l *Listener) acceptLoop() {
	defer l.waitGroup.Done()
	var delay time.Duration
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.closing.Load() {
				l.log.Info().Msg("Listener is closing.")
				return
			}
			l.counters.AcceptError()
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			l.log.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to accept connection")
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !l.track(conn) {
			conn.Close()
			return
		}
		l.counters.ConnectionOpened()
		l.waitGroup.Add(1)
		go l.handleConnection(conn)
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	traceID := uuid.NewString()
	peer := conn.RemoteAddr().String()
	cl := l.log.With().Str("trace_id", traceID).Str("peer", peer).Logger()
	counted := shared.NewCountedConn(conn)

	var (
		res    responder.Result
		reason string
	)

	defer l.waitGroup.Done()
	defer func() {
		l.untrack(conn)
		conn.Close()
		l.counters.AddBytesOut(counted.BytesOut())
		l.counters.ConnectionClosed()
		cl.Debug().Int64("replies", res.Replies).Int64("bytes_in", res.BytesIn).Int64("bytes_out", counted.BytesOut()).Str("reason", reason).Msg("Client disconnected")
		l.publish(&types.ConnectionEvent{
			Timestamp: time.Now(),
			TraceID:   traceID,
			Peer:      peer,
			Action:    types.ActionClosed,
			Replies:   res.Replies,
			BytesIn:   res.BytesIn,
			BytesOut:  counted.BytesOut(),
			Reason:    reason,
		})
	}()
	// A panicking worker only loses its own connection.
	defer func() {
		if r := recover(); r != nil {
			l.counters.WorkerPanic()
			reason = fmt.Sprintf("panic: %v", r)
			cl.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Connection worker panicked")
		}
	}()

	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		cl.Info().Msgf("Client connected: %s:%d", tcpAddr.IP.String(), tcpAddr.Port)
	} else {
		cl.Info().Msgf("Client connected: %s", peer)
	}
	l.publish(&types.ConnectionEvent{
		Timestamp: time.Now(),
		TraceID:   traceID,
		Peer:      peer,
		Action:    types.ActionConnected,
	})

	var err error
	res, err = l.handle(counted)
	switch {
	case err == nil:
		reason = "peer closed"
	case l.closing.Load():
		reason = "server shutdown"
	case errors.Is(err, responder.ErrWrite):
		l.counters.WriteError()
		reason = err.Error()
		cl.Warn().Err(err).Msg("Failed to send reply")
	default:
		l.counters.ReadError()
		reason = err.Error()
		cl.Warn().Err(err).Msg("Failed to read from client")
	}
}

func (l *Listener) publish(ev *types.ConnectionEvent) {
	if l.events != nil {
		l.events.PublishConnectionEvent(ev)
	}
}

// track registers conn for shutdown; it reports false once Close has begun.
func (l *Listener) track(conn net.Conn) bool {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	if l.closing.Load() {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.connsMu.Lock()
	delete(l.conns, conn)
	l.connsMu.Unlock()
}

// Close stops accepting, closes every live client connection and waits for
// all workers to finish. It is safe to call more than once.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.connsMu.Lock()
		l.closing.Store(true)
		for conn := range l.conns {
			conn.Close()
		}
		l.connsMu.Unlock()

		if l.listener != nil {
			l.listener.Close()
		}
		l.waitGroup.Wait()
		l.log.Info().Msg("Listener has been shut down")
	})
}
