package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pong_nexus/internal/core/listener"
	"pong_nexus/internal/core/stats"
	"pong_nexus/internal/service/web"
	"pong_nexus/internal/shared/globalstate"
	"pong_nexus/internal/shared/logger"
	"pong_nexus/internal/shared/types"
)

const shutdownTimeout = 5 * time.Second

// AppServer is the application's main struct. It wires the PONG listener,
// the status web service and the stats loop together.
type AppServer struct {
	cfg       *types.Config
	counters  *stats.Counters
	listener  *listener.Listener
	hub       *web.Hub
	webServer *web.Server
	status    *globalstate.StatusManager

	cancel   context.CancelFunc
	mu       sync.Mutex
	stopOnce sync.Once
}

// AppServer is what the status handler reports on.
var _ web.StatusProvider = (*AppServer)(nil)

func New(cfg *types.Config) *AppServer {
	s := &AppServer{
		cfg:      cfg,
		counters: stats.New(),
		hub:      web.NewHub(),
		status:   globalstate.NewStatusManager(),
	}
	s.listener = listener.New(listener.ConfigFrom(cfg.ServerConf),
		listener.WithCounters(s.counters),
		listener.WithEventSink(s.hub),
	)
	if cfg.WebConf.WebPort > 0 {
		addr := net.JoinHostPort(cfg.WebConf.WebHost, strconv.Itoa(cfg.WebConf.WebPort))
		s.webServer = web.NewServer(addr, cfg.WebConf, s, s.hub)
	}
	return s
}

// Start binds the PONG port and, when enabled, the web port. Any error here
// is a startup failure the caller should treat as fatal.
func (s *AppServer) Start() (int, error) {
	port, err := s.listener.InitializeListener()
	if err != nil {
		return 0, err
	}
	if s.webServer == nil {
		logger.Debug().Msg("Status web service is disabled (web_port is 0 or not set).")
		return port, nil
	}
	if _, err := s.webServer.Listen(); err != nil {
		s.listener.Close()
		return 0, err
	}
	return port, nil
}

// Run serves until ctx is cancelled or Stop is called. Start must have succeeded first.
func (s *AppServer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	s.status.Set(globalstate.StatusRunning)

	g.Go(func() error {
		if err := s.listener.Serve(); err != nil {
			return fmt.Errorf("listener: %w", err)
		}
		return nil
	})
	if s.webServer != nil {
		g.Go(func() error {
			if err := s.webServer.Serve(); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.statsLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

// Stop gracefully shuts down the server. It is safe to call more than once.
func (s *AppServer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		return
	}
	// Run was never called
	s.shutdown()
}

func (s *AppServer) shutdown() {
	s.stopOnce.Do(func() {
		logger.Info().Msg("Stopping server...")
		s.status.Set(globalstate.StatusStopping)
		s.listener.Close()
		if s.webServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.webServer.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("Web server did not shut down cleanly")
			}
		}
		snap := s.counters.Snapshot()
		logger.Info().
			Int64("accepted", snap.Accepted).
			Int64("replies", snap.Replies).
			Msg("Server stopped")
		s.status.Set(globalstate.StatusStopped)
	})
}

func (s *AppServer) statsLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.WebConf.StatsInterval) * time.Second
	if interval <= 0 {
		interval = types.DefaultStatsInterval * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.counters.Snapshot()
			logger.Debug().
				Int64("active", snap.ActiveConnections).
				Int64("accepted", snap.Accepted).
				Int64("replies", snap.Replies).
				Msg("Stats")
			s.hub.BroadcastStats(snap)
		case <-ctx.Done():
			return
		}
	}
}

// GetListenerInfo implements web.StatusProvider.
func (s *AppServer) GetListenerInfo() *types.ListenerInfo {
	return s.listener.GetListenerInfo()
}

// GlobalStatus implements web.StatusProvider.
func (s *AppServer) GlobalStatus() string {
	return s.status.Get()
}

// Snapshot implements web.StatusProvider.
func (s *AppServer) Snapshot() stats.Snapshot {
	return s.counters.Snapshot()
}
