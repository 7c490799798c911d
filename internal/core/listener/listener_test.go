package listener

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"pong_nexus/internal/core/responder"
	"pong_nexus/internal/shared/types"
)

type recordingSink struct {
	mu     sync.Mutex
	events []types.ConnectionEvent
}

func (s *recordingSink) PublishConnectionEvent(ev *types.ConnectionEvent) {
	s.mu.Lock()
	s.events = append(s.events, *ev)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []types.ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ConnectionEvent(nil), s.events...)
}

func testConfig() Config {
	return Config{Host: "127.0.0.1", Port: 0, BufferSize: responder.DefaultBufferSize, ReuseAddr: true}
}

// startListener binds an ephemeral port and serves it until the test ends.
func startListener(t *testing.T, l *Listener) string {
	t.Helper()
	port, err := l.InitializeListener()
	if err != nil {
		t.Fatalf("InitializeListener() returned an error: %v", err)
	}
	go l.Serve()
	t.Cleanup(l.Close)
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp4", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() returned an error: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func ping(conn net.Conn, msg string) ([]byte, error) {
	if _, err := conn.Write([]byte(msg)); err != nil {
		return nil, err
	}
	reply := make([]byte, len(responder.Reply))
	if _, err := io.ReadFull(conn, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListener_PingScenario(t *testing.T) {
	l := New(testConfig())
	addr := startListener(t, l)

	for i := 0; i < 2; i++ {
		conn := dial(t, addr)
		reply, err := ping(conn, "PING\r\n")
		if err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
		if !bytes.Equal(reply, responder.Reply) {
			t.Fatalf("client %d: expected %q, got %q", i, responder.Reply, reply)
		}

		// nothing else follows the reply
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		extra := make([]byte, 16)
		if n, err := conn.Read(extra); n != 0 || !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("client %d: expected no extra bytes, got %q (err=%v)", i, extra[:n], err)
		}
		conn.Close()
	}

	waitFor(t, "workers to finish", func() bool { return l.Counters().Active() == 0 })
	if got := l.Counters().Snapshot().Accepted; got != 2 {
		t.Errorf("Expected 2 accepted connections, got %d", got)
	}
}

func TestListener_SilentClientGetsNoReply(t *testing.T) {
	l := New(testConfig())
	addr := startListener(t, l)

	conn := dial(t, addr)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if n != 0 || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Expected silence from the server, got %q (err=%v)", buf[:n], err)
	}

	// the connection is still open and served
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reply, err := ping(conn, "late")
	if err != nil {
		t.Fatalf("ping after silence: %v", err)
	}
	if !bytes.Equal(reply, responder.Reply) {
		t.Fatalf("Expected %q, got %q", responder.Reply, reply)
	}
	if got := l.Counters().Active(); got != 1 {
		t.Errorf("Expected 1 active connection, got %d", got)
	}
}

func TestListener_OneReplyPerReadEvent(t *testing.T) {
	l := New(testConfig())
	addr := startListener(t, l)

	conn := dial(t, addr)
	defer conn.Close()

	// waiting for each reply before the next write keeps the reads separate
	for i, msg := range []string{"a", "GET key\r\n", "\x00\x01\x02"} {
		reply, err := ping(conn, msg)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if !bytes.Equal(reply, responder.Reply) {
			t.Fatalf("write %d: expected %q, got %q", i, responder.Reply, reply)
		}
	}
	waitFor(t, "reply counter", func() bool { return l.Counters().Snapshot().Replies == 3 })
}

func TestListener_ConcurrentClientsDoNotLeakWorkers(t *testing.T) {
	l := New(testConfig())
	addr := startListener(t, l)

	const clients = 50
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		g.Go(func() error {
			conn, err := net.DialTimeout("tcp4", addr, 2*time.Second)
			if err != nil {
				return err
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			reply, err := ping(conn, "PING\r\n")
			if err != nil {
				return err
			}
			if !bytes.Equal(reply, responder.Reply) {
				return errors.New("unexpected reply " + strconv.Quote(string(reply)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("client failed: %v", err)
	}

	waitFor(t, "all workers to finish", func() bool { return l.Counters().Active() == 0 })
	snap := l.Counters().Snapshot()
	if snap.Accepted != clients || snap.Closed != clients {
		t.Errorf("Expected %d accepted and closed, got %+v", clients, snap)
	}
}

func TestListener_SecondBindFails(t *testing.T) {
	first := New(testConfig())
	startListener(t, first)

	cfg := testConfig()
	cfg.Port = first.GetListenerInfo().Port
	second := New(cfg)
	if _, err := second.InitializeListener(); err == nil {
		second.Close()
		t.Fatal("Expected the second listener to fail with a bind error")
	}
}

func TestListener_ServeBeforeInitialize(t *testing.T) {
	if err := New(testConfig()).Serve(); err == nil {
		t.Fatal("Expected Serve() to fail before InitializeListener()")
	}
}

func TestListener_PanickingWorkerIsIsolated(t *testing.T) {
	l := New(testConfig())
	normal := l.handle
	var calls atomic.Int32
	l.handle = func(conn net.Conn) (responder.Result, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return normal(conn)
	}
	addr := startListener(t, l)

	bad := dial(t, addr)
	defer bad.Close()
	if _, err := ping(bad, "PING\r\n"); err == nil {
		t.Fatal("Expected the panicking worker to drop its connection")
	}

	good := dial(t, addr)
	defer good.Close()
	reply, err := ping(good, "PING\r\n")
	if err != nil {
		t.Fatalf("ping after panic: %v", err)
	}
	if !bytes.Equal(reply, responder.Reply) {
		t.Fatalf("Expected %q, got %q", responder.Reply, reply)
	}
	if got := l.Counters().Snapshot().WorkerPanics; got != 1 {
		t.Errorf("Expected 1 worker panic, got %d", got)
	}
}

func TestListener_CloseReleasesLiveConnections(t *testing.T) {
	l := New(testConfig())
	addr := startListener(t, l)

	conn := dial(t, addr)
	defer conn.Close()
	waitFor(t, "connection to be tracked", func() bool { return l.Counters().Active() == 1 })

	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}

	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected the client connection to be closed by the server")
	}
	if got := l.Counters().Active(); got != 0 {
		t.Errorf("Expected no active connections after Close, got %d", got)
	}
	if _, err := net.DialTimeout("tcp4", addr, 500*time.Millisecond); err == nil {
		t.Error("Expected dialing a closed listener to fail")
	}
	// idempotent
	l.Close()
}

func TestListener_PublishesConnectionEvents(t *testing.T) {
	sink := &recordingSink{}
	l := New(testConfig(), WithEventSink(sink))
	addr := startListener(t, l)

	conn := dial(t, addr)
	if _, err := ping(conn, "PING\r\n"); err != nil {
		t.Fatalf("ping: %v", err)
	}
	conn.Close()

	waitFor(t, "closed event", func() bool { return len(sink.snapshot()) == 2 })
	events := sink.snapshot()
	if events[0].Action != types.ActionConnected || events[1].Action != types.ActionClosed {
		t.Fatalf("Unexpected event order: %+v", events)
	}
	if events[0].TraceID == "" || events[0].TraceID != events[1].TraceID {
		t.Errorf("Expected both events to share a trace id, got %q and %q", events[0].TraceID, events[1].TraceID)
	}
	if events[1].Replies != 1 || events[1].BytesIn != 6 || events[1].BytesOut != int64(len(responder.Reply)) {
		t.Errorf("Unexpected closed event: %+v", events[1])
	}
	if events[1].Reason != "peer closed" {
		t.Errorf("Expected reason 'peer closed', got %q", events[1].Reason)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(types.ServerConf{Host: "0.0.0.0", Port: 6379, BufferSize: 512, ReuseAddr: true, IdleTimeout: 3})
	if cfg.IdleTimeout != 3*time.Second || cfg.Port != 6379 || cfg.BufferSize != 512 || !cfg.ReuseAddr {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

// flakyListener fails the first Accept calls before delegating.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (f *flakyListener) Accept() (net.Conn, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("accept: too many open files")
	}
	return f.Listener.Accept()
}

func TestListener_AcceptErrorsAreNotFatal(t *testing.T) {
	l := New(testConfig())
	port, err := l.InitializeListener()
	if err != nil {
		t.Fatalf("InitializeListener() returned an error: %v", err)
	}
	flaky := &flakyListener{Listener: l.listener}
	flaky.failures.Store(2)
	l.listener = flaky
	go l.Serve()
	t.Cleanup(l.Close)

	conn := dial(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	defer conn.Close()
	reply, err := ping(conn, "PING\r\n")
	if err != nil {
		t.Fatalf("ping after accept failures: %v", err)
	}
	if !bytes.Equal(reply, responder.Reply) {
		t.Fatalf("Expected %q, got %q", responder.Reply, reply)
	}
	if got := l.Counters().Snapshot().AcceptErrors; got != 2 {
		t.Errorf("Expected 2 accept errors, got %d", got)
	}
}
