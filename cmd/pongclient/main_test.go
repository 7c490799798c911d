package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"pong_nexus/internal/core/listener"
	"pong_nexus/internal/core/responder"
)

func TestRun_AgainstListener(t *testing.T) {
	l := listener.New(listener.Config{Host: "127.0.0.1", Port: 0, BufferSize: responder.DefaultBufferSize, ReuseAddr: true})
	if _, err := l.InitializeListener(); err != nil {
		t.Fatalf("InitializeListener() returned an error: %v", err)
	}
	go l.Serve()
	defer l.Close()

	sum, err := run(context.Background(), options{
		addr:        l.Addr().String(),
		message:     "PING\r\n",
		count:       5,
		clients:     20,
		concurrency: 8,
		timeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("run() returned an error: %v", err)
	}
	if sum.clients != 20 || sum.replies != 100 {
		t.Errorf("Expected 20 clients and 100 replies, got %+v", sum)
	}
}

func TestRun_UnexpectedReply(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("NewLocalListener() returned an error: %v", err)
	}
	defer ln.Close()

	// answers with the right length but the wrong bytes
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write([]byte("-ERR\r\n!"))
		io.Copy(io.Discard, conn)
	}()

	_, err = run(context.Background(), options{
		addr:    ln.Addr().String(),
		message: "PING\r\n",
		count:   1,
		clients: 1,
		timeout: 2 * time.Second,
	})
	if err == nil {
		t.Fatal("Expected run() to fail on an unexpected reply")
	}
}

func TestRun_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() returned an error: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := run(context.Background(), options{addr: addr, message: "x", count: 1, clients: 1, timeout: time.Second}); err == nil {
		t.Fatal("Expected run() to fail when nothing is listening")
	}
}

func TestRun_EmptyMessage(t *testing.T) {
	if _, err := run(context.Background(), options{addr: "127.0.0.1:1", clients: 1, count: 1}); err == nil {
		t.Fatal("Expected an error for an empty message")
	}
}
