package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pong_nexus/internal/core/responder"
	"pong_nexus/internal/shared/logger"
	"pong_nexus/internal/shared/types"
)

type options struct {
	addr        string
	message     string
	count       int
	clients     int
	concurrency int
	timeout     time.Duration
}

type summary struct {
	clients int64
	replies int64
	elapsed time.Duration
}

func main() {
	opts := options{}
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:6379", "Server address")
	flag.StringVar(&opts.message, "msg", "PING\r\n", "Payload sent for every round trip")
	flag.IntVar(&opts.count, "count", 1, "Round trips per client")
	flag.IntVar(&opts.clients, "clients", 1, "Number of client connections")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "Maximum concurrent connections")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Per-connection I/O timeout")
	logLevel := flag.String("log", "info", "Log level")
	flag.Parse()

	if err := logger.Init(types.LogConf{Level: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Str("addr", opts.addr).Int("clients", opts.clients).Int("count", opts.count).Msg("Starting round trips")
	sum, err := run(context.Background(), opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Round trips failed")
	}
	logger.Info().
		Int64("clients", sum.clients).
		Int64("replies", sum.replies).
		Str("elapsed", sum.elapsed.String()).
		Msg("All replies received")
}

// run opens opts.clients connections and performs opts.count PING round trips
// on each, failing on the first unexpected reply.
func run(ctx context.Context, opts options) (summary, error) {
	if opts.message == "" {
		return summary{}, fmt.Errorf("message must not be empty")
	}
	var (
		clients atomic.Int64
		replies atomic.Int64
		dialer  net.Dialer
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}
	for i := 0; i < opts.clients; i++ {
		id := i
		g.Go(func() error {
			dialCtx, cancel := context.WithTimeout(gctx, opts.timeout)
			defer cancel()
			conn, err := dialer.DialContext(dialCtx, "tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("client %d: dial: %w", id, err)
			}
			defer conn.Close()

			reply := make([]byte, len(responder.Reply))
			for n := 0; n < opts.count; n++ {
				conn.SetDeadline(time.Now().Add(opts.timeout))
				if _, err := conn.Write([]byte(opts.message)); err != nil {
					return fmt.Errorf("client %d: write: %w", id, err)
				}
				if _, err := io.ReadFull(conn, reply); err != nil {
					return fmt.Errorf("client %d: read: %w", id, err)
				}
				if !bytes.Equal(reply, responder.Reply) {
					return fmt.Errorf("client %d: unexpected reply %q", id, reply)
				}
				replies.Add(1)
			}
			clients.Add(1)
			logger.Debug().Int("client", id).Msg("Client finished")
			return nil
		})
	}
	err := g.Wait()
	return summary{
		clients: clients.Load(),
		replies: replies.Load(),
		elapsed: time.Since(start),
	}, err
}
