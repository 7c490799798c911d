// Package responder answers every chunk read from a client with a fixed reply.
package responder

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Reply is written once for every read that yields data. The input is never inspected.
var Reply = []byte("+PONG\r\n")

// DefaultBufferSize is the read chunk capacity used when none is configured.
const DefaultBufferSize = 1024

var (
	ErrRead  = errors.New("read failed")
	ErrWrite = errors.New("write failed")
)

// Observer is notified of per-connection activity. Implementations must be
// safe for concurrent use, since every connection shares one observer.
type Observer interface {
	OnRead(n int)
	OnReply()
}

// Result summarises a finished connection.
type Result struct {
	Reads   int64
	Replies int64
	BytesIn int64
}

type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// Responder 持有每个连接共享的只读参数，本身不保存连接状态。
type Responder struct {
	bufferSize  int
	idleTimeout time.Duration
	observer    Observer
}

type Option func(*Responder)

// WithIdleTimeout sets a read deadline before every read. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Responder) { r.idleTimeout = d }
}

func WithObserver(o Observer) Option {
	return func(r *Responder) { r.observer = o }
}

func New(bufferSize int, opts ...Option) *Responder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Responder{bufferSize: bufferSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle reads from conn until the peer shuts down or an I/O error occurs.
// An orderly shutdown (io.EOF) returns a nil error. The caller owns conn and
// is responsible for closing it.
func (r *Responder) Handle(conn io.ReadWriter) (Result, error) {
	var res Result
	buf := make([]byte, r.bufferSize)
	ds, canDeadline := conn.(deadlineSetter)

	for {
		if r.idleTimeout > 0 && canDeadline {
			if err := ds.SetReadDeadline(time.Now().Add(r.idleTimeout)); err != nil {
				return res, fmt.Errorf("%w: set read deadline: %w", ErrRead, err)
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			res.Reads++
			res.BytesIn += int64(n)
			if r.observer != nil {
				r.observer.OnRead(n)
			}
			if werr := writeReply(conn); werr != nil {
				return res, fmt.Errorf("%w: %w", ErrWrite, werr)
			}
			res.Replies++
			if r.observer != nil {
				r.observer.OnReply()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("%w: %w", ErrRead, err)
		}
	}
}

func writeReply(w io.Writer) error {
	n, err := w.Write(Reply)
	if err != nil {
		return err
	}
	if n != len(Reply) {
		return io.ErrShortWrite
	}
	return nil
}
