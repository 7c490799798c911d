package stats

import (
	"sync/atomic"
	"time"
)

// Counters 汇总所有连接的运行时计数，所有方法都可并发调用。
type Counters struct {
	startedAt time.Time

	accepted     atomic.Int64
	active       atomic.Int64
	closed       atomic.Int64
	reads        atomic.Int64
	replies      atomic.Int64
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	acceptErrors atomic.Int64
	readErrors   atomic.Int64
	writeErrors  atomic.Int64
	panics       atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	Accepted          int64     `json:"accepted"`
	ActiveConnections int64     `json:"active_connections"`
	Closed            int64     `json:"closed"`
	Reads             int64     `json:"reads"`
	Replies           int64     `json:"replies"`
	BytesIn           int64     `json:"bytes_in"`
	BytesOut          int64     `json:"bytes_out"`
	AcceptErrors      int64     `json:"accept_errors"`
	ReadErrors        int64     `json:"read_errors"`
	WriteErrors       int64     `json:"write_errors"`
	WorkerPanics      int64     `json:"worker_panics"`
}

func New() *Counters {
	return &Counters{startedAt: time.Now()}
}

func (c *Counters) ConnectionOpened() {
	c.accepted.Add(1)
	c.active.Add(1)
}

func (c *Counters) ConnectionClosed() {
	c.active.Add(-1)
	c.closed.Add(1)
}

func (c *Counters) AcceptError() { c.acceptErrors.Add(1) }
func (c *Counters) ReadError()   { c.readErrors.Add(1) }
func (c *Counters) WriteError()  { c.writeErrors.Add(1) }
func (c *Counters) WorkerPanic() { c.panics.Add(1) }

// OnRead implements responder.Observer.
func (c *Counters) OnRead(n int) {
	c.reads.Add(1)
	c.bytesIn.Add(int64(n))
}

// OnReply implements responder.Observer.
func (c *Counters) OnReply() { c.replies.Add(1) }

// AddBytesOut records the bytes written to a finished connection.
func (c *Counters) AddBytesOut(n int64) { c.bytesOut.Add(n) }

// Active returns the number of connections whose worker has not finished yet.
func (c *Counters) Active() int64 { return c.active.Load() }

func (c *Counters) Snapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Timestamp:         now,
		UptimeSeconds:     int64(now.Sub(c.startedAt).Seconds()),
		Accepted:          c.accepted.Load(),
		ActiveConnections: c.active.Load(),
		Closed:            c.closed.Load(),
		Reads:             c.reads.Load(),
		Replies:           c.replies.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		AcceptErrors:      c.acceptErrors.Load(),
		ReadErrors:        c.readErrors.Load(),
		WriteErrors:       c.writeErrors.Load(),
		WorkerPanics:      c.panics.Load(),
	}
}
