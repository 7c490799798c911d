package stats

import (
	"sync"
	"testing"
)

func TestCounters_ConcurrentConnections(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ConnectionOpened()
			c.OnRead(6)
			c.OnReply()
			c.AddBytesOut(7)
			c.ConnectionClosed()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.Accepted != 50 || snap.Closed != 50 {
		t.Errorf("Expected 50 accepted and closed, got %+v", snap)
	}
	if snap.ActiveConnections != 0 {
		t.Errorf("Expected no active connections, got %d", snap.ActiveConnections)
	}
	if snap.Reads != 50 || snap.Replies != 50 || snap.BytesIn != 300 || snap.BytesOut != 350 {
		t.Errorf("Unexpected traffic counters: %+v", snap)
	}
}

func TestCounters_Errors(t *testing.T) {
	c := New()
	c.AcceptError()
	c.ReadError()
	c.ReadError()
	c.WriteError()
	c.WorkerPanic()

	snap := c.Snapshot()
	if snap.AcceptErrors != 1 || snap.ReadErrors != 2 || snap.WriteErrors != 1 || snap.WorkerPanics != 1 {
		t.Errorf("Unexpected error counters: %+v", snap)
	}
}
