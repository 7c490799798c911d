package shared

import (
	"net"
	"sync/atomic"
)

// CountedConn 是一个 net.Conn 的包装器，原子地统计单个连接的收发字节数。
type CountedConn struct {
	net.Conn
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

func NewCountedConn(conn net.Conn) *CountedConn {
	return &CountedConn{Conn: conn}
}

// Read 从底层连接读取数据，并增加接收计数。
func (c *CountedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.bytesIn.Add(int64(n))
	}
	return n, err
}

// Write 将数据写入底层连接，并增加发送计数。
func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.bytesOut.Add(int64(n))
	}
	return n, err
}

func (c *CountedConn) BytesIn() int64  { return c.bytesIn.Load() }
func (c *CountedConn) BytesOut() int64 { return c.bytesOut.Load() }
