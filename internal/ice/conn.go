package ice

import (
	"io"
	"math"
	"net"
	"time"
)

// ChannelConn implements net.Conn over a pair of channels, so that the
// selected candidate pair's data path can be handed to a media/transport
// collaborator without exposing the underlying shared UDP socket.
type ChannelConn struct {
	in  <-chan []byte // Channel for reads
	out chan<- []byte // Channel for writes

	laddr  net.Addr
	raddr  net.Addr
	rtimer *time.Timer // Timer to enforce read deadline

	closed chan struct{}
}

func newChannelConn(in <-chan []byte, out chan<- []byte, laddr, raddr net.Addr) *ChannelConn {
	return &ChannelConn{
		in:     in,
		out:    out,
		laddr:  laddr,
		raddr:  raddr,
		rtimer: time.NewTimer(math.MaxInt64),
		closed: make(chan struct{}),
	}
}

// Read returns the next buffer from the connection. Returns io.EOF if closed.
func (c *ChannelConn) Read(b []byte) (int, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		if len(data) > len(b) {
			log.Warn("read truncated due to short buffer")
		}
		n := copy(b, data)
		return n, nil

	case <-c.rtimer.C:
		return 0, errReadTimeout

	case <-c.closed:
		return 0, io.EOF
	}
}

// Write enqueues a buffer for transmission over the selected base.
func (c *ChannelConn) Write(b []byte) (int, error) {
	select {
	case c.out <- append([]byte(nil), b...):
		return len(b), nil
	case <-c.closed:
		return 0, io.ErrClosedPipe
	}
}

func (c *ChannelConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *ChannelConn) LocalAddr() net.Addr {
	return c.laddr
}

func (c *ChannelConn) RemoteAddr() net.Addr {
	return c.raddr
}

// SetDeadline sets both the read and write timeouts.
func (c *ChannelConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *ChannelConn) SetReadDeadline(t time.Time) error {
	if !c.rtimer.Stop() {
		select {
		case <-c.rtimer.C:
		default:
		}
	}

	if !t.IsZero() {
		c.rtimer.Reset(time.Until(t))
	}

	return nil
}

// SetWriteDeadline is a no-op: writes only block on a full channel, which
// the controller's event loop always drains.
func (c *ChannelConn) SetWriteDeadline(t time.Time) error {
	return nil
}
