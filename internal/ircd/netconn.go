package ircd

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/boxcat/ircd/internal/wire"
)

// netConn wraps a net.Conn with buffered line I/O and a sliding
// SetDeadline, one per read and one per write, so a socket that goes
// silent is eventually noticed rather than held open forever.
type netConn struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration
	log    *logrus.Entry

	ip net.IP
}

func newNetConn(conn net.Conn, ioWait time.Duration, log *logrus.Entry) *netConn {
	ip := net.IP{}
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	}
	return &netConn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
		log:    log,
		ip:     ip,
	}
}

func (c *netConn) Close() error {
	return c.conn.Close()
}

func (c *netConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// setReadDeadline controls how long the next readLine call may block
// before returning a timeout error. The connection task sets the same
// ping-time window before every read, both while idle and while a PING
// it sent is awaiting a reply (§5 Timeouts).
func (c *netConn) setReadDeadline(d time.Duration) error {
	return errors.Wrap(c.conn.SetReadDeadline(time.Now().Add(d)), "setting read deadline")
}

// readLine blocks for up to the most recently set read deadline for a
// full CRLF-terminated line.
func (c *netConn) readLine() (string, error) {
	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (c *netConn) writeRaw(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "setting write deadline")
	}

	if _, err := c.rw.WriteString(s); err != nil {
		return err
	}
	return c.rw.Flush()
}

// writeMessage encodes and writes m, logging (but not failing on) a
// truncation (§4.B requires truncation rather than dropping the whole
// line, and truncation is not a socket error).
func (c *netConn) writeMessage(m wire.Message) error {
	buf, err := wire.Encode(m)
	if errors.Is(err, wire.ErrTruncated) {
		if c.log != nil {
			c.log.WithField("command", m.Command).Warn("message truncated to fit frame budget")
		}
	} else if err != nil {
		return errors.Wrap(err, "encoding message")
	}

	return c.writeRaw(buf)
}
