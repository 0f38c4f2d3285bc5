package main

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Sink is the write side of a connection. The directory stores one per local
// client and per immediate server so that any handler may deliver a message
// to any connection. Implementations must serialize WriteLine calls; a line
// is never interleaved with another.
type Sink interface {
	// WriteLine writes a single protocol line. The line must already carry
	// its CRLF.
	WriteLine(line string) error

	// Shutdown closes the underlying connection.
	Shutdown() error

	// PeerAddress returns the remote address, host only.
	PeerAddress() string
}

// LineConn is a Sink that can also be read from, line by line. Connection
// handlers work against it; tests substitute an in-memory implementation.
type LineConn interface {
	Sink

	// ReadLine reads a single line, including its ending.
	ReadLine() (string, error)
}

// Conn is a connection to a client/server.
type Conn struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration
	ip     net.IP

	// Guards writes. Handlers other than the owner deliver notifications
	// through the same sink.
	writeMutex sync.Mutex
}

// NewConn initializes a Conn struct.
func NewConn(conn net.Conn, ioWait time.Duration) *Conn {
	var ip net.IP
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	}

	return &Conn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
		ip:     ip,
	}
}

// ReadLine reads a line from the connection. The line includes its ending.
func (c *Conn) ReadLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return "", errors.Wrap(err, "error setting read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return line, errors.Wrap(err, "error reading")
	}

	return line, nil
}

// WriteLine writes a string to the connection.
func (c *Conn) WriteLine(s string) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "error setting write deadline")
	}

	sz, err := c.rw.WriteString(s)
	if err != nil {
		return errors.Wrap(err, "error writing")
	}

	if sz != len(s) {
		return errors.Errorf("short write")
	}

	if err := c.rw.Flush(); err != nil {
		return errors.Wrap(err, "flush error")
	}

	return nil
}

// Shutdown closes the underlying connection.
func (c *Conn) Shutdown() error {
	return errors.Wrap(c.conn.Close(), "error closing")
}

// PeerAddress returns the remote IP.
func (c *Conn) PeerAddress() string {
	if c.ip == nil {
		return c.conn.RemoteAddr().String()
	}
	return c.ip.String()
}

// isTimeout reports whether an error is a read/write deadline expiry.
func isTimeout(err error) bool {
	netErr, ok := errors.Cause(err).(net.Error)
	return ok && netErr.Timeout()
}
