// Package nettcp implements hostio.Net over the standard library's
// net package, for the desktop dev-harness binary. It supplies
// millisecond-granular timeouts on every blocking call and a
// wrap-around passive-port cursor for FTP PASV, owned per adapter
// instance (not global state) so concurrent test servers stay
// independent.
package nettcp

import (
	"io"
	"net"
	"strconv"
	"time"

	"github.com/paperportal/fileserver/hostio"
	"github.com/paperportal/fileserver/hostio/errs"
)

// Adapter is a hostio.Net backed by real TCP sockets.
type Adapter struct {
	passiveLo, passiveHi int
	cursor               int
}

// New returns an Adapter whose PASV listeners are drawn from
// [passiveLo, passiveHi] inclusive, wrapping at the upper bound.
func New(passiveLo, passiveHi int) *Adapter {
	return &Adapter{passiveLo: passiveLo, passiveHi: passiveHi, cursor: passiveLo}
}

// Listen implements hostio.Net.
func (a *Adapter) Listen(addr string, port int) (hostio.Listener, error) {
	l, err := net.Listen("tcp4", addrPort(addr, port))
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "listen")
	}
	tl, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return nil, errs.Io
	}
	return &listener{tl: tl}, nil
}

// NewPassive binds the next port in the configured range that
// succeeds, starting from the cursor and wrapping once at the upper
// bound before giving up.
func (a *Adapter) NewPassive() (hostio.Listener, error) {
	span := a.passiveHi - a.passiveLo + 1
	for i := 0; i < span; i++ {
		port := a.passiveLo + a.cursor%span
		a.cursor = (a.cursor + 1) % span
		l, err := a.Listen("0.0.0.0", port)
		if err == nil {
			return l, nil
		}
	}
	return nil, errs.Wrap(errs.Io, errs.Io, "no passive port available in range")
}

func addrPort(addr string, port int) string {
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

type listener struct {
	tl *net.TCPListener
}

func (l *listener) Accept(timeout time.Duration) (hostio.Conn, error) {
	if timeout <= 0 {
		if err := l.tl.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return nil, errs.Wrap(err, errs.Io, "set accept deadline")
		}
	} else {
		if err := l.tl.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errs.Wrap(err, errs.Io, "set accept deadline")
		}
	}
	c, err := l.tl.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errs.WouldBlock
		}
		return nil, errs.Wrap(err, errs.Io, "accept")
	}
	return &conn{c: c}, nil
}

func (l *listener) Close() error {
	return l.tl.Close()
}

func (l *listener) Addr() (ip [4]byte, port int) {
	addr, ok := l.tl.Addr().(*net.TCPAddr)
	if !ok {
		return ip, 0
	}
	v4 := addr.IP.To4()
	if v4 == nil {
		return ip, addr.Port
	}
	copy(ip[:], v4)
	return ip, addr.Port
}

type conn struct {
	c net.Conn
}

func (c *conn) Recv(buf []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		if err := c.c.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return 0, errs.Wrap(err, errs.Io, "set read deadline")
		}
	} else if err := c.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, errs.Wrap(err, errs.Io, "set read deadline")
	}
	n, err := c.c.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, errs.WouldBlock
		}
		if err == io.EOF {
			return n, errs.Wrap(err, errs.Closed, "recv")
		}
		return n, errs.Wrap(err, errs.Io, "recv")
	}
	return n, nil
}

func (c *conn) Send(buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := c.c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, errs.Wrap(err, errs.Io, "set write deadline")
		}
	}
	n, err := c.c.Write(buf)
	if err != nil {
		return n, errs.Wrap(err, errs.Closed, "send")
	}
	return n, nil
}

func (c *conn) Close() error {
	return c.c.Close()
}

func (c *conn) RemoteIP() [4]byte {
	var ip [4]byte
	addr, ok := c.c.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return ip
	}
	v4 := addr.IP.To4()
	if v4 != nil {
		copy(ip[:], v4)
	}
	return ip
}
