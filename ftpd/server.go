// Package ftpd implements the embedded FTP control/data state machine:
// a single-client, non-blocking, static-buffer server driven by a
// cooperative Tick entrypoint.
package ftpd

import (
	"bytes"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paperportal/fileserver/hostio"
	"github.com/paperportal/fileserver/hostio/errs"
	"github.com/paperportal/fileserver/vpath"
)

// Server owns the control listener, at most one control connection,
// at most one data connection, at most one passive listener, the
// single outstanding transfer, and the fixed buffers. One Server
// exists per running instance; it is driven entirely from Tick.
type Server struct {
	opt   Options
	net   hostio.Net
	fs    hostio.Filesystem
	clock hostio.Clock
	root  vpath.Root
	log   *logrus.Entry

	controlListener hostio.Listener
	control         hostio.Conn

	sess session

	cmdBuf [cmdBufCap]byte
	cmdLen int

	replyBuf [replyBufCap]byte

	xferBuf    [transferCap]byte
	scratchBuf [scratchBufCap]byte

	// asciiBuf holds the ASCII-translated form of one transfer chunk.
	// LF->CRLF expansion can at most double the input, so it is sized
	// to 2x the transfer buffer.
	asciiBuf [2 * transferCap]byte

	running bool
}

// New constructs a Server against the given adapters. It performs no
// I/O; call Start to bind the control listener.
func New(opt Options, net hostio.Net, fs hostio.Filesystem, clock hostio.Clock) *Server {
	return &Server{
		opt:   opt,
		net:   net,
		fs:    fs,
		clock: clock,
		root:  vpath.NewRoot(opt.Root),
		log:   logrus.WithFields(logrus.Fields{"proto": "ftp", "session": uuid.NewString()}),
		sess:  newSession(),
	}
}

// Start binds the control listener and marks the server running.
func (s *Server) Start() error {
	l, err := s.net.Listen(hostAndPort(s.opt.ListenAddr))
	if err != nil {
		return errors.Wrap(err, "ftpd: start")
	}
	s.controlListener = l
	s.running = true
	s.log.Info("ftp control listener started")
	return nil
}

// Stop closes, in order, the transfer handle, the data connection,
// the passive listener, the control connection, and the control
// listener, then clears running. Calling Stop any number of
// additional times is a no-op.
func (s *Server) Stop() error {
	if !s.running {
		return nil
	}
	s.abortTransfer()
	if s.control != nil {
		_ = s.control.Close()
		s.control = nil
	}
	if s.controlListener != nil {
		_ = s.controlListener.Close()
		s.controlListener = nil
	}
	s.running = false
	s.log.Info("ftp server stopped")
	return nil
}

// Running reports whether Start has been called without a matching
// Stop.
func (s *Server) Running() bool { return s.running }

// Tick performs one cooperative scheduling step: accept a waiting
// control connection; else, if a transfer is in flight (armed PASV
// listeners don't count — they still await a command to act on), advance
// it by one bounded chunk (no command is dispatched during that span);
// else, dispatch at most one complete command line already buffered
// from the control socket.
func (s *Server) Tick(now time.Time) {
	if !s.running {
		return
	}
	if s.control == nil {
		s.tryAcceptControl()
		return
	}

	s.pumpControlRecv()

	if s.sess.xfer.kind != xferNone && s.sess.xfer.kind != xferPassiveArmed {
		s.advanceTransfer(now)
		return
	}

	s.tryDispatchOneCommand()
}

func (s *Server) tryAcceptControl() {
	conn, err := s.controlListener.Accept(0)
	if err != nil {
		return // WouldBlock, or a transient accept error: try again next tick
	}
	s.control = conn
	s.sess = newSession()
	s.cmdLen = 0
	s.log.Info("ftp client connected")
	s.sendReply(220, "Paper Portal FTP Ready")
}

// pumpControlRecv opportunistically reads whatever bytes are
// available on the control connection into cmdBuf, without blocking.
func (s *Server) pumpControlRecv() {
	if s.cmdLen >= len(s.cmdBuf) {
		// Buffer full with no line terminator: drop it to recover,
		// this mirrors a LineTooLong failure upstream in HTTP framing.
		s.cmdLen = 0
		return
	}
	n, err := s.control.Recv(s.cmdBuf[s.cmdLen:], 0)
	if err != nil {
		if errs.Is(err, errs.WouldBlock) {
			return
		}
		s.disconnectControl()
		return
	}
	s.cmdLen += n
}

func (s *Server) disconnectControl() {
	s.abortTransfer()
	if s.control != nil {
		_ = s.control.Close()
		s.control = nil
	}
	s.cmdLen = 0
	s.log.Info("ftp client disconnected")
}

// tryDispatchOneCommand extracts at most one CRLF- or LF-terminated
// line from cmdBuf and dispatches it.
func (s *Server) tryDispatchOneCommand() {
	idx := bytes.IndexByte(s.cmdBuf[:s.cmdLen], '\n')
	if idx < 0 {
		return
	}
	end := idx
	if end > 0 && s.cmdBuf[end-1] == '\r' {
		end--
	}
	line := string(s.cmdBuf[:end])
	rest := s.cmdLen - (idx + 1)
	copy(s.cmdBuf[:rest], s.cmdBuf[idx+1:s.cmdLen])
	s.cmdLen = rest

	cmd, arg := splitCommand(line)
	s.log.WithField("cmd", cmd).Debug("ftp command")
	s.dispatch(cmd, arg)
}

func (s *Server) sendReply(code int, text string) {
	buf := formatReply(code, text)
	if _, err := s.control.Send(buf, 10*time.Second); err != nil {
		s.disconnectControl()
	}
}

func (s *Server) sendReplyBytes(buf []byte) {
	if _, err := s.control.Send(buf, 10*time.Second); err != nil {
		s.disconnectControl()
	}
}

func splitCommand(line string) (cmd, arg string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			return upper(line[:i]), line[i+1:]
		}
	}
	return upper(line), ""
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func hostAndPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0", 21
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 21
	}
	return host, port
}
