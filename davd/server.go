// Package davd implements the WebDAV (HTTP/1.1) session dispatcher:
// GET/HEAD/PUT/DELETE/OPTIONS are handled directly against the host
// filesystem on a bounded-buffer streaming path, while
// MKCOL/COPY/MOVE/PROPFIND/PROPPATCH are delegated to
// golang.org/x/net/webdav.Handler, the pre-existing XML-marshalling
// façade this engine never reimplements.
package davd

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/webdav"

	"github.com/paperportal/fileserver/hostio"
	"github.com/paperportal/fileserver/hostio/errs"
	"github.com/paperportal/fileserver/httpwire"
	"github.com/paperportal/fileserver/vpath"
)

type phase int

const (
	phaseReadHead phase = iota
	phaseReadBody
	phaseStreamPutBody
	phaseSendHead
	phaseSendBody
)

type bodyMode int

const (
	bodyModeNone bodyMode = iota
	bodyModeLength
	bodyModeChunked
)

type sendMode int

const (
	sendModeNone sendMode = iota
	sendModeBuffered
	sendModeStream
)

// Server owns the control listener, at most one HTTP connection, and
// the fixed buffers for one request/response cycle at a time, mirroring
// ftpd.Server's single-session, tick-driven shape.
type Server struct {
	opt   Options
	net   hostio.Net
	fs    hostio.Filesystem
	clock hostio.Clock
	root  vpath.Root
	log   *logrus.Entry

	webdavHandler *webdav.Handler

	listener hostio.Listener
	conn     hostio.Conn

	reqBuf [reqHeadCap]byte
	reqLen int
	req    httpwire.Request

	bodyMode bodyMode
	bodyBuf  [bodyBufCap]byte
	bodyLen  int
	chunkDec httpwire.ChunkedDecoder
	remaining int64

	xferBuf    [transferCap]byte
	pendingOut []byte

	writer hostio.Writer

	respHead     [respHeadCap]byte
	respHeadLen  int
	respHeadSent int

	sendMode      sendMode
	sendBuf       []byte
	sendBufSent   int
	streamReader  hostio.Reader
	streamRemain  int64

	phase      phase
	closeAfter bool

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
		log:   logrus.WithFields(logrus.Fields{"proto": "webdav", "session": uuid.NewString()}),
		webdavHandler: &webdav.Handler{
			FileSystem: newDavFS(fs),
			LockSystem: webdav.NewMemLS(),
		},
		phase: phaseReadHead,
	}
}

// Start binds the control listener and marks the server running.
func (s *Server) Start() error {
	host, port := hostAndPort(s.opt.ListenAddr)
	l, err := s.net.Listen(host, port)
	if err != nil {
		return err
	}
	s.listener = l
	s.running = true
	s.log.Info("webdav listener started")
	return nil
}

// Stop closes the transfer/response handles, the connection, and the
// listener, then clears running. Any number of additional calls are a
// no-op.
func (s *Server) Stop() error {
	if !s.running {
		return nil
	}
	s.abortRequest()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.running = false
	s.log.Info("webdav server stopped")
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (s *Server) Running() bool { return s.running }

// Tick performs one cooperative scheduling step: accept a waiting
// connection, or advance the in-flight request/response by one
// bounded step.
func (s *Server) Tick(now time.Time) {
	if !s.running {
		return
	}
	if s.conn == nil {
		s.tryAccept()
		return
	}
	switch s.phase {
	case phaseReadHead:
		s.pumpReadHead()
	case phaseReadBody:
		s.pumpReadBody()
	case phaseStreamPutBody:
		s.pumpStreamPutBody()
	case phaseSendHead:
		s.pumpSendHead()
	case phaseSendBody:
		s.pumpSendBody()
	}
}

func (s *Server) tryAccept() {
	conn, err := s.listener.Accept(0)
	if err != nil {
		return
	}
	s.conn = conn
	s.log.Info("webdav client connected")
	s.beginRequest()
}

func (s *Server) beginRequest() {
	s.reqLen = 0
	s.closeAfter = false
	s.phase = phaseReadHead
}

func (s *Server) abortRequest() {
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
	}
	if s.streamReader != nil {
		_ = s.streamReader.Close()
		s.streamReader = nil
	}
}

func (s *Server) disconnect() {
	s.abortRequest()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.log.Info("webdav client disconnected")
}

func (s *Server) pumpReadHead() {
	if s.reqLen >= len(s.reqBuf) {
		s.writeSimpleResponse(431, nil, nil)
		s.closeAfter = true
		return
	}
	n, err := s.conn.Recv(s.reqBuf[s.reqLen:], 0)
	if err != nil {
		if errs.Is(err, errs.WouldBlock) {
			return
		}
		s.disconnect()
		return
	}
	s.reqLen += n
	end := httpwire.FindHeaderBlockEnd(s.reqBuf[:s.reqLen])
	if end < 0 {
		return
	}
	if err := httpwire.ParseRequestAndHeaders(s.reqBuf[:end], &s.req); err != nil {
		s.writeSimpleResponse(400, nil, nil)
		s.closeAfter = true
		return
	}
	s.closeAfter = s.req.Close
	s.dispatchHead()
}

// dispatchHead decides how the request's body (if any) is handled and
// where the response will come from.
func (s *Server) dispatchHead() {
	switch s.req.Method {
	case httpwire.MethodGet, httpwire.MethodHead, httpwire.MethodDelete, httpwire.MethodOptions:
		// None of these methods drain a request body. Rather than parse
		// and discard one, close the connection after replying so an
		// undrained body can never desync the next request's parse.
		if s.req.Chunked || s.req.HasContentLength {
			s.closeAfter = true
		}
		switch s.req.Method {
		case httpwire.MethodGet, httpwire.MethodHead:
			s.handleGetHead()
		case httpwire.MethodDelete:
			s.handleDelete()
		case httpwire.MethodOptions:
			s.handleOptions()
		}
	case httpwire.MethodPut:
		s.beginPut()
	case httpwire.MethodMkcol, httpwire.MethodCopy, httpwire.MethodMove,
		httpwire.MethodPropfind, httpwire.MethodProppatch:
		s.beginBufferedBody()
	default:
		s.writeSimpleResponse(501, nil, nil)
	}
}

func (s *Server) handleOptions() {
	headers := []httpwire.Header{
		{Name: "DAV", Value: "1, 2"},
		{Name: "Allow", Value: "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, COPY, MOVE, PROPFIND, PROPPATCH"},
	}
	s.writeSimpleResponse(200, headers, nil)
}

func (s *Server) handleDelete() {
	vp, err := vpath.Normalize("/", s.req.Path)
	if err != nil {
		s.writeSimpleResponse(400, nil, nil)
		return
	}
	fi, err := s.fs.Stat(vp)
	if err != nil {
		s.writeSimpleResponse(404, nil, nil)
		return
	}
	if fi.IsDir {
		err = s.fs.RemoveDir(vp)
	} else {
		err = s.fs.Delete(vp)
	}
	if err != nil {
		s.writeSimpleResponse(409, nil, nil)
		return
	}
	s.writeSimpleResponse(204, nil, nil)
}

func (s *Server) handleGetHead() {
	vp, err := vpath.Normalize("/", s.req.Path)
	if err != nil {
		s.writeSimpleResponse(400, nil, nil)
		return
	}
	fi, err := s.fs.Stat(vp)
	if err != nil || fi.IsDir {
		s.writeSimpleResponse(404, nil, nil)
		return
	}
	headers := []httpwire.Header{{Name: "Content-Length", Value: strconv.FormatInt(fi.Size, 10)}}
	if s.req.Method == httpwire.MethodHead {
		s.writeSimpleResponse(200, headers, nil)
		return
	}
	r, err := s.fs.OpenRead(vp)
	if err != nil {
		s.writeSimpleResponse(404, nil, nil)
		return
	}
	s.sendMode = sendModeStream
	s.streamReader = r
	s.streamRemain = fi.Size
	s.pendingOut = nil
	s.buildHead(200, headers, fi.Size)
	s.phase = phaseSendHead
}

func (s *Server) beginPut() {
	vp, err := vpath.Normalize("/", s.req.Path)
	if err != nil {
		s.writeSimpleResponse(400, nil, nil)
		return
	}
	w, err := s.fs.OpenWriteTrunc(vp)
	if err != nil {
		s.writeSimpleResponse(500, nil, nil)
		return
	}
	s.writer = w
	switch {
	case s.req.Chunked:
		s.chunkDec = httpwire.ChunkedDecoder{}
		s.bodyMode = bodyModeChunked
	case s.req.HasContentLength:
		s.remaining = s.req.ContentLength
		s.bodyMode = bodyModeLength
	default:
		s.bodyMode = bodyModeNone
	}
	s.phase = phaseStreamPutBody
	s.pumpStreamPutBody()
}

func (s *Server) pumpStreamPutBody() {
	switch s.bodyMode {
	case bodyModeNone:
		s.finishPut()
	case bodyModeLength:
		if s.remaining == 0 {
			s.finishPut()
			return
		}
		n, err := s.conn.Recv(s.xferBuf[:], 0)
		if err != nil {
			if errs.Is(err, errs.WouldBlock) {
				return
			}
			s.abortRequest()
			s.disconnect()
			return
		}
		if int64(n) > s.remaining {
			n = int(s.remaining)
		}
		if n == 0 {
			return
		}
		if _, err := s.writer.Write(s.xferBuf[:n]); err != nil {
			s.abortRequest()
			s.writeSimpleResponse(500, nil, nil)
			return
		}
		s.remaining -= int64(n)
		if s.remaining == 0 {
			s.finishPut()
		}
	case bodyModeChunked:
		n, err := s.conn.Recv(s.xferBuf[:], 0)
		if err != nil {
			if errs.Is(err, errs.WouldBlock) {
				return
			}
			s.abortRequest()
			s.disconnect()
			return
		}
		if n == 0 {
			return
		}
		consumed, produced, done, derr := s.chunkDec.Step(s.xferBuf[:n], s.bodyBuf[:])
		_ = consumed
		if derr != nil {
			s.abortRequest()
			s.writeSimpleResponse(400, nil, nil)
			s.closeAfter = true
			return
		}
		if produced > 0 {
			if _, err := s.writer.Write(s.bodyBuf[:produced]); err != nil {
				s.abortRequest()
				s.writeSimpleResponse(500, nil, nil)
				return
			}
		}
		if done {
			s.finishPut()
		}
	}
}

func (s *Server) finishPut() {
	_ = s.writer.Close()
	s.writer = nil
	s.writeSimpleResponse(201, nil, nil)
}

func (s *Server) beginBufferedBody() {
	s.bodyLen = 0
	switch {
	case s.req.Chunked:
		s.chunkDec = httpwire.ChunkedDecoder{}
		s.bodyMode = bodyModeChunked
		s.phase = phaseReadBody
		s.pumpReadBody()
	case s.req.HasContentLength:
		if s.req.ContentLength > int64(len(s.bodyBuf)) {
			s.writeSimpleResponse(413, nil, nil)
			s.closeAfter = true
			return
		}
		s.remaining = s.req.ContentLength
		s.bodyMode = bodyModeLength
		s.phase = phaseReadBody
		s.pumpReadBody()
	default:
		s.dispatchWebdav()
	}
}

func (s *Server) pumpReadBody() {
	switch s.bodyMode {
	case bodyModeLength:
		if s.remaining == 0 {
			s.dispatchWebdav()
			return
		}
		n, err := s.conn.Recv(s.xferBuf[:], 0)
		if err != nil {
			if errs.Is(err, errs.WouldBlock) {
				return
			}
			s.disconnect()
			return
		}
		if int64(n) > s.remaining {
			n = int(s.remaining)
		}
		if n == 0 {
			return
		}
		if s.bodyLen+n > len(s.bodyBuf) {
			s.writeSimpleResponse(413, nil, nil)
			s.closeAfter = true
			return
		}
		copy(s.bodyBuf[s.bodyLen:], s.xferBuf[:n])
		s.bodyLen += n
		s.remaining -= int64(n)
		if s.remaining == 0 {
			s.dispatchWebdav()
		}
	case bodyModeChunked:
		n, err := s.conn.Recv(s.xferBuf[:], 0)
		if err != nil {
			if errs.Is(err, errs.WouldBlock) {
				return
			}
			s.disconnect()
			return
		}
		if n == 0 {
			return
		}
		if s.bodyLen >= len(s.bodyBuf) {
			s.writeSimpleResponse(413, nil, nil)
			s.closeAfter = true
			return
		}
		_, produced, done, derr := s.chunkDec.Step(s.xferBuf[:n], s.bodyBuf[s.bodyLen:])
		if derr != nil {
			s.writeSimpleResponse(400, nil, nil)
			s.closeAfter = true
			return
		}
		s.bodyLen += produced
		if done {
			s.dispatchWebdav()
		}
	}
}

// dispatchWebdav hands the request off to golang.org/x/net/webdav.Handler,
// the pre-existing façade for the methods this engine never reimplements.
func (s *Server) dispatchWebdav() {
	httpReq, err := http.NewRequest(methodName(s.req.Method), s.req.RawTarget, bytes.NewReader(s.bodyBuf[:s.bodyLen]))
	if err != nil {
		s.writeSimpleResponse(400, nil, nil)
		return
	}
	for _, h := range s.req.Headers() {
		httpReq.Header.Add(h.Name, h.Value)
	}
	rec := newRecorder()
	s.webdavHandler.ServeHTTP(rec, httpReq)

	var extra []httpwire.Header
	for name, values := range rec.header {
		for _, v := range values {
			extra = append(extra, httpwire.Header{Name: name, Value: v})
		}
	}
	s.writeSimpleResponse(rec.status, extra, rec.body.Bytes())
}

func methodName(m httpwire.Method) string {
	switch m {
	case httpwire.MethodMkcol:
		return "MKCOL"
	case httpwire.MethodCopy:
		return "COPY"
	case httpwire.MethodMove:
		return "MOVE"
	case httpwire.MethodPropfind:
		return "PROPFIND"
	case httpwire.MethodProppatch:
		return "PROPPATCH"
	default:
		return "GET"
	}
}

func (s *Server) writeSimpleResponse(code int, headers []httpwire.Header, body []byte) {
	s.sendMode = sendModeBuffered
	s.sendBuf = body
	s.sendBufSent = 0
	s.buildHead(code, headers, int64(len(body)))
	s.phase = phaseSendHead
}

// buildHead renders the status line and header block into respHead:
// status line, Server, Connection, caller headers, then the
// body-framing line.
func (s *Server) buildHead(code int, extra []httpwire.Header, bodyLen int64) {
	buf := s.respHead[:0]
	buf = httpwire.AppendStatusLine(buf, code)
	buf = httpwire.AppendHeaderLine(buf, "Server", "Paper Portal")
	if s.closeAfter {
		buf = httpwire.AppendHeaderLine(buf, "Connection", "close")
	} else {
		buf = httpwire.AppendHeaderLine(buf, "Connection", "keep-alive")
	}
	for _, h := range extra {
		buf = httpwire.AppendHeaderLine(buf, h.Name, h.Value)
	}
	buf = httpwire.AppendHeaderLine(buf, "Content-Length", strconv.FormatInt(bodyLen, 10))
	buf = append(buf, '\r', '\n')
	s.respHeadLen = len(buf)
	s.respHeadSent = 0
}

func (s *Server) pumpSendHead() {
	n, err := s.conn.Send(s.respHead[s.respHeadSent:s.respHeadLen], 5*time.Second)
	if err != nil {
		s.disconnect()
		return
	}
	s.respHeadSent += n
	if s.respHeadSent < s.respHeadLen {
		return
	}
	if s.req.Method == httpwire.MethodHead {
		s.finishResponse()
		return
	}
	switch s.sendMode {
	case sendModeBuffered:
		if len(s.sendBuf) == 0 {
			s.finishResponse()
			return
		}
	case sendModeStream:
		if s.streamRemain == 0 {
			s.finishResponse()
			return
		}
	}
	s.phase = phaseSendBody
}

func (s *Server) pumpSendBody() {
	switch s.sendMode {
	case sendModeBuffered:
		if s.sendBufSent >= len(s.sendBuf) {
			s.finishResponse()
			return
		}
		n, err := s.conn.Send(s.sendBuf[s.sendBufSent:], 5*time.Second)
		if err != nil {
			s.disconnect()
			return
		}
		s.sendBufSent += n
		if s.sendBufSent >= len(s.sendBuf) {
			s.finishResponse()
		}
	case sendModeStream:
		if len(s.pendingOut) == 0 {
			if s.streamRemain == 0 {
				_ = s.streamReader.Close()
				s.streamReader = nil
				s.finishResponse()
				return
			}
			toRead := s.xferBuf[:]
			if int64(len(toRead)) > s.streamRemain {
				toRead = toRead[:s.streamRemain]
			}
			n, err := s.streamReader.Read(toRead)
			if n == 0 && err != nil {
				_ = s.streamReader.Close()
				s.streamReader = nil
				s.disconnect()
				return
			}
			if n == 0 {
				return
			}
			s.pendingOut = toRead[:n]
			s.streamRemain -= int64(n)
		}
		n, err := s.conn.Send(s.pendingOut, 5*time.Second)
		if err != nil {
			_ = s.streamReader.Close()
			s.streamReader = nil
			s.disconnect()
			return
		}
		s.pendingOut = s.pendingOut[n:]
	}
}

func (s *Server) finishResponse() {
	s.sendMode = sendModeNone
	s.sendBuf = nil
	if s.closeAfter {
		s.disconnect()
		return
	}
	s.beginRequest()
}
