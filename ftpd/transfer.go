package ftpd

import (
	"io"
	"time"

	"github.com/paperportal/fileserver/hostio/errs"
)

// advanceTransfer performs exactly one bounded-size step of the
// in-flight transfer and returns: accepting the data connection counts
// as a step; one directory entry, one read chunk, or one write chunk
// also each count as a step.
func (s *Server) advanceTransfer(now time.Time) {
	switch s.sess.xfer.kind {
	case xferPendingAccept:
		s.acceptData()
	case xferList, xferNlst:
		s.stepListing()
	case xferRetr:
		s.stepRetr()
	case xferStor:
		s.stepStor()
	}
}

func (s *Server) acceptData() {
	conn, err := s.sess.xfer.passiveListener.Accept(0)
	if err != nil {
		if errs.Is(err, errs.WouldBlock) {
			return
		}
		s.closeDataTransfer()
		s.sendReply(425, "Cannot open data connection")
		return
	}
	s.sess.xfer.dataConn = conn

	switch s.sess.xfer.pendingKind {
	case xferList, xferNlst:
		it, err := s.fs.DirOpen(s.sess.xfer.hostDir)
		if err != nil {
			s.closeDataTransfer()
			s.sendReply(550, "Failed to open directory")
			return
		}
		s.sess.xfer.iter = it
		s.sess.xfer.kind = s.sess.xfer.pendingKind
	case xferRetr:
		r, err := s.fs.OpenRead(s.sess.xfer.hostDir)
		if err != nil {
			s.closeDataTransfer()
			s.sendReply(550, "Failed to open file")
			return
		}
		s.sess.xfer.reader = r
		s.sess.xfer.kind = xferRetr
	case xferStor:
		w, err := s.fs.OpenWriteTrunc(s.sess.xfer.hostDir)
		if err != nil {
			s.closeDataTransfer()
			s.sendReply(550, "Failed to create file")
			return
		}
		s.sess.xfer.writer = w
		s.sess.xfer.kind = xferStor
	}
}

func (s *Server) stepListing() {
	ent, ok, err := s.sess.xfer.iter.Next()
	if err != nil {
		s.closeDataTransfer()
		s.sendReply(550, "Failed to read directory")
		return
	}
	if !ok {
		s.finishTransfer(226, "Directory send OK")
		return
	}
	var line string
	if s.sess.xfer.kind == xferList {
		line = formatListLine(ent, s.clockNow())
	} else {
		line = formatNlstLine(ent)
	}
	line += "\r\n"
	if _, err := s.sess.xfer.dataConn.Send([]byte(line), 5*time.Second); err != nil {
		s.closeDataTransfer()
		s.sendReply(426, "Data connection closed; transfer aborted")
		s.sendReply(550, "Failed to send directory listing")
	}
}

func (s *Server) stepRetr() {
	if len(s.sess.xfer.pendingOut) == 0 {
		n, err := s.sess.xfer.reader.Read(s.xferBuf[:])
		if n == 0 && err != nil {
			if err == io.EOF {
				s.finishTransfer(226, "Transfer complete")
				return
			}
			s.closeDataTransfer()
			s.sendReply(426, "Data connection closed; transfer aborted")
			s.sendReply(550, "Read failed")
			return
		}
		if n == 0 {
			// Non-error, zero-byte read: try again next tick.
			return
		}
		chunk := s.xferBuf[:n]
		if s.sess.asciiMode {
			translated, pendingCR := lfToCRLF(s.asciiBuf[:0], chunk, s.sess.xfer.pendingCR)
			s.sess.xfer.pendingCR = pendingCR
			s.sess.xfer.pendingOut = translated
		} else {
			s.sess.xfer.pendingOut = chunk
		}
	}

	if len(s.sess.xfer.pendingOut) > 0 {
		n, err := s.sess.xfer.dataConn.Send(s.sess.xfer.pendingOut, 5*time.Second)
		if err != nil {
			s.closeDataTransfer()
			s.sendReply(426, "Data connection closed; transfer aborted")
			s.sendReply(550, "Send failed")
			return
		}
		s.sess.xfer.pendingOut = s.sess.xfer.pendingOut[n:]
	}
}

func (s *Server) stepStor() {
	n, err := s.sess.xfer.dataConn.Recv(s.xferBuf[:], 0)
	if err != nil {
		switch {
		case errs.Is(err, errs.WouldBlock):
			return
		case errs.Is(err, errs.Closed):
			// Peer closed the data connection cleanly: the upload is
			// done.
			s.finishTransfer(226, "Transfer complete")
		default:
			s.closeDataTransfer()
			s.sendReply(550, "Receive failed")
		}
		return
	}
	if n == 0 {
		s.finishTransfer(226, "Transfer complete")
		return
	}
	chunk := s.xferBuf[:n]
	if s.sess.asciiMode {
		translated, pendingCR := crlfToLF(s.asciiBuf[:0], chunk, s.sess.xfer.pendingCR)
		s.sess.xfer.pendingCR = pendingCR
		chunk = translated
	}
	if _, err := s.sess.xfer.writer.Write(chunk); err != nil {
		s.closeDataTransfer()
		s.sendReply(550, "Write failed")
	}
}

func (s *Server) clockNow() time.Time {
	unix := s.clock.NowUnix()
	if unix == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}

func (s *Server) closeDataTransfer() {
	if s.sess.xfer.iter != nil {
		_ = s.sess.xfer.iter.Close()
	}
	if s.sess.xfer.reader != nil {
		_ = s.sess.xfer.reader.Close()
	}
	if s.sess.xfer.writer != nil {
		_ = s.sess.xfer.writer.Close()
	}
	if s.sess.xfer.dataConn != nil {
		_ = s.sess.xfer.dataConn.Close()
	}
	if s.sess.xfer.passiveListener != nil {
		_ = s.sess.xfer.passiveListener.Close()
	}
	s.sess.xfer.reset()
}

func (s *Server) finishTransfer(code int, text string) {
	s.closeDataTransfer()
	s.sendReply(code, text)
}

// abortTransfer tears down any in-flight transfer without sending a
// reply, used on disconnect or Stop.
func (s *Server) abortTransfer() {
	if s.sess.xfer.kind != xferNone {
		s.closeDataTransfer()
	}
}
