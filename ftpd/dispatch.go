package ftpd

import (
	"strconv"

	"github.com/paperportal/fileserver/vpath"
)

// dispatch translates one parsed command into the session's next
// state transition and reply.
func (s *Server) dispatch(cmd, arg string) {
	switch cmd {
	case "USER":
		s.cmdUser(arg)
	case "PASS":
		s.cmdPass(arg)
	case "QUIT":
		s.sendReply(221, "Goodbye")
		s.disconnectControl()
	case "SYST":
		s.requireAuth(func() { s.sendReply(215, "UNIX Type: L8") })
	case "FEAT":
		s.requireAuth(func() { s.sendReplyBytes([]byte("211-Features:\r\n PASV\r\n SIZE\r\n MDTM\r\n211 End\r\n")) })
	case "OPTS":
		s.requireAuth(func() { s.sendReply(200, "OK") })
	case "NOOP":
		s.requireAuth(func() { s.sendReply(200, "NOOP") })
	case "MODE":
		s.requireAuth(func() { s.sendReply(200, "Mode set to S") })
	case "STRU":
		s.requireAuth(func() { s.sendReply(200, "Structure set to F") })
	case "TYPE":
		s.requireAuth(func() { s.cmdType(arg) })
	case "PWD":
		s.requireAuth(func() { s.sendReply(257, quote(s.sess.cwd)) })
	case "CWD":
		s.requireAuth(func() { s.cmdCwd(arg) })
	case "CDUP":
		s.requireAuth(func() { s.cmdCwd("..") })
	case "PASV":
		s.requireAuth(func() { s.cmdPasv() })
	case "LIST":
		s.requireAuth(func() { s.cmdListLike(arg, xferList) })
	case "NLST":
		s.requireAuth(func() { s.cmdListLike(arg, xferNlst) })
	case "RETR":
		s.requireAuth(func() { s.cmdRetr(arg) })
	case "STOR":
		s.requireAuth(func() { s.cmdStor(arg) })
	case "DELE":
		s.requireAuth(func() { s.cmdDele(arg) })
	case "MKD":
		s.requireAuth(func() { s.cmdMkd(arg) })
	case "RMD":
		s.requireAuth(func() { s.cmdRmd(arg) })
	case "RNFR":
		s.requireAuth(func() { s.cmdRnfr(arg) })
	case "RNTO":
		s.requireAuth(func() { s.cmdRnto(arg) })
	case "SIZE":
		s.requireAuth(func() { s.cmdSize(arg) })
	case "MDTM":
		s.requireAuth(func() { s.cmdMdtm(arg) })
	default:
		s.sendReply(502, "Command not implemented")
	}
}

func (s *Server) requireAuth(fn func()) {
	if s.sess.auth != authAuthenticated {
		s.sendReply(530, "Please login with USER and PASS")
		return
	}
	fn()
}

func quote(s string) string {
	return "\"" + s + "\""
}

func (s *Server) cmdUser(arg string) {
	if arg == s.opt.User {
		s.sess.userGiven = arg
		s.sess.auth = authUserSupplied
		s.sendReply(331, "User name okay, need password")
		return
	}
	s.sess.auth = authUnauth
	s.sendReply(530, "Not logged in")
}

func (s *Server) cmdPass(arg string) {
	if s.sess.auth != authUserSupplied {
		s.sendReply(530, "Login with USER first")
		return
	}
	if arg == s.opt.Pass {
		s.sess.auth = authAuthenticated
		s.sendReply(230, "Login successful")
		return
	}
	s.sess.auth = authUnauth
	s.sendReply(530, "Not logged in")
}

func (s *Server) cmdType(arg string) {
	switch arg {
	case "I":
		s.sess.asciiMode = false
		s.sendReply(200, "Type set to I")
	case "A":
		s.sess.asciiMode = true
		s.sendReply(200, "Type set to A")
	default:
		s.sendReply(504, "Type not supported")
	}
}

func (s *Server) cmdCwd(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Failed to change directory")
		return
	}
	fi, err := s.fs.Stat(target)
	if err != nil || !fi.IsDir {
		s.sendReply(550, "Failed to change directory")
		return
	}
	s.sess.cwd = target
	s.sendReply(250, "Directory successfully changed")
}

func (s *Server) cmdPasv() {
	l, err := s.net.NewPassive()
	if err != nil {
		s.sendReply(425, "Cannot open passive connection")
		return
	}
	s.closeDataTransfer()
	s.sess.xfer.kind = xferPassiveArmed
	s.sess.xfer.passiveListener = l
	ip, port := l.Addr()
	s.sendReplyBytes(formatPassiveReply(ip, port))
}

func (s *Server) cmdListLike(arg string, kind xferKind) {
	if s.sess.xfer.kind != xferPassiveArmed {
		s.sendReply(425, "Use PASV first")
		return
	}
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.failTransfer(550, "Failed to list directory")
		return
	}
	l := s.sess.xfer.passiveListener
	s.sess.xfer.kind = xferPendingAccept
	s.sess.xfer.passiveListener = l
	s.sess.xfer.hostDir = target
	s.sess.xfer.pendingKind = kind
	s.sendReply(150, "Here comes the directory listing")
}

func (s *Server) cmdRetr(arg string) {
	if s.sess.xfer.kind != xferPassiveArmed {
		s.sendReply(425, "Use PASV first")
		return
	}
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.failTransfer(550, "Failed to open file")
		return
	}
	l := s.sess.xfer.passiveListener
	s.sess.xfer.kind = xferPendingAccept
	s.sess.xfer.passiveListener = l
	s.sess.xfer.hostDir = target
	s.sess.xfer.pendingKind = xferRetr
	s.sendReply(150, "Opening binary mode data connection")
}

func (s *Server) cmdStor(arg string) {
	if s.sess.xfer.kind != xferPassiveArmed {
		s.sendReply(425, "Use PASV first")
		return
	}
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.failTransfer(550, "Failed to create file")
		return
	}
	l := s.sess.xfer.passiveListener
	s.sess.xfer.kind = xferPendingAccept
	s.sess.xfer.passiveListener = l
	s.sess.xfer.hostDir = target
	s.sess.xfer.pendingKind = xferStor
	s.sendReply(150, "Ok to send data")
}

func (s *Server) cmdDele(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Delete failed")
		return
	}
	if err := s.fs.Delete(target); err != nil {
		s.sendReply(550, "Delete failed")
		return
	}
	s.sendReply(250, "Delete operation successful")
}

func (s *Server) cmdMkd(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Create directory failed")
		return
	}
	if err := s.fs.MakeDir(target); err != nil {
		s.sendReply(550, "Create directory failed")
		return
	}
	s.sendReply(257, quote(target))
}

func (s *Server) cmdRmd(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Remove directory failed")
		return
	}
	if err := s.fs.RemoveDir(target); err != nil {
		s.sendReply(550, "Remove directory failed")
		return
	}
	s.sendReply(250, "Remove directory operation successful")
}

func (s *Server) cmdRnfr(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "RNFR failed")
		return
	}
	s.sess.pendingRenameFrom = target
	s.sess.hasPendingRename = true
	s.sendReply(350, "Requested file action pending further information")
}

func (s *Server) cmdRnto(arg string) {
	if !s.sess.hasPendingRename {
		s.sendReply(503, "RNFR required first")
		return
	}
	from := s.sess.pendingRenameFrom
	s.sess.hasPendingRename = false
	s.sess.pendingRenameFrom = ""

	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Rename failed")
		return
	}
	if err := s.fs.Rename(from, target); err != nil {
		s.sendReply(550, "Rename failed")
		return
	}
	s.sendReply(250, "Rename successful")
}

func (s *Server) cmdSize(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Could not get file size")
		return
	}
	size, err := s.fs.FileSize(target)
	if err != nil {
		s.sendReply(550, "Could not get file size")
		return
	}
	s.sendReply(213, strconv.FormatInt(size, 10))
}

func (s *Server) cmdMdtm(arg string) {
	target, err := vpath.Normalize(s.sess.cwd, arg)
	if err != nil {
		s.sendReply(550, "Could not get file modification time")
		return
	}
	mtime, err := s.fs.FileMtime(target)
	if err != nil {
		s.sendReply(550, "Could not get file modification time")
		return
	}
	s.sendReply(213, formatMdtm(mtime))
}

func (s *Server) failTransfer(code int, text string) {
	s.closeDataTransfer()
	s.sendReply(code, text)
}

