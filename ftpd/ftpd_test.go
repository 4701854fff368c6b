package ftpd

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperportal/fileserver/hostio/osfs"
	"github.com/paperportal/fileserver/hostio/rtc"

	"github.com/paperportal/fileserver/hostio/nettcp"
)

// harness drives a Server with a background goroutine calling Tick in
// a tight loop, the way the host ABI calls pp_tick roughly every
// 33ms; the test dials real TCP sockets against it.
type harness struct {
	t      *testing.T
	srv    *Server
	stopCh chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	opt := DefaultOpt
	opt.ListenAddr = "127.0.0.1:0"
	opt.Root = dir
	opt.User = "paper"
	opt.Pass = "paper"
	opt.PassiveLo = 40000
	opt.PassiveHi = 40050

	netAdapter := nettcp.New(opt.PassiveLo, opt.PassiveHi)
	srv := New(opt, netAdapter, osfs.New(dir), rtc.System{})
	require.NoError(t, srv.Start())

	h := &harness{t: t, srv: srv, stopCh: make(chan struct{})}
	go h.pump()
	t.Cleanup(func() {
		close(h.stopCh)
		_ = srv.Stop()
	})
	return h
}

func (h *harness) pump() {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			h.srv.Tick(now)
		}
	}
}

func (h *harness) controlAddr() string {
	ip, port := h.srv.controlListener.Addr()
	return net.JoinHostPort(
		strconv.Itoa(int(ip[0]))+"."+strconv.Itoa(int(ip[1]))+"."+strconv.Itoa(int(ip[2]))+"."+strconv.Itoa(int(ip[3])),
		strconv.Itoa(port))
}

func dialControl(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	// 127.0.0.1 observed via the listener's bound loopback address.
	conn, err := net.DialTimeout("tcp4", "127.0.0.1:"+portOf(t, addr), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return conn, bufio.NewReader(conn)
}

func portOf(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return port
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	_ = r
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func loginSession(t *testing.T, conn net.Conn, r *bufio.Reader) {
	t.Helper()
	assert.Contains(t, readLine(t, r), "220")
	sendLine(t, conn, "USER paper")
	assert.Contains(t, readLine(t, r), "331")
	sendLine(t, conn, "PASS paper")
	assert.Contains(t, readLine(t, r), "230")
}

func TestBasicLoginAndPWD(t *testing.T) {
	h := newHarness(t)
	conn, r := dialControl(t, h.controlAddr())
	defer conn.Close()

	loginSession(t, conn, r)

	sendLine(t, conn, "PWD")
	assert.Contains(t, readLine(t, r), `257 "/"`)

	sendLine(t, conn, "QUIT")
	assert.Contains(t, readLine(t, r), "221")
}

func TestRetrStreamsFileContent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.srv.opt.Root, "readme.txt"), []byte("hello"), 0o644))

	conn, r := dialControl(t, h.controlAddr())
	defer conn.Close()
	loginSession(t, conn, r)

	sendLine(t, conn, "PASV")
	pasv := readLine(t, r)
	_, port, ok := parsePassiveReply(trimCRLF(pasv))
	require.True(t, ok, "unparseable PASV reply: %q", pasv)

	dataConn, err := net.DialTimeout("tcp4", "127.0.0.1:"+strconv.Itoa(port), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, dataConn.SetDeadline(time.Now().Add(10*time.Second)))
	defer dataConn.Close()

	sendLine(t, conn, "RETR readme.txt")
	assert.Contains(t, readLine(t, r), "150")

	buf := make([]byte, 5)
	_, err = readFull(dataConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	assert.Contains(t, readLine(t, r), "226")
}

func TestStorThenSize(t *testing.T) {
	h := newHarness(t)
	conn, r := dialControl(t, h.controlAddr())
	defer conn.Close()
	loginSession(t, conn, r)

	sendLine(t, conn, "PASV")
	pasv := readLine(t, r)
	_, port, ok := parsePassiveReply(trimCRLF(pasv))
	require.True(t, ok)

	dataConn, err := net.DialTimeout("tcp4", "127.0.0.1:"+strconv.Itoa(port), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, dataConn.SetDeadline(time.Now().Add(10*time.Second)))

	sendLine(t, conn, "STOR new.bin")
	assert.Contains(t, readLine(t, r), "150")

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = dataConn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, dataConn.Close())

	assert.Contains(t, readLine(t, r), "226")

	sendLine(t, conn, "SIZE new.bin")
	assert.Contains(t, readLine(t, r), "213 4096")
}

func TestCwdCdupClamping(t *testing.T) {
	h := newHarness(t)
	conn, r := dialControl(t, h.controlAddr())
	defer conn.Close()
	loginSession(t, conn, r)

	sendLine(t, conn, "CDUP")
	assert.Contains(t, readLine(t, r), "250")
	sendLine(t, conn, "PWD")
	assert.Contains(t, readLine(t, r), `"/"`)

	sendLine(t, conn, "CWD /etc")
	assert.Contains(t, readLine(t, r), "550")
}

func TestRnfrRntoClearsPendingOnFailure(t *testing.T) {
	h := newHarness(t)
	conn, r := dialControl(t, h.controlAddr())
	defer conn.Close()
	loginSession(t, conn, r)

	sendLine(t, conn, "RNFR /a")
	assert.Contains(t, readLine(t, r), "350")

	sendLine(t, conn, "RNTO /b")
	assert.Contains(t, readLine(t, r), "550")

	// A second RNTO without a fresh RNFR must now fail with 503, proving
	// pending-rename state was cleared by the first attempt.
	sendLine(t, conn, "RNTO /c")
	assert.Contains(t, readLine(t, r), "503")
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
