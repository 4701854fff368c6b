package davd

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperportal/fileserver/hostio/nettcp"
	"github.com/paperportal/fileserver/hostio/osfs"
	"github.com/paperportal/fileserver/hostio/rtc"
)

// harness drives a davd.Server with a background goroutine calling
// Tick in a tight loop, the same shape as ftpd's test harness, and
// dials real TCP sockets against it to exercise the HTTP/1.1 wire
// protocol end to end.
type harness struct {
	t      *testing.T
	srv    *Server
	root   string
	stopCh chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	opt := DefaultOpt
	opt.ListenAddr = "127.0.0.1:0"
	opt.Root = dir

	netAdapter := nettcp.New(40100, 40150)
	srv := New(opt, netAdapter, osfs.New(dir), rtc.System{})
	require.NoError(t, srv.Start())

	h := &harness{t: t, srv: srv, root: dir, stopCh: make(chan struct{})}
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

func (h *harness) addr() string {
	ip, port := h.srv.listener.Addr()
	return net.JoinHostPort(
		strconv.Itoa(int(ip[0]))+"."+strconv.Itoa(int(ip[1]))+"."+strconv.Itoa(int(ip[2]))+"."+strconv.Itoa(int(ip[3])),
		strconv.Itoa(port))
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	conn, err := net.DialTimeout("tcp4", "127.0.0.1:"+port, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return conn, bufio.NewReader(conn)
}

type response struct {
	status  int
	headers map[string]string
	body    string
}

func readResponse(t *testing.T, r *bufio.Reader) response {
	t.Helper()
	statusLine, err := r.ReadString('\n')
	require.NoError(t, err)
	fields := strings.Fields(statusLine)
	require.GreaterOrEqual(t, len(fields), 2)
	code, err := strconv.Atoi(fields[1])
	require.NoError(t, err)

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		require.True(t, i > 0, "malformed header line %q", line)
		headers[strings.ToLower(strings.TrimSpace(line[:i]))] = strings.TrimSpace(line[i+1:])
	}

	var body string
	if cl, ok := headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		require.NoError(t, err)
		buf := make([]byte, n)
		_, err = readFull(r, buf)
		require.NoError(t, err)
		body = string(buf)
	}
	return response{status: code, headers: headers, body: body}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestOptionsReturnsDavHeaders(t *testing.T) {
	h := newHarness(t)
	conn, r := dial(t, h.addr())
	defer conn.Close()

	_, err := conn.Write([]byte("OPTIONS / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, r)
	assert.Equal(t, 200, resp.status)
	assert.Equal(t, "0", resp.headers["content-length"])
	assert.Contains(t, resp.headers["dav"], "1")
	assert.Contains(t, resp.headers["allow"], "PROPFIND")
}

func TestPutThenGetRoundTrips(t *testing.T) {
	h := newHarness(t)
	conn, r := dial(t, h.addr())
	defer conn.Close()

	body := "hello"
	req := "PUT /f.txt HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	putResp := readResponse(t, r)
	assert.Equal(t, 201, putResp.status)

	_, err = conn.Write([]byte("GET /f.txt HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	getResp := readResponse(t, r)
	assert.Equal(t, 200, getResp.status)
	assert.Equal(t, "5", getResp.headers["content-length"])
	assert.Equal(t, "hello", getResp.body)
}

func TestChunkedRequestBodyDecodesToExactBytes(t *testing.T) {
	h := newHarness(t)
	conn, r := dial(t, h.addr())
	defer conn.Close()

	req := "PUT /c.txt HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n0\r\n\r\n"
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	resp := readResponse(t, r)
	assert.Equal(t, 201, resp.status)

	got, err := os.ReadFile(filepath.Join(h.root, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDeleteMissingFileReturns404(t *testing.T) {
	h := newHarness(t)
	conn, r := dial(t, h.addr())
	defer conn.Close()

	_, err := conn.Write([]byte("DELETE /nope.txt HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, r)
	assert.Equal(t, 404, resp.status)
}

func TestMkcolDelegatesToWebdavHandler(t *testing.T) {
	h := newHarness(t)
	conn, r := dial(t, h.addr())
	defer conn.Close()

	_, err := conn.Write([]byte("MKCOL /newdir HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, r)
	assert.Equal(t, 201, resp.status)

	fi, err := os.Stat(filepath.Join(h.root, "newdir"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
