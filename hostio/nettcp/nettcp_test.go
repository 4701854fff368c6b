package nettcp

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/paperportal/fileserver/hostio/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAcceptRoundTrip(t *testing.T) {
	a := New(50000, 50100)
	l, err := a.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer l.Close()

	_, port := l.Addr()
	require.NotZero(t, port)

	done := make(chan struct{})
	go func() {
		c, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		require.NoError(t, err)
		_, _ = c.Write([]byte("hi"))
		_ = c.Close()
		close(done)
	}()

	conn, err := l.Accept(2 * time.Second)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 8)
	n, err := conn.Recv(buf, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
	<-done
}

func TestAcceptWouldBlock(t *testing.T) {
	a := New(50000, 50100)
	l, err := a.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Accept(0)
	assert.ErrorIs(t, err, errs.WouldBlock)
}

func TestPassivePortCursorWraps(t *testing.T) {
	a := New(50000, 50002)
	var ports []int
	for i := 0; i < 3; i++ {
		l, err := a.NewPassive()
		require.NoError(t, err)
		_, port := l.Addr()
		ports = append(ports, port)
		require.NoError(t, l.Close())
	}
	for _, p := range ports {
		assert.GreaterOrEqual(t, p, 50000)
		assert.LessOrEqual(t, p, 50002)
	}
}
