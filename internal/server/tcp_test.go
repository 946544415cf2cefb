package server

import (
	"bufio"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/atomkv/internal/engine"
	"github.com/Krishna8167/atomkv/internal/eviction"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	eng := engine.New(1000, eviction.New(1000), nil, testLog(), time.Hour)
	srv := New("127.0.0.1:0", eng, testLog())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.listener = ln
	srv.addr = ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.wg.Add(1)
			go srv.handleConn(conn)
		}
	}()

	return srv, func() {
		srv.Shutdown()
		eng.Close()
	}
}

func dial(t *testing.T, addr string) (*bufio.Reader, net.Conn) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	banner, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK AtomKV\n", banner)
	return r, conn
}

func send(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	resp, err := r.ReadString('\n')
	require.NoError(t, err)
	return resp
}

func TestServerSetGet(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+OK\n", send(t, conn, r, "SET foo bar"))
	require.Equal(t, "+bar\n", send(t, conn, r, "GET foo"))
	require.Equal(t, "$-1\n", send(t, conn, r, "GET missing"))
}

func TestServerSetWithPX(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+OK\n", send(t, conn, r, "SET foo bar PX 50"))
	require.Equal(t, "+bar\n", send(t, conn, r, "GET foo"))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, "$-1\n", send(t, conn, r, "GET foo"))
}

func TestServerIncrDecr(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, ":1\n", send(t, conn, r, "INCR counter"))
	require.Equal(t, ":2\n", send(t, conn, r, "INCR counter"))
	require.Equal(t, ":1\n", send(t, conn, r, "DECR counter"))
}

func TestServerIncrOnNonIntegerReturnsError(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	send(t, conn, r, "SET foo bar")
	resp := send(t, conn, r, "INCR foo")
	require.Regexp(t, `^-ERR `, resp)
}

func TestServerDelExistsTTL(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	send(t, conn, r, "SET foo bar")
	require.Equal(t, ":1\n", send(t, conn, r, "EXISTS foo"))
	require.Equal(t, ":-1\n", send(t, conn, r, "TTL foo"))
	require.Equal(t, ":1\n", send(t, conn, r, "DEL foo"))
	require.Equal(t, ":0\n", send(t, conn, r, "EXISTS foo"))
	require.Equal(t, ":-2\n", send(t, conn, r, "TTL foo"))
}

func TestServerUnknownCommand(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	resp := send(t, conn, r, "BOGUS a b")
	require.Regexp(t, `^-ERR unknown command`, resp)
}

func TestServerWrongArity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	resp := send(t, conn, r, "GET")
	require.Regexp(t, `^-ERR wrong number of arguments`, resp)
}

func TestServerQuitClosesConnection(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+BYE\n", send(t, conn, r, "QUIT"))

	_, err := r.ReadString('\n')
	require.Error(t, err)
}

func TestServerMSetMGet(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+OK\n", send(t, conn, r, "MSET a 1 b 2"))
	_, err := conn.Write([]byte("MGET a b missing\n"))
	require.NoError(t, err)
	require.Equal(t, "+1\n", readLine(t, r))
	require.Equal(t, "+2\n", readLine(t, r))
	require.Equal(t, "$-1\n", readLine(t, r))
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestServerPing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+PONG\n", send(t, conn, r, "PING"))
}

func TestServerSetValueWithEmbeddedSpacesNoPX(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	require.Equal(t, "+OK\n", send(t, conn, r, "SET greeting hello there world"))
	require.Equal(t, "+hello there world\n", send(t, conn, r, "GET greeting"))
}

func TestServerAppendValueWithEmbeddedSpaces(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	r, conn := dial(t, srv.addr)
	defer conn.Close()

	send(t, conn, r, "SET s hello")
	require.Equal(t, ":11\n", send(t, conn, r, "APPEND s  world"))
	require.Equal(t, "+hello world\n", send(t, conn, r, "GET s"))
}
