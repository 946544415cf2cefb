// Package server implements the line-oriented TCP text protocol adapter
// described in spec.md §6. It owns no state of its own: every command it
// parses is forwarded verbatim to an *engine.Engine operation.
package server

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Krishna8167/atomkv/internal/engine"
)

// Server accepts TCP connections and dispatches each line received to the
// engine, replying with the reduced RESP-style framing from spec.md §6.
type Server struct {
	addr   string
	engine *engine.Engine
	log    *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Server bound to addr (e.g. ":6379").
func New(addr string, eng *engine.Engine, log *logrus.Entry) *Server {
	return &Server{addr: addr, engine: eng, log: log, quit: make(chan struct{})}
}

// ListenAndServe blocks accepting connections until Shutdown is called,
// dispatching each to its own goroutine. It returns nil on a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithField("addr", s.addr).Info("TCP server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			s.log.WithError(err).Warn("TCP accept error")
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting connections, closes the listener and every
// open client socket, and waits for the connection handlers to exit (spec.md §5 shutdown
// sequence: "stop accepting connections -> close client sockets").
func (s *Server) Shutdown() {
	close(s.quit)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Shutdown closes this client socket, which ends the read loop below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			_ = conn.Close()
		case <-done:
		}
	}()

	connID := uuid.NewString()
	entry := s.log.WithField("conn", connID).WithField("remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			// spec.md §7: "A panic in a worker must not crash the
			// server; the connection is closed and the worker exits."
			entry.Errorf("recovered from panic in connection handler: %v", r)
		}
	}()

	if _, err := conn.Write([]byte("OK AtomKV\n")); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp, shouldQuit := s.dispatch(line)
		if _, err := conn.Write([]byte(resp)); err != nil {
			// Transport/IO error on the client socket: close silently,
			// the engine is unaffected (spec.md §7).
			return
		}
		if shouldQuit {
			return
		}
	}
}

// dispatch parses one command line and returns the wire reply plus
// whether the connection should close afterward. Commands are
// case-insensitive (spec.md §6). Keys and bare arguments are atomic
// whitespace-delimited tokens, but values are "arbitrary non-empty byte
// strings" (spec.md §3) and may contain embedded spaces; SET and APPEND
// therefore take their value as the remainder of the line rather than
// splitting it further, matching spec.md §6's "cap of 4 tokens" framing
// (verb, key, value, and — for SET only — a trailing PX clause).
func (s *Server) dispatch(line string) (reply string, quit bool) {
	verb, rest := splitVerb(line)
	if verb == "" {
		return errReply("empty command"), false
	}

	switch verb {
	case "PING":
		return "+PONG\n", false

	case "QUIT":
		return "+BYE\n", true

	case "SET":
		return s.doSet(rest), false

	case "GET":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("GET"), false
		}
		v, ok := s.engine.GET(key)
		if !ok {
			return "$-1\n", false
		}
		return "+" + string(v) + "\n", false

	case "DEL":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("DEL"), false
		}
		return intReply(boolToInt(s.engine.DEL(key))), false

	case "EXISTS":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("EXISTS"), false
		}
		return intReply(boolToInt(s.engine.EXISTS(key))), false

	case "TTL":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("TTL"), false
		}
		return intReply(s.engine.TTL(key)), false

	case "PERSIST":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("PERSIST"), false
		}
		return intReply(boolToInt(s.engine.PERSIST(key))), false

	case "EXPIRE":
		args, ok := nArgs(rest, 2)
		if !ok {
			return wrongArity("EXPIRE"), false
		}
		secs, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errReply("value is not an integer"), false
		}
		return intReply(int64(s.engine.EXPIRE(args[0], secs))), false

	case "APPEND":
		key, value, ok := splitKeyAndValue(rest)
		if !ok {
			return wrongArity("APPEND"), false
		}
		return intReply(int64(s.engine.APPEND(key, []byte(value)))), false

	case "INCR":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("INCR"), false
		}
		v, err := s.engine.INCR(key)
		if err != nil {
			return errReply(err.Error()), false
		}
		return intReply(v), false

	case "DECR":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("DECR"), false
		}
		v, err := s.engine.DECR(key)
		if err != nil {
			return errReply(err.Error()), false
		}
		return intReply(v), false

	case "STRLEN":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("STRLEN"), false
		}
		return intReply(int64(s.engine.STRLEN(key))), false

	case "TYPE":
		key, ok := oneArg(rest)
		if !ok {
			return wrongArity("TYPE"), false
		}
		return "+" + s.engine.TYPE(key) + "\n", false

	case "KEYS":
		fields := strings.Fields(rest)
		if len(fields) > 1 {
			return wrongArity("KEYS"), false
		}
		pattern := ""
		if len(fields) == 1 {
			pattern = fields[0]
		}
		keys, err := s.engine.Keys(pattern)
		if err != nil {
			return errReply(err.Error()), false
		}
		var b strings.Builder
		for _, k := range keys {
			b.WriteString("+" + k + "\n")
		}
		return b.String(), false

	case "DBSIZE":
		return intReply(s.engine.DBSize()), false

	case "MGET":
		keys := strings.Fields(rest)
		if len(keys) == 0 {
			return wrongArity("MGET"), false
		}
		vals := s.engine.MGet(keys)
		var b strings.Builder
		for _, v := range vals {
			if v == nil {
				b.WriteString("$-1\n")
			} else {
				b.WriteString("+" + string(v) + "\n")
			}
		}
		return b.String(), false

	case "MSET":
		s.engine.MSet(strings.Fields(rest))
		return "+OK\n", false

	case "RENAME":
		args, ok := nArgs(rest, 2)
		if !ok {
			return wrongArity("RENAME"), false
		}
		if s.engine.Rename(args[0], args[1]) {
			return "+OK\n", false
		}
		return errReply("no such key"), false

	case "FLUSHALL":
		s.engine.FlushAll()
		return "+OK\n", false

	default:
		return errReply(fmt.Sprintf("unknown command %q", verb)), false
	}
}

// doSet parses "key value" or "key value PX ms", where value is the
// remainder of the line up to an optional trailing literal " PX <ms>"
// clause, so that a value itself may contain embedded spaces.
func (s *Server) doSet(rest string) string {
	key, valueAndPX, ok := splitKeyAndValue(rest)
	if !ok {
		return wrongArity("SET")
	}

	value := valueAndPX
	var ttlMillis int64
	if idx := strings.LastIndex(valueAndPX, " PX "); idx > 0 {
		pxArg := valueAndPX[idx+len(" PX "):]
		ms, err := strconv.ParseInt(pxArg, 10, 64)
		if err == nil {
			if ms <= 0 {
				return errReply("PX value is not a valid positive integer")
			}
			value = valueAndPX[:idx]
			ttlMillis = ms
		}
	}

	s.engine.SET(key, []byte(value), ttlMillis)
	return "+OK\n"
}

// splitVerb separates the leading command word from the rest of the
// line, upper-casing the verb (spec.md §6: "commands are case-insensitive").
func splitVerb(line string) (verb, rest string) {
	if idx := strings.IndexByte(line, ' '); idx != -1 {
		return strings.ToUpper(line[:idx]), line[idx+1:]
	}
	return strings.ToUpper(line), ""
}

// oneArg requires rest to be exactly one whitespace-delimited token (a
// key never contains embedded spaces).
func oneArg(rest string) (string, bool) {
	fields := strings.Fields(rest)
	if len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}

// nArgs requires rest to split into exactly n whitespace-delimited
// tokens (used for arguments that are themselves keys or numbers, never
// free-form values).
func nArgs(rest string, n int) ([]string, bool) {
	fields := strings.Fields(rest)
	if len(fields) != n {
		return nil, false
	}
	return fields, true
}

// splitKeyAndValue splits rest into a leading key token and a value that
// is the remainder of the line, preserving any embedded spaces in value.
func splitKeyAndValue(rest string) (key, value string, ok bool) {
	idx := strings.IndexByte(rest, ' ')
	if idx <= 0 {
		return "", "", false
	}
	key = rest[:idx]
	value = rest[idx+1:]
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

func errReply(msg string) string {
	return "-ERR " + msg + "\n"
}

func wrongArity(verb string) string {
	return errReply("wrong number of arguments for '" + verb + "'")
}

func intReply(n int64) string {
	return ":" + strconv.FormatInt(n, 10) + "\n"
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
