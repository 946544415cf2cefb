package aof

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// Log is the asynchronous appender described in spec.md §4.3: a
// multi-producer/single-consumer queue feeding one dedicated writer
// goroutine, with no fsync guarantee and no back-pressure (the queue
// grows unboundedly rather than blocking producers on disk I/O).
type Log struct {
	file *os.File
	log  *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	pending []string
	closed  bool
	done    chan struct{}
}

// Open creates the AOF's parent directory if needed and opens the file
// for appending. A failure here is the "Fatal at startup" case from
// spec.md §7: the caller should abort the process with a diagnostic.
func Open(path string, log *logrus.Entry) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create AOF directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open AOF file %s", path)
	}

	l := &Log{file: f, log: log, done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l, nil
}

// Enqueue appends verb/args to the in-memory queue. It never blocks on
// disk I/O (spec.md §9 "DCL queue ... Producers never block on disk I/O
// on the hot path") and is safe to call from the engine's per-key
// critical section, preserving the per-key linearization order described
// in spec.md §5.
func (l *Log) Enqueue(verb string, args ...string) {
	line := EncodeLine(verb, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.pending = append(l.pending, line)
	l.cond.Signal()
}

// run is the single dedicated writer task. It drains whatever has
// accumulated since the last wakeup, writes each record terminated by
// '\n', and repeats. Records are flushed in enqueue order.
func (l *Log) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.pending) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.pending) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, line := range batch {
			if _, err := l.file.WriteString(line + "\n"); err != nil {
				// spec.md §7: "DCL write error: logged to stderr, the
				// engine continues serving. Durability for the affected
				// record is lost." There is no retry; the record is
				// simply dropped.
				l.log.WithError(err).Error("AOF write failed; record not durable")
			}
		}
	}
}

// Close signals the writer to drain its current queue and stop, waiting
// up to timeout (spec.md §5: "best-effort up to a bounded join timeout,
// e.g. 1 second").
func (l *Log) Close(timeout time.Duration) error {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-time.After(timeout):
		l.log.Warn("AOF writer drain timed out; closing file with queue possibly non-empty")
	}
	return l.file.Close()
}

// Replay reads path line by line and invokes apply for each non-blank
// record (spec.md §4.3). A missing file is not an error — it means a
// fresh store with nothing to replay. Unknown verbs and parse/arity
// errors from apply are logged and skipped; replay continues.
func Replay(path string, apply func(verb string, args []string) error, log *logrus.Entry) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open AOF file %s for replay", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec := ParseLine(line)
		if rec.Verb == "" {
			continue
		}
		if err := apply(rec.Verb, rec.Args); err != nil {
			log.WithError(err).WithField("line", lineNo).Warn("skipping unreplayable AOF record")
		}
	}
	return scanner.Err()
}
