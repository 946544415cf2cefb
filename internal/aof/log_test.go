package aof

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return logrus.NewEntry(l)
}

func TestLogWritesInEnqueueOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")

	l, err := Open(path, testLogger())
	require.NoError(t, err)

	l.Enqueue("SET", "a", "1")
	l.Enqueue("SET", "b", "2")
	l.Enqueue("DEL", "a")

	require.NoError(t, l.Close(time.Second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Equal(t, []string{"SET a 1", "SET b 2", "DEL a"}, lines)
}

func TestReplayAppliesEachRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")
	require.NoError(t, os.WriteFile(path, []byte("SET a 1\nAPPEND a 2\nSET b x PX 1000000\nDEL a\n"), 0o644))

	var verbs []string
	applied := map[string][]string{}
	err := Replay(path, func(verb string, args []string) error {
		verbs = append(verbs, verb)
		applied[verb] = args
		return nil
	}, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "APPEND", "SET", "DEL"}, verbs)
	require.Equal(t, []string{"a"}, applied["DEL"])
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	err := Replay(filepath.Join(dir, "missing.aof"), func(string, []string) error {
		t.Fatal("should not be called")
		return nil
	}, testLogger())
	require.NoError(t, err)
}

func TestReplaySkipsBadLinesAndContinues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")
	require.NoError(t, os.WriteFile(path, []byte("SET a 1\nBOGUS x y\nSET b 2\n"), 0o644))

	var seen []string
	err := Replay(path, func(verb string, args []string) error {
		if verb == "BOGUS" {
			return errBogus
		}
		seen = append(seen, verb)
		return nil
	}, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "SET"}, seen)
}

var errBogus = &bogusErr{}

type bogusErr struct{}

func (*bogusErr) Error() string { return "bogus verb" }
