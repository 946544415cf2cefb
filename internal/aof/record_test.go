package aof

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		verb string
		args []string
	}{
		{"SET", []string{"foo", "bar"}},
		{"SET", []string{"foo", "hello world", "PX", "5000"}},
		{"DEL", []string{"foo"}},
		{"FLUSHALL", []string{}},
		{"SET", []string{"k", "has \"quotes\" inside"}},
		{"SET", []string{"k", "multi\nline\rvalue"}},
		{"SET", []string{"k", ""}},
	}

	for _, c := range cases {
		line := EncodeLine(c.verb, c.args...)
		rec := ParseLine(line)
		require.Equal(t, c.verb, rec.Verb)
		require.Equal(t, c.args, rec.Args, "round trip of %q", line)
	}
}

func TestEncodeQuotesFieldsWithSpaces(t *testing.T) {
	line := EncodeLine("SET", "foo", "hello world")
	require.Equal(t, `SET foo "hello world"`, line)
}

func TestEncodeTrimsFields(t *testing.T) {
	line := EncodeLine("SET", "  foo  ", "bar")
	require.Equal(t, "SET foo bar", line)
}

func TestParseLineHandlesEmptyQuotedField(t *testing.T) {
	rec := ParseLine(`SET foo ""`)
	require.Equal(t, "SET", rec.Verb)
	require.Equal(t, []string{"foo", ""}, rec.Args)
}

func TestParseLineUnknownVerbStillParses(t *testing.T) {
	rec := ParseLine("BOGUS a b")
	require.Equal(t, "BOGUS", rec.Verb)
	require.Equal(t, []string{"a", "b"}, rec.Args)
}
