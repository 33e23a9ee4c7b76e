package history

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, rr *ReverseReader) []string {
	t.Helper()
	var lines []string
	for line, err := range rr.Lines() {
		require.NoError(t, err)
		lines = append(lines, line)
	}
	return lines
}

func TestReverseReaderLines(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "single terminated", input: "a\n", want: []string{"a\n"}},
		{name: "single unterminated", input: "a", want: []string{"a"}},
		{name: "unterminated tail", input: "a\nb\nc", want: []string{"c", "b\n", "a\n"}},
		{name: "blank lines", input: "\n\n", want: []string{"\n", "\n"}},
		{name: "crlf kept", input: "a\r\nb\r\n", want: []string{"b\r\n", "a\r\n"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, chunk := range []int{1, 2, 3, DefaultChunkSize} {
				rr := NewReverseReader(strings.NewReader(tc.input), chunk)
				require.Equal(t, tc.want, readAll(t, rr), "chunk=%d", chunk)
			}
		})
	}
}

func TestReverseReaderLongLineAcrossChunks(t *testing.T) {
	long := strings.Repeat("z", 10_000)
	rr := NewReverseReader(strings.NewReader("short\n"+long+"\nend\n"), 64)

	require.Equal(t, []string{"end\n", long + "\n", "short\n"}, readAll(t, rr))
}

func TestReverseReaderEOFIsSticky(t *testing.T) {
	rr := NewReverseReader(strings.NewReader("only\n"), 0)

	line, err := rr.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "only\n", line)

	for i := 0; i < 2; i++ {
		_, err = rr.ReadLine()
		require.Equal(t, io.EOF, err)
	}
}

func TestReverseReaderStopsEarly(t *testing.T) {
	rr := NewReverseReader(strings.NewReader("1\n2\n3\n"), 0)

	for line, err := range rr.Lines() {
		require.NoError(t, err)
		require.Equal(t, "3\n", line)
		break
	}

	line, err := rr.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "2\n", line)
}
