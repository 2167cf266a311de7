package escape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "plain text", want: "plain text"},
		{name: "empty", in: "", want: ""},
		{name: "sgr color", in: "\x1b[31mred\x1b[0m", want: "red"},
		{name: "osc title with bel", in: "\x1b]0;title\x07rest", want: "rest"},
		{name: "osc title with string terminator", in: "\x1b]2;title\x1b\\rest", want: "rest"},
		{name: "osc keeps escape that is not a terminator", in: "\x1b]0;a\x1bb\x07c", want: "c"},
		{name: "bracketed paste mode", in: "\x1b[?2004hprompt% ", want: "prompt% "},
		{name: "lone escape is dropped", in: "a\x1bb", want: "ab"},
		{name: "escape before csi", in: "a\x1b\x1b[1mb", want: "ab"},
		{name: "truncated csi", in: "abc\x1b[3", want: "abc"},
		{name: "truncated escape", in: "abc\x1b", want: "abc"},
		{name: "utf-8 preserved", in: "héllo \x1b[1m世界\x1b[m", want: "héllo 世界"},
		{name: "newlines preserved", in: "a\r\n\x1b[Kb\n", want: "a\r\nb\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.in))
		})
	}
}

func TestScanIdempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"\x1b[31mred\x1b[0m",
		"\x1b]0;title\x07rest",
		"a\x1b\x1b\x1b[b",
		"x\x1b]unterminated",
		"\x1b\\\x1b[[m",
	}
	for _, in := range inputs {
		once := Scan(in)
		assert.Equal(t, once, Scan(once), "input %q", in)
		assert.NotContains(t, once, "\x1b")
	}
}

func TestScannerCarriesStateAcrossChunks(t *testing.T) {
	var s Scanner

	out := s.Append(nil, []byte("abc\x1b[3"))
	assert.Equal(t, "abc", string(out))
	assert.Equal(t, CSIParams, s.State())

	out = s.Append(nil, []byte("4m"))
	assert.Empty(t, out)
	assert.Equal(t, Normal, s.State())

	out = s.Append(nil, []byte("def"))
	assert.Equal(t, "def", string(out))
}

func TestScannerSplitOSCTerminator(t *testing.T) {
	var s Scanner

	assert.Empty(t, s.Append(nil, []byte("\x1b]0;tit")))
	assert.Equal(t, OSCString, s.State())

	assert.Empty(t, s.Append(nil, []byte("le\x1b")))
	assert.Equal(t, OSCString, s.State())

	assert.Equal(t, "after", string(s.Append(nil, []byte("\\after"))))
	assert.Equal(t, Normal, s.State())
}

func TestScannerEveryByteBoundary(t *testing.T) {
	in := "one\x1b[1;32mtwo\x1b]0;t\x07three\x1b]1;x\x1b\\four\x1bq"
	want := Scan(in)

	for cut := 0; cut <= len(in); cut++ {
		var s Scanner
		out := s.Append(nil, []byte(in[:cut]))
		out = s.Append(out, []byte(in[cut:]))
		require.Equal(t, want, string(out), "cut at %d", cut)
	}
}

func TestScannerReset(t *testing.T) {
	var s Scanner
	s.Append(nil, []byte("\x1b["))
	require.Equal(t, CSIParams, s.State())

	s.Reset()
	assert.Equal(t, Normal, s.State())
	assert.Equal(t, "m", string(s.Append(nil, []byte("m"))))
}

func TestScannerTransform(t *testing.T) {
	in := strings.Repeat("\x1b[0mab", 500)

	out, n, err := transform.String(&Scanner{}, in)
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	assert.Equal(t, strings.Repeat("ab", 500), out)
}

func TestScannerTransformShortDst(t *testing.T) {
	s := &Scanner{}
	dst := make([]byte, 2)

	nDst, nSrc, err := s.Transform(dst, []byte("a\x1b[1mbc"), false)
	assert.ErrorIs(t, err, transform.ErrShortDst)
	assert.Equal(t, 2, nDst)
	assert.Equal(t, "ab", string(dst[:nDst]))
	assert.Equal(t, 6, nSrc)

	nDst, nSrc, err = s.Transform(dst, []byte("c"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, nDst)
	assert.Equal(t, 1, nSrc)
}
