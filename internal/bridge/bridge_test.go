package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/termie/internal/escape"
	"github.com/GriffinCanCode/termie/internal/pty"
)

func TestMailboxOrder(t *testing.T) {
	m := NewMailbox[int]()
	for i := 0; i < 5; i++ {
		require.True(t, m.Push(i))
	}
	assert.Equal(t, 5, m.Len())

	select {
	case <-m.Ready():
	default:
		t.Fatal("expected ready signal")
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, m.Drain(nil))
	assert.Empty(t, m.Drain(nil))
}

func TestMailboxConcurrentProducersKeepOrder(t *testing.T) {
	m := NewMailbox[[2]int]()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Push([2]int{p, i})
			}
		}(p)
	}

	var got [][2]int
	go func() {
		wg.Wait()
		m.Push([2]int{-1, -1})
	}()
	for {
		<-m.Ready()
		got = m.Drain(got)
		if len(got) > 0 && got[len(got)-1][0] == -1 {
			break
		}
	}

	next := make([]int, producers)
	for _, v := range got[:len(got)-1] {
		require.Equal(t, next[v[0]], v[1], "producer %d out of order", v[0])
		next[v[0]]++
	}
	for p := range next {
		assert.Equal(t, perProducer, next[p])
	}
}

func TestMailboxClose(t *testing.T) {
	m := NewMailbox[string]()
	m.Push("a")
	m.Close()

	assert.False(t, m.Push("b"))
	assert.Empty(t, m.Drain(nil))
}

func TestInboxDrainsBothMailboxes(t *testing.T) {
	in := NewInbox()
	in.Classifier.Push(Classification{Line: []byte("ls\n"), IsCommand: true})
	in.Pty.Push(Output{Text: []byte("x")})

	events := in.Drain(nil)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []Event{
		Output{Text: []byte("x")},
		Classification{Line: []byte("ls\n"), IsCommand: true},
	}, events)
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "plain text",
			chunks: []string{"hello\r\n"},
			want:   []string{"hello\r\n"},
		},
		{
			name:   "csi stripped",
			chunks: []string{"\x1b[31mred\x1b[0m"},
			want:   []string{"red"},
		},
		{
			name:   "csi split across chunks",
			chunks: []string{"abc\x1b[3", "4m", "def"},
			want:   []string{"abc", "", "def"},
		},
		{
			name:   "rune split across chunks",
			chunks: []string{"a\xe4\xb8", "\x96b"},
			want:   []string{"a", "世b"},
		},
		{
			name:   "invalid byte replaced",
			chunks: []string{"a\xffb"},
			want:   []string{"a�b"},
		},
		{
			name:   "osc split at terminator",
			chunks: []string{"\x1b]0;title\x1b", "\\prompt"},
			want:   []string{"", "prompt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			for i, chunk := range tt.chunks {
				got := d.Decode(nil, []byte(chunk))
				assert.Equal(t, tt.want[i], string(got), "chunk %d", i)
			}
		})
	}
}

func TestDecoderStateAcrossChunks(t *testing.T) {
	d := NewDecoder()

	d.Decode(nil, []byte("abc\x1b[3"))
	assert.Equal(t, escape.CSIParams, d.State())

	d.Decode(nil, []byte("4m"))
	assert.Equal(t, escape.Normal, d.State())
}

func TestDecoderFlush(t *testing.T) {
	d := NewDecoder()
	assert.Equal(t, "a", string(d.Decode(nil, []byte("a\xe4"))))
	assert.Equal(t, "�", string(d.Flush(nil)))

	d.Reset()
	assert.Equal(t, "ok", string(d.Decode(nil, []byte("ok"))))
}

func TestDecoderLargeChunk(t *testing.T) {
	d := NewDecoder()
	in := strings.Repeat("line \x1b[1mbold\x1b[0m 世界\n", 2000)
	want := escape.Scan(in)

	got := d.Decode(nil, []byte(in))
	assert.Equal(t, want, string(got))
}

// step is one scripted read result.
type step struct {
	data string
	err  error
}

type fakeSource struct {
	mu     sync.Mutex
	steps  []step
	status pty.ExitStatus
	reaped int
}

func (f *fakeSource) next(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return 0, io.EOF
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return copy(p, s.data), s.err
}

func (f *fakeSource) Read(p []byte) (int, error) {
	for {
		n, err := f.next(p)
		if !errors.Is(err, pty.ErrWouldBlock) {
			return n, err
		}
	}
}

func (f *fakeSource) ReadNonblocking(p []byte) (int, error) { return f.next(p) }

func (f *fakeSource) Reap() (pty.ExitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reaped++
	return f.status, nil
}

func waitClosed(t *testing.T, box *Mailbox[Event]) (string, Closed) {
	t.Helper()
	var out bytes.Buffer
	deadline := time.After(2 * time.Second)
	for {
		for _, ev := range box.Drain(nil) {
			switch e := ev.(type) {
			case Output:
				out.Write(e.Text)
			case Closed:
				return out.String(), e
			}
		}
		select {
		case <-box.Ready():
		case <-deadline:
			t.Fatal("no Closed event")
		}
	}
}

func TestReaderPollWouldBlockIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := &fakeSource{steps: []step{
		{err: pty.ErrWouldBlock},
		{err: pty.ErrWouldBlock},
	}}
	box := NewMailbox[Event]()
	r := NewReader(src, box, ReaderOptions{Logger: zap.New(core)})

	assert.True(t, r.Poll())
	assert.True(t, r.Poll())
	assert.Zero(t, box.Len())
	assert.Zero(t, logs.Len())
}

func TestReaderPoll(t *testing.T) {
	src := &fakeSource{
		steps: []step{
			{data: "echo hi\r\n"},
			{data: "hi\r\n\x1b[3"},
			{err: pty.ErrWouldBlock},
			{data: "2m% "},
			{err: io.EOF},
		},
		status: pty.ExitStatus{Code: 0},
	}
	box := NewMailbox[Event]()
	r := NewReader(src, box, ReaderOptions{})

	require.True(t, r.Poll())
	events := box.Drain(nil)
	require.Len(t, events, 2)
	assert.Equal(t, Output{Text: []byte("echo hi\r\n")}, events[0])
	assert.Equal(t, Output{Text: []byte("hi\r\n")}, events[1])

	assert.False(t, r.Poll())
	assert.True(t, r.Done())
	assert.False(t, r.Poll())

	out, closed := waitClosed(t, box)
	assert.Equal(t, "% ", out)
	assert.NoError(t, closed.Err)
	assert.True(t, closed.Status.Success())
	assert.Equal(t, 1, src.reaped)
}

func TestReaderRun(t *testing.T) {
	src := &fakeSource{
		steps: []step{
			{data: "a"},
			{err: pty.ErrWouldBlock},
			{data: "b\x1b]0;t\x07c"},
			{err: io.EOF},
		},
		status: pty.ExitStatus{Code: 2},
	}
	box := NewMailbox[Event]()
	r := NewReader(src, box, ReaderOptions{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background())
	}()

	out, closed := waitClosed(t, box)
	<-done
	assert.Equal(t, "abc", out)
	assert.Equal(t, 2, closed.Status.Code)
	assert.NoError(t, closed.Err)
}

func TestReaderIOErrorEndsSession(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	boom := errors.New("boom")
	src := &fakeSource{steps: []step{{data: "x"}, {err: boom}}}
	box := NewMailbox[Event]()
	r := NewReader(src, box, ReaderOptions{Logger: zap.New(core)})

	r.Run(context.Background())

	out, closed := waitClosed(t, box)
	assert.Equal(t, "x", out)
	assert.ErrorIs(t, closed.Err, boom)
	assert.Equal(t, 1, logs.FilterMessage("Pty read failed, ending session").Len())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Inline ")
	require.NoError(t, err)
	assert.Equal(t, ModeInline, m)

	m, err = ParseMode("background")
	require.NoError(t, err)
	assert.Equal(t, ModeBackground, m)

	_, err = ParseMode("threads")
	assert.Error(t, err)
}

type recordSink struct {
	writes [][]byte
	err    error
}

func (s *recordSink) Write(p []byte) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return nil
}

func TestWriter(t *testing.T) {
	sink := &recordSink{}
	w := NewWriter(sink, nil, nil)

	require.NoError(t, w.Send([]byte("ls\n")))
	require.NoError(t, w.Send(nil))
	assert.Equal(t, [][]byte{[]byte("ls\n")}, sink.writes)

	sink.err = pty.ErrClosed
	assert.ErrorIs(t, w.Send([]byte("x")), pty.ErrClosed)
}
