package viewer

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termie/internal/editor"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/render"
)

func TestMessageKeyEvent(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    editor.KeyEvent
		wantErr bool
	}{
		{"text", Message{Type: "text", Text: "ls"}, editor.Runes("ls"), false},
		{"enter", Message{Type: "key", Key: "enter"}, editor.Press(editor.KeyEnter), false},
		{"ctrl-c", Message{Type: "key", Key: "ctrl-c"}, editor.Press(editor.KeyInterrupt), false},
		{"ctrl-d", Message{Type: "key", Key: "ctrl-d"}, editor.Press(editor.KeyEOF), false},
		{"empty text", Message{Type: "text"}, editor.KeyEvent{}, true},
		{"control text only", Message{Type: "text", Text: "\n\x1b\r"}, editor.KeyEvent{}, true},
		{"text with newline", Message{Type: "text", Text: "a\n"}, editor.Runes("a\n"), false},
		{"unknown key", Message{Type: "key", Key: "f13"}, editor.KeyEvent{}, true},
		{"not a key", Message{Type: "resize"}, editor.KeyEvent{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.KeyEvent()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHubWindow(t *testing.T) {
	hub := NewHub(Options{Width: 320, Height: 200})

	w, h := hub.CurrentSize()
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)

	hub.Resize(1, 100000)
	w, h = hub.CurrentSize()
	assert.Equal(t, minDimension, w)
	assert.Equal(t, maxDimension, h)

	hub.Resize(320, 200)
	fb := hub.AcquireFramebuffer()
	assert.Equal(t, 320, fb.Width)
	assert.Equal(t, 200, fb.Height)
}

func TestHubPresentLatestWins(t *testing.T) {
	hub := NewHub(Options{Width: 64, Height: 64})

	first := hub.AcquireFramebuffer()
	second := hub.AcquireFramebuffer()
	require.NoError(t, hub.Present(first))
	require.NoError(t, hub.Present(second))

	hub.mu.Lock()
	assert.Same(t, second, hub.pending)
	assert.Same(t, first, hub.spare)
	hub.mu.Unlock()

	// The replaced buffer is handed out again.
	assert.Same(t, first, hub.AcquireFramebuffer())
}

func TestHubAcquireAfterResize(t *testing.T) {
	hub := NewHub(Options{Width: 64, Height: 64})
	fb := hub.AcquireFramebuffer()
	require.NoError(t, hub.Present(fb))
	require.NoError(t, hub.Present(hub.AcquireFramebuffer()))

	hub.Resize(128, 96)
	got := hub.AcquireFramebuffer()
	assert.Equal(t, 128, got.Width)
	assert.Equal(t, 96, got.Height)
}

type harness struct {
	hub    *Hub
	server *httptest.Server
	keys   chan editor.KeyEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys := make(chan editor.KeyEvent, 16)
	hub := NewHub(Options{
		Width:   96,
		Height:  64,
		OnKey:   func(ev editor.KeyEvent) { keys <- ev },
		Metrics: monitoring.NewMetrics(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/", gin.WrapH(PageHandler()))
	router.GET("/stream", hub.HandleConnection)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &harness{hub: hub, server: server, keys: keys}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)

	var msg Message
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandleConnectionHello(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	hello := readMessage(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.ViewerID)
	assert.Equal(t, 96, hello.Width)
	assert.Equal(t, 64, hello.Height)
	assert.Equal(t, 1, h.hub.Viewers())
	assert.Equal(t, int64(1), h.hub.metrics.Snapshot().Viewers)
}

func TestHandleConnectionInput(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readMessage(t, conn)

	writeMessage(t, conn, Message{Type: "text", Text: "ls"})
	writeMessage(t, conn, Message{Type: "key", Key: "enter"})

	for _, want := range []editor.KeyEvent{editor.Runes("ls"), editor.Press(editor.KeyEnter)} {
		select {
		case got := <-h.keys:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("key event not delivered")
		}
	}
}

func TestHandleConnectionControlMessages(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readMessage(t, conn)

	writeMessage(t, conn, Message{Type: "ping"})
	assert.Equal(t, "pong", readMessage(t, conn).Type)

	writeMessage(t, conn, Message{Type: "bogus"})
	reply := readMessage(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "unknown message type", reply.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", readMessage(t, conn).Type)

	writeMessage(t, conn, Message{Type: "key", Key: "f13"})
	assert.Equal(t, "error", readMessage(t, conn).Type)

	writeMessage(t, conn, Message{Type: "resize", Width: 640, Height: 480})
	assert.Eventually(t, func() bool {
		w, hgt := h.hub.CurrentSize()
		return w == 640 && hgt == 480
	}, 5*time.Second, 10*time.Millisecond)
}

func presentFrame(t *testing.T, hub *Hub, pixel uint32) {
	t.Helper()
	fb := hub.AcquireFramebuffer()
	fb.Clear(render.Opaque(0))
	fb.Pix[0] = pixel
	require.NoError(t, hub.Present(fb))
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind == websocket.BinaryMessage {
			return data
		}
	}
}

func TestFramesBroadcast(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readMessage(t, conn)

	presentFrame(t, h.hub, render.Gray(0xff))

	img, err := png.Decode(bytes.NewReader(readFrame(t, conn)))
	require.NoError(t, err)
	assert.Equal(t, 96, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())

	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
	r, g, b, _ = img.At(1, 0).RGBA()
	assert.Equal(t, []uint32{0, 0, 0}, []uint32{r, g, b})
}

func TestLateViewerGetsLastFrame(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t)
	readMessage(t, first)

	presentFrame(t, h.hub, render.Gray(0xff))
	frame := readFrame(t, first)

	late := h.dial(t)
	assert.Equal(t, frame, readFrame(t, late))
}

func TestPageHandler(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestOfferLatest(t *testing.T) {
	ch := make(chan []byte, 1)
	offerLatest(ch, []byte("a"))
	offerLatest(ch, []byte("b"))
	assert.Equal(t, []byte("b"), <-ch)
	assert.Empty(t, ch)
}
