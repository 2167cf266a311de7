package viewer

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/editor"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/render"
	"github.com/GriffinCanCode/termie/internal/shared/id"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxMessage   = 64 << 10
	minDimension = 64
	maxDimension = 4096
)

// Options configures a Hub.
type Options struct {
	Width, Height int

	// OnKey receives key events from viewers.
	OnKey func(editor.KeyEvent)

	// CheckOrigin overrides the websocket origin check. The default accepts
	// same-host origins only.
	CheckOrigin func(r *http.Request) bool

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Hub fans frames out to viewers and collects their input.
type Hub struct {
	upgrader websocket.Upgrader
	onKey    func(editor.KeyEvent)
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	width   int
	height  int
	spare   *render.Framebuffer
	pending *render.Framebuffer
	last    []byte
	clients map[id.ViewerID]*client

	wake chan struct{}
}

type client struct {
	id     id.ViewerID
	conn   *websocket.Conn
	frames chan []byte
	text   chan Message
	done   chan struct{}
}

// NewHub creates a hub with the given initial surface size.
func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnKey == nil {
		opts.OnKey = func(editor.KeyEvent) {}
	}
	h := &Hub{
		onKey:   opts.OnKey,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		width:   clampDim(opts.Width),
		height:  clampDim(opts.Height),
		clients: make(map[id.ViewerID]*client),
		wake:    make(chan struct{}, 1),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     opts.CheckOrigin,
	}
	return h
}

func clampDim(v int) int {
	return min(max(v, minDimension), maxDimension)
}

// CurrentSize implements render.Window.
func (h *Hub) CurrentSize() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Resize implements render.Window.
func (h *Hub) Resize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.width, h.height = clampDim(width), clampDim(height)
}

// AcquireFramebuffer implements render.Window. Buffers are recycled once
// the encoder is done with them.
func (h *Hub) AcquireFramebuffer() *render.Framebuffer {
	h.mu.Lock()
	defer h.mu.Unlock()

	fb := h.spare
	h.spare = nil
	if fb == nil || fb.Width != h.width || fb.Height != h.height {
		fb = render.NewFramebuffer(h.width, h.height)
	}
	return fb
}

// Present implements render.Window. It never blocks on encoding or on
// viewers; an unencoded older frame is replaced.
func (h *Hub) Present(fb *render.Framebuffer) error {
	h.mu.Lock()
	if h.pending != nil {
		h.spare = h.pending
	}
	h.pending = fb
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run encodes presented frames and broadcasts them until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	var buf bytes.Buffer

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
		}

		h.mu.Lock()
		fb := h.pending
		h.pending = nil
		h.mu.Unlock()
		if fb == nil {
			continue
		}

		buf.Reset()
		err := enc.Encode(&buf, fb.Image())

		h.mu.Lock()
		if h.spare == nil {
			h.spare = fb
		}
		h.mu.Unlock()

		if err != nil {
			h.logger.Error("Failed to encode frame", zap.Error(err))
			continue
		}
		h.broadcast(bytes.Clone(buf.Bytes()))
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = frame
	for _, c := range h.clients {
		offerLatest(c.frames, frame)
	}
}

// offerLatest replaces whatever frame is queued with frame.
func offerLatest(ch chan []byte, frame []byte) {
	for {
		select {
		case ch <- frame:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// HandleConnection upgrades the request and serves one viewer until it
// disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:     id.NewViewerID(),
		conn:   conn,
		frames: make(chan []byte, 1),
		text:   make(chan Message, 16),
		done:   make(chan struct{}),
	}
	logger := h.logger.With(zap.String("viewer_id", cl.id.String()))

	h.mu.Lock()
	h.clients[cl.id] = cl
	if h.last != nil {
		cl.frames <- h.last
	}
	width, height := h.width, h.height
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	logger.Info("Viewer connected", zap.String("remote", c.ClientIP()))

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl.id)
		h.mu.Unlock()
		close(cl.done)
		_ = conn.Close()
		h.metrics.DecWSConnections()
		logger.Info("Viewer disconnected")
	}()

	go h.writePump(cl, logger)

	cl.send(Message{Type: "hello", ViewerID: cl.id.String(), Width: width, Height: height})
	h.readPump(cl, logger)
}

func (h *Hub) readPump(cl *client, logger *zap.Logger) {
	cl.conn.SetReadLimit(maxMessage)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.metrics.RecordWSMessage("in", "invalid")
			cl.send(Message{Type: "error", Message: "invalid message"})
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.handleMessage(cl, msg)
	}
}

func (h *Hub) handleMessage(cl *client, msg Message) {
	switch msg.Type {
	case "key", "text":
		ev, err := msg.KeyEvent()
		if err != nil {
			cl.send(Message{Type: "error", Message: err.Error()})
			return
		}
		h.onKey(ev)
	case "resize":
		h.Resize(msg.Width, msg.Height)
	case "ping":
		cl.send(Message{Type: "pong"})
	default:
		cl.send(Message{Type: "error", Message: "unknown message type"})
	}
}

// send queues a JSON message, dropping it if the viewer is not keeping up.
func (cl *client) send(msg Message) {
	select {
	case cl.text <- msg:
	default:
	}
}

func (h *Hub) writePump(cl *client, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-cl.done:
			return
		case frame := <-cl.frames:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = cl.conn.WriteMessage(websocket.BinaryMessage, frame)
			h.metrics.RecordWSMessage("out", "frame")
		case msg := <-cl.text:
			var data []byte
			if data, err = sonic.Marshal(msg); err == nil {
				_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
				err = cl.conn.WriteMessage(websocket.TextMessage, data)
				h.metrics.RecordWSMessage("out", msg.Type)
			}
		case <-ticker.C:
			err = cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			logger.Debug("WebSocket write failed", zap.Error(err))
			_ = cl.conn.Close()
			return
		}
	}
}
