package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"research-flowstream/internal/dto"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/pkg/serverutils"
	"research-flowstream/pkg/ai/pipeline"
	"research-flowstream/pkg/sse"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	wsLogModule = "WebSocket"

	// requestStage labels error events about the opening message.
	requestStage = "request"
)

var errConnectionClosed = errors.New("websocket connection closed")

// JobRunner runs one research job and streams its events to em.
type JobRunner interface {
	Run(ctx context.Context, topic string, em pipeline.Emitter) (*pipeline.RunResult, error)
}

type Handler struct {
	runner  JobRunner
	hub     *Hub
	logger  logger.ILogger
	baseCtx context.Context
}

// NewHandler serves job streams and, when hub is non-nil, the report feed.
func NewHandler(baseCtx context.Context, runner JobRunner, hub *Hub, log logger.ILogger) *Handler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{runner: runner, hub: hub, logger: log, baseCtx: baseCtx}
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	ws := router.Group("/ws")
	ws.Use(requireUpgrade)
	ws.Get("/start-job-stream", websocket.New(h.ServeJob))
	if h.hub != nil {
		ws.Get("/reports", websocket.New(h.ServeFeed))
	}
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ServeJob reads {"topic": ...} and streams the run as JSON text messages,
// ending with {"kind":"close","data":"done"}.
func (h *Handler) ServeJob(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		h.logger.Debug(wsLogModule, "Job stream closed before request", map[string]interface{}{"error": err})
		return
	}

	var req dto.StartJobRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.reject(conn, "Invalid request body")
		return
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			h.reject(conn, fe.Message)
			return
		}
		h.reject(conn, "Invalid request")
		return
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	client := newClient(nil, conn)
	go client.writePump()
	go func() {
		client.readPump(nil)
		cancel()
	}()

	session := &jobSession{client: client}
	res, err := h.runner.Run(ctx, req.Topic, session)
	session.finish()
	<-client.writerDone

	if err != nil && errors.Is(err, pipeline.ErrConsumerGone) {
		h.logger.Info(wsLogModule, "Job stream consumer disconnected", map[string]interface{}{
			"state": res.State.String(),
		})
	}
}

// reject answers a bad opening message with an error event and the close
// message. Nothing else is writing yet, so it writes directly.
func (h *Handler) reject(conn *websocket.Conn, message string) {
	for _, ev := range []sse.Event{sse.ErrorEvent(requestStage, message), sse.CloseEvent()} {
		data, err := sse.Marshal(ev)
		if err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ServeFeed pushes report.saved events until the peer goes away.
func (h *Handler) ServeFeed(conn *websocket.Conn) {
	client := newClient(h.hub, conn)
	if !h.hub.add(client) {
		return
	}

	go client.writePump()
	if err := client.readPump(nil); err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.logger.Debug(wsLogModule, "Feed client read error", map[string]interface{}{"error": err})
	}
	h.hub.remove(client)
	<-client.writerDone
}

// jobSession adapts a client to the pipeline emitter. Emit blocks while the
// send buffer is full, so a slow reader slows the run down.
type jobSession struct {
	client    *Client
	closeOnce sync.Once
}

func (s *jobSession) Emit(ctx context.Context, ev sse.Event) error {
	data, err := sse.Marshal(ev)
	if err != nil {
		return err
	}
	return s.send(ctx, data)
}

func (s *jobSession) Close(ctx context.Context) error {
	if err := s.Emit(ctx, sse.CloseEvent()); err != nil {
		return err
	}
	s.finish()
	return nil
}

func (s *jobSession) send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.client.Send <- data:
		return nil
	case <-s.client.writerDone:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish ends writePump once queued messages are written.
func (s *jobSession) finish() {
	s.closeOnce.Do(func() { close(s.client.Send) })
}
