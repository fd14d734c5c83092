package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/internal/hub"
	"github.com/orchids/event-stream/pkg/logger"
	"github.com/orchids/event-stream/pkg/response"
	"github.com/orchids/event-stream/pkg/validator"
)

const (
	maxFrameBytes = 64 * 1024
	writeWait     = 10 * time.Second
)

// StreamHandler upgrades HTTP requests to websocket sessions and pumps
// inbound frames into the broadcast router. Auth happens upstream; this
// handler only validates the optional subject/owner identifiers.
type StreamHandler struct {
	router *hub.Router
	log    *logger.Logger

	// onActivity observes each inbound frame per connection id; the
	// governor's reuse tracking hangs off it.
	onActivity func(connectionID string)

	upgrader websocket.Upgrader
}

func NewStreamHandler(router *hub.Router, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		router: router,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) OnActivity(fn func(connectionID string)) {
	h.onActivity = fn
}

func (h *StreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	subjectID := validator.SanitizeString(c.Query("subject_id"))
	ownerID := validator.SanitizeString(c.Query("owner_id"))
	if err := validator.ValidateIdentifier(subjectID); err != nil {
		response.BadRequest(c, "Invalid subject identifier")
		return
	}
	if err := validator.ValidateIdentifier(ownerID); err != nil {
		response.BadRequest(c, "Invalid owner identifier")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	transport := hub.NewWSTransport(ws, writeWait)
	conn, err := h.router.Accept(transport, subjectID, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrPoolFull) {
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "pool full"),
				time.Now().Add(writeWait))
		}
		ws.Close()
		return
	}

	ws.SetReadLimit(maxFrameBytes)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if h.onActivity != nil {
			h.onActivity(conn.ID)
		}
		h.router.HandleInbound(ctx, conn.ID, data)
	}

	h.router.Disconnect(conn.ID, "client_closed")
}
