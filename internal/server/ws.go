package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const outboundFrameBuffer = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleChannel upgrades the request to a websocket and bridges it onto the
// board's channel: frames read from the socket are published, frames arriving
// from peers are written back. The socket never sees its own frames.
func (h *httpHandler) handleChannel(c *gin.Context) {
	boardID, err := board.NewBoardID(c.Param("boardID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_board_id"})
		return
	}
	kind, err := transport.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel_kind"})
		return
	}

	channel, err := h.relay.OpenChannel(boardID, kind)
	if err != nil {
		h.logger.Error("channel open failed",
			zap.String("board_id", boardID.String()),
			zap.String("kind", kind.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "channel_open_failed"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = channel.Close()
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	bridge := &channelBridge{
		socket:   socket,
		channel:  channel,
		kind:     kind,
		logger:   h.logger,
		outbound: make(chan []byte, outboundFrameBuffer),
		done:     make(chan struct{}),
	}
	bridge.run()
}

type channelBridge struct {
	socket   *websocket.Conn
	channel  transport.Channel
	kind     transport.Kind
	logger   *zap.Logger
	outbound chan []byte
	done     chan struct{}

	// lastTracked remembers the client's most recent presence announcement so
	// the relay can publish the departure when the socket drops without one.
	lastTracked *board.PresenceEntry
}

func (bridge *channelBridge) run() {
	cancel := bridge.channel.Subscribe(bridge.enqueue)
	defer cancel()

	go bridge.writeLoop()
	bridge.readLoop()

	close(bridge.done)
	if bridge.kind == transport.KindPresence && bridge.lastTracked != nil {
		bridge.publishLeave(*bridge.lastTracked)
	}
	_ = bridge.channel.Close()
	_ = bridge.socket.Close()
}

// enqueue hands a peer frame to the socket writer, dropping on backpressure;
// the relay layer is best effort end to end.
func (bridge *channelBridge) enqueue(frame []byte) {
	select {
	case bridge.outbound <- frame:
	case <-bridge.done:
	default:
		bridge.logger.Debug("socket frame dropped",
			zap.String("kind", bridge.kind.String()))
	}
}

func (bridge *channelBridge) writeLoop() {
	for {
		select {
		case frame := <-bridge.outbound:
			if err := bridge.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-bridge.done:
			return
		}
	}
}

func (bridge *channelBridge) readLoop() {
	for {
		_, frame, err := bridge.socket.ReadMessage()
		if err != nil {
			return
		}
		if bridge.kind == transport.KindPresence {
			bridge.sniffPresence(frame)
		}
		if err := bridge.channel.Publish(context.Background(), frame); err != nil {
			bridge.logger.Debug("relay publish dropped",
				zap.String("kind", bridge.kind.String()), zap.Error(err))
		}
	}
}

func (bridge *channelBridge) sniffPresence(frame []byte) {
	envelope, err := board.DecodeEvent(frame)
	if err != nil {
		return
	}
	var event board.PresenceEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return
	}
	switch envelope.Type {
	case board.EventTrack:
		entry := event.Entry
		bridge.lastTracked = &entry
	case board.EventLeave:
		bridge.lastTracked = nil
	}
}

func (bridge *channelBridge) publishLeave(entry board.PresenceEntry) {
	frame, err := board.EncodeEvent(board.EventLeave, board.PresenceEvent{Entry: entry})
	if err != nil {
		return
	}
	if err := bridge.channel.Publish(context.Background(), frame); err != nil {
		bridge.logger.Debug("implicit leave dropped",
			zap.String("user_id", entry.UserID.String()), zap.Error(err))
	}
}
