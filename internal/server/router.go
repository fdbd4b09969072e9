package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/store"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingRelay = errors.New("relay dependency required")
	errMissingStore = errors.New("store dependency required")
)

// Dependencies wires the relay router.
type Dependencies struct {
	Relay  transport.Relay
	Store  *store.Store
	Logger *zap.Logger
}

// NewHTTPHandler builds the relay's HTTP surface: websocket channel
// endpoints and the initial board load.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Relay == nil {
		return nil, errMissingRelay
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		relay:  deps.Relay,
		store:  deps.Store,
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/boards/:boardID/objects", handler.handleListObjects)
	router.GET("/boards/:boardID/channels/:kind", handler.handleChannel)

	return router, nil
}

type httpHandler struct {
	relay  transport.Relay
	store  *store.Store
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type listObjectsResponse struct {
	Objects []board.WireObject `json:"objects"`
}

// handleListObjects serves the initial bulk load: every object on the board
// in ascending z_index order.
func (h *httpHandler) handleListObjects(c *gin.Context) {
	boardID, err := board.NewBoardID(c.Param("boardID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_board_id"})
		return
	}

	objects, err := h.store.LoadAll(c.Request.Context(), boardID)
	if err != nil {
		h.logger.Error("board load failed",
			zap.String("board_id", boardID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}

	response := listObjectsResponse{Objects: make([]board.WireObject, 0, len(objects))}
	for _, object := range objects {
		wire, err := board.EncodeObject(object)
		if err != nil {
			h.logger.Error("object encode failed",
				zap.String("object_id", object.ID.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
			return
		}
		response.Objects = append(response.Objects, wire)
	}
	c.JSON(http.StatusOK, response)
}
