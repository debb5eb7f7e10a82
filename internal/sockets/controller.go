package sockets

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
	"reserver/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set Authorization headers on websocket requests, so
	// the token rides in the query string and origins are not restricted
	// here; the token check is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller interface {
	Connect(c *gin.Context)
}

type controller struct {
	hub *Hub
	cfg *config.Config
	log *logger.Logger
}

func NewController(hub *Hub, cfg *config.Config, log *logger.Logger) Controller {
	return &controller{hub: hub, cfg: cfg, log: log}
}

// Connect upgrades the request to a websocket and attaches the session to
// the hub. The access token is taken from the token query parameter.
func (ctrl *controller) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "token query parameter is required", nil, nil)
		return
	}
	claims, err := middleware.ParseAccessToken(ctrl.cfg, token)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
		return
	}
	userID := middleware.UserIDFromClaims(claims)
	if userID == 0 {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token subject", nil, nil)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.log.Error("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	detach := ctrl.hub.Attach(userID, ws)
	defer detach()

	// Drain the read side so close and ping/pong frames are processed; the
	// hub never consumes client-sent payloads.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
