package wsgate

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

const closeWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer in front of the router.
	CheckOrigin: func(request *http.Request) bool { return true },
}

// HandleConnection upgrades the streaming connection, classifies the
// presented token exactly once, and either closes immediately with the
// reason's close code or registers the connection with the subject bound to
// the session.
func HandleConnection(gate *Gate, hub *Hub, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		tokenString := contextGin.Query("token")
		if tokenString == "" {
			tokenString = tokenvalidator.BearerToken(contextGin.Request)
		}

		decision := gate.Classify(tokenString)

		socket, upgradeErr := upgrader.Upgrade(contextGin.Writer, contextGin.Request, nil)
		if upgradeErr != nil {
			logger.Warn("websocket upgrade failed",
				zap.String("code", "wsgate.upgrade_failed"),
				zap.Error(upgradeErr))
			return
		}

		if !decision.Accepted {
			logger.Info("connection rejected",
				zap.String("code", "wsgate.rejected"),
				zap.String("reason", decision.Reason.String()),
				zap.Int("close_code", decision.Reason.CloseCode()))
			closeFrame := websocket.FormatCloseMessage(decision.Reason.CloseCode(), decision.Reason.String())
			_ = socket.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(closeWriteTimeout))
			_ = socket.Close()
			return
		}

		connection := hub.Register(decision.SubjectID, socket)
		defer func() {
			hub.Unregister(connection)
			_ = socket.Close()
		}()

		// Acceptance hello: lets the client distinguish an accepted session
		// from a pending rejection without waiting on a data frame.
		if helloErr := connection.WriteJSON(gin.H{"type": "connected", "subject_id": decision.SubjectID}); helloErr != nil {
			return
		}

		// Drain the connection until the peer goes away. Inbound payloads are
		// not part of the auth surface.
		for {
			if _, _, readErr := socket.ReadMessage(); readErr != nil {
				return
			}
		}
	}
}
