package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/subscription"
)

// registerWebSocketRoute upgrades GET /ws and registers the connection with
// the Subscription Manager, then runs its read/write pumps until the
// connection closes.
func registerWebSocketRoute(router *gin.Engine, deps Deps) {
	router.GET("/ws", func(c *gin.Context) {
		conn, err := subscription.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			deps.Log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		transport := subscription.NewClient(conn, deps.Log)
		client := deps.Subs.AddClient(transport)

		go transport.WritePump()
		transport.ReadPump(
			func(raw []byte) { deps.Subs.HandleFrame(client, raw) },
			func() { deps.Subs.RemoveClient(client) },
		)
	})
}
