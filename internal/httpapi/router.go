// Package httpapi is the Control Surface's HTTP and WebSocket front door:
// a gin router over the Agent Service, the Worktree Service and the
// Subscription Manager.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentfleet/agentfleetd/internal/agentsvc"
	"github.com/agentfleet/agentfleetd/internal/common/httpmw"
	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/store"
	"github.com/agentfleet/agentfleetd/internal/subscription"
	"github.com/agentfleet/agentfleetd/internal/worktree"
)

// Deps are the collaborators every handler group needs.
type Deps struct {
	Repo       store.Repository
	Agents     *agentsvc.Service
	GitAdapter worktree.Adapter
	Subs       *subscription.Manager
	Log        *logger.Logger
}

// NewRouter builds the full gin.Engine: health checks outside any
// middleware noise, then Recovery/CORS/RequestLogger ahead of the
// workspace/worktree/agent/ws route groups.
func NewRouter(deps Deps, releaseMode bool) *gin.Engine {
	if releaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	registerHealthRoutes(router, deps)

	router.Use(gin.Recovery())
	router.Use(httpmw.CORS())
	router.Use(httpmw.RequestLogger(deps.Log, "agentfleetd"))

	registerWorkspaceRoutes(router, deps)
	registerWorktreeRoutes(router, deps)
	registerAgentRoutes(router, deps)
	registerWebSocketRoute(router, deps)

	return router
}

func registerHealthRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agentfleetd"})
	})
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		if _, err := deps.Repo.ListWorkspaces(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
