package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/store"
	"github.com/agentfleet/agentfleetd/internal/worktree"
)

func registerWorkspaceRoutes(router *gin.Engine, deps Deps) {
	router.GET("/workspaces", func(c *gin.Context) {
		list, err := deps.Repo.ListWorkspaces(c.Request.Context())
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"workspaces": list})
	})

	router.POST("/workspaces", func(c *gin.Context) {
		var body struct {
			Path string `json:"path" binding:"required"`
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, deps.Log, errs.Validationf("%v", err))
			return
		}
		name := body.Name
		if name == "" {
			name = defaultWorkspaceName(body.Path)
		}

		ws, err := deps.Repo.CreateWorkspace(c.Request.Context(), name, body.Path)
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusCreated, ws)
	})

	router.GET("/workspaces/:id", func(c *gin.Context) {
		ws, err := deps.Repo.GetWorkspace(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	})

	router.DELETE("/workspaces/:id", func(c *gin.Context) {
		if err := deps.Repo.DeleteWorkspace(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.POST("/workspaces/:id/refresh", func(c *gin.Context) {
		refreshWorkspace(c, deps)
	})
}

func defaultWorkspaceName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// refreshWorkspace re-syncs a workspace's registered worktrees against what
// git actually reports, adding rows for worktrees git knows about that the
// store doesn't yet have.
func refreshWorkspace(c *gin.Context, deps Deps) {
	ctx := c.Request.Context()
	ws, err := deps.Repo.GetWorkspace(ctx, c.Param("id"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	discovered, err := deps.GitAdapter.Discover(ctx, ws.Path)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	existing, err := deps.Repo.ListWorktreesByWorkspace(ctx, ws.ID)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	known := make(map[string]bool, len(existing))
	for _, wt := range existing {
		known[wt.Path] = true
	}

	added := 0
	for _, d := range discovered {
		if known[d.Path] {
			continue
		}
		if _, err := deps.Repo.CreateWorktree(ctx, worktreeFromDiscovered(ws.ID, d)); err != nil {
			respondError(c, deps.Log, err)
			return
		}
		added++
	}

	if err := deps.Repo.RecalculateCounts(ctx, ws.ID); err != nil {
		respondError(c, deps.Log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"added": added})
}

func worktreeFromDiscovered(workspaceID string, d worktree.DiscoveredWorktree) *store.Worktree {
	return &store.Worktree{WorkspaceID: workspaceID, Name: defaultWorkspaceName(d.Path), Branch: d.Branch, Path: d.Path, IsMain: d.IsMain}
}
