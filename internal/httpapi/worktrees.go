package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/store"
	"github.com/agentfleet/agentfleetd/internal/worktree"
)

func gitCreateRequest(repositoryPath, name, baseBranch string, createBranch bool) worktree.CreateRequest {
	return worktree.CreateRequest{RepositoryPath: repositoryPath, Name: name, BaseBranch: baseBranch, CreateBranch: createBranch}
}

func registerWorktreeRoutes(router *gin.Engine, deps Deps) {
	router.GET("/workspaces/:id/worktrees", func(c *gin.Context) {
		list, err := deps.Repo.ListWorktreesByWorkspace(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"worktrees": list})
	})

	router.POST("/workspaces/:id/worktrees", func(c *gin.Context) {
		createWorktree(c, deps)
	})

	router.GET("/workspaces/:id/worktrees/:wid", func(c *gin.Context) {
		wt, err := deps.Repo.GetWorktree(c.Request.Context(), c.Param("wid"))
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, wt)
	})

	router.PUT("/workspaces/:id/worktrees/:wid", func(c *gin.Context) {
		updateWorktree(c, deps)
	})

	router.DELETE("/workspaces/:id/worktrees/:wid", func(c *gin.Context) {
		deleteWorktree(c, deps)
	})

	router.POST("/worktrees/:wid/checkout", func(c *gin.Context) {
		checkoutWorktree(c, deps)
	})

	router.PUT("/worktrees/reorder", func(c *gin.Context) {
		reorderWorktrees(c, deps)
	})

	router.GET("/worktrees/:wid/status", func(c *gin.Context) {
		worktreeStatus(c, deps)
	})

	router.GET("/worktrees/:wid/branches", func(c *gin.Context) {
		ws, err := deps.Repo.GetWorkspace(c.Request.Context(), c.Query("workspaceId"))
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		branches, err := deps.GitAdapter.ListBranches(c.Request.Context(), ws.Path)
		if err != nil {
			respondError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"branches": branches})
	})
}

func createWorktree(c *gin.Context, deps Deps) {
	ctx := c.Request.Context()
	workspaceID := c.Param("id")

	var body struct {
		Name         string `json:"name" binding:"required"`
		BaseBranch   string `json:"baseBranch"`
		CreateBranch bool   `json:"createBranch"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	ws, err := deps.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	created, err := deps.GitAdapter.Create(ctx, gitCreateRequest(ws.Path, body.Name, body.BaseBranch, body.CreateBranch))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	wt, err := deps.Repo.CreateWorktree(ctx, &store.Worktree{
		WorkspaceID: workspaceID, Name: body.Name, Branch: created.Branch, Path: created.Path,
	})
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	if err := deps.Repo.RecalculateCounts(ctx, workspaceID); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	deps.Subs.BroadcastToWorkspaceSubscribers(workspaceID, "worktree_added", gin.H{"worktreeId": wt.ID})

	c.JSON(http.StatusCreated, wt)
}

func updateWorktree(c *gin.Context, deps Deps) {
	var body struct {
		Name     *string         `json:"name"`
		Branch   *string         `json:"branch"`
		SortMode *store.SortMode `json:"sortMode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	wt, err := deps.Repo.UpdateWorktree(c.Request.Context(), c.Param("wid"), store.WorktreeUpdate{
		Name: body.Name, Branch: body.Branch, SortMode: body.SortMode,
	})
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, wt)
}

func deleteWorktree(c *gin.Context, deps Deps) {
	ctx := c.Request.Context()
	wt, err := deps.Repo.GetWorktree(ctx, c.Param("wid"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	ws, err := deps.Repo.GetWorkspace(ctx, wt.WorkspaceID)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	if err := deps.Repo.DeleteWorktree(ctx, wt.ID); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	if err := deps.GitAdapter.Remove(ctx, ws.Path, wt.Path); err != nil {
		deps.Log.Warn("worktree directory removal failed after store delete")
	}
	if err := deps.Repo.RecalculateCounts(ctx, ws.ID); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	deps.Subs.BroadcastToWorkspaceSubscribers(ws.ID, "worktree_removed", gin.H{"worktreeId": wt.ID})

	c.Status(http.StatusNoContent)
}

func checkoutWorktree(c *gin.Context, deps Deps) {
	var body struct {
		Branch       string `json:"branch" binding:"required"`
		CreateBranch bool   `json:"createBranch"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	ctx := c.Request.Context()
	wt, err := deps.Repo.GetWorktree(ctx, c.Param("wid"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	if err := deps.GitAdapter.Checkout(ctx, wt.Path, body.Branch); err != nil {
		respondError(c, deps.Log, err)
		return
	}

	branch := body.Branch
	updated, err := deps.Repo.UpdateWorktree(ctx, wt.ID, store.WorktreeUpdate{Branch: &branch})
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func reorderWorktrees(c *gin.Context, deps Deps) {
	var body struct {
		WorkspaceID string   `json:"workspaceId" binding:"required"`
		WorktreeIDs []string `json:"worktreeIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}
	if err := deps.Repo.ReorderWorktrees(c.Request.Context(), body.WorkspaceID, body.WorktreeIDs); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func worktreeStatus(c *gin.Context, deps Deps) {
	ctx := c.Request.Context()
	wt, err := deps.Repo.GetWorktree(ctx, c.Param("wid"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	status, err := deps.GitAdapter.Status(ctx, wt.Path, wt.Branch)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
