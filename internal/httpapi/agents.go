package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentfleet/agentfleetd/internal/agentsvc"
	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/store"
)

func registerAgentRoutes(router *gin.Engine, deps Deps) {
	router.GET("/agents", func(c *gin.Context) { listAgents(c, deps) })
	router.POST("/agents", func(c *gin.Context) { createAgent(c, deps) })
	router.GET("/agents/:id", func(c *gin.Context) { getAgent(c, deps) })
	router.PUT("/agents/:id", func(c *gin.Context) { updateAgent(c, deps) })
	router.DELETE("/agents/:id", func(c *gin.Context) { deleteAgent(c, deps) })
	router.POST("/agents/:id/fork", func(c *gin.Context) { forkAgent(c, deps) })
	router.POST("/agents/:id/restore", func(c *gin.Context) { restoreAgent(c, deps) })
	router.PUT("/agents/reorder", func(c *gin.Context) { reorderAgents(c, deps) })
	router.GET("/agents/:id/messages", func(c *gin.Context) { listAgentMessages(c, deps) })
	router.POST("/agents/:id/message", func(c *gin.Context) { sendAgentMessage(c, deps) })
	router.POST("/agents/:id/start", func(c *gin.Context) { startAgent(c, deps) })
	router.POST("/agents/:id/stop", func(c *gin.Context) { stopAgent(c, deps) })
	router.POST("/agents/:id/resume", func(c *gin.Context) { resumeAgent(c, deps) })
	router.GET("/agents/:id/status", func(c *gin.Context) { agentStatus(c, deps) })
}

func listAgents(c *gin.Context, deps Deps) {
	worktreeID := c.Query("worktreeId")
	if worktreeID == "" {
		respondError(c, deps.Log, errs.Validationf("worktreeId is required"))
		return
	}
	includeDeleted := c.Query("includeDeleted") == "true"

	list, err := deps.Repo.ListAgentsByWorktree(c.Request.Context(), worktreeID, includeDeleted)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}

	if status := c.Query("status"); status != "" {
		filtered := list[:0]
		for _, a := range list {
			if string(a.Status) == status {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, gin.H{"agents": list})
}

func createAgent(c *gin.Context, deps Deps) {
	var body struct {
		WorktreeID  string             `json:"worktreeId" binding:"required"`
		Name        string             `json:"name"`
		Mode        store.AgentMode    `json:"mode"`
		Permissions []store.Permission `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	agent, err := deps.Agents.CreateAgent(c.Request.Context(), agentsvc.CreateAgentRequest{
		WorktreeID: body.WorktreeID, Name: body.Name, Mode: body.Mode, Permissions: body.Permissions,
	})
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func getAgent(c *gin.Context, deps Deps) {
	agent, err := deps.Repo.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func updateAgent(c *gin.Context, deps Deps) {
	var body struct {
		Name        *string             `json:"name"`
		Mode        *store.AgentMode    `json:"mode"`
		Permissions *[]store.Permission `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	agent, err := deps.Agents.UpdateAgent(c.Request.Context(), c.Param("id"), agentsvc.UpdateAgentRequest{
		Name: body.Name, Mode: body.Mode, Permissions: body.Permissions,
	})
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func deleteAgent(c *gin.Context, deps Deps) {
	archive := c.Query("archive") != "false"
	if err := deps.Agents.DeleteAgent(c.Request.Context(), c.Param("id"), archive); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func forkAgent(c *gin.Context, deps Deps) {
	var body struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&body)

	forked, err := deps.Agents.ForkAgent(c.Request.Context(), c.Param("id"), body.Name)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusCreated, forked)
}

func restoreAgent(c *gin.Context, deps Deps) {
	agent, err := deps.Agents.RestoreAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func reorderAgents(c *gin.Context, deps Deps) {
	var body struct {
		WorktreeID string   `json:"worktreeId" binding:"required"`
		AgentIDs   []string `json:"agentIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}
	if err := deps.Agents.ReorderAgents(c.Request.Context(), body.WorktreeID, body.AgentIDs); err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listAgentMessages(c *gin.Context, deps Deps) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, deps.Log, errs.Validationf("before must be RFC3339: %v", err))
			return
		}
		before = &t
	}

	msgs, hasMore, err := deps.Agents.ListMessages(c.Request.Context(), c.Param("id"), limit, before)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "hasMore": hasMore})
}

func sendAgentMessage(c *gin.Context, deps Deps) {
	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, deps.Log, errs.Validationf("%v", err))
		return
	}

	res, err := deps.Agents.SendMessageToAgent(c.Request.Context(), c.Param("id"), body.Content)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": res.Status, "running": res.Running})
}

func startAgent(c *gin.Context, deps Deps) {
	var body struct {
		InitialPrompt string `json:"initialPrompt"`
	}
	_ = c.ShouldBindJSON(&body)

	agent, err := deps.Agents.StartAgent(c.Request.Context(), c.Param("id"), body.InitialPrompt)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func stopAgent(c *gin.Context, deps Deps) {
	force := c.Query("force") == "true"
	agent, err := deps.Agents.StopAgent(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func resumeAgent(c *gin.Context, deps Deps) {
	agent, err := deps.Agents.ResumeAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func agentStatus(c *gin.Context, deps Deps) {
	agent, err := deps.Repo.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": agent.Status, "pid": agent.PID, "contextLevel": agent.ContextLevel})
}
