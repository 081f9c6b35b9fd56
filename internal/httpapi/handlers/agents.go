package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/common"
)

type agentReq struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Avatar       string      `json:"avatar"`
	Category     string      `json:"category"`
	Tier         agents.Tier `json:"type"`
	PriceCents   int64       `json:"price"`
	Prompt       string      `json:"prompt"`
	Capabilities []string    `json:"capabilities"`
	Active       *bool       `json:"active"`
}

// adminAgent exposes the persona, which the public listing hides.
type adminAgent struct {
	agents.Agent
	Prompt string `json:"prompt"`
}

func toAdmin(list []agents.Agent) []adminAgent {
	out := make([]adminAgent, 0, len(list))
	for _, a := range list {
		out = append(out, adminAgent{Agent: a, Prompt: a.Persona})
	}
	return out
}

func (h *Handler) ListAgents(c *gin.Context) {
	out := []agents.Agent{}
	for _, a := range h.Agents.List() {
		if a.Active {
			out = append(out, a)
		}
	}
	common.OK(c, gin.H{"agents": out})
}

func (h *Handler) GetAgent(c *gin.Context) {
	a, ok := h.Agents.Get(c.Param("id"))
	if !ok || !a.Active {
		common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		return
	}
	common.OK(c, a)
}

func (h *Handler) AdminListAgents(c *gin.Context) {
	common.OK(c, gin.H{"agents": toAdmin(h.Agents.List())})
}

func (h *Handler) AdminCreateAgent(c *gin.Context) {
	var req agentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	a := agents.Agent{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Avatar:       req.Avatar,
		Category:     req.Category,
		Tier:         req.Tier,
		PriceCents:   req.PriceCents,
		Persona:      req.Prompt,
		Capabilities: req.Capabilities,
		Active:       req.Active == nil || *req.Active,
	}
	if a.ID == "" {
		a.ID = agents.Slug(a.Name)
	}
	if err := h.Agents.Create(a); err != nil {
		writeAgentErr(c, err)
		return
	}
	created, _ := h.Agents.Get(a.ID)
	common.OK(c, adminAgent{Agent: created, Prompt: created.Persona})
}

func (h *Handler) AdminUpdateAgent(c *gin.Context) {
	var p agents.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	a, err := h.Agents.Update(c.Param("id"), p)
	if err != nil {
		writeAgentErr(c, err)
		return
	}
	common.OK(c, adminAgent{Agent: a, Prompt: a.Persona})
}

func (h *Handler) AdminDeleteAgent(c *gin.Context) {
	if err := h.Agents.Delete(c.Param("id")); err != nil {
		writeAgentErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) AdminToggleAgent(c *gin.Context) {
	active, err := h.Agents.ToggleActive(c.Param("id"))
	if err != nil {
		writeAgentErr(c, err)
		return
	}
	common.OK(c, gin.H{"id": c.Param("id"), "active": active})
}

func writeAgentErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, agents.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "agent not found")
	case errors.Is(err, agents.ErrExists):
		common.Fail(c, http.StatusConflict, 40902, "agent already exists")
	case errors.Is(err, agents.ErrInvalidAgent):
		common.Fail(c, http.StatusBadRequest, 10010, err.Error())
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
