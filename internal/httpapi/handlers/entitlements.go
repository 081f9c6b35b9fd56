package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/common"
	"github.com/suPer8Hu/agencore/internal/httpapi/middleware"
	"github.com/suPer8Hu/agencore/internal/payments"
)

func (h *Handler) AccessibleAgents(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	paid, err := h.Entitlements.PaidAgentIDs(c.Request.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("accessible agents")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ids := append([]string{}, h.Agents.FreeIDs()...)
	ids = append(ids, paid...)
	common.OK(c, gin.H{"agents": ids})
}

func (h *Handler) Dashboard(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	ctx := c.Request.Context()

	stats, err := h.Chat.Stats(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("dashboard stats")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	last, err := h.ActivityLog.LastActivity(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("dashboard last activity")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	paid, err := h.Entitlements.ListByUser(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("dashboard entitlements")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	access := make([]gin.H, 0, len(paid))
	for _, e := range paid {
		access = append(access, gin.H{"agent_id": e.AgentID, "granted_at": e.GrantedAt})
	}
	common.OK(c, gin.H{
		"total_messages":         stats.TotalMessages,
		"agent_interactions":     stats.AgentInteractions,
		"last_activity":          last,
		"accessible_paid_agents": access,
	})
}

type createIntentReq struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// CreatePaymentIntent opens a payment for one paid agent and hands the
// client secret to the browser.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	agent, found := h.Agents.Get(req.AgentID)
	if !found || !agent.Active {
		common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		return
	}
	if agent.IsFree() {
		common.Fail(c, http.StatusBadRequest, 10011, "agent is free")
		return
	}
	if h.Payments == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50303, "payments are not configured")
		return
	}

	ctx := c.Request.Context()
	entitled, err := h.Entitlements.IsEntitled(ctx, uid, agent.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if entitled {
		common.Fail(c, http.StatusConflict, 40903, "agent already unlocked")
		return
	}

	h.Activity.Record(ctx, uid, activity.ActionPaymentAttempt, map[string]any{"agent_id": agent.ID})
	in, err := h.Payments.CreateIntent(ctx, payments.Charge{
		UserID:      uid,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		AmountCents: agent.PriceCents,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnconfigured) {
			common.Fail(c, http.StatusServiceUnavailable, 50303, "payments are not configured")
			return
		}
		log.Warn().Err(err).Str("user_id", uid).Str("agent_id", agent.ID).Msg("payment intent")
		common.Fail(c, http.StatusBadGateway, 50202, "payment provider error")
		return
	}

	common.OK(c, gin.H{
		"client_secret":     in.ClientSecret,
		"payment_intent_id": in.ID,
		"amount":            in.Amount,
		"currency":          in.Currency,
	})
}

type verifyPaymentReq struct {
	AgentID         string `json:"agent_id" binding:"required"`
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

func (h *Handler) VerifyPayment(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req verifyPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	agent, found := h.Agents.Get(req.AgentID)
	if !found {
		common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		return
	}
	if agent.IsFree() {
		common.Fail(c, http.StatusBadRequest, 10011, "agent is free")
		return
	}
	if h.Payments == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50303, "payments are not configured")
		return
	}

	ctx := c.Request.Context()
	meta := map[string]any{"agent_id": req.AgentID, "payment_intent_id": req.PaymentIntentID}
	if _, err := h.Payments.Verify(ctx, req.PaymentIntentID, uid, req.AgentID); err != nil {
		h.Activity.Record(ctx, uid, activity.ActionPaymentFailed, meta)
		switch {
		case errors.Is(err, payments.ErrUnconfigured):
			common.Fail(c, http.StatusServiceUnavailable, 50303, "payments are not configured")
		case errors.Is(err, payments.ErrNotSucceeded), errors.Is(err, payments.ErrMismatch), errors.Is(err, payments.ErrUnknownIntent):
			common.Fail(c, http.StatusBadRequest, 10012, "payment verification failed")
		default:
			log.Warn().Err(err).Str("user_id", uid).Msg("payment verify")
			common.Fail(c, http.StatusBadGateway, 50202, "payment provider error")
		}
		return
	}

	ref := strings.TrimSpace(req.PaymentIntentID)
	if err := h.Entitlements.Grant(ctx, uid, req.AgentID, &ref); err != nil {
		log.Error().Err(err).Str("user_id", uid).Str("agent_id", req.AgentID).Msg("grant after payment")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	h.Activity.Record(ctx, uid, activity.ActionPaymentSuccess, meta)

	common.OK(c, gin.H{"success": true, "message": "Payment verified and access granted"})
}

func (h *Handler) AdminToggleAccess(c *gin.Context) {
	userID, agentID := c.Param("user_id"), c.Param("agent_id")
	agent, found := h.Agents.Get(agentID)
	if !found {
		common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		return
	}
	if agent.IsFree() {
		common.Fail(c, http.StatusBadRequest, 10011, "agent is free")
		return
	}
	granted, err := h.Entitlements.Toggle(c.Request.Context(), userID, agentID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("agent_id", agentID).Msg("toggle access")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"user_id": userID, "agent_id": agentID, "has_access": granted})
}
