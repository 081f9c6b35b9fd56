package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
	"github.com/suPer8Hu/agencore/internal/common"
	"github.com/suPer8Hu/agencore/internal/httpapi/middleware"
	"github.com/suPer8Hu/agencore/internal/session"
)

var enhancePersonas = map[string]string{
	"creative": "You are a creative writing expert. Enhance the user's prompt to be more creative, detailed, and inspiring for creative writing tasks.",
	"code":     "You are a programming expert. Enhance the user's prompt to be more specific, technical, and clear for coding tasks.",
	"research": "You are a research expert. Enhance the user's prompt to be more comprehensive, structured, and academic for research tasks.",
	"business": "You are a business consultant. Enhance the user's prompt to be more strategic, actionable, and professional for business analysis.",
	"data":     "You are a data science expert. Enhance the user's prompt to be more analytical, precise, and data-focused for data science tasks.",
	"general":  "You are an AI assistant expert. Enhance the user's prompt to be clearer, more specific, and more effective for getting better AI responses.",
}

const enhanceSuffix = " Keep the enhanced prompt concise but more effective. Return only the enhanced prompt without explanations."

func (h *Handler) ChatHistory(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	convs, err := h.Chat.History(c.Request.Context(), uid, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("chat history")
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) ConversationMessages(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conv, msgs, err := h.Chat.Messages(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		log.Error().Err(err).Str("user_id", uid).Msg("conversation messages")
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{
		"conversation": conv,
		"messages":     msgs,
	})
}

type enhanceReq struct {
	Prompt    string `json:"prompt"`
	AgentType string `json:"agent_type"`
}

func (h *Handler) EnhancePrompt(c *gin.Context) {
	var req enhanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "prompt is required")
		return
	}
	if h.Generator == nil || !h.Generator.Available() {
		common.Fail(c, http.StatusServiceUnavailable, 50302, ai.UnavailableText)
		return
	}
	persona, ok := enhancePersonas[req.AgentType]
	if !ok {
		persona = enhancePersonas["general"]
	}

	out, err := h.Generator.Generate(c.Request.Context(), persona+enhanceSuffix, "Enhance this prompt: "+req.Prompt, nil)
	if err != nil {
		log.Warn().Err(err).Msg("enhance prompt")
		common.Fail(c, http.StatusBadGateway, 50201, "failed to enhance prompt")
		return
	}
	common.OK(c, gin.H{"enhanced_prompt": strings.TrimSpace(out)})
}

type streamReq struct {
	AgentID        string `json:"agent_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// sseChannel adapts a gin response to session.Channel.
type sseChannel struct {
	mu sync.Mutex
	c  *gin.Context
}

func (s *sseChannel) Send(ctx context.Context, out session.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := out.Type
	if out.Error != "" {
		event = "error"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.SSEvent(event, out)
	s.c.Writer.Flush()
	return nil
}

// StreamChat runs one chat request and streams the reply as server-sent
// events, for clients that cannot hold a WebSocket.
func (h *Handler) StreamChat(c *gin.Context) {
	if h.Core == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "streaming disabled")
		return
	}
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := session.WithUser(c.Request.Context(), uid)
	err := h.Core.HandleRequest(ctx, &sseChannel{c: c}, session.Request{
		UserID:         uid,
		AgentID:        req.AgentID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		log.Debug().Err(err).Str("user_id", uid).Msg("sse chat ended with error")
	}
}
