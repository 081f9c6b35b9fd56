package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/suPer8Hu/agencore/internal/common"
	"github.com/suPer8Hu/agencore/internal/models"
	"github.com/suPer8Hu/agencore/internal/session"
)

const defaultRetentionDays = 90

type cleanupReq struct {
	DaysOld int `json:"days_old"`
}

// AdminCleanup deletes conversations, messages and activity rows older than
// days_old (default 90).
func (h *Handler) AdminCleanup(c *gin.Context) {
	var req cleanupReq
	_ = c.ShouldBindJSON(&req) // allow empty body
	if req.DaysOld == 0 {
		req.DaysOld = defaultRetentionDays
	}
	if req.DaysOld < 0 {
		common.Fail(c, http.StatusBadRequest, 10020, "days_old must be positive")
		return
	}
	ctx := c.Request.Context()
	age := time.Duration(req.DaysOld) * 24 * time.Hour

	res, err := h.Chat.Cleanup(ctx, age)
	if err != nil {
		log.Error().Err(err).Msg("cleanup conversations")
		common.Fail(c, http.StatusInternalServerError, 50003, "cleanup failed")
		return
	}
	events, err := h.ActivityLog.CleanupOlderThan(ctx, time.Now().Add(-age))
	if err != nil {
		log.Error().Err(err).Msg("cleanup activity")
		common.Fail(c, http.StatusInternalServerError, 50003, "cleanup failed")
		return
	}
	log.Info().
		Int("days_old", req.DaysOld).
		Int64("conversations", res.Conversations).
		Int64("messages", res.Messages).
		Int64("activity", events).
		Msg("retention cleanup")

	common.OK(c, gin.H{
		"days_old":              req.DaysOld,
		"deleted_conversations": res.Conversations,
		"deleted_messages":      res.Messages,
		"deleted_activity":      events,
	})
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.WithContext(c.Request.Context()).Order("created_at DESC").Limit(500).Find(&users).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"users": users})
}

// AdminStatus reports open channels and activity recorder counters.
func (h *Handler) channel(c *gin.Context) (*session.Session, bool) {
	if h.Sessions == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "streaming disabled")
		return nil, false
	}
	sess, ok := h.Sessions.Get(c.Param("id"))
	if !ok {
		common.Fail(c, http.StatusNotFound, 40403, "channel not found")
		return nil, false
	}
	return sess, true
}

func (h *Handler) AdminGetChannel(c *gin.Context) {
	sess, ok := h.channel(c)
	if !ok {
		return
	}
	common.OK(c, sess.Info())
}

// AdminCloseChannel drops one WebSocket; its in-flight request is cancelled
// by the disconnect.
func (h *Handler) AdminCloseChannel(c *gin.Context) {
	sess, ok := h.channel(c)
	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		log.Debug().Err(err).Str("session_id", sess.ID).Msg("close channel")
	}
	common.OK(c, gin.H{"id": sess.ID, "closed": true})
}

func (h *Handler) AdminStatus(c *gin.Context) {
	out := gin.H{}
	if h.Sessions != nil {
		out["open_channels"] = h.Sessions.Count()
		out["channels"] = h.Sessions.Snapshot()
	}
	if h.ActivityStats != nil {
		out["activity"] = h.ActivityStats()
	}
	common.OK(c, out)
}
