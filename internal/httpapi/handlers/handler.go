package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
	"github.com/suPer8Hu/agencore/internal/common"
	"github.com/suPer8Hu/agencore/internal/config"
	"github.com/suPer8Hu/agencore/internal/entitlement"
	"github.com/suPer8Hu/agencore/internal/payments"
	"github.com/suPer8Hu/agencore/internal/session"
)

type Handler struct {
	DB           *gorm.DB
	Cfg          config.Config
	Agents       *agents.Registry
	Entitlements *entitlement.Service
	Chat         *chat.Service
	ActivityLog  *activity.GormSink
	Activity     activity.Recorder
	Generator    *ai.Generator
	Payments     payments.Gateway
	// Core serves the SSE chat stream; nil disables the route.
	Core     *session.Core
	Sessions *session.Registry
	// ActivityStats reports recorder counters on the admin status page.
	ActivityStats func() activity.Stats
}

// NewHandler builds the database-backed services. The generator, payments,
// session core and activity recorder are set by the caller.
func NewHandler(db *gorm.DB, cfg config.Config, reg *agents.Registry) *Handler {
	return &Handler{
		DB:           db,
		Cfg:          cfg,
		Agents:       reg,
		Entitlements: entitlement.NewService(entitlement.NewStore(db), reg),
		Chat:         chat.NewService(chat.NewRepo(db)),
		ActivityLog:  activity.NewGormSink(db),
		Activity:     activity.Nop{},
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok"})
}
