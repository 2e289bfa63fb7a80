package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/persona-engine/internal/chat"
	"github.com/suPer8Hu/persona-engine/internal/common"
	"github.com/suPer8Hu/persona-engine/internal/persona"
)

type Handler struct {
	ChatSvc  *chat.Service
	Engine   *persona.Engine
	Personas *persona.Store
	// Queue is nil when no broker is configured; builds then run inline.
	Queue *persona.Queue
}

func NewHandler(chatSvc *chat.Service, engine *persona.Engine, personas *persona.Store, queue *persona.Queue) *Handler {
	return &Handler{ChatSvc: chatSvc, Engine: engine, Personas: personas, Queue: queue}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Ok(c, gin.H{"pong": true})
}

func userIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return 0, false
	}
	return id, true
}
