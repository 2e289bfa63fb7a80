package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/persona-engine/internal/chat"
	"github.com/suPer8Hu/persona-engine/internal/common"
)

type sendMessageReq struct {
	UserID  uint64       `json:"user_id" binding:"required"`
	AgentID uint64       `json:"agent_id"`
	Content chat.Content `json:"content"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, msgID, err := h.ChatSvc.Send(c.Request.Context(), req.UserID, req.AgentID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidMessage):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		case errors.Is(err, chat.ErrUserNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
		case errors.Is(err, chat.ErrAgentNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		default:
			common.Fail(c, http.StatusBadGateway, 50201, "failed to send message")
		}
		return
	}

	common.Ok(c, gin.H{
		"reply":      reply,
		"message_id": msgID,
	})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := userIDParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, limit, beforeID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}
	common.Ok(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

type createAgentReq struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	SystemPrompt  string `json:"system_prompt" binding:"required"`
	EnablePersona bool   `json:"enable_persona"`
}

func (h *Handler) CreateAgent(c *gin.Context) {
	var req createAgentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	a := &chat.Agent{
		Name:          req.Name,
		Description:   req.Description,
		SystemPrompt:  req.SystemPrompt,
		EnablePersona: req.EnablePersona,
	}
	if err := h.ChatSvc.CreateAgent(c.Request.Context(), a); err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		common.Fail(c, http.StatusConflict, 40901, "failed to create agent (maybe name already exists)")
		return
	}
	common.Ok(c, a)
}
