package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/persona-engine/internal/chat"
	"github.com/suPer8Hu/persona-engine/internal/common"
)

type upsertUserReq struct {
	ExternalID string `json:"external_id" binding:"required"`
	Username   string `json:"username"`
}

func (h *Handler) UpsertUser(c *gin.Context) {
	var req upsertUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	u, err := h.ChatSvc.RegisterUser(c.Request.Context(), req.ExternalID, req.Username)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to save user")
		return
	}
	common.Ok(c, u)
}

func (h *Handler) GetUserByID(c *gin.Context) {
	uid, ok := userIDParam(c)
	if !ok {
		return
	}
	u, err := h.ChatSvc.GetUser(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to load user")
		return
	}
	common.Ok(c, u)
}
