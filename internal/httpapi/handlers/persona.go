package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/persona-engine/internal/common"
	"github.com/suPer8Hu/persona-engine/internal/persona"
)

type personaView struct {
	*persona.Persona
	TagList []string `json:"tag_list"`
}

func (h *Handler) GetPersona(c *gin.Context) {
	uid, ok := userIDParam(c)
	if !ok {
		return
	}
	p, err := h.Engine.GetLatestPersona(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to load persona")
		return
	}
	if p == nil {
		common.Fail(c, http.StatusNotFound, 40410, "persona not found")
		return
	}
	common.Ok(c, personaView{Persona: p, TagList: p.TagList()})
}

func (h *Handler) ListPersonas(c *gin.Context) {
	uid, ok := userIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	hist, err := h.Personas.History(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to list personas")
		return
	}
	common.Ok(c, gin.H{"personas": hist})
}

// BuildPersona queues a build, or runs it inline with ?sync=true or when no broker is configured.
func (h *Handler) BuildPersona(c *gin.Context) {
	uid, ok := userIDParam(c)
	if !ok {
		return
	}

	if h.Queue == nil || c.Query("sync") == "true" {
		res, err := h.Engine.BuildPersonaIsolated(c.Request.Context(), uid)
		if err != nil {
			switch {
			case errors.Is(err, persona.ErrProvider):
				common.Fail(c, http.StatusBadGateway, 50212, "persona provider failed")
			case errors.Is(err, persona.ErrStore):
				common.Fail(c, http.StatusInternalServerError, 50014, "failed to store persona")
			default:
				common.Fail(c, http.StatusInternalServerError, 50015, "persona build failed")
			}
			return
		}
		common.Ok(c, res)
		return
	}

	job, err := h.Queue.Enqueue(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "failed to queue build")
		return
	}
	common.Accepted(c, job)
}

func (h *Handler) GetBuildJob(c *gin.Context) {
	if h.Queue == nil {
		common.Fail(c, http.StatusNotFound, 40411, "build queue disabled")
		return
	}
	job, err := h.Queue.Job(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40412, "job not found")
		return
	}
	common.Ok(c, job)
}

func (h *Handler) Sweep(c *gin.Context) {
	report, err := h.Engine.RunPersonaUpdate(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50013, "sweep failed")
		return
	}
	common.Ok(c, report)
}
