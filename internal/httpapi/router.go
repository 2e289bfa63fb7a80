package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/persona-engine/internal/common"
	"github.com/suPer8Hu/persona-engine/internal/httpapi/handlers"
	"github.com/suPer8Hu/persona-engine/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))

	authGroup.POST("/users", h.UpsertUser)
	authGroup.GET("/users/:id", h.GetUserByID)
	authGroup.POST("/agents", h.CreateAgent)

	// chat
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.GET("/users/:id/messages", h.ListChatMessages)

	// persona
	authGroup.GET("/users/:id/persona", h.GetPersona)
	authGroup.GET("/users/:id/personas", h.ListPersonas)
	authGroup.POST("/users/:id/persona/build", h.BuildPersona)
	authGroup.GET("/persona/jobs/:job_id", h.GetBuildJob)
	authGroup.POST("/personas/sweep", h.Sweep)
	return r
}
