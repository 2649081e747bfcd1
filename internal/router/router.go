package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/minetick/ticket-store/api"
	"github.com/minetick/ticket-store/internal/handler"
)

func New(ticketHandler *handler.TicketHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", gin.WrapF(handler.Health))
	r.GET("/ready", gin.WrapF(handler.Ready))
	r.GET("/swagger", func(c *gin.Context) { c.Redirect(http.StatusFound, "/swagger/") })
	r.GET("/swagger/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = "/swagger/index.html"
			c.Request.RequestURI = "/swagger/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tickets", ticketHandler.Create)
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:id", ticketHandler.Get)
		v1.POST("/tickets/:id/comment", ticketHandler.Comment)
		v1.POST("/tickets/:id/assign", ticketHandler.Assign)
		v1.POST("/tickets/:id/close", ticketHandler.Close)
		v1.POST("/tickets/:id/reopen", ticketHandler.Reopen)
		v1.POST("/tickets/:id/priority", ticketHandler.SetPriority)
		v1.POST("/tickets/:id/read", ticketHandler.MarkRead)
		v1.GET("/search", ticketHandler.Search)
		v1.POST("/mass-close", ticketHandler.MassClose)
		v1.GET("/counts/open", ticketHandler.CountOpen)
		v1.GET("/updates", ticketHandler.Updates)
	}

	return r
}
