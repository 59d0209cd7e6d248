package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, requestService *service.RequestService) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(authService, requestService)
	session := SessionMiddleware(authService)

	// Auth routes
	router.GET(credgate.PathNonce, handlers.GenerateNonce)
	router.POST(credgate.PathLogout, session, handlers.Logout)

	requests := router.Group("/requests")
	requests.Use(session)
	{
		requests.POST("/create", handlers.CreateRequest)
		requests.POST("/respond/:request_id", handlers.RespondRequest)
		requests.GET("/:wallet_type", handlers.ListRequests)
		requests.GET("/:wallet_type/:request_id", handlers.GetRequest)
	}

	transcripts := router.Group("/transcripts")
	transcripts.Use(session)
	{
		transcripts.POST("/", handlers.AddTranscript)
		transcripts.GET("/", handlers.GetTranscripts)
		transcripts.GET("/access", handlers.CheckAccess)
	}

	return router
}
