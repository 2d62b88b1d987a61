package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the conversation and file endpoints behind auth
func RegisterRoutes(r *gin.Engine, conversations *ConversationHandler, files *FileHandler, auth gin.HandlerFunc) {
	convGroup := r.Group("/conversations")
	convGroup.Use(auth)
	{
		convGroup.POST("/message", conversations.SendMessage)
		convGroup.GET("", conversations.ListConversations)
		convGroup.GET("/:id/messages", conversations.ListMessages)
		convGroup.POST("/:id/messages/:messageId/report", conversations.ReportMessage)
		convGroup.POST("/:id/download", conversations.Download)
	}

	fileGroup := r.Group("/files")
	fileGroup.Use(auth)
	{
		fileGroup.POST("/upload", files.Upload)
		fileGroup.GET("/*path", files.Serve)
	}
}
