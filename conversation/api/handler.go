package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/conversation/service"
	"ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the conversation endpoints
type ConversationHandler struct {
	service *service.ConversationService
}

// NewConversationHandler creates a handler over svc
func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: svc}
}

// SendMessage handles POST /conversations/message
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req client.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_BODY", err.Error()))
		return
	}

	reply, err := h.service.SendMessage(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ListConversations handles GET /conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	page, limit, ok := pageParams(c)
	if !ok {
		return
	}

	out, err := h.service.ListConversations(c.Request.Context(), middleware.UserID(c), page, limit, c.Query("search"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListMessages handles GET /conversations/:id/messages
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	page, limit, ok := pageParams(c)
	if !ok {
		return
	}

	out, err := h.service.ListMessages(c.Request.Context(), middleware.UserID(c), c.Param("id"), page, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ReportMessage handles POST /conversations/:id/messages/:messageId/report
func (h *ConversationHandler) ReportMessage(c *gin.Context) {
	var req client.ReportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.NewBadRequestError("INVALID_BODY", err.Error()))
			return
		}
	}

	err := h.service.ReportMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("messageId"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Download handles POST /conversations/:id/download
func (h *ConversationHandler) Download(c *gin.Context) {
	var req client.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_BODY", err.Error()))
		return
	}
	if req.Type != models.ExportPDF && req.Type != models.ExportDOCX {
		c.Error(errors.NewBadRequestError("INVALID_EXPORT_TYPE", "type must be pdf or docx"))
		return
	}

	var buf bytes.Buffer
	name, err := h.service.Export(c.Request.Context(), middleware.UserID(c), c.Param("id"), req, &buf)
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func pageParams(c *gin.Context) (page, limit int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.Error(errors.NewBadRequestError("INVALID_PAGE", "page must be a positive integer"))
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.Error(errors.NewBadRequestError("INVALID_LIMIT", "limit must be a positive integer"))
		return 0, 0, false
	}
	return page, limit, true
}
