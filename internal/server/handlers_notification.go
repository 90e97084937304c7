package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/homecarehub/homecare/internal/scope"
)

func (s *Server) handleListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := s.notifications.List(c.Request.Context(), s.userID(c), unreadOnly, limit, offset)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	count, err := s.notifications.UnreadCount(c.Request.Context(), s.userID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	notificationID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	// Notifications are personal; no company scope is needed.
	q := &scope.Requester{UserID: s.userID(c)}
	if err := s.notifications.MarkRead(c.Request.Context(), q, notificationID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	q := &scope.Requester{UserID: s.userID(c)}
	if err := s.notifications.MarkAllRead(c.Request.Context(), q); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "all read"})
}
