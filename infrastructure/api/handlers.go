package api

import (
	"chat-relay/domain"
	"chat-relay/errors"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type adminPostRequest struct {
	Text       string `json:"text" binding:"required"`
	AdminEmail string `json:"adminEmail" binding:"required"`
	ImageURL   string `json:"imageUrl"`
	Category   string `json:"category"`
}

func (s *Server) handleAdminPost(c *gin.Context) {
	var req adminPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing text or adminEmail"})
		return
	}
	post := domain.AnnouncementPost{
		Text:        req.Text,
		AuthorEmail: req.AdminEmail,
		ImageURL:    lo.EmptyableToPtr(req.ImageURL),
		Category:    lo.Ternary(req.Category == "", domain.DefaultCategory, req.Category),
	}
	id, err := s.announcements.AddPost(c.Request.Context(), post)
	if err != nil {
		s.log.Error("Failed to add post", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add post"})
		return
	}
	s.log.Info("New admin post", "id", id, "author", req.AdminEmail, "category", post.Category)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

type notificationRequest struct {
	Token        string `json:"token"`
	Notification struct {
		Title string `json:"title" binding:"required"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data"`
}

// handleEnqueueNotification queues a push for the change feed. A missing token is
// accepted: the feed drops such requests without sending.
func (s *Server) handleEnqueueNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidNotification.Error()})
		return
	}
	id, err := s.queue.Enqueue(c.Request.Context(), domain.PendingNotification{
		Token:        req.Token,
		Notification: domain.Notification{Title: req.Notification.Title, Body: req.Notification.Body},
		Data:         req.Data,
	})
	if err != nil {
		s.log.Error("Failed to queue notification", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue notification"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "id": id})
}

func (s *Server) handleLike(c *gin.Context) {
	postID, userID := c.Param("postId"), c.Param("userId")
	if err := s.likes.Like(c.Request.Context(), postID, userID); err != nil {
		s.log.Error("Failed to like post", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to like post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleUnlike(c *gin.Context) {
	postID, userID := c.Param("postId"), c.Param("userId")
	if err := s.likes.Unlike(c.Request.Context(), postID, userID); err != nil {
		s.log.Error("Failed to unlike post", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unlike post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleLikesCount(c *gin.Context) {
	postID := c.Param("postId")
	count, err := s.likes.LikesCount(c.Request.Context(), postID)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		s.log.Error("Failed to read likes count", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read likes count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"postId": postID, "likesCount": count})
}
