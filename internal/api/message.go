package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/salachat/internal/middleware"
	"github.com/lalith-99/salachat/internal/repository"
	"go.uber.org/zap"
)

const maxHistoryLimit = 100

// MessageHandler serves message history. Messages are only created over
// WebSocket; reading history never marks anything read.
type MessageHandler struct {
	rooms        repository.RoomRepository
	users        repository.UserRepository
	repo         repository.MessageRepository
	defaultLimit int
	logger       *zap.Logger
}

func NewMessageHandler(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	repo repository.MessageRepository,
	defaultLimit int,
	logger *zap.Logger,
) *MessageHandler {
	if defaultLimit < 1 || defaultLimit > maxHistoryLimit {
		defaultLimit = 50
	}
	return &MessageHandler{
		rooms:        rooms,
		users:        users,
		repo:         repo,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// RoomHistory handles GET /v1/rooms/:id/messages?limit=50
//
// Returns the latest limit messages, oldest first. limit is capped at 100.
func (h *MessageHandler) RoomHistory(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to get room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	messages, err := h.repo.ListByRoom(c.Request.Context(), roomID, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// DirectHistory handles GET /v1/direct/:user_id/messages?limit=50
//
// Returns the conversation between the caller and user_id in both
// directions, oldest first.
func (h *MessageHandler) DirectHistory(c *gin.Context) {
	otherID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	other, err := h.users.GetByID(c.Request.Context(), otherID)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if other == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	me := middleware.GetUserID(c)
	messages, err := h.repo.ListDirect(c.Request.Context(), me, otherID, limit)
	if err != nil {
		h.logger.Error("failed to list direct messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// Conversations handles GET /v1/direct/conversations
//
// Lists everyone the caller has exchanged direct messages with, newest
// conversation first, with the latest message and the unread count.
func (h *MessageHandler) Conversations(c *gin.Context) {
	me := middleware.GetUserID(c)

	conversations, err := h.repo.ListConversations(c.Request.Context(), me)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// limit reads the "limit" query param. On a bad value it has already
// written the 400.
func (h *MessageHandler) limit(c *gin.Context) (int, bool) {
	l := c.Query("limit")
	if l == "" {
		return h.defaultLimit, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}
