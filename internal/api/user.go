package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/salachat/internal/middleware"
	"github.com/lalith-99/salachat/internal/models"
	"github.com/lalith-99/salachat/internal/repository"
	"go.uber.org/zap"
)

// UserHandler handles user-related operations.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	// A valid token for a deleted account.
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// Search handles GET /v1/users/search?q=al&limit=20
//
// Prefix match on username, case-insensitive. The caller is left out of
// the results: this is how direct mode finds a user_to_id.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	limit := defaultSearchLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	// One extra row so dropping the caller still leaves limit results.
	users, err := h.repo.Search(c.Request.Context(), q, limit+1)
	if err != nil {
		h.logger.Error("failed to search users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}

	me := middleware.GetUserID(c)
	results := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != me {
			results = append(results, u)
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	c.JSON(http.StatusOK, results)
}
