package handler

import (
	"net/http"

	"foodshare/backend/internal/data"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// GetFavorites handles GET /favorites/:userId and returns the user's
// favorited dons, hydrated. A missing user is a 404, never an empty list.
func (h *Handler) GetFavorites(c *gin.Context) {
	userID, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}

	ids, err := h.users.Favorites(c.Request.Context(), userID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	dons, err := h.dons.GetMany(c.Request.Context(), ids)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if dons == nil {
		dons = []*data.Don{}
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "favorites": dons})
}

// AddFavorite handles POST /favorites/:userId with body {"donId": "..."}.
func (h *Handler) AddFavorite(c *gin.Context) {
	userID, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}

	var req struct {
		DonID string `json:"donId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DonID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "donId is required"})
		return
	}
	donID, err := bson.ObjectIDFromHex(req.DonID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "donId must be a valid identifier"})
		return
	}

	favorites, err := h.users.AddFavorite(c.Request.Context(), userID, donID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "favorites": favorites})
}

// RemoveFavorite handles DELETE /favorites/:userId/:donId.
func (h *Handler) RemoveFavorite(c *gin.Context) {
	userID, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}
	donID, ok := pathObjectID(c, "donId")
	if !ok {
		return
	}

	favorites, err := h.users.RemoveFavorite(c.Request.Context(), userID, donID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "favorites": favorites})
}
