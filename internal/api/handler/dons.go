package handler

import (
	"net/http"
	"strconv"

	"foodshare/backend/internal/data"
	"foodshare/backend/internal/geo"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// donRequest is the JSON body for creating or updating a listing.
type donRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Location    *geo.Point `json:"location"`
	User        string     `json:"user"`
}

// ListDons handles GET /dons. Optional lat/lng query parameters identify
// the observer; when both are present each listing carries a computed
// distance from them.
func (h *Handler) ListDons(c *gin.Context) {
	var observer *geo.Point

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr != "" || lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "lat and lng must both be valid numbers"})
			return
		}
		observer = geo.NewPoint(lng, lat)
	}

	dons, err := h.dons.List(c.Request.Context(), observer)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if dons == nil {
		dons = []*data.Don{}
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "dons": dons})
}

// NearDons handles GET /dons/near?lng=..&lat=..&maxDistance=..; the
// proximity search runs inside the storage engine and comes back
// nearest-first.
func (h *Handler) NearDons(c *gin.Context) {
	lngStr, latStr := c.Query("lng"), c.Query("lat")
	if lngStr == "" || latStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "lng and lat query parameters are required"})
		return
	}
	lng, lngErr := strconv.ParseFloat(lngStr, 64)
	lat, latErr := strconv.ParseFloat(latStr, 64)
	if lngErr != nil || latErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "lng and lat must be valid numbers"})
		return
	}

	// maxDistance is meters; store applies the default when unset
	maxMeters := 0
	if v := c.Query("maxDistance"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "maxDistance must be a positive integer"})
			return
		}
		maxMeters = n
	}

	dons, err := h.dons.Near(c.Request.Context(), geo.NewPoint(lng, lat), maxMeters)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if dons == nil {
		dons = []*data.Don{}
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "dons": dons})
}

// CreateDon handles POST /dons.
func (h *Handler) CreateDon(c *gin.Context) {
	var req donRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// e.g. location given as a string instead of a GeoJSON object
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "malformed request body: " + err.Error()})
		return
	}

	owner, err := bson.ObjectIDFromHex(req.User)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "user must be a valid identifier"})
		return
	}

	don, err := h.dons.Create(c.Request.Context(), &data.Don{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
		Location:    req.Location,
		User:        owner,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"result": true, "don": don})
}

// GetDon handles GET /dons/:id.
func (h *Handler) GetDon(c *gin.Context) {
	id, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	don, err := h.dons.GetByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "don": don})
}

// UpdateDon handles PUT /dons/:id with a full-field replace.
func (h *Handler) UpdateDon(c *gin.Context) {
	id, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req donRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "malformed request body: " + err.Error()})
		return
	}

	don, err := h.dons.Update(c.Request.Context(), id, &data.Don{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
		Location:    req.Location,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "don": don})
}

// DeleteDon handles DELETE /dons/:id.
func (h *Handler) DeleteDon(c *gin.Context) {
	id, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	don, err := h.dons.Delete(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "message": "don deleted", "don": don})
}
