package handler

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"foodshare/backend/internal/auth"
	"foodshare/backend/internal/data"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// French numbers: 0X or +33/0033 prefix followed by nine digits
	phonePattern = regexp.MustCompile(`^(0|(\+33)|(0033))[1-9][0-9]{8}$`)
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /users/signup: hashes the password, issues a
// session token and a JWT for the chat endpoints.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "missing or empty fields"})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Email, hashed, uuid.NewString())
	if err != nil {
		if errors.Is(err, data.ErrUserExists) {
			c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "user already exists"})
			return
		}
		respondStoreError(c, err)
		return
	}

	jwtToken, _, err := h.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"result": true,
		"token":  user.Token,
		"jwt":    jwtToken,
		"userId": user.ID.Hex(),
	})
}

// Signin handles POST /users/signin. Wrong email and wrong password get
// the same answer so the endpoint doesn't leak which accounts exist.
func (h *Handler) Signin(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "missing or empty fields"})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "user not found or wrong password"})
			return
		}
		respondStoreError(c, err)
		return
	}

	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "user not found or wrong password"})
		return
	}

	jwtToken, _, err := h.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": true,
		"token":  user.Token,
		"jwt":    jwtToken,
		"userId": user.ID.Hex(),
	})
}

// GetProfile handles GET /users/profile?token=...
func (h *Handler) GetProfile(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "missing or empty fields"})
		return
	}

	user, err := h.users.GetUserByToken(c.Request.Context(), token)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "user": user})
}

type profileRequest struct {
	Email     string        `json:"email"`
	UserName  string        `json:"userName"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Phone     string        `json:"phone"`
	Picture   string        `json:"picture"`
	Birthday  *time.Time    `json:"birthday"`
	Address   *data.Address `json:"address"`
	Token     string        `json:"token"`

	// Password change fields, only honored by UpdateProfile
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (r *profileRequest) validate() (string, bool) {
	if r.Email == "" || r.UserName == "" || r.FirstName == "" || r.LastName == "" || r.Phone == "" {
		return "missing or empty fields", false
	}
	if !emailPattern.MatchString(r.Email) {
		return "invalid email format", false
	}
	if !phonePattern.MatchString(r.Phone) {
		return "invalid phone number format", false
	}
	return "", true
}

// CreateProfile handles POST /users/profile: fills in the profile fields
// gathered after signup, keyed by session token.
func (h *Handler) CreateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "malformed request body"})
		return
	}
	if msg, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": msg})
		return
	}
	if req.Address == nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "missing or empty fields"})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), req.Token, data.ProfileUpdate{
		Email:     req.Email,
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Picture:   req.Picture,
		Birthday:  req.Birthday,
		Address:   req.Address,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "user": user})
}

// UpdateProfile handles PUT /users/profile: edits profile fields and,
// when password+newPassword are supplied, rotates the password hash.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "malformed request body"})
		return
	}
	if msg, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": msg})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), req.Token, data.ProfileUpdate{
		Email:     req.Email,
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Picture:   req.Picture,
		Birthday:  req.Birthday,
		Address:   req.Address,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	if req.NewPassword != "" {
		if req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "missing or empty fields"})
			return
		}
		if err := auth.CheckPassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "wrong password"})
			return
		}
		newHash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		if err := h.users.UpdatePassword(c.Request.Context(), req.Token, newHash); err != nil {
			respondStoreError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "user": user})
}
