package auth

import (
	"errors"
	"fmt"
	"time"

	"foodshare/backend/internal/normalize"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// JWTManager signs and validates JWT tokens used by the API.
type JWTManager struct {
	secretKey string        // Secret key for HMAC signing (from environment)
	duration  time.Duration // How long tokens are valid (e.g., 24 hours)
}

// Claims is the custom JWT payload (user id + email).
type Claims struct {
	UserID               string `json:"user_id"` // MongoDB ObjectID converted to hex string
	Email                string `json:"email"`   // Normalized user email from database
	jwt.RegisteredClaims        // Includes ExpiresAt, IssuedAt, etc.
}

// NewJWTManager returns a configured JWTManager.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
	}
}

// GenerateToken issues a signed JWT token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, email string) (string, time.Time, error) {
	// Calculate when this token will expire (current time + duration)
	expiresAt := time.Now().Add(m.duration)

	// Create claims struct with user info and expiration. The email is
	// stored normalized so handlers can compare it against stored users
	// without re-normalizing.
	claims := &Claims{
		UserID: userID.Hex(),           // Convert MongoDB ObjectID to hex string for JSON
		Email:  normalize.Email(email), // Lowercased + trimmed address
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// Sign with HS256 (HMAC with SHA-256) using the configured secret
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	// ParseWithClaims parses the token and validates the signature.
	// The callback rejects tokens signed with anything but HMAC so a
	// forged token cannot downgrade the signing method.
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	// Valid covers signature and expiration checks
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// UserObjectID converts the hex user id carried in the claims back to a
// bson.ObjectID for store queries.
func (c *Claims) UserObjectID() (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(c.UserID)
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	// Default cost (10 rounds) balances security and login latency
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	// CompareHashAndPassword is timing-safe against brute-force probing
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
