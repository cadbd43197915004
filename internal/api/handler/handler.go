// Package handler wires the HTTP surface: gin handlers over the data
// stores, the auth manager and the notification relay.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"foodshare/backend/internal/auth"
	"foodshare/backend/internal/data"
	"foodshare/backend/internal/geo"
	"foodshare/backend/internal/relay"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store interfaces mirror the concrete stores in internal/data; handlers
// depend on these so tests can substitute fakes.

// DonsStore is the donation-listing access used by the dons endpoints.
type DonsStore interface {
	Create(ctx context.Context, don *data.Don) (*data.Don, error)
	List(ctx context.Context, observer *geo.Point) ([]*data.Don, error)
	Near(ctx context.Context, pt *geo.Point, maxMeters int) ([]*data.Don, error)
	GetByID(ctx context.Context, id bson.ObjectID) (*data.Don, error)
	GetMany(ctx context.Context, ids []bson.ObjectID) ([]*data.Don, error)
	Update(ctx context.Context, id bson.ObjectID, don *data.Don) (*data.Don, error)
	Delete(ctx context.Context, id bson.ObjectID) (*data.Don, error)
}

// UsersStore is the user access used by the auth, profile and favorites
// endpoints.
type UsersStore interface {
	CreateUser(ctx context.Context, email, hashedPassword, token string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByToken(ctx context.Context, token string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	UpdateProfile(ctx context.Context, token string, p data.ProfileUpdate) (*data.User, error)
	UpdatePassword(ctx context.Context, token, newHash string) error
	Favorites(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error)
	AddFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error)
	RemoveFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error)
	SetPresence(ctx context.Context, token string, online bool) error
}

// ChatStore is the conversation/message access used by the chat endpoints.
type ChatStore interface {
	SendMessage(ctx context.Context, from, to bson.ObjectID, content string, subject *bson.ObjectID) (*data.Message, *data.Conversation, error)
	History(ctx context.Context, userA, userB bson.ObjectID, limit int64) ([]*data.Message, *data.Conversation, error)
	MarkRead(ctx context.Context, msgID, reader bson.ObjectID) (*data.Message, error)
	RecentConversations(ctx context.Context, user bson.ObjectID, limit int64) ([]*data.Conversation, error)
}

// Relay is the best-effort broadcast used after a message is stored.
type Relay interface {
	PublishMessage(ctx context.Context, ev relay.MessageEvent) error
	PublishPresence(ctx context.Context, ev relay.PresenceEvent) error
}

// Handler holds every dependency of the HTTP surface, injected explicitly.
type Handler struct {
	dons  DonsStore
	users UsersStore
	chat  ChatStore
	relay Relay
	jwt   *auth.JWTManager
}

// New returns a Handler wired with the given dependencies.
func New(dons DonsStore, users UsersStore, chat ChatStore, rl Relay, jwt *auth.JWTManager) *Handler {
	return &Handler{dons: dons, users: users, chat: chat, relay: rl, jwt: jwt}
}

// Routes registers every endpoint on the router. rateLimit guards the
// credential endpoints; pass gin middleware or nil for none.
func (h *Handler) Routes(r *gin.Engine, rateLimit gin.HandlerFunc) {
	users := r.Group("/users")
	if rateLimit != nil {
		users.POST("/signup", rateLimit, h.Signup)
		users.POST("/signin", rateLimit, h.Signin)
	} else {
		users.POST("/signup", h.Signup)
		users.POST("/signin", h.Signin)
	}
	users.GET("/profile", h.GetProfile)
	users.POST("/profile", h.CreateProfile)
	users.PUT("/profile", h.UpdateProfile)

	dons := r.Group("/dons")
	dons.GET("", h.ListDons)
	dons.GET("/near", h.NearDons)
	dons.POST("", h.CreateDon)
	dons.GET("/:id", h.GetDon)
	dons.PUT("/:id", h.UpdateDon)
	dons.DELETE("/:id", h.DeleteDon)

	favorites := r.Group("/favorites")
	favorites.GET("/:userId", h.GetFavorites)
	favorites.POST("/:userId", h.AddFavorite)
	favorites.DELETE("/:userId/:donId", h.RemoveFavorite)

	chat := r.Group("/chat")
	chat.POST("/message", h.requireAuth, h.SendMessage)
	chat.GET("/history/:userId", h.requireAuth, h.GetHistory)
	chat.GET("/conversations", h.requireAuth, h.ListConversations)
	chat.PUT("/read/:messageId", h.requireAuth, h.MarkRead)
	chat.PUT("/users/:token", h.JoinChat)
	chat.DELETE("/users/:token", h.LeaveChat)
}

// claimsKey is the gin context key holding the verified JWT claims.
const claimsKey = "authClaims"

// requireAuth verifies the Bearer token and stashes the claims for the
// handler. Missing or invalid tokens are authorization failures (401).
func (h *Handler) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"result": false, "error": "missing authorization token"})
		return
	}

	claims, err := h.jwt.VerifyToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"result": false, "error": "invalid token"})
		return
	}

	c.Set(claimsKey, claims)
	c.Next()
}

// callerClaims returns the claims stored by requireAuth.
func callerClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// respondStoreError maps store errors onto the HTTP taxonomy: validation
// failures carry their field context (400), not-found is 404, everything
// else is an internal storage failure logged server-side and reported
// generically (500).
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, data.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": err.Error()})
	case errors.Is(err, data.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"result": false, "error": "not found"})
	default:
		log.Printf("storage failure on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"result": false, "error": "internal server error"})
	}
}

// pathObjectID parses an ObjectID path parameter. A malformed identifier
// surfaces as an internal failure rather than a validation error, matching
// the status mapping clients already rely on.
func pathObjectID(c *gin.Context, name string) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(c.Param(name))
	if err != nil {
		log.Printf("malformed %s identifier %q: %v", name, c.Param(name), err)
		c.JSON(http.StatusInternalServerError, gin.H{"result": false, "error": "internal server error"})
		return bson.ObjectID{}, false
	}
	return id, true
}
