package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/carelinkhq/carelinkbackend/models"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/utils"
)

// Authenticate validates the bearer token and attaches the claims.
// Claims only establish who is calling; RequireRoles decides what they
// may do, against the live record.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims, err := utils.ValidateToken(tokenStr, os.Getenv("JWT_SECRET"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRoles re-reads the user at call time instead of trusting role
// claims baked into the access token: a role change or approval
// revocation takes effect before the token expires. Admins additionally
// need isApproved.
func RequireRoles(users repository.UserRepository, roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		idVal, ok := c.Get("userID")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}
		userID, err := bson.ObjectIDFromHex(idVal.(string))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid auth context"})
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			// A store outage is not an authentication verdict: 401 is
			// reserved for a genuinely absent principal, anything else is
			// retryable.
			if errors.Is(err, mongo.ErrNoDocuments) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable", "code": "STORE_UNAVAILABLE"})
			return
		}

		if !allowed[user.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient role",
				"required": roles,
				"actual":   user.Role,
			})
			return
		}
		if user.Role == models.RoleAdmin && !user.IsApproved {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account not approved"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

// CurrentUser returns the live user loaded by RequireRoles.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	val, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}

// CurrentUserID parses the authenticated principal id set by
// Authenticate, for handlers that run without a role gate.
func CurrentUserID(c *gin.Context) (bson.ObjectID, bool) {
	idVal, ok := c.Get("userID")
	if !ok {
		return bson.ObjectID{}, false
	}
	id, err := bson.ObjectIDFromHex(idVal.(string))
	if err != nil {
		return bson.ObjectID{}, false
	}
	return id, true
}
