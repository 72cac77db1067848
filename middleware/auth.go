package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"spicysweet/models"
)

// HostClaims binds a control token to one room and one player. Room
// creation hands the host such a token; host-only endpoints require it.
type HostClaims struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// SignHostToken issues the host-control token for a freshly created room.
func SignHostToken(secret, roomCode, playerID string) (string, error) {
	claims := HostClaims{
		RoomCode: models.NormalizeCode(roomCode),
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(4 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// HostAuth verifies the host token and checks it matches the room in the
// path. It sets "player_id" for downstream handlers.
func HostAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "host token required"})
			return
		}

		claims := &HostClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid host token"})
			return
		}

		if code := c.Param("code"); code != "" && models.NormalizeCode(code) != claims.RoomCode {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is for a different room"})
			return
		}

		c.Set("player_id", claims.PlayerID)
		c.Next()
	}
}
