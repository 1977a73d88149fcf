package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"backend_inventory/services"
)

const actorContextKey = "actor"

// ActorClaims утверждения токена автора изменений
type ActorClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет JWT и определяет автора изменений
type AuthMiddleware struct {
	secret []byte
	issuer string
}

// NewAuthMiddleware создает новый экземпляр AuthMiddleware
func NewAuthMiddleware(secret, issuer string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), issuer: issuer}
}

// RequireActor middleware для операций записи: требует действительный токен
func (am *AuthMiddleware) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Authorization header is required",
			})
			c.Abort()
			return
		}

		actor, err := am.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid or expired token: " + err.Error(),
			})
			c.Abort()
			return
		}

		// Сохраняем автора в контексте
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ParseToken проверяет подпись и срок действия токена
func (am *AuthMiddleware) ParseToken(tokenString string) (services.Actor, error) {
	if len(am.secret) == 0 {
		return services.Actor{}, errors.New("JWT secret is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if am.issuer != "" {
		opts = append(opts, jwt.WithIssuer(am.issuer))
	}

	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, opts...)
	if err != nil {
		return services.Actor{}, err
	}
	if !token.Valid {
		return services.Actor{}, errors.New("token is not valid")
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return services.Actor{}, errors.New("token subject is empty")
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	return services.Actor{ID: subject, Name: name}, nil
}

// IssueToken выпускает токен автора (CLI и тесты)
func (am *AuthMiddleware) IssueToken(actor services.Actor, ttl time.Duration) (string, error) {
	if len(am.secret) == 0 {
		return "", errors.New("JWT secret is not configured")
	}

	now := time.Now()
	claims := ActorClaims{
		Name: actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    am.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GetActor возвращает автора из контекста
func GetActor(c *gin.Context) (services.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return services.Actor{}, false
	}
	actor, ok := value.(services.Actor)
	return actor, ok
}

// extractToken извлекает токен из заголовка Authorization
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if strings.HasPrefix(authHeader, "Token ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Token "))
	}
	return strings.TrimSpace(authHeader)
}
