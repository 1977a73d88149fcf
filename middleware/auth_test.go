package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_inventory/services"
)

func setupAuthRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/write", am.RequireActor(), func(c *gin.Context) {
		actor, _ := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "name": actor.Name})
	})
	return r
}

func TestAuthMiddleware_IssueAndParse(t *testing.T) {
	am := NewAuthMiddleware("test-secret", "inventory")

	token, err := am.IssueToken(services.Actor{ID: "u-1", Name: "Alice"}, time.Hour)
	require.NoError(t, err)

	actor, err := am.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.ID)
	assert.Equal(t, "Alice", actor.Name)

	// Другой секрет или издатель не принимаются
	_, err = NewAuthMiddleware("other-secret", "inventory").ParseToken(token)
	assert.Error(t, err)
	_, err = NewAuthMiddleware("test-secret", "other").ParseToken(token)
	assert.Error(t, err)

	expired, err := am.IssueToken(services.Actor{ID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = am.ParseToken(expired)
	assert.Error(t, err)

	emptySubject, err := am.IssueToken(services.Actor{ID: ""}, time.Hour)
	require.NoError(t, err)
	_, err = am.ParseToken(emptySubject)
	assert.Error(t, err)
}

func TestAuthMiddleware_RequireActor(t *testing.T) {
	am := NewAuthMiddleware("test-secret", "")
	router := setupAuthRouter(am)

	t.Run("Без токена", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Неверный токен", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Действительный токен", func(t *testing.T) {
		token, err := am.IssueToken(services.Actor{ID: "u-2", Name: "Bob"}, time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"u-2"`)
	})
}

func TestAuthMiddleware_NoSecret(t *testing.T) {
	am := NewAuthMiddleware("", "")
	_, err := am.IssueToken(services.Actor{ID: "u-1"}, time.Hour)
	assert.Error(t, err)
	_, err = am.ParseToken("anything")
	assert.Error(t, err)
}

func TestRateLimit_WithoutRedisPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/events", RateLimit(nil, RateLimitConfig{Requests: 1, Window: time.Minute, KeyGenerator: SourceKeyGenerator}),
		func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("X-Event-Source", "hr")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusAccepted, w.Code)
	}
}

func TestSourceKeyGenerator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("X-Event-Source", "hr")

	assert.Equal(t, "source:hr", SourceKeyGenerator(c))
}
