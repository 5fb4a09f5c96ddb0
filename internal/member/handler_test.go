package member

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"larpledger/internal/auth"
	"larpledger/internal/logger"
)

func init() {
	logger.Init()
}

const handlerTestSecret = "member-handler-secret"

func newAuthRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)

	router := gin.New()
	router.POST("/auth/register", h.Register)
	router.POST("/auth/login", h.Login)
	router.POST("/auth/refresh", h.Refresh)
	router.GET("/auth/me", auth.AuthMiddleware(handlerTestSecret), h.Me)
	return router
}

func seededService(t *testing.T) Service {
	t.Helper()
	repo := new(MockRepository)
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)

	stored := &Member{ID: 3, Name: "GM", Email: "gm@example.org", Role: "admin", PasswordHash: hash}
	repo.On("FindByEmail", mock.Anything, "gm@example.org").Return(stored, nil)
	repo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
	return NewService(repo, handlerTestSecret)
}

func TestLoginHandler(t *testing.T) {
	router := newAuthRouter(seededService(t))

	t.Run("valid credentials", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"gm@example.org","password":"correct-horse"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "access_token")
		assert.NotContains(t, w.Body.String(), "password_hash")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"gm@example.org","password":"nope"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"not-an-email"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMeHandler(t *testing.T) {
	router := newAuthRouter(seededService(t))

	t.Run("with valid token", func(t *testing.T) {
		token, err := auth.GenerateToken(3, "gm@example.org", "admin", handlerTestSecret)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "gm@example.org")
	})

	t.Run("without token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRefreshHandler(t *testing.T) {
	router := newAuthRouter(seededService(t))

	t.Run("valid refresh token", func(t *testing.T) {
		refreshToken, err := auth.GenerateRefreshToken(3, "gm@example.org", "admin", handlerTestSecret)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh",
			strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "access_token")
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh",
			strings.NewReader(`{"refresh_token":"garbage"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
