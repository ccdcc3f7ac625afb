package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"poplift/api/models"
	"poplift/api/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/secret", AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.MustGet("user_id")})
	})
	return r
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
}

func TestAuthRequiredRejectsGarbageToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", w.Code)
	}
}

func TestAuthRequiredAcceptsBearerToken(t *testing.T) {
	token, err := utils.GenerateJWT(&models.User{ID: 42, Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthRequiredAcceptsCookie(t *testing.T) {
	token, err := utils.GenerateJWT(&models.User{ID: 42, Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: token})
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid cookie, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrackingCORSAllowsAnyOrigin(t *testing.T) {
	r := gin.New()
	r.POST("/api/analytics", TrackingCORS(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/analytics", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("tracking routes must allow any origin, got %q", got)
	}
}

func TestTrackingCORSPreflight(t *testing.T) {
	r := gin.New()
	r.OPTIONS("/api/analytics", TrackingCORS())

	req := httptest.NewRequest(http.MethodOptions, "/api/analytics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("preflight response missing allowed methods")
	}
}

func TestDashboardCORSAllowsCredentials(t *testing.T) {
	r := gin.New()
	r.POST("/api/login", DashboardCORS(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("dashboard routes must allow credentials for the JWT cookie")
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "*" {
		t.Fatal("dashboard routes must not use a wildcard origin with credentials")
	}
}
