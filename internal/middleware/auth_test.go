package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserID(c), "admin": IsAdmin(c)})
	})
	return r
}

func call(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserAuthAcceptsUserIDClaim(t *testing.T) {
	r := newRouter(UserAuth(testSecret))
	token := signToken(t, jwt.MapClaims{"userId": "u-1", "exp": time.Now().Add(time.Hour).Unix()})

	w := call(r, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"admin":false,"userId":"u-1"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestUserAuthFallsBackToSubject(t *testing.T) {
	r := newRouter(UserAuth(testSecret))
	token := signToken(t, jwt.MapClaims{"sub": "u-2", "role": "admin"})

	w := call(r, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"admin":true,"userId":"u-2"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestUserAuthRejects(t *testing.T) {
	r := newRouter(UserAuth(testSecret))

	cases := map[string]string{
		"missing":      "",
		"no principal": signToken(t, jwt.MapClaims{"role": "customer"}),
		"expired":      signToken(t, jwt.MapClaims{"userId": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		if w := call(r, token); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
	}
}

func TestUserAuthRejectsWrongSecret(t *testing.T) {
	r := newRouter(UserAuth(testSecret))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "u-1"}).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if w := call(r, signed); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminAuthRequiresAdminRole(t *testing.T) {
	r := newRouter(AdminAuth(testSecret))

	if w := call(r, signToken(t, jwt.MapClaims{"userId": "u-1", "role": "customer"})); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}
	if w := call(r, signToken(t, jwt.MapClaims{"userId": "a-1", "role": "admin"})); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "abc-123" || w.Body.String() != "abc-123" {
		t.Fatalf("expected propagated request id, got header=%q body=%q", w.Header().Get(RequestIDHeader), w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected generated uuid, got %q", w.Header().Get(RequestIDHeader))
	}
}
