package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

func authEngine(auth *service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireStudentJWT(auth))
	r.GET("/read", func(c *gin.Context) { response.Success(c, http.StatusOK, GetClaims(c).UserID) })
	r.POST("/write", RejectGuests(), func(c *gin.Context) { response.Success(c, http.StatusOK, GetClaims(c).UserID) })
	return r
}

func TestStudentAuthAndGuestGate(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
	student, err := auth.GenerateStudentToken("stu-1", false)
	if err != nil {
		t.Fatalf("GenerateStudentToken: %v", err)
	}
	guest, err := auth.GenerateStudentToken("guest-1", true)
	if err != nil {
		t.Fatalf("GenerateStudentToken: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		header string
		status int
		code   response.ErrCode
	}{
		{name: "missing header", method: http.MethodGet, path: "/read", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "wrong scheme", method: http.MethodGet, path: "/read", header: "Basic " + student, status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "garbage token", method: http.MethodGet, path: "/read", header: "Bearer nope", status: http.StatusUnauthorized, code: response.ErrTokenInvalid},
		{name: "student read", method: http.MethodGet, path: "/read", header: "Bearer " + student, status: http.StatusOK},
		{name: "guest read", method: http.MethodGet, path: "/read", header: "bearer " + guest, status: http.StatusOK},
		{name: "student write", method: http.MethodPost, path: "/write", header: "Bearer " + student, status: http.StatusOK},
		{name: "guest write", method: http.MethodPost, path: "/write", header: "Bearer " + guest, status: http.StatusForbidden, code: response.ErrForbidden},
	}
	engine := authEngine(auth)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			var env response.Response
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.code == "" {
				if env.Error != nil {
					t.Errorf("unexpected error %+v", env.Error)
				}
				return
			}
			if env.Error == nil || env.Error.Code != tc.code {
				t.Errorf("error = %+v, want %s", env.Error, tc.code)
			}
		})
	}
}

func TestRejectGuestsWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", RejectGuests(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRateLimitedResponseCarriesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1500*time.Millisecond)
	r := gin.New()
	r.POST("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
}
