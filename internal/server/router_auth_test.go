package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/commands", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		tokens: stubTokenManager{
			verifyErr: auth.ErrExpiredToken,
		},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
	if body := decodeBody(t, recorder); body["error"] != "auth.verify_token.expired_token" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/commands", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		tokens: stubTokenManager{
			verifyErr: errors.New("signature mismatch"),
		},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	if body := decodeBody(t, recorder); body["error"] != "auth.verify_token.invalid_token" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestAuthorizeRequestAcceptsHeaderOrQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "bearer-header", target: "/api/commands", header: "Bearer good", want: http.StatusOK},
		{name: "query-parameter", target: "/api/commands?jwt=good", want: http.StatusOK},
		{name: "missing", target: "/api/commands", want: http.StatusUnauthorized},
		{name: "wrong-scheme", target: "/api/commands?jwt=good", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty-bearer", target: "/api/commands", header: "Bearer   ", want: http.StatusUnauthorized},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			handler := &httpHandler{
				tokens: stubTokenManager{claims: auth.Claims{UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}},
				logger: zap.NewNop(),
			}
			router := gin.New()
			router.GET("/api/commands", handler.authorizeRequest, func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"user": c.GetInt64(userIDContextKey)})
			})

			request := httptest.NewRequest(http.MethodGet, testCase.target, http.NoBody)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			if recorder.Code != testCase.want {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, testCase.want)
			}
			if testCase.want == http.StatusOK {
				if body := decodeBody(t, recorder); body["user"] != float64(7) {
					t.Fatalf("expected user id in context, got %v", body)
				}
			}
		})
	}
}

type stubTokenManager struct {
	claims    auth.Claims
	verifyErr error
}

func (s stubTokenManager) IssueToken(int64) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not implemented")
}

func (s stubTokenManager) VerifyToken(token string) (auth.Claims, error) {
	if s.verifyErr != nil {
		return auth.Claims{}, s.verifyErr
	}
	if token != "good" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return s.claims, nil
}
