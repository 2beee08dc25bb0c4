package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

const testSigningSecret = "super-secret"

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	service, err := NewTokenService(TokenServiceConfig{
		SigningSecret: []byte(testSigningSecret),
		Clock: func() time.Time {
			return *now
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return service
}

func signPayload(t *testing.T, secret string, method jwt.SigningMethod, payload jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, payload).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(TokenServiceConfig{SigningSecret: nil})
	if !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestNewTokenServiceDefaultsTTL(t *testing.T) {
	service, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if service.TTL() != 4*time.Hour {
		t.Fatalf("expected four hour default ttl, got %s", service.TTL())
	}
}

func TestIssueTokenEmbedsExactlyExpireAtAndUser(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTokenService(t, &now)

	tokenString, expiresAt, err := service.IssueToken(42)
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	payload := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithJSONNumber())
	if _, err := parser.ParseWithClaims(tokenString, payload, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSigningSecret), nil
	}); err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("unexpected claim set %#v", payload)
	}
	if payload["user"] == nil || payload["expire_at"] == nil {
		t.Fatalf("missing claims in %#v", payload)
	}
}

func TestIssueTokenRejectsNonPositiveUser(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTokenService(t, &now)

	if _, _, err := service.IssueToken(0); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user error, got %v", err)
	}
}

func TestVerifyTokenAcceptsUntilExpiry(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTokenService(t, &now)

	tokenString, _, err := service.IssueToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	testCases := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "fresh", elapsed: 0},
		{name: "almost-expired", elapsed: 4*time.Hour - time.Nanosecond},
		{name: "exactly-expired", elapsed: 4 * time.Hour, wantErr: ErrExpiredToken},
		{name: "long-expired", elapsed: 5 * time.Hour, wantErr: ErrExpiredToken},
	}

	issuedAt := now
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			now = issuedAt.Add(testCase.elapsed)
			claims, err := service.VerifyToken(tokenString)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				if !errors.Is(err, apperr.ErrUnauthorized) {
					t.Fatalf("expected auth kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected validation success: %v", err)
			}
			if claims.UserID != 7 {
				t.Fatalf("unexpected user id %d", claims.UserID)
			}
		})
	}
}

func TestVerifyTokenRejectsUnexpectedClaimSets(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTokenService(t, &now)
	expireAt := now.Add(time.Hour).Unix()

	testCases := []struct {
		name    string
		payload jwt.MapClaims
	}{
		{
			name:    "extra-key",
			payload: jwt.MapClaims{"expire_at": expireAt, "user": 1, "extra": "x"},
		},
		{
			name:    "missing-user",
			payload: jwt.MapClaims{"expire_at": expireAt},
		},
		{
			name:    "renamed-key",
			payload: jwt.MapClaims{"expire_at": expireAt, "sub": 1},
		},
		{
			name:    "string-expiry",
			payload: jwt.MapClaims{"expire_at": "2024-09-01 13:00:00.000000", "user": 1},
		},
		{
			name:    "zero-user",
			payload: jwt.MapClaims{"expire_at": expireAt, "user": 0},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			tokenString := signPayload(t, testSigningSecret, jwt.SigningMethodHS256, testCase.payload)
			if _, err := service.VerifyToken(tokenString); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected invalid token error, got %v", err)
			}
		})
	}
}

func TestVerifyTokenRejectsBadSignatures(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTokenService(t, &now)
	payload := jwt.MapClaims{"expire_at": now.Add(time.Hour).Unix(), "user": 1}

	wrongSecret := signPayload(t, "other-secret", jwt.SigningMethodHS256, payload)
	if _, err := service.VerifyToken(wrongSecret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	wrongAlgorithm := signPayload(t, testSigningSecret, jwt.SigningMethodHS512, payload)
	if _, err := service.VerifyToken(wrongAlgorithm); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong algorithm, got %v", err)
	}

	if _, err := service.VerifyToken("invalid.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for malformed input, got %v", err)
	}

	if _, err := service.VerifyToken("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
