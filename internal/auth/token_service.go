package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 4 * time.Hour

	claimExpireAt = "expire_at"
	claimUser     = "user"

	opIssueToken  = "auth.issue_token"
	opVerifyToken = "auth.verify_token"
)

var (
	ErrMissingSigningSecret = errors.New("token service: signing secret required")
	ErrInvalidUserID        = apperr.New(apperr.KindValidation, opIssueToken, "invalid_user_id", nil)
	ErrMissingToken         = apperr.New(apperr.KindAuth, opVerifyToken, "missing_token", nil)
	ErrInvalidToken         = apperr.New(apperr.KindAuth, opVerifyToken, "invalid_token", nil)
	ErrExpiredToken         = apperr.New(apperr.KindAuth, opVerifyToken, "expired_token", nil)
)

// Claims is the verified content of a token.
type Claims struct {
	UserID    int64
	ExpiresAt time.Time
}

// TokenServiceConfig configures token issuance and verification.
type TokenServiceConfig struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenService issues and verifies HS256 tokens whose payload is exactly
// {expire_at, user}.
type TokenService struct {
	signingSecret []byte
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenService validates the configuration and applies defaults.
func NewTokenService(cfg TokenServiceConfig) (*TokenService, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// IssueToken signs a token for userID that expires TTL after now.
func (s *TokenService) IssueToken(userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, ErrInvalidUserID
	}
	expiresAt := s.clock().UTC().Add(s.ttl).Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claimExpireAt: expiresAt.Unix(),
		claimUser:     userID,
	})
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", time.Time{}, apperr.New(apperr.KindInternal, opIssueToken, "sign_failed", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken checks the signature, the exact claim key set and the expiry.
// A token is rejected once now is at or past expire_at.
func (s *TokenService) VerifyToken(tokenString string) (Claims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	payload := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		payload,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
			}
			return s.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if len(payload) != 2 {
		return Claims{}, fmt.Errorf("%w: unexpected claim set", ErrInvalidToken)
	}

	expireAt, ok := numericClaim(payload, claimExpireAt)
	if !ok {
		return Claims{}, fmt.Errorf("%w: %s claim missing", ErrInvalidToken, claimExpireAt)
	}
	userID, ok := numericClaim(payload, claimUser)
	if !ok || userID <= 0 {
		return Claims{}, fmt.Errorf("%w: %s claim missing", ErrInvalidToken, claimUser)
	}

	expiresAt := time.Unix(expireAt, 0).UTC()
	if !s.clock().Before(expiresAt) {
		return Claims{}, ErrExpiredToken
	}
	return Claims{UserID: userID, ExpiresAt: expiresAt}, nil
}

func numericClaim(payload jwt.MapClaims, key string) (int64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	number, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	value, err := number.Int64()
	if err != nil {
		return 0, false
	}
	return value, true
}
