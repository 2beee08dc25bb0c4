package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/MarcoPoloResearchLab/cins/internal/auth"
	"github.com/MarcoPoloResearchLab/cins/internal/commands"
	"github.com/MarcoPoloResearchLab/cins/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	userIDContextKey = "cins_user_id"
	tokenQueryParam  = "jwt"
	bearerPrefix     = "Bearer "

	defaultAuthRateLimit = rate.Limit(5)
	defaultAuthBurst     = 10
	maxRequestBodyBytes  = 64 << 10
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUserStore     = errors.New("user store dependency required")
	errMissingCommandStore  = errors.New("command store dependency required")
	errMissingMacroStore    = errors.New("macro store dependency required")
	errInvalidAuthorization = errors.New("authorization header or jwt query parameter missing or invalid")
)

// TokenManager issues and verifies access tokens.
type TokenManager interface {
	IssueToken(userID int64) (string, time.Time, error)
	VerifyToken(token string) (auth.Claims, error)
}

// UserStore registers and authenticates accounts.
type UserStore interface {
	Register(ctx context.Context, credentials users.Credentials) (int64, error)
	Authenticate(ctx context.Context, credentials users.Credentials) (int64, error)
}

// CommandStore saves and searches commands.
type CommandStore interface {
	Save(ctx context.Context, ownerID int64, text string) (int64, error)
	Search(ctx context.Context, ownerID int64, opts commands.SearchOptions) ([]commands.Entry, error)
}

// MacroStore creates and resolves macros.
type MacroStore interface {
	Create(ctx context.Context, ownerID int64, name string, commandIDs []int64) (int64, error)
	Get(ctx context.Context, ownerID int64, name string) ([]string, error)
	ListNames(ctx context.Context, ownerID int64) ([]string, error)
}

type Dependencies struct {
	TokenManager TokenManager
	Users        UserStore
	Commands     CommandStore
	Macros       MacroStore
	Logger       *zap.Logger

	// Registry receives the HTTP metrics and backs /metrics. A private
	// registry is created when nil.
	Registry        *prometheus.Registry
	AuthRateLimit   rate.Limit
	AuthRateBurst   int
	AllowedOrigins  []string
	RequestBodySize int64
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserStore
	}
	if deps.Commands == nil {
		return nil, errMissingCommandStore
	}
	if deps.Macros == nil {
		return nil, errMissingMacroStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	rateLimit := deps.AuthRateLimit
	if rateLimit <= 0 {
		rateLimit = defaultAuthRateLimit
	}
	rateBurst := deps.AuthRateBurst
	if rateBurst <= 0 {
		rateBurst = defaultAuthBurst
	}
	bodyLimit := deps.RequestBodySize
	if bodyLimit <= 0 {
		bodyLimit = maxRequestBodyBytes
	}

	metrics, err := newHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(metrics.middleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(maxBodyMiddleware(bodyLimit))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		users:    deps.Users,
		commands: deps.Commands,
		macros:   deps.Macros,
		logger:   logger,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	limiter := newIPRateLimiter(rateLimit, rateBurst)
	api.POST("/register", limiter.middleware(), handler.handleRegister)
	api.POST("/login", limiter.middleware(), handler.handleLogin)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/commands", handler.handleSearchCommands)
	protected.POST("/commands", handler.handleSaveCommand)
	protected.GET("/macro", handler.handleGetMacro)
	protected.POST("/macro", handler.handleCreateMacro)
	protected.GET("/macros", handler.handleListMacros)

	return router, nil
}

type httpHandler struct {
	tokens   TokenManager
	users    UserStore
	commands CommandStore
	macros   MacroStore
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := requestToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":  apperr.CodeOf(auth.ErrMissingToken),
			"detail": errInvalidAuthorization.Error(),
		})
		return
	}
	claims, err := h.tokens.VerifyToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		code := apperr.CodeOf(err)
		if code == "" || apperr.KindOf(err) != apperr.KindAuth {
			code = apperr.CodeOf(auth.ErrInvalidToken)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "detail": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

// requestToken reads the bearer header first and falls back to the jwt query parameter.
func requestToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, bearerPrefix) {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		return token, token != ""
	}
	token := strings.TrimSpace(c.Query(tokenQueryParam))
	return token, token != ""
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)
	if code == "" {
		code = operation + ".failed"
	}
	detail := err.Error()
	if kind == apperr.KindInternal {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err))
		detail = "internal error"
	}
	c.JSON(statusForKind(kind), gin.H{"error": code, "detail": detail})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
