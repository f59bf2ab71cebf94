// Package httpserver exposes the control surface, health, metrics and the telemetry stream
// over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/service"
)

const operatorKey = "operator"

// Dispatcher executes control-surface requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req service.Request) service.Response
}

// Subscriber upgrades a request to a telemetry websocket.
type Subscriber interface {
	HandleRequest(w http.ResponseWriter, r *http.Request) error
}

// Deps are the collaborators of the router. Hub and Metrics are optional.
type Deps struct {
	Dispatcher Dispatcher
	Auth       service.OperatorAuth
	Hub        Subscriber
	Metrics    http.Handler
	Log        *zap.Logger
}

type credentialsDTO struct {
	Login          string `json:"login"`
	Password       string `json:"password"`
	SharedSecret   string `json:"sharedSecret"`
	IdentitySecret string `json:"identitySecret"`
	APIKey         string `json:"apiKey"`
}

type dispatchRequest struct {
	Action       string         `json:"action" binding:"required"`
	AccountID    string         `json:"accountId"`
	Name         string         `json:"name"`
	ExternalID   string         `json:"externalId"`
	Credentials  credentialsDTO `json:"credentials"`
	RetryAttempt int            `json:"retryAttempt"`
}

type dispatchResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestLogger(d.Log), gin.CustomRecovery(func(c *gin.Context, rec any) {
		d.Log.Error("http panic", zap.Any("reason", rec), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, dispatchResponse{Error: "internal error"})
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	protected := r.Group("/")
	protected.Use(authMiddleware(d.Auth))
	protected.POST("/api/v1/dispatch", dispatchHandler(d.Dispatcher))
	if d.Hub != nil {
		protected.GET("/ws/sync", func(c *gin.Context) {
			if err := d.Hub.HandleRequest(c.Writer, c.Request); err != nil {
				d.Log.Warn("websocket upgrade", zap.Error(err))
			}
		})
	}
	return r
}

func dispatchHandler(d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in dispatchRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, dispatchResponse{
				Error:   "bad request: " + err.Error(),
				Details: map[string]any{"category": "BAD_REQUEST_ERROR"},
			})
			return
		}
		resp := d.Dispatch(c.Request.Context(), service.Request{
			Action:     in.Action,
			AccountID:  in.AccountID,
			Name:       in.Name,
			ExternalID: in.ExternalID,
			Credentials: model.Credentials{
				Login:          in.Credentials.Login,
				Password:       in.Credentials.Password,
				SharedSecret:   in.Credentials.SharedSecret,
				IdentitySecret: in.Credentials.IdentitySecret,
				APIKey:         in.Credentials.APIKey,
			},
			RetryAttempt: in.RetryAttempt,
		})
		c.JSON(http.StatusOK, dispatchResponse(resp))
	}
}

// authMiddleware accepts "Authorization: Bearer <jwt>", or ?token= for websocket clients that
// cannot set headers.
func authMiddleware(auth service.OperatorAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if h := strings.TrimSpace(c.GetHeader("Authorization")); len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
			tok = strings.TrimSpace(h[7:])
		}
		if tok == "" {
			tok = c.Query("token")
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dispatchResponse{Error: "no auth"})
			return
		}
		sub, err := auth.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dispatchResponse{Error: "invalid token"})
			return
		}
		c.Set(operatorKey, sub)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("operator", c.GetString(operatorKey)),
		)
	}
}
