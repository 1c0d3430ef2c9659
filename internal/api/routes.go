package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/auth"
	"github.com/satriahrh/kundli/server/internal/websocket"
	"github.com/satriahrh/kundli/server/usecase"
)

const (
	serviceKeyHeader = "X-Service-Key"
	userIDKey        = "userID"
)

// TextConsultant answers text chat messages
type TextConsultant interface {
	Reply(ctx context.Context, req usecase.TextRequest) (usecase.TextReply, error)
}

// Dependencies are the collaborators of the REST and socket routes
type Dependencies struct {
	Hub           *websocket.Hub
	Issuer        *auth.Issuer
	Catalog       repositories.PersonaCatalog
	Text          TextConsultant
	Conversations repositories.ConversationStore
	ServiceKey    string
	Logger        *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "kundli-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return mintToken(c, deps, logger)
	})

	v1.GET("/personas", func(c echo.Context) error {
		return listPersonas(c, deps.Catalog)
	})

	user := v1.Group("", requireUser(deps.Issuer, logger))
	user.POST("/chat", func(c echo.Context) error {
		return chat(c, deps.Text, logger)
	})
	user.POST("/conversations/:id/review", func(c echo.Context) error {
		return review(c, deps.Conversations, logger)
	})

	// WebSocket endpoint, authenticated inside the hub
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(deps.Hub, c, logger)
	})
}

// requireUser validates the bearer token and stores the user id on the context
func requireUser(issuer *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(userIDKey, claims.UserID)
			return next(c)
		}
	}
}

func mintToken(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	key := c.Request().Header.Get(serviceKeyHeader)
	if deps.ServiceKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(deps.ServiceKey)) != 1 {
		logger.Warn("Token request rejected: bad service key")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid service key",
		})
	}

	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "user_id is required",
		})
	}

	token, expiresAt, err := deps.Issuer.GenerateUserToken(req.UserID)
	if err != nil {
		logger.Error("Failed to generate user token",
			zap.String("userID", req.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("User token issued", zap.String("userID", req.UserID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    req.UserID,
	})
}

func listPersonas(c echo.Context, catalog repositories.PersonaCatalog) error {
	personas := catalog.List()
	out := make([]PersonaSummary, 0, len(personas))
	for _, p := range personas {
		out = append(out, PersonaSummary{
			ID:         p.ID,
			Name:       p.Name,
			Speciality: p.Speciality,
			Language:   p.Language,
			Gender:     p.Gender,
			Greeting:   p.Greeting,
			Keywords:   p.ExpertiseKeywords,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func chat(c echo.Context, text TextConsultant, logger *zap.Logger) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	userID, _ := c.Get(userIDKey).(string)
	reply, err := text.Reply(c.Request().Context(), usecase.TextRequest{
		UserID:    userID,
		PersonaID: req.PersonaID,
		Message:   req.Message,
	})
	switch {
	case errors.Is(err, usecase.ErrMissingMessage), errors.Is(err, usecase.ErrMissingUser):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: err.Error(),
		})
	case err != nil:
		logger.Error("Text consultation failed", zap.String("userID", userID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "chat_failed",
			Message: "The astrologer could not answer right now",
		})
	}
	return c.JSON(http.StatusOK, reply)
}

func review(c echo.Context, conversations repositories.ConversationStore, logger *zap.Logger) error {
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	userID, _ := c.Get(userIDKey).(string)
	r := &entities.Review{
		ConversationID: c.Param("id"),
		UserID:         userID,
		Rating:         req.Rating,
		Comment:        req.Comment,
	}
	if err := r.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_review",
			Message: err.Error(),
		})
	}

	err := conversations.SaveReview(c.Request().Context(), r)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Conversation not found",
		})
	case err != nil:
		logger.Error("Failed to save review", zap.String("conversationID", r.ConversationID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to save review",
		})
	}
	return c.JSON(http.StatusCreated, r)
}
