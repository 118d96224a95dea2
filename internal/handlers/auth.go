package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/teamboard/apiserver/internal/auth"
	httpmw "github.com/teamboard/apiserver/internal/middleware"
	"github.com/teamboard/apiserver/internal/services"
	"github.com/teamboard/apiserver/types"
)

const (
	msgRegistered         = "User registered successfully"
	msgLoggedIn           = "Login successful"
	msgEmailInUse         = "Email already in use."
	msgInvalidCredentials = "Invalid email or password."
	msgUnauthorized       = "Unauthorized."
	msgInternal           = "Internal server error."
)

// Authenticator is the service surface the auth endpoints depend on.
type Authenticator interface {
	Register(ctx context.Context, in services.RegisterInput) (services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (services.AuthResult, error)
}

// ProfileReader loads the authenticated user's profile.
type ProfileReader interface {
	CurrentUser(ctx context.Context, userID string) (types.User, error)
}

// TokenParser validates bearer tokens.
type TokenParser interface {
	ParseToken(token string, kind auth.TokenKind) (*auth.Claims, error)
}

// AuthHandler provides the registration, login and profile endpoints.
type AuthHandler struct {
	auth     Authenticator
	profiles ProfileReader
	tokens   TokenParser
	logger   *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authenticator Authenticator, profiles ProfileReader, tokens TokenParser, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: authenticator, profiles: profiles, tokens: tokens, logger: logger}
}

// AuthRouter registers user auth routes on the given router. limit, when
// non-nil, wraps the credential endpoints.
func AuthRouter(r chi.Router, authenticator Authenticator, profiles ProfileReader, tokens TokenParser, limit func(http.Handler) http.Handler, logger *slog.Logger) {
	handler := NewAuthHandler(authenticator, profiles, tokens, logger)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces a valid access token and injects its subject into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.tokens)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			claims, err := tokens.ParseToken(tokenString, auth.TokenKindAccess)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			httpmw.SetUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.Subject)))
		})
	}
}

// Register creates a new user account and returns a token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.auth.Register(r.Context(), services.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		Team:            req.Team,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAuthResponse(msgRegistered, result))
}

// Login verifies credentials and returns a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.auth.Login(r.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(msgLoggedIn, result))
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	user, err := h.profiles.CurrentUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrEmailInUse):
		writeError(w, http.StatusConflict, msgEmailInUse)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Name            string `json:"name"`
	Team            string `json:"team"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         types.User `json:"user"`
}

type UserResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

func newAuthResponse(message string, result services.AuthResult) AuthResponse {
	return AuthResponse{
		Success:      true,
		Message:      message,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User,
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
