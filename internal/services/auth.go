package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/teamboard/apiserver/internal/auth"
	"github.com/teamboard/apiserver/internal/events"
	"github.com/teamboard/apiserver/internal/metrics"
	"github.com/teamboard/apiserver/internal/store"
	"github.com/teamboard/apiserver/types"
)

const (
	operationRegister = "register"
	operationLogin    = "login"

	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	maxNameLength     = 100
	maxTeamLength     = 100

	publishTimeout = 2 * time.Second
)

// MetricsRecorder receives auth outcome counters.
type MetricsRecorder interface {
	RecordAuth(operation, outcome string)
	RecordPublishFailure(channel string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string)   {}
func (nopRecorder) RecordPublishFailure(string) {}

// RegisterInput is the registration request after transport decoding.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Team            string
}

// LoginInput is the login request after transport decoding.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by successful registrations and logins.
type AuthResult struct {
	User         types.User
	AccessToken  string
	RefreshToken string
}

// AuthService orchestrates registration and login against the user store,
// the password hasher and the token issuer.
type AuthService struct {
	repo    UserRepository
	hasher  auth.PasswordHasher
	issuer  auth.TokenIssuer
	events  events.Publisher
	metrics MetricsRecorder
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash string

	pending sync.WaitGroup
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithEvents publishes user lifecycle events through p.
func WithEvents(p events.Publisher) AuthOption {
	return func(s *AuthService) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics records auth outcomes on m.
func WithMetrics(m MetricsRecorder) AuthOption {
	return func(s *AuthService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger used for failures.
func WithLogger(l *slog.Logger) AuthOption {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewAuthService(repo UserRepository, hasher auth.PasswordHasher, issuer auth.TokenIssuer, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:    repo,
		hasher:  hasher,
		issuer:  issuer,
		events:  events.NopPublisher{},
		metrics: nopRecorder{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and returns it with a fresh token pair.
// Duplicate emails fail with ErrEmailInUse whether the duplicate is seen by
// the lookup or rejected by the store's unique index.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email, err := validateRegistration(in)
	if err != nil {
		s.metrics.RecordAuth(operationRegister, metrics.OutcomeInvalidInput)
		return AuthResult{}, err
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		s.metrics.RecordAuth(operationRegister, metrics.OutcomeConflict)
		return AuthResult{}, ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, s.fail(ctx, operationRegister, "check existing user", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, s.fail(ctx, operationRegister, "hash password", err)
	}

	user := types.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hashed,
		Name:         strings.TrimSpace(in.Name),
		Team:         strings.TrimSpace(in.Team),
		Role:         types.RoleUser,
	}

	access, refresh, err := s.issueTokens(user)
	if err != nil {
		return AuthResult{}, s.fail(ctx, operationRegister, "issue tokens", err)
	}
	user.RefreshToken = refresh

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.metrics.RecordAuth(operationRegister, metrics.OutcomeConflict)
			return AuthResult{}, ErrEmailInUse
		}
		return AuthResult{}, s.fail(ctx, operationRegister, "create user", err)
	}
	created.PasswordHash = ""

	s.metrics.RecordAuth(operationRegister, metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", created.ID), slog.String("team", created.Team))
	s.publish(ctx, events.ChannelUserRegistered, s.events.UserRegistered, created)

	return AuthResult{User: created, AccessToken: access, RefreshToken: refresh}, nil
}

// Login verifies credentials, rotates the stored refresh token and returns
// a fresh token pair. Unknown emails and wrong passwords both fail with
// ErrInvalidCredentials and leave stored state untouched.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	email := types.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		s.metrics.RecordAuth(operationLogin, metrics.OutcomeInvalidInput)
		return AuthResult{}, invalid("", "email and password are required")
	}
	if len(in.Password) > maxPasswordLength {
		// No account can have such a password; fail like a mismatch.
		s.equalizeTiming(in.Password[:maxPasswordLength])
		s.metrics.RecordAuth(operationLogin, metrics.OutcomeInvalidCredentials)
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.equalizeTiming(in.Password)
			s.metrics.RecordAuth(operationLogin, metrics.OutcomeInvalidCredentials)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, s.fail(ctx, operationLogin, "load credentials", err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, in.Password)
	if err != nil {
		return AuthResult{}, s.fail(ctx, operationLogin, "compare password", err)
	}
	if !ok {
		s.metrics.RecordAuth(operationLogin, metrics.OutcomeInvalidCredentials)
		return AuthResult{}, ErrInvalidCredentials
	}

	access, refresh, err := s.issueTokens(user)
	if err != nil {
		return AuthResult{}, s.fail(ctx, operationLogin, "issue tokens", err)
	}
	if err := s.repo.UpdateRefreshToken(ctx, user.ID, refresh); err != nil {
		return AuthResult{}, s.fail(ctx, operationLogin, "store refresh token", err)
	}

	user.PasswordHash = ""
	user.RefreshToken = refresh

	s.metrics.RecordAuth(operationLogin, metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	s.publish(ctx, events.ChannelUserLoggedIn, s.events.UserLoggedIn, user)

	return AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issueTokens(user types.User) (string, string, error) {
	claims := auth.Claims{
		Email: user.Email,
		Role:  string(user.Role),
		Team:  user.Team,
	}
	access, err := s.issuer.GenerateToken(user.ID, auth.TokenKindAccess, claims)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.issuer.GenerateToken(user.ID, auth.TokenKindRefresh, auth.Claims{})
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// equalizeTiming runs a hash comparison for unknown emails so the response
// time does not reveal whether the address is registered.
func (s *AuthService) equalizeTiming(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Compare(s.dummyHash, password)
	}
}

// Wait blocks until every event published so far has been sent or dropped.
func (s *AuthService) Wait() {
	s.pending.Wait()
}

// publish sends the event in the background so a slow broker never delays
// the response.
func (s *AuthService) publish(ctx context.Context, channel string, emit func(context.Context, types.User) error, user types.User) {
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := emit(ctx, user); err != nil {
			s.metrics.RecordPublishFailure(channel)
			s.logger.WarnContext(ctx, "publish user event failed",
				slog.String("channel", channel),
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}()
}

func (s *AuthService) fail(ctx context.Context, operation, step string, err error) error {
	s.metrics.RecordAuth(operation, metrics.OutcomeError)
	s.logger.ErrorContext(ctx, "auth operation failed",
		slog.String("operation", operation),
		slog.String("step", step),
		slog.Any("error", err),
	)
	return fmt.Errorf("%s: %s: %w", operation, step, err)
}

// validateRegistration checks the input and returns the normalized email.
func validateRegistration(in RegisterInput) (string, error) {
	email := types.NormalizeEmail(in.Email)
	if email == "" {
		return "", invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "email is not a valid address")
	}

	if in.Password == "" {
		return "", invalid("password", "password is required")
	}
	if len(in.Password) < minPasswordLength {
		return "", invalid("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(in.Password) > maxPasswordLength {
		return "", invalid("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	if in.Password != in.ConfirmPassword {
		return "", invalid("confirmPassword", "passwords do not match")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", invalid("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", invalid("name", fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Team)) > maxTeamLength {
		return "", invalid("team", fmt.Sprintf("team must be at most %d characters", maxTeamLength))
	}

	return email, nil
}
