package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitflow/fitflow-backend/internal/auth"
	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/store"
)

// RecentLogLimit bounds the logs gathered for a recommendation when the client sends none.
const RecentLogLimit = 14

// AccountService owns users, sessions and activity logs on the public server.
type AccountService struct {
	dbStore *store.SQLiteStore
	tokens  *auth.TokenManager
	google  auth.GoogleVerifier
}

func NewAccountService(db *store.SQLiteStore, tokens *auth.TokenManager, google auth.GoogleVerifier) *AccountService {
	return &AccountService{dbStore: db, tokens: tokens, google: google}
}

// Session is a signed token plus the user it was issued for.
type Session struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (s *AccountService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		Email:        email,
		PasswordHash: hash,
		AuthProvider: store.AuthProviderLocal,
		Profile:      store.Profile{Name: name},
	}
	if err := s.dbStore.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Ctx(ctx).Info().Str("user_id", user.ID).Msg("User registered")
	return s.issue(user)
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.dbStore.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return nil, ErrUseGoogleSignIn
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// LoginWithGoogle signs in with a Google ID token. Accounts are matched by
// Google subject first, then by email (linking the account), and created otherwise.
func (s *AccountService) LoginWithGoogle(ctx context.Context, credential string) (*Session, error) {
	if s.google == nil {
		return nil, auth.ErrGoogleNotConfigured
	}
	identity, err := s.google.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	user, err := s.dbStore.GetUserByGoogleSub(ctx, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up google user: %w", err)
	}
	if user != nil {
		return s.issue(user)
	}

	user, err = s.dbStore.GetUserByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil {
		// Password accounts keep their provider so both sign-in methods work.
		provider := user.AuthProvider
		if user.PasswordHash == "" {
			provider = store.AuthProviderGoogle
		}
		if err := s.dbStore.LinkGoogleAccount(ctx, user.ID, identity.Subject, provider); err != nil {
			return nil, err
		}
		user.GoogleSub, user.AuthProvider = identity.Subject, provider
		logging.Ctx(ctx).Info().Str("user_id", user.ID).Msg("Linked Google account")
		return s.issue(user)
	}

	user = &store.User{
		Email:        identity.Email,
		AuthProvider: store.AuthProviderGoogle,
		GoogleSub:    identity.Subject,
		AvatarURL:    identity.Picture,
		Profile:      store.Profile{Name: identity.Name},
	}
	if err := s.dbStore.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create google user: %w", err)
	}
	logging.Ctx(ctx).Info().Str("user_id", user.ID).Msg("User registered with Google")
	return s.issue(user)
}

func (s *AccountService) issue(user *store.User) (*Session, error) {
	token, err := s.tokens.GenerateJWT(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := s.tokens.ValidateJWT(token)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *AccountService) GetUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID string, profile store.Profile, avatarURL string) (*store.User, error) {
	user, err := s.dbStore.UpdateUserProfile(ctx, userID, profile, avatarURL)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) CreateLog(ctx context.Context, userID string, entry store.LogEntry) (*store.LogEntry, error) {
	entry.UserID = userID
	if err := s.dbStore.CreateLog(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLogs returns the user's logs newest first. limit <= 0 returns all of them.
func (s *AccountService) ListLogs(ctx context.Context, userID string, limit int) ([]store.LogEntry, error) {
	return s.dbStore.GetLogsByUserID(ctx, userID, limit)
}
